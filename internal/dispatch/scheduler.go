package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

var (
	ErrAlreadyRunning = errors.New("dispatch already running")
	ErrClaimed        = errors.New("dispatch for this date already claimed by another instance")
)

// Runner performs one dispatch for a date. *Broadcaster is the production runner.
type Runner interface {
	SendAll(ctx context.Context, date string) (Report, error)
}

// Locker claims a key across replicas. *store.Redis satisfies it.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// RunObserver is notified of every run outcome.
type RunObserver interface {
	ObserveDispatch(result string)
}

// SchedulerOptions configures a Scheduler.
type SchedulerOptions struct {
	Hour     int
	Minute   int
	Location *time.Location
	Locker   Locker
	LockTTL  time.Duration
	Observer RunObserver
	Clock    func() time.Time
}

// Scheduler fires the runner once a day. At most one run is in flight; a
// fire that finds a run in progress is skipped, not queued.
type Scheduler struct {
	cron     *cron.Cron
	schedule cron.Schedule
	runner   Runner
	loc      *time.Location
	now      func() time.Time
	locker   Locker
	lockTTL  time.Duration
	observer RunObserver

	running atomic.Bool

	mu      sync.Mutex
	baseCtx context.Context
	last    *Report
}

// NewScheduler validates the fire time and builds a stopped scheduler.
func NewScheduler(runner Runner, opts SchedulerOptions) (*Scheduler, error) {
	if opts.Hour < 0 || opts.Hour > 23 || opts.Minute < 0 || opts.Minute > 59 {
		return nil, fmt.Errorf("invalid dispatch time %02d:%02d", opts.Hour, opts.Minute)
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 30 * time.Minute
	}
	spec := fmt.Sprintf("%d %d * * *", opts.Minute, opts.Hour)
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", spec, err)
	}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(opts.Location),
			cron.WithChain(cron.Recover(cron.DefaultLogger)),
		),
		schedule: schedule,
		runner:   runner,
		loc:      opts.Location,
		now:      opts.Clock,
		locker:   opts.Locker,
		lockTTL:  opts.LockTTL,
		observer: opts.Observer,
		baseCtx:  context.Background(),
	}
	s.cron.Schedule(schedule, cron.FuncJob(s.fire))
	return s, nil
}

// Start begins firing in the background. Runs started by the timer are
// cancelled when ctx is.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()
	s.cron.Start()
	log.Printf("dispatch scheduled daily, next run %s", s.Next().Format(time.RFC3339))
}

// Stop halts the timer and waits for an in-flight run.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Next is the next scheduled fire time.
func (s *Scheduler) Next() time.Time {
	return s.schedule.Next(s.now().In(s.loc))
}

// Running reports whether a run is in flight.
func (s *Scheduler) Running() bool { return s.running.Load() }

// Last returns the most recent completed report, if any.
func (s *Scheduler) Last() (Report, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return Report{}, false
	}
	return *s.last, true
}

// RunNow dispatches today's codes immediately. It shares the overlap guard
// with the timer but not the cross-replica lock, so an operator can resend.
func (s *Scheduler) RunNow(ctx context.Context) (Report, error) {
	return s.run(ctx, false)
}

func (s *Scheduler) fire() {
	s.mu.Lock()
	ctx := s.baseCtx
	s.mu.Unlock()

	report, err := s.run(ctx, true)
	switch {
	case errors.Is(err, ErrAlreadyRunning):
		log.Printf("dispatch skipped: previous run still in progress")
	case errors.Is(err, ErrClaimed):
		log.Printf("dispatch skipped: %v", err)
	case err != nil:
		log.Printf("dispatch failed: %v", err)
	default:
		log.Printf("dispatch %s finished: %d sent, %d failed", report.Date, report.Sent, len(report.Failures))
	}
}

func (s *Scheduler) run(ctx context.Context, useLock bool) (Report, error) {
	if !s.running.CompareAndSwap(false, true) {
		s.observe("skipped")
		return Report{}, ErrAlreadyRunning
	}
	defer s.running.Store(false)

	date := s.now().In(s.loc).Format("2006-01-02")
	if useLock && s.locker != nil {
		ok, err := s.locker.TryLock(ctx, "qr-dispatch:"+date, s.lockTTL)
		switch {
		case err != nil:
			// proceed unlocked
			log.Printf("dispatch lock unavailable, continuing: %v", err)
		case !ok:
			s.observe("claimed")
			return Report{}, fmt.Errorf("%w: %s", ErrClaimed, date)
		}
	}

	report, err := s.runner.SendAll(ctx, date)
	if err != nil {
		s.observe("error")
		return Report{}, err
	}
	s.observe("ok")
	s.mu.Lock()
	s.last = &report
	s.mu.Unlock()
	return report, nil
}

func (s *Scheduler) observe(result string) {
	if s.observer != nil {
		s.observer.ObserveDispatch(result)
	}
}
