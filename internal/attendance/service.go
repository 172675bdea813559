package attendance

import (
	"context"
	"errors"
	"strings"
	"time"

	"qrattend/internal/subject"
	"qrattend/internal/token"
)

// maxAttempts bounds re-classification after lost conditional writes:
// none -> checked in -> checked out is at most two lost races.
const maxAttempts = 3

// Result is an applied transition.
type Result struct {
	Action  Action
	Record  Record
	Subject subject.Subject
}

// Options configures a Service.
type Options struct {
	Location *time.Location
	Clock    func() time.Time
}

// Service applies attendance transitions and serves the history projection.
type Service struct {
	repo     *Repository
	dir      Directory
	resolver *Resolver
	codec    token.Codec
	loc      *time.Location
	now      func() time.Time
}

// NewService creates a service backed by a repository.
func NewService(repo *Repository, dir Directory, codec token.Codec, resolver *Resolver, opts Options) *Service {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Service{
		repo:     repo,
		dir:      dir,
		resolver: resolver,
		codec:    codec,
		loc:      opts.Location,
		now:      opts.Clock,
	}
}

// Location is the zone work dates and rendered timestamps use.
func (s *Service) Location() *time.Location { return s.loc }

// Today is the current work date.
func (s *Service) Today() string {
	return s.now().In(s.loc).Format(DateLayout)
}

// Scan handles a QR scan: the first scan of a day checks in, the second checks
// out, anything later is rejected with ErrAlreadyCompleted.
func (s *Service) Scan(ctx context.Context, qrData string) (Result, error) {
	qrData = strings.TrimSpace(qrData)
	if qrData == "" {
		return Result{}, ErrQRRequired
	}
	payload, err := s.codec.Decode(qrData)
	if err != nil {
		return Result{}, err
	}
	res, err := s.resolver.Resolve(ctx, payload, s.now().In(s.loc))
	if err != nil {
		return Result{}, err
	}
	if _, err := ParseDate(res.Date); err != nil {
		return Result{}, err
	}
	out, err := s.apply(ctx, res.Subject.ID, res.Date, EventScan)
	out.Subject = res.Subject
	return out, err
}

// CheckIn is the explicit check-in for today.
func (s *Service) CheckIn(ctx context.Context, userID int64) (Result, error) {
	return s.explicit(ctx, userID, EventCheckIn)
}

// CheckOut is the explicit check-out for today.
func (s *Service) CheckOut(ctx context.Context, userID int64) (Result, error) {
	return s.explicit(ctx, userID, EventCheckOut)
}

func (s *Service) explicit(ctx context.Context, userID int64, ev Event) (Result, error) {
	sub, err := s.dir.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, subject.ErrNotFound) {
			return Result{}, ErrSubjectNotFound
		}
		return Result{}, err
	}
	out, err := s.apply(ctx, sub.ID, s.Today(), ev)
	out.Subject = sub
	return out, err
}

func (s *Service) apply(ctx context.Context, userID int64, date string, ev Event) (Result, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		var current *Record
		rec, err := s.repo.Find(ctx, userID, date)
		switch {
		case err == nil:
			current = &rec
		case !errors.Is(err, ErrRecordNotFound):
			return Result{}, err
		}

		action, err := Next(Classify(current), ev)
		if err != nil {
			return Result{}, &TransitionError{Err: err, Record: current}
		}

		at := s.now().UTC()
		var written Record
		switch action {
		case ActionCheckIn:
			written, err = s.repo.InsertCheckIn(ctx, userID, date, at)
		case ActionCheckOut:
			written, err = s.repo.SetCheckOut(ctx, userID, date, at)
		}
		if errors.Is(err, errConflict) {
			continue
		}
		if err != nil {
			return Result{}, err
		}
		return Result{Action: action, Record: written}, nil
	}
	return Result{}, ErrContention
}

// Override is the administrative write path. It ignores the state machine and
// replaces the day's record; the last write wins.
func (s *Service) Override(ctx context.Context, in OverrideInput) (Record, error) {
	if _, err := ParseDate(in.Date); err != nil {
		return Record{}, err
	}
	if in.ClassCount < 0 {
		in.ClassCount = 0
	}
	return s.repo.Upsert(ctx, in, s.now().UTC())
}

// List is the read-side projection.
func (s *Service) List(ctx context.Context, f Filter) ([]Entry, error) {
	for _, d := range []string{f.Start, f.End} {
		if d == "" {
			continue
		}
		if _, err := ParseDate(d); err != nil {
			return nil, err
		}
	}
	return s.repo.List(ctx, f)
}
