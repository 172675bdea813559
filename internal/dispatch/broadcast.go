// Package dispatch sends every subject their daily QR code, on a cron schedule or on demand.
package dispatch

import (
	"context"
	"fmt"
	"log"
	"time"

	"qrattend/internal/queue"
	"qrattend/internal/subject"
)

// Deliverer hands one subject their QR code for date.
type Deliverer interface {
	Deliver(ctx context.Context, sub subject.Subject, date string) error
}

// Lister enumerates subjects in ascending id order.
type Lister interface {
	List(ctx context.Context) ([]subject.Subject, error)
}

// Observer is notified of each delivery attempt.
type Observer interface {
	ObserveDelivery(err error)
}

// Failure is one subject the run could not reach.
type Failure struct {
	UserID int64  `json:"user_id"`
	Name   string `json:"name"`
	Error  string `json:"error"`
}

// Report summarises a dispatch run.
type Report struct {
	Date  string `json:"date"`
	Total int    `json:"total"`
	// Sent counts successful Deliver calls. With a QueueDeliverer that means
	// jobs enqueued; the worker reports actual mail failures in its log.
	Sent     int       `json:"sent"`
	Failures []Failure `json:"failures"`
}

// Broadcaster delivers to all subjects, isolating per-subject failures.
type Broadcaster struct {
	subjects Lister
	deliver  Deliverer
	timeout  time.Duration
	observer Observer
}

// NewBroadcaster creates a broadcaster. timeout bounds each delivery; zero means none.
func NewBroadcaster(subjects Lister, deliver Deliverer, timeout time.Duration, observer Observer) *Broadcaster {
	return &Broadcaster{subjects: subjects, deliver: deliver, timeout: timeout, observer: observer}
}

// SendAll delivers date's QR code to every subject. Only a failure to enumerate
// subjects is returned as an error; delivery failures land in the report.
func (b *Broadcaster) SendAll(ctx context.Context, date string) (Report, error) {
	subs, err := b.subjects.List(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("list subjects: %w", err)
	}
	report := Report{Date: date, Total: len(subs), Failures: []Failure{}}
	for _, sub := range subs {
		if ctx.Err() != nil {
			report.Failures = append(report.Failures, Failure{UserID: sub.ID, Name: sub.Name, Error: ctx.Err().Error()})
			continue
		}
		err := b.deliverOne(ctx, sub, date)
		if b.observer != nil {
			b.observer.ObserveDelivery(err)
		}
		if err != nil {
			log.Printf("dispatch %s: delivery to user %d failed: %v", date, sub.ID, err)
			report.Failures = append(report.Failures, Failure{UserID: sub.ID, Name: sub.Name, Error: err.Error()})
			continue
		}
		report.Sent++
	}
	log.Printf("dispatch %s: sent %d/%d", date, report.Sent, report.Total)
	return report, nil
}

func (b *Broadcaster) deliverOne(ctx context.Context, sub subject.Subject, date string) error {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}
	return b.deliver.Deliver(ctx, sub, date)
}

// QueueDeliverer enqueues delivery jobs for cmd/worker instead of sending inline.
type QueueDeliverer struct {
	Queue queue.Queue
}

// Deliver publishes a delivery job for sub.
func (d QueueDeliverer) Deliver(ctx context.Context, sub subject.Subject, date string) error {
	msg, err := queue.NewDeliveryMessage(queue.DeliveryJob{UserID: sub.ID, Date: date})
	if err != nil {
		return err
	}
	return d.Queue.Publish(ctx, msg)
}
