package dispatch

import (
	"context"
	"fmt"
	"log"
	"time"

	"qrattend/internal/queue"
	"qrattend/internal/subject"
)

// Getter loads one subject.
type Getter interface {
	Get(ctx context.Context, id int64) (subject.Subject, error)
}

// Worker drains delivery jobs published by QueueDeliverer.
type Worker struct {
	Subjects Getter
	Deliver  Deliverer
	Timeout  time.Duration
	Observer Observer
}

// Run handles messages until msgs closes. Failed jobs are logged and dropped.
func (w *Worker) Run(ctx context.Context, msgs <-chan queue.Message) {
	for msg := range msgs {
		if err := w.Handle(ctx, msg); err != nil {
			log.Printf("job %s failed: %v", msg.ID, err)
		}
	}
}

// Handle performs one delivery job.
func (w *Worker) Handle(ctx context.Context, msg queue.Message) error {
	job, err := msg.DeliveryJob()
	if err != nil {
		return err
	}
	sub, err := w.Subjects.Get(ctx, job.UserID)
	if err != nil {
		return fmt.Errorf("load user %d: %w", job.UserID, err)
	}
	if w.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.Timeout)
		defer cancel()
	}
	err = w.Deliver.Deliver(ctx, sub, job.Date)
	if w.Observer != nil {
		w.Observer.ObserveDelivery(err)
	}
	if err != nil {
		return fmt.Errorf("deliver to user %d: %w", job.UserID, err)
	}
	log.Printf("job %s: qr for %s sent to user %d", msg.ID, job.Date, job.UserID)
	return nil
}
