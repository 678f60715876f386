package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/example/trips/internal/observability"
)

// Worker drains the queue into the publisher. Failed publishes are
// retried with backoff and finally re-enqueued, so an event is only lost
// together with the queue itself.
type Worker struct {
	Queue     Queue
	Publisher Publisher
	Log       *slog.Logger

	// Attempts and Delay tune the per-event retry loop; zero values get
	// defaults.
	Attempts int
	Delay    time.Duration
}

func (w *Worker) Run(ctx context.Context) {
	attempts := w.Attempts
	if attempts <= 0 {
		attempts = 3
	}
	delay := w.Delay
	if delay <= 0 {
		delay = 200 * time.Millisecond
	}
	for {
		ev, err := w.Queue.Dequeue(ctx, 5*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, ErrQueueEmpty) {
				continue
			}
			w.Log.Error("notify dequeue failed", "error", err)
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}
		if err := PublishWithRetry(ctx, w.Publisher, ev, attempts, delay); err != nil {
			observability.NotificationFailures.Inc()
			w.Log.Error("notify publish failed, re-enqueueing", "ride_id", ev.RideID, "error", err)
			if err := w.Queue.Enqueue(ctx, ev); err != nil {
				w.Log.Error("notify re-enqueue failed, event dropped", "ride_id", ev.RideID, "error", err)
			}
			continue
		}
		observability.NotificationsPublished.Inc()
		w.Log.Info("ride request handed off", "ride_id", ev.RideID)
	}
}

// PublishWithRetry publishes with exponential backoff between attempts.
func PublishWithRetry(ctx context.Context, pub Publisher, ev RideRequested, attempts int, delay time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = pub.Publish(ctx, ev); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
	}
	return err
}
