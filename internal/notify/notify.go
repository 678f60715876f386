package notify

import (
	"context"
	"errors"
	"time"
)

// RideRequested is the handoff event for the matching subsystem.
// Delivery is at-least-once; consumers dedupe on ride_id.
type RideRequested struct {
	RideID      string    `json:"ride_id"`
	PassengerID string    `json:"passenger_id"`
	RequestedAt time.Time `json:"requested_at"`
}

// Publisher delivers events to the downstream broker.
type Publisher interface {
	Publish(ctx context.Context, ev RideRequested) error
}

// Queue buffers events between the request path and delivery. Enqueue
// must be cheap: it runs on the create response path (though its failure
// never surfaces to the caller).
type Queue interface {
	Enqueue(ctx context.Context, ev RideRequested) error
	Dequeue(ctx context.Context, timeout time.Duration) (RideRequested, error)
}

// ErrQueueEmpty is returned by Dequeue when the wait timed out.
var ErrQueueEmpty = errors.New("notification queue is empty")
