package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/trips/internal/lifecycle"
	"github.com/example/trips/internal/models"
)

func newRide(id, passenger string, at time.Time) *models.Ride {
	return &models.Ride{
		ID:             id,
		PassengerID:    passenger,
		OriginLat:      1,
		OriginLon:      1,
		DestinationLat: 2,
		DestinationLon: 2,
		Status:         models.StatusNotAccepted,
		RequestedAt:    at,
	}
}

func TestCreateEnforcesSingleActiveRide(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	if err := m.Create(ctx, newRide("r1", "P", time.Now())); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := m.Create(ctx, newRide("r2", "P", time.Now())); !errors.Is(err, lifecycle.ErrActiveRideExists) {
		t.Fatalf("second create: %v", err)
	}

	// once r1 is terminal a new ride is allowed
	if _, err := m.Transition(ctx, "r1", models.StatusNotAccepted, models.StatusCanceledByPassenger, nil); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := m.Create(ctx, newRide("r2", "P", time.Now())); err != nil {
		t.Fatalf("create after cancel: %v", err)
	}
}

func TestTransitionIsCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	m.Create(ctx, newRide("r1", "P", time.Now()))

	if _, err := m.Transition(ctx, "r1", models.StatusAccepted, models.StatusInProgress, nil); !errors.Is(err, lifecycle.ErrConflict) {
		t.Fatalf("stale precondition: %v", err)
	}
	if _, err := m.Transition(ctx, "missing", models.StatusNotAccepted, models.StatusExpired, nil); !errors.Is(err, lifecycle.ErrNotFound) {
		t.Fatalf("unknown ride: %v", err)
	}

	at := time.Now()
	r, err := m.Transition(ctx, "r1", models.StatusNotAccepted, models.StatusExpired, &at)
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if r.Status != models.StatusExpired {
		t.Fatalf("status = %v", r.Status)
	}
}

func TestAcceptSemantics(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	m.Create(ctx, newRide("r1", "P", time.Now()))

	r, err := m.Accept(ctx, "r1", "D", time.Now())
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if r.DriverID == nil || *r.DriverID != "D" || r.AcceptedAt == nil {
		t.Fatalf("accept did not bind driver: %+v", r)
	}

	// a second accept loses the swap
	if _, err := m.Accept(ctx, "r1", "D2", time.Now()); !errors.Is(err, lifecycle.ErrConflict) {
		t.Fatalf("raced accept: %v", err)
	}

	// the bound driver cannot take another ride
	m.Create(ctx, newRide("r2", "P2", time.Now()))
	if _, err := m.Accept(ctx, "r2", "D", time.Now()); !errors.Is(err, lifecycle.ErrActiveRideExists) {
		t.Fatalf("busy driver: %v", err)
	}
}

func TestActiveForCoversBothRoles(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	m.Create(ctx, newRide("r1", "P", time.Now()))
	m.Accept(ctx, "r1", "D", time.Now())

	for _, u := range []string{"P", "D"} {
		r, err := m.ActiveFor(ctx, u)
		if err != nil {
			t.Fatalf("active for %s: %v", u, err)
		}
		if r.ID != "r1" {
			t.Fatalf("active for %s = %s", u, r.ID)
		}
	}
	if _, err := m.ActiveFor(ctx, "X"); !errors.Is(err, lifecycle.ErrNotFound) {
		t.Fatalf("active for stranger: %v", err)
	}
}

func TestListForOrdersNewestFirst(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	base := time.Now()

	first := newRide("r1", "P", base)
	m.Create(ctx, first)
	m.Transition(ctx, "r1", models.StatusNotAccepted, models.StatusCanceledByPassenger, nil)
	second := newRide("r2", "P", base.Add(time.Minute))
	m.Create(ctx, second)

	rides, err := m.ListFor(ctx, "P", 10, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rides) != 2 || rides[0].ID != "r2" || rides[1].ID != "r1" {
		t.Fatalf("unexpected order: %v", rides)
	}

	rides, _ = m.ListFor(ctx, "P", 1, 1)
	if len(rides) != 1 || rides[0].ID != "r1" {
		t.Fatalf("pagination broken: %v", rides)
	}
}

func TestReturnedRidesAreCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	m.Create(ctx, newRide("r1", "P", time.Now()))

	r, _ := m.Get(ctx, "r1")
	r.Status = models.StatusDone

	again, _ := m.Get(ctx, "r1")
	if again.Status != models.StatusNotAccepted {
		t.Fatal("store state mutated through returned pointer")
	}
}
