package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/example/trips/internal/lifecycle"
	"github.com/example/trips/internal/models"
	"github.com/example/trips/internal/observability"
)

// MemoryStore keeps rides in a map behind one mutex. The mutex is the
// serialization point, so the check-then-write contracts of the Store
// interface hold trivially. Used for local runs and tests.
type MemoryStore struct {
	mu    sync.Mutex
	rides map[string]*models.Ride
}

var _ lifecycle.Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rides: make(map[string]*models.Ride)}
}

func (m *MemoryStore) Create(_ context.Context, ride *models.Ride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.activeLocked(ride.PassengerID) != nil {
		return fmt.Errorf("create ride: %w", lifecycle.ErrActiveRideExists)
	}
	cp := *ride
	m.rides[ride.ID] = &cp
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*models.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[id]
	if !ok {
		return nil, fmt.Errorf("get ride %s: %w", id, lifecycle.ErrNotFound)
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) ActiveFor(_ context.Context, userID string) (*models.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r := m.activeLocked(userID); r != nil {
		cp := *r
		return &cp, nil
	}
	return nil, fmt.Errorf("active ride for %s: %w", userID, lifecycle.ErrNotFound)
}

func (m *MemoryStore) ListFor(_ context.Context, userID string, limit, offset int) ([]*models.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Ride
	for _, r := range m.rides {
		if participant(r, userID) {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.After(out[j].RequestedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) Accept(_ context.Context, rideID, driverID string, at time.Time) (*models.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[rideID]
	if !ok {
		return nil, fmt.Errorf("accept ride %s: %w", rideID, lifecycle.ErrNotFound)
	}
	if r.Status != models.StatusNotAccepted {
		observability.TransitionConflicts.Inc()
		return nil, fmt.Errorf("accept ride %s: %w", rideID, lifecycle.ErrConflict)
	}
	if m.activeLocked(driverID) != nil {
		return nil, fmt.Errorf("accept ride %s: %w", rideID, lifecycle.ErrActiveRideExists)
	}
	d := driverID
	t := at
	r.DriverID = &d
	r.AcceptedAt = &t
	r.Status = models.StatusAccepted
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) Transition(_ context.Context, rideID string, from, to models.Status, arrivedAt *time.Time) (*models.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[rideID]
	if !ok {
		return nil, fmt.Errorf("transition ride %s: %w", rideID, lifecycle.ErrNotFound)
	}
	if r.Status != from {
		observability.TransitionConflicts.Inc()
		return nil, fmt.Errorf("transition ride %s: %w", rideID, lifecycle.ErrConflict)
	}
	r.Status = to
	if arrivedAt != nil {
		t := *arrivedAt
		r.ArrivedAt = &t
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) activeLocked(userID string) *models.Ride {
	for _, r := range m.rides {
		if r.Status.Active() && participant(r, userID) {
			return r
		}
	}
	return nil
}

func participant(r *models.Ride, userID string) bool {
	return r.PassengerID == userID || (r.DriverID != nil && *r.DriverID == userID)
}
