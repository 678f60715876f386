package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/example/trips/internal/models"
	"github.com/example/trips/internal/observability"
)

// Store is the persistence contract the engine requires. Implementations
// must make Create, Accept and Transition atomic per ride / per identity:
// the check and the write happen under one transaction or lock, never as
// separate steps.
type Store interface {
	// Create persists a new ride after verifying the passenger has no
	// active ride. Fails with ErrActiveRideExists otherwise.
	Create(ctx context.Context, ride *models.Ride) error

	// Get returns the ride or ErrNotFound.
	Get(ctx context.Context, id string) (*models.Ride, error)

	// ActiveFor returns the single active ride the user participates in
	// (as passenger or driver), or ErrNotFound when there is none.
	ActiveFor(ctx context.Context, userID string) (*models.Ride, error)

	// ListFor returns the user's rides as passenger or driver, newest
	// first.
	ListFor(ctx context.Context, userID string, limit, offset int) ([]*models.Ride, error)

	// Accept atomically binds the driver to a still-unaccepted ride:
	// verifies the driver has no active ride (ErrActiveRideExists),
	// then compare-and-swaps NOT_ACCEPTED -> ACCEPTED setting driver_id
	// and accepted_at. A lost race yields ErrConflict.
	Accept(ctx context.Context, rideID, driverID string, at time.Time) (*models.Ride, error)

	// Transition compare-and-swaps the ride's status from `from` to
	// `to`, setting arrived_at when non-nil. Only the status and that
	// timestamp move. A lost race yields ErrConflict.
	Transition(ctx context.Context, rideID string, from, to models.Status, arrivedAt *time.Time) (*models.Ride, error)
}

// RoleProvider answers capability questions about an identity. It is
// injected rather than read off the credential so the engine never
// trusts role data carried in a request.
type RoleProvider interface {
	IsDriver(ctx context.Context, userID string) (bool, error)
}

// role identifies who may trigger a given transition edge.
type role int

const (
	rolePassenger role = 1 << iota
	roleDriver
	roleSystem
)

// transitions is the full legal edge set. An edge absent here is never
// realizable, whoever asks.
var transitions = map[models.Status]map[models.Status]role{
	models.StatusNotAccepted: {
		models.StatusAccepted:            roleDriver,
		models.StatusExpired:             roleSystem,
		models.StatusCanceledByPassenger: rolePassenger,
	},
	models.StatusAccepted: {
		models.StatusInProgress:          roleDriver,
		models.StatusCanceledByDriver:    roleDriver,
		models.StatusCanceledByPassenger: rolePassenger,
	},
	models.StatusInProgress: {
		models.StatusDone: roleDriver,
	},
}

func edgeRole(from, to models.Status) (role, bool) {
	next, ok := transitions[from]
	if !ok {
		return 0, false
	}
	r, ok := next[to]
	return r, ok
}

// Engine owns the ride state machine and its authorization predicates.
// All writes go through the Store's atomic contract; the engine itself
// holds no mutable state.
type Engine struct {
	store Store
	roles RoleProvider
	now   func() time.Time
}

func NewEngine(store Store, roles RoleProvider) *Engine {
	return &Engine{store: store, roles: roles, now: time.Now}
}

func validateCoords(lat, lon float64) error {
	if lat < -90 || lat > 90 {
		return fmt.Errorf("%w: latitude %v out of range [-90,90]", ErrValidation, lat)
	}
	if lon < -180 || lon > 180 {
		return fmt.Errorf("%w: longitude %v out of range [-180,180]", ErrValidation, lon)
	}
	return nil
}

// Create validates the requested geometry and persists a NOT_ACCEPTED
// ride for the passenger. Nothing is persisted when validation fails.
func (e *Engine) Create(ctx context.Context, passengerID string, req models.RideRequest) (*models.Ride, error) {
	if err := validateCoords(req.OriginLat, req.OriginLon); err != nil {
		return nil, fmt.Errorf("origin: %w", err)
	}
	if err := validateCoords(req.DestinationLat, req.DestinationLon); err != nil {
		return nil, fmt.Errorf("destination: %w", err)
	}
	ride := &models.Ride{
		ID:             uuid.NewString(),
		PassengerID:    passengerID,
		OriginLat:      req.OriginLat,
		OriginLon:      req.OriginLon,
		DestinationLat: req.DestinationLat,
		DestinationLon: req.DestinationLon,
		Status:         models.StatusNotAccepted,
		RequestedAt:    e.now().UTC(),
	}
	if err := e.store.Create(ctx, ride); err != nil {
		return nil, err
	}
	observability.RidesCreated.Inc()
	return ride, nil
}

// Accept binds the calling driver to a NOT_ACCEPTED ride. Exactly one of
// two concurrent accepts can win; the loser sees ErrConflict.
func (e *Engine) Accept(ctx context.Context, rideID, callerID string) (*models.Ride, error) {
	isDriver, err := e.roles.IsDriver(ctx, callerID)
	if err != nil {
		return nil, fmt.Errorf("resolve driver role: %w", err)
	}
	if !isDriver {
		return nil, fmt.Errorf("%w: only drivers can accept rides", ErrUnauthorized)
	}
	ride, err := e.store.Get(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if ride.Status != models.StatusNotAccepted {
		return nil, fmt.Errorf("%w: ride is %s", ErrIllegalTransition, ride.Status)
	}
	accepted, err := e.store.Accept(ctx, rideID, callerID, e.now().UTC())
	if err != nil {
		return nil, err
	}
	observability.Transitions.WithLabelValues(models.StatusAccepted.String()).Inc()
	return accepted, nil
}

// UpdateStatus moves the caller's active ride along a legal edge. The
// requested status is the only field a caller can move; ACCEPTED and
// EXPIRED are never reachable this way (accept has its own operation,
// expiry is system-internal).
func (e *Engine) UpdateStatus(ctx context.Context, rideID, callerID string, requested models.Status) (*models.Ride, error) {
	if !requested.Valid() {
		return nil, fmt.Errorf("%w: unknown status code %d", ErrValidation, requested)
	}
	if requested == models.StatusAccepted || requested == models.StatusExpired {
		return nil, fmt.Errorf("%w: status %s cannot be requested directly", ErrIllegalTransition, requested)
	}
	ride, callerRoles, err := e.resolveActive(ctx, rideID, callerID)
	if err != nil {
		return nil, err
	}
	required, ok := edgeRole(ride.Status, requested)
	if !ok || callerRoles&required == 0 {
		return nil, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, ride.Status, requested)
	}
	var arrivedAt *time.Time
	if requested == models.StatusDone {
		t := e.now().UTC()
		arrivedAt = &t
	}
	updated, err := e.store.Transition(ctx, rideID, ride.Status, requested, arrivedAt)
	if err != nil {
		return nil, err
	}
	observability.Transitions.WithLabelValues(requested.String()).Inc()
	return updated, nil
}

// Cancel ends the caller's active ride, choosing the cancel variant from
// the role the caller holds on that ride.
func (e *Engine) Cancel(ctx context.Context, rideID, callerID string) (*models.Ride, error) {
	ride, callerRoles, err := e.resolveActive(ctx, rideID, callerID)
	if err != nil {
		return nil, err
	}
	target := models.StatusCanceledByPassenger
	if callerRoles&roleDriver != 0 {
		target = models.StatusCanceledByDriver
	}
	if _, ok := edgeRole(ride.Status, target); !ok {
		return nil, fmt.Errorf("%w: cannot cancel ride in %s", ErrIllegalTransition, ride.Status)
	}
	updated, err := e.store.Transition(ctx, rideID, ride.Status, target, nil)
	if err != nil {
		return nil, err
	}
	observability.Transitions.WithLabelValues(target.String()).Inc()
	return updated, nil
}

// Expire applies the system-internal NOT_ACCEPTED -> EXPIRED transition.
// Triggered by the external timeout scheduler, never by a caller.
func (e *Engine) Expire(ctx context.Context, rideID string) (*models.Ride, error) {
	ride, err := e.store.Get(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if ride.Status != models.StatusNotAccepted {
		return nil, fmt.Errorf("%w: ride is %s", ErrIllegalTransition, ride.Status)
	}
	updated, err := e.store.Transition(ctx, rideID, models.StatusNotAccepted, models.StatusExpired, nil)
	if err != nil {
		return nil, err
	}
	observability.Transitions.WithLabelValues(models.StatusExpired.String()).Inc()
	return updated, nil
}

// Get returns the ride if the caller participates in it.
func (e *Engine) Get(ctx context.Context, rideID, callerID string) (*models.Ride, error) {
	ride, err := e.store.Get(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if rolesOn(ride, callerID) == 0 {
		return nil, fmt.Errorf("%w: not a participant of this ride", ErrForbidden)
	}
	return ride, nil
}

// List returns the caller's ride history, newest first.
func (e *Engine) List(ctx context.Context, callerID string, limit, offset int) ([]*models.Ride, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return e.store.ListFor(ctx, callerID, limit, offset)
}

// resolveActive authorizes a mutation via the caller's currently active
// ride rather than trusting the request's ride id. A participant acting
// on their own finished ride gets ErrIllegalTransition; a stranger gets
// ErrForbidden.
func (e *Engine) resolveActive(ctx context.Context, rideID, callerID string) (*models.Ride, role, error) {
	active, err := e.store.ActiveFor(ctx, callerID)
	if err == nil && active.ID == rideID {
		return active, rolesOn(active, callerID), nil
	}
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, 0, err
	}
	ride, err := e.store.Get(ctx, rideID)
	if err != nil {
		return nil, 0, err
	}
	if rolesOn(ride, callerID) != 0 {
		return nil, 0, fmt.Errorf("%w: ride is %s", ErrIllegalTransition, ride.Status)
	}
	return nil, 0, fmt.Errorf("%w: not your active ride", ErrForbidden)
}

func rolesOn(ride *models.Ride, userID string) role {
	var r role
	if ride.PassengerID == userID {
		r |= rolePassenger
	}
	if ride.DriverID != nil && *ride.DriverID == userID {
		r |= roleDriver
	}
	return r
}
