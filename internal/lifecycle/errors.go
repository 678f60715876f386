package lifecycle

import "errors"

// Sentinel errors for the ride lifecycle. Callers classify with
// errors.Is; the HTTP layer maps each to a status code.
var (
	// ErrUnauthenticated is returned when no caller identity could be
	// resolved from the presented credential.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrUnauthorized is returned when the caller lacks the capability
	// an operation requires (e.g. accepting without the driver role).
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden is returned when the caller is not a participant of
	// the ride they are acting on.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound is returned when the ride id is unknown.
	ErrNotFound = errors.New("ride not found")

	// ErrIllegalTransition is returned for any status move outside the
	// transition table, including acting on a terminal ride.
	ErrIllegalTransition = errors.New("illegal status transition")

	// ErrActiveRideExists is returned when an operation would give an
	// identity a second concurrently active ride.
	ErrActiveRideExists = errors.New("active ride exists")

	// ErrValidation is returned for malformed input such as
	// out-of-range coordinates or an unknown status code.
	ErrValidation = errors.New("invalid input")

	// ErrConflict is returned when a concurrent writer won the race for
	// the same transition. Safe to retry after re-reading the ride.
	ErrConflict = errors.New("conflicting concurrent update")
)
