package models

import "time"

// Status is the ride lifecycle state. Negative codes are terminal
// failure states, DONE is the terminal success state.
type Status int

const (
	StatusNotAccepted         Status = 0
	StatusAccepted            Status = 1
	StatusInProgress          Status = 2
	StatusDone                Status = 3
	StatusExpired             Status = -1
	StatusCanceledByPassenger Status = -2
	StatusCanceledByDriver    Status = -3
)

func (s Status) String() string {
	switch s {
	case StatusNotAccepted:
		return "not_accepted"
	case StatusAccepted:
		return "accepted"
	case StatusInProgress:
		return "in_progress"
	case StatusDone:
		return "done"
	case StatusExpired:
		return "expired"
	case StatusCanceledByPassenger:
		return "canceled_by_passenger"
	case StatusCanceledByDriver:
		return "canceled_by_driver"
	}
	return "unknown"
}

// Valid reports whether s is one of the enumerated codes.
func (s Status) Valid() bool {
	switch s {
	case StatusNotAccepted, StatusAccepted, StatusInProgress, StatusDone,
		StatusExpired, StatusCanceledByPassenger, StatusCanceledByDriver:
		return true
	}
	return false
}

// Terminal reports whether no further transition is legal from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusDone, StatusExpired, StatusCanceledByPassenger, StatusCanceledByDriver:
		return true
	}
	return false
}

// Active reports whether a ride in s counts against the one-active-ride
// limit of its participants.
func (s Status) Active() bool {
	switch s {
	case StatusNotAccepted, StatusAccepted, StatusInProgress:
		return true
	}
	return false
}

// Ride is the persisted and caller-visible ride representation.
// Coordinates stay flat, matching the column layout.
type Ride struct {
	ID             string     `json:"id"`
	PassengerID    string     `json:"passenger_id"`
	DriverID       *string    `json:"driver_id,omitempty"`
	OriginLat      float64    `json:"origin_lat"`
	OriginLon      float64    `json:"origin_lon"`
	DestinationLat float64    `json:"destination_lat"`
	DestinationLon float64    `json:"destination_lon"`
	Status         Status     `json:"status"`
	RequestedAt    time.Time  `json:"requested_at"`
	AcceptedAt     *time.Time `json:"accepted_at,omitempty"`
	ArrivedAt      *time.Time `json:"arrived_at,omitempty"`
}

// RideRequest is the create-ride input shape. Coordinate bounds are
// enforced by the lat/lng validator rules.
type RideRequest struct {
	OriginLat      float64 `json:"origin_lat" validate:"lat"`
	OriginLon      float64 `json:"origin_lon" validate:"lng"`
	DestinationLat float64 `json:"destination_lat" validate:"lat"`
	DestinationLon float64 `json:"destination_lon" validate:"lng"`
}

// StatusUpdate is the update-ride input shape; status is the only field
// a caller may move.
type StatusUpdate struct {
	Status Status `json:"status"`
}
