package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/example/trips/internal/lifecycle"
	"github.com/example/trips/internal/models"
	"github.com/example/trips/internal/observability"
)

// PostgresStore persists rides in a single rides table. Writes use
// status compare-and-swap predicates, and the per-identity active-ride
// checks run under transaction-scoped advisory locks keyed on the
// identity, so two concurrent creates or accepts for the same user
// serialize instead of racing the check.
type PostgresStore struct {
	db *sql.DB
}

var _ lifecycle.Store = (*PostgresStore)(nil)

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) Close() error { return p.db.Close() }

const rideColumns = `id, passenger_id, driver_id, origin_lat, origin_lon, destination_lat, destination_lon, status, date_requested, date_accepted, date_arrived`

func (p *PostgresStore) Create(ctx context.Context, ride *models.Ride) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("create ride: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1)::bigint)`, ride.PassengerID); err != nil {
		return fmt.Errorf("create ride: lock passenger: %w", err)
	}
	var busy bool
	err = tx.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM rides WHERE (passenger_id=$1 OR driver_id=$1) AND status IN (0,1,2))`,
		ride.PassengerID).Scan(&busy)
	if err != nil {
		return fmt.Errorf("create ride: active check: %w", err)
	}
	if busy {
		return fmt.Errorf("create ride: %w", lifecycle.ErrActiveRideExists)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO rides(id, passenger_id, origin_lat, origin_lon, destination_lat, destination_lon, status, date_requested)
		 VALUES($1,$2,$3,$4,$5,$6,$7,$8)`,
		ride.ID, ride.PassengerID, ride.OriginLat, ride.OriginLon,
		ride.DestinationLat, ride.DestinationLon, int(ride.Status), ride.RequestedAt)
	if err != nil {
		return fmt.Errorf("create ride: insert: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("create ride: commit: %w", err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*models.Ride, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+rideColumns+` FROM rides WHERE id=$1`, id)
	return scanRide(row, id)
}

func (p *PostgresStore) ActiveFor(ctx context.Context, userID string) (*models.Ride, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+rideColumns+` FROM rides WHERE (passenger_id=$1 OR driver_id=$1) AND status IN (0,1,2) LIMIT 1`,
		userID)
	return scanRide(row, userID)
}

func (p *PostgresStore) ListFor(ctx context.Context, userID string, limit, offset int) ([]*models.Ride, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+rideColumns+` FROM rides WHERE passenger_id=$1 OR driver_id=$1
		 ORDER BY date_requested DESC LIMIT $2 OFFSET $3`,
		userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list rides for %s: %w", userID, err)
	}
	defer rows.Close()
	var out []*models.Ride
	for rows.Next() {
		r, err := scanRide(rows, userID)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *PostgresStore) Accept(ctx context.Context, rideID, driverID string, at time.Time) (*models.Ride, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("accept ride: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1)::bigint)`, driverID); err != nil {
		return nil, fmt.Errorf("accept ride: lock driver: %w", err)
	}
	var busy bool
	err = tx.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM rides WHERE (passenger_id=$1 OR driver_id=$1) AND status IN (0,1,2))`,
		driverID).Scan(&busy)
	if err != nil {
		return nil, fmt.Errorf("accept ride: active check: %w", err)
	}
	if busy {
		return nil, fmt.Errorf("accept ride %s: %w", rideID, lifecycle.ErrActiveRideExists)
	}
	row := tx.QueryRowContext(ctx,
		`UPDATE rides SET status=$2, driver_id=$3, date_accepted=$4 WHERE id=$1 AND status=$5 RETURNING `+rideColumns,
		rideID, int(models.StatusAccepted), driverID, at, int(models.StatusNotAccepted))
	ride, err := scanRide(row, rideID)
	if err != nil {
		if errors.Is(err, lifecycle.ErrNotFound) {
			return nil, p.classifyMiss(ctx, rideID)
		}
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("accept ride: commit: %w", err)
	}
	return ride, nil
}

func (p *PostgresStore) Transition(ctx context.Context, rideID string, from, to models.Status, arrivedAt *time.Time) (*models.Ride, error) {
	row := p.db.QueryRowContext(ctx,
		`UPDATE rides SET status=$2, date_arrived=COALESCE($3, date_arrived) WHERE id=$1 AND status=$4 RETURNING `+rideColumns,
		rideID, int(to), arrivedAt, int(from))
	ride, err := scanRide(row, rideID)
	if err != nil {
		if errors.Is(err, lifecycle.ErrNotFound) {
			return nil, p.classifyMiss(ctx, rideID)
		}
		return nil, err
	}
	return ride, nil
}

// classifyMiss decides whether a zero-row compare-and-swap lost the race
// or targeted an unknown ride.
func (p *PostgresStore) classifyMiss(ctx context.Context, rideID string) error {
	var exists bool
	if err := p.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM rides WHERE id=$1)`, rideID).Scan(&exists); err != nil {
		return fmt.Errorf("ride %s: %w", rideID, err)
	}
	if exists {
		observability.TransitionConflicts.Inc()
		return fmt.Errorf("ride %s: %w", rideID, lifecycle.ErrConflict)
	}
	return fmt.Errorf("ride %s: %w", rideID, lifecycle.ErrNotFound)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRide(row rowScanner, key string) (*models.Ride, error) {
	var (
		r        models.Ride
		status   int
		driverID sql.NullString
		accepted sql.NullTime
		arrived  sql.NullTime
	)
	err := row.Scan(&r.ID, &r.PassengerID, &driverID,
		&r.OriginLat, &r.OriginLon, &r.DestinationLat, &r.DestinationLon,
		&status, &r.RequestedAt, &accepted, &arrived)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("ride %s: %w", key, lifecycle.ErrNotFound)
		}
		return nil, fmt.Errorf("scan ride %s: %w", key, err)
	}
	r.Status = models.Status(status)
	if driverID.Valid {
		r.DriverID = &driverID.String
	}
	if accepted.Valid {
		r.AcceptedAt = &accepted.Time
	}
	if arrived.Valid {
		r.ArrivedAt = &arrived.Time
	}
	return &r, nil
}
