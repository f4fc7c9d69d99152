package trip

import (
	"context"

	"github.com/uitgo/trip-service/internal/domain/location"
)

// Page selects a window of a reverse-chronological listing.
type Page struct {
	Skip  int
	Limit int
}

// Repository defines the interface for trip data access
type Repository interface {
	// Create persists a new trip
	Create(ctx context.Context, trip *Trip) error

	// GetByID retrieves a trip by ID, ErrNotFound when absent
	GetByID(ctx context.Context, id string) (*Trip, error)

	// ListByPassenger lists a passenger's trips, newest first
	ListByPassenger(ctx context.Context, passengerID string, page Page) ([]*Trip, error)

	// ListByDriver lists a driver's trips, newest first
	ListByDriver(ctx context.Context, driverID string, page Page) ([]*Trip, error)

	// ListPending lists trips waiting for a driver, newest first
	ListPending(ctx context.Context, page Page) ([]*Trip, error)

	// NearbyPending finds pending trips whose pickup is within radiusMeters
	// of center, nearest first
	NearbyPending(ctx context.Context, center location.Coordinates, radiusMeters float64, limit int) ([]*Trip, error)

	// Apply writes change only if guard holds, atomically. It reports whether
	// a trip was modified; false covers both a missing trip and a failed guard.
	Apply(ctx context.Context, id string, guard Guard, change Change) (bool, error)

	// Stats aggregates the trips matching filter
	Stats(ctx context.Context, filter StatsFilter) (*Statistics, error)

	// Delete removes a trip regardless of its status
	Delete(ctx context.Context, id string) (bool, error)

	// Ping checks the backing store is reachable
	Ping(ctx context.Context) error
}
