package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/uitgo/trip-service/internal/domain/location"
	"github.com/uitgo/trip-service/internal/domain/trip"
)

// TripRepository keeps trips in a map guarded by one RWMutex. Apply holds the
// write lock across guard evaluation and write, which is what makes it atomic.
// Trips are cloned on the way in and out so callers never share state with
// the store.
type TripRepository struct {
	mu    sync.RWMutex
	trips map[string]*trip.Trip
}

func NewTripRepository() *TripRepository {
	return &TripRepository{
		trips: make(map[string]*trip.Trip),
	}
}

func (r *TripRepository) Create(ctx context.Context, t *trip.Trip) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.trips[t.ID]; exists {
		return fmt.Errorf("trip %s already exists", t.ID)
	}
	r.trips[t.ID] = t.Clone()
	return nil
}

func (r *TripRepository) GetByID(ctx context.Context, id string) (*trip.Trip, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, exists := r.trips[id]
	if !exists {
		return nil, trip.ErrNotFound
	}
	return t.Clone(), nil
}

func (r *TripRepository) ListByPassenger(ctx context.Context, passengerID string, page trip.Page) ([]*trip.Trip, error) {
	return r.list(page, func(t *trip.Trip) bool { return t.PassengerID == passengerID }), nil
}

func (r *TripRepository) ListByDriver(ctx context.Context, driverID string, page trip.Page) ([]*trip.Trip, error) {
	return r.list(page, func(t *trip.Trip) bool { return t.DriverID == driverID }), nil
}

func (r *TripRepository) ListPending(ctx context.Context, page trip.Page) ([]*trip.Trip, error) {
	return r.list(page, func(t *trip.Trip) bool { return t.Status == trip.StatusPending }), nil
}

// NearbyPending is a linear scan with haversine distances.
func (r *TripRepository) NearbyPending(ctx context.Context, center location.Coordinates, radiusMeters float64, limit int) ([]*trip.Trip, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	type hit struct {
		t    *trip.Trip
		dist float64
	}
	var hits []hit
	for _, t := range r.trips {
		if t.Status != trip.StatusPending {
			continue
		}
		d := location.DistanceMeters(center, t.Pickup.Location.Coords())
		if d <= radiusMeters {
			hits = append(hits, hit{t: t, dist: d})
		}
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].dist < hits[j].dist })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}

	out := make([]*trip.Trip, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.t.Clone())
	}
	return out, nil
}

func (r *TripRepository) Apply(ctx context.Context, id string, guard trip.Guard, change trip.Change) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, exists := r.trips[id]
	if !exists || !guard.Allows(t) {
		return false, nil
	}
	change.ApplyTo(t)
	return true, nil
}

func (r *TripRepository) Stats(ctx context.Context, filter trip.StatsFilter) (*trip.Statistics, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matching []*trip.Trip
	for _, t := range r.trips {
		if filter.Matches(t) {
			matching = append(matching, t)
		}
	}
	return trip.Summarize(matching), nil
}

func (r *TripRepository) Delete(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.trips[id]; !exists {
		return false, nil
	}
	delete(r.trips, id)
	return true, nil
}

func (r *TripRepository) Ping(ctx context.Context) error {
	return nil
}

// list returns matching trips newest first, windowed by page.
func (r *TripRepository) list(page trip.Page, match func(*trip.Trip) bool) []*trip.Trip {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*trip.Trip
	for _, t := range r.trips {
		if match(t) {
			out = append(out, t)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if page.Skip >= len(out) {
		return []*trip.Trip{}
	}
	out = out[page.Skip:]
	if page.Limit > 0 && len(out) > page.Limit {
		out = out[:page.Limit]
	}

	clones := make([]*trip.Trip, len(out))
	for i, t := range out {
		clones[i] = t.Clone()
	}
	return clones
}
