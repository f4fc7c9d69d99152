package stats

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uitgo/trip-service/internal/domain/trip"
	"github.com/uitgo/trip-service/internal/repository/memory"
)

func seed(t *testing.T, repo *memory.TripRepository, trips ...*trip.Trip) {
	t.Helper()
	for _, tr := range trips {
		require.NoError(t, repo.Create(context.Background(), tr))
	}
}

func completed(id, driver, passenger string, actual float64, stars int) *trip.Trip {
	tr := &trip.Trip{ID: id, DriverID: driver, PassengerID: passenger, Status: trip.StatusCompleted}
	tr.Fare.Actual = &actual
	if stars > 0 {
		tr.Rating = &trip.Rating{Stars: stars}
	}
	return tr
}

func TestForDriver(t *testing.T) {
	repo := memory.NewTripRepository()
	seed(t, repo,
		completed("a", "d1", "p1", 100000, 5),
		completed("b", "d1", "p2", 50000, 0),
		completed("c", "d1", "p2", 30000, 2),
		&trip.Trip{ID: "d", DriverID: "d1", PassengerID: "p1", Status: trip.StatusCancelled},
		&trip.Trip{ID: "e", DriverID: "d1", PassengerID: "p1", Status: trip.StatusOnTrip},
		completed("f", "d2", "p1", 999999, 1),
	)
	svc := NewService(repo, nil)

	stats, err := svc.ForDriver(context.Background(), "d1")

	require.NoError(t, err)
	assert.Equal(t, int64(5), stats.TotalTrips)
	assert.Equal(t, int64(3), stats.CompletedTrips)
	assert.Equal(t, int64(1), stats.CancelledTrips)
	assert.Equal(t, 180000.0, stats.TotalRevenue)
	require.NotNil(t, stats.AverageRating)
	assert.InDelta(t, 3.5, *stats.AverageRating, 1e-9, "unrated trips are excluded")
}

func TestForPassenger(t *testing.T) {
	repo := memory.NewTripRepository()
	seed(t, repo,
		completed("a", "d1", "p1", 100000, 5),
		completed("b", "d2", "p1", 40000, 3),
		completed("c", "d1", "p2", 30000, 1),
	)
	svc := NewService(repo, nil)

	stats, err := svc.ForPassenger(context.Background(), "p1")

	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalTrips)
	assert.Equal(t, 140000.0, stats.TotalRevenue)
	assert.InDelta(t, 4.0, *stats.AverageRating, 1e-9)
}

func TestCompute_EmptySet(t *testing.T) {
	svc := NewService(memory.NewTripRepository(), nil)

	stats, err := svc.ForDriver(context.Background(), "ghost")

	require.NoError(t, err)
	assert.Equal(t, &trip.Statistics{}, stats)
	assert.Nil(t, stats.AverageRating)
}

func TestCompute_RequiresID(t *testing.T) {
	svc := NewService(memory.NewTripRepository(), nil)

	_, err := svc.ForDriver(context.Background(), " ")
	assert.ErrorIs(t, err, trip.ErrInvalidDriver)

	_, err = svc.ForPassenger(context.Background(), "")
	assert.ErrorIs(t, err, trip.ErrInvalidPassenger)
}

type failingRepo struct {
	trip.Repository
}

func (failingRepo) Stats(context.Context, trip.StatsFilter) (*trip.Statistics, error) {
	return nil, errors.New("connection reset")
}

func TestCompute_StoreError(t *testing.T) {
	svc := NewService(failingRepo{}, nil)

	_, err := svc.Compute(context.Background(), trip.StatsFilter{})

	assert.ErrorContains(t, err, "connection reset")
}
