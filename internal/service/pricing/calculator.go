package pricing

import (
	"context"
	"errors"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/uitgo/trip-service/internal/domain/location"
	"github.com/uitgo/trip-service/internal/domain/vehicle"
	"github.com/uitgo/trip-service/internal/service/geo"
	"github.com/uitgo/trip-service/pkg/logger"
)

// ErrNoEstimates is returned by EstimateAll when no vehicle class could be priced.
var ErrNoEstimates = errors.New("no fare estimates available")

// Router computes a route for a vehicle class. Implemented by *geo.Client.
type Router interface {
	Route(ctx context.Context, origin, destination location.Coordinates, class vehicle.Class) (*geo.Route, error)
}

// Rate is one row of the fare table.
type Rate struct {
	BaseFare  float64
	PerKMRate float64
}

// Config holds pricing configuration
type Config struct {
	Rates map[vehicle.Class]Rate
	// Default prices any class missing from Rates.
	Default Rate
	// RoundTo is the currency unit fares are rounded to.
	RoundTo float64
}

// DefaultConfig returns the built-in fare table.
func DefaultConfig() Config {
	return Config{
		Rates: map[vehicle.Class]Rate{
			vehicle.Motorbike: {BaseFare: 10000, PerKMRate: 5000},
			vehicle.Car4:      {BaseFare: 20000, PerKMRate: 10000},
			vehicle.Car7:      {BaseFare: 25000, PerKMRate: 12000},
		},
		Default: Rate{BaseFare: 20000, PerKMRate: 10000},
		RoundTo: 1000,
	}
}

// Estimate is the priced route for one vehicle class.
type Estimate struct {
	VehicleType     vehicle.Class `json:"vehicle_type"`
	DistanceMeters  float64       `json:"distance"`
	DurationSeconds float64       `json:"duration"`
	EstimatedFare   float64       `json:"estimated_fare"`
}

// Service handles fare calculation
type Service struct {
	router Router
	config Config
	logger *logger.Logger
}

// NewService creates a new pricing service
func NewService(router Router, config Config, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{
		router: router,
		config: config,
		logger: log,
	}
}

// RateFor returns the fare table row for class, or the default row.
func (s *Service) RateFor(class vehicle.Class) Rate {
	if rate, ok := s.config.Rates[class]; ok {
		return rate
	}
	return s.config.Default
}

// EstimateFare prices a distance for a vehicle class:
// base + km * rate, rounded to the nearest RoundTo.
func (s *Service) EstimateFare(distanceMeters float64, class vehicle.Class) float64 {
	rate := s.RateFor(class)
	fare := rate.BaseFare + (distanceMeters/1000)*rate.PerKMRate
	return roundTo(fare, s.config.RoundTo)
}

// EstimateAll routes and prices the trip for every supported class in
// parallel. A class whose route lookup fails is left out; results keep the
// order of vehicle.All.
func (s *Service) EstimateAll(ctx context.Context, origin, destination location.Coordinates) ([]Estimate, error) {
	results := make([]*Estimate, len(vehicle.All))

	// Goroutines never return an error so one failed class cannot cancel the rest.
	var g errgroup.Group
	for i, class := range vehicle.All {
		g.Go(func() error {
			route, err := s.router.Route(ctx, origin, destination, class)
			if err != nil {
				s.logger.Warn("Fare estimate skipped",
					logger.String("vehicle_type", class.String()),
					logger.Err(err),
				)
				return nil
			}
			results[i] = &Estimate{
				VehicleType:     class,
				DistanceMeters:  route.DistanceMeters,
				DurationSeconds: route.DurationSeconds,
				EstimatedFare:   s.EstimateFare(route.DistanceMeters, class),
			}
			return nil
		})
	}
	_ = g.Wait()

	estimates := make([]Estimate, 0, len(results))
	for _, e := range results {
		if e != nil {
			estimates = append(estimates, *e)
		}
	}
	if len(estimates) == 0 {
		return nil, ErrNoEstimates
	}
	return estimates, nil
}

func roundTo(amount, unit float64) float64 {
	if unit <= 0 {
		return amount
	}
	return math.Round(amount/unit) * unit
}
