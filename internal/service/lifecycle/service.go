package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/uitgo/trip-service/internal/domain/location"
	"github.com/uitgo/trip-service/internal/domain/trip"
	"github.com/uitgo/trip-service/internal/domain/vehicle"
	"github.com/uitgo/trip-service/internal/service/geo"
	"github.com/uitgo/trip-service/pkg/logger"
)

// Geocoder resolves an address to coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (location.Coordinates, error)
}

// Router computes the route a trip will follow.
type Router interface {
	Route(ctx context.Context, origin, destination location.Coordinates, class vehicle.Class) (*geo.Route, error)
}

// FareEstimator prices a distance for a vehicle class.
type FareEstimator interface {
	EstimateFare(distanceMeters float64, class vehicle.Class) float64
}

// Notifier is told about every trip that was created or changed. It must
// not block for long; failures are its own to log.
type Notifier interface {
	TripChanged(ctx context.Context, operation string, t *trip.Trip)
}

// Metrics receives lifecycle counters.
type Metrics interface {
	RecordTripCreated(vehicleType string)
	RecordTripTransition(operation string, status string, outcome string)
	RecordAssignmentConflict()
}

// Service is the trip lifecycle engine. Every status change goes through
// Repository.Apply with a guard on the expected prior state.
type Service struct {
	repo     trip.Repository
	geocoder Geocoder
	router   Router
	fares    FareEstimator
	notifier Notifier
	metrics  Metrics
	logger   *logger.Logger
	now      func() time.Time
	newID    func() string
}

// Option customises a Service.
type Option func(*Service)

// WithNotifier publishes trip changes through n.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithMetrics records lifecycle metrics through m.
func WithMetrics(m Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator replaces the UUIDv4 trip id generator.
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) { s.newID = gen }
}

// NewService creates a new lifecycle service
func NewService(repo trip.Repository, geocoder Geocoder, router Router, fares FareEstimator, log *logger.Logger, opts ...Option) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	s := &Service{
		repo:     repo,
		geocoder: geocoder,
		router:   router,
		fares:    fares,
		notifier: nopNotifier{},
		metrics:  nopMetrics{},
		logger:   log,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PlaceInput is a pickup or dropoff as supplied by the passenger. Coordinates
// are geocoded from Address when absent.
type PlaceInput struct {
	Address     string
	Coordinates *location.Coordinates
}

// CreateRequest describes a new trip request.
type CreateRequest struct {
	PassengerID string
	Pickup      PlaceInput
	Dropoff     PlaceInput
	VehicleType vehicle.Class
	Notes       string
}

// Create records a new PENDING trip. Missing coordinates are geocoded, the
// route is computed for the requested class and the fare is estimated from
// its distance.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*trip.Trip, error) {
	if strings.TrimSpace(req.PassengerID) == "" {
		return nil, trip.ErrInvalidPassenger
	}
	if !req.VehicleType.IsValid() {
		return nil, fmt.Errorf("%w: %q", trip.ErrInvalidVehicleType, req.VehicleType)
	}

	pickup, err := s.resolvePlace(ctx, "pickup", req.Pickup)
	if err != nil {
		return nil, err
	}
	dropoff, err := s.resolvePlace(ctx, "dropoff", req.Dropoff)
	if err != nil {
		return nil, err
	}

	route, err := s.router.Route(ctx, pickup.Location.Coords(), dropoff.Location.Coords(), req.VehicleType)
	if err != nil {
		return nil, fmt.Errorf("compute route: %w", err)
	}

	now := s.now()
	t := &trip.Trip{
		ID:          s.newID(),
		PassengerID: req.PassengerID,
		Status:      trip.StatusPending,
		VehicleType: req.VehicleType,
		Pickup:      pickup,
		Dropoff:     dropoff,
		RouteInfo: &trip.RouteInfo{
			DistanceMeters:  route.DistanceMeters,
			DurationSeconds: route.DurationSeconds,
			Geometry:        route.Geometry,
		},
		Fare:      trip.Fare{Estimated: s.fares.EstimateFare(route.DistanceMeters, req.VehicleType)},
		History:   []trip.HistoryEntry{{Status: trip.StatusPending, Timestamp: now}},
		Notes:     req.Notes,
		CreatedAt: now,
	}

	if err := s.repo.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("create trip: %w", err)
	}

	s.logger.Info("Trip requested",
		logger.TripID(t.ID),
		logger.String("passenger_id", t.PassengerID),
		logger.String("vehicle_type", t.VehicleType.String()),
		logger.Float64("distance_m", route.DistanceMeters),
		logger.Float64("estimated_fare", t.Fare.Estimated),
	)
	s.metrics.RecordTripCreated(t.VehicleType.String())
	s.notifier.TripChanged(ctx, OpCreate, t)

	return t, nil
}

func (s *Service) resolvePlace(ctx context.Context, field string, in PlaceInput) (location.Place, error) {
	address := strings.TrimSpace(in.Address)
	if in.Coordinates != nil {
		if !in.Coordinates.Valid() {
			return location.Place{}, fmt.Errorf("%w: %s coordinates out of range", trip.ErrInvalidLocation, field)
		}
		return location.Place{Address: address, Location: location.NewGeoPoint(*in.Coordinates)}, nil
	}
	if address == "" {
		return location.Place{}, fmt.Errorf("%w: %s needs an address or coordinates", trip.ErrInvalidLocation, field)
	}

	coords, err := s.geocoder.Geocode(ctx, address)
	if err != nil {
		return location.Place{}, fmt.Errorf("geocode %s: %w", field, err)
	}
	return location.Place{Address: address, Location: location.NewGeoPoint(coords)}, nil
}

// Get returns a trip by id.
func (s *Service) Get(ctx context.Context, id string) (*trip.Trip, error) {
	if !validID(id) {
		return nil, trip.ErrNotFound
	}
	return s.repo.GetByID(ctx, id)
}

// ListByPassenger lists a passenger's trips, newest first.
func (s *Service) ListByPassenger(ctx context.Context, passengerID string, page trip.Page) ([]*trip.Trip, error) {
	return s.repo.ListByPassenger(ctx, passengerID, page)
}

// ListByDriver lists a driver's trips, newest first.
func (s *Service) ListByDriver(ctx context.Context, driverID string, page trip.Page) ([]*trip.Trip, error) {
	return s.repo.ListByDriver(ctx, driverID, page)
}

// ListAvailable lists trips still waiting for a driver.
func (s *Service) ListAvailable(ctx context.Context, page trip.Page) ([]*trip.Trip, error) {
	return s.repo.ListPending(ctx, page)
}

// Nearby lists pending trips whose pickup lies within radiusMeters of center,
// nearest first.
func (s *Service) Nearby(ctx context.Context, center location.Coordinates, radiusMeters float64, limit int) ([]*trip.Trip, error) {
	if !center.Valid() {
		return nil, trip.ErrInvalidLocation
	}
	return s.repo.NearbyPending(ctx, center, radiusMeters, limit)
}

// Delete removes a trip whatever its status.
func (s *Service) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return trip.ErrNotFound
	}
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("delete trip: %w", err)
	}
	if !deleted {
		return trip.ErrNotFound
	}
	s.logger.Warn("Trip deleted", logger.TripID(id))
	return nil
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

type nopNotifier struct{}

func (nopNotifier) TripChanged(context.Context, string, *trip.Trip) {}

type nopMetrics struct{}

func (nopMetrics) RecordTripCreated(string)                    {}
func (nopMetrics) RecordTripTransition(string, string, string) {}
func (nopMetrics) RecordAssignmentConflict()                   {}
