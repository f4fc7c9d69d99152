package stats

import (
	"context"
	"fmt"
	"strings"

	"github.com/uitgo/trip-service/internal/domain/trip"
	"github.com/uitgo/trip-service/pkg/logger"
)

// Service aggregates trip statistics for drivers and passengers
type Service struct {
	repo   trip.Repository
	logger *logger.Logger
}

// NewService creates a new statistics service
func NewService(repo trip.Repository, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{repo: repo, logger: log}
}

// ForDriver summarises the trips assigned to driverID.
func (s *Service) ForDriver(ctx context.Context, driverID string) (*trip.Statistics, error) {
	if strings.TrimSpace(driverID) == "" {
		return nil, trip.ErrInvalidDriver
	}
	return s.Compute(ctx, trip.StatsFilter{DriverID: driverID})
}

// ForPassenger summarises the trips requested by passengerID.
func (s *Service) ForPassenger(ctx context.Context, passengerID string) (*trip.Statistics, error) {
	if strings.TrimSpace(passengerID) == "" {
		return nil, trip.ErrInvalidPassenger
	}
	return s.Compute(ctx, trip.StatsFilter{PassengerID: passengerID})
}

// Compute aggregates every trip matching filter. No match is a zero result
// with a nil average, not an error.
func (s *Service) Compute(ctx context.Context, filter trip.StatsFilter) (*trip.Statistics, error) {
	result, err := s.repo.Stats(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("aggregate trips: %w", err)
	}
	if result == nil {
		result = &trip.Statistics{}
	}

	s.logger.Debug("Statistics computed",
		logger.String("driver_id", filter.DriverID),
		logger.String("passenger_id", filter.PassengerID),
		logger.Int64("total_trips", result.TotalTrips),
	)
	return result, nil
}
