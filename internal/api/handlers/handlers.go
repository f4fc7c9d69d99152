package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	gorilla "github.com/gorilla/websocket"

	"github.com/uitgo/trip-service/internal/config"
	"github.com/uitgo/trip-service/internal/domain/location"
	"github.com/uitgo/trip-service/internal/domain/trip"
	"github.com/uitgo/trip-service/internal/service/geo"
	"github.com/uitgo/trip-service/internal/service/lifecycle"
	"github.com/uitgo/trip-service/internal/service/pricing"
	"github.com/uitgo/trip-service/internal/service/stats"
	apperrors "github.com/uitgo/trip-service/pkg/errors"
	"github.com/uitgo/trip-service/pkg/logger"
	"github.com/uitgo/trip-service/pkg/websocket"
)

// FareEstimator prices a trip for every vehicle class.
type FareEstimator interface {
	EstimateAll(ctx context.Context, origin, destination location.Coordinates) ([]pricing.Estimate, error)
}

// Metrics receives transport-level counters.
type Metrics interface {
	RecordFareEstimated(vehicleType string, distanceMeters, fare float64)
}

// HealthCheck is one dependency checked by GET /health.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// ServiceInfo is reported by GET /.
type ServiceInfo struct {
	Name    string
	Version string
	Store   string
}

// Handlers holds all handler dependencies
type Handlers struct {
	Trips    *lifecycle.Service
	Stats    *stats.Service
	Fares    FareEstimator
	Geocoder lifecycle.Geocoder
	Hub      *websocket.Hub
	Metrics  Metrics
	Logger   *logger.Logger
	Query    config.QueryConfig
	Info     ServiceInfo
	Checks   []HealthCheck
	Upgrader gorilla.Upgrader
}

// NewHandlers fills in defaults for the optional fields of h.
func NewHandlers(h Handlers) *Handlers {
	if h.Logger == nil {
		h.Logger = logger.NewNop()
	}
	if h.Metrics == nil {
		h.Metrics = nopMetrics{}
	}
	if h.Upgrader.CheckOrigin == nil {
		h.Upgrader.CheckOrigin = func(r *http.Request) bool { return true }
	}
	return &h
}

// ServiceInfo handles GET /
func (h *Handlers) ServiceInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service":  h.Info.Name,
		"version":  h.Info.Version,
		"status":   "running",
		"database": h.Info.Store,
	})
}

// Health handles GET /health
func (h *Handlers) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := gin.H{}
	for _, hc := range h.Checks {
		if err := hc.Check(ctx); err != nil {
			h.Logger.Warn("Health check failed", logger.String("dependency", hc.Name), logger.Err(err))
			checks[hc.Name] = "unhealthy"
			status = http.StatusServiceUnavailable
			continue
		}
		checks[hc.Name] = "healthy"
	}

	if status != http.StatusOK {
		appErr := apperrors.ServiceUnavailable("dependency unavailable", nil)
		c.JSON(status, gin.H{"status": "unhealthy", "code": appErr.Code, "checks": checks})
		return
	}
	c.JSON(status, gin.H{"status": "healthy", "checks": checks})
}

// mapError turns a service error into the envelope shown to clients. A
// missing trip and a refused conditional update look the same from outside.
func mapError(err error) *apperrors.AppError {
	switch {
	case errors.Is(err, trip.ErrNotFound), errors.Is(err, trip.ErrPreconditionFailed):
		return apperrors.ErrTripUnavailable
	case errors.Is(err, trip.ErrInvalidState):
		return apperrors.ErrInvalidState
	case errors.Is(err, geo.ErrUpstream):
		return apperrors.ErrRouteUnavailable
	case errors.Is(err, geo.ErrNotFound):
		return apperrors.ErrAddressNotFound
	case errors.Is(err, geo.ErrNoRoute), errors.Is(err, pricing.ErrNoEstimates):
		return apperrors.ErrCannotCompute
	case isValidation(err):
		return apperrors.BadRequest(err.Error(), err)
	}
	return apperrors.GetAppError(err)
}

func isValidation(err error) bool {
	for _, target := range []error{
		trip.ErrInvalidPassenger,
		trip.ErrInvalidDriver,
		trip.ErrInvalidVehicleType,
		trip.ErrInvalidLocation,
		trip.ErrInvalidRating,
		trip.ErrInvalidPayment,
		trip.ErrInvalidCancellation,
		trip.ErrInvalidFare,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (h *Handlers) respondError(c *gin.Context, err error) {
	appErr := mapError(err)

	var refused *trip.RefusedError
	switch {
	case appErr.Status == http.StatusBadGateway:
		h.Logger.Warn("Routing provider failed", logger.Err(err))
	case appErr.Status >= http.StatusInternalServerError:
		h.Logger.Error("Request failed", logger.Err(err), logger.String("path", c.FullPath()))
	case errors.As(err, &refused):
		h.Logger.Debug("Request refused",
			logger.TripID(refused.TripID),
			logger.String("outcome", string(refused.Outcome)),
		)
	}

	c.JSON(appErr.Status, gin.H{"error": appErr.Message, "code": appErr.Code})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload", "details": err.Error()})
}

type nopMetrics struct{}

func (nopMetrics) RecordFareEstimated(string, float64, float64) {}
