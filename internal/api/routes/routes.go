package routes

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"

	"github.com/uitgo/trip-service/internal/api/handlers"
	"github.com/uitgo/trip-service/internal/api/middleware"
	"github.com/uitgo/trip-service/pkg/logger"
)

// Options carries the optional middleware dependencies.
type Options struct {
	// NewRelic enables request tracing when not nil.
	NewRelic *newrelic.Application
	// Redis enables Idempotency-Key handling on trip creation when not nil.
	Redis          *redis.Client
	IdempotencyTTL time.Duration
	Logger         *logger.Logger
}

// SetupRoutes configures all API routes
func SetupRoutes(r *gin.Engine, h *handlers.Handlers, opts Options) {
	if opts.NewRelic != nil {
		r.Use(nrgin.Middleware(opts.NewRelic))
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}

	r.GET("/", h.ServiceInfo)
	r.GET("/health", h.Health)

	v1 := r.Group("/v1")
	{
		v1.GET("/ws", h.HandleWebSocket)

		v1.POST("/fare-estimate", h.EstimateFare)
		v1.GET("/geocode", h.Geocode)

		create := []gin.HandlerFunc{h.CreateTripRequest}
		if opts.Redis != nil {
			create = append([]gin.HandlerFunc{middleware.Idempotency(opts.Redis, opts.IdempotencyTTL, opts.Logger)}, create...)
		}
		v1.POST("/trip-requests", create...)

		trips := v1.Group("/trips")
		{
			// static segments are registered before :id
			trips.GET("/available", h.ListAvailableTrips)
			trips.GET("/near", h.ListTripsNear)
			trips.GET("/passenger/:passenger_id", h.ListPassengerTrips)
			trips.GET("/driver/:driver_id", h.ListDriverTrips)

			trips.GET("/:id", h.GetTrip)
			trips.DELETE("/:id", h.DeleteTrip)
			trips.PUT("/:id/assign-driver", h.AssignDriver)
			trips.POST("/:id/deny", h.DenyTrip)
			trips.POST("/:id/start", h.StartTrip)
			trips.POST("/:id/complete", h.CompleteTrip)
			trips.POST("/:id/cancel", h.CancelTrip)
			trips.POST("/:id/payment", h.AddPayment)
			trips.PUT("/:id/payment", h.UpdatePayment)
			trips.POST("/:id/rating", h.RateTrip)
			trips.GET("/:id/rating", h.GetRating)
		}

		statistics := v1.Group("/statistics")
		{
			statistics.GET("/driver/:driver_id", h.DriverStatistics)
			statistics.GET("/passenger/:passenger_id", h.PassengerStatistics)
		}
	}
}
