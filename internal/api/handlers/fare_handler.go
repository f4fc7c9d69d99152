package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/uitgo/trip-service/internal/api/dto"
	"github.com/uitgo/trip-service/internal/domain/location"
	"github.com/uitgo/trip-service/pkg/logger"
)

// EstimateFare handles POST /v1/fare-estimate
func (h *Handlers) EstimateFare(c *gin.Context) {
	var req dto.FareEstimateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	pickup := location.Coordinates{Longitude: *req.Pickup.Longitude, Latitude: *req.Pickup.Latitude}
	dropoff := location.Coordinates{Longitude: *req.Dropoff.Longitude, Latitude: *req.Dropoff.Latitude}

	estimates, err := h.Fares.EstimateAll(c.Request.Context(), pickup, dropoff)
	if err != nil {
		h.respondError(c, err)
		return
	}

	for _, e := range estimates {
		h.Metrics.RecordFareEstimated(e.VehicleType.String(), e.DistanceMeters, e.EstimatedFare)
	}
	h.Logger.Info("Fare estimated",
		logger.Float64("pickup_lat", pickup.Latitude),
		logger.Float64("pickup_lng", pickup.Longitude),
		logger.Int("classes", len(estimates)),
	)

	c.JSON(http.StatusOK, dto.FareEstimateResponse{Estimates: estimates})
}

// Geocode handles GET /v1/geocode?address=
func (h *Handlers) Geocode(c *gin.Context) {
	var q dto.GeocodeQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}

	coords, err := h.Geocoder.Geocode(c.Request.Context(), q.Address)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.GeocodeResponse{
		Address:   q.Address,
		Longitude: coords.Longitude,
		Latitude:  coords.Latitude,
	})
}
