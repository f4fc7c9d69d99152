package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/uitgo/trip-service/internal/api/dto"
	"github.com/uitgo/trip-service/internal/domain/location"
	"github.com/uitgo/trip-service/internal/domain/trip"
	"github.com/uitgo/trip-service/internal/domain/vehicle"
	"github.com/uitgo/trip-service/internal/service/lifecycle"
	apperrors "github.com/uitgo/trip-service/pkg/errors"
	"github.com/uitgo/trip-service/pkg/logger"
)

// CreateTripRequest handles POST /v1/trip-requests
func (h *Handlers) CreateTripRequest(c *gin.Context) {
	var req dto.CreateTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	t, err := h.Trips.Create(c.Request.Context(), lifecycle.CreateRequest{
		PassengerID: req.PassengerID,
		Pickup:      placeInput(req.Pickup),
		Dropoff:     placeInput(req.Dropoff),
		VehicleType: vehicle.Class(req.VehicleType),
		Notes:       req.Notes,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, t)
}

func placeInput(p dto.PlaceInput) lifecycle.PlaceInput {
	in := lifecycle.PlaceInput{Address: p.Address}
	// both halves are needed, otherwise the address is geocoded
	if p.Longitude != nil && p.Latitude != nil {
		in.Coordinates = &location.Coordinates{Longitude: *p.Longitude, Latitude: *p.Latitude}
	}
	return in
}

// GetTrip handles GET /v1/trips/:id
func (h *Handlers) GetTrip(c *gin.Context) {
	t, err := h.Trips.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// DeleteTrip handles DELETE /v1/trips/:id
func (h *Handlers) DeleteTrip(c *gin.Context) {
	id := c.Param("id")
	if err := h.Trips.Delete(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Trip deleted successfully", "trip_id": id})
}

// AssignDriver handles PUT /v1/trips/:id/assign-driver
func (h *Handlers) AssignDriver(c *gin.Context) {
	var req dto.DriverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	t, err := h.Trips.Assign(c.Request.Context(), c.Param("id"), req.DriverID)
	h.respondAction(c, t, err, "Driver assigned successfully")
}

// DenyTrip handles POST /v1/trips/:id/deny
func (h *Handlers) DenyTrip(c *gin.Context) {
	var req dto.DriverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	t, err := h.Trips.Deny(c.Request.Context(), c.Param("id"), req.DriverID)
	h.respondAction(c, t, err, "Trip denied successfully - returned to pending")
}

// StartTrip handles POST /v1/trips/:id/start
func (h *Handlers) StartTrip(c *gin.Context) {
	t, err := h.Trips.Start(c.Request.Context(), c.Param("id"))
	h.respondAction(c, t, err, "Trip started successfully")
}

// CompleteTrip handles POST /v1/trips/:id/complete?actual_fare=&discount=&tax=
func (h *Handlers) CompleteTrip(c *gin.Context) {
	var q dto.CompleteTripQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}

	var final *trip.FinalFare
	if q.ActualFare != nil {
		final = &trip.FinalFare{Actual: *q.ActualFare, Discount: q.Discount, Tax: q.Tax}
	}
	t, err := h.Trips.Complete(c.Request.Context(), c.Param("id"), final)
	h.respondAction(c, t, err, "Trip completed successfully")
}

// CancelTrip handles POST /v1/trips/:id/cancel
func (h *Handlers) CancelTrip(c *gin.Context) {
	var req dto.CancelTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	t, err := h.Trips.Cancel(c.Request.Context(), c.Param("id"), lifecycle.CancelRequest{
		CancelledBy: trip.CancelledBy(req.CancelledBy),
		Reason:      req.Reason,
	})
	h.respondAction(c, t, err, "Trip cancelled successfully")
}

// AddPayment handles POST /v1/trips/:id/payment
func (h *Handlers) AddPayment(c *gin.Context) {
	var req dto.AddPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	t, err := h.Trips.AddPayment(c.Request.Context(), c.Param("id"), trip.PaymentMethod(req.Method), req.TransactionID)
	h.respondAction(c, t, err, "Payment info added successfully")
}

// UpdatePayment handles PUT /v1/trips/:id/payment
func (h *Handlers) UpdatePayment(c *gin.Context) {
	var req dto.UpdatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	t, err := h.Trips.UpdatePayment(c.Request.Context(), c.Param("id"), trip.PaymentPatch{
		Status:        trip.PaymentStatus(req.Status),
		TransactionID: req.TransactionID,
		PaidAt:        req.PaidAt,
	})
	h.respondAction(c, t, err, "Payment status updated")
}

// RateTrip handles POST /v1/trips/:id/rating
func (h *Handlers) RateTrip(c *gin.Context) {
	var req dto.RatingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	t, err := h.Trips.Rate(c.Request.Context(), c.Param("id"), req.Stars, req.Comment)
	h.respondAction(c, t, err, "Rating added successfully")
}

// GetRating handles GET /v1/trips/:id/rating
func (h *Handlers) GetRating(c *gin.Context) {
	t, err := h.Trips.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if t.Rating == nil {
		appErr := apperrors.ErrRatingNotFound
		c.JSON(appErr.Status, gin.H{"error": appErr.Message, "code": appErr.Code})
		return
	}
	c.JSON(http.StatusOK, t.Rating)
}

func (h *Handlers) respondAction(c *gin.Context, t *trip.Trip, err error, message string) {
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.TripActionResponse{
		Message: message,
		TripID:  t.ID,
		Status:  t.Status,
		Trip:    t,
	})
}

// ListPassengerTrips handles GET /v1/trips/passenger/:passenger_id
func (h *Handlers) ListPassengerTrips(c *gin.Context) {
	page, ok := h.page(c)
	if !ok {
		return
	}
	trips, err := h.Trips.ListByPassenger(c.Request.Context(), c.Param("passenger_id"), page)
	h.respondList(c, trips, err)
}

// ListDriverTrips handles GET /v1/trips/driver/:driver_id
func (h *Handlers) ListDriverTrips(c *gin.Context) {
	page, ok := h.page(c)
	if !ok {
		return
	}
	trips, err := h.Trips.ListByDriver(c.Request.Context(), c.Param("driver_id"), page)
	h.respondList(c, trips, err)
}

// ListAvailableTrips handles GET /v1/trips/available
func (h *Handlers) ListAvailableTrips(c *gin.Context) {
	page, ok := h.page(c)
	if !ok {
		return
	}
	trips, err := h.Trips.ListAvailable(c.Request.Context(), page)
	h.respondList(c, trips, err)
}

// ListTripsNear handles GET /v1/trips/near
func (h *Handlers) ListTripsNear(c *gin.Context) {
	var q dto.NearQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}

	radius := q.MaxDistance
	if radius == 0 {
		radius = h.Query.DefaultRadius
	}
	if radius < h.Query.MinRadius || radius > h.Query.MaxRadius {
		badRequest(c, fmt.Errorf("max_distance must be between %.0f and %.0f meters", h.Query.MinRadius, h.Query.MaxRadius))
		return
	}
	limit, ok := h.limit(c, q.Limit, h.Query.NearbyDefaultLimit)
	if !ok {
		return
	}

	center := location.Coordinates{Longitude: *q.Longitude, Latitude: *q.Latitude}
	trips, err := h.Trips.Nearby(c.Request.Context(), center, radius, limit)
	h.respondList(c, trips, err)
}

func (h *Handlers) page(c *gin.Context) (trip.Page, bool) {
	var q dto.PageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return trip.Page{}, false
	}
	limit, ok := h.limit(c, q.Limit, h.Query.DefaultLimit)
	if !ok {
		return trip.Page{}, false
	}
	return trip.Page{Skip: q.Skip, Limit: limit}, true
}

// limit applies the default to an omitted limit and rejects one above the maximum.
func (h *Handlers) limit(c *gin.Context, requested, fallback int) (int, bool) {
	if requested == 0 {
		return fallback, true
	}
	if requested > h.Query.MaxLimit {
		badRequest(c, fmt.Errorf("limit must be between 1 and %d", h.Query.MaxLimit))
		return 0, false
	}
	return requested, true
}

func (h *Handlers) respondList(c *gin.Context, trips []*trip.Trip, err error) {
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.Logger.Debug("Trips listed", logger.String("path", c.FullPath()), logger.Int("count", len(trips)))
	c.JSON(http.StatusOK, dto.NewTripSummaries(trips))
}
