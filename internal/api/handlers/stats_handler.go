package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// DriverStatistics handles GET /v1/statistics/driver/:driver_id
func (h *Handlers) DriverStatistics(c *gin.Context) {
	stats, err := h.Stats.ForDriver(c.Request.Context(), c.Param("driver_id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// PassengerStatistics handles GET /v1/statistics/passenger/:passenger_id
func (h *Handlers) PassengerStatistics(c *gin.Context) {
	stats, err := h.Stats.ForPassenger(c.Request.Context(), c.Param("passenger_id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
