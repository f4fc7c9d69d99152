package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/uitgo/trip-service/pkg/logger"
	"github.com/uitgo/trip-service/pkg/websocket"
)

// HandleWebSocket handles GET /v1/ws?user_id=&user_type=passenger|driver[&trip_id=]
func (h *Handlers) HandleWebSocket(c *gin.Context) {
	userID := c.Query("user_id")
	userType := c.Query("user_type")
	if userID == "" || !websocket.ValidUserType(userType) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id and user_type (passenger or driver) are required"})
		return
	}
	if h.Hub == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "live updates are disabled"})
		return
	}

	conn, err := h.Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.Logger.Error("Failed to upgrade to WebSocket", logger.Err(err))
		return
	}

	client := websocket.NewClient(h.Hub, conn, userID, userType, h.Logger)
	if tripID := c.Query("trip_id"); tripID != "" {
		client.Subscribe(tripID)
	}
	h.Hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}
