package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/uitgo/trip-service/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 256
)

// Client is one WebSocket connection of a passenger or driver
type Client struct {
	ID       string
	UserID   string
	UserType string
	Hub      *Hub
	Conn     *websocket.Conn
	Send     chan []byte

	mu    sync.RWMutex
	trips map[string]bool
	log   *logger.Logger
}

// ClientMessage is a command sent by the client.
type ClientMessage struct {
	Type   string `json:"type"`
	TripID string `json:"trip_id,omitempty"`
}

func NewClient(hub *Hub, conn *websocket.Conn, userID, userType string, log *logger.Logger) *Client {
	if log == nil {
		log = logger.NewNop()
	}
	return &Client{
		ID:       uuid.NewString(),
		UserID:   userID,
		UserType: userType,
		Hub:      hub,
		Conn:     conn,
		Send:     make(chan []byte, sendBuffer),
		trips:    make(map[string]bool),
		log:      log,
	}
}

// ReadPump reads client commands until the connection fails, then unregisters.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn("WebSocket read error", logger.Err(err), logger.String("client_id", c.ID))
			}
			return
		}
		c.handleMessage(message)
	}
}

// WritePump drains Send to the connection and keeps it alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// one frame per event; clients parse each frame as a single JSON document
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(raw []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.log.Warn("Failed to unmarshal client message", logger.Err(err), logger.String("client_id", c.ID))
		return
	}

	switch msg.Type {
	case "subscribe":
		if msg.TripID == "" {
			c.SendMessage(Message{Type: "error", Data: "trip_id is required"})
			return
		}
		c.Subscribe(msg.TripID)
		c.SendMessage(Message{Type: "subscribed", Data: msg.TripID})
	case "unsubscribe":
		c.Unsubscribe(msg.TripID)
	case "ping":
		c.SendMessage(Message{Type: "pong"})
	default:
		c.log.Warn("Unknown message type",
			logger.String("type", msg.Type),
			logger.String("client_id", c.ID),
		)
	}
}

// Subscribe subscribes the client to a trip's events
func (c *Client) Subscribe(tripID string) {
	c.mu.Lock()
	c.trips[tripID] = true
	c.mu.Unlock()
	c.log.Debug("Client subscribed to trip",
		logger.String("client_id", c.ID),
		logger.TripID(tripID),
	)
}

func (c *Client) Unsubscribe(tripID string) {
	c.mu.Lock()
	delete(c.trips, tripID)
	c.mu.Unlock()
}

func (c *Client) IsSubscribedToTrip(tripID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.trips[tripID]
}

// SendMessage queues a message for this client only.
func (c *Client) SendMessage(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.log.Error("Failed to marshal message", logger.Err(err), logger.String("client_id", c.ID))
		return
	}

	select {
	case c.Send <- data:
	default:
		c.log.Warn("Client send buffer full", logger.String("client_id", c.ID))
	}
}
