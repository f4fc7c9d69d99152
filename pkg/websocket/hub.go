package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/uitgo/trip-service/pkg/logger"
)

// User types a client can connect as.
const (
	UserTypePassenger = "passenger"
	UserTypeDriver    = "driver"
)

// ValidUserType reports whether t is a known user type.
func ValidUserType(t string) bool {
	return t == UserTypePassenger || t == UserTypeDriver
}

// Hub maintains active client connections and routes messages to them
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
	logger     *logger.Logger
}

// Message is the envelope written to clients
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// NewHub creates a new WebSocket hub
func NewHub(log *logger.Logger) *Hub {
	if log == nil {
		log = logger.NewNop()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     log,
	}
}

// Run processes registrations until ctx is cancelled, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		h.mu.Lock()
		for client := range h.clients {
			delete(h.clients, client)
			close(client.Send)
		}
		h.mu.Unlock()
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Info("Client registered",
				logger.String("client_id", client.ID),
				logger.String("user_id", client.UserID),
				logger.String("user_type", client.UserType),
			)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
				h.logger.Info("Client unregistered", logger.String("client_id", client.ID))
			}
			h.mu.Unlock()
		}
	}
}

// Register registers a new client. It is a no-op once the hub has stopped.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

// Unregister unregisters a client
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// BroadcastToTrip sends a message to every client subscribed to the trip.
func (h *Hub) BroadcastToTrip(tripID string, message Message) int {
	return h.deliver(message, func(c *Client) bool { return c.IsSubscribedToTrip(tripID) })
}

// BroadcastToUser sends a message to all connections of one user.
func (h *Hub) BroadcastToUser(userID, userType string, message Message) int {
	return h.deliver(message, func(c *Client) bool {
		return c.UserID == userID && c.UserType == userType
	})
}

// BroadcastToType sends a message to all clients of a user type.
func (h *Hub) BroadcastToType(userType string, message Message) int {
	return h.deliver(message, func(c *Client) bool { return c.UserType == userType })
}

// deliver writes message to every matching client and returns how many
// accepted it. A client with a full buffer misses the message.
func (h *Hub) deliver(message Message, match func(*Client) bool) int {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("Failed to marshal message", logger.Err(err), logger.String("type", message.Type))
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := 0
	for client := range h.clients {
		if !match(client) {
			continue
		}
		select {
		case client.Send <- data:
			sent++
		default:
			h.logger.Warn("Client send buffer full",
				logger.String("client_id", client.ID),
				logger.String("type", message.Type),
			)
		}
	}
	return sent
}

// ActiveConnections returns the number of active connections
func (h *Hub) ActiveConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ConnectionsByUserType returns count of clients by user type
func (h *Hub) ConnectionsByUserType(userType string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for client := range h.clients {
		if client.UserType == userType {
			count++
		}
	}
	return count
}
