package websocket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

func connect(t *testing.T, hub *Hub, userID, userType string) *Client {
	t.Helper()
	c := NewClient(hub, nil, userID, userType, nil)
	hub.Register(c)
	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		return hub.clients[c]
	}, time.Second, 5*time.Millisecond)
	return c
}

func receive(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case data := <-c.Send:
		var msg Message
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	case <-time.After(time.Second):
		t.Fatalf("client %s received nothing", c.UserID)
		return Message{}
	}
}

func TestHub_Routing(t *testing.T) {
	hub := startHub(t)
	passenger := connect(t, hub, "p-1", UserTypePassenger)
	driverA := connect(t, hub, "d-1", UserTypeDriver)
	driverB := connect(t, hub, "d-2", UserTypeDriver)

	assert.Equal(t, 3, hub.ActiveConnections())
	assert.Equal(t, 2, hub.ConnectionsByUserType(UserTypeDriver))

	t.Run("by type", func(t *testing.T) {
		n := hub.BroadcastToType(UserTypeDriver, Message{Type: "trip.created"})
		assert.Equal(t, 2, n)
		assert.Equal(t, "trip.created", receive(t, driverA).Type)
		assert.Equal(t, "trip.created", receive(t, driverB).Type)
		assert.Empty(t, passenger.Send)
	})

	t.Run("by user", func(t *testing.T) {
		n := hub.BroadcastToUser("p-1", UserTypePassenger, Message{Type: "trip.assigned"})
		assert.Equal(t, 1, n)
		assert.Equal(t, "trip.assigned", receive(t, passenger).Type)
		assert.Zero(t, hub.BroadcastToUser("p-1", UserTypeDriver, Message{Type: "x"}))
	})

	t.Run("by trip subscription", func(t *testing.T) {
		driverB.Subscribe("trip-9")
		n := hub.BroadcastToTrip("trip-9", Message{Type: "trip.started"})
		assert.Equal(t, 1, n)
		assert.Equal(t, "trip.started", receive(t, driverB).Type)

		driverB.Unsubscribe("trip-9")
		assert.Zero(t, hub.BroadcastToTrip("trip-9", Message{Type: "trip.started"}))
	})
}

func TestHub_Unregister(t *testing.T) {
	hub := startHub(t)
	c := connect(t, hub, "p-1", UserTypePassenger)

	hub.Unregister(c)

	require.Eventually(t, func() bool { return hub.ActiveConnections() == 0 }, time.Second, 5*time.Millisecond)
	_, open := <-c.Send
	assert.False(t, open)
}

func TestHub_StopClosesClients(t *testing.T) {
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	c := connect(t, hub, "d-1", UserTypeDriver)

	cancel()
	<-hub.done

	_, open := <-c.Send
	assert.False(t, open)
	// registering after stop must not block
	hub.Register(NewClient(hub, nil, "d-2", UserTypeDriver, nil))
}

func TestHub_FullBufferSkipsClient(t *testing.T) {
	hub := startHub(t)
	c := connect(t, hub, "d-1", UserTypeDriver)
	for i := 0; i < sendBuffer; i++ {
		c.Send <- []byte(`{}`)
	}

	assert.Zero(t, hub.BroadcastToType(UserTypeDriver, Message{Type: "trip.created"}))
}

func TestClient_HandleMessage(t *testing.T) {
	c := NewClient(NewHub(nil), nil, "p-1", UserTypePassenger, nil)

	c.handleMessage([]byte(`{"type":"subscribe","trip_id":"t-1"}`))
	assert.True(t, c.IsSubscribedToTrip("t-1"))
	assert.Equal(t, "subscribed", receive(t, c).Type)

	c.handleMessage([]byte(`{"type":"subscribe"}`))
	assert.Equal(t, "error", receive(t, c).Type)

	c.handleMessage([]byte(`{"type":"ping"}`))
	assert.Equal(t, "pong", receive(t, c).Type)

	c.handleMessage([]byte(`{"type":"unsubscribe","trip_id":"t-1"}`))
	assert.False(t, c.IsSubscribedToTrip("t-1"))

	c.handleMessage([]byte(`not json`))
	assert.Empty(t, c.Send)
}

func TestValidUserType(t *testing.T) {
	assert.True(t, ValidUserType("passenger"))
	assert.True(t, ValidUserType("driver"))
	assert.False(t, ValidUserType("rider"))
}
