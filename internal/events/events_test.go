package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uitgo/trip-service/internal/domain/trip"
	"github.com/uitgo/trip-service/pkg/logger"
	"github.com/uitgo/trip-service/pkg/websocket"
)

type delivery struct {
	target string
	msg    websocket.Message
}

type recordingSink struct {
	mu         sync.Mutex
	deliveries []delivery
}

func (s *recordingSink) add(target string, m websocket.Message) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveries = append(s.deliveries, delivery{target, m})
	return 1
}

func (s *recordingSink) BroadcastToTrip(tripID string, m websocket.Message) int {
	return s.add("trip:"+tripID, m)
}

func (s *recordingSink) BroadcastToUser(userID, userType string, m websocket.Message) int {
	return s.add(userType+":"+userID, m)
}

func (s *recordingSink) BroadcastToType(userType string, m websocket.Message) int {
	return s.add("type:"+userType, m)
}

func (s *recordingSink) targets() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.deliveries))
	for _, d := range s.deliveries {
		out = append(out, d.target)
	}
	return out
}

func sampleTrip(status trip.Status, driver string) *trip.Trip {
	return &trip.Trip{ID: "t-1", PassengerID: "p-1", DriverID: driver, Status: status}
}

func TestFanout(t *testing.T) {
	tests := []struct {
		name   string
		trip   *trip.Trip
		expect []string
	}{
		{
			name:   "pending trip reaches every driver",
			trip:   sampleTrip(trip.StatusPending, ""),
			expect: []string{"trip:t-1", "passenger:p-1", "type:driver"},
		},
		{
			name:   "assigned trip reaches its driver",
			trip:   sampleTrip(trip.StatusAccepted, "d-1"),
			expect: []string{"trip:t-1", "passenger:p-1", "driver:d-1"},
		},
		{
			name:   "cancelled before assignment",
			trip:   sampleTrip(trip.StatusCancelled, ""),
			expect: []string{"trip:t-1", "passenger:p-1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &recordingSink{}
			n := Fanout(sink, NewTripEvent("assign", tt.trip, time.Now()))
			assert.Equal(t, tt.expect, sink.targets())
			assert.Equal(t, len(tt.expect), n)
		})
	}
}

func TestDirect(t *testing.T) {
	sink := &recordingSink{}
	d := NewDirect(sink)

	d.TripChanged(context.Background(), "start", sampleTrip(trip.StatusOnTrip, "d-1"))

	require.Len(t, sink.deliveries, 3)
	msg := sink.deliveries[0].msg
	assert.Equal(t, "trip.start", msg.Type)
	e, ok := msg.Data.(TripEvent)
	require.True(t, ok)
	assert.Equal(t, trip.StatusOnTrip, e.Status)
	assert.Equal(t, "d-1", e.DriverID)
}

func TestPublishSubscribe(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	sink := &recordingSink{}
	sub := NewSubscriber(client, "", sink, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ready := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- sub.Run(ctx, ready) }()
	select {
	case <-ready:
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber never became ready")
	}

	pub := NewPublisher(client, "", nil)
	pub.TripChanged(context.Background(), "create", sampleTrip(trip.StatusPending, ""))
	// malformed payloads are skipped
	mr.Publish(DefaultChannel, "{not json")

	require.Eventually(t, func() bool { return len(sink.targets()) == 3 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"trip:t-1", "passenger:p-1", "type:driver"}, sink.targets())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not stop")
	}
}

func TestPublisher_RedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { client.Close() })
	mr.Close()

	pub := NewPublisher(client, "", nil)
	err := pub.Publish(context.Background(), NewTripEvent("create", sampleTrip(trip.StatusPending, ""), time.Now()))
	assert.Error(t, err)

	assert.NotPanics(t, func() {
		pub.TripChanged(context.Background(), "create", sampleTrip(trip.StatusPending, ""))
	})
}

func TestDecode(t *testing.T) {
	_, ok := decode(`{"type":"trip.create"}`, logger.NewNop())
	assert.False(t, ok)

	e, ok := decode(`{"type":"trip.create","trip_id":"t-1","status":"PENDING"}`, logger.NewNop())
	assert.True(t, ok)
	assert.Equal(t, trip.StatusPending, e.Status)
}
