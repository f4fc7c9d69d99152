// Package events carries trip changes to connected passengers and drivers.
// Changes are published on a Redis channel so every API instance can push
// them to the websocket clients it holds.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/uitgo/trip-service/internal/domain/trip"
	"github.com/uitgo/trip-service/pkg/logger"
	"github.com/uitgo/trip-service/pkg/websocket"
)

// DefaultChannel is the Redis channel trip events are published on.
const DefaultChannel = "trips:events"

// TripEvent is the payload published for every trip change.
type TripEvent struct {
	Type        string      `json:"type"`
	TripID      string      `json:"trip_id"`
	PassengerID string      `json:"passenger_id"`
	DriverID    string      `json:"driver_id,omitempty"`
	Status      trip.Status `json:"status"`
	At          time.Time   `json:"at"`
	Trip        *trip.Trip  `json:"trip,omitempty"`
}

// NewTripEvent builds the event for operation applied to t.
func NewTripEvent(operation string, t *trip.Trip, at time.Time) TripEvent {
	return TripEvent{
		Type:        "trip." + operation,
		TripID:      t.ID,
		PassengerID: t.PassengerID,
		DriverID:    t.DriverID,
		Status:      t.Status,
		At:          at,
		Trip:        t,
	}
}

// Sink is where events end up, normally a *websocket.Hub.
type Sink interface {
	BroadcastToTrip(tripID string, message websocket.Message) int
	BroadcastToUser(userID, userType string, message websocket.Message) int
	BroadcastToType(userType string, message websocket.Message) int
}

// Fanout delivers e to the trip's subscribers, its passenger and its driver.
// A trip waiting for a driver also goes to every connected driver.
func Fanout(sink Sink, e TripEvent) int {
	msg := websocket.Message{Type: e.Type, Data: e}

	n := sink.BroadcastToTrip(e.TripID, msg)
	if e.PassengerID != "" {
		n += sink.BroadcastToUser(e.PassengerID, websocket.UserTypePassenger, msg)
	}
	if e.Status == trip.StatusPending {
		n += sink.BroadcastToType(websocket.UserTypeDriver, msg)
	} else if e.DriverID != "" {
		n += sink.BroadcastToUser(e.DriverID, websocket.UserTypeDriver, msg)
	}
	return n
}

// Direct hands events straight to a local sink. It serves single-instance
// deployments that run without Redis.
type Direct struct {
	sink Sink
	now  func() time.Time
}

func NewDirect(sink Sink) *Direct {
	return &Direct{sink: sink, now: time.Now}
}

// TripChanged implements lifecycle.Notifier.
func (d *Direct) TripChanged(_ context.Context, operation string, t *trip.Trip) {
	Fanout(d.sink, NewTripEvent(operation, t, d.now().UTC()))
}

func decode(payload string, log *logger.Logger) (TripEvent, bool) {
	var e TripEvent
	if err := json.Unmarshal([]byte(payload), &e); err != nil {
		log.Warn("Dropping malformed trip event", logger.Err(err))
		return e, false
	}
	if e.TripID == "" || e.Type == "" {
		log.Warn("Dropping incomplete trip event", logger.String("type", e.Type))
		return e, false
	}
	return e, true
}
