package trip

import (
	"time"

	"github.com/uitgo/trip-service/internal/domain/location"
	"github.com/uitgo/trip-service/internal/domain/vehicle"
)

// Status represents trip status
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusAccepted  Status = "ACCEPTED"
	StatusOnTrip    Status = "ON_TRIP"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// IsValid validates the status
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusOnTrip, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition may leave this status.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// NonTerminal lists the statuses a trip can still be cancelled from.
var NonTerminal = []Status{StatusPending, StatusAccepted, StatusOnTrip}

type PaymentMethod string

const (
	PaymentCash   PaymentMethod = "CASH"
	PaymentCard   PaymentMethod = "CARD"
	PaymentWallet PaymentMethod = "WALLET"
)

func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentWallet:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "PENDING"
	PaymentSuccess  PaymentStatus = "SUCCESS"
	PaymentFailed   PaymentStatus = "FAILED"
	PaymentRefunded PaymentStatus = "REFUNDED"
)

func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentPending, PaymentSuccess, PaymentFailed, PaymentRefunded:
		return true
	}
	return false
}

type CancelledBy string

const (
	CancelledByPassenger CancelledBy = "PASSENGER"
	CancelledByDriver    CancelledBy = "DRIVER"
	CancelledBySystem    CancelledBy = "SYSTEM"
)

func (c CancelledBy) IsValid() bool {
	switch c {
	case CancelledByPassenger, CancelledByDriver, CancelledBySystem:
		return true
	}
	return false
}

// RouteInfo is the route computed for the trip at request time.
type RouteInfo struct {
	DistanceMeters  float64 `json:"distance" bson:"distance"`
	DurationSeconds float64 `json:"duration" bson:"duration"`
	Geometry        string  `json:"geometry,omitempty" bson:"geometry,omitempty"`
}

// Fare holds the estimate set at creation and the final amounts set on completion.
type Fare struct {
	Estimated float64  `json:"estimated" bson:"estimated"`
	Actual    *float64 `json:"actual,omitempty" bson:"actual,omitempty"`
	Discount  *float64 `json:"discount,omitempty" bson:"discount,omitempty"`
	Tax       *float64 `json:"tax,omitempty" bson:"tax,omitempty"`
}

type Payment struct {
	Method        PaymentMethod `json:"method" bson:"method"`
	Status        PaymentStatus `json:"status" bson:"status"`
	TransactionID string        `json:"transaction_id,omitempty" bson:"transaction_id,omitempty"`
	PaidAt        *time.Time    `json:"paid_at,omitempty" bson:"paid_at,omitempty"`
}

type Rating struct {
	Stars   int       `json:"stars" bson:"stars"`
	Comment string    `json:"comment,omitempty" bson:"comment,omitempty"`
	RatedAt time.Time `json:"rated_at" bson:"rated_at"`
}

type Cancellation struct {
	CancelledBy CancelledBy `json:"cancelled_by" bson:"cancelled_by"`
	Reason      string      `json:"reason,omitempty" bson:"reason,omitempty"`
	CancelledAt time.Time   `json:"cancelled_at" bson:"cancelled_at"`
}

// HistoryEntry records one status the trip entered.
type HistoryEntry struct {
	Status    Status    `json:"status" bson:"status"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}

// Trip is a single ride from request to a terminal status.
type Trip struct {
	ID           string         `json:"id" bson:"_id"`
	PassengerID  string         `json:"passenger_id" bson:"passenger_id"`
	DriverID     string         `json:"driver_id" bson:"driver_id"`
	Status       Status         `json:"status" bson:"status"`
	VehicleType  vehicle.Class  `json:"vehicle_type" bson:"vehicle_type"`
	Pickup       location.Place `json:"pickup" bson:"pickup"`
	Dropoff      location.Place `json:"dropoff" bson:"dropoff"`
	RouteInfo    *RouteInfo     `json:"route_info,omitempty" bson:"route_info,omitempty"`
	Fare         Fare           `json:"fare" bson:"fare"`
	Payment      *Payment       `json:"payment,omitempty" bson:"payment,omitempty"`
	Rating       *Rating        `json:"rating,omitempty" bson:"rating,omitempty"`
	Cancellation *Cancellation  `json:"cancellation,omitempty" bson:"cancellation,omitempty"`
	History      []HistoryEntry `json:"history" bson:"history"`
	Notes        string         `json:"notes,omitempty" bson:"notes,omitempty"`
	CreatedAt    time.Time      `json:"created_at" bson:"created_at"`
	StartTime    *time.Time     `json:"startTime,omitempty" bson:"startTime,omitempty"`
	EndTime      *time.Time     `json:"endTime,omitempty" bson:"endTime,omitempty"`
}

// Clone returns a deep copy so callers cannot alias stored state.
func (t *Trip) Clone() *Trip {
	c := *t
	if t.RouteInfo != nil {
		r := *t.RouteInfo
		c.RouteInfo = &r
	}
	c.Fare = Fare{
		Estimated: t.Fare.Estimated,
		Actual:    cloneFloat(t.Fare.Actual),
		Discount:  cloneFloat(t.Fare.Discount),
		Tax:       cloneFloat(t.Fare.Tax),
	}
	if t.Payment != nil {
		p := *t.Payment
		p.PaidAt = cloneTime(t.Payment.PaidAt)
		c.Payment = &p
	}
	if t.Rating != nil {
		r := *t.Rating
		c.Rating = &r
	}
	if t.Cancellation != nil {
		x := *t.Cancellation
		c.Cancellation = &x
	}
	c.History = append([]HistoryEntry(nil), t.History...)
	c.Pickup.Location.Coordinates = append([]float64(nil), t.Pickup.Location.Coordinates...)
	c.Dropoff.Location.Coordinates = append([]float64(nil), t.Dropoff.Location.Coordinates...)
	c.StartTime = cloneTime(t.StartTime)
	c.EndTime = cloneTime(t.EndTime)
	return &c
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
