package dto

import (
	"time"

	"github.com/uitgo/trip-service/internal/domain/trip"
	"github.com/uitgo/trip-service/internal/service/pricing"
)

// TripSummary is the list view of a trip
type TripSummary struct {
	ID             string      `json:"id"`
	PassengerID    string      `json:"passenger_id"`
	DriverID       string      `json:"driver_id"`
	Status         trip.Status `json:"status"`
	VehicleType    string      `json:"vehicle_type"`
	PickupAddress  string      `json:"pickup_address"`
	DropoffAddress string      `json:"dropoff_address"`
	EstimatedFare  float64     `json:"estimated_fare"`
	ActualFare     *float64    `json:"actual_fare"`
	CreatedAt      time.Time   `json:"created_at"`
	StartTime      *time.Time  `json:"startTime"`
	EndTime        *time.Time  `json:"endTime"`
}

// NewTripSummary converts a trip to its list view
func NewTripSummary(t *trip.Trip) TripSummary {
	return TripSummary{
		ID:             t.ID,
		PassengerID:    t.PassengerID,
		DriverID:       t.DriverID,
		Status:         t.Status,
		VehicleType:    t.VehicleType.String(),
		PickupAddress:  t.Pickup.Address,
		DropoffAddress: t.Dropoff.Address,
		EstimatedFare:  t.Fare.Estimated,
		ActualFare:     t.Fare.Actual,
		CreatedAt:      t.CreatedAt,
		StartTime:      t.StartTime,
		EndTime:        t.EndTime,
	}
}

// NewTripSummaries never returns nil so empty lists encode as [].
func NewTripSummaries(trips []*trip.Trip) []TripSummary {
	out := make([]TripSummary, 0, len(trips))
	for _, t := range trips {
		out = append(out, NewTripSummary(t))
	}
	return out
}

// TripActionResponse acknowledges a lifecycle operation
type TripActionResponse struct {
	Message string      `json:"message"`
	TripID  string      `json:"trip_id"`
	Status  trip.Status `json:"status"`
	Trip    *trip.Trip  `json:"trip"`
}

type FareEstimateResponse struct {
	Estimates []pricing.Estimate `json:"estimates"`
}

type GeocodeResponse struct {
	Address   string  `json:"address"`
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
}
