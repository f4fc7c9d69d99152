package dto

import "time"

// CoordinatesInput is a WGS84 point from the client
type CoordinatesInput struct {
	Longitude *float64 `json:"longitude" binding:"required,gte=-180,lte=180"`
	Latitude  *float64 `json:"latitude" binding:"required,gte=-90,lte=90"`
}

// FareEstimateRequest asks for a price per vehicle class
type FareEstimateRequest struct {
	Pickup  CoordinatesInput `json:"pickup" binding:"required"`
	Dropoff CoordinatesInput `json:"dropoff" binding:"required"`
}

// PlaceInput is a pickup or dropoff. Coordinates are geocoded from the
// address when omitted.
type PlaceInput struct {
	Address   string   `json:"address" binding:"max=200"`
	Longitude *float64 `json:"longitude" binding:"omitempty,gte=-180,lte=180"`
	Latitude  *float64 `json:"latitude" binding:"omitempty,gte=-90,lte=90"`
}

// CreateTripRequest represents a passenger requesting a trip
type CreateTripRequest struct {
	PassengerID string     `json:"passenger_id" binding:"required"`
	Pickup      PlaceInput `json:"pickup" binding:"required"`
	Dropoff     PlaceInput `json:"dropoff" binding:"required"`
	VehicleType string     `json:"vehicle_type" binding:"required,oneof=MOTORBIKE CAR_4 CAR_7"`
	Notes       string     `json:"notes" binding:"max=500"`
}

// DriverRequest carries the driver for assign and deny
type DriverRequest struct {
	DriverID string `json:"driver_id" binding:"required"`
}

// CompleteTripQuery carries the optional final amounts as query parameters
type CompleteTripQuery struct {
	ActualFare *float64 `form:"actual_fare" binding:"omitempty,gte=0"`
	Discount   float64  `form:"discount" binding:"gte=0"`
	Tax        float64  `form:"tax" binding:"gte=0"`
}

type CancelTripRequest struct {
	CancelledBy string `json:"cancelled_by" binding:"required,oneof=PASSENGER DRIVER SYSTEM"`
	Reason      string `json:"reason" binding:"max=500"`
}

type AddPaymentRequest struct {
	Method        string `json:"method" binding:"required,oneof=CASH CARD WALLET"`
	TransactionID string `json:"transaction_id"`
}

type UpdatePaymentRequest struct {
	Status        string     `json:"status" binding:"required,oneof=PENDING SUCCESS FAILED REFUNDED"`
	TransactionID string     `json:"transaction_id"`
	PaidAt        *time.Time `json:"paid_at"`
}

type RatingRequest struct {
	Stars   int    `json:"stars" binding:"required,min=1,max=5"`
	Comment string `json:"comment" binding:"max=1000"`
}

// PageQuery bounds list endpoints. Limit is checked against the configured
// maximum by the handler.
type PageQuery struct {
	Skip  int `form:"skip" binding:"gte=0"`
	Limit int `form:"limit" binding:"gte=0"`
}

// NearQuery selects pending trips around a point
type NearQuery struct {
	Longitude   *float64 `form:"longitude" binding:"required,gte=-180,lte=180"`
	Latitude    *float64 `form:"latitude" binding:"required,gte=-90,lte=90"`
	MaxDistance float64  `form:"max_distance" binding:"gte=0"`
	Limit       int      `form:"limit" binding:"gte=0"`
}

type GeocodeQuery struct {
	Address string `form:"address" binding:"required,max=200"`
}
