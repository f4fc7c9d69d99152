package trip

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("trip not found")
	ErrPreconditionFailed = errors.New("trip precondition failed")
	ErrInvalidState       = errors.New("invalid trip state")

	ErrInvalidPassenger    = errors.New("invalid passenger id")
	ErrInvalidDriver       = errors.New("invalid driver id")
	ErrInvalidVehicleType  = errors.New("invalid vehicle type")
	ErrInvalidLocation     = errors.New("invalid location")
	ErrInvalidRating       = errors.New("rating stars must be between 1 and 5")
	ErrInvalidPayment      = errors.New("invalid payment")
	ErrInvalidCancellation = errors.New("invalid cancellation")
	ErrInvalidFare         = errors.New("fare amounts must not be negative")
)

// Outcome is the result of a conditional update as seen by the engine.
type Outcome string

const (
	OutcomeApplied            Outcome = "applied"
	OutcomeNotFound           Outcome = "not_found"
	OutcomePreconditionFailed Outcome = "precondition_failed"
)

// RefusedError is returned when a conditional update modified nothing. The
// outcome keeps "missing" and "guard failed" apart for logs and metrics; both
// unwrap to a sentinel so the transport layer can flatten them.
type RefusedError struct {
	TripID    string
	Operation string
	Outcome   Outcome
	Current   Status // empty when the trip does not exist
}

func (e *RefusedError) Error() string {
	if e.Outcome == OutcomeNotFound {
		return fmt.Sprintf("%s %s: trip not found", e.Operation, e.TripID)
	}
	return fmt.Sprintf("%s %s: precondition failed (status %s)", e.Operation, e.TripID, e.Current)
}

func (e *RefusedError) Unwrap() error {
	if e.Outcome == OutcomeNotFound {
		return ErrNotFound
	}
	return ErrPreconditionFailed
}
