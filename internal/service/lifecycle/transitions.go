package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/uitgo/trip-service/internal/domain/trip"
	"github.com/uitgo/trip-service/pkg/logger"
)

// Operation names, used in logs, metrics and published events.
const (
	OpCreate        = "create"
	OpAssign        = "assign"
	OpDeny          = "deny"
	OpStart         = "start"
	OpComplete      = "complete"
	OpCancel        = "cancel"
	OpRate          = "rate"
	OpAddPayment    = "add_payment"
	OpUpdatePayment = "update_payment"
)

// Assign gives a PENDING trip to driverID. Of two concurrent calls for the
// same trip at most one succeeds; the other gets a refusal.
func (s *Service) Assign(ctx context.Context, id, driverID string) (*trip.Trip, error) {
	if strings.TrimSpace(driverID) == "" {
		return nil, trip.ErrInvalidDriver
	}
	now := s.now()
	return s.transition(ctx, OpAssign, id,
		trip.Guard{Statuses: []trip.Status{trip.StatusPending}},
		trip.Change{
			Status:   trip.StatusAccepted,
			DriverID: &driverID,
			History:  &trip.HistoryEntry{Status: trip.StatusAccepted, Timestamp: now},
		},
	)
}

// Deny hands an ACCEPTED trip back to the pending pool. Only the assigned
// driver can deny it.
func (s *Service) Deny(ctx context.Context, id, driverID string) (*trip.Trip, error) {
	if strings.TrimSpace(driverID) == "" {
		return nil, trip.ErrInvalidDriver
	}
	cleared := ""
	now := s.now()
	return s.transition(ctx, OpDeny, id,
		trip.Guard{Statuses: []trip.Status{trip.StatusAccepted}, DriverID: driverID},
		trip.Change{
			Status:   trip.StatusPending,
			DriverID: &cleared,
			History:  &trip.HistoryEntry{Status: trip.StatusPending, Timestamp: now},
		},
	)
}

// Start moves an ACCEPTED trip to ON_TRIP.
func (s *Service) Start(ctx context.Context, id string) (*trip.Trip, error) {
	now := s.now()
	return s.transition(ctx, OpStart, id,
		trip.Guard{Statuses: []trip.Status{trip.StatusAccepted}},
		trip.Change{
			Status:    trip.StatusOnTrip,
			StartTime: &now,
			History:   &trip.HistoryEntry{Status: trip.StatusOnTrip, Timestamp: now},
		},
	)
}

// Complete moves an ON_TRIP trip to COMPLETED. When final is given the fare
// is finalised in the same update.
func (s *Service) Complete(ctx context.Context, id string, final *trip.FinalFare) (*trip.Trip, error) {
	if final != nil && (final.Actual < 0 || final.Discount < 0 || final.Tax < 0) {
		return nil, trip.ErrInvalidFare
	}
	now := s.now()
	return s.transition(ctx, OpComplete, id,
		trip.Guard{Statuses: []trip.Status{trip.StatusOnTrip}},
		trip.Change{
			Status:    trip.StatusCompleted,
			EndTime:   &now,
			FinalFare: final,
			History:   &trip.HistoryEntry{Status: trip.StatusCompleted, Timestamp: now},
		},
	)
}

// CancelRequest describes who cancels a trip and why.
type CancelRequest struct {
	CancelledBy trip.CancelledBy
	Reason      string
}

// Cancel moves a non-terminal trip to CANCELLED. Cancelling twice is refused
// and leaves the first cancellation untouched.
func (s *Service) Cancel(ctx context.Context, id string, req CancelRequest) (*trip.Trip, error) {
	if !req.CancelledBy.IsValid() {
		return nil, fmt.Errorf("%w: cancelled_by %q", trip.ErrInvalidCancellation, req.CancelledBy)
	}
	now := s.now()
	return s.transition(ctx, OpCancel, id,
		trip.Guard{Statuses: trip.NonTerminal},
		trip.Change{
			Status: trip.StatusCancelled,
			Cancellation: &trip.Cancellation{
				CancelledBy: req.CancelledBy,
				Reason:      req.Reason,
				CancelledAt: now,
			},
			History: &trip.HistoryEntry{Status: trip.StatusCancelled, Timestamp: now},
		},
	)
}

// Rate records the rating of a COMPLETED trip. A trip is rated at most once.
func (s *Service) Rate(ctx context.Context, id string, stars int, comment string) (*trip.Trip, error) {
	if stars < 1 || stars > 5 {
		return nil, trip.ErrInvalidRating
	}
	return s.subRecord(ctx, OpRate, id,
		trip.Guard{Statuses: []trip.Status{trip.StatusCompleted}, RatingUnset: true},
		trip.Change{Rating: &trip.Rating{Stars: stars, Comment: comment, RatedAt: s.now()}},
	)
}

// AddPayment attaches a PENDING payment to a trip, replacing any earlier one.
func (s *Service) AddPayment(ctx context.Context, id string, method trip.PaymentMethod, transactionID string) (*trip.Trip, error) {
	if !method.IsValid() {
		return nil, fmt.Errorf("%w: method %q", trip.ErrInvalidPayment, method)
	}
	return s.subRecord(ctx, OpAddPayment, id,
		trip.Guard{},
		trip.Change{Payment: &trip.Payment{
			Method:        method,
			Status:        trip.PaymentPending,
			TransactionID: transactionID,
		}},
	)
}

// UpdatePayment merges a status change into the trip's payment. paid_at
// defaults to now when the payment succeeds.
func (s *Service) UpdatePayment(ctx context.Context, id string, patch trip.PaymentPatch) (*trip.Trip, error) {
	if !patch.Status.IsValid() {
		return nil, fmt.Errorf("%w: status %q", trip.ErrInvalidPayment, patch.Status)
	}
	if patch.Status == trip.PaymentSuccess && patch.PaidAt == nil {
		now := s.now()
		patch.PaidAt = &now
	}
	return s.subRecord(ctx, OpUpdatePayment, id,
		trip.Guard{PaymentSet: true},
		trip.Change{PaymentPatch: &patch},
	)
}

// transition applies a status change and classifies a refusal.
func (s *Service) transition(ctx context.Context, op, id string, guard trip.Guard, change trip.Change) (*trip.Trip, error) {
	t, err := s.apply(ctx, op, id, guard, change)
	if err != nil {
		var refused *trip.RefusedError
		if errors.As(err, &refused) {
			s.metrics.RecordTripTransition(op, string(change.Status), string(refused.Outcome))
			if op == OpAssign && refused.Outcome == trip.OutcomePreconditionFailed {
				s.metrics.RecordAssignmentConflict()
			}
		}
		return nil, err
	}

	s.logger.ForTrip(id, op).Info("Trip transitioned",
		logger.String("status", string(t.Status)),
		logger.String("driver_id", t.DriverID),
	)
	s.metrics.RecordTripTransition(op, string(t.Status), string(trip.OutcomeApplied))
	s.notifier.TripChanged(ctx, op, t)
	return t, nil
}

// subRecord applies a change that leaves the status alone. A refusal on an
// existing trip means the trip is in the wrong state for the operation.
func (s *Service) subRecord(ctx context.Context, op, id string, guard trip.Guard, change trip.Change) (*trip.Trip, error) {
	t, err := s.apply(ctx, op, id, guard, change)
	if err != nil {
		var refused *trip.RefusedError
		if errors.As(err, &refused) && refused.Outcome == trip.OutcomePreconditionFailed {
			return nil, fmt.Errorf("%s %s: %w (status %s)", op, id, trip.ErrInvalidState, refused.Current)
		}
		return nil, err
	}

	s.logger.ForTrip(id, op).Info("Trip updated")
	s.notifier.TripChanged(ctx, op, t)
	return t, nil
}

// apply runs the conditional update. When nothing was modified it re-reads
// the trip to tell a missing trip from a failed guard.
func (s *Service) apply(ctx context.Context, op, id string, guard trip.Guard, change trip.Change) (*trip.Trip, error) {
	if !validID(id) {
		return nil, &trip.RefusedError{TripID: id, Operation: op, Outcome: trip.OutcomeNotFound}
	}

	ok, err := s.repo.Apply(ctx, id, guard, change)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", op, id, err)
	}

	current, getErr := s.repo.GetByID(ctx, id)
	if getErr != nil && !errors.Is(getErr, trip.ErrNotFound) {
		return nil, fmt.Errorf("%s %s: reload: %w", op, id, getErr)
	}

	if !ok {
		refused := &trip.RefusedError{TripID: id, Operation: op, Outcome: trip.OutcomeNotFound}
		if current != nil {
			refused.Outcome = trip.OutcomePreconditionFailed
			refused.Current = current.Status
		}
		s.logger.ForTrip(id, op).Warn("Trip update refused",
			logger.String("outcome", string(refused.Outcome)),
			logger.String("current_status", string(refused.Current)),
		)
		return nil, refused
	}

	// Deleted between the update and the reload.
	if current == nil {
		return nil, &trip.RefusedError{TripID: id, Operation: op, Outcome: trip.OutcomeNotFound}
	}
	return current, nil
}
