package trip

import "time"

// Guard is the precondition a conditional update is applied under. Stores
// must evaluate it and write the Change in one atomic step.
type Guard struct {
	// Statuses the trip must currently be in. Empty means any status.
	Statuses []Status
	// DriverID, when set, must equal the currently assigned driver.
	DriverID string
	// RatingUnset requires that no rating has been recorded yet.
	RatingUnset bool
	// PaymentSet requires an existing payment sub-record.
	PaymentSet bool
}

// Allows evaluates the guard against a trip.
func (g Guard) Allows(t *Trip) bool {
	if len(g.Statuses) > 0 && !containsStatus(g.Statuses, t.Status) {
		return false
	}
	if g.DriverID != "" && t.DriverID != g.DriverID {
		return false
	}
	if g.RatingUnset && t.Rating != nil {
		return false
	}
	if g.PaymentSet && t.Payment == nil {
		return false
	}
	return true
}

// FinalFare is written on completion.
type FinalFare struct {
	Actual   float64
	Discount float64
	Tax      float64
}

// PaymentPatch merges into an existing payment. Zero fields are left untouched.
type PaymentPatch struct {
	Status        PaymentStatus
	TransactionID string
	PaidAt        *time.Time
}

// Change lists the fields a conditional update writes. Nil/zero fields are
// left as they are; History is appended, never replaced.
type Change struct {
	Status       Status
	DriverID     *string
	StartTime    *time.Time
	EndTime      *time.Time
	FinalFare    *FinalFare
	Payment      *Payment
	PaymentPatch *PaymentPatch
	Rating       *Rating
	Cancellation *Cancellation
	History      *HistoryEntry
}

// ApplyTo writes the change into t in place.
func (c Change) ApplyTo(t *Trip) {
	if c.Status != "" {
		t.Status = c.Status
	}
	if c.DriverID != nil {
		t.DriverID = *c.DriverID
	}
	if c.StartTime != nil {
		t.StartTime = cloneTime(c.StartTime)
	}
	if c.EndTime != nil {
		t.EndTime = cloneTime(c.EndTime)
	}
	if c.FinalFare != nil {
		actual, discount, tax := c.FinalFare.Actual, c.FinalFare.Discount, c.FinalFare.Tax
		t.Fare.Actual, t.Fare.Discount, t.Fare.Tax = &actual, &discount, &tax
	}
	if c.Payment != nil {
		p := *c.Payment
		p.PaidAt = cloneTime(c.Payment.PaidAt)
		t.Payment = &p
	}
	if c.PaymentPatch != nil && t.Payment != nil {
		if c.PaymentPatch.Status != "" {
			t.Payment.Status = c.PaymentPatch.Status
		}
		if c.PaymentPatch.TransactionID != "" {
			t.Payment.TransactionID = c.PaymentPatch.TransactionID
		}
		if c.PaymentPatch.PaidAt != nil {
			t.Payment.PaidAt = cloneTime(c.PaymentPatch.PaidAt)
		}
	}
	if c.Rating != nil {
		r := *c.Rating
		t.Rating = &r
	}
	if c.Cancellation != nil {
		x := *c.Cancellation
		t.Cancellation = &x
	}
	if c.History != nil {
		t.History = append(t.History, stamped(t.History, *c.History))
	}
}

// stamped keeps history monotonic: an entry timestamped before the current
// last entry takes the last entry's timestamp.
func stamped(history []HistoryEntry, e HistoryEntry) HistoryEntry {
	if n := len(history); n > 0 && e.Timestamp.Before(history[n-1].Timestamp) {
		e.Timestamp = history[n-1].Timestamp
	}
	return e
}

func containsStatus(list []Status, s Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
