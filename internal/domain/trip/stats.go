package trip

// StatsFilter narrows statistics to a driver and/or passenger. Empty fields match all.
type StatsFilter struct {
	DriverID    string
	PassengerID string
}

// Matches reports whether t falls under the filter.
func (f StatsFilter) Matches(t *Trip) bool {
	if f.DriverID != "" && t.DriverID != f.DriverID {
		return false
	}
	if f.PassengerID != "" && t.PassengerID != f.PassengerID {
		return false
	}
	return true
}

// Statistics summarises a set of trips. AverageRating is nil when no trip
// in the set was rated.
type Statistics struct {
	TotalTrips     int64    `json:"total_trips"`
	CompletedTrips int64    `json:"completed_trips"`
	CancelledTrips int64    `json:"cancelled_trips"`
	TotalRevenue   float64  `json:"total_revenue"`
	AverageRating  *float64 `json:"average_rating"`
}

// Summarize folds trips into Statistics in a single pass. Revenue counts the
// actual fare of completed trips only; unrated trips are left out of the average.
func Summarize(trips []*Trip) *Statistics {
	stats := &Statistics{}
	var starSum, rated int64

	for _, t := range trips {
		stats.TotalTrips++
		switch t.Status {
		case StatusCompleted:
			stats.CompletedTrips++
			if t.Fare.Actual != nil {
				stats.TotalRevenue += *t.Fare.Actual
			}
		case StatusCancelled:
			stats.CancelledTrips++
		}
		if t.Rating != nil {
			starSum += int64(t.Rating.Stars)
			rated++
		}
	}

	if rated > 0 {
		avg := float64(starSum) / float64(rated)
		stats.AverageRating = &avg
	}
	return stats
}
