// Package schedule derives due-ness from a card's review history. The
// remote card service owns the actual scheduling algorithm; all the local
// snapshot stores is the last review date and the interval the service
// assigned, so the next due date is last review + interval days.
package schedule

import "time"

// NextDue returns the next review date implied by the last review and the
// interval the remote service assigned to it.
func NextDue(lastReview time.Time, intervalDays int) time.Time {
	return lastReview.Add(time.Duration(intervalDays) * 24 * time.Hour)
}

// IsDue reports whether a card should be reviewed at the given time. A card
// with no review history is always due.
func IsDue(lastReview *time.Time, intervalDays int, now time.Time) bool {
	if lastReview == nil {
		return true
	}
	return !now.Before(NextDue(*lastReview, intervalDays))
}

// Due returns the card's due timestamp, or nil for a never-reviewed card.
func Due(lastReview *time.Time, intervalDays int) *time.Time {
	if lastReview == nil {
		return nil
	}
	d := NextDue(*lastReview, intervalDays)
	return &d
}
