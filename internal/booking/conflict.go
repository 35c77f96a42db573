package booking

import (
	"time"

	"venuebook/internal/models"
)

// DetectConflict reports whether [start, end) overlaps any non-rejected
// booking of the same venue on the same date. Intervals that only touch do
// not overlap.
func DetectConflict(venue, date string, start, end time.Time, existing []*models.Booking) bool {
	for _, b := range existing {
		if conflicts(venue, date, start, end, b) {
			return true
		}
	}
	return false
}

// FindConflicts returns every booking in existing that DetectConflict would
// report.
func FindConflicts(venue, date string, start, end time.Time, existing []*models.Booking) []*models.Booking {
	var out []*models.Booking
	for _, b := range existing {
		if conflicts(venue, date, start, end, b) {
			out = append(out, b)
		}
	}
	return out
}

func conflicts(venue, date string, start, end time.Time, b *models.Booking) bool {
	if b == nil || b.Venue != venue || b.Date != date || b.Status == models.StatusRejected {
		return false
	}
	if b.StartTime.IsZero() || b.EndTime.IsZero() {
		return false
	}
	return start.Before(b.EndTime) && end.After(b.StartTime)
}
