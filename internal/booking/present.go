package booking

import (
	"sort"
	"strings"
	"time"

	"venuebook/internal/models"
)

// StatusStyle describes how a status is presented to users.
type StatusStyle struct {
	Label string `json:"label"`
	Color string `json:"color"`
	Icon  string `json:"icon"`
}

func StyleFor(status string) StatusStyle {
	switch status {
	case models.StatusApproved:
		return StatusStyle{Label: "Approved", Color: "green", Icon: "check-circle"}
	case models.StatusRejected:
		return StatusStyle{Label: "Rejected", Color: "red", Icon: "x-circle"}
	case models.StatusPending:
		return StatusStyle{Label: "Pending", Color: "yellow", Icon: "clock"}
	default:
		return StatusStyle{Label: "Unknown", Color: "gray", Icon: "alert-circle"}
	}
}

// FormatDate renders a YYYY-MM-DD date as "Monday, June 10, 2024". Input that
// is not a date is returned unchanged.
func FormatDate(date string) string {
	d, err := models.ParseDate(date)
	if err != nil {
		return date
	}
	return d.Format("Monday, January 2, 2006")
}

// FormatDateTime renders t as "Mon, Jun 10, 2024, 10:00 AM".
func FormatDateTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("Mon, Jan 2, 2006, 3:04 PM")
}

// FormatTimeRange renders the booked slot, e.g. "10:00 AM - 11:30 AM".
func FormatTimeRange(b *models.Booking) string {
	if b.StartTime.IsZero() || b.EndTime.IsZero() {
		return ""
	}
	return b.StartTime.Format("3:04 PM") + " - " + b.EndTime.Format("3:04 PM")
}

// Filter selects bookings for listings. Status "" or "all" matches every
// status.
type Filter struct {
	Status string
	Search string
}

const StatusAll = "all"

// ParseStatusFilter validates a status filter value.
func ParseStatusFilter(s string) (string, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "", StatusAll:
		return StatusAll, true
	case models.StatusPending, models.StatusApproved, models.StatusRejected:
		return s, true
	default:
		return "", false
	}
}

// MatchesUserSearch is the search used on a requester's own bookings:
// venue, purpose, status and the formatted date.
func MatchesUserSearch(b *models.Booking, term string) bool {
	return containsAny(term, b.Venue, b.Purpose, b.Status, FormatDate(b.Date))
}

// MatchesAdminSearch is the search used on the administrator listing.
func MatchesAdminSearch(b *models.Booking, term string) bool {
	return containsAny(term, b.FacilityName, b.RequesterEmail, b.RequesterName, b.Purpose, b.Venue)
}

func containsAny(term string, fields ...string) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return true
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), term) {
			return true
		}
	}
	return false
}

// ApplyFilter returns the bookings matching f, using match for the search
// term. The input slice is not modified.
func ApplyFilter(bookings []*models.Booking, f Filter, match func(*models.Booking, string) bool) []*models.Booking {
	out := make([]*models.Booking, 0, len(bookings))
	for _, b := range bookings {
		if f.Status != "" && f.Status != StatusAll && b.Status != f.Status {
			continue
		}
		if match != nil && !match(b, f.Search) {
			continue
		}
		out = append(out, b)
	}
	return out
}

// SortByCreatedDesc orders bookings newest first.
func SortByCreatedDesc(bookings []*models.Booking) {
	sort.SliceStable(bookings, func(i, j int) bool {
		return bookings[i].CreatedAt.After(bookings[j].CreatedAt)
	})
}

func CountByStatus(bookings []*models.Booking) map[string]int {
	counts := map[string]int{
		models.StatusPending:  0,
		models.StatusApproved: 0,
		models.StatusRejected: 0,
	}
	for _, b := range bookings {
		counts[b.Status]++
	}
	return counts
}
