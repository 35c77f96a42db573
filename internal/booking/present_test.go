package booking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"venuebook/internal/models"
)

func TestFormatting(t *testing.T) {
	assert.Equal(t, "Monday, June 10, 2024", FormatDate("2024-06-10"))
	assert.Equal(t, "soon", FormatDate("soon"))
	assert.Equal(t, "Mon, Jun 10, 2024, 10:00 AM", FormatDateTime(time.Date(2024, 6, 10, 10, 0, 0, 0, time.UTC)))
	assert.Equal(t, "", FormatDateTime(time.Time{}))

	b := existingBooking(models.VenueBoardRoom, "2024-06-10", "10:00", "13:30", models.StatusPending)
	assert.Equal(t, "10:00 AM - 1:30 PM", FormatTimeRange(b))
}

func TestStyleFor(t *testing.T) {
	assert.Equal(t, "green", StyleFor(models.StatusApproved).Color)
	assert.Equal(t, "x-circle", StyleFor(models.StatusRejected).Icon)
	assert.Equal(t, "Pending", StyleFor(models.StatusPending).Label)
	assert.Equal(t, "gray", StyleFor("archived").Color)
}

func TestFilters(t *testing.T) {
	a := &models.Booking{ID: "a", Venue: models.VenueBoardRoom, FacilityName: "Board Room", Date: "2024-06-10",
		Purpose: "Standup", Status: models.StatusPending, RequesterEmail: "ana@example.com", RequesterName: "Ana",
		CreatedAt: time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)}
	b := &models.Booking{ID: "b", Venue: models.VenueAuditorium, FacilityName: "Auditorium", Date: "2024-06-11",
		Purpose: "Town hall", Status: models.StatusApproved, RequesterEmail: "bo@example.com", RequesterName: "Bo",
		CreatedAt: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)}
	all := []*models.Booking{a, b}

	t.Run("UserSearch", func(t *testing.T) {
		assert.Equal(t, []*models.Booking{b}, ApplyFilter(all, Filter{Search: "tuesday"}, MatchesUserSearch))
		assert.Equal(t, []*models.Booking{a}, ApplyFilter(all, Filter{Search: "PEND"}, MatchesUserSearch))
		assert.Len(t, ApplyFilter(all, Filter{Search: "  "}, MatchesUserSearch), 2)
	})

	t.Run("AdminSearch", func(t *testing.T) {
		assert.Equal(t, []*models.Booking{b}, ApplyFilter(all, Filter{Search: "bo@"}, MatchesAdminSearch))
		assert.Equal(t, []*models.Booking{a}, ApplyFilter(all, Filter{Search: "board"}, MatchesAdminSearch))
	})

	t.Run("Status", func(t *testing.T) {
		assert.Equal(t, []*models.Booking{b}, ApplyFilter(all, Filter{Status: models.StatusApproved}, nil))
		assert.Len(t, ApplyFilter(all, Filter{Status: StatusAll}, nil), 2)
	})

	t.Run("ParseStatusFilter", func(t *testing.T) {
		s, ok := ParseStatusFilter("")
		assert.True(t, ok)
		assert.Equal(t, StatusAll, s)
		_, ok = ParseStatusFilter("cancelled")
		assert.False(t, ok)
	})

	t.Run("SortAndCount", func(t *testing.T) {
		list := []*models.Booking{a, b}
		SortByCreatedDesc(list)
		assert.Equal(t, "b", list[0].ID)

		counts := CountByStatus(all)
		assert.Equal(t, 1, counts[models.StatusPending])
		assert.Equal(t, 1, counts[models.StatusApproved])
		assert.Equal(t, 0, counts[models.StatusRejected])
	})
}
