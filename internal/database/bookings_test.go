package database

import (
	"context"
	"testing"
	"time"

	"venuebook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookingCRUD(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	b := newTestBooking(models.VenueBoardRoom, "2024-06-10", "10:00", "11:00")
	b.SpecialRequirements = "Projector"
	require.NoError(t, db.CreateBooking(ctx, b))
	require.NotEmpty(t, b.ID)

	got, err := db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.Venue, got.Venue)
	assert.Equal(t, "Board Room", got.FacilityName)
	assert.Equal(t, b.StartTime, got.StartTime)
	assert.Equal(t, b.EndTime, got.EndTime)
	assert.Equal(t, "Projector", got.SpecialRequirements)
	assert.True(t, b.CreatedAt.Equal(got.CreatedAt))
	assert.Nil(t, got.DecidedAt)

	_, err = db.GetBooking(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateBookingWithLock(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	first := newTestBooking(models.VenueBoardRoom, "2024-06-10", "10:00", "11:00")
	require.NoError(t, db.CreateBookingWithLock(ctx, first))

	overlapping := newTestBooking(models.VenueBoardRoom, "2024-06-10", "10:30", "11:30")
	assert.ErrorIs(t, db.CreateBookingWithLock(ctx, overlapping), ErrNotAvailable)

	touching := newTestBooking(models.VenueBoardRoom, "2024-06-10", "11:00", "12:00")
	assert.NoError(t, db.CreateBookingWithLock(ctx, touching))

	otherVenue := newTestBooking(models.VenueAuditorium, "2024-06-10", "10:30", "11:30")
	assert.NoError(t, db.CreateBookingWithLock(ctx, otherVenue))

	// a rejected booking frees its slot
	now := time.Now().UTC()
	rejected := first.Clone()
	rejected.Status = models.StatusRejected
	rejected.DecidedAt = &now
	require.NoError(t, db.DecideBooking(ctx, rejected, nil))
	assert.NoError(t, db.CreateBookingWithLock(ctx, overlapping))

	slot, err := db.GetSlotBookings(ctx, models.VenueBoardRoom, "2024-06-10")
	require.NoError(t, err)
	assert.Len(t, slot, 2)
}

func TestDecideBooking(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	b := newTestBooking(models.VenueAuditorium, "2024-06-12", "09:00", "10:00")
	require.NoError(t, db.CreateBooking(ctx, b))

	now := time.Now().UTC().Truncate(time.Millisecond)
	decided := b.Clone()
	decided.Status = models.StatusApproved
	decided.DecidedAt = &now
	decided.DecidedBy = "admin1"
	decided.DecisionReason = "ok"
	n := &models.Notification{UserID: b.RequesterID, Type: models.StatusApproved, BookingID: b.ID, Message: "approved"}

	require.NoError(t, db.DecideBooking(ctx, decided, n))

	got, err := db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, got.Status)
	require.NotNil(t, got.DecidedAt)
	assert.True(t, now.Equal(*got.DecidedAt))
	assert.Equal(t, "admin1", got.DecidedBy)
	assert.Equal(t, "ok", got.DecisionReason)

	notes, err := db.ListNotifications(ctx, b.RequesterID, false)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, b.ID, notes[0].BookingID)

	// second decision loses and writes nothing
	again := b.Clone()
	again.Status = models.StatusRejected
	again.DecidedAt = &now
	err = db.DecideBooking(ctx, again, &models.Notification{UserID: b.RequesterID, BookingID: b.ID, Type: "rejected", Message: "x"})
	assert.ErrorIs(t, err, ErrConcurrentModification)

	notes, err = db.ListNotifications(ctx, b.RequesterID, false)
	require.NoError(t, err)
	assert.Len(t, notes, 1)

	missing := b.Clone()
	missing.ID = "missing"
	missing.DecidedAt = &now
	assert.ErrorIs(t, db.DecideBooking(ctx, missing, nil), ErrNotFound)
}

func TestListingsAndCounts(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	base := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	for i, owner := range []string{"u1", "u2", "u1"} {
		b := newTestBooking(models.VenueBoardRoom, "2024-06-20", "09:00", "10:00")
		b.RequesterID = owner
		b.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, db.CreateBooking(ctx, b))
	}

	mine, err := db.GetUserBookings(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.True(t, mine[0].CreatedAt.After(mine[1].CreatedAt))

	all, err := db.ListBookings(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	counts, err := db.CountBookingsByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, counts[models.StatusPending])
	assert.Equal(t, 0, counts[models.StatusApproved])
}

func TestUpsertBooking(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	b := newTestBooking(models.VenueBoardRoom, "2024-06-10", "10:00", "11:00")
	b.ID = "-NxImported"
	require.NoError(t, db.UpsertBooking(ctx, b))

	b.Purpose = "Updated"
	require.NoError(t, db.UpsertBooking(ctx, b))

	got, err := db.GetBooking(ctx, "-NxImported")
	require.NoError(t, err)
	assert.Equal(t, "Updated", got.Purpose)
}
