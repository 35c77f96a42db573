package database

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"venuebook/internal/booking"
	"venuebook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTouchUserKeepsRole(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	require.NoError(t, db.TouchUser(ctx, &models.User{ID: "u1", Email: "ana@example.com", DisplayName: "Ana"}))

	u, err := db.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.RoleUser, u.Role)
	assert.Equal(t, "Ana", u.DisplayName)

	require.NoError(t, db.SetUserRole(ctx, "u1", models.RoleAdmin))
	require.NoError(t, db.TouchUser(ctx, &models.User{ID: "u1", Email: "ana@example.com"}))

	u, err = db.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, u.Role)
	assert.Equal(t, "Ana", u.DisplayName, "empty profile fields must not overwrite")
}

func TestTouchUserSeedsRoleOnInsert(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	require.NoError(t, db.TouchUser(ctx, &models.User{ID: "ops", Email: "ops@example.com", Role: models.RoleAdmin}))
	u, err := db.GetUser(ctx, "ops")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, u.Role)

	require.NoError(t, db.TouchUser(ctx, &models.User{ID: "odd", Role: "root"}))
	u, err = db.GetUser(ctx, "odd")
	require.NoError(t, err)
	assert.Equal(t, models.RoleUser, u.Role)

	require.NoError(t, db.SetUserRole(ctx, "ops", models.RoleUser))
	require.NoError(t, db.TouchUser(ctx, &models.User{ID: "ops", Role: models.RoleAdmin}))
	u, err = db.GetUser(ctx, "ops")
	require.NoError(t, err)
	assert.Equal(t, models.RoleUser, u.Role, "the claim must not overwrite a stored role")
}

func TestUserUpdates(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, db.UpsertUser(ctx, &models.User{ID: "a1", Email: "root@example.com", Role: models.RoleAdmin, CreatedAt: created}))

	require.NoError(t, db.SetTelegramChatID(ctx, "a1", 4242))
	u, err := db.GetUser(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, int64(4242), u.TelegramChatID)
	assert.True(t, created.Equal(u.CreatedAt))
	assert.True(t, u.IsAdmin())

	users, err := db.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)

	assert.ErrorIs(t, db.SetUserRole(ctx, "ghost", models.RoleAdmin), ErrNotFound)
	_, err = db.GetUser(ctx, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNotifications(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	older := &models.Notification{ID: "n1", UserID: "u1", Type: "approved", BookingID: "b1", Message: "one",
		CreatedAt: time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)}
	newer := &models.Notification{ID: "n2", UserID: "u1", Type: "rejected", BookingID: "b2", Message: "two",
		CreatedAt: time.Date(2024, 6, 2, 8, 0, 0, 0, time.UTC)}
	require.NoError(t, db.UpsertNotification(ctx, older))
	require.NoError(t, db.UpsertNotification(ctx, newer))

	list, err := db.ListNotifications(ctx, "u1", false)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "n2", list[0].ID)

	assert.ErrorIs(t, db.MarkNotificationRead(ctx, "n1", "someone-else"), ErrNotFound)
	require.NoError(t, db.MarkNotificationRead(ctx, "n1", "u1"))

	unread, err := db.ListNotifications(ctx, "u1", true)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, "n2", unread[0].ID)

	n, err := db.GetNotification(ctx, "n1")
	require.NoError(t, err)
	assert.True(t, n.Read)

	_, err = db.GetNotification(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestImportSnapshot(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	b := newTestBooking(models.VenueBoardRoom, "2024-06-10", "10:00", "11:00")
	b.FacilityName = ""
	snap := &models.Snapshot{
		Bookings:      map[string]*models.Booking{"-Nb1": b},
		Notifications: map[string]*models.Notification{"-Nn1": {UserID: "u1", BookingID: "-Nb1", Type: "approved", Message: "m"}},
		Users:         map[string]*models.User{"u1": {Email: "ana@example.com", Role: models.RoleAdmin}},
	}

	stats, err := db.ImportSnapshot(ctx, snap)
	require.NoError(t, err)
	assert.Equal(t, ImportStats{Bookings: 1, Notifications: 1, Users: 1}, stats)

	got, err := db.GetBooking(ctx, "-Nb1")
	require.NoError(t, err)
	assert.Equal(t, "Board Room", got.FacilityName)

	u, err := db.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, u.Role)

	// importing twice replaces instead of duplicating
	_, err = db.ImportSnapshot(ctx, snap)
	require.NoError(t, err)
	all, err := db.ListBookings(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestImportSnapshotKeepsZonedTimes(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	raw := `{"bookings": {"-Nz1": {
		"userId": "u1", "venue": "board room", "date": "2024-06-10",
		"startTime": "2024-06-10T10:00:00.000Z", "endTime": "2024-06-10T11:00:00.000Z",
		"purpose": "Review", "participants": 4, "status": "approved",
		"createdAt": "2024-06-01T08:00:00.000Z"
	}}}`
	var snap models.Snapshot
	require.NoError(t, json.Unmarshal([]byte(raw), &snap))

	_, err := db.ImportSnapshot(ctx, &snap)
	require.NoError(t, err)

	var start, end string
	require.NoError(t, db.QueryRowContext(ctx, `SELECT start_time, end_time FROM bookings WHERE id = ?`, "-Nz1").Scan(&start, &end))
	assert.Equal(t, "2024-06-10T10:00:00", start)
	assert.Equal(t, "2024-06-10T11:00:00", end)

	slot, err := db.GetSlotBookings(ctx, models.VenueBoardRoom, "2024-06-10")
	require.NoError(t, err)
	require.Len(t, slot, 1)
	assert.True(t, booking.DetectConflict(models.VenueBoardRoom, "2024-06-10",
		time.Date(2024, 6, 10, 10, 30, 0, 0, time.UTC), time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC), slot))
}

func TestImportSnapshotRejectsMissingTimes(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	b := newTestBooking(models.VenueBoardRoom, "2024-06-10", "10:00", "11:00")
	b.EndTime = time.Time{}
	snap := &models.Snapshot{Bookings: map[string]*models.Booking{"-Nb2": b}}

	_, err := db.ImportSnapshot(ctx, snap)
	assert.ErrorIs(t, err, ErrMissingTimes)

	all, err := db.ListBookings(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}
