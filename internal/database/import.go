package database

import (
	"context"
	"errors"
	"fmt"

	"venuebook/internal/models"
)

// ErrMissingTimes rejects imported bookings without a start or end time; such
// records could never take part in conflict checks.
var ErrMissingTimes = errors.New("booking has no start or end time")

// ImportStats counts the records written by ImportSnapshot.
type ImportStats struct {
	Bookings      int
	Notifications int
	Users         int
}

// ImportSnapshot writes a realtime database export in one transaction.
// Existing records with the same IDs are replaced. A booking without start
// or end time aborts the import.
func (db *DB) ImportSnapshot(ctx context.Context, snap *models.Snapshot) (ImportStats, error) {
	var stats ImportStats
	snap.Normalize()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return stats, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for id, b := range snap.Bookings {
		if b == nil {
			continue
		}
		if b.StartTime.IsZero() || b.EndTime.IsZero() {
			return stats, fmt.Errorf("failed to import booking %s: %w", id, ErrMissingTimes)
		}
		if b.FacilityName == "" {
			b.FacilityName = models.FacilityName(b.Venue)
		}
		if err := insertBooking(ctx, tx, b, true); err != nil {
			return stats, fmt.Errorf("failed to import booking %s: %w", id, err)
		}
		stats.Bookings++
	}

	for id, n := range snap.Notifications {
		if n == nil {
			continue
		}
		if err := insertNotification(ctx, tx, n, true); err != nil {
			return stats, fmt.Errorf("failed to import notification %s: %w", id, err)
		}
		stats.Notifications++
	}

	for id, u := range snap.Users {
		if u == nil {
			continue
		}
		if err := upsertUser(ctx, tx, u); err != nil {
			return stats, fmt.Errorf("failed to import user %s: %w", id, err)
		}
		stats.Users++
	}

	if err := tx.Commit(); err != nil {
		return ImportStats{}, fmt.Errorf("failed to commit import: %w", err)
	}
	return stats, nil
}
