package database

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"venuebook/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrentBooking(t *testing.T) {
	logger := zerolog.Nop()
	dbPath := filepath.Join(t.TempDir(), "concurrency.db")
	db, err := NewDB(dbPath, &logger)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()

	const numGoroutines = 10
	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	results := make(chan error, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()
			// every request overlaps every other one
			b := newTestBooking(models.VenueAuditorium, "2024-07-01", fmt.Sprintf("10:%02d", id), "12:00")
			b.RequesterID = fmt.Sprintf("u%d", id)
			results <- db.CreateBookingWithLock(ctx, b)
		}(i)
	}

	wg.Wait()
	close(results)

	successCount := 0
	for err := range results {
		if err == nil {
			successCount++
			continue
		}
		assert.True(t, errors.Is(err, ErrNotAvailable), "unexpected error: %v", err)
	}

	assert.Equal(t, 1, successCount, "exactly one overlapping booking should be stored")

	slot, err := db.GetSlotBookings(ctx, models.VenueAuditorium, "2024-07-01")
	require.NoError(t, err)
	assert.Len(t, slot, 1)
}
