package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"venuebook/internal/domain"

	"github.com/rs/zerolog"
)

// ErrSlotBusy is returned when a slot lock could not be taken before the
// wait deadline.
var ErrSlotBusy = errors.New("slot is locked by another request")

const lockRetryDelay = 25 * time.Millisecond

// SlotLocker serialises booking writes for one venue and date.
type SlotLocker struct {
	store  domain.StateRepository
	ttl    time.Duration
	wait   time.Duration
	logger *zerolog.Logger
}

func NewSlotLocker(store domain.StateRepository, ttl, wait time.Duration, logger *zerolog.Logger) *SlotLocker {
	return &SlotLocker{store: store, ttl: ttl, wait: wait, logger: logger}
}

// SlotKey names the lock for a venue and date.
func SlotKey(venue, date string) string {
	return fmt.Sprintf("slot:%s|%s", venue, date)
}

// Lock blocks until the slot lock is held, the wait elapses or ctx ends.
// The returned func releases the lock.
func (l *SlotLocker) Lock(ctx context.Context, venue, date string) (func(), error) {
	key := SlotKey(venue, date)
	deadline := time.Now().Add(l.wait)

	for {
		token, ok, err := l.store.AcquireLock(ctx, key, l.ttl)
		if err != nil {
			return nil, err
		}
		if ok {
			return func() {
				// release must outlive a cancelled request context
				if err := l.store.ReleaseLock(context.WithoutCancel(ctx), key, token); err != nil {
					l.logger.Warn().Err(err).Str("slot", key).Msg("Failed to release slot lock")
				}
			}, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrSlotBusy
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetryDelay):
		}
	}
}
