package notify

import (
	"context"
	"errors"
	"fmt"

	"venuebook/internal/database"
	"venuebook/internal/domain"
	"venuebook/internal/models"

	"github.com/rs/zerolog"
)

// ErrNoRecipient means the user has no address on a channel. It is not a
// delivery failure.
var ErrNoRecipient = errors.New("no recipient address for channel")

// Dispatcher delivers a stored notification over every configured channel.
type Dispatcher struct {
	users     domain.UserRepository
	notifiers []domain.Notifier
	logger    *zerolog.Logger
}

func NewDispatcher(users domain.UserRepository, logger *zerolog.Logger, notifiers ...domain.Notifier) *Dispatcher {
	return &Dispatcher{users: users, notifiers: notifiers, logger: logger}
}

// Enabled reports whether any channel is configured.
func (d *Dispatcher) Enabled() bool {
	return len(d.notifiers) > 0
}

// Deliver sends n. It fails only when no channel delivered and at least one
// channel errored, so a retry does not repeat a successful delivery.
func (d *Dispatcher) Deliver(ctx context.Context, n *models.Notification) error {
	if n == nil {
		return errors.New("notification is nil")
	}

	u, err := d.users.GetUser(ctx, n.UserID)
	if errors.Is(err, database.ErrNotFound) {
		d.logger.Warn().Str("user_id", n.UserID).Msg("Notification recipient is unknown, skipping delivery")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load recipient: %w", err)
	}

	var failures []error
	delivered := 0
	for _, notifier := range d.notifiers {
		err := notifier.Notify(ctx, u, n)
		switch {
		case err == nil:
			delivered++
			d.logger.Info().Str("channel", notifier.Name()).Str("user_id", u.ID).Str("booking_id", n.BookingID).Msg("Notification delivered")
		case errors.Is(err, ErrNoRecipient):
		default:
			d.logger.Error().Err(err).Str("channel", notifier.Name()).Str("user_id", u.ID).Msg("Notification delivery failed")
			failures = append(failures, fmt.Errorf("%s: %w", notifier.Name(), err))
		}
	}

	if delivered == 0 && len(failures) > 0 {
		return errors.Join(failures...)
	}
	return nil
}
