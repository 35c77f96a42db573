package domain

import (
	"context"
	"time"

	"venuebook/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Repository is the persistent store behind the booking service.
type Repository interface {
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	CreateBookingWithLock(ctx context.Context, booking *models.Booking) error
	DecideBooking(ctx context.Context, decided *models.Booking, n *models.Notification) error
	GetSlotBookings(ctx context.Context, venue, date string) ([]*models.Booking, error)
	ListBookings(ctx context.Context) ([]*models.Booking, error)
	GetUserBookings(ctx context.Context, userID string) ([]*models.Booking, error)
	CountBookingsByStatus(ctx context.Context) (map[string]int, error)
	ListNotifications(ctx context.Context, userID string, unreadOnly bool) ([]*models.Notification, error)
	MarkNotificationRead(ctx context.Context, id, userID string) error
}

// UserRepository stores user profiles and roles.
type UserRepository interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	TouchUser(ctx context.Context, u *models.User) error
	ListUsers(ctx context.Context) ([]*models.User, error)
	SetUserRole(ctx context.Context, id, role string) error
	SetTelegramChatID(ctx context.Context, id string, chatID int64) error
}

// StateRepository holds short-lived coordination state: rate limit
// counters, slot locks and cached values.
type StateRepository interface {
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	ReleaseLock(ctx context.Context, key, token string) error
	GetCached(ctx context.Context, key string) (string, bool, error)
	SetCached(ctx context.Context, key, value string, ttl time.Duration) error
	DeleteCached(ctx context.Context, key string) error
}

// SlotLocker serialises writes for one venue and date.
type SlotLocker interface {
	Lock(ctx context.Context, venue, date string) (unlock func(), err error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// TaskQueue schedules background work for a booking.
type TaskQueue interface {
	EnqueueTask(ctx context.Context, taskType string, booking *models.Booking, payload any) error
}

// TelegramSender is the part of the bot API the notifier uses.
type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier delivers a notification to its recipient over one channel.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, user *models.User, n *models.Notification) error
}

// SheetsWriter mirrors bookings into a spreadsheet.
type SheetsWriter interface {
	UpsertBooking(ctx context.Context, booking *models.Booking) error
	UpdateBookingStatus(ctx context.Context, bookingID string, status string) error
}
