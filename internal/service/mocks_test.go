package service

import (
	"context"

	"venuebook/internal/identity"
	"venuebook/internal/models"

	"github.com/stretchr/testify/mock"
)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}
func (m *mockRepo) CreateBookingWithLock(ctx context.Context, b *models.Booking) error {
	return m.Called(ctx, b).Error(0)
}
func (m *mockRepo) DecideBooking(ctx context.Context, b *models.Booking, n *models.Notification) error {
	return m.Called(ctx, b, n).Error(0)
}
func (m *mockRepo) GetSlotBookings(ctx context.Context, venue, date string) ([]*models.Booking, error) {
	args := m.Called(ctx, venue, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Booking), args.Error(1)
}
func (m *mockRepo) ListBookings(ctx context.Context) ([]*models.Booking, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Booking), args.Error(1)
}
func (m *mockRepo) GetUserBookings(ctx context.Context, userID string) ([]*models.Booking, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Booking), args.Error(1)
}
func (m *mockRepo) CountBookingsByStatus(ctx context.Context) (map[string]int, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]int), args.Error(1)
}
func (m *mockRepo) ListNotifications(ctx context.Context, userID string, unreadOnly bool) ([]*models.Notification, error) {
	args := m.Called(ctx, userID, unreadOnly)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Notification), args.Error(1)
}
func (m *mockRepo) MarkNotificationRead(ctx context.Context, id, userID string) error {
	return m.Called(ctx, id, userID).Error(0)
}

type mockUserRepo struct {
	mock.Mock
}

func (m *mockUserRepo) GetUser(ctx context.Context, id string) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}
func (m *mockUserRepo) TouchUser(ctx context.Context, u *models.User) error {
	return m.Called(ctx, u).Error(0)
}
func (m *mockUserRepo) ListUsers(ctx context.Context) ([]*models.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.User), args.Error(1)
}
func (m *mockUserRepo) SetUserRole(ctx context.Context, id, role string) error {
	return m.Called(ctx, id, role).Error(0)
}
func (m *mockUserRepo) SetTelegramChatID(ctx context.Context, id string, chatID int64) error {
	return m.Called(ctx, id, chatID).Error(0)
}

// staticPolicy grants admin to the listed user IDs.
type staticPolicy struct {
	admins    map[string]bool
	forgotten []string
}

func newStaticPolicy(admins ...string) *staticPolicy {
	p := &staticPolicy{admins: make(map[string]bool)}
	for _, a := range admins {
		p.admins[a] = true
	}
	return p
}

func (p *staticPolicy) Role(_ context.Context, principal identity.Principal) (string, error) {
	if p.admins[principal.UserID] {
		return models.RoleAdmin, nil
	}
	return models.RoleUser, nil
}

func (p *staticPolicy) Forget(_ context.Context, userID string) error {
	p.forgotten = append(p.forgotten, userID)
	return nil
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishJSON(eventType string, payload interface{}) error {
	return m.Called(eventType, payload).Error(0)
}

type mockTasks struct {
	mock.Mock
}

func (m *mockTasks) EnqueueTask(ctx context.Context, taskType string, b *models.Booking, payload any) error {
	return m.Called(ctx, taskType, b, payload).Error(0)
}
