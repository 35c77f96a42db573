package notify

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"venuebook/internal/database"
	"venuebook/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	gomail "gopkg.in/gomail.v2"
)

type mockSender struct {
	mock.Mock
}

func (m *mockSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	args := m.Called(c)
	return args.Get(0).(tgbotapi.Message), args.Error(1)
}

type mockMailer struct {
	sent []*gomail.Message
	err  error
}

func (m *mockMailer) DialAndSend(msgs ...*gomail.Message) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msgs...)
	return nil
}

type stubUsers struct {
	users map[string]*models.User
	err   error
}

func (s *stubUsers) GetUser(_ context.Context, id string) (*models.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	u, ok := s.users[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return u, nil
}

func (s *stubUsers) TouchUser(context.Context, *models.User) error {
	return nil
}

func (s *stubUsers) ListUsers(context.Context) ([]*models.User, error) {
	return nil, nil
}

func (s *stubUsers) SetUserRole(context.Context, string, string) error {
	return nil
}

func (s *stubUsers) SetTelegramChatID(context.Context, string, int64) error {
	return nil
}

func testNotification() *models.Notification {
	return &models.Notification{
		ID: "n1", UserID: "u1", Type: models.StatusRejected, BookingID: "b1",
		FacilityName: "Auditorium", Message: "Your booking for Auditorium has been rejected: <maintenance>",
	}
}

func TestTelegramNotifier(t *testing.T) {
	sender := new(mockSender)
	notifier := NewTelegramNotifier(sender)
	ctx := context.Background()

	err := notifier.Notify(ctx, &models.User{ID: "u1"}, testNotification())
	assert.ErrorIs(t, err, ErrNoRecipient)

	sender.On("Send", mock.MatchedBy(func(c tgbotapi.Chattable) bool {
		msg, ok := c.(tgbotapi.MessageConfig)
		return ok && msg.ChatID == 42 && msg.ParseMode == tgbotapi.ModeHTML &&
			strings.Contains(msg.Text, "<b>Rejected</b>") && strings.Contains(msg.Text, "&lt;maintenance&gt;")
	})).Return(tgbotapi.Message{}, nil).Once()

	require.NoError(t, notifier.Notify(ctx, &models.User{ID: "u1", TelegramChatID: 42}, testNotification()))
	sender.AssertExpectations(t)

	sender.On("Send", mock.Anything).Return(tgbotapi.Message{}, errors.New("blocked")).Once()
	assert.Error(t, notifier.Notify(ctx, &models.User{ID: "u1", TelegramChatID: 42}, testNotification()))
}

func TestEmailNotifier(t *testing.T) {
	mailer := &mockMailer{}
	notifier := NewEmailNotifier(mailer, "noreply@example.com")
	ctx := context.Background()

	assert.ErrorIs(t, notifier.Notify(ctx, &models.User{ID: "u1"}, testNotification()), ErrNoRecipient)

	require.NoError(t, notifier.Notify(ctx, &models.User{ID: "u1", Email: "ana@example.com"}, testNotification()))
	require.Len(t, mailer.sent, 1)

	m := mailer.sent[0]
	assert.Equal(t, []string{"ana@example.com"}, m.GetHeader("To"))
	assert.Equal(t, []string{"Booking rejected: Auditorium"}, m.GetHeader("Subject"))

	var raw bytes.Buffer
	_, err := m.WriteTo(&raw)
	require.NoError(t, err)
	assert.Contains(t, raw.String(), "ana@example.com")
	assert.Contains(t, raw.String(), "&lt;maintenance&gt;")
}

func TestDispatcher(t *testing.T) {
	logger := zerolog.New(io.Discard)
	ctx := context.Background()
	users := &stubUsers{users: map[string]*models.User{
		"u1": {ID: "u1", Email: "ana@example.com"},
	}}

	t.Run("DeliversOverAvailableChannels", func(t *testing.T) {
		mailer := &mockMailer{}
		sender := new(mockSender)
		d := NewDispatcher(users, &logger, NewTelegramNotifier(sender), NewEmailNotifier(mailer, "noreply@example.com"))

		assert.True(t, d.Enabled())
		require.NoError(t, d.Deliver(ctx, testNotification()))
		assert.Len(t, mailer.sent, 1)
		sender.AssertNotCalled(t, "Send", mock.Anything)
	})

	t.Run("FailsWhenNothingDelivered", func(t *testing.T) {
		mailer := &mockMailer{err: errors.New("smtp down")}
		d := NewDispatcher(users, &logger, NewEmailNotifier(mailer, "noreply@example.com"))

		err := d.Deliver(ctx, testNotification())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "smtp down")
	})

	t.Run("UnknownUserIsSkipped", func(t *testing.T) {
		d := NewDispatcher(users, &logger, NewEmailNotifier(&mockMailer{}, "x@example.com"))
		n := testNotification()
		n.UserID = "ghost"
		assert.NoError(t, d.Deliver(ctx, n))
	})

	t.Run("StoreError", func(t *testing.T) {
		d := NewDispatcher(&stubUsers{err: errors.New("db down")}, &logger)
		assert.False(t, d.Enabled())
		assert.Error(t, d.Deliver(ctx, testNotification()))
		assert.Error(t, d.Deliver(ctx, nil))
	})
}
