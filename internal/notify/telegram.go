package notify

import (
	"context"
	"fmt"

	"venuebook/internal/booking"
	"venuebook/internal/domain"
	"venuebook/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramNotifier sends notifications to the chat linked to a user.
type TelegramNotifier struct {
	bot domain.TelegramSender
}

func NewTelegramNotifier(bot domain.TelegramSender) *TelegramNotifier {
	return &TelegramNotifier{bot: bot}
}

func (t *TelegramNotifier) Name() string { return "telegram" }

func (t *TelegramNotifier) Notify(ctx context.Context, user *models.User, n *models.Notification) error {
	if user == nil || user.TelegramChatID == 0 {
		return ErrNoRecipient
	}

	msg := tgbotapi.NewMessage(user.TelegramChatID, telegramText(n))
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}

func telegramText(n *models.Notification) string {
	style := booking.StyleFor(n.Type)
	return fmt.Sprintf("<b>%s</b>\n%s", tgbotapi.EscapeText(tgbotapi.ModeHTML, style.Label),
		tgbotapi.EscapeText(tgbotapi.ModeHTML, n.Message))
}
