package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"html/template"

	"venuebook/internal/booking"
	"venuebook/internal/config"
	"venuebook/internal/models"

	gomail "gopkg.in/gomail.v2"
)

var emailTemplate = template.Must(template.New("notification").Parse(`<p>Hello {{.Name}},</p>
<p>{{.Message}}</p>
<p>Status: <strong>{{.Status}}</strong></p>`))

// MailSender is the part of gomail.Dialer the email notifier uses.
type MailSender interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailNotifier sends notifications over SMTP.
type EmailNotifier struct {
	sender MailSender
	from   string
}

// NewSMTPDialer builds a gomail dialer from the email config.
func NewSMTPDialer(cfg config.EmailConfig) *gomail.Dialer {
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	dialer.TLSConfig = &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}
	return dialer
}

func NewEmailNotifier(sender MailSender, from string) *EmailNotifier {
	return &EmailNotifier{sender: sender, from: from}
}

func (e *EmailNotifier) Name() string { return "email" }

func (e *EmailNotifier) Notify(ctx context.Context, user *models.User, n *models.Notification) error {
	if user == nil || user.Email == "" {
		return ErrNoRecipient
	}

	m, err := e.message(user, n)
	if err != nil {
		return err
	}
	if err := e.sender.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

func (e *EmailNotifier) message(user *models.User, n *models.Notification) (*gomail.Message, error) {
	name := user.DisplayName
	if name == "" {
		name = user.Email
	}

	var body bytes.Buffer
	err := emailTemplate.Execute(&body, struct {
		Name    string
		Message string
		Status  string
	}{name, n.Message, booking.StyleFor(n.Type).Label})
	if err != nil {
		return nil, fmt.Errorf("failed to render email: %w", err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", e.from)
	m.SetHeader("To", user.Email)
	m.SetHeader("Subject", fmt.Sprintf("Booking %s: %s", n.Type, n.FacilityName))
	m.SetBody("text/plain", n.Message)
	m.AddAlternative("text/html", body.String())
	return m, nil
}
