package notifications

import (
	"context"
	"fmt"
	"log"
	"net/smtp"
	"strings"

	"github.com/jgirmay/circle_realtime/pkg/config"
	"github.com/jgirmay/circle_realtime/pkg/models"
)

// NotificationEmail is one immediate notification
type NotificationEmail struct {
	To             string
	Type           models.NotificationType
	SenderUsername string
	Content        string
	PostLink       string
}

// DigestEntry is one line of a digest
type DigestEntry struct {
	Type           models.NotificationType
	SenderUsername string
	Content        string
}

// DigestEmail is a batch of notifications for one recipient
type DigestEmail struct {
	To                string
	Frequency         models.NotificationFrequency
	Entries           []DigestEntry
	NotificationsLink string
}

// Mailer is the outbound email capability
type Mailer interface {
	SendNotification(ctx context.Context, email NotificationEmail) error
	SendDigest(ctx context.Context, email DigestEmail) error
}

// NewMailer returns the mailer selected by cfg.Provider
func NewMailer(cfg config.EmailConfig) Mailer {
	if cfg.Provider == "smtp" {
		return NewSMTPMailer(cfg)
	}
	return LogMailer{}
}

// SMTPMailer sends HTML email through an SMTP relay
type SMTPMailer struct {
	host     string
	port     int
	username string
	password string
	from     string

	// send is smtp.SendMail, replaceable in tests
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPMailer creates an SMTP mailer
func NewSMTPMailer(cfg config.EmailConfig) *SMTPMailer {
	return &SMTPMailer{
		host:     cfg.SMTPHost,
		port:     cfg.SMTPPort,
		username: cfg.Username,
		password: cfg.Password,
		from:     cfg.From,
		send:     smtp.SendMail,
	}
}

// SendNotification sends an immediate notification email
func (m *SMTPMailer) SendNotification(ctx context.Context, email NotificationEmail) error {
	subject, body, err := RenderNotification(email)
	if err != nil {
		return err
	}
	return m.deliver(ctx, email.To, subject, body)
}

// SendDigest sends a digest email
func (m *SMTPMailer) SendDigest(ctx context.Context, email DigestEmail) error {
	subject, body, err := RenderDigest(email)
	if err != nil {
		return err
	}
	return m.deliver(ctx, email.To, subject, body)
}

func (m *SMTPMailer) deliver(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrDelivery, err)
	}
	if to == "" {
		return fmt.Errorf("%w: recipient has no email address", ErrDelivery)
	}

	headers := []string{
		"From: " + m.from,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		`Content-Type: text/html; charset="UTF-8"`,
	}
	message := strings.Join(headers, "\r\n") + "\r\n\r\n" + body

	var auth smtp.Auth
	if m.username != "" {
		auth = smtp.PlainAuth("", m.username, m.password, m.host)
	}
	addr := fmt.Sprintf("%s:%d", m.host, m.port)

	if err := m.send(addr, auth, m.from, []string{to}, []byte(message)); err != nil {
		return fmt.Errorf("%w: %w", ErrDelivery, err)
	}
	return nil
}

// LogMailer logs emails instead of sending them
type LogMailer struct{}

// SendNotification logs an immediate notification email
func (LogMailer) SendNotification(ctx context.Context, email NotificationEmail) error {
	subject, _, err := RenderNotification(email)
	if err != nil {
		return err
	}
	log.Printf("[MAIL] to=%s subject=%q link=%s", email.To, subject, email.PostLink)
	return nil
}

// SendDigest logs a digest email
func (LogMailer) SendDigest(ctx context.Context, email DigestEmail) error {
	subject, _, err := RenderDigest(email)
	if err != nil {
		return err
	}
	log.Printf("[MAIL] to=%s subject=%q entries=%d", email.To, subject, len(email.Entries))
	return nil
}
