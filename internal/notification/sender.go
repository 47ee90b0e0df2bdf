package notification

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"go.uber.org/zap"
)

// SendResult identifies a delivered message.
type SendResult struct {
	MessageID string
	SentAt    time.Time
}

// EmailSender delivers one HTML email.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) (SendResult, error)
}

// SMTPConfig holds the outgoing mail server settings.
type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

// Enabled reports whether enough is configured to send mail.
func (c SMTPConfig) Enabled() bool {
	return c.Host != "" && c.Port != ""
}

// SMTPSender sends mail through an SMTP relay with PLAIN auth.
type SMTPSender struct {
	cfg SMTPConfig
}

// NewSMTPSender validates cfg and returns a sender.
func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("SMTP_HOST not set")
	}
	if cfg.Port == "" {
		return nil, fmt.Errorf("SMTP_PORT not set")
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("SMTP_FROM not set")
	}
	return &SMTPSender{cfg: cfg}, nil
}

// SendEmail sends body as text/html.
func (s *SMTPSender) SendEmail(ctx context.Context, to, subject, body string) (SendResult, error) {
	if err := ctx.Err(); err != nil {
		return SendResult{}, err
	}
	addr := s.cfg.Host + ":" + s.cfg.Port
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	msg := []byte(
		"From: " + s.cfg.From + "\r\n" +
			"To: " + to + "\r\n" +
			"Subject: " + sanitizeHeader(subject) + "\r\n" +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/html; charset=UTF-8\r\n" +
			"\r\n" +
			body,
	)

	if err := smtp.SendMail(addr, auth, s.cfg.From, []string{to}, msg); err != nil {
		return SendResult{}, fmt.Errorf("smtp send failed: %w", err)
	}

	now := time.Now()
	return SendResult{
		MessageID: fmt.Sprintf("smtp-%d", now.UnixNano()),
		SentAt:    now,
	}, nil
}

// LogSender writes emails to the log instead of sending them. Used when SMTP is not configured.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender creates a LogSender.
func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// SendEmail logs the message.
func (s *LogSender) SendEmail(_ context.Context, to, subject, body string) (SendResult, error) {
	now := time.Now()
	s.logger.Info("[LOG MAIL] email not sent, SMTP is not configured",
		zap.String("to", to),
		zap.String("subject", subject),
		zap.Int("body_bytes", len(body)),
	)
	return SendResult{MessageID: fmt.Sprintf("log-%d", now.UnixNano()), SentAt: now}, nil
}

func sanitizeHeader(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}
