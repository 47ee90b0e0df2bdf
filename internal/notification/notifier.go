package notification

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"strconv"
	"time"

	"go.uber.org/zap"

	pkgevents "github.com/vielimo/service-booking/pkg/events"
	"github.com/vielimo/service-booking/pkg/kafka"
)

//go:embed templates/*.html
var templateFS embed.FS

const sendAttempts = 3

// BankDetails is printed in payment instructions.
type BankDetails struct {
	BankName      string
	AccountNumber string
	AccountName   string
}

type mailData struct {
	Booking     pkgevents.BookingSnapshot
	Bank        BankDetails
	Amount      int64
	Outstanding int64
	Overpaid    int64
	Reason      string
}

type mail struct {
	template string
	subject  string
	to       string
}

// Notifier turns booking events into emails.
type Notifier struct {
	sender     EmailSender
	templates  *template.Template
	adminEmail string
	bank       BankDetails
	backoff    time.Duration
	logger     *zap.Logger
}

// NewNotifier parses the email templates. adminEmail may be empty.
func NewNotifier(sender EmailSender, adminEmail string, bank BankDetails, logger *zap.Logger) (*Notifier, error) {
	tmpls, err := template.New("mail").
		Funcs(template.FuncMap{"money": FormatMoney}).
		ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse email templates: %w", err)
	}
	return &Notifier{
		sender:     sender,
		templates:  tmpls,
		adminEmail: adminEmail,
		bank:       bank,
		backoff:    time.Second,
		logger:     logger,
	}, nil
}

// HandleEvent sends the emails for one booking event. Unknown event types are ignored.
func (n *Notifier) HandleEvent(ctx context.Context, ce kafka.CloudEvent) error {
	var (
		data  mailData
		mails []mail
	)

	switch ce.Type {
	case pkgevents.BookingCreated:
		var ev pkgevents.BookingCreatedEvent
		if err := ce.ParseData(&ev); err != nil {
			return fmt.Errorf("invalid %s payload: %w", ce.Type, err)
		}
		data.Booking = ev.Booking
		mails = append(mails, mail{"booking_received.html", "We received your booking " + ev.Booking.Code, ev.Booking.CustomerEmail})

	case pkgevents.BookingPaymentReceived:
		var ev pkgevents.PaymentReceivedEvent
		if err := ce.ParseData(&ev); err != nil {
			return fmt.Errorf("invalid %s payload: %w", ce.Type, err)
		}
		data.Booking = ev.Booking
		data.Amount = ev.Amount
		data.Outstanding = ev.Outstanding
		data.Overpaid = ev.Overpaid
		subject := "Payment received for booking " + ev.Booking.Code
		if ev.Outstanding > 0 {
			subject = "Partial payment received for booking " + ev.Booking.Code
		}
		mails = append(mails, mail{"payment_received.html", subject, ev.Booking.CustomerEmail})

	case pkgevents.BookingConfirmed:
		var ev pkgevents.BookingConfirmedEvent
		if err := ce.ParseData(&ev); err != nil {
			return fmt.Errorf("invalid %s payload: %w", ce.Type, err)
		}
		data.Booking = ev.Booking
		mails = append(mails, mail{"booking_confirmed.html", "Booking " + ev.Booking.Code + " confirmed", ev.Booking.CustomerEmail})
		if n.adminEmail != "" {
			mails = append(mails, mail{"admin_confirmed.html", "[Admin] Booking " + ev.Booking.Code + " confirmed", n.adminEmail})
		}

	case pkgevents.BookingCancelled:
		var ev pkgevents.BookingCancelledEvent
		if err := ce.ParseData(&ev); err != nil {
			return fmt.Errorf("invalid %s payload: %w", ce.Type, err)
		}
		data.Booking = ev.Booking
		data.Reason = ev.Reason
		mails = append(mails, mail{"booking_cancelled.html", "Booking " + ev.Booking.Code + " cancelled", ev.Booking.CustomerEmail})

	default:
		n.logger.Debug("no notification for event type", zap.String("type", ce.Type))
		return nil
	}

	data.Bank = n.bank
	for _, m := range mails {
		if m.to == "" {
			n.logger.Warn("missing recipient, skipping email",
				zap.String("event", ce.Type),
				zap.String("template", m.template),
			)
			continue
		}
		body, err := n.Render(m.template, data)
		if err != nil {
			return err
		}
		n.sendWithRetry(ctx, ce.Type, m.to, m.subject, body)
	}
	return nil
}

// Render executes a named template.
func (n *Notifier) Render(name string, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := n.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("template render failed: %w", err)
	}
	return buf.String(), nil
}

// sendWithRetry gives up after sendAttempts; a lost email must not block the event stream.
func (n *Notifier) sendWithRetry(ctx context.Context, event, to, subject, body string) {
	var (
		lastErr error
		result  SendResult
	)
	for attempt := 0; attempt < sendAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Duration(attempt) * n.backoff):
			}
		}
		result, lastErr = n.sender.SendEmail(ctx, to, subject, body)
		if lastErr == nil {
			break
		}
		n.logger.Warn("send attempt failed",
			zap.String("event", event),
			zap.Int("attempt", attempt+1),
			zap.Error(lastErr),
		)
	}

	if lastErr != nil {
		n.logger.Error("notification failed",
			zap.String("event", event),
			zap.String("to", to),
			zap.Error(lastErr),
		)
		return
	}
	n.logger.Info("notification sent",
		zap.String("event", event),
		zap.String("to", to),
		zap.String("message_id", result.MessageID),
	)
}

// FormatMoney renders an amount in dong with thousands separators, e.g. 1.500.000 ₫.
func FormatMoney(amount int64) string {
	neg := amount < 0
	if neg {
		amount = -amount
	}
	digits := strconv.FormatInt(amount, 10)
	var out []byte
	for i := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			out = append(out, '.')
		}
		out = append(out, digits[i])
	}
	s := string(out) + " ₫"
	if neg {
		s = "-" + s
	}
	return s
}
