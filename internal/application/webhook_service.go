package application

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	bookingDomain "github.com/vielimo/service-booking/internal/domain/booking"
	"github.com/vielimo/service-booking/internal/domain/payment"
	"github.com/vielimo/service-booking/internal/events"
	"github.com/vielimo/service-booking/internal/metrics"
	"github.com/vielimo/service-booking/pkg/domain"
	pkgevents "github.com/vielimo/service-booking/pkg/events"
)

// sepayTimeLayout is the transactionDate format used by SePay.
const sepayTimeLayout = "2006-01-02 15:04:05"

// maxPaymentAttempts bounds retries when a concurrent update wins the version race.
const maxPaymentAttempts = 3

// SePayWebhookRequest is the transfer notification posted by SePay.
type SePayWebhookRequest struct {
	ID              int64   `json:"id" binding:"required"`
	Gateway         string  `json:"gateway"`
	TransactionDate string  `json:"transactionDate"`
	AccountNumber   string  `json:"accountNumber"`
	Code            *string `json:"code"`
	Content         string  `json:"content"`
	TransferType    string  `json:"transferType" binding:"required"`
	TransferAmount  int64   `json:"transferAmount"`
	Accumulated     int64   `json:"accumulated"`
	SubAccount      *string `json:"subAccount"`
	ReferenceCode   string  `json:"referenceCode"`
	Description     string  `json:"description"`
}

// WebhookResult is the envelope SePay expects back.
type WebhookResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// WebhookService reconciles incoming bank transfers with bookings.
type WebhookService struct {
	repo      bookingDomain.BookingRepository
	txns      payment.TransactionRepository
	publisher pkgevents.Publisher
	apiKey    string
	logger    *zap.Logger
}

// NewWebhookService creates a new WebhookService. An empty apiKey rejects every call.
func NewWebhookService(
	repo bookingDomain.BookingRepository,
	txns payment.TransactionRepository,
	publisher pkgevents.Publisher,
	apiKey string,
	logger *zap.Logger,
) *WebhookService {
	return &WebhookService{
		repo:      repo,
		txns:      txns,
		publisher: publisher,
		apiKey:    apiKey,
		logger:    logger,
	}
}

// Authorize checks an "Apikey <key>" or "Bearer <key>" Authorization header.
func (s *WebhookService) Authorize(header string) bool {
	if s.apiKey == "" {
		return false
	}
	scheme, key, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok {
		return false
	}
	if !strings.EqualFold(scheme, "Apikey") && !strings.EqualFold(scheme, "Bearer") {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(strings.TrimSpace(key)), []byte(s.apiKey)) == 1
}

// HandleSePay applies one transfer notification. Business rejections come back as an
// unsuccessful result; only infrastructure failures are returned as errors.
func (s *WebhookService) HandleSePay(ctx context.Context, req SePayWebhookRequest) (*WebhookResult, error) {
	txnID := fmt.Sprintf("%d", req.ID)
	log := s.logger.With(zap.String("transaction_id", txnID), zap.Int64("amount", req.TransferAmount))

	if !strings.EqualFold(req.TransferType, "in") {
		metrics.PaymentWebhooks.WithLabelValues("ignored").Inc()
		log.Debug("ignoring outgoing transfer", zap.String("transfer_type", req.TransferType))
		return &WebhookResult{Success: true, Message: "outgoing transfer ignored"}, nil
	}
	if req.TransferAmount <= 0 {
		metrics.PaymentWebhooks.WithLabelValues("rejected").Inc()
		return &WebhookResult{Success: false, Message: "transfer amount must be positive"}, nil
	}

	var codeField string
	if req.Code != nil {
		codeField = *req.Code
	}
	code, ok := bookingDomain.ExtractCode(codeField, req.Content)
	if !ok {
		metrics.PaymentWebhooks.WithLabelValues("unmatched").Inc()
		log.Warn("transfer does not reference a booking", zap.String("content", req.Content))
		return &WebhookResult{Success: false, Message: "no booking code found in transfer content"}, nil
	}
	log = log.With(zap.String("code", code))

	exists, err := s.txns.Exists(ctx, payment.ProviderSePay, txnID)
	if err != nil {
		return nil, fmt.Errorf("failed to check transaction: %w", err)
	}
	if exists {
		metrics.PaymentWebhooks.WithLabelValues("duplicate").Inc()
		log.Info("duplicate transfer notification")
		return &WebhookResult{Success: false, Message: "transaction already processed"}, nil
	}

	receivedAt := parseSePayTime(req.TransactionDate)
	reference := req.ReferenceCode
	if reference == "" {
		reference = req.Content
	}

	var (
		b       *bookingDomain.Booking
		outcome bookingDomain.PaymentOutcome
	)
	for attempt := 1; ; attempt++ {
		b, err = s.repo.FindByCode(ctx, code)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				metrics.PaymentWebhooks.WithLabelValues("unmatched").Inc()
				log.Warn("transfer references an unknown booking")
				return &WebhookResult{Success: false, Message: "booking " + code + " not found"}, nil
			}
			return nil, err
		}

		outcome, err = b.ApplyPayment(req.TransferAmount, txnID)
		if err != nil {
			metrics.PaymentWebhooks.WithLabelValues("rejected").Inc()
			log.Info("transfer rejected", zap.Error(err))
			return &WebhookResult{Success: false, Message: err.Error()}, nil
		}
		b.IncrementVersion()

		txn := payment.NewTransaction(b.ID(), payment.ProviderSePay, txnID, req.TransferAmount, reference, receivedAt)
		err = s.repo.RecordPayment(ctx, b, txn)
		if err == nil {
			break
		}
		if errors.Is(err, payment.ErrDuplicateTransaction) {
			metrics.PaymentWebhooks.WithLabelValues("duplicate").Inc()
			return &WebhookResult{Success: false, Message: "transaction already processed"}, nil
		}
		if errors.Is(err, domain.ErrConflict) && attempt < maxPaymentAttempts {
			log.Info("booking changed concurrently, retrying", zap.Int("attempt", attempt))
			continue
		}
		return nil, err
	}

	metrics.PaymentWebhooks.WithLabelValues(string(outcome.Status)).Inc()
	log.Info("transfer applied",
		zap.String("payment_status", string(outcome.Status)),
		zap.Int64("paid_amount", b.PaidAmount()),
		zap.Int64("total", b.Total()),
		zap.Int64("overpaid", outcome.Overpaid),
		zap.Int64("shortfall", outcome.Shortfall),
	)
	s.publishPaymentEvents(ctx, b, outcome, txnID, req.TransferAmount)

	if outcome.Confirmed {
		msg := "payment complete, booking confirmed"
		if outcome.Overpaid > 0 {
			msg = fmt.Sprintf("%s (overpaid by %d)", msg, outcome.Overpaid)
		}
		return &WebhookResult{Success: true, Message: msg}, nil
	}
	return &WebhookResult{
		Success: true,
		Message: fmt.Sprintf("partial payment recorded, %d outstanding", outcome.Shortfall),
	}, nil
}

func (s *WebhookService) publishPaymentEvents(ctx context.Context, b *bookingDomain.Booking, outcome bookingDomain.PaymentOutcome, txnID string, amount int64) {
	snapshot := events.Snapshot(b, "")
	now := time.Now().UTC()

	if err := pkgevents.Publish(ctx, s.publisher, pkgevents.BookingPaymentReceived, b.Code(), pkgevents.PaymentReceivedEvent{
		Booking:       snapshot,
		TransactionID: txnID,
		Amount:        amount,
		Outstanding:   outcome.Shortfall,
		Overpaid:      outcome.Overpaid,
		OccurredAt:    now,
	}); err != nil {
		s.logger.Error("failed to publish payment received event", zap.String("code", b.Code()), zap.Error(err))
	}

	if !outcome.Confirmed {
		return
	}
	if err := pkgevents.Publish(ctx, s.publisher, pkgevents.BookingConfirmed, b.Code(), pkgevents.BookingConfirmedEvent{
		Booking:    snapshot,
		OccurredAt: now,
	}); err != nil {
		s.logger.Error("failed to publish booking confirmed event", zap.String("code", b.Code()), zap.Error(err))
	}
}

func parseSePayTime(s string) time.Time {
	if s == "" {
		return time.Now().UTC()
	}
	loc, err := time.LoadLocation("Asia/Ho_Chi_Minh")
	if err != nil {
		loc = time.FixedZone("ICT", 7*60*60)
	}
	t, err := time.ParseInLocation(sepayTimeLayout, s, loc)
	if err != nil {
		return time.Now().UTC()
	}
	return t.UTC()
}
