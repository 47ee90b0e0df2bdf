package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	bookingDomain "github.com/vielimo/service-booking/internal/domain/booking"
	"github.com/vielimo/service-booking/internal/domain/payment"
	roomDomain "github.com/vielimo/service-booking/internal/domain/room"
	"github.com/vielimo/service-booking/internal/events"
	"github.com/vielimo/service-booking/internal/saga"
	"github.com/vielimo/service-booking/pkg/domain"
	pkgevents "github.com/vielimo/service-booking/pkg/events"
)

// CreateBookingRequest is the public checkout form.
type CreateBookingRequest struct {
	RoomID        uuid.UUID `json:"room_id" binding:"required"`
	CheckIn       string    `json:"check_in" binding:"required"`
	CheckOut      string    `json:"check_out" binding:"required"`
	Guests        int       `json:"guests" binding:"required,gte=1"`
	CustomerName  string    `json:"customer_name" binding:"required"`
	CustomerEmail string    `json:"customer_email" binding:"required,email"`
	CustomerPhone string    `json:"customer_phone" binding:"required"`
	CouponCode    string    `json:"coupon_code"`
	Notes         string    `json:"notes"`
}

// UpdateBookingStatusRequest moves a booking through its lifecycle (admin).
type UpdateBookingStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=pending confirmed completed cancelled"`
	Reason string `json:"reason"`
}

// AddNoteRequest appends a note to a booking (admin).
type AddNoteRequest struct {
	Note string `json:"note" binding:"required"`
}

// TransactionDTO is one received transfer.
type TransactionDTO struct {
	ID            uuid.UUID `json:"id"`
	Provider      string    `json:"provider"`
	ProviderTxnID string    `json:"provider_txn_id"`
	Amount        int64     `json:"amount"`
	Reference     string    `json:"reference,omitempty"`
	ReceivedAt    time.Time `json:"received_at"`
}

// BookingDTO is the admin representation of a booking.
type BookingDTO struct {
	ID            uuid.UUID        `json:"id"`
	Code          string           `json:"code"`
	RoomID        uuid.UUID        `json:"room_id"`
	CustomerName  string           `json:"customer_name"`
	CustomerEmail string           `json:"customer_email"`
	CustomerPhone string           `json:"customer_phone"`
	CheckIn       string           `json:"check_in"`
	CheckOut      string           `json:"check_out"`
	Nights        int              `json:"nights"`
	Guests        int              `json:"guests"`
	Subtotal      int64            `json:"subtotal"`
	CouponCode    string           `json:"coupon_code,omitempty"`
	Discount      int64            `json:"discount"`
	Total         int64            `json:"total"`
	PaidAmount    int64            `json:"paid_amount"`
	PaymentStatus string           `json:"payment_status"`
	Status        string           `json:"status"`
	Notes         string           `json:"notes,omitempty"`
	Transactions  []TransactionDTO `json:"transactions,omitempty"`
	Version       int64            `json:"version"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// PaymentInstructionsDTO tells the customer how to pay by bank transfer.
type PaymentInstructionsDTO struct {
	BankName      string `json:"bank_name,omitempty"`
	AccountNumber string `json:"account_number,omitempty"`
	AccountName   string `json:"account_name,omitempty"`
	Amount        int64  `json:"amount"`
	Reference     string `json:"reference"`
}

// BookingSummaryDTO is what a customer sees for their booking code.
type BookingSummaryDTO struct {
	Code          string                  `json:"code"`
	RoomID        uuid.UUID               `json:"room_id"`
	RoomName      string                  `json:"room_name,omitempty"`
	CheckIn       string                  `json:"check_in"`
	CheckOut      string                  `json:"check_out"`
	Nights        int                     `json:"nights"`
	Guests        int                     `json:"guests"`
	Subtotal      int64                   `json:"subtotal"`
	Discount      int64                   `json:"discount"`
	Total         int64                   `json:"total"`
	PaidAmount    int64                   `json:"paid_amount"`
	PaymentStatus string                  `json:"payment_status"`
	Status        string                  `json:"status"`
	Payment       *PaymentInstructionsDTO `json:"payment,omitempty"`
}

// BookingStatsDTO holds booking statistics for the admin dashboard.
type BookingStatsDTO struct {
	TotalBookings   int64            `json:"total_bookings"`
	Revenue         int64            `json:"revenue"`
	ByStatus        map[string]int64 `json:"by_status"`
	ByPaymentStatus map[string]int64 `json:"by_payment_status"`
}

// BankAccount is where customers transfer money to.
type BankAccount struct {
	BankName      string
	AccountNumber string
	AccountName   string
}

// BookingService is the application service that orchestrates booking use cases.
type BookingService struct {
	repo      bookingDomain.BookingRepository
	txns      payment.TransactionRepository
	rooms     roomDomain.RoomRepository
	quotes    *RoomService
	checkout  *saga.CheckoutSagaService
	publisher pkgevents.Publisher
	bank      BankAccount
	logger    *zap.Logger
}

// NewBookingService creates a new BookingService.
func NewBookingService(
	repo bookingDomain.BookingRepository,
	txns payment.TransactionRepository,
	rooms roomDomain.RoomRepository,
	quotes *RoomService,
	checkout *saga.CheckoutSagaService,
	publisher pkgevents.Publisher,
	bank BankAccount,
	logger *zap.Logger,
) *BookingService {
	return &BookingService{
		repo:      repo,
		txns:      txns,
		rooms:     rooms,
		quotes:    quotes,
		checkout:  checkout,
		publisher: publisher,
		bank:      bank,
		logger:    logger,
	}
}

// CreateBooking prices the stay, checks availability and runs the checkout saga.
func (s *BookingService) CreateBooking(ctx context.Context, clientIP string, req CreateBookingRequest) (*BookingSummaryDTO, error) {
	quote, err := s.quotes.Quote(ctx, req.RoomID, QuoteRequest{
		CheckIn:  req.CheckIn,
		CheckOut: req.CheckOut,
		Guests:   req.Guests,
	})
	if err != nil {
		return nil, err
	}
	if !quote.Available {
		return nil, domain.NewConflictError(bookingDomain.SoldOutMessage)
	}

	code, err := bookingDomain.GenerateCode()
	if err != nil {
		return nil, err
	}
	checkIn, checkOut, err := parseRange(req.CheckIn, req.CheckOut)
	if err != nil {
		return nil, err
	}
	b, err := bookingDomain.NewBooking(code, req.RoomID, bookingDomain.Customer{
		Name:  req.CustomerName,
		Email: req.CustomerEmail,
		Phone: req.CustomerPhone,
	}, checkIn, checkOut, req.Guests, quote.Subtotal)
	if err != nil {
		return nil, err
	}
	b.AddNote("Booking received")
	if notes := strings.TrimSpace(req.Notes); notes != "" {
		b.AddNote("Customer: " + notes)
	}

	s.logger.Info("creating booking",
		zap.String("code", code),
		zap.String("room_id", req.RoomID.String()),
		zap.String("check_in", req.CheckIn),
		zap.String("check_out", req.CheckOut),
		zap.Int64("subtotal", quote.Subtotal),
	)

	b, err = s.checkout.Checkout(ctx, saga.CheckoutRequest{
		Booking:    b,
		RoomName:   quote.RoomName,
		CouponCode: strings.TrimSpace(req.CouponCode),
		ClientIP:   clientIP,
	})
	if err != nil {
		s.logger.Warn("checkout failed", zap.String("code", code), zap.Error(err))
		return nil, err
	}
	return s.toSummary(b, quote.RoomName), nil
}

// LookupByCode returns the customer view of a booking.
func (s *BookingService) LookupByCode(ctx context.Context, code string) (*BookingSummaryDTO, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if _, ok := bookingDomain.ExtractCode(code); !ok || len(code) != len(bookingDomain.CodePrefix)+8 {
		return nil, domain.NewValidationError("invalid booking code")
	}
	b, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return s.toSummary(b, s.roomName(ctx, b.RoomID())), nil
}

// GetBooking returns a booking with its transfers (admin).
func (s *BookingService) GetBooking(ctx context.Context, id uuid.UUID) (*BookingDTO, error) {
	b, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	dto := toBookingDTO(b)
	txns, err := s.txns.ListByBooking(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}
	for _, t := range txns {
		dto.Transactions = append(dto.Transactions, TransactionDTO{
			ID:            t.ID(),
			Provider:      t.Provider(),
			ProviderTxnID: t.ProviderTxnID(),
			Amount:        t.Amount(),
			Reference:     t.Reference(),
			ReceivedAt:    t.ReceivedAt(),
		})
	}
	return &dto, nil
}

// ListBookings returns a paginated, optionally filtered list of bookings (admin).
func (s *BookingService) ListBookings(ctx context.Context, status string, roomID *uuid.UUID, page, limit int) ([]BookingDTO, int64, error) {
	filter := bookingDomain.ListFilter{RoomID: roomID, Page: page, Limit: limit}
	if status != "" {
		st, ok := bookingDomain.ParseStatus(status)
		if !ok {
			return nil, 0, domain.NewValidationError("unknown booking status: " + status)
		}
		filter.Status = st
	}
	bookings, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	dtos := make([]BookingDTO, len(bookings))
	for i, b := range bookings {
		dtos[i] = toBookingDTO(b)
	}
	return dtos, total, nil
}

// UpdateStatus moves a booking to a new status (admin).
func (s *BookingService) UpdateStatus(ctx context.Context, id, actorID uuid.UUID, req UpdateBookingStatusRequest) (*BookingDTO, error) {
	b, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	next, _ := bookingDomain.ParseStatus(req.Status)
	if next == bookingDomain.StatusCancelled {
		err = b.Cancel(req.Reason)
	} else {
		err = b.TransitionTo(next)
		if err == nil && req.Reason != "" {
			b.AddNote(req.Reason)
		}
	}
	if err != nil {
		return nil, err
	}
	b.IncrementVersion()
	if err := s.repo.Update(ctx, b); err != nil {
		return nil, err
	}

	s.logger.Info("booking status updated",
		zap.String("code", b.Code()),
		zap.String("status", string(next)),
		zap.String("actor", actorID.String()),
	)
	s.publishStatusEvent(ctx, b, req.Reason)

	dto := toBookingDTO(b)
	return &dto, nil
}

// AddNote appends an admin note to a booking.
func (s *BookingService) AddNote(ctx context.Context, id uuid.UUID, req AddNoteRequest) (*BookingDTO, error) {
	b, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	b.AddNote(req.Note)
	b.IncrementVersion()
	if err := s.repo.Update(ctx, b); err != nil {
		return nil, err
	}
	dto := toBookingDTO(b)
	return &dto, nil
}

// GetStats returns aggregate booking statistics (admin).
func (s *BookingService) GetStats(ctx context.Context) (*BookingStatsDTO, error) {
	stats, err := s.repo.GetStats(ctx)
	if err != nil {
		return nil, err
	}
	return &BookingStatsDTO{
		TotalBookings:   stats.Total,
		Revenue:         stats.Revenue,
		ByStatus:        stats.ByStatus,
		ByPaymentStatus: stats.ByPaymentStatus,
	}, nil
}

func (s *BookingService) publishStatusEvent(ctx context.Context, b *bookingDomain.Booking, reason string) {
	snapshot := events.Snapshot(b, s.roomName(ctx, b.RoomID()))
	now := time.Now().UTC()

	var err error
	switch b.Status() {
	case bookingDomain.StatusConfirmed:
		err = pkgevents.Publish(ctx, s.publisher, pkgevents.BookingConfirmed, b.Code(),
			pkgevents.BookingConfirmedEvent{Booking: snapshot, OccurredAt: now})
	case bookingDomain.StatusCancelled:
		err = pkgevents.Publish(ctx, s.publisher, pkgevents.BookingCancelled, b.Code(),
			pkgevents.BookingCancelledEvent{Booking: snapshot, Reason: reason, OccurredAt: now})
	default:
		return
	}
	if err != nil {
		s.logger.Error("failed to publish booking status event",
			zap.String("code", b.Code()),
			zap.String("status", string(b.Status())),
			zap.Error(err),
		)
	}
}

func (s *BookingService) roomName(ctx context.Context, id uuid.UUID) string {
	r, err := s.rooms.FindByID(ctx, id)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn("failed to load room", zap.String("room_id", id.String()), zap.Error(err))
		}
		return ""
	}
	return r.Name()
}

func (s *BookingService) toSummary(b *bookingDomain.Booking, roomName string) *BookingSummaryDTO {
	summary := &BookingSummaryDTO{
		Code:          b.Code(),
		RoomID:        b.RoomID(),
		RoomName:      roomName,
		CheckIn:       b.CheckIn().Format(roomDomain.DateLayout),
		CheckOut:      b.CheckOut().Format(roomDomain.DateLayout),
		Nights:        b.Nights(),
		Guests:        b.Guests(),
		Subtotal:      b.Subtotal(),
		Discount:      b.Discount(),
		Total:         b.Total(),
		PaidAmount:    b.PaidAmount(),
		PaymentStatus: string(b.PaymentStatus()),
		Status:        string(b.Status()),
	}
	if b.CheckPayable() == nil {
		summary.Payment = &PaymentInstructionsDTO{
			BankName:      s.bank.BankName,
			AccountNumber: s.bank.AccountNumber,
			AccountName:   s.bank.AccountName,
			Amount:        b.Outstanding(),
			Reference:     b.Code(),
		}
	}
	return summary
}

// toBookingDTO maps a domain Booking to a BookingDTO.
func toBookingDTO(b *bookingDomain.Booking) BookingDTO {
	c := b.Customer()
	return BookingDTO{
		ID:            b.ID(),
		Code:          b.Code(),
		RoomID:        b.RoomID(),
		CustomerName:  c.Name,
		CustomerEmail: c.Email,
		CustomerPhone: c.Phone,
		CheckIn:       b.CheckIn().Format(roomDomain.DateLayout),
		CheckOut:      b.CheckOut().Format(roomDomain.DateLayout),
		Nights:        b.Nights(),
		Guests:        b.Guests(),
		Subtotal:      b.Subtotal(),
		CouponCode:    b.CouponCode(),
		Discount:      b.Discount(),
		Total:         b.Total(),
		PaidAmount:    b.PaidAmount(),
		PaymentStatus: string(b.PaymentStatus()),
		Status:        string(b.Status()),
		Notes:         b.Notes(),
		Version:       b.Version(),
		CreatedAt:     b.CreatedAt(),
		UpdatedAt:     b.UpdatedAt(),
	}
}
