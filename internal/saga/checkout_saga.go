package saga

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/vielimo/service-booking/internal/domain/booking"
	"github.com/vielimo/service-booking/internal/events"
	pkgevents "github.com/vielimo/service-booking/pkg/events"
)

// CouponRedeemer consumes one use of a coupon and returns the discount for orderTotal.
type CouponRedeemer interface {
	RedeemForBooking(ctx context.Context, clientIP, code string, orderTotal int64) (int64, error)
}

// CheckoutRequest carries what the checkout saga needs besides the booking itself.
type CheckoutRequest struct {
	Booking    *booking.Booking
	RoomName   string
	CouponCode string
	ClientIP   string
}

// CheckoutSagaService stores a new booking, redeems its coupon and announces it.
type CheckoutSagaService struct {
	repo      booking.BookingRepository
	coupons   CouponRedeemer
	publisher pkgevents.Publisher
	logger    *zap.Logger
}

// NewCheckoutSagaService creates a new CheckoutSagaService.
func NewCheckoutSagaService(
	repo booking.BookingRepository,
	coupons CouponRedeemer,
	publisher pkgevents.Publisher,
	logger *zap.Logger,
) *CheckoutSagaService {
	return &CheckoutSagaService{
		repo:      repo,
		coupons:   coupons,
		publisher: publisher,
		logger:    logger,
	}
}

// Checkout runs the booking creation saga. A failed coupon redemption cancels the stored booking.
func (s *CheckoutSagaService) Checkout(ctx context.Context, req CheckoutRequest) (*booking.Booking, error) {
	b := req.Booking
	saga := NewSaga("checkout", s.logger)
	var redeemed string

	// Step 1: Reserve a unit and save the booking as pending/unpaid
	saga.AddStep(SagaStep{
		Name: "save_booking",
		Execute: func(ctx context.Context) error {
			return s.repo.Reserve(ctx, b)
		},
		Compensate: func(ctx context.Context) error {
			// later steps may have changed b without persisting it; cancel what is stored
			stored, err := s.repo.FindByID(ctx, b.ID())
			if err != nil {
				return err
			}
			if redeemed != "" {
				stored.AddNote(fmt.Sprintf("Coupon %s was redeemed but could not be recorded", redeemed))
			}
			if err := stored.Cancel("checkout could not be completed"); err != nil {
				return err
			}
			stored.IncrementVersion()
			return s.repo.Update(ctx, stored)
		},
	})

	// Step 2: Redeem the coupon against the sheet and store the discount.
	// A consumed use cannot be given back, so there is no compensation.
	if req.CouponCode != "" {
		saga.AddStep(SagaStep{
			Name: "redeem_coupon",
			Execute: func(ctx context.Context) error {
				discount, err := s.coupons.RedeemForBooking(ctx, req.ClientIP, req.CouponCode, b.Subtotal())
				if err != nil {
					return err
				}
				redeemed = req.CouponCode
				if err := b.ApplyDiscount(req.CouponCode, discount); err != nil {
					return err
				}
				b.IncrementVersion()
				return s.repo.Update(ctx, b)
			},
		})
	}

	// Step 3: Publish BookingCreatedEvent
	saga.AddStep(SagaStep{
		Name: "publish_booking_created_event",
		Execute: func(ctx context.Context) error {
			event := pkgevents.BookingCreatedEvent{
				Booking:    events.Snapshot(b, req.RoomName),
				OccurredAt: time.Now().UTC(),
			}
			if err := pkgevents.Publish(ctx, s.publisher, pkgevents.BookingCreated, b.Code(), event); err != nil {
				// the booking stands without its notification
				s.logger.Error("failed to publish booking created event",
					zap.String("code", b.Code()),
					zap.Error(err),
				)
			}
			return nil
		},
	})

	if err := saga.Execute(ctx); err != nil {
		return nil, fmt.Errorf("checkout for booking %s: %w", b.Code(), err)
	}

	s.logger.Info("booking created",
		zap.String("code", b.Code()),
		zap.String("room_id", b.RoomID().String()),
		zap.Int64("total", b.Total()),
	)
	return b, nil
}
