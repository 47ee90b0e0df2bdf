package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/vielimo/service-booking/pkg/kafka"
)

// TopicBookingEvents carries every booking lifecycle event.
const TopicBookingEvents = "booking.events"

// Source is the CloudEvents source of events produced by this service.
const Source = "service-booking"

// Event types published on TopicBookingEvents.
const (
	BookingCreated         = "booking.created"
	BookingPaymentReceived = "booking.payment_received"
	BookingConfirmed       = "booking.confirmed"
	BookingCancelled       = "booking.cancelled"
)

// Publisher sends CloudEvents to a topic. *kafka.Producer implements it.
type Publisher interface {
	PublishEvent(ctx context.Context, topic string, event kafka.CloudEvent) error
}

// BookingSnapshot is the booking payload shared by all booking events.
type BookingSnapshot struct {
	BookingID     uuid.UUID `json:"booking_id"`
	Code          string    `json:"code"`
	RoomID        uuid.UUID `json:"room_id"`
	RoomName      string    `json:"room_name,omitempty"`
	CustomerName  string    `json:"customer_name"`
	CustomerEmail string    `json:"customer_email"`
	CheckIn       string    `json:"check_in"`
	CheckOut      string    `json:"check_out"`
	Guests        int       `json:"guests"`
	Subtotal      int64     `json:"subtotal"`
	Discount      int64     `json:"discount"`
	Total         int64     `json:"total"`
	PaidAmount    int64     `json:"paid_amount"`
	PaymentStatus string    `json:"payment_status"`
	Status        string    `json:"status"`
}

// BookingCreatedEvent is published once a booking is stored.
type BookingCreatedEvent struct {
	Booking    BookingSnapshot `json:"booking"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// PaymentReceivedEvent is published for every matched incoming transfer.
type PaymentReceivedEvent struct {
	Booking       BookingSnapshot `json:"booking"`
	TransactionID string          `json:"transaction_id"`
	Amount        int64           `json:"amount"`
	Outstanding   int64           `json:"outstanding"`
	Overpaid      int64           `json:"overpaid"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// BookingConfirmedEvent is published when a booking becomes confirmed.
type BookingConfirmedEvent struct {
	Booking    BookingSnapshot `json:"booking"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// BookingCancelledEvent is published when a booking is cancelled.
type BookingCancelledEvent struct {
	Booking    BookingSnapshot `json:"booking"`
	Reason     string          `json:"reason,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// Publish wraps data in a CloudEvent keyed by subject and sends it to the booking topic.
func Publish(ctx context.Context, p Publisher, eventType, subject string, data interface{}) error {
	ce, err := kafka.NewCloudEvent(Source, eventType, data)
	if err != nil {
		return err
	}
	ce.Subject = subject
	return p.PublishEvent(ctx, TopicBookingEvents, ce)
}
