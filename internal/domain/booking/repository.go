package booking

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/vielimo/service-booking/internal/domain/payment"
)

// ListFilter narrows the admin booking list.
type ListFilter struct {
	Status Status
	RoomID *uuid.UUID
	Page   int
	Limit  int
}

// Stats aggregates bookings for the admin dashboard.
type Stats struct {
	Total           int64
	ByStatus        map[string]int64
	ByPaymentStatus map[string]int64
	Revenue         int64
}

// BookingRepository defines the persistence contract for Booking aggregates.
type BookingRepository interface {
	// Save persists a new booking.
	Save(ctx context.Context, b *Booking) error

	// Reserve persists a new booking if fewer than the room's total units are taken for
	// its stay, checked and inserted atomically. A full room yields a conflict error.
	Reserve(ctx context.Context, b *Booking) error

	// Update persists changes with optimistic locking on the version column.
	Update(ctx context.Context, b *Booking) error

	// RecordPayment updates the booking and stores the transfer in one transaction.
	// A transfer id that is already stored yields payment.ErrDuplicateTransaction.
	RecordPayment(ctx context.Context, b *Booking, txn *payment.Transaction) error

	FindByID(ctx context.Context, id uuid.UUID) (*Booking, error)
	FindByCode(ctx context.Context, code string) (*Booking, error)
	List(ctx context.Context, filter ListFilter) ([]*Booking, int64, error)

	// CountOverlapping counts non-cancelled bookings of a room whose stay intersects [checkIn, checkOut).
	CountOverlapping(ctx context.Context, roomID uuid.UUID, checkIn, checkOut time.Time) (int64, error)

	GetStats(ctx context.Context) (*Stats, error)
}
