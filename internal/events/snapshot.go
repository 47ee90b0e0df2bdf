package events

import (
	"github.com/vielimo/service-booking/internal/domain/booking"
	"github.com/vielimo/service-booking/internal/domain/room"
	pkgevents "github.com/vielimo/service-booking/pkg/events"
)

// Snapshot captures the event payload for a booking.
func Snapshot(b *booking.Booking, roomName string) pkgevents.BookingSnapshot {
	c := b.Customer()
	return pkgevents.BookingSnapshot{
		BookingID:     b.ID(),
		Code:          b.Code(),
		RoomID:        b.RoomID(),
		RoomName:      roomName,
		CustomerName:  c.Name,
		CustomerEmail: c.Email,
		CheckIn:       b.CheckIn().Format(room.DateLayout),
		CheckOut:      b.CheckOut().Format(room.DateLayout),
		Guests:        b.Guests(),
		Subtotal:      b.Subtotal(),
		Discount:      b.Discount(),
		Total:         b.Total(),
		PaidAmount:    b.PaidAmount(),
		PaymentStatus: string(b.PaymentStatus()),
		Status:        string(b.Status()),
	}
}
