package booking

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vielimo/service-booking/pkg/domain"
)

// Status represents the lifecycle state of a booking.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// PaymentStatus represents how much of the total has been received.
type PaymentStatus string

const (
	PaymentUnpaid  PaymentStatus = "unpaid"
	PaymentPartial PaymentStatus = "partial"
	PaymentPaid    PaymentStatus = "paid"
)

// SoldOutMessage is reported when every unit of a room is taken for the requested stay.
const SoldOutMessage = "no rooms of this type are free for the selected dates"

// CodePrefix starts every booking code. Customers put the code in the transfer description.
const CodePrefix = "VL"

const (
	codeLength   = 8
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	noteLayout   = "2006-01-02 15:04"
)

var codePattern = regexp.MustCompile(`(?i)` + CodePrefix + `[A-Z0-9]{8}`)

var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled},
}

// ParseStatus validates a status string.
func ParseStatus(s string) (Status, bool) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled:
		return st, true
	}
	return "", false
}

// GenerateCode returns a random booking code such as VL7K2M9QXA.
func GenerateCode() (string, error) {
	var sb strings.Builder
	sb.WriteString(CodePrefix)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := 0; i < codeLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate booking code: %w", err)
		}
		sb.WriteByte(codeAlphabet[n.Int64()])
	}
	return sb.String(), nil
}

// ExtractCode returns the first booking code found in texts, checked in order.
func ExtractCode(texts ...string) (string, bool) {
	for _, t := range texts {
		if m := codePattern.FindString(t); m != "" {
			return strings.ToUpper(m), true
		}
	}
	return "", false
}

// Customer is the guest contact attached to a booking.
type Customer struct {
	Name  string
	Email string
	Phone string
}

func (c Customer) validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return domain.NewValidationError("customer name is required")
	}
	if _, err := mail.ParseAddress(c.Email); err != nil {
		return domain.NewValidationError("customer email is invalid")
	}
	if strings.TrimSpace(c.Phone) == "" {
		return domain.NewValidationError("customer phone is required")
	}
	return nil
}

// PaymentOutcome describes the effect of one incoming transfer.
type PaymentOutcome struct {
	Status    PaymentStatus
	Confirmed bool
	Overpaid  int64
	Shortfall int64
}

// Booking is the aggregate root for a room reservation.
type Booking struct {
	id            uuid.UUID
	code          string
	roomID        uuid.UUID
	customer      Customer
	checkIn       time.Time
	checkOut      time.Time
	guests        int
	subtotal      int64
	couponCode    string
	discount      int64
	total         int64
	paidAmount    int64
	paymentStatus PaymentStatus
	status        Status
	notes         string
	version       int64
	createdAt     time.Time
	updatedAt     time.Time
}

// NewBooking creates a pending, unpaid booking.
func NewBooking(code string, roomID uuid.UUID, customer Customer, checkIn, checkOut time.Time, guests int, subtotal int64) (*Booking, error) {
	if err := customer.validate(); err != nil {
		return nil, err
	}
	if !checkOut.After(checkIn) {
		return nil, domain.NewValidationError("check-out must be after check-in")
	}
	if guests < 1 {
		return nil, domain.NewValidationError("at least one guest is required")
	}
	if subtotal <= 0 {
		return nil, domain.NewValidationError("booking total must be positive")
	}
	now := time.Now().UTC()
	customer.Name = strings.TrimSpace(customer.Name)
	customer.Email = strings.TrimSpace(customer.Email)
	customer.Phone = strings.TrimSpace(customer.Phone)
	return &Booking{
		id:            uuid.New(),
		code:          code,
		roomID:        roomID,
		customer:      customer,
		checkIn:       checkIn,
		checkOut:      checkOut,
		guests:        guests,
		subtotal:      subtotal,
		total:         subtotal,
		paymentStatus: PaymentUnpaid,
		status:        StatusPending,
		version:       1,
		createdAt:     now,
		updatedAt:     now,
	}, nil
}

// ApplyDiscount records a redeemed coupon. Only unpaid pending bookings accept a discount.
func (b *Booking) ApplyDiscount(couponCode string, discount int64) error {
	if b.status != StatusPending || b.paymentStatus != PaymentUnpaid {
		return domain.NewValidationError("discounts can only be applied to unpaid pending bookings")
	}
	if discount < 0 {
		discount = 0
	}
	if discount > b.subtotal {
		discount = b.subtotal
	}
	b.couponCode = couponCode
	b.discount = discount
	b.total = b.subtotal - discount
	b.AddNote(fmt.Sprintf("Coupon %s applied, discount %d", couponCode, discount))
	return nil
}

// TransitionTo moves the booking to next if the lifecycle allows it.
func (b *Booking) TransitionTo(next Status) error {
	for _, allowed := range transitions[b.status] {
		if allowed == next {
			b.AddNote(fmt.Sprintf("Status changed from %s to %s", b.status, next))
			b.status = next
			return nil
		}
	}
	return domain.NewInvalidStateError(string(b.status), string(next))
}

// Cancel moves the booking to cancelled and records why.
func (b *Booking) Cancel(reason string) error {
	if err := b.TransitionTo(StatusCancelled); err != nil {
		return err
	}
	if reason != "" {
		b.AddNote("Cancelled: " + reason)
	}
	return nil
}

// CheckPayable rejects transfers for bookings that are settled or cancelled.
func (b *Booking) CheckPayable() error {
	switch {
	case b.paymentStatus == PaymentPaid:
		return domain.NewConflictError(fmt.Sprintf("booking %s is already paid", b.code))
	case b.status == StatusConfirmed || b.status == StatusCompleted:
		return domain.NewConflictError(fmt.Sprintf("booking %s is already %s", b.code, b.status))
	case b.status == StatusCancelled:
		return domain.NewConflictError(fmt.Sprintf("booking %s is cancelled", b.code))
	}
	return nil
}

// ApplyPayment adds a transfer to the paid amount. Reaching the total marks the booking paid
// and confirmed; anything less leaves the status alone and records the shortfall.
func (b *Booking) ApplyPayment(amount int64, transactionID string) (PaymentOutcome, error) {
	if err := b.CheckPayable(); err != nil {
		return PaymentOutcome{}, err
	}
	if amount <= 0 {
		return PaymentOutcome{}, domain.NewValidationError("transfer amount must be positive")
	}

	b.paidAmount += amount
	b.AddNote(fmt.Sprintf("Received transfer %s of %d (paid %d of %d)", transactionID, amount, b.paidAmount, b.total))

	if b.paidAmount >= b.total {
		b.paymentStatus = PaymentPaid
		b.status = StatusConfirmed
		out := PaymentOutcome{Status: PaymentPaid, Confirmed: true, Overpaid: b.paidAmount - b.total}
		if out.Overpaid > 0 {
			b.AddNote(fmt.Sprintf("Overpaid by %d", out.Overpaid))
		}
		b.AddNote("Payment complete, booking confirmed")
		return out, nil
	}

	b.paymentStatus = PaymentPartial
	out := PaymentOutcome{Status: PaymentPartial, Shortfall: b.total - b.paidAmount}
	b.AddNote(fmt.Sprintf("Partial payment, %d outstanding", out.Shortfall))
	return out, nil
}

// AddNote appends a timestamped line to the notes.
func (b *Booking) AddNote(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	now := time.Now().UTC()
	line := fmt.Sprintf("[%s] %s", now.Format(noteLayout), text)
	if b.notes == "" {
		b.notes = line
	} else {
		b.notes += "\n" + line
	}
	b.updatedAt = now
}

// Nights is the length of the stay.
func (b *Booking) Nights() int {
	return int(b.checkOut.Sub(b.checkIn).Hours() / 24)
}

// Outstanding is what is left to pay.
func (b *Booking) Outstanding() int64 {
	if b.paidAmount >= b.total {
		return 0
	}
	return b.total - b.paidAmount
}

// IncrementVersion bumps the version for optimistic locking.
func (b *Booking) IncrementVersion() {
	b.version++
	b.updatedAt = time.Now().UTC()
}

// Getters.
func (b *Booking) ID() uuid.UUID                { return b.id }
func (b *Booking) Code() string                 { return b.code }
func (b *Booking) RoomID() uuid.UUID            { return b.roomID }
func (b *Booking) Customer() Customer           { return b.customer }
func (b *Booking) CheckIn() time.Time           { return b.checkIn }
func (b *Booking) CheckOut() time.Time          { return b.checkOut }
func (b *Booking) Guests() int                  { return b.guests }
func (b *Booking) Subtotal() int64              { return b.subtotal }
func (b *Booking) CouponCode() string           { return b.couponCode }
func (b *Booking) Discount() int64              { return b.discount }
func (b *Booking) Total() int64                 { return b.total }
func (b *Booking) PaidAmount() int64            { return b.paidAmount }
func (b *Booking) PaymentStatus() PaymentStatus { return b.paymentStatus }
func (b *Booking) Status() Status               { return b.status }
func (b *Booking) Notes() string                { return b.notes }
func (b *Booking) Version() int64               { return b.version }
func (b *Booking) CreatedAt() time.Time         { return b.createdAt }
func (b *Booking) UpdatedAt() time.Time         { return b.updatedAt }

// Reconstitute rebuilds a Booking from persisted data.
func Reconstitute(
	id uuid.UUID,
	code string,
	roomID uuid.UUID,
	customer Customer,
	checkIn, checkOut time.Time,
	guests int,
	subtotal int64,
	couponCode string,
	discount, total, paidAmount int64,
	paymentStatus PaymentStatus,
	status Status,
	notes string,
	version int64,
	createdAt, updatedAt time.Time,
) *Booking {
	return &Booking{
		id:            id,
		code:          code,
		roomID:        roomID,
		customer:      customer,
		checkIn:       checkIn,
		checkOut:      checkOut,
		guests:        guests,
		subtotal:      subtotal,
		couponCode:    couponCode,
		discount:      discount,
		total:         total,
		paidAmount:    paidAmount,
		paymentStatus: paymentStatus,
		status:        status,
		notes:         notes,
		version:       version,
		createdAt:     createdAt,
		updatedAt:     updatedAt,
	}
}
