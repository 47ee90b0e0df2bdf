package application

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	bookingDomain "github.com/vielimo/service-booking/internal/domain/booking"
	"github.com/vielimo/service-booking/internal/domain/payment"
	roomDomain "github.com/vielimo/service-booking/internal/domain/room"
	"github.com/vielimo/service-booking/pkg/domain"
	pkgevents "github.com/vielimo/service-booking/pkg/events"
	"github.com/vielimo/service-booking/pkg/kafka"
)

// fakeBookingRepo is an in-memory BookingRepository with optimistic locking.
type fakeBookingRepo struct {
	mu          sync.Mutex
	bookings    map[uuid.UUID]*bookingDomain.Booking
	txns        map[string]*payment.Transaction
	conflicts   int
	findErr     error
	recordCalls int
	// units caps Reserve per room; rooms missing from it are unlimited
	units map[uuid.UUID]int
}

func newFakeBookingRepo() *fakeBookingRepo {
	return &fakeBookingRepo{
		bookings: make(map[uuid.UUID]*bookingDomain.Booking),
		txns:     make(map[string]*payment.Transaction),
		units:    make(map[uuid.UUID]int),
	}
}

func cloneBooking(b *bookingDomain.Booking) *bookingDomain.Booking {
	return bookingDomain.Reconstitute(
		b.ID(), b.Code(), b.RoomID(), b.Customer(),
		b.CheckIn(), b.CheckOut(), b.Guests(), b.Subtotal(),
		b.CouponCode(), b.Discount(), b.Total(), b.PaidAmount(),
		b.PaymentStatus(), b.Status(), b.Notes(), b.Version(),
		b.CreatedAt(), b.UpdatedAt(),
	)
}

func (r *fakeBookingRepo) Save(_ context.Context, b *bookingDomain.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bookings[b.ID()] = cloneBooking(b)
	return nil
}

func (r *fakeBookingRepo) Reserve(_ context.Context, b *bookingDomain.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if units, ok := r.units[b.RoomID()]; ok && r.countLocked(b.RoomID(), b.CheckIn(), b.CheckOut()) >= int64(units) {
		return domain.NewConflictError(bookingDomain.SoldOutMessage)
	}
	r.bookings[b.ID()] = cloneBooking(b)
	return nil
}

func (r *fakeBookingRepo) updateLocked(b *bookingDomain.Booking) error {
	stored, ok := r.bookings[b.ID()]
	if !ok {
		return domain.NewNotFoundError("Booking", b.ID().String())
	}
	if r.conflicts > 0 {
		r.conflicts--
		return domain.NewConflictError("booking was modified concurrently")
	}
	if stored.Version() != b.Version()-1 {
		return domain.NewConflictError("booking was modified concurrently")
	}
	r.bookings[b.ID()] = cloneBooking(b)
	return nil
}

func (r *fakeBookingRepo) Update(_ context.Context, b *bookingDomain.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updateLocked(b)
}

func (r *fakeBookingRepo) RecordPayment(_ context.Context, b *bookingDomain.Booking, txn *payment.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recordCalls++
	key := txn.Provider() + ":" + txn.ProviderTxnID()
	if _, dup := r.txns[key]; dup {
		return payment.ErrDuplicateTransaction
	}
	if err := r.updateLocked(b); err != nil {
		return err
	}
	r.txns[key] = txn
	return nil
}

func (r *fakeBookingRepo) FindByID(_ context.Context, id uuid.UUID) (*bookingDomain.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.bookings[id]; ok {
		return cloneBooking(b), nil
	}
	return nil, domain.NewNotFoundError("Booking", id.String())
}

func (r *fakeBookingRepo) FindByCode(_ context.Context, code string) (*bookingDomain.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	for _, b := range r.bookings {
		if b.Code() == code {
			return cloneBooking(b), nil
		}
	}
	return nil, domain.NewNotFoundError("Booking", code)
}

func (r *fakeBookingRepo) List(_ context.Context, filter bookingDomain.ListFilter) ([]*bookingDomain.Booking, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*bookingDomain.Booking
	for _, b := range r.bookings {
		if filter.Status != "" && b.Status() != filter.Status {
			continue
		}
		if filter.RoomID != nil && b.RoomID() != *filter.RoomID {
			continue
		}
		out = append(out, cloneBooking(b))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code() < out[j].Code() })
	return out, int64(len(out)), nil
}

func (r *fakeBookingRepo) CountOverlapping(_ context.Context, roomID uuid.UUID, checkIn, checkOut time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.countLocked(roomID, checkIn, checkOut), nil
}

func (r *fakeBookingRepo) countLocked(roomID uuid.UUID, checkIn, checkOut time.Time) int64 {
	var n int64
	for _, b := range r.bookings {
		if b.RoomID() != roomID || b.Status() == bookingDomain.StatusCancelled {
			continue
		}
		if b.CheckIn().Before(checkOut) && b.CheckOut().After(checkIn) {
			n++
		}
	}
	return n
}

func (r *fakeBookingRepo) GetStats(context.Context) (*bookingDomain.Stats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := &bookingDomain.Stats{ByStatus: map[string]int64{}, ByPaymentStatus: map[string]int64{}}
	for _, b := range r.bookings {
		stats.Total++
		stats.ByStatus[string(b.Status())]++
		stats.ByPaymentStatus[string(b.PaymentStatus())]++
		stats.Revenue += b.PaidAmount()
	}
	return stats, nil
}

func (r *fakeBookingRepo) get(id uuid.UUID) *bookingDomain.Booking {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bookings[id]
}

// fakeTxnRepo reads the transfers stored by a fakeBookingRepo.
type fakeTxnRepo struct {
	bookings  *fakeBookingRepo
	existsErr error
}

func (r *fakeTxnRepo) Exists(_ context.Context, provider, id string) (bool, error) {
	if r.existsErr != nil {
		return false, r.existsErr
	}
	r.bookings.mu.Lock()
	defer r.bookings.mu.Unlock()
	_, ok := r.bookings.txns[provider+":"+id]
	return ok, nil
}

func (r *fakeTxnRepo) ListByBooking(_ context.Context, bookingID uuid.UUID) ([]*payment.Transaction, error) {
	r.bookings.mu.Lock()
	defer r.bookings.mu.Unlock()
	var out []*payment.Transaction
	for _, t := range r.bookings.txns {
		if t.BookingID() == bookingID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReceivedAt().Before(out[j].ReceivedAt()) })
	return out, nil
}

// fakeRoomRepo is an in-memory RoomRepository.
type fakeRoomRepo struct {
	mu     sync.Mutex
	rooms  map[uuid.UUID]*roomDomain.Room
	prices map[uuid.UUID]map[time.Time]int64
}

func newFakeRoomRepo() *fakeRoomRepo {
	return &fakeRoomRepo{
		rooms:  make(map[uuid.UUID]*roomDomain.Room),
		prices: make(map[uuid.UUID]map[time.Time]int64),
	}
}

func (r *fakeRoomRepo) Save(_ context.Context, room *roomDomain.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.rooms {
		if existing.Slug() == room.Slug() {
			return domain.NewConflictError("a room with slug '" + room.Slug() + "' already exists")
		}
	}
	r.rooms[room.ID()] = room
	return nil
}

func (r *fakeRoomRepo) Update(_ context.Context, room *roomDomain.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rooms[room.ID()] = room
	return nil
}

func (r *fakeRoomRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rooms[id]; !ok {
		return domain.NewNotFoundError("Room", id.String())
	}
	delete(r.rooms, id)
	delete(r.prices, id)
	return nil
}

func (r *fakeRoomRepo) FindByID(_ context.Context, id uuid.UUID) (*roomDomain.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if room, ok := r.rooms[id]; ok {
		return room, nil
	}
	return nil, domain.NewNotFoundError("Room", id.String())
}

func (r *fakeRoomRepo) List(_ context.Context, onlyActive bool) ([]*roomDomain.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*roomDomain.Room
	for _, room := range r.rooms {
		if onlyActive && !room.IsBookable() {
			continue
		}
		out = append(out, room)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out, nil
}

func (r *fakeRoomRepo) UpsertPrices(_ context.Context, roomID uuid.UUID, dates []time.Time, price int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.prices[roomID] == nil {
		r.prices[roomID] = make(map[time.Time]int64)
	}
	for _, d := range dates {
		r.prices[roomID][roomDomain.Day(d)] = price
	}
	return nil
}

func (r *fakeRoomRepo) DeletePrices(_ context.Context, roomID uuid.UUID, from, to time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for d := range r.prices[roomID] {
		if !d.Before(roomDomain.Day(from)) && !d.After(roomDomain.Day(to)) {
			delete(r.prices[roomID], d)
			n++
		}
	}
	return n, nil
}

func (r *fakeRoomRepo) FindPrices(_ context.Context, roomID uuid.UUID, from, to time.Time) (map[time.Time]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[time.Time]int64)
	for d, p := range r.prices[roomID] {
		if !d.Before(roomDomain.Day(from)) && !d.After(roomDomain.Day(to)) {
			out[d] = p
		}
	}
	return out, nil
}

// recordingPublisher keeps every published CloudEvent.
type recordingPublisher struct {
	mu     sync.Mutex
	events []kafka.CloudEvent
	err    error
}

func (p *recordingPublisher) PublishEvent(_ context.Context, topic string, ce kafka.CloudEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	if topic != pkgevents.TopicBookingEvents {
		return errors.New("unexpected topic " + topic)
	}
	p.events = append(p.events, ce)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, ce := range p.events {
		out[i] = ce.Type
	}
	return out
}

// stubRedeemer stands in for the coupon service in checkout tests.
type stubRedeemer struct {
	discount int64
	err      error
	calls    int
}

func (s *stubRedeemer) RedeemForBooking(_ context.Context, _, _ string, _ int64) (int64, error) {
	s.calls++
	return s.discount, s.err
}
