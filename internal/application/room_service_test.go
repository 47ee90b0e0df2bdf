package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	bookingDomain "github.com/vielimo/service-booking/internal/domain/booking"
	roomDomain "github.com/vielimo/service-booking/internal/domain/room"
	"github.com/vielimo/service-booking/pkg/domain"
)

func newRoomFixture(t *testing.T) (*RoomService, *fakeRoomRepo, *fakeBookingRepo) {
	t.Helper()
	rooms := newFakeRoomRepo()
	bookings := newFakeBookingRepo()
	return NewRoomService(rooms, bookings, zap.NewNop()), rooms, bookings
}

func createRoom(t *testing.T, svc *RoomService, basePrice int64, units int) *RoomDTO {
	t.Helper()
	r, err := svc.CreateRoom(context.Background(), RoomRequest{
		Name:       "Garden Villa",
		Capacity:   2,
		BasePrice:  basePrice,
		TotalUnits: units,
	})
	require.NoError(t, err)
	return r
}

func day(offset int) string {
	return time.Now().UTC().AddDate(0, 0, offset).Format(roomDomain.DateLayout)
}

func TestRoomService_CreateAndUpdate(t *testing.T) {
	svc, _, _ := newRoomFixture(t)
	ctx := context.Background()

	r := createRoom(t, svc, 500000, 3)
	assert.Equal(t, "garden-villa", r.Slug)
	assert.Equal(t, "active", r.Status)

	_, err := svc.CreateRoom(ctx, RoomRequest{Name: "Garden Villa", Capacity: 2, BasePrice: 1, TotalUnits: 1})
	assert.True(t, errors.Is(err, domain.ErrConflict), "duplicate slug should conflict")

	updated, err := svc.UpdateRoom(ctx, r.ID, RoomRequest{
		Name:       "Garden Villa",
		Capacity:   4,
		BasePrice:  650000,
		TotalUnits: 3,
		Status:     "inactive",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(650000), updated.BasePrice)
	assert.Equal(t, "inactive", updated.Status)

	active, err := svc.ListRooms(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := svc.ListRooms(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, err = svc.GetRoom(ctx, uuid.New())
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestRoomService_QuoteUsesOverrides(t *testing.T) {
	svc, _, _ := newRoomFixture(t)
	ctx := context.Background()
	r := createRoom(t, svc, 500000, 1)

	set, err := svc.SetPrices(ctx, r.ID, SetPricesRequest{From: day(10), To: day(10), Price: 800000})
	require.NoError(t, err)
	assert.Equal(t, int64(1), set.Days)

	quote, err := svc.Quote(ctx, r.ID, QuoteRequest{CheckIn: day(9), CheckOut: day(12), Guests: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, quote.Nights)
	assert.Equal(t, int64(500000+800000+500000), quote.Subtotal)
	assert.True(t, quote.Available)
	assert.Equal(t, 1, quote.UnitsLeft)
	require.Len(t, quote.Nightly, 3)
	assert.True(t, quote.Nightly[1].Override)

	cleared, err := svc.ClearPrices(ctx, r.ID, ClearPricesRequest{From: day(0), To: day(30)})
	require.NoError(t, err)
	assert.Equal(t, int64(1), cleared.Days)

	quote, err = svc.Quote(ctx, r.ID, QuoteRequest{CheckIn: day(9), CheckOut: day(12)})
	require.NoError(t, err)
	assert.Equal(t, int64(1500000), quote.Subtotal)
	assert.Equal(t, 1, quote.Guests)
}

func TestRoomService_QuoteValidation(t *testing.T) {
	svc, _, _ := newRoomFixture(t)
	r := createRoom(t, svc, 500000, 1)

	tests := []struct {
		name string
		req  QuoteRequest
	}{
		{"check-in in the past", QuoteRequest{CheckIn: day(-2), CheckOut: day(1)}},
		{"check-out before check-in", QuoteRequest{CheckIn: day(5), CheckOut: day(4)}},
		{"bad date", QuoteRequest{CheckIn: "tomorrow", CheckOut: day(4)}},
		{"too many guests", QuoteRequest{CheckIn: day(5), CheckOut: day(6), Guests: 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Quote(context.Background(), r.ID, tt.req)
			assert.True(t, errors.Is(err, domain.ErrValidation), "got %v", err)
		})
	}
}

func TestRoomService_QuoteReportsSoldOut(t *testing.T) {
	svc, _, bookings := newRoomFixture(t)
	ctx := context.Background()
	r := createRoom(t, svc, 500000, 1)

	in, err := roomDomain.ParseDay(day(3))
	require.NoError(t, err)
	b, err := bookingDomain.NewBooking("VLTAKEN001", r.ID, bookingDomain.Customer{
		Name: "A", Email: "a@example.com", Phone: "0900000000",
	}, in, in.AddDate(0, 0, 2), 1, 1000000)
	require.NoError(t, err)
	require.NoError(t, bookings.Save(ctx, b))

	quote, err := svc.Quote(ctx, r.ID, QuoteRequest{CheckIn: day(4), CheckOut: day(6)})
	require.NoError(t, err)
	assert.False(t, quote.Available)
	assert.Equal(t, 0, quote.UnitsLeft)

	// checking in on the day the other guest leaves is fine
	quote, err = svc.Quote(ctx, r.ID, QuoteRequest{CheckIn: day(5), CheckOut: day(6)})
	require.NoError(t, err)
	assert.True(t, quote.Available)

	err = svc.DeleteRoom(ctx, r.ID)
	assert.True(t, errors.Is(err, domain.ErrConflict), "room with upcoming bookings must not be deleted")
}

func TestRoomService_Calendar(t *testing.T) {
	svc, _, _ := newRoomFixture(t)
	ctx := context.Background()
	r := createRoom(t, svc, 400000, 1)

	// every Saturday in March 2030
	_, err := svc.SetPrices(ctx, r.ID, SetPricesRequest{
		From:     "2030-03-01",
		To:       "2030-03-31",
		Price:    600000,
		Weekdays: []int{int(time.Saturday)},
	})
	require.NoError(t, err)

	cal, err := svc.Calendar(ctx, r.ID, "2030-03")
	require.NoError(t, err)
	assert.Equal(t, "2030-03", cal.Month)
	require.Len(t, cal.Days, 31)
	assert.Equal(t, int64(400000), cal.Days[0].Price)
	assert.Equal(t, int64(600000), cal.Days[1].Price)
	assert.True(t, cal.Days[1].Override)

	_, err = svc.Calendar(ctx, r.ID, "March")
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestRoomService_DeleteRoom(t *testing.T) {
	svc, rooms, _ := newRoomFixture(t)
	r := createRoom(t, svc, 400000, 1)

	require.NoError(t, svc.DeleteRoom(context.Background(), r.ID))
	_, err := rooms.FindByID(context.Background(), r.ID)
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	err = svc.DeleteRoom(context.Background(), r.ID)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}
