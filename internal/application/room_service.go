package application

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vielimo/service-booking/internal/domain/booking"
	roomDomain "github.com/vielimo/service-booking/internal/domain/room"
	"github.com/vielimo/service-booking/pkg/domain"
)

// RoomRequest holds data to create or update a room type.
type RoomRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	Capacity    int    `json:"capacity" binding:"required,gte=1"`
	BasePrice   int64  `json:"base_price" binding:"required,gt=0"`
	TotalUnits  int    `json:"total_units" binding:"required,gte=1"`
	Status      string `json:"status" binding:"omitempty,oneof=active inactive"`
}

// SetPricesRequest sets an override price for every matching day in [from, to].
type SetPricesRequest struct {
	From     string `json:"from" binding:"required"`
	To       string `json:"to" binding:"required"`
	Price    int64  `json:"price" binding:"required,gt=0"`
	Weekdays []int  `json:"weekdays" binding:"omitempty,dive,gte=0,lte=6"`
}

// ClearPricesRequest removes overrides in [from, to].
type ClearPricesRequest struct {
	From string `form:"from" json:"from" binding:"required"`
	To   string `form:"to" json:"to" binding:"required"`
}

// QuoteRequest asks for the price and availability of a stay.
type QuoteRequest struct {
	CheckIn  string `form:"check_in" json:"check_in" binding:"required"`
	CheckOut string `form:"check_out" json:"check_out" binding:"required"`
	Guests   int    `form:"guests" json:"guests"`
}

// RoomDTO is the API representation of a room type.
type RoomDTO struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description string    `json:"description,omitempty"`
	Capacity    int       `json:"capacity"`
	BasePrice   int64     `json:"base_price"`
	TotalUnits  int       `json:"total_units"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// DayPriceDTO is one day of the pricing calendar.
type DayPriceDTO struct {
	Date     string `json:"date"`
	Weekday  string `json:"weekday"`
	Price    int64  `json:"price"`
	Override bool   `json:"override"`
}

// CalendarDTO is a month of effective prices.
type CalendarDTO struct {
	RoomID    uuid.UUID     `json:"room_id"`
	Month     string        `json:"month"`
	BasePrice int64         `json:"base_price"`
	Days      []DayPriceDTO `json:"days"`
}

// PriceUpdateDTO reports how many days a price operation touched.
type PriceUpdateDTO struct {
	Days int64 `json:"days"`
}

// QuoteDTO is the priced stay.
type QuoteDTO struct {
	RoomID    uuid.UUID     `json:"room_id"`
	RoomName  string        `json:"room_name"`
	CheckIn   string        `json:"check_in"`
	CheckOut  string        `json:"check_out"`
	Nights    int           `json:"nights"`
	Guests    int           `json:"guests"`
	Nightly   []DayPriceDTO `json:"nightly"`
	Subtotal  int64         `json:"subtotal"`
	Available bool          `json:"available"`
	UnitsLeft int           `json:"units_left"`
}

// RoomService manages room types and their pricing calendar.
type RoomService struct {
	repo     roomDomain.RoomRepository
	bookings booking.BookingRepository
	logger   *zap.Logger
}

// NewRoomService creates a new RoomService.
func NewRoomService(repo roomDomain.RoomRepository, bookings booking.BookingRepository, logger *zap.Logger) *RoomService {
	return &RoomService{repo: repo, bookings: bookings, logger: logger}
}

// CreateRoom adds a room type.
func (s *RoomService) CreateRoom(ctx context.Context, req RoomRequest) (*RoomDTO, error) {
	r, err := roomDomain.NewRoom(req.Name, req.Description, req.Capacity, req.BasePrice, req.TotalUnits)
	if err != nil {
		return nil, domain.NewValidationError(err.Error())
	}
	if req.Status == string(roomDomain.StatusInactive) {
		if err := r.Update(req.Name, req.Description, req.Capacity, req.BasePrice, req.TotalUnits, roomDomain.StatusInactive); err != nil {
			return nil, domain.NewValidationError(err.Error())
		}
	}
	if err := s.repo.Save(ctx, r); err != nil {
		return nil, err
	}
	s.logger.Info("room created", zap.String("room_id", r.ID().String()), zap.String("slug", r.Slug()))
	dto := toRoomDTO(r)
	return &dto, nil
}

// UpdateRoom replaces the editable attributes of a room type.
func (s *RoomService) UpdateRoom(ctx context.Context, id uuid.UUID, req RoomRequest) (*RoomDTO, error) {
	r, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	status := roomDomain.Status(req.Status)
	if status == "" {
		status = r.Status()
	}
	if err := r.Update(req.Name, req.Description, req.Capacity, req.BasePrice, req.TotalUnits, status); err != nil {
		return nil, domain.NewValidationError(err.Error())
	}
	if err := s.repo.Update(ctx, r); err != nil {
		return nil, err
	}
	dto := toRoomDTO(r)
	return &dto, nil
}

// DeleteRoom removes a room type that has no upcoming bookings.
func (s *RoomService) DeleteRoom(ctx context.Context, id uuid.UUID) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		return err
	}
	today := roomDomain.Day(time.Now())
	upcoming, err := s.bookings.CountOverlapping(ctx, id, today, today.AddDate(10, 0, 0))
	if err != nil {
		return fmt.Errorf("failed to check upcoming bookings: %w", err)
	}
	if upcoming > 0 {
		return domain.NewConflictError(fmt.Sprintf("room has %d upcoming bookings; deactivate it instead", upcoming))
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("room deleted", zap.String("room_id", id.String()))
	return nil
}

// GetRoom returns a room type.
func (s *RoomService) GetRoom(ctx context.Context, id uuid.UUID) (*RoomDTO, error) {
	r, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	dto := toRoomDTO(r)
	return &dto, nil
}

// ListRooms returns room types; the public site only sees active ones.
func (s *RoomService) ListRooms(ctx context.Context, onlyActive bool) ([]RoomDTO, error) {
	rooms, err := s.repo.List(ctx, onlyActive)
	if err != nil {
		return nil, err
	}
	dtos := make([]RoomDTO, len(rooms))
	for i, r := range rooms {
		dtos[i] = toRoomDTO(r)
	}
	return dtos, nil
}

// SetPrices writes an override for each day in the range, optionally limited to some weekdays.
func (s *RoomService) SetPrices(ctx context.Context, id uuid.UUID, req SetPricesRequest) (*PriceUpdateDTO, error) {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		return nil, err
	}
	from, to, err := parseRange(req.From, req.To)
	if err != nil {
		return nil, err
	}
	weekdays := make([]time.Weekday, len(req.Weekdays))
	for i, w := range req.Weekdays {
		weekdays[i] = time.Weekday(w)
	}
	days, err := roomDomain.DatesInRange(from, to, weekdays)
	if err != nil {
		return nil, domain.NewValidationError(err.Error())
	}
	if err := s.repo.UpsertPrices(ctx, id, days, req.Price); err != nil {
		return nil, fmt.Errorf("failed to store prices: %w", err)
	}
	s.logger.Info("room prices set",
		zap.String("room_id", id.String()),
		zap.String("from", req.From),
		zap.String("to", req.To),
		zap.Int("days", len(days)),
		zap.Int64("price", req.Price),
	)
	return &PriceUpdateDTO{Days: int64(len(days))}, nil
}

// ClearPrices removes overrides in the range so those days fall back to the base price.
func (s *RoomService) ClearPrices(ctx context.Context, id uuid.UUID, req ClearPricesRequest) (*PriceUpdateDTO, error) {
	from, to, err := parseRange(req.From, req.To)
	if err != nil {
		return nil, err
	}
	n, err := s.repo.DeletePrices(ctx, id, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to clear prices: %w", err)
	}
	return &PriceUpdateDTO{Days: n}, nil
}

// Calendar returns the effective price of every day in month (YYYY-MM).
func (s *RoomService) Calendar(ctx context.Context, id uuid.UUID, month string) (*CalendarDTO, error) {
	r, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	var first time.Time
	if month == "" {
		first = roomDomain.Day(time.Now())
	} else if first, err = time.Parse("2006-01", month); err != nil {
		return nil, domain.NewValidationError("month must be formatted as YYYY-MM")
	}
	days := roomDomain.MonthDays(first)
	overrides, err := s.repo.FindPrices(ctx, id, days[0], days[len(days)-1])
	if err != nil {
		return nil, fmt.Errorf("failed to load prices: %w", err)
	}
	return &CalendarDTO{
		RoomID:    id,
		Month:     days[0].Format("2006-01"),
		BasePrice: r.BasePrice(),
		Days:      toDayPriceDTOs(roomDomain.PriceDays(days, r.BasePrice(), overrides)),
	}, nil
}

// Quote prices a stay night by night and reports whether a unit is free.
func (s *RoomService) Quote(ctx context.Context, id uuid.UUID, req QuoteRequest) (*QuoteDTO, error) {
	r, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !r.IsBookable() {
		return nil, domain.NewValidationError("room is not available for booking")
	}
	checkIn, checkOut, err := parseRange(req.CheckIn, req.CheckOut)
	if err != nil {
		return nil, err
	}
	if checkIn.Before(roomDomain.Day(time.Now())) {
		return nil, domain.NewValidationError("check-in cannot be in the past")
	}
	nights, err := roomDomain.Nights(checkIn, checkOut)
	if err != nil {
		return nil, domain.NewValidationError(err.Error())
	}
	guests := req.Guests
	if guests <= 0 {
		guests = 1
	}
	if guests > r.Capacity() {
		return nil, domain.NewValidationError(fmt.Sprintf("room sleeps at most %d guests", r.Capacity()))
	}

	overrides, err := s.repo.FindPrices(ctx, id, nights[0], nights[len(nights)-1])
	if err != nil {
		return nil, fmt.Errorf("failed to load prices: %w", err)
	}
	priced := roomDomain.PriceDays(nights, r.BasePrice(), overrides)

	taken, err := s.bookings.CountOverlapping(ctx, id, checkIn, checkOut)
	if err != nil {
		return nil, fmt.Errorf("failed to check availability: %w", err)
	}
	left := r.TotalUnits() - int(taken)
	if left < 0 {
		left = 0
	}

	return &QuoteDTO{
		RoomID:    id,
		RoomName:  r.Name(),
		CheckIn:   checkIn.Format(roomDomain.DateLayout),
		CheckOut:  checkOut.Format(roomDomain.DateLayout),
		Nights:    len(nights),
		Guests:    guests,
		Nightly:   toDayPriceDTOs(priced),
		Subtotal:  roomDomain.Sum(priced),
		Available: left > 0,
		UnitsLeft: left,
	}, nil
}

func parseRange(from, to string) (time.Time, time.Time, error) {
	start, err := roomDomain.ParseDay(from)
	if err != nil {
		return time.Time{}, time.Time{}, domain.NewValidationError(err.Error())
	}
	end, err := roomDomain.ParseDay(to)
	if err != nil {
		return time.Time{}, time.Time{}, domain.NewValidationError(err.Error())
	}
	return start, end, nil
}

func toDayPriceDTOs(days []roomDomain.DayPrice) []DayPriceDTO {
	out := make([]DayPriceDTO, len(days))
	for i, d := range days {
		out[i] = DayPriceDTO{
			Date:     d.Date.Format(roomDomain.DateLayout),
			Weekday:  d.Date.Weekday().String(),
			Price:    d.Price,
			Override: d.Override,
		}
	}
	return out
}

func toRoomDTO(r *roomDomain.Room) RoomDTO {
	return RoomDTO{
		ID:          r.ID(),
		Name:        r.Name(),
		Slug:        r.Slug(),
		Description: r.Description(),
		Capacity:    r.Capacity(),
		BasePrice:   r.BasePrice(),
		TotalUnits:  r.TotalUnits(),
		Status:      string(r.Status()),
		CreatedAt:   r.CreatedAt(),
		UpdatedAt:   r.UpdatedAt(),
	}
}
