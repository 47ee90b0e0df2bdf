package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	bookingDomain "github.com/vielimo/service-booking/internal/domain/booking"
	paymentDomain "github.com/vielimo/service-booking/internal/domain/payment"
	"github.com/vielimo/service-booking/pkg/domain"
)

// BookingModel is the GORM persistence model for the bookings table.
type BookingModel struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	Code          string    `gorm:"type:varchar(16);uniqueIndex;not null"`
	RoomID        uuid.UUID `gorm:"type:uuid;index;not null"`
	CustomerName  string    `gorm:"type:varchar(255);not null"`
	CustomerEmail string    `gorm:"type:varchar(255);not null"`
	CustomerPhone string    `gorm:"type:varchar(50);not null"`
	CheckIn       time.Time `gorm:"type:date;not null"`
	CheckOut      time.Time `gorm:"type:date;not null"`
	Guests        int       `gorm:"not null"`
	Subtotal      int64     `gorm:"not null"`
	CouponCode    string    `gorm:"type:varchar(50)"`
	Discount      int64     `gorm:"not null;default:0"`
	Total         int64     `gorm:"not null"`
	PaidAmount    int64     `gorm:"not null;default:0"`
	PaymentStatus string    `gorm:"type:varchar(20);not null;default:'unpaid'"`
	Status        string    `gorm:"type:varchar(20);index;not null;default:'pending'"`
	Notes         string    `gorm:"type:text"`
	Version       int64     `gorm:"not null;default:1"`
	CreatedAt     time.Time `gorm:"type:timestamptz;not null;default:now()"`
	UpdatedAt     time.Time `gorm:"type:timestamptz;not null;default:now()"`
}

// TableName specifies the table name for GORM.
func (BookingModel) TableName() string {
	return "bookings"
}

// PaymentTransactionModel is the GORM persistence model for received transfers.
type PaymentTransactionModel struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	BookingID     uuid.UUID `gorm:"type:uuid;index;not null"`
	Provider      string    `gorm:"type:varchar(20);not null;uniqueIndex:idx_provider_txn"`
	ProviderTxnID string    `gorm:"type:varchar(100);not null;uniqueIndex:idx_provider_txn"`
	Amount        int64     `gorm:"not null"`
	Reference     string    `gorm:"type:text"`
	ReceivedAt    time.Time `gorm:"type:timestamptz;not null"`
	CreatedAt     time.Time `gorm:"type:timestamptz;not null;default:now()"`
}

// TableName specifies the table name for GORM.
func (PaymentTransactionModel) TableName() string {
	return "payment_transactions"
}

// BookingRepositoryImpl is the GORM-based implementation of BookingRepository.
type BookingRepositoryImpl struct {
	db *gorm.DB
}

// NewBookingRepository creates a new GORM-based booking repository.
func NewBookingRepository(db *gorm.DB) *BookingRepositoryImpl {
	return &BookingRepositoryImpl{db: db}
}

// FindByID retrieves a booking by its unique ID.
func (r *BookingRepositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*bookingDomain.Booking, error) {
	var model BookingModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("Booking", id.String())
		}
		return nil, err
	}
	return toBookingDomain(&model), nil
}

// FindByCode retrieves a booking by its public code.
func (r *BookingRepositoryImpl) FindByCode(ctx context.Context, code string) (*bookingDomain.Booking, error) {
	var model BookingModel
	if err := r.db.WithContext(ctx).Where("code = ?", strings.ToUpper(code)).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("Booking", code)
		}
		return nil, err
	}
	return toBookingDomain(&model), nil
}

// Save persists a new booking aggregate.
func (r *BookingRepositoryImpl) Save(ctx context.Context, b *bookingDomain.Booking) error {
	return insertBooking(r.db.WithContext(ctx), b)
}

// Reserve inserts the booking only while the room still has a free unit for its stay.
// The room row is locked FOR UPDATE, so concurrent reservations of one room run one at a time.
func (r *BookingRepositoryImpl) Reserve(ctx context.Context, b *bookingDomain.Booking) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var room RoomModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id", "total_units").
			Where("id = ?", b.RoomID()).
			First(&room).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.NewNotFoundError("Room", b.RoomID().String())
			}
			return err
		}

		taken, err := countOverlapping(tx, b.RoomID(), b.CheckIn(), b.CheckOut())
		if err != nil {
			return err
		}
		if taken >= int64(room.TotalUnits) {
			return domain.NewConflictError(bookingDomain.SoldOutMessage)
		}
		return insertBooking(tx, b)
	})
}

func insertBooking(db *gorm.DB, b *bookingDomain.Booking) error {
	if err := db.Create(toBookingModel(b)).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.NewConflictError("booking code already exists")
		}
		return err
	}
	return nil
}

// Update persists changes to an existing booking with optimistic locking.
func (r *BookingRepositoryImpl) Update(ctx context.Context, b *bookingDomain.Booking) error {
	return updateBooking(r.db.WithContext(ctx), b)
}

// RecordPayment updates the booking and inserts the transfer atomically.
func (r *BookingRepositoryImpl) RecordPayment(ctx context.Context, b *bookingDomain.Booking, txn *paymentDomain.Transaction) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(toTransactionModel(txn)).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return paymentDomain.ErrDuplicateTransaction
			}
			return err
		}
		return updateBooking(tx, b)
	})
}

func updateBooking(db *gorm.DB, b *bookingDomain.Booking) error {
	model := toBookingModel(b)
	previousVersion := b.Version() - 1

	result := db.Model(&BookingModel{}).
		Where("id = ? AND version = ?", model.ID, previousVersion).
		Updates(map[string]interface{}{
			"coupon_code":    model.CouponCode,
			"discount":       model.Discount,
			"total":          model.Total,
			"paid_amount":    model.PaidAmount,
			"payment_status": model.PaymentStatus,
			"status":         model.Status,
			"notes":          model.Notes,
			"version":        model.Version,
			"updated_at":     model.UpdatedAt,
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return domain.NewConflictError("booking was modified by another transaction")
	}

	return nil
}

// List retrieves bookings with optional filters and pagination (admin).
func (r *BookingRepositoryImpl) List(ctx context.Context, filter bookingDomain.ListFilter) ([]*bookingDomain.Booking, int64, error) {
	query := r.db.WithContext(ctx).Model(&BookingModel{})
	if filter.Status != "" {
		query = query.Where("status = ?", string(filter.Status))
	}
	if filter.RoomID != nil {
		query = query.Where("room_id = ?", *filter.RoomID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var models []BookingModel
	offset := (filter.Page - 1) * filter.Limit
	if err := query.Order("created_at DESC").Offset(offset).Limit(filter.Limit).Find(&models).Error; err != nil {
		return nil, 0, err
	}

	bookings := make([]*bookingDomain.Booking, len(models))
	for i := range models {
		bookings[i] = toBookingDomain(&models[i])
	}
	return bookings, total, nil
}

// CountOverlapping counts active bookings of a room intersecting [checkIn, checkOut).
func (r *BookingRepositoryImpl) CountOverlapping(ctx context.Context, roomID uuid.UUID, checkIn, checkOut time.Time) (int64, error) {
	return countOverlapping(r.db.WithContext(ctx), roomID, checkIn, checkOut)
}

func countOverlapping(db *gorm.DB, roomID uuid.UUID, checkIn, checkOut time.Time) (int64, error) {
	var count int64
	err := db.Model(&BookingModel{}).
		Where("room_id = ? AND status <> ? AND check_in < ? AND check_out > ?",
			roomID, string(bookingDomain.StatusCancelled), checkOut, checkIn).
		Count(&count).Error
	return count, err
}

// GetStats returns booking statistics (admin).
func (r *BookingRepositoryImpl) GetStats(ctx context.Context) (*bookingDomain.Stats, error) {
	stats := &bookingDomain.Stats{
		ByStatus:        make(map[string]int64),
		ByPaymentStatus: make(map[string]int64),
	}

	if err := r.db.WithContext(ctx).Model(&BookingModel{}).
		Select("COALESCE(SUM(paid_amount), 0)").
		Scan(&stats.Revenue).Error; err != nil {
		return nil, err
	}

	type groupCount struct {
		Key   string
		Count int64
	}

	var byStatus []groupCount
	if err := r.db.WithContext(ctx).Model(&BookingModel{}).
		Select("status AS key, count(*) AS count").
		Group("status").
		Find(&byStatus).Error; err != nil {
		return nil, err
	}
	for _, gc := range byStatus {
		stats.ByStatus[gc.Key] = gc.Count
		stats.Total += gc.Count
	}

	var byPayment []groupCount
	if err := r.db.WithContext(ctx).Model(&BookingModel{}).
		Select("payment_status AS key, count(*) AS count").
		Group("payment_status").
		Find(&byPayment).Error; err != nil {
		return nil, err
	}
	for _, gc := range byPayment {
		stats.ByPaymentStatus[gc.Key] = gc.Count
	}
	return stats, nil
}

// TransactionRepositoryImpl is the GORM-based implementation of TransactionRepository.
type TransactionRepositoryImpl struct {
	db *gorm.DB
}

// NewTransactionRepository creates a new GORM-based transaction repository.
func NewTransactionRepository(db *gorm.DB) *TransactionRepositoryImpl {
	return &TransactionRepositoryImpl{db: db}
}

// Exists reports whether the provider transaction was already stored.
func (r *TransactionRepositoryImpl) Exists(ctx context.Context, provider, providerTxnID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&PaymentTransactionModel{}).
		Where("provider = ? AND provider_txn_id = ?", provider, providerTxnID).
		Count(&count).Error
	return count > 0, err
}

// ListByBooking returns the transfers of a booking, oldest first.
func (r *TransactionRepositoryImpl) ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]*paymentDomain.Transaction, error) {
	var models []PaymentTransactionModel
	if err := r.db.WithContext(ctx).
		Where("booking_id = ?", bookingID).
		Order("received_at ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]*paymentDomain.Transaction, len(models))
	for i, m := range models {
		out[i] = paymentDomain.Reconstitute(m.ID, m.BookingID, m.Provider, m.ProviderTxnID, m.Amount, m.Reference, m.ReceivedAt, m.CreatedAt)
	}
	return out, nil
}

// toBookingDomain maps a BookingModel to the domain Booking aggregate.
func toBookingDomain(model *BookingModel) *bookingDomain.Booking {
	return bookingDomain.Reconstitute(
		model.ID,
		model.Code,
		model.RoomID,
		bookingDomain.Customer{
			Name:  model.CustomerName,
			Email: model.CustomerEmail,
			Phone: model.CustomerPhone,
		},
		model.CheckIn,
		model.CheckOut,
		model.Guests,
		model.Subtotal,
		model.CouponCode,
		model.Discount,
		model.Total,
		model.PaidAmount,
		bookingDomain.PaymentStatus(model.PaymentStatus),
		bookingDomain.Status(model.Status),
		model.Notes,
		model.Version,
		model.CreatedAt,
		model.UpdatedAt,
	)
}

// toBookingModel maps a domain Booking aggregate to a BookingModel for persistence.
func toBookingModel(b *bookingDomain.Booking) *BookingModel {
	c := b.Customer()
	return &BookingModel{
		ID:            b.ID(),
		Code:          b.Code(),
		RoomID:        b.RoomID(),
		CustomerName:  c.Name,
		CustomerEmail: c.Email,
		CustomerPhone: c.Phone,
		CheckIn:       b.CheckIn(),
		CheckOut:      b.CheckOut(),
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

func toTransactionModel(t *paymentDomain.Transaction) *PaymentTransactionModel {
	return &PaymentTransactionModel{
		ID:            t.ID(),
		BookingID:     t.BookingID(),
		Provider:      t.Provider(),
		ProviderTxnID: t.ProviderTxnID(),
		Amount:        t.Amount(),
		Reference:     t.Reference(),
		ReceivedAt:    t.ReceivedAt(),
		CreatedAt:     t.CreatedAt(),
	}
}
