package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	roomDomain "github.com/vielimo/service-booking/internal/domain/room"
	"github.com/vielimo/service-booking/pkg/domain"
)

// RoomModel is the GORM model for the rooms table.
type RoomModel struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name        string    `gorm:"type:varchar(255);not null"`
	Slug        string    `gorm:"type:varchar(255);uniqueIndex;not null"`
	Description string    `gorm:"type:text"`
	Capacity    int       `gorm:"not null"`
	BasePrice   int64     `gorm:"not null"`
	TotalUnits  int       `gorm:"not null;default:1"`
	Status      string    `gorm:"type:varchar(20);not null;default:'active'"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

// TableName sets the table name.
func (RoomModel) TableName() string { return "rooms" }

// RoomPriceModel is the GORM model for the room_prices table.
type RoomPriceModel struct {
	RoomID uuid.UUID `gorm:"type:uuid;primaryKey"`
	Date   time.Time `gorm:"type:date;primaryKey"`
	Price  int64     `gorm:"not null"`
}

// TableName sets the table name.
func (RoomPriceModel) TableName() string { return "room_prices" }

// GormRoomRepository implements RoomRepository using GORM.
type GormRoomRepository struct {
	db *gorm.DB
}

// NewGormRoomRepository creates a new GormRoomRepository.
func NewGormRoomRepository(db *gorm.DB) *GormRoomRepository {
	return &GormRoomRepository{db: db}
}

// Save persists a new room.
func (r *GormRoomRepository) Save(ctx context.Context, room *roomDomain.Room) error {
	model := toRoomModel(room)
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.NewConflictError("a room with slug '" + room.Slug() + "' already exists")
		}
		return err
	}
	return nil
}

// Update updates a room.
func (r *GormRoomRepository) Update(ctx context.Context, room *roomDomain.Room) error {
	model := toRoomModel(room)
	if err := r.db.WithContext(ctx).Save(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.NewConflictError("a room with slug '" + room.Slug() + "' already exists")
		}
		return err
	}
	return nil
}

// Delete removes a room and its pricing calendar.
func (r *GormRoomRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("room_id = ?", id).Delete(&RoomPriceModel{}).Error; err != nil {
			return err
		}
		result := tx.Where("id = ?", id).Delete(&RoomModel{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return domain.NewNotFoundError("Room", id.String())
		}
		return nil
	})
}

// FindByID returns a room by ID.
func (r *GormRoomRepository) FindByID(ctx context.Context, id uuid.UUID) (*roomDomain.Room, error) {
	var model RoomModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("Room", id.String())
		}
		return nil, err
	}
	return toRoomDomain(&model), nil
}

// List returns rooms ordered by name.
func (r *GormRoomRepository) List(ctx context.Context, onlyActive bool) ([]*roomDomain.Room, error) {
	query := r.db.WithContext(ctx).Order("name ASC")
	if onlyActive {
		query = query.Where("status = ?", string(roomDomain.StatusActive))
	}
	var models []RoomModel
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	rooms := make([]*roomDomain.Room, len(models))
	for i := range models {
		rooms[i] = toRoomDomain(&models[i])
	}
	return rooms, nil
}

// UpsertPrices writes one override per date, replacing existing ones.
func (r *GormRoomRepository) UpsertPrices(ctx context.Context, roomID uuid.UUID, dates []time.Time, price int64) error {
	if len(dates) == 0 {
		return nil
	}
	models := make([]RoomPriceModel, len(dates))
	for i, d := range dates {
		models[i] = RoomPriceModel{RoomID: roomID, Date: roomDomain.Day(d), Price: price}
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "room_id"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{"price"}),
	}).CreateInBatches(models, 100).Error
}

// DeletePrices removes overrides in [from, to].
func (r *GormRoomRepository) DeletePrices(ctx context.Context, roomID uuid.UUID, from, to time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("room_id = ? AND date >= ? AND date <= ?", roomID, roomDomain.Day(from), roomDomain.Day(to)).
		Delete(&RoomPriceModel{})
	return result.RowsAffected, result.Error
}

// FindPrices returns overrides in [from, to] keyed by day.
func (r *GormRoomRepository) FindPrices(ctx context.Context, roomID uuid.UUID, from, to time.Time) (map[time.Time]int64, error) {
	var models []RoomPriceModel
	if err := r.db.WithContext(ctx).
		Where("room_id = ? AND date >= ? AND date <= ?", roomID, roomDomain.Day(from), roomDomain.Day(to)).
		Find(&models).Error; err != nil {
		return nil, err
	}
	prices := make(map[time.Time]int64, len(models))
	for _, m := range models {
		prices[roomDomain.Day(m.Date)] = m.Price
	}
	return prices, nil
}

func toRoomModel(r *roomDomain.Room) RoomModel {
	return RoomModel{
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

func toRoomDomain(m *RoomModel) *roomDomain.Room {
	return roomDomain.Reconstruct(
		m.ID, m.Name, m.Slug, m.Description,
		m.Capacity, m.BasePrice, m.TotalUnits,
		roomDomain.Status(m.Status),
		m.CreatedAt, m.UpdatedAt,
	)
}
