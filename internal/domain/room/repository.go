package room

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RoomRepository defines persistence operations for rooms and their pricing calendar.
type RoomRepository interface {
	Save(ctx context.Context, r *Room) error
	Update(ctx context.Context, r *Room) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*Room, error)
	List(ctx context.Context, onlyActive bool) ([]*Room, error)

	// UpsertPrices writes one override per date.
	UpsertPrices(ctx context.Context, roomID uuid.UUID, dates []time.Time, price int64) error
	// DeletePrices removes overrides in [from, to].
	DeletePrices(ctx context.Context, roomID uuid.UUID, from, to time.Time) (int64, error)
	// FindPrices returns overrides in [from, to] keyed by day.
	FindPrices(ctx context.Context, roomID uuid.UUID, from, to time.Time) (map[time.Time]int64, error)
}
