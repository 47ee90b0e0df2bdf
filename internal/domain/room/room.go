package room

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the sale status of a room type.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// Room is a sellable room type with a number of identical physical units.
type Room struct {
	id          uuid.UUID
	name        string
	slug        string
	description string
	capacity    int
	basePrice   int64
	totalUnits  int
	status      Status
	createdAt   time.Time
	updatedAt   time.Time
}

// NewRoom creates a new active room type.
func NewRoom(name, description string, capacity int, basePrice int64, totalUnits int) (*Room, error) {
	r := &Room{id: uuid.New(), status: StatusActive}
	if err := r.apply(name, description, capacity, basePrice, totalUnits); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	r.createdAt = now
	r.updatedAt = now
	return r, nil
}

// Update replaces the editable attributes.
func (r *Room) Update(name, description string, capacity int, basePrice int64, totalUnits int, status Status) error {
	if status != StatusActive && status != StatusInactive {
		return fmt.Errorf("invalid room status: %s", status)
	}
	if err := r.apply(name, description, capacity, basePrice, totalUnits); err != nil {
		return err
	}
	r.status = status
	r.updatedAt = time.Now().UTC()
	return nil
}

func (r *Room) apply(name, description string, capacity int, basePrice int64, totalUnits int) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("room name is required")
	}
	if capacity < 1 {
		return fmt.Errorf("capacity must be at least 1")
	}
	if basePrice <= 0 {
		return fmt.Errorf("base price must be positive")
	}
	if totalUnits < 1 {
		return fmt.Errorf("total units must be at least 1")
	}
	r.name = name
	r.slug = Slugify(name)
	r.description = strings.TrimSpace(description)
	r.capacity = capacity
	r.basePrice = basePrice
	r.totalUnits = totalUnits
	return nil
}

// IsBookable reports whether the room is on sale.
func (r *Room) IsBookable() bool { return r.status == StatusActive }

// Reconstruct rebuilds a Room from persistence.
func Reconstruct(id uuid.UUID, name, slug, description string, capacity int, basePrice int64, totalUnits int, status Status, createdAt, updatedAt time.Time) *Room {
	return &Room{
		id: id, name: name, slug: slug, description: description,
		capacity: capacity, basePrice: basePrice, totalUnits: totalUnits,
		status: status, createdAt: createdAt, updatedAt: updatedAt,
	}
}

// Slugify lowercases s and joins alphanumeric runs with dashes.
func Slugify(s string) string {
	return strings.Trim(slugPattern.ReplaceAllString(strings.ToLower(s), "-"), "-")
}

// Getters.
func (r *Room) ID() uuid.UUID        { return r.id }
func (r *Room) Name() string         { return r.name }
func (r *Room) Slug() string         { return r.slug }
func (r *Room) Description() string  { return r.description }
func (r *Room) Capacity() int        { return r.capacity }
func (r *Room) BasePrice() int64     { return r.basePrice }
func (r *Room) TotalUnits() int      { return r.totalUnits }
func (r *Room) Status() Status       { return r.status }
func (r *Room) CreatedAt() time.Time { return r.createdAt }
func (r *Room) UpdatedAt() time.Time { return r.updatedAt }
