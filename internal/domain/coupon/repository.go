package coupon

import "context"

// Source is the external, non-transactional store holding the authoritative coupon rows.
type Source interface {
	// FetchAll reads every coupon row.
	FetchAll(ctx context.Context) (*Set, error)

	// UpdateUsedCount writes usedCount into the used_count cell of rowIndex.
	UpdateUsedCount(ctx context.Context, rowIndex, usedCount int) error
}
