package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/vielimo/service-booking/internal/domain/coupon"
	"github.com/vielimo/service-booking/internal/metrics"
)

const (
	// DefaultKey holds the whole coupon snapshot.
	DefaultKey = "coupons:all"
	// DefaultTTL is how long a snapshot is served before a read refetches it.
	DefaultTTL = 10 * time.Minute
	// staleTTL bounds how long the fallback copy survives after the fresh key expired.
	staleTTL = 24 * time.Hour
)

// ErrSourceUnavailable wraps a failed fetch when no previous snapshot exists.
var ErrSourceUnavailable = errors.New("coupon source unavailable")

type cachedCoupon struct {
	Code          string  `json:"code"`
	DiscountType  string  `json:"discount_type"`
	DiscountValue float64 `json:"discount_value"`
	MinOrder      int64   `json:"min_order"`
	MaxUsage      int     `json:"max_usage"`
	UsedCount     int     `json:"used_count"`
	RowIndex      int     `json:"row_index"`
}

type snapshot struct {
	FetchedAt time.Time      `json:"fetched_at"`
	Coupons   []cachedCoupon `json:"coupons"`
}

// Status describes the cached snapshot for the admin screen.
type Status struct {
	Cached    bool          `json:"cached"`
	Count     int           `json:"count"`
	FetchedAt *time.Time    `json:"fetched_at,omitempty"`
	ExpiresIn time.Duration `json:"expires_in"`
}

// CacheManager serves the coupon snapshot from Redis and refetches it from the sheet.
// The snapshot is always written and dropped as a whole.
type CacheManager struct {
	redis  redis.Cmdable
	source coupon.Source
	key    string
	ttl    time.Duration
	group  singleflight.Group
	// gen is bumped by Invalidate; refreshes started under an older generation do not store
	gen    atomic.Uint64
	logger *zap.Logger
}

// NewCacheManager creates a CacheManager. A zero ttl selects DefaultTTL.
func NewCacheManager(rdb redis.Cmdable, source coupon.Source, ttl time.Duration, logger *zap.Logger) *CacheManager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &CacheManager{
		redis:  rdb,
		source: source,
		key:    DefaultKey,
		ttl:    ttl,
		logger: logger,
	}
}

// Get returns the cached snapshot, fetching from the source on a miss or when forceRefresh is set.
func (m *CacheManager) Get(ctx context.Context, forceRefresh bool) (*coupon.Set, error) {
	if !forceRefresh {
		if snap, ok := m.load(ctx, m.key); ok {
			metrics.CouponCacheLookups.WithLabelValues("hit").Inc()
			return snap.toSet(), nil
		}
		metrics.CouponCacheLookups.WithLabelValues("miss").Inc()
	}
	return m.Refresh(ctx)
}

// Refresh fetches the sheet, stores the snapshot and returns it. When the fetch fails the
// previous snapshot is returned instead of the error, if one is still around.
// Concurrent callers share one fetch; a caller whose ctx ends stops waiting without
// cancelling the fetch for the others.
func (m *CacheManager) Refresh(ctx context.Context) (*coupon.Set, error) {
	gen := m.gen.Load()
	flight := context.WithoutCancel(ctx)
	ch := m.group.DoChan("refresh:"+strconv.FormatUint(gen, 10), func() (interface{}, error) {
		return m.refresh(flight, gen)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*coupon.Set), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *CacheManager) refresh(ctx context.Context, gen uint64) (*coupon.Set, error) {
	set, err := m.source.FetchAll(ctx)
	if err != nil {
		if snap, ok := m.load(ctx, m.key); ok {
			metrics.CouponCacheRefreshes.WithLabelValues("stale_fallback").Inc()
			m.logger.Warn("coupon refresh failed, serving cached snapshot", zap.Error(err))
			return snap.toSet(), nil
		}
		if snap, ok := m.load(ctx, m.staleKey()); ok {
			metrics.CouponCacheRefreshes.WithLabelValues("stale_fallback").Inc()
			m.logger.Warn("coupon refresh failed, serving stale snapshot",
				zap.Time("fetched_at", snap.FetchedAt),
				zap.Error(err),
			)
			return snap.toSet(), nil
		}
		metrics.CouponCacheRefreshes.WithLabelValues("failure").Inc()
		m.logger.Error("coupon refresh failed and no snapshot is cached", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}

	if m.gen.Load() != gen {
		// invalidated while fetching; the read may predate the change that invalidated it
		m.logger.Debug("coupon snapshot not stored, cache was invalidated during the fetch")
		return set, nil
	}
	m.store(ctx, newSnapshot(set))
	if m.gen.Load() != gen {
		// Invalidate ran between the check and the write; dropping costs one refetch
		if err := m.redis.Del(ctx, m.key, m.staleKey()).Err(); err != nil {
			m.logger.Warn("failed to drop superseded coupon snapshot", zap.Error(err))
		}
		return set, nil
	}
	metrics.CouponCacheRefreshes.WithLabelValues("success").Inc()
	m.logger.Info("coupon snapshot refreshed", zap.Int("count", set.Len()))
	return set, nil
}

// Invalidate drops the snapshot and its fallback copy.
func (m *CacheManager) Invalidate(ctx context.Context) error {
	m.gen.Add(1)
	if err := m.redis.Del(ctx, m.key, m.staleKey()).Err(); err != nil {
		return fmt.Errorf("failed to invalidate coupon cache: %w", err)
	}
	m.logger.Debug("coupon cache invalidated")
	return nil
}

// Clear is an alias of Invalidate used by the admin screen.
func (m *CacheManager) Clear(ctx context.Context) error {
	return m.Invalidate(ctx)
}

// Status reports what is cached right now.
func (m *CacheManager) Status(ctx context.Context) (Status, error) {
	snap, ok := m.load(ctx, m.key)
	if !ok {
		return Status{}, nil
	}
	ttl, err := m.redis.TTL(ctx, m.key).Result()
	if err != nil {
		return Status{}, fmt.Errorf("failed to read cache ttl: %w", err)
	}
	fetched := snap.FetchedAt
	return Status{
		Cached:    true,
		Count:     len(snap.Coupons),
		FetchedAt: &fetched,
		ExpiresIn: ttl,
	}, nil
}

func (m *CacheManager) staleKey() string {
	return m.key + ":stale"
}

func (m *CacheManager) load(ctx context.Context, key string) (*snapshot, bool) {
	raw, err := m.redis.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			m.logger.Warn("failed to read coupon cache", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		m.logger.Warn("discarding corrupt coupon cache entry", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return &snap, true
}

func (m *CacheManager) store(ctx context.Context, snap *snapshot) {
	raw, err := json.Marshal(snap)
	if err != nil {
		m.logger.Error("failed to marshal coupon snapshot", zap.Error(err))
		return
	}
	_, err = m.redis.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, m.key, raw, m.ttl)
		p.Set(ctx, m.staleKey(), raw, staleTTL)
		return nil
	})
	if err != nil {
		m.logger.Warn("failed to write coupon cache", zap.Error(err))
	}
}

func newSnapshot(set *coupon.Set) *snapshot {
	items := set.All()
	snap := &snapshot{FetchedAt: time.Now().UTC(), Coupons: make([]cachedCoupon, len(items))}
	for i, c := range items {
		snap.Coupons[i] = cachedCoupon{
			Code:          c.Code(),
			DiscountType:  string(c.DiscountType()),
			DiscountValue: c.DiscountValue(),
			MinOrder:      c.MinOrder(),
			MaxUsage:      c.MaxUsage(),
			UsedCount:     c.UsedCount(),
			RowIndex:      c.RowIndex(),
		}
	}
	return snap
}

func (s *snapshot) toSet() *coupon.Set {
	items := make([]*coupon.Coupon, len(s.Coupons))
	for i, c := range s.Coupons {
		items[i] = coupon.Reconstruct(
			c.Code,
			coupon.DiscountType(c.DiscountType),
			c.DiscountValue,
			c.MinOrder,
			c.MaxUsage,
			c.UsedCount,
			c.RowIndex,
		)
	}
	return coupon.NewSet(items)
}
