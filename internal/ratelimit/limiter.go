package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter counts hits per client in fixed windows stored in Redis, so the limit
// holds across every instance of the service.
type Limiter struct {
	redis  redis.Cmdable
	prefix string
	limit  int64
	window time.Duration
}

// NewLimiter allows limit hits per window for each client key.
func NewLimiter(rdb redis.Cmdable, prefix string, limit int, window time.Duration) *Limiter {
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{redis: rdb, prefix: prefix, limit: int64(limit), window: window}
}

// Result describes the state of a client's budget after a hit.
type Result struct {
	Allowed    bool
	Count      int64
	RetryAfter time.Duration
}

// Hit records one request from client. A limit of zero or less disables limiting.
func (l *Limiter) Hit(ctx context.Context, client string) (Result, error) {
	if l.limit <= 0 {
		return Result{Allowed: true}, nil
	}
	key := l.prefix + client

	var incr *redis.IntCmd
	var ttl *redis.DurationCmd
	_, err := l.redis.TxPipelined(ctx, func(p redis.Pipeliner) error {
		// the window starts with the first hit; INCR keeps the TTL
		p.SetNX(ctx, key, 0, l.window)
		incr = p.Incr(ctx, key)
		ttl = p.TTL(ctx, key)
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("failed to count request: %w", err)
	}

	count := incr.Val()
	res := Result{Allowed: count <= l.limit, Count: count}
	if !res.Allowed {
		res.RetryAfter = ttl.Val()
		if res.RetryAfter < 0 {
			res.RetryAfter = l.window
		}
	}
	return res, nil
}
