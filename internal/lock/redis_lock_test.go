package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T, ttl time.Duration) (*Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewLocker(rdb, "coupon_lock:", ttl), mr
}

func TestTryAcquire_Exclusive(t *testing.T) {
	l, mr := newTestLocker(t, time.Second)
	ctx := context.Background()

	held, err := l.TryAcquire(ctx, "SAVE10")
	require.NoError(t, err)
	assert.Equal(t, "coupon_lock:SAVE10", held.Key())
	assert.True(t, mr.Exists("coupon_lock:SAVE10"))

	_, err = l.TryAcquire(ctx, "SAVE10")
	assert.ErrorIs(t, err, ErrLockHeld)

	other, err := l.TryAcquire(ctx, "FLAT50K")
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx))

	require.NoError(t, held.Release(ctx))
	assert.False(t, mr.Exists("coupon_lock:SAVE10"))

	again, err := l.TryAcquire(ctx, "SAVE10")
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}

func TestRelease_AfterExpiryDoesNotStealLock(t *testing.T) {
	l, mr := newTestLocker(t, time.Second)
	ctx := context.Background()

	first, err := l.TryAcquire(ctx, "SAVE10")
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	second, err := l.TryAcquire(ctx, "SAVE10")
	require.NoError(t, err)

	assert.ErrorIs(t, first.Release(ctx), ErrLockLost)
	assert.True(t, mr.Exists("coupon_lock:SAVE10"), "the second holder keeps its lock")
	require.NoError(t, second.Release(ctx))
}

func TestNewLocker_DefaultTTL(t *testing.T) {
	l, mr := newTestLocker(t, 0)
	held, err := l.TryAcquire(context.Background(), "X")
	require.NoError(t, err)
	assert.Equal(t, DefaultTTL, mr.TTL(held.Key()))
}
