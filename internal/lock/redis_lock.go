package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL bounds how long a crashed holder can block others.
const DefaultTTL = 30 * time.Second

// ErrLockHeld is returned when another holder owns the lock. Callers should retry shortly.
var ErrLockHeld = errors.New("lock is held by another request")

// ErrLockLost is returned by Release when the lock expired and may belong to someone else.
var ErrLockLost = errors.New("lock expired before release")

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker hands out advisory locks stored in Redis. The locks are cooperative:
// code that writes without acquiring one is not stopped.
type Locker struct {
	redis  redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewLocker creates a Locker. A zero ttl selects DefaultTTL.
func NewLocker(rdb redis.Cmdable, prefix string, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Locker{redis: rdb, prefix: prefix, ttl: ttl}
}

// Lock is a held advisory lock.
type Lock struct {
	locker *Locker
	key    string
	token  string
}

// TryAcquire takes the lock for name without waiting.
func (l *Locker) TryAcquire(ctx context.Context, name string) (*Lock, error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}
	key := l.prefix + name

	ok, err := l.redis.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return &Lock{locker: l, key: key, token: token}, nil
}

// Release frees the lock if it is still ours.
func (k *Lock) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, k.locker.redis, []string{k.key}, k.token).Int()
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", k.key, err)
	}
	if n == 0 {
		return ErrLockLost
	}
	return nil
}

// Key returns the Redis key of the lock.
func (k *Lock) Key() string { return k.key }

func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate lock token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
