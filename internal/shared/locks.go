package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
)

// DefaultLockTTL bounds how long a document lock is held if the holder dies.
const DefaultLockTTL = 30 * time.Second

// DocumentLockKey builds redis keys for workflow document critical sections.
func DocumentLockKey(kind string, id int64) string {
	return fmt.Sprintf("retailstock:%s:%d:lock", kind, id)
}

// Locker serialises commands on one document across processes.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// RedisLocker obtains short-lived locks via redislock.
type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
}

// NewRedisLocker constructs the locker. A zero ttl uses DefaultLockTTL.
func NewRedisLocker(client *redislock.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &RedisLocker{client: client, ttl: ttl}
}

// Acquire fails fast with ErrConcurrentModification when another holder owns the key.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	lock, err := l.client.Obtain(ctx, key, l.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("%w: %s is locked", ErrConcurrentModification, key)
	}
	if err != nil {
		return nil, fmt.Errorf("obtain lock %s: %w", key, err)
	}
	return func() {
		_ = lock.Release(context.WithoutCancel(ctx))
	}, nil
}

// WithLock runs fn while holding key. A nil locker runs fn unguarded.
func WithLock(ctx context.Context, locker Locker, key string, fn func() error) error {
	if locker == nil {
		return fn()
	}
	release, err := locker.Acquire(ctx, key)
	if err != nil {
		return err
	}
	defer release()
	return fn()
}
