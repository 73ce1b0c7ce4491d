// Package lock provides a Redis-backed distributed lock. The A/B engine and
// the optimizer take one per test and per campaign so that two replicas do
// not evaluate the same test or adjust the same budget at the same time.
package lock

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotAcquired is returned when another holder owns the lock.
	ErrNotAcquired = errors.New("lock not acquired")

	// ErrNotHeld is returned when releasing a lock that expired or was taken over.
	ErrNotHeld = errors.New("lock not held")
)

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// Locker acquires named locks. A nil *Locker is valid and never blocks:
// WithLock simply runs the function. This is how the server runs without
// Redis.
type Locker struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// New creates a Locker. Returns nil when rdb is nil.
func New(rdb *redis.Client, ttl time.Duration) *Locker {
	if rdb == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &Locker{rdb: rdb, prefix: "lock:", ttl: ttl}
}

// Lock is a held lock.
type Lock struct {
	rdb   *redis.Client
	key   string
	token string
}

// Acquire takes the named lock with SET NX and the configured TTL.
func (l *Locker) Acquire(ctx context.Context, name string) (*Lock, error) {
	key := l.prefix + name
	token := uuid.New().String()

	ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotAcquired
	}

	slog.Debug("lock acquired", slog.String("key", key))
	return &Lock{rdb: l.rdb, key: key, token: token}, nil
}

// Release frees the lock if it is still ours.
func (lk *Lock) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, lk.rdb, []string{lk.key}, lk.token).Int64()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotHeld
	}
	slog.Debug("lock released", slog.String("key", lk.key))
	return nil
}

// WithLock runs fn while holding the named lock. Release uses a fresh
// context so a cancelled request still frees the key.
func (l *Locker) WithLock(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	if l == nil {
		return fn(ctx)
	}

	lk, err := l.Acquire(ctx, name)
	if err != nil {
		return err
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := lk.Release(releaseCtx); err != nil {
			slog.Warn("releasing lock",
				slog.String("key", lk.key),
				slog.Any("error", err),
			)
		}
	}()

	return fn(ctx)
}
