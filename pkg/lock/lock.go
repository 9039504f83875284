package lock

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Handle represents a held lock. Extend pushes the expiry forward while the
// guarded work is still running; Release drops the lock.
type Handle interface {
	Extend(ctx context.Context) error
	Release(ctx context.Context) error
}

// DistributedLock guards a named critical section across any number of
// processes sharing the coordination store. Acquire returns (nil, false, nil)
// when another instance currently holds the lock; that is the expected
// steady state, not an error.
type DistributedLock interface {
	Acquire(ctx context.Context, ttl time.Duration) (Handle, bool, error)
}

const (
	StrategyRedlock = "redlock"
	StrategySimple  = "simple"
)

// New selects the lock implementation at startup. The quorum-based redlock
// is the primary strategy; the simple SET NX lock is the degraded mode for
// deployments where a single coordination node is all there is.
func New(strategy string, rdb *redis.Client, key string) DistributedLock {
	switch strategy {
	case StrategySimple:
		return NewSimpleLock(rdb, key)
	default:
		return NewRedlock(rdb, key)
	}
}
