package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

// redlock is the quorum-based strategy. Acquisition uses zero retries: if
// the lock is taken, another instance is running the pass and we bail out.
type redlock struct {
	rs  *redsync.Redsync
	key string
}

func NewRedlock(rdb *redis.Client, key string) DistributedLock {
	return &redlock{
		rs:  redsync.New(goredis.NewPool(rdb)),
		key: key,
	}
}

func (l *redlock) Acquire(ctx context.Context, ttl time.Duration) (Handle, bool, error) {
	mutex := l.rs.NewMutex(l.key,
		redsync.WithExpiry(ttl),
		redsync.WithTries(1),
	)

	if err := mutex.LockContext(ctx); err != nil {
		if isContention(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("acquire %s: %w", l.key, err)
	}

	return &redlockHandle{mutex: mutex}, true, nil
}

// isContention reports whether the acquisition error only means another
// holder has the lock. With a single try redsync surfaces that as ErrTaken
// (or ErrNodeTaken per node), only reaching ErrFailed when retries are
// configured.
func isContention(err error) bool {
	var taken *redsync.ErrTaken
	var nodeTaken *redsync.ErrNodeTaken
	return errors.Is(err, redsync.ErrFailed) ||
		errors.As(err, &taken) ||
		errors.As(err, &nodeTaken)
}

type redlockHandle struct {
	mutex *redsync.Mutex
}

func (h *redlockHandle) Extend(ctx context.Context) error {
	ok, err := h.mutex.ExtendContext(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("lock no longer held")
	}
	return nil
}

func (h *redlockHandle) Release(ctx context.Context) error {
	ok, err := h.mutex.UnlockContext(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("lock was not held at release")
	}
	return nil
}
