package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisAPI is the subset of go-redis used by the simple lock, narrowed so
// tests can fake the coordination store.
type redisAPI interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// Extend and release both verify the stored owner token first, so a lock
// that expired and was re-acquired by another process is never touched.
const (
	extendScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("pexpire", KEYS[1], ARGV[2])
else
  return 0
end`

	releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
else
  return 0
end`
)

// simpleLock is the single-node fallback: atomic SET NX with expiry plus an
// owner token for safe renewal and release.
type simpleLock struct {
	rdb   redisAPI
	key   string
	token string
}

func NewSimpleLock(rdb redisAPI, key string) DistributedLock {
	return &simpleLock{
		rdb:   rdb,
		key:   key,
		token: ownerToken(),
	}
}

func (l *simpleLock) Acquire(ctx context.Context, ttl time.Duration) (Handle, bool, error) {
	ok, err := l.rdb.SetNX(ctx, l.key, l.token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire %s: %w", l.key, err)
	}
	if !ok {
		return nil, false, nil
	}

	return &simpleHandle{rdb: l.rdb, key: l.key, token: l.token, ttl: ttl}, true, nil
}

type simpleHandle struct {
	rdb   redisAPI
	key   string
	token string
	ttl   time.Duration
}

func (h *simpleHandle) Extend(ctx context.Context) error {
	n, err := h.rdb.Eval(ctx, extendScript, []string{h.key}, h.token, h.ttl.Milliseconds()).Int64()
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.New("lock no longer held")
	}
	return nil
}

func (h *simpleHandle) Release(ctx context.Context) error {
	n, err := h.rdb.Eval(ctx, releaseScript, []string{h.key}, h.token).Int64()
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.New("lock was not held at release")
	}
	return nil
}

func ownerToken() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	host, _ := os.Hostname()
	return fmt.Sprintf("%s-%d-%s", host, os.Getpid(), hex.EncodeToString(buf))
}
