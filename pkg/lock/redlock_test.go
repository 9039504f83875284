package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newMiniredisClient(t *testing.T) *redis.Client {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedlockContentionIsNotAnError(t *testing.T) {
	rdb := newMiniredisClient(t)
	ctx := context.Background()

	first := NewRedlock(rdb, "scheduler:leader_lock")
	handle, ok, err := first.Acquire(ctx, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// losing the acquisition race is the steady state, not a failure
	second := NewRedlock(rdb, "scheduler:leader_lock")
	lost, ok, err := second.Acquire(ctx, time.Minute)
	require.NoError(t, err)
	require.False(t, ok)
	require.Nil(t, lost)

	require.NoError(t, handle.Release(ctx))

	_, ok, err = second.Acquire(ctx, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRedlockExtendAndRelease(t *testing.T) {
	rdb := newMiniredisClient(t)
	ctx := context.Background()

	l := NewRedlock(rdb, "scheduler:leader_lock")
	handle, ok, err := l.Acquire(ctx, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, handle.Extend(ctx))
	require.NoError(t, handle.Release(ctx))

	// double release means the lock is no longer ours
	require.Error(t, handle.Release(ctx))
}

func TestRedlockRunnerSkipsWhileHeld(t *testing.T) {
	rdb := newMiniredisClient(t)
	ctx := context.Background()

	holder := NewRedlock(rdb, "scheduler:leader_lock")
	handle, ok, err := holder.Acquire(ctx, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	defer handle.Release(ctx)

	r := NewRunnerWith(NewRedlock(rdb, "scheduler:leader_lock"), &memStatsStore{}, time.Minute, time.Minute, alwaysEnabled)
	result, err := r.AcquireAndRun(ctx, func(ctx context.Context) (int, error) {
		t.Fatal("work must not run while another instance holds the lock")
		return 0, nil
	})
	require.NoError(t, err)
	require.False(t, result.Ran)
	require.False(t, result.Skipped)
}
