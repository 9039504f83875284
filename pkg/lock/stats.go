package lock

import (
	"context"
	"errors"
	"strconv"
	"time"

	"estatecore/pkg/rediskey"

	"github.com/redis/go-redis/v9"
)

// Stats is the observability snapshot persisted by the Runner after each
// scheduler pass.
type Stats struct {
	LastRun     *time.Time `json:"lastRun"`
	LastCreated int        `json:"lastCreated"`
	LastError   string     `json:"lastError,omitempty"`
}

// StatsStore persists run metadata to the coordination store.
type StatsStore interface {
	RecordRun(ctx context.Context, at time.Time, created int) error
	RecordError(ctx context.Context, msg string) error
	Snapshot(ctx context.Context) (Stats, error)
}

type redisStatsStore struct {
	rdb *redis.Client
}

func NewStatsStore(rdb *redis.Client) StatsStore {
	return &redisStatsStore{rdb: rdb}
}

func (s *redisStatsStore) RecordRun(ctx context.Context, at time.Time, created int) error {
	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, rediskey.SchedulerLastRun, at.UTC().Format(time.RFC3339), 0)
	pipe.Set(ctx, rediskey.SchedulerLastCreated, created, 0)
	pipe.Del(ctx, rediskey.SchedulerLastRunError)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *redisStatsStore) RecordError(ctx context.Context, msg string) error {
	return s.rdb.Set(ctx, rediskey.SchedulerLastRunError, msg, 0).Err()
}

func (s *redisStatsStore) Snapshot(ctx context.Context) (Stats, error) {
	var stats Stats

	raw, err := s.rdb.Get(ctx, rediskey.SchedulerLastRun).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return stats, err
	}
	if raw != "" {
		if at, perr := time.Parse(time.RFC3339, raw); perr == nil {
			stats.LastRun = &at
		}
	}

	raw, err = s.rdb.Get(ctx, rediskey.SchedulerLastCreated).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return stats, err
	}
	if raw != "" {
		stats.LastCreated, _ = strconv.Atoi(raw)
	}

	raw, err = s.rdb.Get(ctx, rediskey.SchedulerLastRunError).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return stats, err
	}
	stats.LastError = raw

	return stats, nil
}
