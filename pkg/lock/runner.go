package lock

import (
	"context"
	"time"

	"estatecore/pkg/config"
	"estatecore/pkg/rediskey"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("lock",
	fx.Provide(NewStatsStore, NewRunner),
)

// Work is one scheduler pass. It reports how many reminders it created.
type Work func(ctx context.Context) (created int, err error)

// Result describes the outcome of AcquireAndRun.
type Result struct {
	Ran     bool
	Skipped bool
	Created int
}

// Runner wraps a scheduler pass in the leader lock: at most one pass runs
// fleet-wide, a renewal timer keeps the lock alive for passes that outlive
// the initial TTL, and run metadata is persisted for the stats endpoint.
type Runner struct {
	lock       DistributedLock
	stats      StatsStore
	ttl        time.Duration
	renewEvery time.Duration
	enabled    func() bool
}

type RunnerParams struct {
	fx.In
	Config *config.Config
	Redis  *redis.Client
	Stats  StatsStore
}

func NewRunner(p RunnerParams) *Runner {
	return &Runner{
		lock:       New(p.Config.Scheduler.LockStrategy, p.Redis, rediskey.SchedulerLeaderLock),
		stats:      p.Stats,
		ttl:        p.Config.Scheduler.LockTTL,
		renewEvery: p.Config.Scheduler.RenewEvery,
		enabled:    config.SchedulerEnabled,
	}
}

// NewRunnerWith builds a Runner from explicit collaborators.
func NewRunnerWith(l DistributedLock, stats StatsStore, ttl, renewEvery time.Duration, enabled func() bool) *Runner {
	return &Runner{lock: l, stats: stats, ttl: ttl, renewEvery: renewEvery, enabled: enabled}
}

// AcquireAndRun executes work under the leader lock. Losing the acquisition
// race is not an error; the work's own error is returned to the caller after
// best-effort release.
func (r *Runner) AcquireAndRun(ctx context.Context, work Work) (Result, error) {
	if r.enabled != nil && !r.enabled() {
		zap.L().Info("[Scheduler] disabled by environment, skipping run")
		return Result{Skipped: true}, nil
	}

	handle, ok, err := r.lock.Acquire(ctx, r.ttl)
	if err != nil {
		zap.L().Warn("[Scheduler] lock acquisition failed, skipping run", zap.Error(err))
		return Result{}, nil
	}
	if !ok {
		zap.L().Info("[Scheduler] another instance holds the leader lock, skipping run")
		return Result{}, nil
	}

	stopRenewal := r.startRenewal(ctx, handle)
	defer func() {
		stopRenewal()
		if rerr := handle.Release(context.WithoutCancel(ctx)); rerr != nil {
			zap.L().Warn("[Scheduler] failed to release leader lock", zap.Error(rerr))
		}
	}()

	created, err := work(ctx)
	if err != nil {
		if serr := r.stats.RecordError(ctx, err.Error()); serr != nil {
			zap.L().Warn("[Scheduler] failed to persist run error", zap.Error(serr))
		}
		return Result{Ran: true}, err
	}

	if serr := r.stats.RecordRun(ctx, time.Now(), created); serr != nil {
		zap.L().Warn("[Scheduler] failed to persist run stats", zap.Error(serr))
	}

	return Result{Ran: true, Created: created}, nil
}

// startRenewal extends the lock TTL on a timer. A renewal failure stops the
// timer but never interrupts the in-flight pass; the lock then self-expires.
func (r *Runner) startRenewal(ctx context.Context, handle Handle) (stop func()) {
	done := make(chan struct{})
	finished := make(chan struct{})

	go func() {
		defer close(finished)

		ticker := time.NewTicker(r.renewEvery)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := handle.Extend(ctx); err != nil {
					zap.L().Warn("[Scheduler] lock renewal failed, relying on TTL expiry", zap.Error(err))
					return
				}
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return func() {
		close(done)
		<-finished
	}
}
