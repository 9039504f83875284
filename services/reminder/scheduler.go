package reminder

import (
	"context"
	"time"

	"estatecore/pkg/config"
	"estatecore/pkg/lock"
	"estatecore/services/contract"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// RunDailyPass ensures every contract nearing expiry has its reminder
// windows scheduled and enqueued. The pass is idempotent: an existing
// (contract, send_at) pair is never duplicated, so re-running within the
// same day is safe. It performs no locking itself; production callers go
// through lock.Runner to prevent overlapping passes across instances.
func (s *Service) RunDailyPass(ctx context.Context, now time.Time) ([]Reminder, error) {
	maxWindow := s.windows[0]
	for _, w := range s.windows {
		if w > maxWindow {
			maxWindow = w
		}
	}
	cutoff := now.AddDate(0, 0, maxWindow+1)

	contracts, err := s.contracts.ListExpiring(ctx, cutoff)
	if err != nil {
		return nil, err
	}

	orgCache := make(map[string]*contract.Organization)
	created := make([]Reminder, 0)

	for i := range contracts {
		c := &contracts[i]

		org, ok := orgCache[c.OrganizationID]
		if !ok {
			org, err = s.contracts.GetOrganization(ctx, c.OrganizationID)
			if err != nil {
				return created, err
			}
			orgCache[c.OrganizationID] = org
		}
		if org != nil && org.SchedulerOptedOut() {
			continue
		}

		for _, days := range s.windows {
			sendAt := c.ExpiryDate.AddDate(0, 0, -days)

			// tolerance for clock skew and short scheduler gaps;
			// anything staler would spam outdated reminders
			if sendAt.Before(now.Add(-s.staleSkew)) {
				continue
			}

			exists, err := s.repo.ExistsForContractAt(ctx, c.ID, sendAt)
			if err != nil {
				return created, err
			}
			if exists {
				continue
			}

			rem := &Reminder{
				ID:             s.node.Generate().String(),
				ContractID:     c.ID,
				OrganizationID: c.OrganizationID,
				TenantID:       c.TenantID,
				Channel:        ChannelEmail,
				SendAt:         sendAt,
				Status:         StatusScheduled,
			}
			if err := s.repo.Create(ctx, rem); err != nil {
				return created, err
			}

			jobID, err := s.enqueueDelivery(ctx, rem, now)
			if err != nil {
				// the reminder is not lost, only not yet
				// delivery-scheduled; a later pass re-attempts
				zap.L().Warn("failed to enqueue reminder, leaving scheduled",
					zap.String("reminder_id", rem.ID),
					zap.String("contract_id", c.ID),
					zap.Error(err),
				)
			} else {
				if err := s.repo.Update(ctx, rem.ID, map[string]any{
					"status": StatusEnqueued,
					"job_id": jobID,
				}); err != nil {
					return created, err
				}
				rem.Status = StatusEnqueued
				rem.JobID = jobID
			}

			created = append(created, *rem)
		}
	}

	if err := s.reattemptStalled(ctx, now, cutoff); err != nil {
		zap.L().Warn("failed to re-enqueue stalled reminders", zap.Error(err))
	}

	zap.L().Info("scheduler pass finished",
		zap.Int("contracts_scanned", len(contracts)),
		zap.Int("reminders_created", len(created)),
	)
	return created, nil
}

// reattemptStalled retries the enqueue for reminders that were created on an
// earlier pass but never made it to the queue, as long as their send time is
// still usable.
func (s *Service) reattemptStalled(ctx context.Context, now, horizon time.Time) error {
	stalled, err := s.repo.ListScheduledBefore(ctx, horizon)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for i := range stalled {
		rem := stalled[i]
		if rem.SendAt.Before(now.Add(-s.staleSkew)) {
			continue
		}

		g.Go(func() error {
			jobID, err := s.enqueueDelivery(gctx, &rem, now)
			if err != nil {
				zap.L().Warn("re-enqueue attempt failed",
					zap.String("reminder_id", rem.ID),
					zap.Error(err),
				)
				return nil
			}
			return s.repo.Update(gctx, rem.ID, map[string]any{
				"status": StatusEnqueued,
				"job_id": jobID,
			})
		})
	}

	return g.Wait()
}

type Scheduler struct {
	service *Service
	runner  *lock.Runner
	hour    int
	minute  int
}

type SchedulerParams struct {
	fx.In
	Config  *config.Config
	Service *Service
	Runner  *lock.Runner
}

func NewScheduler(p SchedulerParams) *Scheduler {
	return &Scheduler{
		service: p.Service,
		runner:  p.Runner,
		hour:    p.Config.Scheduler.RunAtHour,
		minute:  p.Config.Scheduler.RunAtMinute,
	}
}

// StartScheduler wires the daily loop into the fx lifecycle.
func StartScheduler(lc fx.Lifecycle, s *Scheduler) {
	var cancel context.CancelFunc
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			runCtx, c := context.WithCancel(context.Background())
			cancel = c
			go s.run(runCtx)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			return nil
		},
	})
}

// run executes the daily scheduler loop
func (s *Scheduler) run(ctx context.Context) {
	zap.L().Info("[Scheduler] started contract reminder scheduler")

	for {
		now := time.Now()
		next := nextRunTime(now, s.hour, s.minute)

		sleepDuration := next.Sub(now)
		zap.L().Info("[Scheduler] next run scheduled",
			zap.Time("next_run", next),
			zap.Duration("sleep_for", sleepDuration),
		)
		select {
		case <-time.After(sleepDuration):
			s.runDaily(ctx)
		case <-ctx.Done():
			zap.L().Warn("[Scheduler] stopped")
			return
		}
	}
}

func (s *Scheduler) runDaily(ctx context.Context) {
	start := time.Now()
	zap.L().Info("[Scheduler] running daily reminder pass")

	result, err := s.runner.AcquireAndRun(ctx, func(ctx context.Context) (int, error) {
		created, err := s.service.RunDailyPass(ctx, time.Now())
		return len(created), err
	})
	if err != nil {
		zap.L().Error("[Scheduler] daily reminder pass failed", zap.Error(err))
		return
	}
	if !result.Ran {
		return
	}

	zap.L().Info("[Scheduler] finished daily reminder pass",
		zap.Int("created", result.Created),
		zap.Duration("duration", time.Since(start)),
	)
}

// nextRunTime computes the next wall-clock occurrence of hour:minute
func nextRunTime(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if now.After(next) {
		next = next.Add(24 * time.Hour)
	}
	return next
}
