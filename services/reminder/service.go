package reminder

import (
	"context"
	"encoding/json"
	"time"

	"estatecore/pkg/config"
	"estatecore/pkg/db/pagination"
	"estatecore/pkg/errutil"
	"estatecore/pkg/task"
	"estatecore/pkg/taskname"
	"estatecore/services/contract"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// DeliverPayload is the queue payload for one reminder delivery job.
type DeliverPayload struct {
	ReminderID string `json:"reminder_id"`
}

// NewDeliverTask builds the asynq task for a reminder. The task id is the
// reminder id so at most one live job exists per reminder.
func NewDeliverTask(reminderID string) *asynq.Task {
	payload, _ := json.Marshal(DeliverPayload{ReminderID: reminderID})
	return asynq.NewTask(taskname.ReminderDeliver, payload)
}

type Service struct {
	repo      Repository
	contracts contract.Repository
	node      *snowflake.Node
	enqueuer  task.Enqueuer
	windows   []int
	staleSkew time.Duration
}

type ServiceParams struct {
	fx.In
	Config    *config.Config
	Repo      Repository
	Contracts contract.Repository
	Node      *snowflake.Node
	Enqueuer  task.Enqueuer
}

func NewService(p ServiceParams) *Service {
	windows := p.Config.Scheduler.Windows
	if len(windows) == 0 {
		windows = []int{30, 14, 7, 1}
	}
	return &Service{
		repo:      p.Repo,
		contracts: p.Contracts,
		node:      p.Node,
		enqueuer:  p.Enqueuer,
		windows:   windows,
		staleSkew: time.Hour,
	}
}

// enqueueDelivery hands a reminder to the queue, delayed until its send
// time. Returns the queue's job id.
func (s *Service) enqueueDelivery(ctx context.Context, rem *Reminder, now time.Time) (string, error) {
	delay := rem.SendAt.Sub(now)
	if delay < 0 {
		delay = 0
	}

	info, err := s.enqueuer.Enqueue(ctx, NewDeliverTask(rem.ID),
		asynq.TaskID(rem.ID),
		asynq.Queue(taskname.QueueReminders),
		asynq.ProcessIn(delay),
		asynq.MaxRetry(3),
	)
	if err != nil {
		return "", err
	}
	return info.ID, nil
}

// ListReminders pages through a contract's reminders, scoped to the calling
// organization.
func (s *Service) ListReminders(ctx context.Context, contractID, organizationID string, p pagination.Pagination) ([]Reminder, *pagination.PageInfo, error) {
	c, err := s.contracts.GetByIDForOrg(ctx, contractID, organizationID)
	if err != nil {
		return nil, nil, err
	}
	if c == nil {
		return nil, nil, errutil.NotFound("contract not found")
	}

	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 250 {
		limit = 250
	}

	var cursor *pagination.Cursor
	if p.Cursor != "" {
		if cursor, err = pagination.DecodeCursor(p.Cursor); err != nil {
			return nil, nil, errutil.BadRequest("invalid cursor", errutil.WithErr(err))
		}
	}

	rows, err := s.repo.ListByContract(ctx, c.ID, cursor, limit)
	if err != nil {
		return nil, nil, err
	}

	rows, info := pagination.BuildPageInfo(rows, limit, func(r Reminder) string {
		enc, _ := pagination.EncodeCursor(pagination.Cursor{
			SendAt: r.SendAt.Format(time.RFC3339Nano),
			ID:     r.ID,
		})
		return enc
	})
	return rows, info, nil
}

// SendNow is the user-triggered immediate path: the reminder is created with
// send_at = now and enqueued with zero delay, bypassing the daily scan.
// Delivery still happens asynchronously through the worker.
func (s *Service) SendNow(ctx context.Context, contractID, organizationID string, channel Channel) (*Reminder, string, error) {
	if channel == "" {
		channel = ChannelEmail
	}
	if channel.String() == "" {
		return nil, "", errutil.BadRequest("unknown channel")
	}

	c, err := s.contracts.GetByIDForOrg(ctx, contractID, organizationID)
	if err != nil {
		return nil, "", err
	}
	if c == nil {
		return nil, "", errutil.NotFound("contract not found")
	}

	now := time.Now()
	rem := &Reminder{
		ID:             s.node.Generate().String(),
		ContractID:     c.ID,
		OrganizationID: c.OrganizationID,
		TenantID:       c.TenantID,
		Channel:        channel,
		SendAt:         now,
		Status:         StatusScheduled,
	}
	if err := s.repo.Create(ctx, rem); err != nil {
		return nil, "", err
	}

	jobID, err := s.enqueueDelivery(ctx, rem, now)
	if err != nil {
		zap.L().Warn("failed to enqueue immediate reminder",
			zap.String("reminder_id", rem.ID),
			zap.Error(err),
		)
		return nil, "", errutil.Internal("failed to enqueue reminder", errutil.WithErr(err))
	}

	if err := s.repo.Update(ctx, rem.ID, map[string]any{
		"status": StatusEnqueued,
		"job_id": jobID,
	}); err != nil {
		return nil, "", err
	}
	rem.Status = StatusEnqueued
	rem.JobID = jobID

	zap.L().Info("enqueued immediate reminder",
		zap.String("reminder_id", rem.ID),
		zap.String("contract_id", c.ID),
		zap.String("job_id", jobID),
	)
	return rem, jobID, nil
}
