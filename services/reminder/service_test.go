package reminder

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"estatecore/pkg/db/pagination"
	"estatecore/pkg/errutil"
	"estatecore/services/contract"
)

func TestSendNowEnqueuesImmediately(t *testing.T) {
	enq := &fakeEnqueuer{}
	svc, repo, db := newTestService(t, enq)
	ctx := context.Background()

	expiry := time.Now().AddDate(0, 0, 30)
	createContract(t, db, "c-1", "org-1", &expiry)

	rem, jobID, err := svc.SendNow(ctx, "c-1", "org-1", "")
	require.NoError(t, err)
	require.NotEmpty(t, jobID)
	require.Equal(t, StatusEnqueued, rem.Status)
	require.Equal(t, ChannelEmail, rem.Channel)
	require.WithinDuration(t, time.Now(), rem.SendAt, 5*time.Second)
	require.Equal(t, 1, enq.count())

	stored, err := repo.GetByID(ctx, rem.ID)
	require.NoError(t, err)
	require.Equal(t, StatusEnqueued, stored.Status)
	require.Equal(t, jobID, stored.JobID)
}

func TestSendNowWrongOrganization(t *testing.T) {
	enq := &fakeEnqueuer{}
	svc, _, db := newTestService(t, enq)

	expiry := time.Now().AddDate(0, 0, 30)
	createContract(t, db, "c-1", "org-1", &expiry)

	// a contract is only visible to its own organization
	_, _, err := svc.SendNow(context.Background(), "c-1", "org-other", ChannelEmail)
	require.Error(t, err)

	var base errutil.BaseError
	require.ErrorAs(t, err, &base)
	require.Equal(t, errutil.StatusNotFound, base.Code)
	require.Zero(t, enq.count())
}

func TestSendNowUnknownChannel(t *testing.T) {
	enq := &fakeEnqueuer{}
	svc, _, db := newTestService(t, enq)

	expiry := time.Now().AddDate(0, 0, 30)
	createContract(t, db, "c-1", "org-1", &expiry)

	_, _, err := svc.SendNow(context.Background(), "c-1", "org-1", Channel("carrier-pigeon"))
	require.Error(t, err)

	var base errutil.BaseError
	require.ErrorAs(t, err, &base)
	require.Equal(t, errutil.StatusBadRequest, base.Code)
}

func TestSendNowEnqueueFailure(t *testing.T) {
	enq := &fakeEnqueuer{err: errors.New("queue unavailable")}
	svc, repo, db := newTestService(t, enq)
	ctx := context.Background()

	expiry := time.Now().AddDate(0, 0, 30)
	createContract(t, db, "c-1", "org-1", &expiry)

	_, _, err := svc.SendNow(ctx, "c-1", "org-1", ChannelEmail)
	require.Error(t, err)

	// the reminder row survives for the next scheduler pass to pick up
	stalled, err := repo.ListScheduledBefore(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, stalled, 1)
	require.Equal(t, StatusScheduled, stalled[0].Status)
}

func TestListRemindersPaginates(t *testing.T) {
	enq := &fakeEnqueuer{}
	svc, _, db := newTestService(t, enq)
	ctx := context.Background()

	expiry := time.Now().AddDate(0, 0, 40)
	createContract(t, db, "c-1", "org-1", &expiry)

	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		createReminder(t, db, &Reminder{
			ID:         fmt.Sprintf("rem-%d", i),
			ContractID: "c-1",
			Channel:    ChannelEmail,
			SendAt:     base.AddDate(0, 0, i),
			Status:     StatusScheduled,
		})
	}

	page, info, err := svc.ListReminders(ctx, "c-1", "org-1", pagination.Pagination{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.True(t, info.HasMore)
	require.Equal(t, "rem-0", page[0].ID)
	require.Equal(t, "rem-1", page[1].ID)

	page, info, err = svc.ListReminders(ctx, "c-1", "org-1", pagination.Pagination{Limit: 2, Cursor: info.NextCursor})
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.True(t, info.HasMore)
	require.Equal(t, "rem-2", page[0].ID)
	require.Equal(t, "rem-3", page[1].ID)

	page, info, err = svc.ListReminders(ctx, "c-1", "org-1", pagination.Pagination{Limit: 2, Cursor: info.NextCursor})
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.False(t, info.HasMore)
	require.Equal(t, "rem-4", page[0].ID)
}

func TestListRemindersWrongOrganization(t *testing.T) {
	enq := &fakeEnqueuer{}
	svc, _, db := newTestService(t, enq)

	expiry := time.Now().AddDate(0, 0, 40)
	createContract(t, db, "c-1", "org-1", &expiry)

	_, _, err := svc.ListReminders(context.Background(), "c-1", "org-other", pagination.Pagination{})
	require.Error(t, err)

	var base errutil.BaseError
	require.ErrorAs(t, err, &base)
	require.Equal(t, errutil.StatusNotFound, base.Code)
}

func TestSendNowThroughWorker(t *testing.T) {
	enq := &fakeEnqueuer{}
	svc, repo, db := newTestService(t, enq)
	ctx := context.Background()

	expiry := time.Now().AddDate(0, 0, 30)
	createContract(t, db, "c-1", "org-1", &expiry)

	rem, _, err := svc.SendNow(ctx, "c-1", "org-1", ChannelEmail)
	require.NoError(t, err)

	m := &fakeMailer{}
	d := &Deliverer{repo: repo, contracts: svc.contracts, mailer: m}
	require.NoError(t, d.HandleDeliverTask(ctx, NewDeliverTask(rem.ID)))
	require.Equal(t, 1, m.count())

	stored, err := repo.GetByID(ctx, rem.ID)
	require.NoError(t, err)
	require.Equal(t, StatusSent, stored.Status)

	var c contract.Contract
	require.NoError(t, db.First(&c, "id = ?", "c-1").Error)
	entries, aerr := c.AuditLog()
	require.NoError(t, aerr)
	require.Len(t, entries, 1)
	require.Equal(t, "reminder_sent", entries[0].Action)
}
