package reminder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"estatecore/pkg/mailer"
	"estatecore/services/contract"
	"estatecore/services/testutil"
)

type fakeMailer struct {
	mu   sync.Mutex
	sent []mailer.Email
	err  error
}

func (f *fakeMailer) Send(ctx context.Context, e mailer.Email) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, e)
	return "smtp:test", nil
}

func (f *fakeMailer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func newTestDeliverer(t *testing.T, m *fakeMailer) (*Deliverer, Repository, *gorm.DB) {
	t.Helper()

	db := testutil.NewTestDB(t, &Reminder{}, &contract.Contract{}, &contract.Organization{}, &contract.Template{})
	repo := NewRepository(db)
	d := &Deliverer{
		repo:      repo,
		contracts: contract.NewRepository(db),
		mailer:    m,
	}
	return d, repo, db
}

func createReminder(t *testing.T, db *gorm.DB, rem *Reminder) {
	t.Helper()
	require.NoError(t, db.Create(rem).Error)
}

func TestHandleDeliverTaskSendsAndAudits(t *testing.T) {
	m := &fakeMailer{}
	d, repo, db := newTestDeliverer(t, m)
	ctx := context.Background()

	expiry := time.Now().AddDate(0, 0, 7)
	createContract(t, db, "c-1", "org-1", &expiry)
	createOrganization(t, db, "org-1", nil)
	createReminder(t, db, &Reminder{
		ID:             "rem-1",
		ContractID:     "c-1",
		OrganizationID: "org-1",
		TenantID:       "tenant-1",
		Channel:        ChannelEmail,
		SendAt:         time.Now(),
		Status:         StatusEnqueued,
	})

	require.NoError(t, d.HandleDeliverTask(ctx, NewDeliverTask("rem-1")))

	require.Equal(t, 1, m.count())
	require.Equal(t, "dana@example.com", m.sent[0].To)
	require.Contains(t, m.sent[0].Subject, "Lease c-1")

	rem, err := repo.GetByID(ctx, "rem-1")
	require.NoError(t, err)
	require.Equal(t, StatusSent, rem.Status)
	require.Equal(t, 1, rem.Attempts)
	require.Empty(t, rem.LastError)

	var c contract.Contract
	require.NoError(t, db.First(&c, "id = ?", "c-1").Error)
	entries, err := c.AuditLog()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "reminder_sent", entries[0].Action)
	require.Equal(t, "system", entries[0].By)
	require.Equal(t, "rem-1", entries[0].Meta["reminderId"])
}

func TestHandleDeliverTaskPreservesExistingAudit(t *testing.T) {
	m := &fakeMailer{}
	d, _, db := newTestDeliverer(t, m)
	ctx := context.Background()

	expiry := time.Now().AddDate(0, 0, 7)
	require.NoError(t, db.Create(&contract.Contract{
		ID:             "c-2",
		OrganizationID: "org-1",
		Title:          "Lease c-2",
		ExpiryDate:     &expiry,
		Parties:        datatypes.JSON(`[{"name":"Dana Tenant","contact":"dana@example.com"}]`),
		Audit:          datatypes.JSON(`[{"action":"created","by":"alice","at":"2026-01-02T10:00:00Z"}]`),
	}).Error)
	createReminder(t, db, &Reminder{
		ID:         "rem-2",
		ContractID: "c-2",
		Channel:    ChannelEmail,
		SendAt:     time.Now(),
		Status:     StatusEnqueued,
	})

	require.NoError(t, d.HandleDeliverTask(ctx, NewDeliverTask("rem-2")))

	var c contract.Contract
	require.NoError(t, db.First(&c, "id = ?", "c-2").Error)
	entries, err := c.AuditLog()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "created", entries[0].Action)
	require.Equal(t, "reminder_sent", entries[1].Action)
}

func TestHandleDeliverTaskIdempotentOnSent(t *testing.T) {
	m := &fakeMailer{}
	d, repo, db := newTestDeliverer(t, m)
	ctx := context.Background()

	expiry := time.Now().AddDate(0, 0, 7)
	createContract(t, db, "c-3", "org-1", &expiry)
	createReminder(t, db, &Reminder{
		ID:         "rem-3",
		ContractID: "c-3",
		Channel:    ChannelEmail,
		SendAt:     time.Now(),
		Status:     StatusSent,
		Attempts:   1,
	})

	// queue redelivery of an already-sent reminder must be a no-op
	require.NoError(t, d.HandleDeliverTask(ctx, NewDeliverTask("rem-3")))
	require.Zero(t, m.count())

	rem, err := repo.GetByID(ctx, "rem-3")
	require.NoError(t, err)
	require.Equal(t, 1, rem.Attempts)
}

func TestHandleDeliverTaskUnsupportedChannel(t *testing.T) {
	m := &fakeMailer{}
	d, repo, db := newTestDeliverer(t, m)
	ctx := context.Background()

	expiry := time.Now().AddDate(0, 0, 7)
	createContract(t, db, "c-4", "org-1", &expiry)
	createReminder(t, db, &Reminder{
		ID:         "rem-4",
		ContractID: "c-4",
		Channel:    ChannelSMS,
		SendAt:     time.Now(),
		Status:     StatusEnqueued,
	})

	err := d.HandleDeliverTask(ctx, NewDeliverTask("rem-4"))
	require.Error(t, err)
	require.ErrorIs(t, err, asynq.SkipRetry)
	require.Contains(t, err.Error(), "unsupported channel")
	require.Zero(t, m.count())

	rem, gerr := repo.GetByID(ctx, "rem-4")
	require.NoError(t, gerr)
	require.Equal(t, StatusEnqueued, rem.Status)
}

func TestHandleDeliverTaskReminderMissing(t *testing.T) {
	m := &fakeMailer{}
	d, _, _ := newTestDeliverer(t, m)

	err := d.HandleDeliverTask(context.Background(), NewDeliverTask("missing"))
	require.Error(t, err)
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandleDeliverTaskMailerFailure(t *testing.T) {
	m := &fakeMailer{err: errors.New("smtp refused")}
	d, repo, db := newTestDeliverer(t, m)
	d.recordFailures = true
	ctx := context.Background()

	expiry := time.Now().AddDate(0, 0, 7)
	createContract(t, db, "c-5", "org-1", &expiry)
	createReminder(t, db, &Reminder{
		ID:         "rem-5",
		ContractID: "c-5",
		Channel:    ChannelEmail,
		SendAt:     time.Now(),
		Status:     StatusEnqueued,
	})

	err := d.HandleDeliverTask(ctx, NewDeliverTask("rem-5"))
	require.Error(t, err)
	require.NotErrorIs(t, err, asynq.SkipRetry)

	rem, gerr := repo.GetByID(ctx, "rem-5")
	require.NoError(t, gerr)
	require.Equal(t, StatusEnqueued, rem.Status)
	require.Equal(t, 1, rem.Attempts)
	require.Contains(t, rem.LastError, "smtp refused")
}

func TestHandleDeliverTaskUsesTemplate(t *testing.T) {
	m := &fakeMailer{}
	d, _, db := newTestDeliverer(t, m)
	ctx := context.Background()

	expiry := time.Date(2026, 9, 4, 0, 0, 0, 0, time.UTC)
	createContract(t, db, "c-6", "org-1", &expiry)
	require.NoError(t, db.Create(&contract.Template{
		ID:             "tpl-1",
		OrganizationID: "org-1",
		Subject:        "{{contract_title}} expires {{expiry_date}}",
		BodyHTML:       "<p>Tenant {{tenant_id}}</p>",
		BodyText:       "Tenant {{tenant_id}}",
	}).Error)
	createReminder(t, db, &Reminder{
		ID:         "rem-6",
		ContractID: "c-6",
		TenantID:   "tenant-1",
		Channel:    ChannelEmail,
		TemplateID: "tpl-1",
		SendAt:     time.Now(),
		Status:     StatusEnqueued,
	})

	require.NoError(t, d.HandleDeliverTask(ctx, NewDeliverTask("rem-6")))
	require.Equal(t, 1, m.count())
	require.Equal(t, "Lease c-6 expires 2026-09-04", m.sent[0].Subject)
	require.Equal(t, "<p>Tenant tenant-1</p>", m.sent[0].HTML)
	require.Equal(t, "Tenant tenant-1", m.sent[0].Text)
}
