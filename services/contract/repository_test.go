package contract

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"estatecore/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestRepo(t *testing.T) (Repository, *gorm.DB) {
	t.Helper()
	db := testutil.NewTestDB(t, &Contract{}, &Organization{}, &Template{})
	return NewRepository(db), db
}

func TestGetByIDForOrgScopesToOrganization(t *testing.T) {
	repo, db := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, db.Create(&Contract{ID: "c-1", OrganizationID: "org-1", Title: "Lease"}).Error)

	c, err := repo.GetByIDForOrg(ctx, "c-1", "org-1")
	require.NoError(t, err)
	require.NotNil(t, c)

	c, err = repo.GetByIDForOrg(ctx, "c-1", "org-2")
	require.NoError(t, err)
	require.Nil(t, c)
}

func TestListExpiringBounds(t *testing.T) {
	repo, db := newTestRepo(t)
	ctx := context.Background()

	now := time.Now().Truncate(time.Second)
	in10 := now.AddDate(0, 0, 10)
	in60 := now.AddDate(0, 0, 60)

	require.NoError(t, db.Create(&Contract{ID: "soon", OrganizationID: "org-1", ExpiryDate: &in10}).Error)
	require.NoError(t, db.Create(&Contract{ID: "far", OrganizationID: "org-1", ExpiryDate: &in60}).Error)
	// contracts without an expiry never enter the reminder pipeline
	require.NoError(t, db.Create(&Contract{ID: "open-ended", OrganizationID: "org-1"}).Error)

	contracts, err := repo.ListExpiring(ctx, now.AddDate(0, 0, 31))
	require.NoError(t, err)
	require.Len(t, contracts, 1)
	require.Equal(t, "soon", contracts[0].ID)
}

func TestAppendAuditIsAppendOnly(t *testing.T) {
	repo, db := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, db.Create(&Contract{
		ID:             "c-1",
		OrganizationID: "org-1",
		Audit:          datatypes.JSON(`[{"action":"created","by":"alice","at":"2026-01-02T10:00:00Z"}]`),
	}).Error)

	require.NoError(t, repo.AppendAudit(ctx, "c-1", AuditEntry{
		Action: "reminder_sent",
		By:     "system",
		At:     time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC),
		Meta:   map[string]interface{}{"reminderId": "rem-1"},
	}))
	require.NoError(t, repo.AppendAudit(ctx, "c-1", AuditEntry{
		Action: "reminder_sent",
		By:     "system",
		At:     time.Date(2026, 2, 8, 9, 0, 0, 0, time.UTC),
		Meta:   map[string]interface{}{"reminderId": "rem-2"},
	}))

	c, err := repo.GetByID(ctx, "c-1")
	require.NoError(t, err)
	entries, err := c.AuditLog()
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, "created", entries[0].Action)
	require.Equal(t, "alice", entries[0].By)
	require.Equal(t, "rem-1", entries[1].Meta["reminderId"])
	require.Equal(t, "rem-2", entries[2].Meta["reminderId"])
}

func TestRecipientEmail(t *testing.T) {
	c := &Contract{Parties: datatypes.JSON(`[{"name":"Dana","contact":"dana@example.com"},{"name":"Lee","contact":"lee@example.com"}]`)}
	require.Equal(t, "dana@example.com", c.RecipientEmail())

	empty := &Contract{}
	require.Empty(t, empty.RecipientEmail())
}

func TestSchedulerOptedOut(t *testing.T) {
	var org Organization
	require.False(t, org.SchedulerOptedOut())

	enabled := true
	org.SchedulerEnabled = &enabled
	require.False(t, org.SchedulerOptedOut())

	enabled = false
	require.True(t, org.SchedulerOptedOut())
}
