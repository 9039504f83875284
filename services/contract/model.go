package contract

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Party is one contract signatory. Contact doubles as the email recipient
// for reminder delivery.
type Party struct {
	Name    string `json:"name"`
	Contact string `json:"contact"`
}

// AuditEntry is one append-only record on a contract's audit trail.
type AuditEntry struct {
	Action string                 `json:"action"`
	By     string                 `json:"by"`
	At     time.Time              `json:"at"`
	Meta   map[string]interface{} `json:"meta,omitempty"`
}

type Contract struct {
	ID             string         `gorm:"column:id;primaryKey"`
	OrganizationID string         `gorm:"column:organization_id;index"`
	TenantID       string         `gorm:"column:tenant_id;index"`
	Title          string         `gorm:"column:title"`
	EffectiveDate  *time.Time     `gorm:"column:effective_date"`
	ExpiryDate     *time.Time     `gorm:"column:expiry_date;index"`
	Parties        datatypes.JSON `gorm:"column:parties"`
	Audit          datatypes.JSON `gorm:"column:audit"`
	CreatedAt      time.Time      `gorm:"column:created_at"`
	UpdatedAt      time.Time      `gorm:"column:updated_at"`
}

// PartyList decodes the parties column.
func (c *Contract) PartyList() ([]Party, error) {
	if len(c.Parties) == 0 {
		return nil, nil
	}
	var parties []Party
	if err := json.Unmarshal(c.Parties, &parties); err != nil {
		return nil, err
	}
	return parties, nil
}

// AuditLog decodes the audit column.
func (c *Contract) AuditLog() ([]AuditEntry, error) {
	if len(c.Audit) == 0 {
		return nil, nil
	}
	var entries []AuditEntry
	if err := json.Unmarshal(c.Audit, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// RecipientEmail returns the first party contact, the address reminder email
// is delivered to.
func (c *Contract) RecipientEmail() string {
	parties, err := c.PartyList()
	if err != nil || len(parties) == 0 {
		return ""
	}
	return parties[0].Contact
}

type Organization struct {
	ID               string    `gorm:"column:id;primaryKey"`
	Name             string    `gorm:"column:name"`
	SchedulerEnabled *bool     `gorm:"column:scheduler_enabled"`
	CreatedAt        time.Time `gorm:"column:created_at"`
	UpdatedAt        time.Time `gorm:"column:updated_at"`
}

// SchedulerOptedOut reports whether reminders must be skipped for this
// organization. Unset means enabled.
func (o *Organization) SchedulerOptedOut() bool {
	return o.SchedulerEnabled != nil && !*o.SchedulerEnabled
}

type Template struct {
	ID             string    `gorm:"column:id;primaryKey"`
	OrganizationID string    `gorm:"column:organization_id;index"`
	Subject        string    `gorm:"column:subject"`
	BodyHTML       string    `gorm:"column:body_html"`
	BodyText       string    `gorm:"column:body_text"`
	CreatedAt      time.Time `gorm:"column:created_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at"`
}
