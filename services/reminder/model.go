package reminder

import (
	"time"
)

type Status string

var (
	StatusScheduled Status = "scheduled"
	StatusEnqueued  Status = "enqueued"
	StatusSent      Status = "sent"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

func (s Status) String() string {
	switch s {
	case StatusScheduled, StatusEnqueued, StatusSent, StatusFailed, StatusCancelled:
		return string(s)
	default:
		return ""
	}
}

type Channel string

var (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelInApp Channel = "in-app"
)

func (c Channel) String() string {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelInApp:
		return string(c)
	default:
		return ""
	}
}

// Reminder is one scheduled delivery for a contract reminder window.
// At most one exists per (contract_id, send_at) pair; the scheduler enforces
// this with a pre-insert existence check so re-runs never duplicate windows.
type Reminder struct {
	ID             string    `gorm:"column:id;primaryKey" json:"id"`
	ContractID     string    `gorm:"column:contract_id;index:idx_reminders_contract_send_at" json:"contract_id"`
	OrganizationID string    `gorm:"column:organization_id;index" json:"organization_id"`
	TenantID       string    `gorm:"column:tenant_id" json:"tenant_id"`
	Channel        Channel   `gorm:"column:channel" json:"channel"`
	TemplateID     string    `gorm:"column:template_id" json:"template_id,omitempty"`
	SendAt         time.Time `gorm:"column:send_at;index:idx_reminders_contract_send_at" json:"send_at"`
	Status         Status    `gorm:"column:status;index" json:"status"`
	Attempts       int       `gorm:"column:attempts" json:"attempts"`
	LastError      string    `gorm:"column:last_error" json:"last_error,omitempty"`
	JobID          string    `gorm:"column:job_id" json:"job_id,omitempty"`
	CreatedAt      time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at" json:"updated_at"`
}
