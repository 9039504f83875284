package reminder

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"estatecore/pkg/config"
	"estatecore/pkg/mailer"
	"estatecore/pkg/render"
	"estatecore/services/contract"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const fallbackSubject = "Reminder: contract {{contract_title}} is expiring soon"
const fallbackBody = "This is a reminder that the contract \"{{contract_title}}\" is approaching its expiry date{{#expiry_date}} ({{expiry_date}}){{/expiry_date}}. Please review it."

// Deliverer processes reminder delivery jobs from the queue.
type Deliverer struct {
	repo           Repository
	contracts      contract.Repository
	mailer         mailer.Mailer
	recordFailures bool
}

type DelivererParams struct {
	fx.In
	Config    *config.Config
	Repo      Repository
	Contracts contract.Repository
	Mailer    mailer.Mailer
}

func NewDeliverer(p DelivererParams) *Deliverer {
	return &Deliverer{
		repo:           p.Repo,
		contracts:      p.Contracts,
		mailer:         p.Mailer,
		recordFailures: p.Config.Scheduler.RecordFailures,
	}
}

// HandleDeliverTask sends one reminder. Delivery is at-least-once: the
// status check below is what makes queue redelivery safe, not the queue
// itself.
func (d *Deliverer) HandleDeliverTask(ctx context.Context, t *asynq.Task) error {
	var payload DeliverPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid deliver payload: %v: %w", err, asynq.SkipRetry)
	}

	zapLog := zap.L().With(
		zap.String("task_type", t.Type()),
		zap.String("reminder_id", payload.ReminderID),
	)

	rem, err := d.repo.GetByID(ctx, payload.ReminderID)
	if err != nil {
		return err
	}
	if rem == nil {
		// the reminder was deleted or the id is invalid; retrying has no value
		return fmt.Errorf("reminder %s not found: %w", payload.ReminderID, asynq.SkipRetry)
	}

	if rem.Status == StatusSent {
		zapLog.Info("reminder already sent, skipping redelivery")
		return nil
	}

	c, err := d.contracts.GetByID(ctx, rem.ContractID)
	if err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("contract %s not found: %w", rem.ContractID, asynq.SkipRetry)
	}

	var tpl *contract.Template
	if rem.TemplateID != "" {
		if tpl, err = d.contracts.GetTemplate(ctx, rem.TemplateID); err != nil {
			return err
		}
	}

	msg, err := d.renderMessage(ctx, rem, c, tpl)
	if err != nil {
		return err
	}

	providerInfo, err := d.dispatch(ctx, rem, c, msg)
	if err != nil {
		if d.recordFailures {
			if uerr := d.repo.Update(ctx, rem.ID, map[string]any{
				"attempts":   gorm.Expr("attempts + 1"),
				"last_error": err.Error(),
			}); uerr != nil {
				zapLog.Warn("failed to record delivery failure", zap.Error(uerr))
			}
		}
		// the queue owns retry/backoff; never swallow the failure here
		return err
	}

	if err := d.repo.Update(ctx, rem.ID, map[string]any{
		"status":     StatusSent,
		"attempts":   gorm.Expr("attempts + 1"),
		"last_error": "",
	}); err != nil {
		return err
	}

	// the notification is already out; a lost audit entry is the lesser
	// failure, so this never rolls back the sent status
	if err := d.contracts.AppendAudit(ctx, c.ID, contract.AuditEntry{
		Action: "reminder_sent",
		By:     "system",
		At:     time.Now(),
		Meta: map[string]interface{}{
			"reminderId":   rem.ID,
			"providerInfo": providerInfo,
		},
	}); err != nil {
		zapLog.Warn("failed to append audit entry", zap.Error(err))
	}

	zapLog.Info("reminder delivered", zap.String("contract_id", c.ID))
	return nil
}

// renderMessage builds the notification content from a whitelisted context.
// Arbitrary contract fields are never exposed to templates.
func (d *Deliverer) renderMessage(ctx context.Context, rem *Reminder, c *contract.Contract, tpl *contract.Template) (render.Message, error) {
	vars := map[string]interface{}{
		"contract_title":  c.Title,
		"tenant_id":       rem.TenantID,
		"organization_id": c.OrganizationID,
	}
	if c.ExpiryDate != nil {
		vars["expiry_date"] = c.ExpiryDate.Format("2006-01-02")
	}
	if c.EffectiveDate != nil {
		vars["effective_date"] = c.EffectiveDate.Format("2006-01-02")
	}
	if org, err := d.contracts.GetOrganization(ctx, c.OrganizationID); err == nil && org != nil {
		vars["organization_name"] = org.Name
	}

	if tpl != nil {
		return render.Render(tpl.Subject, tpl.BodyHTML, tpl.BodyText, vars)
	}
	return render.Render(fallbackSubject, "", fallbackBody, vars)
}

func (d *Deliverer) dispatch(ctx context.Context, rem *Reminder, c *contract.Contract, msg render.Message) (string, error) {
	switch rem.Channel {
	case ChannelEmail:
		return d.mailer.Send(ctx, mailer.Email{
			To:      c.RecipientEmail(),
			Subject: msg.Subject,
			HTML:    msg.HTML,
			Text:    msg.Text,
		})
	default:
		// a stated current limitation, not a silent no-op
		return "", fmt.Errorf("unsupported channel %q: %w", rem.Channel, asynq.SkipRetry)
	}
}
