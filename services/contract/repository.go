package contract

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
)

// Repository describes database operations available for contracts and their
// collaborators (organizations, templates).
type Repository interface {
	GetByID(ctx context.Context, id string) (*Contract, error)
	GetByIDForOrg(ctx context.Context, id, organizationID string) (*Contract, error)
	ListExpiring(ctx context.Context, cutoff time.Time) ([]Contract, error)
	AppendAudit(ctx context.Context, contractID string, entry AuditEntry) error
	GetOrganization(ctx context.Context, id string) (*Organization, error)
	GetTemplate(ctx context.Context, id string) (*Template, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository returns a gorm backed Repository implementation.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) GetByID(ctx context.Context, id string) (*Contract, error) {
	var c Contract
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *gormRepository) GetByIDForOrg(ctx context.Context, id, organizationID string) (*Contract, error) {
	var c Contract
	err := r.db.WithContext(ctx).
		Where("id = ? AND organization_id = ?", id, organizationID).
		First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListExpiring returns every contract with a non-null expiry on or before
// cutoff. One bounded query covers all reminder windows still in the future.
func (r *gormRepository) ListExpiring(ctx context.Context, cutoff time.Time) ([]Contract, error) {
	var contracts []Contract
	err := r.db.WithContext(ctx).
		Where("expiry_date IS NOT NULL AND expiry_date <= ?", cutoff).
		Find(&contracts).Error
	if err != nil {
		return nil, err
	}
	return contracts, nil
}

// AppendAudit appends one entry to the contract's audit trail. The trail is
// append-only: existing entries are never rewritten or dropped.
func (r *gormRepository) AppendAudit(ctx context.Context, contractID string, entry AuditEntry) error {
	var c Contract
	if err := r.db.WithContext(ctx).Where("id = ?", contractID).First(&c).Error; err != nil {
		return err
	}

	entries, err := c.AuditLog()
	if err != nil {
		return err
	}
	entries = append(entries, entry)

	raw, err := json.Marshal(entries)
	if err != nil {
		return err
	}

	return r.db.WithContext(ctx).Model(&Contract{}).
		Where("id = ?", contractID).
		Update("audit", raw).Error
}

func (r *gormRepository) GetOrganization(ctx context.Context, id string) (*Organization, error) {
	var org Organization
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&org).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &org, nil
}

func (r *gormRepository) GetTemplate(ctx context.Context, id string) (*Template, error) {
	var tpl Template
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&tpl).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tpl, nil
}
