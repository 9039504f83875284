package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"estatecore/pkg/db/pagination"
)

// Repository describes database operations available for reminders.
type Repository interface {
	Create(ctx context.Context, rem *Reminder) error
	GetByID(ctx context.Context, id string) (*Reminder, error)
	ExistsForContractAt(ctx context.Context, contractID string, sendAt time.Time) (bool, error)
	Update(ctx context.Context, id string, fields map[string]any) error
	// ListScheduledBefore returns reminders stuck in the scheduled state
	// with send_at no later than horizon, so a later pass can re-attempt
	// the enqueue that failed when they were created.
	ListScheduledBefore(ctx context.Context, horizon time.Time) ([]Reminder, error)
	// ListByContract pages through a contract's reminders ordered by
	// (send_at, id). It returns up to limit+1 rows; the caller trims the
	// sentinel row while building page info.
	ListByContract(ctx context.Context, contractID string, cursor *pagination.Cursor, limit int) ([]Reminder, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository returns a gorm backed Repository implementation.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Create(ctx context.Context, rem *Reminder) error {
	return r.db.WithContext(ctx).Create(rem).Error
}

func (r *gormRepository) GetByID(ctx context.Context, id string) (*Reminder, error) {
	var rem Reminder
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&rem).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rem, nil
}

func (r *gormRepository) ExistsForContractAt(ctx context.Context, contractID string, sendAt time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&Reminder{}).
		Where("contract_id = ? AND send_at = ?", contractID, sendAt).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *gormRepository) Update(ctx context.Context, id string, fields map[string]any) error {
	return r.db.WithContext(ctx).Model(&Reminder{}).
		Where("id = ?", id).
		Updates(fields).Error
}

func (r *gormRepository) ListScheduledBefore(ctx context.Context, horizon time.Time) ([]Reminder, error) {
	var reminders []Reminder
	err := r.db.WithContext(ctx).
		Where("status = ? AND send_at <= ?", StatusScheduled, horizon).
		Find(&reminders).Error
	if err != nil {
		return nil, err
	}
	return reminders, nil
}

func (r *gormRepository) ListByContract(ctx context.Context, contractID string, cursor *pagination.Cursor, limit int) ([]Reminder, error) {
	q := r.db.WithContext(ctx).
		Where("contract_id = ?", contractID).
		Order("send_at, id").
		Limit(limit + 1)

	if cursor != nil {
		after, err := time.Parse(time.RFC3339Nano, cursor.SendAt)
		if err != nil {
			return nil, fmt.Errorf("invalid cursor: %w", err)
		}
		q = q.Where("send_at > ? OR (send_at = ? AND id > ?)", after, after, cursor.ID)
	}

	var reminders []Reminder
	if err := q.Find(&reminders).Error; err != nil {
		return nil, err
	}
	return reminders, nil
}
