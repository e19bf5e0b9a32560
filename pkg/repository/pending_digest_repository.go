package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/jgirmay/circle_realtime/pkg/models"
)

// PendingDigestRepositoryImpl implements PendingDigestRepository
type PendingDigestRepositoryImpl struct {
	db *gorm.DB
}

// NewPendingDigestRepository creates a new pending digest repository
func NewPendingDigestRepository(db *gorm.DB) PendingDigestRepository {
	return &PendingDigestRepositoryImpl{db: db}
}

// Create queues a digest item
func (r *PendingDigestRepositoryImpl) Create(ctx context.Context, item *models.PendingDigestItem) error {
	return translate("create pending digest item", r.db.WithContext(ctx).Create(item).Error)
}

// ListDue retrieves unsent items of a frequency scheduled at or before now
func (r *PendingDigestRepositoryImpl) ListDue(ctx context.Context, frequency models.NotificationFrequency, now time.Time) ([]*models.PendingDigestItem, error) {
	var items []*models.PendingDigestItem
	err := r.db.WithContext(ctx).
		Where("frequency = ?", frequency).
		Where("is_sent = ?", false).
		Where("scheduled_for <= ?", now.UTC()).
		Order("user_id ASC, scheduled_for ASC, created_at ASC").
		Find(&items).Error
	return items, translate("list due digest items", err)
}

// MarkSent flags items as sent. Already-sent items are left alone.
func (r *PendingDigestRepositoryImpl) MarkSent(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).Model(&models.PendingDigestItem{}).
		Where("id IN ?", ids).
		Where("is_sent = ?", false).
		Update("is_sent", true)
	return result.RowsAffected, translate("mark digest items sent", result.Error)
}

// ListByUser retrieves a user's items, oldest schedule first
func (r *PendingDigestRepositoryImpl) ListByUser(ctx context.Context, userID string) ([]*models.PendingDigestItem, error) {
	var items []*models.PendingDigestItem
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("scheduled_for ASC, created_at ASC").
		Find(&items).Error
	return items, translate("list user digest items", err)
}

// Ping verifies the pending table is reachable
func (r *PendingDigestRepositoryImpl) Ping(ctx context.Context) error {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.PendingDigestItem{}).
		Where("is_sent = ?", false).
		Limit(1).
		Count(&count).Error
	return translate("ping pending digest items", err)
}
