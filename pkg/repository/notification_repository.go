package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/jgirmay/circle_realtime/pkg/models"
)

// NotificationRepositoryImpl implements NotificationRepository
type NotificationRepositoryImpl struct {
	db *gorm.DB
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &NotificationRepositoryImpl{db: db}
}

// Create stores a new notification
func (r *NotificationRepositoryImpl) Create(ctx context.Context, notification *models.Notification) error {
	return translate("create notification", r.db.WithContext(ctx).Create(notification).Error)
}

// GetByID retrieves a notification, excluding deleted ones
func (r *NotificationRepositoryImpl) GetByID(ctx context.Context, id string) (*models.Notification, error) {
	var notification models.Notification
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&notification).Error; err != nil {
		return nil, translate("get notification", err)
	}
	return &notification, nil
}

// GetByIDs retrieves notifications keyed by ID, excluding deleted ones
func (r *NotificationRepositoryImpl) GetByIDs(ctx context.Context, ids []string) (map[string]*models.Notification, error) {
	result := make(map[string]*models.Notification, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	var notifications []*models.Notification
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&notifications).Error; err != nil {
		return nil, translate("get notifications", err)
	}
	for _, n := range notifications {
		result[n.ID] = n
	}
	return result, nil
}

// ListByRecipient retrieves a recipient's notifications, newest first
func (r *NotificationRepositoryImpl) ListByRecipient(ctx context.Context, recipientID string, limit int) ([]*models.Notification, error) {
	var notifications []*models.Notification
	err := r.db.WithContext(ctx).
		Where("recipient_id = ?", recipientID).
		Order("created_at DESC").
		Limit(limit).
		Find(&notifications).Error
	return notifications, translate("list notifications", err)
}

// Delete removes a notification from history
func (r *NotificationRepositoryImpl) Delete(ctx context.Context, id string) error {
	return translate("delete notification", r.db.WithContext(ctx).Delete(&models.Notification{}, "id = ?", id).Error)
}
