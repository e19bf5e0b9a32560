package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jgirmay/circle_realtime/pkg/models"
)

// PreferenceRepositoryImpl implements PreferenceRepository
type PreferenceRepositoryImpl struct {
	db *gorm.DB
}

// NewPreferenceRepository creates a new preference repository
func NewPreferenceRepository(db *gorm.DB) PreferenceRepository {
	return &PreferenceRepositoryImpl{db: db}
}

// Get retrieves preferences, returning ErrNotFound when never created
func (r *PreferenceRepositoryImpl) Get(ctx context.Context, userID string) (*models.NotificationPreferences, error) {
	var prefs models.NotificationPreferences
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&prefs).Error; err != nil {
		return nil, translate("get preferences", err)
	}
	return &prefs, nil
}

// GetOrCreate retrieves preferences, creating defaults on first access.
// Two concurrent first accesses both end up reading the single stored row.
func (r *PreferenceRepositoryImpl) GetOrCreate(ctx context.Context, userID string) (*models.NotificationPreferences, error) {
	prefs, err := r.Get(ctx, userID)
	if err == nil {
		return prefs, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	defaults := models.DefaultNotificationPreferences(userID)
	defaults.ID = uuid.New().String()
	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(defaults).Error
	if err != nil {
		return nil, translate("create preferences", err)
	}
	return r.Get(ctx, userID)
}

// Update applies the non-nil fields of update
func (r *PreferenceRepositoryImpl) Update(ctx context.Context, userID string, update PreferenceUpdate) (*models.NotificationPreferences, error) {
	prefs, err := r.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if update.MentionEmail != nil {
		updates["mention_email"] = *update.MentionEmail
	}
	if update.LikeEmail != nil {
		updates["like_email"] = *update.LikeEmail
	}
	if update.ReplyEmail != nil {
		updates["reply_email"] = *update.ReplyEmail
	}
	if len(updates) == 0 {
		return prefs, nil
	}

	if err := r.db.WithContext(ctx).Model(&models.NotificationPreferences{}).
		Where("user_id = ?", userID).
		Updates(updates).Error; err != nil {
		return nil, translate("update preferences", err)
	}
	return r.Get(ctx, userID)
}
