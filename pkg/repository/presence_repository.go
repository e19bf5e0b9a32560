package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/jgirmay/circle_realtime/pkg/models"
)

// PresenceRepositoryImpl implements PresenceRepository
type PresenceRepositoryImpl struct {
	db *gorm.DB
}

// NewPresenceRepository creates a new presence repository
func NewPresenceRepository(db *gorm.DB) PresenceRepository {
	return &PresenceRepositoryImpl{db: db}
}

// Create appends a new presence record
func (r *PresenceRepositoryImpl) Create(ctx context.Context, record *models.PresenceRecord) error {
	return translate("create presence", r.db.WithContext(ctx).Create(record).Error)
}

// CloseOpenByConnection closes the open record for a connection
func (r *PresenceRepositoryImpl) CloseOpenByConnection(ctx context.Context, connectionID string, disconnectedAt time.Time, durationSeconds float64) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.PresenceRecord{}).
		Where("connection_id = ?", connectionID).
		Where("disconnected_at IS NULL").
		Updates(closeUpdates(disconnectedAt, durationSeconds))
	return result.RowsAffected, translate("close presence", result.Error)
}

// CloseOpenByID closes a single record if it is still open
func (r *PresenceRepositoryImpl) CloseOpenByID(ctx context.Context, id string, disconnectedAt time.Time, durationSeconds float64) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.PresenceRecord{}).
		Where("id = ?", id).
		Where("disconnected_at IS NULL").
		Updates(closeUpdates(disconnectedAt, durationSeconds))
	return result.RowsAffected, translate("close presence", result.Error)
}

func closeUpdates(disconnectedAt time.Time, durationSeconds float64) map[string]interface{} {
	return map[string]interface{}{
		"disconnected_at":  models.FormatTimestamp(disconnectedAt),
		"duration_seconds": durationSeconds,
		"updated_at":       disconnectedAt.UTC(),
	}
}

// Touch bumps updated_at on the open record for a connection
func (r *PresenceRepositoryImpl) Touch(ctx context.Context, connectionID string, at time.Time) error {
	err := r.db.WithContext(ctx).Model(&models.PresenceRecord{}).
		Where("connection_id = ?", connectionID).
		Where("disconnected_at IS NULL").
		Update("updated_at", at.UTC()).Error
	return translate("touch presence", err)
}

// ListOpenUpdatedBefore retrieves open records not updated since cutoff
func (r *PresenceRepositoryImpl) ListOpenUpdatedBefore(ctx context.Context, cutoff time.Time) ([]*models.PresenceRecord, error) {
	var records []*models.PresenceRecord
	err := r.db.WithContext(ctx).
		Where("disconnected_at IS NULL").
		Where("updated_at < ?", cutoff.UTC()).
		Find(&records).Error
	return records, translate("list stale presence", err)
}

// ListOpenUpdatedSince retrieves open records updated at or after cutoff
func (r *PresenceRepositoryImpl) ListOpenUpdatedSince(ctx context.Context, cutoff time.Time) ([]*models.PresenceRecord, error) {
	var records []*models.PresenceRecord
	err := r.db.WithContext(ctx).
		Where("disconnected_at IS NULL").
		Where("updated_at >= ?", cutoff.UTC()).
		Order("connected_at ASC").
		Find(&records).Error
	return records, translate("list active presence", err)
}

// ListConnectedBetween retrieves records whose connected_at falls in [start, end]
func (r *PresenceRepositoryImpl) ListConnectedBetween(ctx context.Context, start, end time.Time) ([]*models.PresenceRecord, error) {
	var records []*models.PresenceRecord
	err := r.db.WithContext(ctx).
		Where("connected_at >= ?", models.FormatTimestamp(start)).
		Where("connected_at <= ?", models.FormatTimestamp(end)).
		Order("connected_at ASC").
		Find(&records).Error
	return records, translate("list presence range", err)
}

// ListByUser retrieves a user's records, newest first
func (r *PresenceRepositoryImpl) ListByUser(ctx context.Context, userID string, limit int) ([]*models.PresenceRecord, error) {
	var records []*models.PresenceRecord
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("connected_at DESC").
		Limit(limit).
		Find(&records).Error
	return records, translate("list user presence", err)
}

// Summary returns aggregate counters used by presence statistics
func (r *PresenceRepositoryImpl) Summary(ctx context.Context, activeSince time.Time) (*PresenceSummary, error) {
	summary := &PresenceSummary{}
	db := r.db.WithContext(ctx).Model(&models.PresenceRecord{})

	if err := db.Session(&gorm.Session{}).Count(&summary.Total).Error; err != nil {
		return nil, translate("count presence", err)
	}

	if err := db.Session(&gorm.Session{}).
		Where("disconnected_at IS NULL").
		Where("updated_at >= ?", activeSince.UTC()).
		Count(&summary.Active).Error; err != nil {
		return nil, translate("count active presence", err)
	}

	var avg struct {
		Value float64
	}
	if err := db.Session(&gorm.Session{}).
		Select("COALESCE(AVG(duration_seconds), 0) AS value").
		Where("duration_seconds IS NOT NULL").
		Scan(&avg).Error; err != nil {
		return nil, translate("average presence duration", err)
	}
	summary.AverageDuration = avg.Value

	if err := db.Session(&gorm.Session{}).
		Distinct("user_id").
		Count(&summary.UniqueUsers).Error; err != nil {
		return nil, translate("count presence users", err)
	}

	return summary, nil
}
