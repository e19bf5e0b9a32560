package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/jgirmay/circle_realtime/pkg/models"
)

// JobLockRepositoryImpl implements JobLockRepository
type JobLockRepositoryImpl struct {
	db  *gorm.DB
	now func() time.Time
}

// NewJobLockRepository creates a new job lock repository
func NewJobLockRepository(db *gorm.DB) JobLockRepository {
	return &JobLockRepositoryImpl{db: db, now: time.Now}
}

// Acquire takes (or renews) the lease; false means another owner holds it
func (r *JobLockRepositoryImpl) Acquire(ctx context.Context, lockKey string, ownerID string, ttl time.Duration) (bool, error) {
	now := r.now().UTC()
	expiresAt := now.Add(ttl)

	// Renew our own lease or take over an expired one
	result := r.db.WithContext(ctx).Model(&models.JobLock{}).
		Where("lock_key = ?", lockKey).
		Where("(owner_id = ? OR expires_at < ?)", ownerID, now).
		Updates(map[string]interface{}{
			"owner_id":      ownerID,
			"acquired_at":   now,
			"expires_at":    expiresAt,
			"renewed_count": gorm.Expr("renewed_count + 1"),
		})
	if result.Error != nil {
		return false, translate("renew job lock", result.Error)
	}
	if result.RowsAffected > 0 {
		return true, nil
	}

	lock := &models.JobLock{
		LockKey:    lockKey,
		OwnerID:    ownerID,
		AcquiredAt: now,
		ExpiresAt:  expiresAt,
	}
	if err := r.db.WithContext(ctx).Create(lock).Error; err == nil {
		return true, nil
	}

	// Create failed: either someone holds the lease or the store is broken
	var existing models.JobLock
	if err := r.db.WithContext(ctx).Where("lock_key = ?", lockKey).First(&existing).Error; err != nil {
		return false, translate("read job lock", err)
	}
	return false, nil
}

// Release drops the lease if ownerID holds it
func (r *JobLockRepositoryImpl) Release(ctx context.Context, lockKey string, ownerID string) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("lock_key = ?", lockKey).
		Where("owner_id = ?", ownerID).
		Delete(&models.JobLock{})
	if result.Error != nil {
		return false, translate("release job lock", result.Error)
	}
	return result.RowsAffected > 0, nil
}
