package models

import "time"

// JobLock is a lease on a periodic job so that only one process runs it at a time
type JobLock struct {
	LockKey      string    `json:"lock_key" gorm:"type:varchar(255);primaryKey"`
	OwnerID      string    `json:"owner_id" gorm:"type:varchar(255);index"`
	AcquiredAt   time.Time `json:"acquired_at"`
	ExpiresAt    time.Time `json:"expires_at" gorm:"index"`
	RenewedCount int       `json:"renewed_count" gorm:"default:0"`
}

// TableName specifies the table name for GORM
func (JobLock) TableName() string {
	return "job_locks"
}
