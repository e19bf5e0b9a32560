package models

import "time"

// User is the subset of the platform user record this service reads.
// The table is owned by the CRUD layer.
type User struct {
	ID        string    `json:"id" gorm:"type:varchar(64);primaryKey"`
	Username  string    `json:"username" gorm:"type:varchar(255);index"`
	Name      string    `json:"name" gorm:"type:varchar(255)"`
	Email     string    `json:"email" gorm:"type:varchar(255)"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (User) TableName() string {
	return "users"
}

// AllModels lists every model managed by AutoMigrate
func AllModels() []interface{} {
	return []interface{}{
		&User{},
		&PresenceRecord{},
		&Notification{},
		&NotificationPreferences{},
		&PendingDigestItem{},
		&JobLock{},
	}
}
