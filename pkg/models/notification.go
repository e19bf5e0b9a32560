package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// NotificationType is the kind of social event a notification describes
type NotificationType string

const (
	NotificationMention NotificationType = "mention"
	NotificationLike    NotificationType = "like"
	NotificationReply   NotificationType = "reply"
)

// Valid reports whether t is a known notification type
func (t NotificationType) Valid() bool {
	switch t {
	case NotificationMention, NotificationLike, NotificationReply:
		return true
	}
	return false
}

// NotificationFrequency is a per-kind email delivery policy
type NotificationFrequency string

const (
	FrequencyImmediate NotificationFrequency = "immediate"
	FrequencyDaily     NotificationFrequency = "daily"
	FrequencyWeekly    NotificationFrequency = "weekly"
	FrequencyNone      NotificationFrequency = "none"
)

// Valid reports whether f is a known frequency
func (f NotificationFrequency) Valid() bool {
	switch f {
	case FrequencyImmediate, FrequencyDaily, FrequencyWeekly, FrequencyNone:
		return true
	}
	return false
}

// IsDigest reports whether f batches notifications into a digest
func (f NotificationFrequency) IsDigest() bool {
	return f == FrequencyDaily || f == FrequencyWeekly
}

// JSONMap is a free-form JSON object stored as text so it works on both
// postgres and sqlite
type JSONMap map[string]interface{}

// Value implements driver.Valuer
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported JSONMap source type %T", value)
	}
	if len(raw) == 0 {
		*m = nil
		return nil
	}
	return json.Unmarshal(raw, m)
}

// String returns the value stored under key when it is a string
func (m JSONMap) String(key string) string {
	if m == nil {
		return ""
	}
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

// Notification is the in-app notification history row
type Notification struct {
	ID          string           `json:"id" gorm:"type:varchar(36);primaryKey"`
	RecipientID string           `json:"recipient_id" gorm:"type:varchar(64);index"`
	SenderID    string           `json:"sender_id" gorm:"type:varchar(64);index"`
	Type        NotificationType `json:"type" gorm:"type:varchar(20)"`
	Data        JSONMap          `json:"data" gorm:"type:text"`
	IsRead      bool             `json:"is_read" gorm:"default:false"`
	CreatedAt   time.Time        `json:"created_at" gorm:"index"`
	UpdatedAt   time.Time        `json:"updated_at"`
	DeletedAt   gorm.DeletedAt   `json:"deleted_at,omitempty" gorm:"index"`
}

// TableName specifies the table name for GORM
func (Notification) TableName() string {
	return "notifications"
}

// NotificationPreferences holds a user's email frequency per notification kind
type NotificationPreferences struct {
	ID           string                `json:"id" gorm:"type:varchar(36);primaryKey"`
	UserID       string                `json:"user_id" gorm:"type:varchar(64);uniqueIndex"`
	MentionEmail NotificationFrequency `json:"mention_email" gorm:"type:varchar(20);default:'immediate'"`
	LikeEmail    NotificationFrequency `json:"like_email" gorm:"type:varchar(20);default:'daily'"`
	ReplyEmail   NotificationFrequency `json:"reply_email" gorm:"type:varchar(20);default:'immediate'"`
	CreatedAt    time.Time             `json:"created_at"`
	UpdatedAt    time.Time             `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (NotificationPreferences) TableName() string {
	return "notification_preferences"
}

// DefaultNotificationPreferences returns the preferences applied when a user
// has never configured any
func DefaultNotificationPreferences(userID string) *NotificationPreferences {
	return &NotificationPreferences{
		UserID:       userID,
		MentionEmail: FrequencyImmediate,
		LikeEmail:    FrequencyDaily,
		ReplyEmail:   FrequencyImmediate,
	}
}

// FrequencyFor returns the configured frequency for a notification type.
// Unknown types never produce email.
func (p *NotificationPreferences) FrequencyFor(t NotificationType) NotificationFrequency {
	switch t {
	case NotificationMention:
		return p.MentionEmail
	case NotificationLike:
		return p.LikeEmail
	case NotificationReply:
		return p.ReplyEmail
	}
	return FrequencyNone
}

// PendingDigestItem is a notification waiting to go out in a daily or weekly digest
type PendingDigestItem struct {
	ID               string                `json:"id" gorm:"type:varchar(36);primaryKey"`
	UserID           string                `json:"user_id" gorm:"type:varchar(64);index"`
	NotificationID   string                `json:"notification_id" gorm:"type:varchar(36);index"`
	NotificationType NotificationType      `json:"notification_type" gorm:"type:varchar(20)"`
	Frequency        NotificationFrequency `json:"frequency" gorm:"type:varchar(20);index:idx_pending_due"`
	ScheduledFor     time.Time             `json:"scheduled_for" gorm:"index:idx_pending_due"`
	IsSent           bool                  `json:"is_sent" gorm:"default:false;index:idx_pending_due"`
	CreatedAt        time.Time             `json:"created_at"`
	UpdatedAt        time.Time             `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (PendingDigestItem) TableName() string {
	return "pending_notification_emails"
}
