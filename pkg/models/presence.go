package models

import (
	"time"
)

// TimestampLayout is the fixed-width UTC layout used for presence timestamps.
// Fixed width keeps string comparison in SQL equivalent to time comparison.
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

// FormatTimestamp renders t in TimestampLayout
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp parses a presence timestamp, accepting RFC3339 as a fallback
func ParseTimestamp(value string) (time.Time, error) {
	t, err := time.Parse(TimestampLayout, value)
	if err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, value)
}

// PresenceRecord is the durable history entry for one connection's lifetime
type PresenceRecord struct {
	ID              string    `json:"id" gorm:"type:varchar(36);primaryKey"`
	UserID          string    `json:"user_id" gorm:"type:varchar(64);index"`
	ConnectionID    string    `json:"connection_id" gorm:"type:varchar(64);index"`
	ConnectedAt     string    `json:"connected_at" gorm:"type:varchar(40);index"`
	DisconnectedAt  *string   `json:"disconnected_at" gorm:"type:varchar(40)"`
	DurationSeconds *float64  `json:"duration_seconds"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" gorm:"index"`
}

// TableName specifies the table name for GORM
func (PresenceRecord) TableName() string {
	return "user_presence"
}

// IsOpen reports whether the record has not been closed yet
func (p *PresenceRecord) IsOpen() bool {
	return p.DisconnectedAt == nil
}

// ConnectedTime returns ConnectedAt as a time.Time
func (p *PresenceRecord) ConnectedTime() (time.Time, error) {
	return ParseTimestamp(p.ConnectedAt)
}
