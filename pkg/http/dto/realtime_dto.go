package dto

import (
	"encoding/json"
	"time"

	"github.com/jgirmay/circle_realtime/pkg/services/presence"
	"github.com/jgirmay/circle_realtime/pkg/services/realtime"
)

// ErrorResponse is a standard error response
type ErrorResponse struct {
	Error     string    `json:"error"`
	Code      string    `json:"code,omitempty"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// UserConnectionsResponse lists the live connections of one user
type UserConnectionsResponse struct {
	UserID          string                    `json:"user_id"`
	ConnectionCount int                       `json:"connection_count"`
	Connections     []realtime.ConnectionInfo `json:"connections"`
}

// PublishRequest is a live event pushed by another backend service.
// Topic has the form "user:<id>" or "event:<id>".
type PublishRequest struct {
	Topic string          `json:"topic"`
	Type  string          `json:"type"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// SessionResponse is one row of a user's presence history
type SessionResponse struct {
	ID              string   `json:"id"`
	ConnectionID    string   `json:"connection_id"`
	ConnectedAt     string   `json:"connected_at"`
	DisconnectedAt  *string  `json:"disconnected_at"`
	DurationSeconds *float64 `json:"duration_seconds"`
}

// UserPresenceResponse is a user's presence history, newest first
type UserPresenceResponse struct {
	UserID        string            `json:"user_id"`
	TotalSessions int               `json:"total_sessions"`
	Sessions      []SessionResponse `json:"sessions"`
}

// TimeseriesResponse is presence history bucketed by interval
type TimeseriesResponse struct {
	StartDate string            `json:"start_date"`
	EndDate   string            `json:"end_date"`
	Interval  string            `json:"interval"`
	Data      []presence.Bucket `json:"data"`
}

// CleanupResponse reports a manual stale sweep
type CleanupResponse struct {
	CleanedUp int    `json:"cleaned_up"`
	Message   string `json:"message"`
}

// ActiveNowResponse lists open, recently active connections
type ActiveNowResponse struct {
	ActiveCount int                   `json:"active_count"`
	ActiveUsers []presence.ActiveUser `json:"active_users"`
}

// PreferencesUpdateRequest changes any subset of the email frequencies
type PreferencesUpdateRequest struct {
	MentionEmail *string `json:"mention_email,omitempty"`
	LikeEmail    *string `json:"like_email,omitempty"`
	ReplyEmail   *string `json:"reply_email,omitempty"`
}
