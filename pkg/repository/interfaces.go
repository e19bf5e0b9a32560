package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jgirmay/circle_realtime/pkg/models"
)

var (
	// ErrNotFound is returned when a lookup matches no row
	ErrNotFound = errors.New("record not found")

	// ErrPersistence wraps durable-store failures
	ErrPersistence = errors.New("persistence failure")
)

// PresenceRepository defines operations for presence records
type PresenceRepository interface {
	// Create appends a new presence record
	Create(ctx context.Context, record *models.PresenceRecord) error

	// CloseOpenByConnection closes the open record for a connection.
	// Returns the number of rows closed (0 when already closed or never written).
	CloseOpenByConnection(ctx context.Context, connectionID string, disconnectedAt time.Time, durationSeconds float64) (int64, error)

	// CloseOpenByID closes a single record if it is still open
	CloseOpenByID(ctx context.Context, id string, disconnectedAt time.Time, durationSeconds float64) (int64, error)

	// Touch bumps updated_at on the open record for a connection
	Touch(ctx context.Context, connectionID string, at time.Time) error

	// ListOpenUpdatedBefore retrieves open records not updated since cutoff
	ListOpenUpdatedBefore(ctx context.Context, cutoff time.Time) ([]*models.PresenceRecord, error)

	// ListOpenUpdatedSince retrieves open records updated at or after cutoff
	ListOpenUpdatedSince(ctx context.Context, cutoff time.Time) ([]*models.PresenceRecord, error)

	// ListConnectedBetween retrieves records whose connected_at falls in [start, end]
	ListConnectedBetween(ctx context.Context, start, end time.Time) ([]*models.PresenceRecord, error)

	// ListByUser retrieves a user's records, newest first
	ListByUser(ctx context.Context, userID string, limit int) ([]*models.PresenceRecord, error)

	// Summary returns aggregate counters used by presence statistics
	Summary(ctx context.Context, activeSince time.Time) (*PresenceSummary, error)
}

// PresenceSummary holds aggregate presence counters
type PresenceSummary struct {
	Total           int64
	Active          int64
	AverageDuration float64
	UniqueUsers     int64
}

// NotificationRepository defines operations for in-app notifications
type NotificationRepository interface {
	// Create stores a new notification
	Create(ctx context.Context, notification *models.Notification) error

	// GetByID retrieves a notification, excluding deleted ones
	GetByID(ctx context.Context, id string) (*models.Notification, error)

	// GetByIDs retrieves notifications keyed by ID, excluding deleted ones
	GetByIDs(ctx context.Context, ids []string) (map[string]*models.Notification, error)

	// ListByRecipient retrieves a recipient's notifications, newest first
	ListByRecipient(ctx context.Context, recipientID string, limit int) ([]*models.Notification, error)

	// Delete removes a notification from history
	Delete(ctx context.Context, id string) error
}

// PreferenceUpdate carries optional frequency changes
type PreferenceUpdate struct {
	MentionEmail *models.NotificationFrequency
	LikeEmail    *models.NotificationFrequency
	ReplyEmail   *models.NotificationFrequency
}

// PreferenceRepository defines operations for notification preferences
type PreferenceRepository interface {
	// Get retrieves preferences, returning ErrNotFound when never created
	Get(ctx context.Context, userID string) (*models.NotificationPreferences, error)

	// GetOrCreate retrieves preferences, creating defaults on first access
	GetOrCreate(ctx context.Context, userID string) (*models.NotificationPreferences, error)

	// Update applies the non-nil fields of update
	Update(ctx context.Context, userID string, update PreferenceUpdate) (*models.NotificationPreferences, error)
}

// PendingDigestRepository defines operations for queued digest items
type PendingDigestRepository interface {
	// Create queues a digest item
	Create(ctx context.Context, item *models.PendingDigestItem) error

	// ListDue retrieves unsent items of a frequency scheduled at or before now
	ListDue(ctx context.Context, frequency models.NotificationFrequency, now time.Time) ([]*models.PendingDigestItem, error)

	// MarkSent flags items as sent. Already-sent items are left alone.
	MarkSent(ctx context.Context, ids []string) (int64, error)

	// ListByUser retrieves a user's items, oldest schedule first
	ListByUser(ctx context.Context, userID string) ([]*models.PendingDigestItem, error)

	// Ping verifies the pending table is reachable
	Ping(ctx context.Context) error
}

// UserRepository is the read-only view of platform users
type UserRepository interface {
	// GetByID retrieves a user, returning ErrNotFound when missing
	GetByID(ctx context.Context, id string) (*models.User, error)

	// GetByIDs retrieves users keyed by ID; missing IDs are absent from the map
	GetByIDs(ctx context.Context, ids []string) (map[string]*models.User, error)
}

// JobLockRepository defines lease operations for periodic jobs
type JobLockRepository interface {
	// Acquire takes (or renews) the lease; false means another owner holds it
	Acquire(ctx context.Context, lockKey string, ownerID string, ttl time.Duration) (bool, error)

	// Release drops the lease if ownerID holds it
	Release(ctx context.Context, lockKey string, ownerID string) (bool, error)
}
