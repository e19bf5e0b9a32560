// Package presence keeps the durable connection history and derives
// presence statistics from it.
package presence

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/jgirmay/circle_realtime/pkg/metrics"
	"github.com/jgirmay/circle_realtime/pkg/models"
	"github.com/jgirmay/circle_realtime/pkg/repository"
)

const (
	// DefaultActiveWindow is how recently an open record must have been
	// updated to count as active
	DefaultActiveWindow = 30 * time.Minute

	// DefaultForceCloseAfter is how long an open record may go without an
	// update before reconciliation closes it
	DefaultForceCloseAfter = time.Hour

	// DefaultHistoryLimit and MaxHistoryLimit bound UserHistory
	DefaultHistoryLimit = 100
	MaxHistoryLimit     = 1000
)

// Thresholds are the two staleness windows. They are deliberately distinct:
// a record can be inactive for statistics while not yet old enough to close.
type Thresholds struct {
	Active     time.Duration
	ForceClose time.Duration
}

// DefaultThresholds returns the standard windows
func DefaultThresholds() Thresholds {
	return Thresholds{Active: DefaultActiveWindow, ForceClose: DefaultForceCloseAfter}
}

// Recorder writes presence history and answers presence queries
type Recorder struct {
	presence   repository.PresenceRepository
	users      repository.UserRepository
	thresholds Thresholds
	metrics    *metrics.Metrics
	now        func() time.Time
}

// NewRecorder creates a presence recorder. Zero thresholds fall back to the defaults.
func NewRecorder(presence repository.PresenceRepository, users repository.UserRepository, thresholds Thresholds, m *metrics.Metrics) *Recorder {
	if thresholds.Active <= 0 {
		thresholds.Active = DefaultActiveWindow
	}
	if thresholds.ForceClose <= 0 {
		thresholds.ForceClose = DefaultForceCloseAfter
	}
	return &Recorder{
		presence:   presence,
		users:      users,
		thresholds: thresholds,
		metrics:    m,
		now:        time.Now,
	}
}

// Thresholds returns the configured staleness windows
func (r *Recorder) Thresholds() Thresholds {
	return r.thresholds
}

// RecordConnect appends an open record for a new connection
func (r *Recorder) RecordConnect(ctx context.Context, userID, connectionID string, connectedAt time.Time) error {
	at := connectedAt.UTC()
	record := &models.PresenceRecord{
		ID:           uuid.New().String(),
		UserID:       userID,
		ConnectionID: connectionID,
		ConnectedAt:  models.FormatTimestamp(at),
		CreatedAt:    at,
		UpdatedAt:    at,
	}
	if err := r.presence.Create(ctx, record); err != nil {
		return fmt.Errorf("failed to record connect: %w", err)
	}
	return nil
}

// RecordDisconnect closes the open record of a connection. A connection
// without an open record is not an error.
func (r *Recorder) RecordDisconnect(ctx context.Context, connectionID string, disconnectedAt time.Time, durationSeconds float64) error {
	closed, err := r.presence.CloseOpenByConnection(ctx, connectionID, disconnectedAt, durationSeconds)
	if err != nil {
		return fmt.Errorf("failed to record disconnect: %w", err)
	}
	if closed == 0 {
		log.Printf("[PRESENCE] No open record for connection %s", connectionID)
	}
	return nil
}

// RecordHeartbeat marks the open record of a connection as recently seen
func (r *Recorder) RecordHeartbeat(ctx context.Context, connectionID string) error {
	if err := r.presence.Touch(ctx, connectionID, r.now()); err != nil {
		return fmt.Errorf("failed to record heartbeat: %w", err)
	}
	return nil
}

// ReconcileStale closes open records that have not been updated for
// olderThan (ForceClose when zero). Each is closed at now with its duration
// measured from connected_at. Rows closed concurrently by a live disconnect
// are left alone.
func (r *Recorder) ReconcileStale(ctx context.Context, now time.Time, olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		olderThan = r.thresholds.ForceClose
	}
	now = now.UTC()

	stale, err := r.presence.ListOpenUpdatedBefore(ctx, now.Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("failed to list stale presence: %w", err)
	}

	closed := 0
	for _, record := range stale {
		connectedAt, err := record.ConnectedTime()
		if err != nil {
			log.Printf("[PRESENCE] Skipping record %s with unreadable connected_at %q: %v", record.ID, record.ConnectedAt, err)
			continue
		}
		duration := math.Max(0, now.Sub(connectedAt).Seconds())

		n, err := r.presence.CloseOpenByID(ctx, record.ID, now, duration)
		if err != nil {
			return closed, fmt.Errorf("failed to close stale presence %s: %w", record.ID, err)
		}
		closed += int(n)
	}

	r.metrics.StaleClosed(closed)
	if closed > 0 {
		log.Printf("[PRESENCE] Closed %d stale presence records", closed)
	}
	return closed, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
