package presence

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/jgirmay/circle_realtime/pkg/models"
)

// Interval is a timeseries bucket width
type Interval string

const (
	IntervalHour Interval = "hour"
	IntervalDay  Interval = "day"
	IntervalWeek Interval = "week"
)

// ParseInterval maps unknown values to IntervalHour
func ParseInterval(s string) Interval {
	switch Interval(s) {
	case IntervalDay, IntervalWeek:
		return Interval(s)
	}
	return IntervalHour
}

// Stats is the aggregate view of presence history
type Stats struct {
	TotalSessions          int64   `json:"total_sessions"`
	ActiveSessions         int64   `json:"active_sessions"`
	AverageDurationSeconds float64 `json:"average_duration_seconds"`
	UniqueUsers            int64   `json:"unique_users"`
}

// Bucket is one timeseries point
type Bucket struct {
	Timestamp              string  `json:"timestamp"`
	SessionCount           int     `json:"session_count"`
	UniqueUsers            int     `json:"unique_users"`
	TotalDurationSeconds   float64 `json:"total_duration_seconds"`
	AverageDurationSeconds float64 `json:"average_duration_seconds"`
}

// ActiveUser is an open, recently updated connection joined with its user
type ActiveUser struct {
	UserID          string  `json:"user_id"`
	Username        string  `json:"username"`
	Name            string  `json:"name"`
	ConnectionID    string  `json:"connection_id"`
	ConnectedAt     string  `json:"connected_at"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// Stats counts all sessions, the active ones, the mean closed-session
// duration and the distinct users seen
func (r *Recorder) Stats(ctx context.Context, now time.Time) (*Stats, error) {
	summary, err := r.presence.Summary(ctx, now.Add(-r.thresholds.Active))
	if err != nil {
		return nil, fmt.Errorf("failed to summarize presence: %w", err)
	}
	return &Stats{
		TotalSessions:          summary.Total,
		ActiveSessions:         summary.Active,
		AverageDurationSeconds: round2(summary.AverageDuration),
		UniqueUsers:            summary.UniqueUsers,
	}, nil
}

// Timeseries buckets sessions connected within [start, end] by interval.
// Weeks start on Monday 00:00 UTC. Buckets are returned in ascending order.
func (r *Recorder) Timeseries(ctx context.Context, start, end time.Time, interval Interval) ([]Bucket, error) {
	records, err := r.presence.ListConnectedBetween(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to load presence range: %w", err)
	}

	type accumulator struct {
		sessions int
		users    map[string]struct{}
		total    float64
	}
	buckets := make(map[time.Time]*accumulator)

	for _, record := range records {
		connectedAt, err := record.ConnectedTime()
		if err != nil {
			continue
		}
		key := bucketStart(connectedAt, interval)
		acc, ok := buckets[key]
		if !ok {
			acc = &accumulator{users: make(map[string]struct{})}
			buckets[key] = acc
		}
		acc.sessions++
		acc.users[record.UserID] = struct{}{}
		if record.DurationSeconds != nil {
			acc.total += *record.DurationSeconds
		}
	}

	keys := make([]time.Time, 0, len(buckets))
	for key := range buckets {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })

	result := make([]Bucket, 0, len(keys))
	for _, key := range keys {
		acc := buckets[key]
		result = append(result, Bucket{
			Timestamp:              key.Format(time.RFC3339),
			SessionCount:           acc.sessions,
			UniqueUsers:            len(acc.users),
			TotalDurationSeconds:   round2(acc.total),
			AverageDurationSeconds: round2(acc.total / float64(acc.sessions)),
		})
	}
	return result, nil
}

func bucketStart(t time.Time, interval Interval) time.Time {
	t = t.UTC()
	switch interval {
	case IntervalDay:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	case IntervalWeek:
		// time.Weekday counts from Sunday
		sinceMonday := (int(t.Weekday()) + 6) % 7
		day := t.AddDate(0, 0, -sinceMonday)
		return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	default:
		return t.Truncate(time.Hour)
	}
}

// UserHistory returns a user's records newest first. limit defaults to
// DefaultHistoryLimit and is capped at MaxHistoryLimit.
func (r *Recorder) UserHistory(ctx context.Context, userID string, limit int) ([]*models.PresenceRecord, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	records, err := r.presence.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load presence history: %w", err)
	}
	return records, nil
}

// ActiveNow lists open connections updated within the active window.
// Records whose user no longer exists are omitted.
func (r *Recorder) ActiveNow(ctx context.Context, now time.Time) ([]ActiveUser, error) {
	records, err := r.presence.ListOpenUpdatedSince(ctx, now.Add(-r.thresholds.Active))
	if err != nil {
		return nil, fmt.Errorf("failed to load active presence: %w", err)
	}

	ids := make([]string, 0, len(records))
	for _, record := range records {
		ids = append(ids, record.UserID)
	}
	users, err := r.users.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load users: %w", err)
	}

	active := make([]ActiveUser, 0, len(records))
	for _, record := range records {
		user, ok := users[record.UserID]
		if !ok {
			continue
		}
		duration := 0.0
		if connectedAt, err := record.ConnectedTime(); err == nil {
			duration = math.Max(0, now.Sub(connectedAt).Seconds())
		}
		active = append(active, ActiveUser{
			UserID:          record.UserID,
			Username:        user.Username,
			Name:            user.Name,
			ConnectionID:    record.ConnectionID,
			ConnectedAt:     record.ConnectedAt,
			DurationSeconds: duration,
		})
	}
	return active, nil
}
