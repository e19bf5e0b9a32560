package notifications

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jgirmay/circle_realtime/pkg/metrics"
	"github.com/jgirmay/circle_realtime/pkg/models"
	"github.com/jgirmay/circle_realtime/pkg/repository"
)

// UnknownSender is shown when a digest entry's sender no longer exists
const UnknownSender = "Someone"

// DigestReport summarizes one RunDigest call
type DigestReport struct {
	Frequency     models.NotificationFrequency `json:"frequency"`
	EligibleItems int                          `json:"eligible_items"`
	Recipients    int                          `json:"recipients"`
	Sent          int                          `json:"sent"`
	Failed        int                          `json:"failed"`
	Skipped       int                          `json:"skipped"`
	MarkedSent    int64                        `json:"marked_sent"`
	LeaseHeld     bool                         `json:"lease_held,omitempty"`
}

// DigestScheduler batches queued notifications into one email per recipient
type DigestScheduler struct {
	pending       repository.PendingDigestRepository
	notifications repository.NotificationRepository
	users         repository.UserRepository
	locks         repository.JobLockRepository
	mailer        Mailer
	ownerID       string
	lockTTL       time.Duration
	platformURL   string
	metrics       *metrics.Metrics
	now           func() time.Time
}

// NewDigestScheduler creates a digest scheduler from the repository registry
func NewDigestScheduler(repos *repository.Registry, mailer Mailer, ownerID string, lockTTL time.Duration, platformURL string, m *metrics.Metrics) *DigestScheduler {
	if lockTTL <= 0 {
		lockTTL = 10 * time.Minute
	}
	return &DigestScheduler{
		pending:       repos.PendingDigestRepository,
		notifications: repos.NotificationRepository,
		users:         repos.UserRepository,
		locks:         repos.JobLockRepository,
		mailer:        mailer,
		ownerID:       ownerID,
		lockTTL:       lockTTL,
		platformURL:   strings.TrimRight(platformURL, "/"),
		metrics:       m,
		now:           time.Now,
	}
}

// ParseFrequency accepts "daily" or "weekly"
func ParseFrequency(s string) (models.NotificationFrequency, error) {
	f := models.NotificationFrequency(strings.ToLower(strings.TrimSpace(s)))
	if !f.IsDigest() {
		return "", fmt.Errorf("%w: %q", ErrInvalidFrequency, s)
	}
	return f, nil
}

// Preflight verifies the pending queue is readable. The scheduler cannot
// start without it.
func (s *DigestScheduler) Preflight(ctx context.Context) error {
	if err := s.pending.Ping(ctx); err != nil {
		return fmt.Errorf("digest queue unavailable: %w", err)
	}
	return nil
}

// Trigger runs the digest for frequency at the current time while holding
// the job lease. When another process holds the lease it returns a report
// with LeaseHeld set and sends nothing.
func (s *DigestScheduler) Trigger(ctx context.Context, frequency models.NotificationFrequency) (*DigestReport, error) {
	if !frequency.IsDigest() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidFrequency, frequency)
	}

	if s.locks != nil {
		key := "digest:" + string(frequency)
		acquired, err := s.locks.Acquire(ctx, key, s.ownerID, s.lockTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire digest lease: %w", err)
		}
		if !acquired {
			log.Printf("[DIGEST] %s digest skipped, lease held elsewhere", frequency)
			return &DigestReport{Frequency: frequency, LeaseHeld: true}, nil
		}
		defer func() {
			if _, err := s.locks.Release(context.WithoutCancel(ctx), key, s.ownerID); err != nil {
				log.Printf("[DIGEST] Failed to release %s lease: %v", key, err)
			}
		}()
	}

	return s.RunDigest(ctx, frequency, s.now())
}

// RunDigest sends one digest per recipient for every unsent item of
// frequency scheduled at or before now. Items are marked sent only after
// their digest was accepted by the mailer; failed recipients keep their
// items for the next run.
func (s *DigestScheduler) RunDigest(ctx context.Context, frequency models.NotificationFrequency, now time.Time) (*DigestReport, error) {
	if !frequency.IsDigest() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidFrequency, frequency)
	}
	started := time.Now()
	defer func() { s.metrics.DigestRun(string(frequency), time.Since(started).Seconds()) }()

	items, err := s.pending.ListDue(ctx, frequency, now)
	if err != nil {
		return nil, fmt.Errorf("failed to select due digest items: %w", err)
	}

	report := &DigestReport{Frequency: frequency, EligibleItems: len(items)}
	if len(items) == 0 {
		return report, nil
	}

	// group by recipient, keeping first-seen order
	var order []string
	byRecipient := make(map[string][]*models.PendingDigestItem)
	notificationIDs := make([]string, 0, len(items))
	for _, item := range items {
		if _, ok := byRecipient[item.UserID]; !ok {
			order = append(order, item.UserID)
		}
		byRecipient[item.UserID] = append(byRecipient[item.UserID], item)
		notificationIDs = append(notificationIDs, item.NotificationID)
	}
	report.Recipients = len(order)

	notifications, err := s.notifications.GetByIDs(ctx, notificationIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load digest notifications: %w", err)
	}

	userIDs := append([]string{}, order...)
	for _, n := range notifications {
		userIDs = append(userIDs, n.SenderID)
	}
	users, err := s.users.GetByIDs(ctx, userIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load digest users: %w", err)
	}

	for _, recipientID := range order {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		s.sendOne(ctx, report, frequency, users[recipientID], byRecipient[recipientID], notifications, users)
	}

	log.Printf("[DIGEST] %s digest: %d recipients, %d sent, %d failed, %d skipped",
		frequency, report.Recipients, report.Sent, report.Failed, report.Skipped)
	return report, nil
}

func (s *DigestScheduler) sendOne(
	ctx context.Context,
	report *DigestReport,
	frequency models.NotificationFrequency,
	recipient *models.User,
	items []*models.PendingDigestItem,
	notifications map[string]*models.Notification,
	users map[string]*models.User,
) {
	if recipient == nil {
		report.Skipped++
		return
	}

	entries := make([]DigestEntry, 0, len(items))
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
		notification, ok := notifications[item.NotificationID]
		if !ok {
			continue
		}
		sender := UnknownSender
		if u, ok := users[notification.SenderID]; ok && u.Username != "" {
			sender = u.Username
		}
		entries = append(entries, DigestEntry{
			Type:           notification.Type,
			SenderUsername: sender,
			Content:        notification.Data.String("content"),
		})
	}
	if len(entries) == 0 {
		// every notification was deleted; nothing will ever be sendable
		report.Skipped++
		if marked, err := s.pending.MarkSent(ctx, ids); err == nil {
			report.MarkedSent += marked
		}
		return
	}

	email := DigestEmail{
		To:                recipient.Email,
		Frequency:         frequency,
		Entries:           entries,
		NotificationsLink: s.platformURL + "/notifications",
	}
	if err := s.mailer.SendDigest(ctx, email); err != nil {
		log.Printf("[DIGEST] Digest for user %s failed, items stay queued: %v", recipient.ID, err)
		report.Failed++
		s.metrics.DigestSent(string(frequency), false)
		return
	}
	s.metrics.DigestSent(string(frequency), true)
	report.Sent++

	marked, err := s.pending.MarkSent(ctx, ids)
	if err != nil {
		log.Printf("[DIGEST] Failed to mark %d items sent for user %s: %v", len(ids), recipient.ID, err)
		return
	}
	report.MarkedSent += marked
}
