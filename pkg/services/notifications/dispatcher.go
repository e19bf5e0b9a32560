// Package notifications decides how each notification reaches its recipient
// and sends the periodic digests.
package notifications

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jgirmay/circle_realtime/pkg/metrics"
	"github.com/jgirmay/circle_realtime/pkg/models"
	"github.com/jgirmay/circle_realtime/pkg/repository"
	"github.com/jgirmay/circle_realtime/pkg/services/realtime"
)

// Outcome is the terminal state of one dispatch
type Outcome string

const (
	OutcomeSkipped        Outcome = "skipped"
	OutcomeQueued         Outcome = "queued"
	OutcomeImmediateSent  Outcome = "immediate-sent"
	OutcomeDeliveryFailed Outcome = "delivery-failed"
)

// Request is a new social notification from the content layer
type Request struct {
	RecipientID string                  `json:"recipient_id"`
	SenderID    string                  `json:"sender_id"`
	Type        models.NotificationType `json:"notification_type"`
	Data        models.JSONMap          `json:"data,omitempty"`
}

// Result reports what Dispatch did
type Result struct {
	Outcome        Outcome                      `json:"outcome"`
	NotificationID string                       `json:"notification_id,omitempty"`
	EmailSent      bool                         `json:"email_sent"`
	Frequency      models.NotificationFrequency `json:"email_frequency,omitempty"`
	ScheduledFor   *time.Time                   `json:"scheduled_for,omitempty"`
}

// LivePublisher pushes events to subscribed connections
type LivePublisher interface {
	PublishJSON(ctx context.Context, topic realtime.Topic, v interface{}) (realtime.PublishResult, error)
}

// Dispatcher persists notifications and routes them to immediate email,
// the digest queue or in-app only, according to recipient preferences
type Dispatcher struct {
	notifications repository.NotificationRepository
	preferences   repository.PreferenceRepository
	pending       repository.PendingDigestRepository
	users         repository.UserRepository
	mailer        Mailer
	publisher     LivePublisher
	platformURL   string
	metrics       *metrics.Metrics
	now           func() time.Time
}

// NewDispatcher creates a dispatcher from the repository registry
func NewDispatcher(repos *repository.Registry, mailer Mailer, publisher LivePublisher, platformURL string, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		notifications: repos.NotificationRepository,
		preferences:   repos.PreferenceRepository,
		pending:       repos.PendingDigestRepository,
		users:         repos.UserRepository,
		mailer:        mailer,
		publisher:     publisher,
		platformURL:   strings.TrimRight(platformURL, "/"),
		metrics:       m,
		now:           time.Now,
	}
}

// Dispatch handles one notification. Self-notifications are skipped without
// writing anything. Otherwise the notification row is always created, and
// any failure after that is reported through the Result, never as an error.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*Result, error) {
	if !req.Type.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidNotificationType, req.Type)
	}
	if req.RecipientID == "" || req.SenderID == "" {
		return nil, fmt.Errorf("recipient_id and sender_id are required")
	}

	if req.RecipientID == req.SenderID {
		d.metrics.Dispatched(string(req.Type), string(OutcomeSkipped))
		return &Result{Outcome: OutcomeSkipped}, nil
	}

	now := d.now().UTC()
	notification := &models.Notification{
		ID:          uuid.New().String(),
		RecipientID: req.RecipientID,
		SenderID:    req.SenderID,
		Type:        req.Type,
		Data:        req.Data,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := d.notifications.Create(ctx, notification); err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}

	d.publishLive(ctx, notification)

	// The row exists from here on; delivery errors are only an outcome.
	result, err := d.deliver(ctx, notification, now)
	if err != nil {
		log.Printf("[DISPATCH] Delivery of notification %s failed: %v", notification.ID, err)
		result = &Result{Outcome: OutcomeDeliveryFailed}
	}
	result.NotificationID = notification.ID
	d.metrics.Dispatched(string(req.Type), string(result.Outcome))
	return result, nil
}

func (d *Dispatcher) deliver(ctx context.Context, notification *models.Notification, now time.Time) (*Result, error) {
	prefs, err := d.preferences.GetOrCreate(ctx, notification.RecipientID)
	if err != nil {
		return nil, fmt.Errorf("failed to load preferences: %w", err)
	}
	frequency := prefs.FrequencyFor(notification.Type)
	result := &Result{Outcome: OutcomeQueued, Frequency: frequency}

	if frequency == models.FrequencyNone {
		return result, nil
	}

	recipient, sender, err := d.participants(ctx, notification)
	if err != nil {
		return nil, err
	}
	if recipient == nil || sender == nil {
		log.Printf("[DISPATCH] Notification %s kept in-app only: recipient or sender unknown", notification.ID)
		return result, nil
	}

	switch frequency {
	case models.FrequencyImmediate:
		email := NotificationEmail{
			To:             recipient.Email,
			Type:           notification.Type,
			SenderUsername: sender.Username,
			Content:        notification.Data.String("content"),
			PostLink:       d.postLink(notification.Data),
		}
		if err := d.mailer.SendNotification(ctx, email); err != nil {
			log.Printf("[DISPATCH] Immediate email for notification %s failed: %v", notification.ID, err)
			result.Outcome = OutcomeDeliveryFailed
			return result, nil
		}
		result.Outcome = OutcomeImmediateSent
		result.EmailSent = true

	case models.FrequencyDaily, models.FrequencyWeekly:
		scheduledFor := NextDigestTime(frequency, now)
		item := &models.PendingDigestItem{
			ID:               uuid.New().String(),
			UserID:           notification.RecipientID,
			NotificationID:   notification.ID,
			NotificationType: notification.Type,
			Frequency:        frequency,
			ScheduledFor:     scheduledFor,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := d.pending.Create(ctx, item); err != nil {
			return nil, fmt.Errorf("failed to queue digest item: %w", err)
		}
		result.EmailSent = true
		result.ScheduledFor = &scheduledFor
	}
	return result, nil
}

// participants loads recipient and sender; a missing user is returned as nil
func (d *Dispatcher) participants(ctx context.Context, notification *models.Notification) (*models.User, *models.User, error) {
	recipient, err := d.users.GetByID(ctx, notification.RecipientID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, nil, fmt.Errorf("failed to load recipient: %w", err)
	}
	sender, err := d.users.GetByID(ctx, notification.SenderID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, nil, fmt.Errorf("failed to load sender: %w", err)
	}
	return recipient, sender, nil
}

// postLink points at the original post when the notification is about a reply
func (d *Dispatcher) postLink(data models.JSONMap) string {
	postID := data.String("original_post_id")
	if postID == "" {
		postID = data.String("post_id")
	}
	if postID == "" {
		return ""
	}
	return d.platformURL + "/posts/" + postID
}

func (d *Dispatcher) publishLive(ctx context.Context, notification *models.Notification) {
	if d.publisher == nil {
		return
	}
	event := realtime.NewEvent(realtime.EventNotification, notification)
	if _, err := d.publisher.PublishJSON(ctx, realtime.UserTopic(notification.RecipientID), event); err != nil {
		log.Printf("[DISPATCH] Live publish for notification %s failed: %v", notification.ID, err)
	}
}
