package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jgirmay/circle_realtime/pkg/http/dto"
	"github.com/jgirmay/circle_realtime/pkg/models"
	"github.com/jgirmay/circle_realtime/pkg/repository"
	"github.com/jgirmay/circle_realtime/pkg/services/notifications"
)

// NotificationHandlers serves notification ingress, preferences and
// manual digest runs
type NotificationHandlers struct {
	dispatcher  *notifications.Dispatcher
	digests     *notifications.DigestScheduler
	preferences repository.PreferenceRepository
}

// NewNotificationHandlers creates new notification handlers
func NewNotificationHandlers(
	dispatcher *notifications.Dispatcher,
	digests *notifications.DigestScheduler,
	preferences repository.PreferenceRepository,
) *NotificationHandlers {
	return &NotificationHandlers{
		dispatcher:  dispatcher,
		digests:     digests,
		preferences: preferences,
	}
}

// RegisterRoutes registers notification routes
func (h *NotificationHandlers) RegisterRoutes(router chi.Router) {
	router.Post("/api/internal/notifications", h.CreateNotification)
	router.Post("/api/internal/digests/{frequency}", h.TriggerDigest)

	router.Route("/api/notifications/preferences/{userID}", func(r chi.Router) {
		r.Get("/", h.GetPreferences)
		r.Put("/", h.UpdatePreferences)
	})
}

// CreateNotification handles POST /api/internal/notifications
func (h *NotificationHandlers) CreateNotification(w http.ResponseWriter, r *http.Request) {
	var req notifications.Request
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", codeBadRequest)
		return
	}
	if req.RecipientID == "" || req.SenderID == "" {
		writeError(w, http.StatusBadRequest, "recipient_id and sender_id are required", codeBadRequest)
		return
	}

	result, err := h.dispatcher.Dispatch(r.Context(), req)
	if err != nil {
		if errors.Is(err, notifications.ErrInvalidNotificationType) {
			writeError(w, http.StatusBadRequest, err.Error(), codeBadRequest)
			return
		}
		log.Printf("[NOTIFY] Dispatch for %s failed: %v", req.RecipientID, err)
		writeError(w, http.StatusInternalServerError, "Failed to create notification", codeInternal)
		return
	}

	status := http.StatusCreated
	if result.Outcome == notifications.OutcomeSkipped {
		status = http.StatusOK
	}
	writeJSON(w, status, result)
}

// TriggerDigest handles POST /api/internal/digests/{frequency}
func (h *NotificationHandlers) TriggerDigest(w http.ResponseWriter, r *http.Request) {
	frequency, err := notifications.ParseFrequency(chi.URLParam(r, "frequency"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), codeBadRequest)
		return
	}

	report, err := h.digests.Trigger(r.Context(), frequency)
	if err != nil {
		log.Printf("[DIGEST] Manual %s run failed: %v", frequency, err)
		writeError(w, http.StatusInternalServerError, "Failed to run digest", codeInternal)
		return
	}
	if report.LeaseHeld {
		writeError(w, http.StatusConflict, "A digest run is already in progress", codeConflict)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// GetPreferences handles GET /api/notifications/preferences/{userID}
func (h *NotificationHandlers) GetPreferences(w http.ResponseWriter, r *http.Request) {
	prefs, err := h.preferences.GetOrCreate(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load preferences", codeInternal)
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

// UpdatePreferences handles PUT /api/notifications/preferences/{userID}
func (h *NotificationHandlers) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	var req dto.PreferencesUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", codeBadRequest)
		return
	}

	var update repository.PreferenceUpdate
	for _, field := range []struct {
		name  string
		value *string
		dest  **models.NotificationFrequency
	}{
		{"mention_email", req.MentionEmail, &update.MentionEmail},
		{"like_email", req.LikeEmail, &update.LikeEmail},
		{"reply_email", req.ReplyEmail, &update.ReplyEmail},
	} {
		if field.value == nil {
			continue
		}
		frequency := models.NotificationFrequency(*field.value)
		if !frequency.Valid() {
			writeError(w, http.StatusBadRequest, "Invalid "+field.name+": "+*field.value, codeBadRequest)
			return
		}
		*field.dest = &frequency
	}

	prefs, err := h.preferences.Update(r.Context(), chi.URLParam(r, "userID"), update)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to update preferences", codeInternal)
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}
