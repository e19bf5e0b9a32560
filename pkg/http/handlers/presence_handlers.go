package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jgirmay/circle_realtime/pkg/http/dto"
	"github.com/jgirmay/circle_realtime/pkg/services/presence"
)

// StaleSweeper closes presence records left open by dead connections
type StaleSweeper interface {
	RunOnce(ctx context.Context) (int, error)
}

// PresenceHandlers serves presence history and analytics
type PresenceHandlers struct {
	recorder *presence.Recorder
	sweeper  StaleSweeper
	now      func() time.Time
}

// NewPresenceHandlers creates new presence handlers
func NewPresenceHandlers(recorder *presence.Recorder, sweeper StaleSweeper) *PresenceHandlers {
	return &PresenceHandlers{
		recorder: recorder,
		sweeper:  sweeper,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// RegisterRoutes registers presence routes
func (h *PresenceHandlers) RegisterRoutes(router chi.Router) {
	router.Route("/api/presence", func(r chi.Router) {
		r.Get("/stats", h.GetStats)
		r.Get("/user/{userID}", h.GetUserHistory)
		r.Get("/timeseries", h.GetTimeseries)
		r.Get("/active-now", h.GetActiveNow)
		r.Post("/cleanup", h.Cleanup)
	})
}

// GetStats handles GET /api/presence/stats
func (h *PresenceHandlers) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.recorder.Stats(r.Context(), h.now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load presence stats", codeInternal)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// GetUserHistory handles GET /api/presence/user/{userID}?limit=
func (h *PresenceHandlers) GetUserHistory(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	limit := presence.DefaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > presence.MaxHistoryLimit {
			writeError(w, http.StatusBadRequest,
				fmt.Sprintf("limit must be between 1 and %d", presence.MaxHistoryLimit), codeBadRequest)
			return
		}
		limit = parsed
	}

	records, err := h.recorder.UserHistory(r.Context(), userID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load presence history", codeInternal)
		return
	}

	sessions := make([]dto.SessionResponse, 0, len(records))
	for _, record := range records {
		sessions = append(sessions, dto.SessionResponse{
			ID:              record.ID,
			ConnectionID:    record.ConnectionID,
			ConnectedAt:     record.ConnectedAt,
			DisconnectedAt:  record.DisconnectedAt,
			DurationSeconds: record.DurationSeconds,
		})
	}
	writeJSON(w, http.StatusOK, &dto.UserPresenceResponse{
		UserID:        userID,
		TotalSessions: len(sessions),
		Sessions:      sessions,
	})
}

// GetTimeseries handles GET /api/presence/timeseries?start_date=&end_date=&interval=
func (h *PresenceHandlers) GetTimeseries(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	startRaw, endRaw := query.Get("start_date"), query.Get("end_date")
	if startRaw == "" || endRaw == "" {
		writeError(w, http.StatusBadRequest, "start_date and end_date are required", codeBadRequest)
		return
	}
	start, err := parseDate(startRaw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_date", codeBadRequest)
		return
	}
	end, err := parseDate(endRaw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end_date", codeBadRequest)
		return
	}
	if end.Before(start) {
		writeError(w, http.StatusBadRequest, "end_date must not be before start_date", codeBadRequest)
		return
	}

	interval := query.Get("interval")
	if interval == "" {
		interval = string(presence.IntervalHour)
	}

	buckets, err := h.recorder.Timeseries(r.Context(), start, end, presence.ParseInterval(interval))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load presence timeseries", codeInternal)
		return
	}
	if buckets == nil {
		buckets = []presence.Bucket{}
	}

	writeJSON(w, http.StatusOK, &dto.TimeseriesResponse{
		StartDate: startRaw,
		EndDate:   endRaw,
		Interval:  interval,
		Data:      buckets,
	})
}

// GetActiveNow handles GET /api/presence/active-now
func (h *PresenceHandlers) GetActiveNow(w http.ResponseWriter, r *http.Request) {
	active, err := h.recorder.ActiveNow(r.Context(), h.now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load active users", codeInternal)
		return
	}
	writeJSON(w, http.StatusOK, &dto.ActiveNowResponse{
		ActiveCount: len(active),
		ActiveUsers: active,
	})
}

// Cleanup handles POST /api/presence/cleanup
func (h *PresenceHandlers) Cleanup(w http.ResponseWriter, r *http.Request) {
	closed, err := h.sweeper.RunOnce(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to clean up stale presence", codeInternal)
		return
	}
	writeJSON(w, http.StatusOK, &dto.CleanupResponse{
		CleanedUp: closed,
		Message:   fmt.Sprintf("Cleaned up %d stale presence records", closed),
	})
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// parseDate accepts ISO 8601 timestamps with or without zone, and bare
// dates. Values without a zone are UTC.
func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", raw)
}
