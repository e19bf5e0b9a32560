package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jgirmay/circle_realtime/pkg/http/dto"
	"github.com/jgirmay/circle_realtime/pkg/services/realtime"
)

// RealtimeHandlers exposes the connection registry and live publishing
type RealtimeHandlers struct {
	registry *realtime.Registry
	router   *realtime.Router
}

// NewRealtimeHandlers creates new realtime handlers
func NewRealtimeHandlers(registry *realtime.Registry, router *realtime.Router) *RealtimeHandlers {
	return &RealtimeHandlers{registry: registry, router: router}
}

// RegisterRoutes registers realtime admin and ingress routes
func (h *RealtimeHandlers) RegisterRoutes(router chi.Router) {
	router.Get("/ws/stats", h.GetStats)
	router.Get("/ws/users/{userID}/connections", h.GetUserConnections)
	router.Post("/api/internal/publish", h.Publish)
}

// GetStats handles GET /ws/stats
func (h *RealtimeHandlers) GetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.registry.Stats())
}

// GetUserConnections handles GET /ws/users/{userID}/connections
func (h *RealtimeHandlers) GetUserConnections(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	connections := h.registry.UserConnections(userID)

	writeJSON(w, http.StatusOK, &dto.UserConnectionsResponse{
		UserID:          userID,
		ConnectionCount: len(connections),
		Connections:     connections,
	})
}

// Publish handles POST /api/internal/publish
func (h *RealtimeHandlers) Publish(w http.ResponseWriter, r *http.Request) {
	var req dto.PublishRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", codeBadRequest)
		return
	}
	if req.Type == "" {
		writeError(w, http.StatusBadRequest, "type is required", codeBadRequest)
		return
	}
	topic, err := realtime.ParseTopic(req.Topic)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), codeBadRequest)
		return
	}

	var data interface{}
	if len(req.Data) > 0 {
		data = json.RawMessage(req.Data)
	}
	result, err := h.router.PublishJSON(r.Context(), topic, realtime.NewEvent(req.Type, data))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to publish event", codeInternal)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
