// Package health serves liveness and readiness endpoints.
package health

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jgirmay/circle_realtime/internal/api"
)

// HealthHandler provides health check endpoints
type HealthHandler struct {
	checker *HealthChecker
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(checker *HealthChecker) *HealthHandler {
	return &HealthHandler{
		checker: checker,
	}
}

// RegisterRoutes registers health check endpoints
func (h *HealthHandler) RegisterRoutes(engine *gin.Engine) {
	health := engine.Group("/api/health")
	{
		health.GET("", h.handleHealthStatus)
		health.GET("/live", h.handleLiveness)
		health.GET("/ready", h.handleReadiness)
	}
}

// Engine returns a gin engine serving only the health routes, for mounting
// under another router
func (h *HealthHandler) Engine() *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	h.RegisterRoutes(engine)
	return engine
}

// handleHealthStatus returns complete health status
func (h *HealthHandler) handleHealthStatus(c *gin.Context) {
	status := h.checker.Check(c.Request.Context())

	httpStatus := http.StatusOK
	if status.Status != "healthy" {
		httpStatus = http.StatusServiceUnavailable
	}

	api.RespondWith(c, httpStatus, status)
}

// handleLiveness checks if the process is running
func (h *HealthHandler) handleLiveness(c *gin.Context) {
	api.RespondWith(c, http.StatusOK, gin.H{
		"status":  "alive",
		"message": "Service is running",
	})
}

// handleReadiness checks if every dependency answers
func (h *HealthHandler) handleReadiness(c *gin.Context) {
	status := h.checker.Check(c.Request.Context())

	if status.Status == "healthy" {
		api.RespondWith(c, http.StatusOK, gin.H{
			"status":  "ready",
			"message": "Service is ready to serve requests",
		})
		return
	}
	api.RespondWithError(c, api.NewError(
		api.ErrCodeUnavailable,
		"Service is not ready: "+status.Message,
		http.StatusServiceUnavailable,
	))
}
