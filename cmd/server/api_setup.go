package main

import (
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jgirmay/circle_realtime/internal/health"
	"github.com/jgirmay/circle_realtime/pkg/http/handlers"
)

// NewRouter registers every HTTP route
func NewRouter(components *Components) *chi.Mux {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	router.Handle("/ws", components.Gateway)

	handlers.NewRealtimeHandlers(components.Registry, components.Router).RegisterRoutes(router)
	handlers.NewPresenceHandlers(components.Recorder, components.Reconciler).RegisterRoutes(router)
	handlers.NewNotificationHandlers(
		components.Dispatcher,
		components.Digests,
		components.Repos.PreferenceRepository,
	).RegisterRoutes(router)

	healthEngine := health.NewHealthHandler(components.Health).Engine()
	router.Handle("/api/health", healthEngine)
	router.Handle("/api/health/*", healthEngine)

	router.Handle("/metrics", promhttp.HandlerFor(components.MetricsRegistry, promhttp.HandlerOpts{}))

	log.Println("[INIT] ✓ Routes registered")
	log.Println("[INIT]   - GET  /ws                               WebSocket gateway")
	log.Println("[INIT]   - GET  /ws/stats, /ws/users/{id}/connections")
	log.Println("[INIT]   - GET  /api/presence/{stats,user/{id},timeseries,active-now}")
	log.Println("[INIT]   - POST /api/presence/cleanup")
	log.Println("[INIT]   - POST /api/internal/{notifications,publish,digests/{frequency}}")
	log.Println("[INIT]   - GET|PUT /api/notifications/preferences/{id}")
	log.Println("[INIT]   - GET  /api/health, /metrics")
	return router
}

// NewHTTPServer creates the HTTP server. Hijacked WebSocket connections
// manage their own deadlines.
func NewHTTPServer(components *Components) *http.Server {
	cfg := components.Config.Server
	return &http.Server{
		Addr:         cfg.Addr(),
		Handler:      NewRouter(components),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
}
