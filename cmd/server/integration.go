package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gorm.io/gorm"

	"github.com/jgirmay/circle_realtime/internal/health"
	"github.com/jgirmay/circle_realtime/pkg/config"
	"github.com/jgirmay/circle_realtime/pkg/database"
	"github.com/jgirmay/circle_realtime/pkg/metrics"
	"github.com/jgirmay/circle_realtime/pkg/repository"
	"github.com/jgirmay/circle_realtime/pkg/scheduler"
	"github.com/jgirmay/circle_realtime/pkg/services/notifications"
	"github.com/jgirmay/circle_realtime/pkg/services/presence"
	"github.com/jgirmay/circle_realtime/pkg/services/realtime"
	"github.com/jgirmay/circle_realtime/pkg/services/websocket"
)

// Components holds all initialized components
type Components struct {
	Config          *config.Config
	DB              *gorm.DB
	Repos           *repository.Registry
	MetricsRegistry *prometheus.Registry
	Metrics         *metrics.Metrics
	Registry        *realtime.Registry
	Router          *realtime.Router
	Recorder        *presence.Recorder
	Reconciler      *presence.Reconciler
	Dispatcher      *notifications.Dispatcher
	Digests         *notifications.DigestScheduler
	Scheduler       *scheduler.Scheduler
	Gateway         *websocket.Gateway
	Health          *health.HealthChecker
}

// InitializeRealtime loads configuration and wires every component. A
// store that cannot be reached is a startup error.
func InitializeRealtime(ctx context.Context, configPath string) (*Components, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	LogConfiguration(cfg)

	components := &Components{Config: cfg}
	ownerID := instanceID()

	// 1. Database
	log.Printf("[INIT] Initializing %s database with GORM...", cfg.Database.Driver)
	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	components.DB = db
	log.Println("[INIT] ✓ Database initialized")

	if cfg.Database.AutoMigrate {
		log.Println("[INIT] Running database migrations...")
		if err := database.Migrate(db); err != nil {
			components.Close()
			return nil, fmt.Errorf("failed to migrate models: %w", err)
		}
		log.Println("[INIT] ✓ Migrations completed")
	}

	// 2. Repositories
	log.Println("[INIT] Initializing repository registry...")
	repos := repository.NewRegistry(db)
	if err := repos.Initialize(); err != nil {
		components.Close()
		return nil, fmt.Errorf("failed to initialize repository registry: %w", err)
	}
	components.Repos = repos
	log.Println("[INIT] ✓ Repository registry initialized")

	// 3. Metrics
	components.MetricsRegistry = prometheus.NewRegistry()
	components.MetricsRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	components.Metrics = metrics.New(components.MetricsRegistry)

	// 4. Presence and connection registry
	log.Println("[INIT] Initializing presence recorder and connection registry...")
	components.Recorder = presence.NewRecorder(
		repos.PresenceRepository,
		repos.UserRepository,
		presence.Thresholds{Active: cfg.Presence.ActiveWindow, ForceClose: cfg.Presence.ForceCloseAfter},
		components.Metrics,
	)
	components.Reconciler = presence.NewReconciler(
		components.Recorder, repos.JobLockRepository, ownerID, cfg.Presence.ReconcileInterval,
	)
	components.Registry = realtime.NewRegistry(
		realtime.WithPresenceSink(components.Recorder),
		realtime.WithSendTimeout(cfg.WebSocket.SendTimeout),
		realtime.WithMetrics(components.Metrics),
	)
	components.Router = realtime.NewRouter(components.Registry, components.Metrics)
	components.Gateway = websocket.NewGateway(
		components.Registry, components.Router, websocket.OptionsFromConfig(cfg.WebSocket),
	)
	log.Println("[INIT] ✓ Realtime components initialized")

	// 5. Notifications
	log.Println("[INIT] Initializing notification dispatcher and digests...")
	mailer := notifications.NewMailer(cfg.Email)
	components.Dispatcher = notifications.NewDispatcher(
		repos, mailer, components.Router, cfg.Email.FrontendURL, components.Metrics,
	)
	components.Digests = notifications.NewDigestScheduler(
		repos, mailer, ownerID, cfg.Digest.LockTTL, cfg.Email.FrontendURL, components.Metrics,
	)
	if err := components.Digests.Preflight(ctx); err != nil {
		components.Close()
		return nil, fmt.Errorf("digest store preflight failed: %w", err)
	}
	log.Printf("[INIT] ✓ Notifications initialized (email provider: %s)", cfg.Email.Provider)

	if cfg.Digest.Enabled {
		sched, err := scheduler.New(components.Digests, scheduler.JobsFromConfig(cfg.Digest), cfg.Digest.LockTTL)
		if err != nil {
			components.Close()
			return nil, fmt.Errorf("failed to configure digest schedule: %w", err)
		}
		components.Scheduler = sched
	}

	// 6. Health
	components.Health = health.NewHealthChecker()
	components.Health.AddCheck("database", func(context.Context) error { return database.Ping(db) })
	components.Health.AddCheck("digest_queue", components.Digests.Preflight)

	return components, nil
}

// Start launches the background jobs
func (c *Components) Start(ctx context.Context) {
	c.Reconciler.Start(ctx)
	if c.Scheduler != nil {
		c.Scheduler.Start()
	}
	log.Println("[INIT] ✓ Background jobs started")
}

// Shutdown stops the HTTP server and background jobs, closes live
// connections and then the database
func (c *Components) Shutdown(ctx context.Context, server *http.Server) {
	if server != nil {
		log.Println("[SHUTDOWN] Stopping HTTP server...")
		if err := server.Shutdown(ctx); err != nil {
			log.Printf("[SHUTDOWN] Server shutdown error: %v", err)
		}
	}

	log.Println("[SHUTDOWN] Closing WebSocket connections...")
	closed := c.Registry.CloseAll(ctx)
	log.Printf("[SHUTDOWN] Closed %d connections", closed)

	log.Println("[SHUTDOWN] Stopping background jobs...")
	c.Reconciler.Stop()
	if c.Scheduler != nil {
		c.Scheduler.Stop()
	}

	c.Close()
	log.Println("[SHUTDOWN] ✓ Graceful shutdown complete")
}

// Close releases the database connection
func (c *Components) Close() {
	if c.DB == nil {
		return
	}
	log.Println("[SHUTDOWN] Closing database connection...")
	if sqlDB, err := c.DB.DB(); err == nil {
		sqlDB.Close()
	}
}
