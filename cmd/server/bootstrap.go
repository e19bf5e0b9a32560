package main

import (
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"

	"github.com/jgirmay/circle_realtime/pkg/config"
)

// LogConfiguration logs the loaded configuration
func LogConfiguration(cfg *config.Config) {
	log.Println("===============================================================")
	log.Println("CIRCLE REALTIME CONFIGURATION")
	log.Println("===============================================================")
	log.Printf("Listen Address:                 %s", cfg.Server.Addr())
	log.Printf("Database Driver:                %s", cfg.Database.Driver)
	log.Printf("Database URL:                   %s", maskDatabaseURL(cfg.Database.URL))
	log.Printf("Auto Migrate:                   %v", cfg.Database.AutoMigrate)
	log.Printf("WebSocket Send Timeout:         %v", cfg.WebSocket.SendTimeout)
	log.Printf("WebSocket Ping Interval:        %v", cfg.WebSocket.PingInterval)
	log.Printf("Presence Active Window:         %v", cfg.Presence.ActiveWindow)
	log.Printf("Presence Force Close After:     %v", cfg.Presence.ForceCloseAfter)
	log.Printf("Presence Reconcile Interval:    %v", cfg.Presence.ReconcileInterval)
	log.Printf("Digest Jobs Enabled:            %v", cfg.Digest.Enabled)
	if cfg.Digest.Enabled {
		log.Printf("  Daily Schedule:               %s", cfg.Digest.DailySchedule)
		log.Printf("  Weekly Schedule:              %s", cfg.Digest.WeeklySchedule)
	}
	log.Printf("Email Provider:                 %s", cfg.Email.Provider)
	if cfg.Email.Provider == "smtp" {
		log.Printf("  SMTP Server:                  %s:%d", cfg.Email.SMTPHost, cfg.Email.SMTPPort)
	}
	log.Printf("Frontend URL:                   %s", cfg.Email.FrontendURL)
	log.Println("===============================================================")
}

// maskDatabaseURL masks sensitive information in database URL
func maskDatabaseURL(dsn string) string {
	if len(dsn) > 20 {
		return dsn[:10] + "..." + dsn[len(dsn)-10:]
	}
	return "***"
}

// instanceID names this process when it takes job leases
func instanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return fmt.Sprintf("%s-%d-%s", host, os.Getpid(), uuid.New().String()[:8])
}
