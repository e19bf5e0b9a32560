// Package repository provides data access layer abstractions and registry
package repository

import (
	"fmt"
	"sync"

	"gorm.io/gorm"
)

// Registry provides centralized access to all repositories
type Registry struct {
	PresenceRepository      PresenceRepository
	NotificationRepository  NotificationRepository
	PreferenceRepository    PreferenceRepository
	PendingDigestRepository PendingDigestRepository
	UserRepository          UserRepository
	JobLockRepository       JobLockRepository

	// Database connection
	db *gorm.DB

	mu sync.RWMutex
}

// NewRegistry creates a new repository registry
func NewRegistry(db *gorm.DB) *Registry {
	return &Registry{
		db: db,
	}
}

// Initialize initializes all repositories
func (r *Registry) Initialize() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.db == nil {
		return fmt.Errorf("repository registry requires a database connection")
	}

	r.PresenceRepository = NewPresenceRepository(r.db)
	r.NotificationRepository = NewNotificationRepository(r.db)
	r.PreferenceRepository = NewPreferenceRepository(r.db)
	r.PendingDigestRepository = NewPendingDigestRepository(r.db)
	r.UserRepository = NewUserRepository(r.db)
	r.JobLockRepository = NewJobLockRepository(r.db)

	return nil
}

// GetDB returns the database connection
func (r *Registry) GetDB() *gorm.DB {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.db
}

// Close closes the registry and all resources
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.db != nil {
		sqlDB, err := r.db.DB()
		if err != nil {
			return fmt.Errorf("failed to get database connection: %w", err)
		}
		if err := sqlDB.Close(); err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}
