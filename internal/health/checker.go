package health

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// HealthStatus represents the overall system health
type HealthStatus struct {
	Status    string                   `json:"status"`
	Timestamp time.Time                `json:"timestamp"`
	Message   string                   `json:"message"`
	Services  map[string]ServiceHealth `json:"services"`
	Uptime    string                   `json:"uptime"`
}

// ServiceHealth represents health of a dependency
type ServiceHealth struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Latency string `json:"latency_ms"`
}

// CheckFunc checks one dependency
type CheckFunc func(ctx context.Context) error

// HealthChecker performs health checks on system components
type HealthChecker struct {
	mu        sync.RWMutex
	checks    map[string]CheckFunc
	startTime time.Time
	timeout   time.Duration
}

// NewHealthChecker creates a new health checker
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		checks:    make(map[string]CheckFunc),
		startTime: time.Now(),
		timeout:   2 * time.Second,
	}
}

// AddCheck registers a named dependency check
func (hc *HealthChecker) AddCheck(name string, check CheckFunc) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.checks[name] = check
}

// Check performs a complete health check
func (hc *HealthChecker) Check(ctx context.Context) *HealthStatus {
	hc.mu.RLock()
	names := make([]string, 0, len(hc.checks))
	for name := range hc.checks {
		names = append(names, name)
	}
	hc.mu.RUnlock()
	sort.Strings(names)

	status := &HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Services:  make(map[string]ServiceHealth, len(names)),
		Uptime:    hc.calculateUptime(),
	}

	var failing []string
	for _, name := range names {
		hc.mu.RLock()
		check := hc.checks[name]
		hc.mu.RUnlock()

		result := hc.run(ctx, check)
		status.Services[name] = result
		if result.Status != "healthy" {
			failing = append(failing, name)
		}
	}

	if len(failing) > 0 {
		status.Status = "degraded"
		status.Message = fmt.Sprintf("Unhealthy dependencies: %v", failing)
	} else {
		status.Message = fmt.Sprintf("System operating normally with %d dependencies", len(names))
	}
	return status
}

func (hc *HealthChecker) run(ctx context.Context, check CheckFunc) ServiceHealth {
	ctx, cancel := context.WithTimeout(ctx, hc.timeout)
	defer cancel()

	start := time.Now()
	err := check(ctx)
	latency := time.Since(start)

	if err != nil {
		return ServiceHealth{
			Status:  "unhealthy",
			Message: err.Error(),
			Latency: fmt.Sprintf("%d", latency.Milliseconds()),
		}
	}
	return ServiceHealth{
		Status:  "healthy",
		Message: "ok",
		Latency: fmt.Sprintf("%d", latency.Milliseconds()),
	}
}

// calculateUptime calculates system uptime as human-readable string
func (hc *HealthChecker) calculateUptime() string {
	elapsed := time.Since(hc.startTime)

	days := int(elapsed.Hours()) / 24
	hours := int(elapsed.Hours()) % 24
	minutes := int(elapsed.Minutes()) % 60
	seconds := int(elapsed.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	} else if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	} else if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}
