package health

import (
	"context"
	"sync"
	"time"

	"github.com/hoangtvse170014/checkout/internal/logger"
	"github.com/hoangtvse170014/checkout/internal/service"
)

// Status represents the health status
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Check represents a health check
type Check struct {
	Name      string                 `json:"name"`
	Status    Status                 `json:"status"`
	Message   string                 `json:"message,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// HealthReport represents the overall health report
type HealthReport struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Uptime    time.Duration          `json:"uptime"`
	Checks    map[string]Check       `json:"checks"`
	Services  map[string]interface{} `json:"services,omitempty"`
}

// Checker is an interface for health checkers
type Checker interface {
	Name() string
	Check(ctx context.Context) Check
}

// Manager aggregates health checkers and service statuses for the web
// status surface. It does not run its own HTTP server; the web server calls
// Check directly from its /status handler (/healthz does not consult it).
type Manager struct {
	logger     *logger.Logger
	checkers   []Checker
	svcManager *service.Manager
	startTime  time.Time
	mu         sync.RWMutex
}

// NewManager creates a new health check manager
func NewManager(log *logger.Logger, svcManager *service.Manager) *Manager {
	return &Manager{
		logger:     log,
		checkers:   make([]Checker, 0),
		svcManager: svcManager,
		startTime:  time.Now(),
	}
}

// RegisterChecker registers a health checker
func (m *Manager) RegisterChecker(checker Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers = append(m.checkers, checker)
}

// Check performs all health checks and folds in service statuses
func (m *Manager) Check(ctx context.Context) HealthReport {
	m.mu.RLock()
	defer m.mu.RUnlock()

	checks := make(map[string]Check)
	overallStatus := StatusHealthy

	for _, checker := range m.checkers {
		check := checker.Check(ctx)
		checks[check.Name] = check

		if check.Status == StatusUnhealthy {
			overallStatus = StatusUnhealthy
		} else if check.Status == StatusDegraded && overallStatus == StatusHealthy {
			overallStatus = StatusDegraded
		}
	}

	services := make(map[string]interface{})
	if m.svcManager != nil {
		allStatuses := m.svcManager.GetAllStatuses()
		for name, status := range allStatuses {
			services[name] = map[string]interface{}{
				"status": status.GetStatus(),
				"uptime": status.GetUptime().String(),
				"error":  status.GetError(),
			}
		}
	}

	return HealthReport{
		Status:    overallStatus,
		Timestamp: time.Now(),
		Uptime:    time.Since(m.startTime),
		Checks:    checks,
		Services:  services,
	}
}
