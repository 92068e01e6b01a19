// Package handlers implements the spoolwatch HTTP endpoints.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"sync"
	"time"

	apperrors "github.com/3leaps/spoolwatch/internal/errors"
)

const checkTimeout = 5 * time.Second

// HealthChecker is a named dependency probe.
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// HealthCheckerFunc adapts a function to HealthChecker.
type HealthCheckerFunc func(ctx context.Context) error

func (f HealthCheckerFunc) CheckHealth(ctx context.Context) error { return f(ctx) }

// HealthResponse is the body of a healthy /health response.
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Uptime    string            `json:"uptime"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// HealthManager runs registered checkers for the health endpoints.
type HealthManager struct {
	version   string
	startedAt time.Time

	mu       sync.RWMutex
	checkers map[string]HealthChecker
}

var globalHealthManager *HealthManager

func NewHealthManager(version string) *HealthManager {
	return &HealthManager{
		version:   version,
		startedAt: time.Now(),
		checkers:  make(map[string]HealthChecker),
	}
}

// InitHealthManager installs the manager used by the package-level handlers.
func InitHealthManager(version string) {
	globalHealthManager = NewHealthManager(version)
}

func GetHealthManager() *HealthManager {
	return globalHealthManager
}

// RegisterChecker adds or replaces the checker called name.
func (m *HealthManager) RegisterChecker(name string, c HealthChecker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers[name] = c
}

func (m *HealthManager) runChecks(ctx context.Context) map[string]string {
	m.mu.RLock()
	names := make([]string, 0, len(m.checkers))
	for name := range m.checkers {
		names = append(names, name)
	}
	sort.Strings(names)
	checkers := make([]HealthChecker, len(names))
	for i, name := range names {
		checkers[i] = m.checkers[name]
	}
	m.mu.RUnlock()

	results := make(map[string]string, len(names))
	for i, c := range checkers {
		cctx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := c.CheckHealth(cctx)
		cancel()
		switch {
		case err == nil:
			results[names[i]] = "healthy"
		case errors.Is(err, context.DeadlineExceeded):
			results[names[i]] = "timeout"
		default:
			results[names[i]] = "unhealthy"
		}
	}
	return results
}

// determineOverallStatus is unhealthy if any check failed, degraded if any
// timed out, else healthy.
func (m *HealthManager) determineOverallStatus(checks map[string]string) string {
	status := "healthy"
	for _, v := range checks {
		switch v {
		case "unhealthy":
			return "unhealthy"
		case "timeout":
			status = "degraded"
		}
	}
	return status
}

func (m *HealthManager) respond(w http.ResponseWriter, r *http.Request, checks map[string]string) {
	status := m.determineOverallStatus(checks)
	if status == "unhealthy" {
		details := make(map[string]any, len(checks))
		for k, v := range checks {
			details[k] = v
		}
		respondWithError(w, r, apperrors.NewServiceUnavailable("service is unhealthy").
			WithDetails(map[string]any{"checks": details}))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(HealthResponse{
		Status:    status,
		Version:   m.version,
		Uptime:    time.Since(m.startedAt).Round(time.Second).String(),
		Timestamp: time.Now().UTC(),
		Checks:    checks,
	})
}

// HealthHandler runs every check.
func (m *HealthManager) HealthHandler(w http.ResponseWriter, r *http.Request) {
	m.respond(w, r, m.runChecks(r.Context()))
}

// LivenessHandler reports the process is serving requests.
func (m *HealthManager) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	m.respond(w, r, nil)
}

// ReadinessHandler runs every check; the provider must answer before the
// server is ready.
func (m *HealthManager) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	m.respond(w, r, m.runChecks(r.Context()))
}

// StartupHandler reports startup is complete.
func (m *HealthManager) StartupHandler(w http.ResponseWriter, r *http.Request) {
	m.respond(w, r, nil)
}

func notInitialized(w http.ResponseWriter, r *http.Request) {
	respondWithError(w, r, apperrors.NewServiceUnavailable("health manager not initialized"))
}

func HealthHandler(w http.ResponseWriter, r *http.Request) {
	if globalHealthManager == nil {
		notInitialized(w, r)
		return
	}
	globalHealthManager.HealthHandler(w, r)
}

func LivenessHandler(w http.ResponseWriter, r *http.Request) {
	if globalHealthManager == nil {
		notInitialized(w, r)
		return
	}
	globalHealthManager.LivenessHandler(w, r)
}

func ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	if globalHealthManager == nil {
		notInitialized(w, r)
		return
	}
	globalHealthManager.ReadinessHandler(w, r)
}

func StartupHandler(w http.ResponseWriter, r *http.Request) {
	if globalHealthManager == nil {
		notInitialized(w, r)
		return
	}
	globalHealthManager.StartupHandler(w, r)
}
