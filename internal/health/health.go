// Package health provides liveness and readiness probes.
package health

import (
	"context"
	"sync"
	"time"
)

// DefaultProbeTimeout bounds how long a single readiness check may run.
const DefaultProbeTimeout = 5 * time.Second

// Status represents a probe status.
type Status string

const (
	// StatusHealthy indicates the service is healthy.
	StatusHealthy Status = "healthy"
	// StatusUnhealthy indicates the service is unhealthy.
	StatusUnhealthy Status = "unhealthy"
)

// CheckFunc probes one dependency.
type CheckFunc func(ctx context.Context) error

// Check is the result of one readiness check.
type Check struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is the liveness probe response.
type HealthResponse struct {
	Status    Status    `json:"status"`
	Version   string    `json:"version,omitempty"`
	Uptime    string    `json:"uptime,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadinessResponse is the readiness probe response.
type ReadinessResponse struct {
	Status    Status           `json:"status"`
	Checks    map[string]Check `json:"checks,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// Checker runs liveness and readiness probes.
type Checker struct {
	version      string
	startTime    time.Time
	probeTimeout time.Duration

	mu     sync.RWMutex
	checks map[string]CheckFunc
}

// Option is a functional option for the checker.
type Option func(*Checker)

// WithProbeTimeout overrides the per-check timeout.
func WithProbeTimeout(timeout time.Duration) Option {
	return func(c *Checker) {
		c.probeTimeout = timeout
	}
}

// NewChecker creates a health checker.
func NewChecker(version string, opts ...Option) *Checker {
	c := &Checker{
		version:      version,
		startTime:    time.Now(),
		probeTimeout: DefaultProbeTimeout,
		checks:       make(map[string]CheckFunc),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// RegisterCheck registers a readiness check under the given name.
func (c *Checker) RegisterCheck(name string, check CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// Health returns the liveness status. The process is alive if it can
// answer, so this never reports unhealthy.
func (c *Checker) Health() HealthResponse {
	return HealthResponse{
		Status:    StatusHealthy,
		Version:   c.version,
		Uptime:    time.Since(c.startTime).Round(time.Second).String(),
		Timestamp: time.Now(),
	}
}

// Readiness runs all registered checks and aggregates the result.
func (c *Checker) Readiness(ctx context.Context) ReadinessResponse {
	c.mu.RLock()
	checks := make(map[string]CheckFunc, len(c.checks))
	for name, fn := range c.checks {
		checks[name] = fn
	}
	c.mu.RUnlock()

	response := ReadinessResponse{
		Status:    StatusHealthy,
		Checks:    make(map[string]Check, len(checks)),
		Timestamp: time.Now(),
	}

	for name, fn := range checks {
		checkCtx, cancel := context.WithTimeout(ctx, c.probeTimeout)
		err := fn(checkCtx)
		cancel()

		if err != nil {
			response.Checks[name] = Check{Status: StatusUnhealthy, Message: err.Error()}
			response.Status = StatusUnhealthy
		} else {
			response.Checks[name] = Check{Status: StatusHealthy}
		}
	}

	return response
}
