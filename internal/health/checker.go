// Package health provides liveness and readiness probes.
package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"forcecode/internal/dispatcher"
)

// ReadinessChecker is implemented by the org gateway to prove the session
// and instance are usable.
type ReadinessChecker interface {
	Ready(ctx context.Context) error
}

// StatsProvider exposes callback delivery counters.
type StatsProvider interface {
	Stats() dispatcher.Stats
}

// Status represents the health status of a component.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// CheckResult contains the result of a health check.
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// Response is the health check response.
type Response struct {
	Status Status                 `json:"status"`
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

// Checker performs health checks on dependencies.
type Checker struct {
	org        ReadinessChecker
	dispatcher StatsProvider
	timeout    time.Duration
	cacheFor   time.Duration

	mu           sync.RWMutex
	lastCheck    time.Time
	cachedReady  *Response
	shuttingDown bool
}

// Option configures a Checker.
type Option func(*Checker)

// WithDispatcher adds a callback delivery check. Open breakers degrade the
// service without making it unready.
func WithDispatcher(d StatsProvider) Option {
	return func(c *Checker) { c.dispatcher = d }
}

// NewChecker creates a new health checker.
func NewChecker(org ReadinessChecker, opts ...Option) *Checker {
	c := &Checker{
		org:      org,
		timeout:  5 * time.Second,
		cacheFor: time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Liveness returns healthy while the process can serve requests.
// It never touches the org.
func (c *Checker) Liveness(ctx context.Context) *Response {
	return &Response{
		Status: StatusHealthy,
	}
}

// Readiness checks whether deploys can be accepted. Results are cached
// briefly so probes do not hammer the org.
func (c *Checker) Readiness(ctx context.Context) *Response {
	c.mu.RLock()
	if c.shuttingDown {
		c.mu.RUnlock()
		return &Response{
			Status: StatusUnhealthy,
			Checks: map[string]CheckResult{
				"shutdown": {Status: StatusUnhealthy, Message: "service is shutting down"},
			},
		}
	}

	if c.cachedReady != nil && time.Since(c.lastCheck) < c.cacheFor {
		cached := c.cachedReady
		c.mu.RUnlock()
		return cached
	}
	c.mu.RUnlock()

	checks := make(map[string]CheckResult)
	overallStatus := StatusHealthy

	orgCheck := c.checkOrg(ctx)
	checks["org"] = orgCheck
	if orgCheck.Status != StatusHealthy {
		overallStatus = StatusUnhealthy
	}

	if c.dispatcher != nil {
		dispatcherCheck := c.checkDispatcher()
		checks["dispatcher"] = dispatcherCheck
		if dispatcherCheck.Status != StatusHealthy && overallStatus == StatusHealthy {
			overallStatus = StatusDegraded
		}
	}

	response := &Response{
		Status: overallStatus,
		Checks: checks,
	}

	c.mu.Lock()
	c.cachedReady = response
	c.lastCheck = time.Now()
	c.mu.Unlock()

	return response
}

func (c *Checker) checkOrg(ctx context.Context) CheckResult {
	if c.org == nil {
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: "org session not configured",
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.org.Ready(ctx); err != nil {
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: err.Error(),
		}
	}
	return CheckResult{Status: StatusHealthy}
}

func (c *Checker) checkDispatcher() CheckResult {
	stats := c.dispatcher.Stats()
	if stats.BreakersOpen > 0 {
		return CheckResult{
			Status:  StatusDegraded,
			Message: fmt.Sprintf("%d of %d callback hosts unreachable", stats.BreakersOpen, stats.BreakersTotal),
		}
	}
	return CheckResult{Status: StatusHealthy}
}

// IsHealthy returns true if the overall status is healthy.
func (r *Response) IsHealthy() bool {
	return r.Status == StatusHealthy
}

// IsReady reports whether traffic should be routed here. A degraded
// service still accepts deploys.
func (r *Response) IsReady() bool {
	return r.Status != StatusUnhealthy
}

// SetShuttingDown makes readiness fail from now on so load balancers stop
// sending new deploys.
func (c *Checker) SetShuttingDown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shuttingDown = true
	c.cachedReady = nil
}
