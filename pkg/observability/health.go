package observability

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// HealthStatus represents the health state of a component.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheckResult is the result of a health check.
type HealthCheckResult struct {
	Status    HealthStatus   `json:"status"`
	Message   string         `json:"message,omitempty"`
	Duration  time.Duration  `json:"duration_ns"`
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
}

// HealthChecker is a function that performs a health check.
type HealthChecker func(ctx context.Context) HealthCheckResult

// HealthRegistry runs the health checks of the process's dependencies.
type HealthRegistry struct {
	mu       sync.RWMutex
	checkers map[string]HealthChecker
	results  map[string]HealthCheckResult
}

// NewHealthRegistry creates an empty registry. With no checks the process is healthy.
func NewHealthRegistry() *HealthRegistry {
	return &HealthRegistry{
		checkers: make(map[string]HealthChecker),
		results:  make(map[string]HealthCheckResult),
	}
}

// Register adds or replaces the checker for a component.
func (r *HealthRegistry) Register(name string, checker HealthChecker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkers[name] = checker
}

// Check runs all checks concurrently and caches the results for OverallStatus.
func (r *HealthRegistry) Check(ctx context.Context) map[string]HealthCheckResult {
	r.mu.RLock()
	checkers := make(map[string]HealthChecker, len(r.checkers))
	for k, v := range r.checkers {
		checkers[k] = v
	}
	r.mu.RUnlock()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make(map[string]HealthCheckResult, len(checkers))
	)
	for name, checker := range checkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			result := checker(ctx)
			result.Duration = time.Since(start)
			result.Timestamp = time.Now()

			mu.Lock()
			results[name] = result
			mu.Unlock()
		}()
	}
	wg.Wait()

	r.mu.Lock()
	r.results = results
	r.mu.Unlock()

	return results
}

// OverallStatus is the worst status of the last Check.
func (r *HealthRegistry) OverallStatus() HealthStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	status := HealthStatusHealthy
	for _, result := range r.results {
		switch result.Status {
		case HealthStatusUnhealthy:
			return HealthStatusUnhealthy
		case HealthStatusDegraded:
			status = HealthStatusDegraded
		}
	}
	return status
}

// OverallHealth returns a summary of the health status.
type OverallHealth struct {
	Status    HealthStatus                 `json:"status"`
	Timestamp time.Time                    `json:"timestamp"`
	Checks    map[string]HealthCheckResult `json:"checks"`
}

// GetOverallHealth runs all checks and returns overall health.
func (r *HealthRegistry) GetOverallHealth(ctx context.Context) OverallHealth {
	checks := r.Check(ctx)
	return OverallHealth{
		Status:    r.OverallStatus(),
		Timestamp: time.Now(),
		Checks:    checks,
	}
}

// PingChecker reports onFailure when ping fails. Batches cannot run without the
// database, so it fails unhealthy; Redis and RabbitMQ only degrade.
func PingChecker(component string, onFailure HealthStatus, ping func(ctx context.Context) error) HealthChecker {
	return func(ctx context.Context) HealthCheckResult {
		if err := ping(ctx); err != nil {
			return HealthCheckResult{
				Status:  onFailure,
				Message: component + " connection failed: " + err.Error(),
			}
		}
		return HealthCheckResult{
			Status:  HealthStatusHealthy,
			Message: component + " connection healthy",
		}
	}
}

// BreakerHealthChecker reports a circuit breaker state. Open and half-open report degraded.
func BreakerHealthChecker(state func() string) HealthChecker {
	return func(ctx context.Context) HealthCheckResult {
		st := state()
		result := HealthCheckResult{
			Status:  HealthStatusHealthy,
			Message: "schedule store breaker " + st,
			Details: map[string]any{"state": st},
		}
		if st == "open" || st == "half-open" {
			result.Status = HealthStatusDegraded
		}
		return result
	}
}

// RelayLagChecker degrades when the oldest undelivered event is older than maxLag.
func RelayLagChecker(lagSeconds func() float64, maxLag time.Duration) HealthChecker {
	return func(ctx context.Context) HealthCheckResult {
		lag := lagSeconds()
		result := HealthCheckResult{
			Status:  HealthStatusHealthy,
			Message: "event relay keeping up",
			Details: map[string]any{"lag_seconds": lag},
		}
		if lag > maxLag.Seconds() {
			result.Status = HealthStatusDegraded
			result.Message = fmt.Sprintf("event relay lagging %.0fs behind", lag)
		}
		return result
	}
}
