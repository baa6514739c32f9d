package schedulestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/carevisit/internal/adjustment/domain"
	"github.com/felixgeelhaar/carevisit/pkg/observability"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

// ErrStoreUnavailable is returned while the circuit breaker is open.
var ErrStoreUnavailable = errors.New("schedule store unavailable")

// ResilienceConfig tunes the breaker and limiter around a schedule store.
type ResilienceConfig struct {
	// RatePerSecond caps lookups per second; zero disables limiting.
	RatePerSecond float64
	Burst         int
	// FailureThreshold is the number of consecutive failures that opens the breaker; zero disables it.
	FailureThreshold uint32
	OpenTimeout      time.Duration
	HalfOpenRequests uint32
	// CallTimeout bounds a single lookup; zero keeps the caller's deadline.
	CallTimeout time.Duration
}

// DefaultResilienceConfig returns conservative defaults.
func DefaultResilienceConfig() ResilienceConfig {
	return ResilienceConfig{
		RatePerSecond:    20,
		Burst:            5,
		FailureThreshold: 5,
		OpenTimeout:      30 * time.Second,
		HalfOpenRequests: 1,
		CallTimeout:      10 * time.Second,
	}
}

// ResilientStore guards a ScheduleStore with a rate limiter and a circuit breaker.
type ResilientStore struct {
	inner   domain.ScheduleStore
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[[]domain.ExistingSchedule]
	config  ResilienceConfig
	metrics observability.Metrics
	logger  *slog.Logger
}

// NewResilientStore wraps inner. A nil metrics sink records nothing.
func NewResilientStore(inner domain.ScheduleStore, config ResilienceConfig, metrics observability.Metrics, logger *slog.Logger) *ResilientStore {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}

	s := &ResilientStore{inner: inner, config: config, metrics: metrics, logger: logger}
	if config.RatePerSecond > 0 {
		burst := config.Burst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(config.RatePerSecond), burst)
	}
	if config.FailureThreshold > 0 {
		s.breaker = gobreaker.NewCircuitBreaker[[]domain.ExistingSchedule](gobreaker.Settings{
			Name:        "schedule-store",
			MaxRequests: config.HalfOpenRequests,
			Timeout:     config.OpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= config.FailureThreshold
			},
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, context.Canceled)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Info("circuit breaker state changed",
					"breaker", name,
					"from", from.String(),
					"to", to.String(),
				)
				metrics.Counter(observability.MetricBreakerTransitions, 1, observability.T("state", to.String()))
			},
		})
	}
	return s
}

// FindSchedulesNear waits for the limiter, then calls through the breaker.
func (s *ResilientStore) FindSchedulesNear(ctx context.Context, window domain.TimeWindow, radiusDays int) ([]domain.ExistingSchedule, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	call := func() ([]domain.ExistingSchedule, error) {
		callCtx := ctx
		if s.config.CallTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, s.config.CallTimeout)
			defer cancel()
		}
		return s.inner.FindSchedulesNear(callCtx, window, radiusDays)
	}

	start := time.Now()
	var (
		out []domain.ExistingSchedule
		err error
	)
	if s.breaker != nil {
		out, err = s.breaker.Execute(call)
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	} else {
		out, err = call()
	}
	s.metrics.Timing(observability.MetricLookupDuration, time.Since(start), observability.T("success", fmt.Sprint(err == nil)))
	return out, err
}

// State returns the breaker state, or "disabled".
func (s *ResilientStore) State() string {
	if s.breaker == nil {
		return "disabled"
	}
	return s.breaker.State().String()
}
