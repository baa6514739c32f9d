package observability

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ok(context.Context) error { return nil }

func TestHealthRegistry(t *testing.T) {
	ctx := context.Background()
	r := NewHealthRegistry()
	assert.Equal(t, HealthStatusHealthy, r.OverallStatus())

	r.Register("database", PingChecker("database", HealthStatusUnhealthy, ok))
	r.Register("redis", PingChecker("redis", HealthStatusDegraded, func(context.Context) error { return errors.New("refused") }))

	results := r.Check(ctx)
	require.Len(t, results, 2)
	assert.Equal(t, HealthStatusHealthy, results["database"].Status)
	assert.Equal(t, HealthStatusDegraded, results["redis"].Status)
	assert.Equal(t, "redis connection failed: refused", results["redis"].Message)
	assert.False(t, results["redis"].Timestamp.IsZero())
	assert.Equal(t, HealthStatusDegraded, r.OverallStatus())

	r.Register("database", PingChecker("database", HealthStatusUnhealthy, func(context.Context) error { return errors.New("down") }))
	health := r.GetOverallHealth(ctx)
	assert.Equal(t, HealthStatusUnhealthy, health.Status)

	body, err := json.Marshal(health)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"status":"unhealthy"`)
}

func TestBreakerHealthChecker(t *testing.T) {
	tests := []struct {
		state    string
		expected HealthStatus
	}{
		{"closed", HealthStatusHealthy},
		{"disabled", HealthStatusHealthy},
		{"half-open", HealthStatusDegraded},
		{"open", HealthStatusDegraded},
	}

	for _, tt := range tests {
		t.Run(tt.state, func(t *testing.T) {
			result := BreakerHealthChecker(func() string { return tt.state })(context.Background())
			assert.Equal(t, tt.expected, result.Status)
			assert.Equal(t, tt.state, result.Details["state"])
		})
	}
}

func TestRelayLagChecker(t *testing.T) {
	lag := 30.0
	check := RelayLagChecker(func() float64 { return lag }, time.Minute)

	assert.Equal(t, HealthStatusHealthy, check(context.Background()).Status)

	lag = 600
	result := check(context.Background())
	assert.Equal(t, HealthStatusDegraded, result.Status)
	assert.Equal(t, "event relay lagging 600s behind", result.Message)
}
