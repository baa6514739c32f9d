package eventbus

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/carevisit/internal/shared/domain"
	"github.com/felixgeelhaar/carevisit/pkg/observability"
)

// Gateway implements application.NotificationGateway on top of a Publisher.
type Gateway struct {
	publisher Publisher
	timeout   time.Duration
	metrics   observability.Metrics
	logger    *slog.Logger
}

// NewGateway creates a gateway; timeout bounds each publish (0 means 5s).
func NewGateway(publisher Publisher, timeout time.Duration, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Gateway{publisher: publisher, timeout: timeout, metrics: observability.NoopMetrics{}, logger: logger}
}

// SetMetrics counts published and dropped events on m.
func (g *Gateway) SetMetrics(m observability.Metrics) {
	if m != nil {
		g.metrics = m
	}
}

// Notify publishes the event and logs any failure. It never blocks past the timeout.
func (g *Gateway) Notify(ctx context.Context, event domain.DomainEvent) {
	env, err := NewEnvelope(event)
	if err != nil {
		g.logger.Error("failed to encode event", "routing_key", event.RoutingKey(), "error", err)
		return
	}
	body, err := json.Marshal(env)
	if err != nil {
		g.logger.Error("failed to encode envelope", "routing_key", event.RoutingKey(), "error", err)
		return
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.timeout)
	defer cancel()

	if err := g.publisher.Publish(pubCtx, env.RoutingKey, body); err != nil {
		g.logger.Warn("notification not delivered",
			"routing_key", env.RoutingKey,
			"event_id", env.EventID,
			"error", err,
		)
		g.metrics.Counter(observability.MetricEventsPublished, 1, observability.T("outcome", "dropped"))
		return
	}
	g.metrics.Counter(observability.MetricEventsPublished, 1, observability.T("outcome", "delivered"))
}
