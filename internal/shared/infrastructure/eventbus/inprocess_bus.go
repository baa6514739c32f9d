package eventbus

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
)

// Handler reacts to an event delivered by the in-process bus.
type Handler func(ctx context.Context, env Envelope) error

type subscription struct {
	pattern string
	handler Handler
}

// InProcessEventBus delivers events synchronously to local subscribers.
// It stands in for RabbitMQ in local mode and in tests.
type InProcessEventBus struct {
	mu     sync.RWMutex
	subs   []subscription
	logger *slog.Logger
}

// NewInProcessEventBus creates an empty bus.
func NewInProcessEventBus(logger *slog.Logger) *InProcessEventBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &InProcessEventBus{logger: logger}
}

// Subscribe registers handler for routing keys matching pattern.
// Patterns use AMQP topic syntax: '*' matches one word and '#' matches zero or more.
func (b *InProcessEventBus) Subscribe(pattern string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, subscription{pattern: pattern, handler: handler})
}

// Publish decodes the envelope and dispatches it. Handler failures are logged, not returned.
func (b *InProcessEventBus) Publish(ctx context.Context, routingKey string, payload []byte) error {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		b.logger.Error("failed to decode event", "routing_key", routingKey, "error", err)
		return nil
	}
	if env.RoutingKey == "" {
		env.RoutingKey = routingKey
	}

	b.mu.RLock()
	subs := append([]subscription(nil), b.subs...)
	b.mu.RUnlock()

	for _, sub := range subs {
		if !TopicMatches(sub.pattern, env.RoutingKey) {
			continue
		}
		if err := sub.handler(ctx, env); err != nil {
			b.logger.Error("event handler failed",
				"routing_key", env.RoutingKey,
				"event_id", env.EventID,
				"error", err,
			)
		}
	}
	return nil
}

func (b *InProcessEventBus) Close() error { return nil }

// TopicMatches applies AMQP topic matching rules.
func TopicMatches(pattern, key string) bool {
	return matchWords(strings.Split(pattern, "."), strings.Split(key, "."))
}

func matchWords(pattern, key []string) bool {
	if len(pattern) == 0 {
		return len(key) == 0
	}
	switch pattern[0] {
	case "#":
		for i := 0; i <= len(key); i++ {
			if matchWords(pattern[1:], key[i:]) {
				return true
			}
		}
		return false
	case "*":
		return len(key) > 0 && matchWords(pattern[1:], key[1:])
	default:
		return len(key) > 0 && pattern[0] == key[0] && matchWords(pattern[1:], key[1:])
	}
}
