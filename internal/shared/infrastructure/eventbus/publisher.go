package eventbus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/felixgeelhaar/carevisit/internal/shared/domain"
	"github.com/google/uuid"
)

// Publisher sends serialized events to a broker.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload []byte) error
	Close() error
}

// Envelope is the wire form of a domain event.
type Envelope struct {
	EventID       uuid.UUID            `json:"event_id"`
	AggregateID   uuid.UUID            `json:"aggregate_id"`
	AggregateType string               `json:"aggregate_type"`
	RoutingKey    string               `json:"routing_key"`
	OccurredAt    time.Time            `json:"occurred_at"`
	Metadata      domain.EventMetadata `json:"metadata"`
	Payload       json.RawMessage      `json:"payload"`
}

// NewEnvelope wraps a domain event for publishing.
func NewEnvelope(event domain.DomainEvent) (Envelope, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventID:       event.EventID(),
		AggregateID:   event.AggregateID(),
		AggregateType: event.AggregateType(),
		RoutingKey:    event.RoutingKey(),
		OccurredAt:    event.OccurredAt(),
		Metadata:      event.Metadata(),
		Payload:       payload,
	}, nil
}
