// Package outbox stores domain events in the database and relays them to the broker,
// so an event survives a broker outage and is delivered at least once.
package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Message is a stored event waiting to be relayed.
type Message struct {
	ID             int64
	EventID        uuid.UUID
	RoutingKey     string
	Payload        json.RawMessage
	CreatedAt      time.Time
	PublishedAt    *time.Time
	NextRetryAt    *time.Time
	RetryCount     int
	LastError      string
	DeadLetteredAt *time.Time
}

// NewMessage wraps a serialized event envelope. The event id is taken from the
// envelope so the same event is never stored twice; payloads without one get a fresh id.
func NewMessage(routingKey string, payload []byte, now time.Time) *Message {
	var envelope struct {
		EventID uuid.UUID `json:"event_id"`
	}
	id := uuid.Nil
	if err := json.Unmarshal(payload, &envelope); err == nil {
		id = envelope.EventID
	}
	if id == uuid.Nil {
		id = uuid.New()
	}

	return &Message{
		EventID:    id,
		RoutingKey: routingKey,
		Payload:    append(json.RawMessage(nil), payload...),
		CreatedAt:  now,
	}
}

// IsPublished returns true if the message has been published.
func (m *Message) IsPublished() bool {
	return m.PublishedAt != nil
}

// IsDead returns true if the message was given up on.
func (m *Message) IsDead() bool {
	return m.DeadLetteredAt != nil
}

// CanRetry returns true if the message can be retried.
func (m *Message) CanRetry(maxRetries int) bool {
	return m.RetryCount < maxRetries
}
