package outbox

import (
	"context"
	"time"
)

// Publisher implements eventbus.Publisher by writing to the outbox. A Processor
// relays the stored messages to the real broker.
type Publisher struct {
	repo Repository
	now  func() time.Time
}

// NewPublisher creates a publisher that stores every event in repo.
func NewPublisher(repo Repository) *Publisher {
	return &Publisher{repo: repo, now: time.Now}
}

// Publish stores the payload. The routing key travels with the message.
func (p *Publisher) Publish(ctx context.Context, routingKey string, payload []byte) error {
	return p.repo.Save(ctx, NewMessage(routingKey, payload, p.now()))
}

// Close is a no-op; the repository's connection is owned elsewhere.
func (p *Publisher) Close() error {
	return nil
}
