package application

import (
	"context"

	"github.com/felixgeelhaar/carevisit/internal/shared/domain"
)

// NotificationGateway delivers domain events to interested parties.
// Notify is fire-and-forget: implementations log delivery failures instead of returning them.
type NotificationGateway interface {
	Notify(ctx context.Context, event domain.DomainEvent)
}

// NotifyAll forwards every event to the gateway. A nil gateway drops them.
func NotifyAll(ctx context.Context, gateway NotificationGateway, events []domain.DomainEvent) {
	if gateway == nil {
		return
	}
	for _, event := range events {
		gateway.Notify(ctx, event)
	}
}
