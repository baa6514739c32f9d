package application

import (
	"github.com/felixgeelhaar/carevisit/internal/shared/domain"
)

type metadataSetter interface {
	SetMetadata(metadata domain.EventMetadata)
}

// ApplyEventMetadata stamps every event that accepts metadata.
func ApplyEventMetadata(events []domain.DomainEvent, metadata domain.EventMetadata) {
	for _, event := range events {
		if setter, ok := event.(metadataSetter); ok {
			setter.SetMetadata(metadata)
		}
	}
}
