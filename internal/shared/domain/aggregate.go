package domain

import (
	"time"

	"github.com/google/uuid"
)

// AggregateRoot is a domain entity that is the root of an aggregate.
type AggregateRoot interface {
	Entity
	DomainEvents() []DomainEvent
	ClearDomainEvents()
	AddDomainEvent(event DomainEvent)
	Version() int
}

// BaseAggregateRoot provides event recording and versioning for aggregates.
type BaseAggregateRoot struct {
	BaseEntity
	domainEvents []DomainEvent
	version      int
}

// NewBaseAggregateRoot creates an aggregate root with a random ID.
func NewBaseAggregateRoot(now time.Time) BaseAggregateRoot {
	return BaseAggregateRoot{BaseEntity: NewBaseEntity(now)}
}

// NewBaseAggregateRootWithID creates an aggregate root with a specific ID.
func NewBaseAggregateRootWithID(id uuid.UUID, now time.Time) BaseAggregateRoot {
	return BaseAggregateRoot{BaseEntity: NewBaseEntityWithID(id, now)}
}

// RehydrateBaseAggregateRoot recreates an aggregate from persisted state.
func RehydrateBaseAggregateRoot(entity BaseEntity, version int) BaseAggregateRoot {
	return BaseAggregateRoot{
		BaseEntity: entity,
		version:    version,
	}
}

// DomainEvents returns all uncommitted domain events.
func (a *BaseAggregateRoot) DomainEvents() []DomainEvent {
	return a.domainEvents
}

// ClearDomainEvents removes all uncommitted domain events.
func (a *BaseAggregateRoot) ClearDomainEvents() {
	a.domainEvents = nil
}

// AddDomainEvent records an event and bumps the version.
func (a *BaseAggregateRoot) AddDomainEvent(event DomainEvent) {
	a.domainEvents = append(a.domainEvents, event)
	a.version++
}

// Version returns the aggregate version including uncommitted events.
func (a *BaseAggregateRoot) Version() int {
	return a.version
}

// StoredVersion returns the version the aggregate had before its uncommitted events.
func (a *BaseAggregateRoot) StoredVersion() int {
	return a.version - len(a.domainEvents)
}
