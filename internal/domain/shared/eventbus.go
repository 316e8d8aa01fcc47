package shared

import "context"

// EventHandler reacts to domain events after they are published
type EventHandler interface {
	Handle(ctx context.Context, event DomainEvent) error
	// EventTypes lists the event types the handler wants. An empty list
	// subscribes to every event.
	EventTypes() []string
}

// EventPublisher publishes the events an aggregate raised once it is saved
type EventPublisher interface {
	Publish(ctx context.Context, events ...DomainEvent) error
}
