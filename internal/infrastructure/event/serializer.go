package event

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/rental/backend/internal/domain/shared"
)

// EventSerializer encodes domain events as JSON and decodes payloads read
// back from the billing topic into their concrete event types
type EventSerializer struct {
	factories map[string]func() shared.DomainEvent
}

// NewEventSerializer returns a serializer that knows every billing event
func NewEventSerializer() *EventSerializer {
	s := &EventSerializer{factories: make(map[string]func() shared.DomainEvent)}
	for eventType, factory := range billingEventFactories {
		s.Register(eventType, factory)
	}
	return s
}

// Register maps eventType to a factory returning an empty event to decode
// into. It is not safe to call concurrently with Deserialize.
func (s *EventSerializer) Register(eventType string, factory func() shared.DomainEvent) {
	s.factories[eventType] = factory
}

// Serialize encodes an event as JSON
func (s *EventSerializer) Serialize(event shared.DomainEvent) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event %s: %w", event.EventType(), err)
	}
	return data, nil
}

// Deserialize decodes data into the event type registered for eventType
func (s *EventSerializer) Deserialize(eventType string, data []byte) (shared.DomainEvent, error) {
	factory, ok := s.factories[eventType]
	if !ok {
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}
	event := factory()
	if err := json.Unmarshal(data, event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event %s: %w", eventType, err)
	}
	return event, nil
}

// RegisteredTypes returns the known event types in sorted order
func (s *EventSerializer) RegisteredTypes() []string {
	types := make([]string, 0, len(s.factories))
	for t := range s.factories {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}
