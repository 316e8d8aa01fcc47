package shared

import (
	"time"

	"github.com/google/uuid"
)

// DomainEvent is a fact recorded by an aggregate and published after the
// change that produced it is stored.
type DomainEvent interface {
	EventID() uuid.UUID
	EventType() string
	OccurredAt() time.Time
	AggregateID() uuid.UUID
	AggregateType() string
}

// EventHeader is embedded by concrete events. Its JSON form is the envelope
// shared by every topic message.
type EventHeader struct {
	ID          uuid.UUID `json:"id"`
	Type        string    `json:"type"`
	At          time.Time `json:"timestamp"`
	Subject     uuid.UUID `json:"aggregate_id"`
	SubjectKind string    `json:"aggregate_type"`
}

// NewEventHeader stamps a fresh event ID for an event on the given aggregate.
func NewEventHeader(eventType, aggregateType string, aggregateID uuid.UUID, at time.Time) EventHeader {
	return EventHeader{ID: uuid.New(), Type: eventType, At: at, Subject: aggregateID, SubjectKind: aggregateType}
}

func (h *EventHeader) EventID() uuid.UUID     { return h.ID }
func (h *EventHeader) EventType() string      { return h.Type }
func (h *EventHeader) OccurredAt() time.Time  { return h.At }
func (h *EventHeader) AggregateID() uuid.UUID { return h.Subject }
func (h *EventHeader) AggregateType() string  { return h.SubjectKind }
