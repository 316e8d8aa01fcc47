// Package testutil holds helpers shared by the integration suites.
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rental/backend/internal/domain/shared"
)

// EventRecorder is a bus subscriber that keeps every event it is given.
type EventRecorder struct {
	mu     sync.Mutex
	filter []string
	events []shared.DomainEvent
	fail   error
}

// NewEventRecorder subscribes to types, or to every event when none are given.
func NewEventRecorder(types ...string) *EventRecorder {
	return &EventRecorder{filter: types}
}

func (r *EventRecorder) EventTypes() []string { return r.filter }

func (r *EventRecorder) Handle(_ context.Context, e shared.DomainEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return r.fail
}

// FailWith makes later Handle calls return err after recording the event.
func (r *EventRecorder) FailWith(err error) {
	r.mu.Lock()
	r.fail = err
	r.mu.Unlock()
}

// Types lists the recorded event types in arrival order.
func (r *EventRecorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.EventType())
	}
	return out
}

// Count returns how many events were recorded.
func (r *EventRecorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// AwaitCount polls until at least n events are recorded or timeout passes.
func (r *EventRecorder) AwaitCount(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for r.Count() < n {
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(5 * time.Millisecond)
	}
	return true
}

// BillEvent is a bare event on a random billing record.
func BillEvent(eventType string) shared.DomainEvent {
	h := shared.NewEventHeader(eventType, "BillingRecord", uuid.New(), time.Now().UTC())
	return &h
}
