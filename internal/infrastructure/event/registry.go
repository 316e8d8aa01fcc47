package event

import (
	"slices"
	"sync"

	"github.com/rental/backend/internal/domain/shared"
)

// subscription is one handler and the event types it listens to. A nil type
// set matches every event.
type subscription struct {
	handler shared.EventHandler
	types   map[string]struct{}
}

func (s subscription) matches(eventType string) bool {
	if s.types == nil {
		return true
	}
	_, ok := s.types[eventType]
	return ok
}

// routeTable keeps subscriptions in registration order. Delivery follows that
// order whether a handler is typed or a wildcard.
type routeTable struct {
	mu   sync.RWMutex
	subs []subscription
}

func newRouteTable() *routeTable {
	return &routeTable{}
}

// add subscribes h to types, or to everything when types is empty. Adding a
// handler again widens its existing subscription in place.
func (t *routeTable) add(h shared.EventHandler, types ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	i := slices.IndexFunc(t.subs, func(s subscription) bool { return s.handler == h })
	if i < 0 {
		t.subs = append(t.subs, subscription{handler: h, types: typeSet(types)})
		return
	}
	sub := &t.subs[i]
	switch {
	case sub.types == nil:
	case len(types) == 0:
		sub.types = nil
	default:
		for _, et := range types {
			sub.types[et] = struct{}{}
		}
	}
}

func (t *routeTable) remove(h shared.EventHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subs = slices.DeleteFunc(t.subs, func(s subscription) bool { return s.handler == h })
}

// match returns the handlers subscribed to eventType.
func (t *routeTable) match(eventType string) []shared.EventHandler {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []shared.EventHandler
	for _, s := range t.subs {
		if s.matches(eventType) {
			out = append(out, s.handler)
		}
	}
	return out
}

func (t *routeTable) size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subs)
}

func typeSet(types []string) map[string]struct{} {
	if len(types) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(types))
	for _, et := range types {
		set[et] = struct{}{}
	}
	return set
}
