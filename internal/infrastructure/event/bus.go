package event

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rental/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// ErrBusStopped is returned by Publish after Stop.
var ErrBusStopped = errors.New("event bus stopped")

var _ shared.EventPublisher = (*InMemoryEventBus)(nil)

// InMemoryEventBus delivers events to subscribers in the publishing goroutine.
type InMemoryEventBus struct {
	routes  *routeTable
	logger  *zap.Logger
	closed  atomic.Bool
	pending sync.WaitGroup
}

func NewInMemoryEventBus(logger *zap.Logger) *InMemoryEventBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InMemoryEventBus{routes: newRouteTable(), logger: logger}
}

// Publish hands each event to every subscriber that matches it. Delivery
// continues past a failing subscriber and the failures come back joined.
func (b *InMemoryEventBus) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	if b.closed.Load() {
		return ErrBusStopped
	}
	b.pending.Add(1)
	defer b.pending.Done()

	var errs []error
	for _, ev := range events {
		for _, h := range b.routes.match(ev.EventType()) {
			err := b.deliver(ctx, h, ev)
			if err == nil {
				continue
			}
			b.logger.Error("event handler failed",
				zap.String("event_type", ev.EventType()),
				zap.Stringer("event_id", ev.EventID()),
				zap.Stringer("aggregate_id", ev.AggregateID()),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("%s: %w", ev.EventType(), err))
		}
	}
	return errors.Join(errs...)
}

// Subscribe registers h for eventTypes, falling back to h.EventTypes().
func (b *InMemoryEventBus) Subscribe(h shared.EventHandler, eventTypes ...string) {
	if len(eventTypes) == 0 {
		eventTypes = h.EventTypes()
	}
	b.routes.add(h, eventTypes...)
	b.logger.Debug("event handler subscribed", zap.Strings("event_types", eventTypes))
}

func (b *InMemoryEventBus) Unsubscribe(h shared.EventHandler) {
	b.routes.remove(h)
}

// Start reopens a stopped bus.
func (b *InMemoryEventBus) Start(context.Context) error {
	b.closed.Store(false)
	b.logger.Info("event bus started", zap.Int("subscribers", b.routes.size()))
	return nil
}

// Stop refuses further publishes, then waits for running deliveries until
// ctx is done.
func (b *InMemoryEventBus) Stop(ctx context.Context) error {
	b.closed.Store(true)

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		b.pending.Wait()
	}()

	select {
	case <-drained:
		b.logger.Info("event bus stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event bus stop: %w", ctx.Err())
	}
}

func (b *InMemoryEventBus) deliver(ctx context.Context, h shared.EventHandler, ev shared.DomainEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked", zap.String("event_type", ev.EventType()), zap.Any("panic", r))
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return h.Handle(ctx, ev)
}
