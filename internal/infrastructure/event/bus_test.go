package event

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rental/backend/internal/domain/billing"
	"github.com/rental/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var eventTime = time.Date(2026, 2, 1, 0, 5, 0, 0, time.UTC)

func newTestBill(t *testing.T) *billing.BillingRecord {
	t.Helper()
	r, err := billing.NewBillingRecord(billing.NewBillingRecordParams{
		AccommodationID: uuid.New(),
		TenantID:        uuid.New(),
		LandlordID:      uuid.New(),
		BillingYear:     2026,
		BillingMonth:    2,
		DueDate:         time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC),
		RoomRent:        decimal.NewFromInt(2000000),
		InitialStatus:   billing.BillStatusPending,
	}, billing.DefaultRateTable(), eventTime)
	require.NoError(t, err)
	return r
}

func newCreatedEvent(t *testing.T) *billing.BillingRecordCreatedEvent {
	return billing.NewBillingRecordCreatedEvent(newTestBill(t), eventTime)
}

// testHandler implements EventHandler for testing
type testHandler struct {
	eventTypes []string
	handled    []shared.DomainEvent
	err        error
	panicWith  any
	mu         sync.Mutex
}

func newTestHandler(eventTypes ...string) *testHandler {
	return &testHandler{
		eventTypes: eventTypes,
		handled:    make([]shared.DomainEvent, 0),
	}
}

func (h *testHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handled = append(h.handled, event)
	if h.panicWith != nil {
		panic(h.panicWith)
	}
	return h.err
}

func (h *testHandler) EventTypes() []string {
	return h.eventTypes
}

func (h *testHandler) getHandled() []shared.DomainEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]shared.DomainEvent(nil), h.handled...)
}

func TestInMemoryEventBus_Publish(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())

	handler := newTestHandler(billing.EventTypeBillingRecordCreated)
	bus.Subscribe(handler)

	event := newCreatedEvent(t)
	err := bus.Publish(context.Background(), event)

	require.NoError(t, err)
	require.Len(t, handler.getHandled(), 1)
	assert.Equal(t, event, handler.getHandled()[0])
}

func TestInMemoryEventBus_Publish_RoutesByType(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())

	created := newTestHandler(billing.EventTypeBillingRecordCreated)
	overdue := newTestHandler(billing.EventTypeBillOverdue)
	wildcard := newTestHandler()
	bus.Subscribe(created)
	bus.Subscribe(overdue)
	bus.Subscribe(wildcard)

	bill := newTestBill(t)
	err := bus.Publish(context.Background(),
		billing.NewBillingRecordCreatedEvent(bill, eventTime),
		billing.NewBillReminderRecordedEvent(bill, eventTime),
	)

	require.NoError(t, err)
	assert.Len(t, created.getHandled(), 1)
	assert.Empty(t, overdue.getHandled())
	assert.Len(t, wildcard.getHandled(), 2)
}

func TestInMemoryEventBus_Publish_HandlerError(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())

	failing := newTestHandler(billing.EventTypeBillingRecordCreated)
	failing.err = errors.New("broker down")
	healthy := newTestHandler(billing.EventTypeBillingRecordCreated)
	bus.Subscribe(failing)
	bus.Subscribe(healthy)

	err := bus.Publish(context.Background(), newCreatedEvent(t))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
	assert.Len(t, failing.getHandled(), 1)
	assert.Len(t, healthy.getHandled(), 1, "remaining handlers still run")
}

func TestInMemoryEventBus_Publish_HandlerPanic(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())

	panicking := newTestHandler()
	panicking.panicWith = "boom"
	healthy := newTestHandler()
	bus.Subscribe(panicking)
	bus.Subscribe(healthy)

	err := bus.Publish(context.Background(), newCreatedEvent(t))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")
	assert.Len(t, healthy.getHandled(), 1)
}

func TestInMemoryEventBus_Unsubscribe(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())

	handler := newTestHandler(billing.EventTypeBillingRecordCreated)
	bus.Subscribe(handler)

	_ = bus.Publish(context.Background(), newCreatedEvent(t))
	assert.Len(t, handler.getHandled(), 1)

	bus.Unsubscribe(handler)

	_ = bus.Publish(context.Background(), newCreatedEvent(t))
	assert.Len(t, handler.getHandled(), 1) // Still 1, not 2
}

func TestInMemoryEventBus_StartStop(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	handler := newTestHandler()
	bus.Subscribe(handler)

	ctx := context.Background()
	require.NoError(t, bus.Start(ctx))
	require.NoError(t, bus.Publish(ctx, newCreatedEvent(t)))

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, bus.Stop(stopCtx))

	err := bus.Publish(ctx, newCreatedEvent(t))
	assert.ErrorIs(t, err, ErrBusStopped)
	assert.Len(t, handler.getHandled(), 1)

	require.NoError(t, bus.Start(ctx))
	assert.NoError(t, bus.Publish(ctx, newCreatedEvent(t)))
}
