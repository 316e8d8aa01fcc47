package event

import (
	"context"

	"github.com/rental/backend/internal/domain/billing"
	"github.com/rental/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// LoggingHandler writes an audit line for every billing event
type LoggingHandler struct {
	logger *zap.Logger
}

// NewLoggingHandler creates a logging handler
func NewLoggingHandler(logger *zap.Logger) *LoggingHandler {
	return &LoggingHandler{logger: logger.Named("billing-events")}
}

// Handle logs the event with the fields relevant to its type
func (h *LoggingHandler) Handle(_ context.Context, event shared.DomainEvent) error {
	fields := []zap.Field{
		zap.String("event_type", event.EventType()),
		zap.String("event_id", event.EventID().String()),
		zap.String("bill_id", event.AggregateID().String()),
		zap.Time("occurred_at", event.OccurredAt()),
	}

	switch e := event.(type) {
	case *billing.BillingRecordCreatedEvent:
		fields = append(fields,
			zap.String("billing_period", e.BillingPeriod),
			zap.String("accommodation_id", e.AccommodationID.String()),
			zap.String("grand_total", e.GrandTotal.StringFixed(2)),
			zap.Bool("auto_generated", e.IsAutoGenerated),
		)
	case *billing.BillPaymentAppliedEvent:
		fields = append(fields,
			zap.String("billing_period", e.BillingPeriod),
			zap.String("amount", e.Amount.StringFixed(2)),
			zap.String("reference", e.Reference),
			zap.String("remaining_balance", e.RemainingBalance.StringFixed(2)),
			zap.String("status", string(e.Status)),
		)
	case *billing.BillPaidEvent:
		fields = append(fields, zap.String("billing_period", e.BillingPeriod))
	case *billing.BillOverdueEvent:
		fields = append(fields,
			zap.String("billing_period", e.BillingPeriod),
			zap.Time("due_date", e.DueDate),
			zap.String("remaining_balance", e.RemainingBalance.StringFixed(2)),
		)
	case *billing.BillCancelledEvent:
		fields = append(fields,
			zap.String("billing_period", e.BillingPeriod),
			zap.String("reason", e.Reason),
		)
	case *billing.BillReminderRecordedEvent:
		fields = append(fields,
			zap.String("billing_period", e.BillingPeriod),
			zap.Int("reminder_count", e.ReminderCount),
		)
	}

	h.logger.Info("billing event", fields...)
	return nil
}

// EventTypes subscribes the handler to the billing event types
func (h *LoggingHandler) EventTypes() []string {
	return BillingEventTypes()
}

var _ shared.EventHandler = (*LoggingHandler)(nil)
