package event

import (
	"github.com/rental/backend/internal/domain/billing"
	"github.com/rental/backend/internal/domain/shared"
)

var billingEventFactories = map[string]func() shared.DomainEvent{
	billing.EventTypeBillingRecordCreated: func() shared.DomainEvent { return &billing.BillingRecordCreatedEvent{} },
	billing.EventTypeBillPaymentApplied:   func() shared.DomainEvent { return &billing.BillPaymentAppliedEvent{} },
	billing.EventTypeBillPaid:             func() shared.DomainEvent { return &billing.BillPaidEvent{} },
	billing.EventTypeBillOverdue:          func() shared.DomainEvent { return &billing.BillOverdueEvent{} },
	billing.EventTypeBillCancelled:        func() shared.DomainEvent { return &billing.BillCancelledEvent{} },
	billing.EventTypeBillReminderRecorded: func() shared.DomainEvent { return &billing.BillReminderRecordedEvent{} },
}

// BillingEventTypes lists the event types raised by billing records
func BillingEventTypes() []string {
	return []string{
		billing.EventTypeBillingRecordCreated,
		billing.EventTypeBillPaymentApplied,
		billing.EventTypeBillPaid,
		billing.EventTypeBillOverdue,
		billing.EventTypeBillCancelled,
		billing.EventTypeBillReminderRecorded,
	}
}
