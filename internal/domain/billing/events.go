package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/rental/backend/internal/domain/shared"
	"github.com/rental/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// Event type names
const (
	EventTypeBillingRecordCreated = "BillingRecordCreated"
	EventTypeBillPaymentApplied   = "BillPaymentApplied"
	EventTypeBillPaid             = "BillPaid"
	EventTypeBillOverdue          = "BillOverdue"
	EventTypeBillCancelled        = "BillCancelled"
	EventTypeBillReminderRecorded = "BillReminderRecorded"
)

// BillingRecordCreatedEvent is raised when a new bill is created
type BillingRecordCreatedEvent struct {
	shared.EventHeader
	BillID          uuid.UUID       `json:"bill_id"`
	AccommodationID uuid.UUID       `json:"accommodation_id"`
	TenantID        uuid.UUID       `json:"tenant_id"`
	LandlordID      uuid.UUID       `json:"landlord_id"`
	BillingPeriod   string          `json:"billing_period"`
	DueDate         time.Time       `json:"due_date"`
	GrandTotal      decimal.Decimal `json:"grand_total"`
	Status          BillStatus      `json:"status"`
	IsAutoGenerated bool            `json:"is_auto_generated"`
}

// EventType returns the event type name
func (e *BillingRecordCreatedEvent) EventType() string {
	return EventTypeBillingRecordCreated
}

// NewBillingRecordCreatedEvent creates a new BillingRecordCreatedEvent
func NewBillingRecordCreatedEvent(r *BillingRecord, now time.Time) *BillingRecordCreatedEvent {
	return &BillingRecordCreatedEvent{
		EventHeader:     shared.NewEventHeader(EventTypeBillingRecordCreated, AggregateTypeBillingRecord, r.ID, now),
		BillID:          r.ID,
		AccommodationID: r.AccommodationID,
		TenantID:        r.TenantID,
		LandlordID:      r.LandlordID,
		BillingPeriod:   r.BillingPeriod,
		DueDate:         r.DueDate,
		GrandTotal:      r.GrandTotal,
		Status:          r.Status,
		IsAutoGenerated: r.IsAutoGenerated,
	}
}

// BillPaymentAppliedEvent is raised for every payment applied to a bill
type BillPaymentAppliedEvent struct {
	shared.EventHeader
	BillID           uuid.UUID       `json:"bill_id"`
	TenantID         uuid.UUID       `json:"tenant_id"`
	BillingPeriod    string          `json:"billing_period"`
	Amount           decimal.Decimal `json:"amount"`
	Reference        string          `json:"reference,omitempty"`
	PaidAmount       decimal.Decimal `json:"paid_amount"`
	RemainingBalance decimal.Decimal `json:"remaining_balance"`
	Status           BillStatus      `json:"status"`
}

// EventType returns the event type name
func (e *BillPaymentAppliedEvent) EventType() string {
	return EventTypeBillPaymentApplied
}

// NewBillPaymentAppliedEvent creates a new BillPaymentAppliedEvent
func NewBillPaymentAppliedEvent(r *BillingRecord, amount valueobject.Money, reference string, now time.Time) *BillPaymentAppliedEvent {
	return &BillPaymentAppliedEvent{
		EventHeader:      shared.NewEventHeader(EventTypeBillPaymentApplied, AggregateTypeBillingRecord, r.ID, now),
		BillID:           r.ID,
		TenantID:         r.TenantID,
		BillingPeriod:    r.BillingPeriod,
		Amount:           amount.Amount(),
		Reference:        reference,
		PaidAmount:       r.PaidAmount,
		RemainingBalance: r.RemainingBalance,
		Status:           r.Status,
	}
}

// BillPaidEvent is raised when a bill transitions into paid
type BillPaidEvent struct {
	shared.EventHeader
	BillID           uuid.UUID       `json:"bill_id"`
	TenantID         uuid.UUID       `json:"tenant_id"`
	LandlordID       uuid.UUID       `json:"landlord_id"`
	BillingPeriod    string          `json:"billing_period"`
	GrandTotal       decimal.Decimal `json:"grand_total"`
	PaidAmount       decimal.Decimal `json:"paid_amount"`
	RemainingBalance decimal.Decimal `json:"remaining_balance"` // Negative means credit
	PaidAt           time.Time       `json:"paid_at"`
}

// EventType returns the event type name
func (e *BillPaidEvent) EventType() string {
	return EventTypeBillPaid
}

// NewBillPaidEvent creates a new BillPaidEvent
func NewBillPaidEvent(r *BillingRecord, now time.Time) *BillPaidEvent {
	paidAt := now
	if r.PaidAt != nil {
		paidAt = *r.PaidAt
	}
	return &BillPaidEvent{
		EventHeader:      shared.NewEventHeader(EventTypeBillPaid, AggregateTypeBillingRecord, r.ID, now),
		BillID:           r.ID,
		TenantID:         r.TenantID,
		LandlordID:       r.LandlordID,
		BillingPeriod:    r.BillingPeriod,
		GrandTotal:       r.GrandTotal,
		PaidAmount:       r.PaidAmount,
		RemainingBalance: r.RemainingBalance,
		PaidAt:           paidAt,
	}
}

// BillOverdueEvent is raised when a bill is marked overdue
type BillOverdueEvent struct {
	shared.EventHeader
	BillID           uuid.UUID       `json:"bill_id"`
	TenantID         uuid.UUID       `json:"tenant_id"`
	LandlordID       uuid.UUID       `json:"landlord_id"`
	BillingPeriod    string          `json:"billing_period"`
	DueDate          time.Time       `json:"due_date"`
	RemainingBalance decimal.Decimal `json:"remaining_balance"`
}

// EventType returns the event type name
func (e *BillOverdueEvent) EventType() string {
	return EventTypeBillOverdue
}

// NewBillOverdueEvent creates a new BillOverdueEvent
func NewBillOverdueEvent(r *BillingRecord, now time.Time) *BillOverdueEvent {
	return &BillOverdueEvent{
		EventHeader:      shared.NewEventHeader(EventTypeBillOverdue, AggregateTypeBillingRecord, r.ID, now),
		BillID:           r.ID,
		TenantID:         r.TenantID,
		LandlordID:       r.LandlordID,
		BillingPeriod:    r.BillingPeriod,
		DueDate:          r.DueDate,
		RemainingBalance: r.RemainingBalance,
	}
}

// BillCancelledEvent is raised when a bill is cancelled
type BillCancelledEvent struct {
	shared.EventHeader
	BillID        uuid.UUID       `json:"bill_id"`
	TenantID      uuid.UUID       `json:"tenant_id"`
	BillingPeriod string          `json:"billing_period"`
	PaidAmount    decimal.Decimal `json:"paid_amount"`
	Reason        string          `json:"reason"`
}

// EventType returns the event type name
func (e *BillCancelledEvent) EventType() string {
	return EventTypeBillCancelled
}

// NewBillCancelledEvent creates a new BillCancelledEvent
func NewBillCancelledEvent(r *BillingRecord, now time.Time) *BillCancelledEvent {
	return &BillCancelledEvent{
		EventHeader:   shared.NewEventHeader(EventTypeBillCancelled, AggregateTypeBillingRecord, r.ID, now),
		BillID:        r.ID,
		TenantID:      r.TenantID,
		BillingPeriod: r.BillingPeriod,
		PaidAmount:    r.PaidAmount,
		Reason:        r.CancelReason,
	}
}

// BillReminderRecordedEvent is raised when a reminder dispatch is recorded
type BillReminderRecordedEvent struct {
	shared.EventHeader
	BillID           uuid.UUID       `json:"bill_id"`
	TenantID         uuid.UUID       `json:"tenant_id"`
	BillingPeriod    string          `json:"billing_period"`
	ReminderCount    int             `json:"reminder_count"`
	RemainingBalance decimal.Decimal `json:"remaining_balance"`
}

// EventType returns the event type name
func (e *BillReminderRecordedEvent) EventType() string {
	return EventTypeBillReminderRecorded
}

// NewBillReminderRecordedEvent creates a new BillReminderRecordedEvent
func NewBillReminderRecordedEvent(r *BillingRecord, now time.Time) *BillReminderRecordedEvent {
	return &BillReminderRecordedEvent{
		EventHeader:      shared.NewEventHeader(EventTypeBillReminderRecorded, AggregateTypeBillingRecord, r.ID, now),
		BillID:           r.ID,
		TenantID:         r.TenantID,
		BillingPeriod:    r.BillingPeriod,
		ReminderCount:    r.ReminderCount,
		RemainingBalance: r.RemainingBalance,
	}
}
