package billing

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rental/backend/internal/domain/shared"
	"github.com/rental/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// AggregateTypeBillingRecord is the aggregate type name used in events
const AggregateTypeBillingRecord = "BillingRecord"

// BillingRecord is the monthly bill of one accommodation.
// Exactly one record exists per (AccommodationID, BillingPeriod).
//
// Derived fields (usage, amounts, subtotal, totals, remaining balance, status
// and PaidAt) are never set by callers; every operation that changes an input
// recomputes them through ComputeTotals and DeriveStatus. An operation that
// fails leaves the record untouched.
type BillingRecord struct {
	shared.BaseAggregateRoot

	// Identity
	AccommodationID uuid.UUID  `json:"accommodation_id"`
	TenantID        uuid.UUID  `json:"tenant_id"` // The renter being billed
	LandlordID      uuid.UUID  `json:"landlord_id"`
	PropertyID      *uuid.UUID `json:"property_id,omitempty"`
	ContractID      *uuid.UUID `json:"contract_id,omitempty"`

	// Period
	BillingMonth  int       `json:"billing_month"`
	BillingYear   int       `json:"billing_year"`
	BillingPeriod string    `json:"billing_period"` // YYYY-MM, always MakePeriod(BillingYear, BillingMonth)
	DueDate       time.Time `json:"due_date"`

	RoomRent decimal.Decimal `json:"room_rent"`

	// Electricity
	ElectricityPreviousReading decimal.Decimal     `json:"electricity_previous_reading"`
	ElectricityCurrentReading  decimal.Decimal     `json:"electricity_current_reading"`
	ElectricityPricePerUnit    decimal.NullDecimal `json:"electricity_price_per_unit"`
	ElectricityUsage           decimal.Decimal     `json:"electricity_usage"`
	ElectricityAmount          decimal.Decimal     `json:"electricity_amount"`

	// Water
	WaterPreviousReading decimal.Decimal     `json:"water_previous_reading"`
	WaterCurrentReading  decimal.Decimal     `json:"water_current_reading"`
	WaterPricePerUnit    decimal.NullDecimal `json:"water_price_per_unit"`
	WaterUsage           decimal.Decimal     `json:"water_usage"`
	WaterAmount          decimal.Decimal     `json:"water_amount"`

	// Flat fees
	InternetFee          decimal.Decimal `json:"internet_fee"`
	GarbageFee           decimal.Decimal `json:"garbage_fee"`
	ParkingFee           decimal.Decimal `json:"parking_fee"`
	OtherFees            decimal.Decimal `json:"other_fees"`
	OtherFeesDescription string          `json:"other_fees_description,omitempty"`

	Discount        decimal.Decimal `json:"discount"`
	DiscountReason  string          `json:"discount_reason,omitempty"`
	PreviousBalance decimal.Decimal `json:"previous_balance"` // Negative means credit

	// Derived totals
	Subtotal         decimal.Decimal `json:"subtotal"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	GrandTotal       decimal.Decimal `json:"grand_total"`
	RemainingBalance decimal.Decimal `json:"remaining_balance"`

	// Payment tracking
	PaidAmount decimal.Decimal `json:"paid_amount"` // Never decreases
	Status     BillStatus      `json:"status"`
	PaidAt     *time.Time      `json:"paid_at,omitempty"`
	Payments   PaymentRecords  `json:"payments"`

	// Reminder bookkeeping
	NotificationSent   bool       `json:"notification_sent"`
	NotificationSentAt *time.Time `json:"notification_sent_at,omitempty"`
	ReminderCount      int        `json:"reminder_count"`
	LastReminderAt     *time.Time `json:"last_reminder_at,omitempty"`

	Notes           string `json:"notes,omitempty"`
	IsAutoGenerated bool   `json:"is_auto_generated"`

	OverdueAt    *time.Time `json:"overdue_at,omitempty"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`
	CancelReason string     `json:"cancel_reason,omitempty"`
}

// NewBillingRecordParams holds the raw inputs of a new bill
type NewBillingRecordParams struct {
	AccommodationID      uuid.UUID
	TenantID             uuid.UUID
	LandlordID           uuid.UUID
	PropertyID           *uuid.UUID
	ContractID           *uuid.UUID
	BillingYear          int
	BillingMonth         int
	DueDate              time.Time
	RoomRent             decimal.Decimal
	Electricity          UtilityReading
	Water                UtilityReading
	Fees                 FlatFees
	OtherFeesDescription string
	Discount             decimal.Decimal
	DiscountReason       string
	PreviousBalance      decimal.Decimal
	InitialStatus        BillStatus // draft (default) or pending
	Notes                string
	IsAutoGenerated      bool
}

// Charges holds the rent and flat fee inputs of a bill
type Charges struct {
	RoomRent             decimal.Decimal
	Fees                 FlatFees
	OtherFeesDescription string
}

// NewBillingRecord creates a bill, snapshots its unit prices from rates when
// the caller gives none, and computes its totals
func NewBillingRecord(params NewBillingRecordParams, rates RateTable, now time.Time) (*BillingRecord, error) {
	if params.AccommodationID == uuid.Nil {
		return nil, shared.NewValidationError("INVALID_ACCOMMODATION", "Accommodation ID cannot be empty")
	}
	if params.TenantID == uuid.Nil {
		return nil, shared.NewValidationError("INVALID_TENANT", "Tenant ID cannot be empty")
	}
	if params.LandlordID == uuid.Nil {
		return nil, shared.NewValidationError("INVALID_LANDLORD", "Landlord ID cannot be empty")
	}
	period, err := MakePeriod(params.BillingYear, params.BillingMonth)
	if err != nil {
		return nil, err
	}
	if params.DueDate.IsZero() {
		return nil, shared.NewValidationError("INVALID_DUE_DATE", "Due date is required")
	}
	status := params.InitialStatus
	if status == "" {
		status = BillStatusDraft
	}
	if status != BillStatusDraft && status != BillStatusPending {
		return nil, shared.NewValidationError("INVALID_INITIAL_STATUS", fmt.Sprintf("A new bill must start as draft or pending, got %q", status))
	}
	if err := rates.Validate(); err != nil {
		return nil, err
	}

	r := &BillingRecord{
		BaseAggregateRoot:          shared.NewBaseAggregateRoot(now),
		AccommodationID:            params.AccommodationID,
		TenantID:                   params.TenantID,
		LandlordID:                 params.LandlordID,
		PropertyID:                 params.PropertyID,
		ContractID:                 params.ContractID,
		BillingMonth:               params.BillingMonth,
		BillingYear:                params.BillingYear,
		BillingPeriod:              period,
		DueDate:                    params.DueDate,
		RoomRent:                   round(params.RoomRent),
		ElectricityPreviousReading: round(params.Electricity.PreviousReading),
		ElectricityCurrentReading:  round(params.Electricity.CurrentReading),
		ElectricityPricePerUnit:    snapshotPrice(params.Electricity.PricePerUnit, rates.ElectricityPerUnit),
		WaterPreviousReading:       round(params.Water.PreviousReading),
		WaterCurrentReading:        round(params.Water.CurrentReading),
		WaterPricePerUnit:          snapshotPrice(params.Water.PricePerUnit, rates.WaterPerUnit),
		InternetFee:                round(params.Fees.Internet),
		GarbageFee:                 round(params.Fees.Garbage),
		ParkingFee:                 round(params.Fees.Parking),
		OtherFees:                  round(params.Fees.Other),
		OtherFeesDescription:       params.OtherFeesDescription,
		Discount:                   round(params.Discount),
		DiscountReason:             params.DiscountReason,
		PreviousBalance:            round(params.PreviousBalance),
		PaidAmount:                 decimal.Zero,
		Status:                     status,
		Payments:                   PaymentRecords{},
		Notes:                      params.Notes,
		IsAutoGenerated:            params.IsAutoGenerated,
	}

	totals, next, err := r.evaluate(r.Inputs(), rates)
	if err != nil {
		return nil, err
	}
	settled := r.applyDerived(totals, next, now)

	r.AddDomainEvent(NewBillingRecordCreatedEvent(r, now))
	if settled {
		r.AddDomainEvent(NewBillPaidEvent(r, now))
	}

	return r, nil
}

func snapshotPrice(price decimal.NullDecimal, rate decimal.Decimal) decimal.NullDecimal {
	return decimal.NewNullDecimal(round(resolvePrice(price, rate)))
}

// Key returns the uniqueness key of the bill
func (r *BillingRecord) Key() BillingKey {
	return UniquenessKey(r.AccommodationID, r.BillingPeriod)
}

// Inputs returns the raw values the totals are computed from
func (r *BillingRecord) Inputs() TotalsInput {
	return TotalsInput{
		RoomRent: r.RoomRent,
		Electricity: UtilityReading{
			PreviousReading: r.ElectricityPreviousReading,
			CurrentReading:  r.ElectricityCurrentReading,
			PricePerUnit:    r.ElectricityPricePerUnit,
		},
		Water: UtilityReading{
			PreviousReading: r.WaterPreviousReading,
			CurrentReading:  r.WaterCurrentReading,
			PricePerUnit:    r.WaterPricePerUnit,
		},
		Fees: FlatFees{
			Internet: r.InternetFee,
			Garbage:  r.GarbageFee,
			Parking:  r.ParkingFee,
			Other:    r.OtherFees,
		},
		Discount:        r.Discount,
		PreviousBalance: r.PreviousBalance,
		PaidAmount:      r.PaidAmount,
	}
}

// CalculateTotals recomputes every derived field from the current inputs.
// Calling it again without input changes yields the same result. Only the
// derived fields are written; PaidAt is set on the first transition into paid.
func (r *BillingRecord) CalculateTotals(rates RateTable, now time.Time) error {
	if err := r.ensureNotCancelled("recalculate"); err != nil {
		return err
	}

	totals, next, err := r.evaluate(r.Inputs(), rates)
	if err != nil {
		return err
	}
	if r.applyDerived(totals, next, now) {
		r.AddDomainEvent(NewBillPaidEvent(r, now))
	}
	return nil
}

// ApplyPayment adds a payment to the paid amount and recomputes the totals.
// Overpayment is allowed and leaves a negative remaining balance (credit).
func (r *BillingRecord) ApplyPayment(amount valueobject.Money, reference string, rates RateTable, now time.Time) error {
	if !r.Status.CanApplyPayment() {
		return r.ensureNotCancelled("apply payment to")
	}
	if !amount.IsPositive() {
		return shared.NewValidationError("INVALID_PAYMENT_AMOUNT", "Payment amount must be positive")
	}
	if r.Payments.HasReference(reference) {
		return shared.NewConflictError("DUPLICATE_PAYMENT", fmt.Sprintf("Payment %s was already applied to this bill", reference))
	}

	in := r.Inputs()
	in.PaidAmount = round(r.PaidAmount.Add(amount.Amount()))
	totals, next, err := r.evaluate(in, rates)
	if err != nil {
		return err
	}

	r.PaidAmount = in.PaidAmount
	r.Payments = append(r.Payments, PaymentRecord{
		ID:        uuid.New(),
		Amount:    amount.Amount(),
		Reference: reference,
		PaidAt:    now,
	})
	becamePaid := r.applyDerived(totals, next, now)
	r.Touch(now)

	r.AddDomainEvent(NewBillPaymentAppliedEvent(r, amount, reference, now))
	if becamePaid {
		r.AddDomainEvent(NewBillPaidEvent(r, now))
	}

	return nil
}

// RecordReminderSent records that one payment reminder was dispatched.
// Totals and status are not affected.
func (r *BillingRecord) RecordReminderSent(now time.Time) error {
	if err := r.ensureNotCancelled("record a reminder for"); err != nil {
		return err
	}

	first := r.ReminderCount == 0
	r.ReminderCount++
	sentAt := now
	r.LastReminderAt = &sentAt
	if first {
		firstAt := now
		r.NotificationSent = true
		r.NotificationSentAt = &firstAt
	}
	r.Touch(now)

	r.AddDomainEvent(NewBillReminderRecordedEvent(r, now))

	return nil
}

// UpdateReadings replaces the meter readings. A reading without a price keeps
// the price already on the bill.
func (r *BillingRecord) UpdateReadings(electricity, water UtilityReading, rates RateTable, now time.Time) error {
	if err := r.ensureEditable("update readings of"); err != nil {
		return err
	}

	if !electricity.PricePerUnit.Valid {
		electricity.PricePerUnit = r.ElectricityPricePerUnit
	}
	if !water.PricePerUnit.Valid {
		water.PricePerUnit = r.WaterPricePerUnit
	}

	in := r.Inputs()
	in.Electricity = electricity
	in.Water = water
	totals, next, err := r.evaluate(in, rates)
	if err != nil {
		return err
	}

	r.ElectricityPreviousReading = round(electricity.PreviousReading)
	r.ElectricityCurrentReading = round(electricity.CurrentReading)
	r.ElectricityPricePerUnit = roundNull(electricity.PricePerUnit)
	r.WaterPreviousReading = round(water.PreviousReading)
	r.WaterCurrentReading = round(water.CurrentReading)
	r.WaterPricePerUnit = roundNull(water.PricePerUnit)
	r.commit(totals, next, now)

	return nil
}

// UpdateCharges replaces the room rent and flat fees
func (r *BillingRecord) UpdateCharges(charges Charges, rates RateTable, now time.Time) error {
	if err := r.ensureEditable("update charges of"); err != nil {
		return err
	}

	in := r.Inputs()
	in.RoomRent = charges.RoomRent
	in.Fees = charges.Fees
	totals, next, err := r.evaluate(in, rates)
	if err != nil {
		return err
	}

	r.RoomRent = round(charges.RoomRent)
	r.InternetFee = round(charges.Fees.Internet)
	r.GarbageFee = round(charges.Fees.Garbage)
	r.ParkingFee = round(charges.Fees.Parking)
	r.OtherFees = round(charges.Fees.Other)
	r.OtherFeesDescription = charges.OtherFeesDescription
	r.commit(totals, next, now)

	return nil
}

// ApplyDiscount sets the discount. A discount larger than the subtotal is rejected.
func (r *BillingRecord) ApplyDiscount(amount decimal.Decimal, reason string, rates RateTable, now time.Time) error {
	if err := r.ensureEditable("discount"); err != nil {
		return err
	}

	in := r.Inputs()
	in.Discount = amount
	totals, next, err := r.evaluate(in, rates)
	if err != nil {
		return err
	}

	r.Discount = round(amount)
	r.DiscountReason = reason
	r.commit(totals, next, now)

	return nil
}

// SetPreviousBalance sets the balance carried over from the previous period
func (r *BillingRecord) SetPreviousBalance(balance decimal.Decimal, rates RateTable, now time.Time) error {
	if err := r.ensureEditable("set the previous balance of"); err != nil {
		return err
	}

	in := r.Inputs()
	in.PreviousBalance = balance
	totals, next, err := r.evaluate(in, rates)
	if err != nil {
		return err
	}

	r.PreviousBalance = round(balance)
	r.commit(totals, next, now)

	return nil
}

// Activate issues a draft bill for payment
func (r *BillingRecord) Activate(now time.Time) error {
	if err := r.ensureNotCancelled("activate"); err != nil {
		return err
	}
	if r.Status != BillStatusDraft {
		return shared.NewStateError("INVALID_STATE", fmt.Sprintf("Cannot activate bill in %s status", r.Status))
	}

	r.Status = BillStatusPending
	r.Touch(now)

	return nil
}

// MarkOverdue flags an issued bill whose due date has passed
func (r *BillingRecord) MarkOverdue(now time.Time) error {
	if err := r.ensureNotCancelled("mark overdue"); err != nil {
		return err
	}
	if r.Status != BillStatusPending && r.Status != BillStatusPartial {
		return shared.NewStateError("INVALID_STATE", fmt.Sprintf("Cannot mark bill in %s status as overdue", r.Status))
	}
	if !r.RemainingBalance.IsPositive() || !r.isPastDue(now) {
		return shared.NewStateError("NOT_OVERDUE", fmt.Sprintf("Bill %s is not past due", r.BillingPeriod))
	}

	overdueAt := now
	r.Status = BillStatusOverdue
	r.OverdueAt = &overdueAt
	r.Touch(now)

	r.AddDomainEvent(NewBillOverdueEvent(r, now))

	return nil
}

// Cancel voids the bill. Paid bills cannot be cancelled.
func (r *BillingRecord) Cancel(reason string, now time.Time) error {
	if err := r.ensureNotCancelled("cancel"); err != nil {
		return err
	}
	if r.Status == BillStatusPaid {
		return shared.NewStateError("INVALID_STATE", "Cannot cancel a paid bill")
	}
	if reason == "" {
		return shared.NewValidationError("INVALID_REASON", "Cancel reason is required")
	}

	cancelledAt := now
	r.Status = BillStatusCancelled
	r.CancelledAt = &cancelledAt
	r.CancelReason = reason
	r.Touch(now)

	r.AddDomainEvent(NewBillCancelledEvent(r, now))

	return nil
}

// IsOverdue reports whether the bill is outstanding past its due date
func (r *BillingRecord) IsOverdue(now time.Time) bool {
	return r.Status.IsOutstanding() && r.RemainingBalance.IsPositive() && r.isPastDue(now)
}

// isPastDue is true from the day after the due date
func (r *BillingRecord) isPastDue(now time.Time) bool {
	y, m, d := r.DueDate.Date()
	dayAfter := time.Date(y, m, d, 0, 0, 0, 0, r.DueDate.Location()).AddDate(0, 0, 1)
	return !now.Before(dayAfter)
}

// Validate checks the stored field invariants
func (r *BillingRecord) Validate() error {
	if r.AccommodationID == uuid.Nil || r.TenantID == uuid.Nil || r.LandlordID == uuid.Nil {
		return shared.NewValidationError("INVALID_IDENTITY", "Accommodation, tenant and landlord IDs are required")
	}
	period, err := MakePeriod(r.BillingYear, r.BillingMonth)
	if err != nil {
		return err
	}
	if period != r.BillingPeriod {
		return shared.NewValidationError("PERIOD_MISMATCH", fmt.Sprintf("Billing period %q does not match %s", r.BillingPeriod, period))
	}
	if !r.Status.IsValid() {
		return shared.NewValidationError("INVALID_STATUS", fmt.Sprintf("Unknown bill status %q", r.Status))
	}
	if r.DueDate.IsZero() {
		return shared.NewValidationError("INVALID_DUE_DATE", "Due date is required")
	}
	if r.ReminderCount < 0 {
		return shared.NewValidationError("INVALID_REMINDER_COUNT", "Reminder count cannot be negative")
	}
	if paid := round(r.Payments.Total()); !paid.Equal(r.PaidAmount) {
		return shared.NewValidationError("PAYMENT_MISMATCH",
			fmt.Sprintf("Paid amount %s does not match the payment history total %s", r.PaidAmount.StringFixed(Scale), paid.StringFixed(Scale)))
	}
	return validateInput(r.Inputs())
}

func (r *BillingRecord) ensureNotCancelled(action string) error {
	if r.Status == BillStatusCancelled {
		return shared.NewValidationError("BILL_CANCELLED", fmt.Sprintf("Cannot %s a cancelled bill", action))
	}
	return nil
}

func (r *BillingRecord) ensureEditable(action string) error {
	if err := r.ensureNotCancelled(action); err != nil {
		return err
	}
	if r.Status.IsTerminal() {
		return shared.NewStateError("INVALID_STATE", fmt.Sprintf("Cannot %s a %s bill", action, r.Status))
	}
	return nil
}

// evaluate computes totals and the next status without touching the record
func (r *BillingRecord) evaluate(in TotalsInput, rates RateTable) (Totals, BillStatus, error) {
	period, err := MakePeriod(r.BillingYear, r.BillingMonth)
	if err != nil {
		return Totals{}, "", err
	}
	if period != r.BillingPeriod {
		return Totals{}, "", shared.NewValidationError("PERIOD_MISMATCH", fmt.Sprintf("Billing period %q does not match %s", r.BillingPeriod, period))
	}

	totals, err := ComputeTotals(in, rates)
	if err != nil {
		return Totals{}, "", err
	}
	return totals, DeriveStatus(totals.RemainingBalance, round(in.PaidAmount), r.Status), nil
}

// applyDerived writes the derived fields and reports a transition into paid
func (r *BillingRecord) applyDerived(t Totals, next BillStatus, now time.Time) bool {
	r.ElectricityUsage = t.Electricity.Usage
	r.ElectricityAmount = t.Electricity.Amount
	r.WaterUsage = t.Water.Usage
	r.WaterAmount = t.Water.Amount
	r.Subtotal = t.Subtotal
	r.TotalAmount = t.TotalAmount
	r.GrandTotal = t.GrandTotal
	r.RemainingBalance = t.RemainingBalance

	becamePaid := next == BillStatusPaid && r.Status != BillStatusPaid
	r.Status = next
	if becamePaid && r.PaidAt == nil {
		paidAt := now
		r.PaidAt = &paidAt
	}
	return becamePaid
}

// commit finishes an input edit
func (r *BillingRecord) commit(t Totals, next BillStatus, now time.Time) {
	if r.applyDerived(t, next, now) {
		r.AddDomainEvent(NewBillPaidEvent(r, now))
	}
	r.Touch(now)
}

func roundNull(d decimal.NullDecimal) decimal.NullDecimal {
	if !d.Valid {
		return d
	}
	return decimal.NewNullDecimal(round(d.Decimal))
}
