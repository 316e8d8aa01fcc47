package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/rental/backend/internal/domain/billing"
	"github.com/shopspring/decimal"
)

// ==================== Request DTOs ====================

// ReadingInput is one utility meter input. Nil fields mean "not supplied".
type ReadingInput struct {
	PreviousReading *decimal.Decimal `json:"previous_reading"`
	CurrentReading  *decimal.Decimal `json:"current_reading"`
	PricePerUnit    *decimal.Decimal `json:"price_per_unit"`
}

// FeesInput holds the flat monthly fees
type FeesInput struct {
	Internet decimal.Decimal `json:"internet_fee"`
	Garbage  decimal.Decimal `json:"garbage_fee"`
	Parking  decimal.Decimal `json:"parking_fee"`
	Other    decimal.Decimal `json:"other_fees"`
}

func (f FeesInput) toDomain() billing.FlatFees {
	return billing.FlatFees{
		Internet: f.Internet,
		Garbage:  f.Garbage,
		Parking:  f.Parking,
		Other:    f.Other,
	}
}

// GenerateBillRequest creates the bill of one accommodation for one period.
// Omitted previous readings are copied from the last bill's current readings
// and an omitted previous balance is carried over from the last bill.
type GenerateBillRequest struct {
	AccommodationID      uuid.UUID        `json:"accommodation_id" binding:"required"`
	TenantID             uuid.UUID        `json:"tenant_id" binding:"required"`
	LandlordID           uuid.UUID        `json:"landlord_id" binding:"required"`
	PropertyID           *uuid.UUID       `json:"property_id"`
	ContractID           *uuid.UUID       `json:"contract_id"`
	BillingYear          int              `json:"billing_year" binding:"required,min=1,max=9999"`
	BillingMonth         int              `json:"billing_month" binding:"required,min=1,max=12"`
	DueDate              *time.Time       `json:"due_date"`
	RoomRent             decimal.Decimal  `json:"room_rent"`
	Electricity          ReadingInput     `json:"electricity"`
	Water                ReadingInput     `json:"water"`
	Fees                 FeesInput        `json:"fees"`
	OtherFeesDescription string           `json:"other_fees_description" binding:"max=500"`
	Discount             decimal.Decimal  `json:"discount"`
	DiscountReason       string           `json:"discount_reason" binding:"max=500"`
	PreviousBalance      *decimal.Decimal `json:"previous_balance"`
	Activate             bool             `json:"activate"` // Issue as pending instead of draft
	Notes                string           `json:"notes" binding:"max=2000"`
	IsAutoGenerated      bool             `json:"-"`
}

// RecordPaymentRequest applies a confirmed payment to a bill
type RecordPaymentRequest struct {
	Amount    decimal.Decimal `json:"amount" binding:"required"`
	Reference string          `json:"reference" binding:"max=100"` // Gateway transaction or receipt number
}

// UpdateReadingsRequest replaces the meter readings of a bill
type UpdateReadingsRequest struct {
	Electricity ReadingInput `json:"electricity"`
	Water       ReadingInput `json:"water"`
}

// UpdateChargesRequest replaces the rent and flat fees of a bill
type UpdateChargesRequest struct {
	RoomRent             decimal.Decimal `json:"room_rent"`
	Fees                 FeesInput       `json:"fees"`
	OtherFeesDescription string          `json:"other_fees_description" binding:"max=500"`
}

// ApplyDiscountRequest sets the discount of a bill
type ApplyDiscountRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason" binding:"max=500"`
}

// AdjustPreviousBalanceRequest replaces the balance carried into a bill.
// A negative balance is a credit from an overpaid period.
type AdjustPreviousBalanceRequest struct {
	Balance decimal.Decimal `json:"balance"`
	Reason  string          `json:"reason" binding:"required,max=500"`
}

// CancelBillRequest voids a bill
type CancelBillRequest struct {
	Reason string `json:"reason" binding:"required,min=1,max=500"`
}

// ListBillsRequest defines filtering options for bill list queries
type ListBillsRequest struct {
	AccommodationID *uuid.UUID `form:"accommodation_id"`
	TenantID        *uuid.UUID `form:"tenant_id"`
	LandlordID      *uuid.UUID `form:"landlord_id"`
	Period          string     `form:"period" binding:"omitempty,billing_period"`
	Status          string     `form:"status" binding:"omitempty,oneof=draft pending partial paid overdue cancelled"`
	Page            int        `form:"page" binding:"omitempty,min=1"`
	PageSize        int        `form:"page_size" binding:"omitempty,min=1,max=100"`
}

// ==================== Response DTOs ====================

// UtilityResponse represents the utility section of a bill
type UtilityResponse struct {
	PreviousReading decimal.Decimal  `json:"previous_reading"`
	CurrentReading  decimal.Decimal  `json:"current_reading"`
	PricePerUnit    *decimal.Decimal `json:"price_per_unit"`
	Usage           decimal.Decimal  `json:"usage"`
	Amount          decimal.Decimal  `json:"amount"`
}

// PaymentResponse represents a payment in API responses
type PaymentResponse struct {
	ID        uuid.UUID       `json:"id"`
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference,omitempty"`
	PaidAt    time.Time       `json:"paid_at"`
}

// BillResponse represents a billing record in API responses
type BillResponse struct {
	ID                   uuid.UUID         `json:"id"`
	AccommodationID      uuid.UUID         `json:"accommodation_id"`
	TenantID             uuid.UUID         `json:"tenant_id"`
	LandlordID           uuid.UUID         `json:"landlord_id"`
	PropertyID           *uuid.UUID        `json:"property_id,omitempty"`
	ContractID           *uuid.UUID        `json:"contract_id,omitempty"`
	BillingMonth         int               `json:"billing_month"`
	BillingYear          int               `json:"billing_year"`
	BillingPeriod        string            `json:"billing_period"`
	DueDate              time.Time         `json:"due_date"`
	RoomRent             decimal.Decimal   `json:"room_rent"`
	Electricity          UtilityResponse   `json:"electricity"`
	Water                UtilityResponse   `json:"water"`
	InternetFee          decimal.Decimal   `json:"internet_fee"`
	GarbageFee           decimal.Decimal   `json:"garbage_fee"`
	ParkingFee           decimal.Decimal   `json:"parking_fee"`
	OtherFees            decimal.Decimal   `json:"other_fees"`
	OtherFeesDescription string            `json:"other_fees_description,omitempty"`
	Discount             decimal.Decimal   `json:"discount"`
	DiscountReason       string            `json:"discount_reason,omitempty"`
	PreviousBalance      decimal.Decimal   `json:"previous_balance"`
	Subtotal             decimal.Decimal   `json:"subtotal"`
	TotalAmount          decimal.Decimal   `json:"total_amount"`
	GrandTotal           decimal.Decimal   `json:"grand_total"`
	PaidAmount           decimal.Decimal   `json:"paid_amount"`
	RemainingBalance     decimal.Decimal   `json:"remaining_balance"`
	Status               string            `json:"status"`
	PaidAt               *time.Time        `json:"paid_at,omitempty"`
	Payments             []PaymentResponse `json:"payments,omitempty"`
	NotificationSent     bool              `json:"notification_sent"`
	NotificationSentAt   *time.Time        `json:"notification_sent_at,omitempty"`
	ReminderCount        int               `json:"reminder_count"`
	LastReminderAt       *time.Time        `json:"last_reminder_at,omitempty"`
	Notes                string            `json:"notes,omitempty"`
	IsAutoGenerated      bool              `json:"is_auto_generated"`
	OverdueAt            *time.Time        `json:"overdue_at,omitempty"`
	CancelledAt          *time.Time        `json:"cancelled_at,omitempty"`
	CancelReason         string            `json:"cancel_reason,omitempty"`
	CreatedAt            time.Time         `json:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at"`
	Version              int               `json:"version"`
}

// PaymentResult is the outcome of RecordPayment
type PaymentResult struct {
	Bill             *BillResponse `json:"bill"`
	AlreadyProcessed bool          `json:"already_processed"` // Same reference was applied before
}

// PeriodSummaryResponse aggregates the bills of one period
type PeriodSummaryResponse struct {
	Period           string           `json:"period"`
	BillCount        int64            `json:"bill_count"`
	GrandTotal       decimal.Decimal  `json:"grand_total"`
	PaidAmount       decimal.Decimal  `json:"paid_amount"`
	RemainingBalance decimal.Decimal  `json:"remaining_balance"`
	CountByStatus    map[string]int64 `json:"count_by_status"`
}

// ToBillResponse converts a domain BillingRecord to a BillResponse
func ToBillResponse(r *billing.BillingRecord) BillResponse {
	payments := make([]PaymentResponse, len(r.Payments))
	for i, p := range r.Payments {
		payments[i] = PaymentResponse{
			ID:        p.ID,
			Amount:    p.Amount,
			Reference: p.Reference,
			PaidAt:    p.PaidAt,
		}
	}

	return BillResponse{
		ID:              r.ID,
		AccommodationID: r.AccommodationID,
		TenantID:        r.TenantID,
		LandlordID:      r.LandlordID,
		PropertyID:      r.PropertyID,
		ContractID:      r.ContractID,
		BillingMonth:    r.BillingMonth,
		BillingYear:     r.BillingYear,
		BillingPeriod:   r.BillingPeriod,
		DueDate:         r.DueDate,
		RoomRent:        r.RoomRent,
		Electricity: UtilityResponse{
			PreviousReading: r.ElectricityPreviousReading,
			CurrentReading:  r.ElectricityCurrentReading,
			PricePerUnit:    nullToPtr(r.ElectricityPricePerUnit),
			Usage:           r.ElectricityUsage,
			Amount:          r.ElectricityAmount,
		},
		Water: UtilityResponse{
			PreviousReading: r.WaterPreviousReading,
			CurrentReading:  r.WaterCurrentReading,
			PricePerUnit:    nullToPtr(r.WaterPricePerUnit),
			Usage:           r.WaterUsage,
			Amount:          r.WaterAmount,
		},
		InternetFee:          r.InternetFee,
		GarbageFee:           r.GarbageFee,
		ParkingFee:           r.ParkingFee,
		OtherFees:            r.OtherFees,
		OtherFeesDescription: r.OtherFeesDescription,
		Discount:             r.Discount,
		DiscountReason:       r.DiscountReason,
		PreviousBalance:      r.PreviousBalance,
		Subtotal:             r.Subtotal,
		TotalAmount:          r.TotalAmount,
		GrandTotal:           r.GrandTotal,
		PaidAmount:           r.PaidAmount,
		RemainingBalance:     r.RemainingBalance,
		Status:               string(r.Status),
		PaidAt:               r.PaidAt,
		Payments:             payments,
		NotificationSent:     r.NotificationSent,
		NotificationSentAt:   r.NotificationSentAt,
		ReminderCount:        r.ReminderCount,
		LastReminderAt:       r.LastReminderAt,
		Notes:                r.Notes,
		IsAutoGenerated:      r.IsAutoGenerated,
		OverdueAt:            r.OverdueAt,
		CancelledAt:          r.CancelledAt,
		CancelReason:         r.CancelReason,
		CreatedAt:            r.CreatedAt,
		UpdatedAt:            r.UpdatedAt,
		Version:              r.Version,
	}
}

// ToPeriodSummaryResponse converts a domain PeriodSummary
func ToPeriodSummaryResponse(s *billing.PeriodSummary) PeriodSummaryResponse {
	counts := make(map[string]int64, len(s.CountByStatus))
	for status, n := range s.CountByStatus {
		counts[string(status)] = n
	}
	return PeriodSummaryResponse{
		Period:           s.Period,
		BillCount:        s.BillCount,
		GrandTotal:       s.GrandTotal,
		PaidAmount:       s.PaidAmount,
		RemainingBalance: s.RemainingBalance,
		CountByStatus:    counts,
	}
}

func nullToPtr(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}

func ptrToNull(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(*d)
}

func valueOrZero(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}
