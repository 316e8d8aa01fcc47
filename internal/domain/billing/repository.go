package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rental/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// BillingRecordRepository persists bills and enforces one bill per accommodation and period
type BillingRecordRepository interface {
	// Save inserts a new bill or updates an existing one.
	// A second bill for the same accommodation and period fails with a conflict error;
	// a stale Version fails with shared.ErrConcurrencyConflict.
	Save(ctx context.Context, record *BillingRecord) error

	// FindByID retrieves a bill by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*BillingRecord, error)

	// FindByAccommodationAndPeriod retrieves the bill of an accommodation for a period
	FindByAccommodationAndPeriod(ctx context.Context, accommodationID uuid.UUID, period string) (*BillingRecord, error)

	// FindLatestBefore retrieves the most recent bill of an accommodation before period
	FindLatestBefore(ctx context.Context, accommodationID uuid.UUID, period string) (*BillingRecord, error)

	// FindAll retrieves bills matching the filter
	FindAll(ctx context.Context, filter BillingRecordFilter) ([]BillingRecord, error)

	// Count counts bills matching the filter
	Count(ctx context.Context, filter BillingRecordFilter) (int64, error)

	// FindOverdueCandidates retrieves outstanding bills whose due date is before asOf
	FindOverdueCandidates(ctx context.Context, asOf time.Time, limit int) ([]BillingRecord, error)

	// SumByPeriod aggregates the bills of a period
	SumByPeriod(ctx context.Context, period string) (*PeriodSummary, error)
}

// BillingRecordFilter defines filtering options for bill queries
type BillingRecordFilter struct {
	shared.Filter
	AccommodationID *uuid.UUID   // Filter by accommodation
	TenantID        *uuid.UUID   // Filter by renter
	LandlordID      *uuid.UUID   // Filter by landlord
	Period          string       // Filter by billing period (YYYY-MM)
	Statuses        []BillStatus // Filter by statuses
}

// DefaultBillingRecordFilter returns a filter with default values
func DefaultBillingRecordFilter() BillingRecordFilter {
	f := shared.DefaultFilter()
	f.OrderBy = "billing_period"
	return BillingRecordFilter{Filter: f}
}

// WithPeriod sets the billing period filter
func (f BillingRecordFilter) WithPeriod(period string) BillingRecordFilter {
	f.Period = period
	return f
}

// WithStatuses sets the status filter
func (f BillingRecordFilter) WithStatuses(statuses ...BillStatus) BillingRecordFilter {
	f.Statuses = statuses
	return f
}

// WithAccommodation sets the accommodation filter
func (f BillingRecordFilter) WithAccommodation(id uuid.UUID) BillingRecordFilter {
	f.AccommodationID = &id
	return f
}

// WithPagination sets pagination options
func (f BillingRecordFilter) WithPagination(page, pageSize int) BillingRecordFilter {
	f.Page = page
	f.PageSize = pageSize
	return f
}

// PeriodSummary aggregates the bills of one billing period
type PeriodSummary struct {
	Period           string               `json:"period"`
	BillCount        int64                `json:"bill_count"`
	GrandTotal       decimal.Decimal      `json:"grand_total"`
	PaidAmount       decimal.Decimal      `json:"paid_amount"`
	RemainingBalance decimal.Decimal      `json:"remaining_balance"`
	CountByStatus    map[BillStatus]int64 `json:"count_by_status"`
}
