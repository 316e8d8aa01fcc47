package billing

import "github.com/shopspring/decimal"

// BillStatus represents the lifecycle status of a billing record
type BillStatus string

const (
	BillStatusDraft     BillStatus = "draft"     // Created manually, not yet issued
	BillStatusPending   BillStatus = "pending"   // Issued, waiting for payment
	BillStatusPartial   BillStatus = "partial"   // Some payment received, balance outstanding
	BillStatusPaid      BillStatus = "paid"      // Remaining balance <= 0
	BillStatusOverdue   BillStatus = "overdue"   // Past due date with balance outstanding
	BillStatusCancelled BillStatus = "cancelled" // Voided
)

// AllBillStatuses lists every status in lifecycle order
var AllBillStatuses = []BillStatus{
	BillStatusDraft,
	BillStatusPending,
	BillStatusPartial,
	BillStatusPaid,
	BillStatusOverdue,
	BillStatusCancelled,
}

// IsValid checks if the status is a valid BillStatus
func (s BillStatus) IsValid() bool {
	switch s {
	case BillStatusDraft, BillStatusPending, BillStatusPartial,
		BillStatusPaid, BillStatusOverdue, BillStatusCancelled:
		return true
	}
	return false
}

// String returns the string representation of BillStatus
func (s BillStatus) String() string {
	return string(s)
}

// IsTerminal returns true for paid and cancelled bills
func (s BillStatus) IsTerminal() bool {
	return s == BillStatusPaid || s == BillStatusCancelled
}

// CanApplyPayment returns true if payments can be applied in this status
func (s BillStatus) CanApplyPayment() bool {
	return s != BillStatusCancelled
}

// IsOutstanding returns true for issued bills still waiting for money
func (s BillStatus) IsOutstanding() bool {
	return s == BillStatusPending || s == BillStatusPartial || s == BillStatusOverdue
}

// DeriveStatus returns the status a bill moves to after its totals were recomputed.
//
// Cancelled is never entered or left here. A non-positive remaining balance
// means paid; any payment on an open balance means partial; otherwise the
// current status (draft, pending or overdue) is kept.
func DeriveStatus(remaining, paid decimal.Decimal, current BillStatus) BillStatus {
	switch {
	case current == BillStatusCancelled:
		return BillStatusCancelled
	case !remaining.IsPositive():
		return BillStatusPaid
	case paid.IsPositive():
		return BillStatusPartial
	default:
		return current
	}
}
