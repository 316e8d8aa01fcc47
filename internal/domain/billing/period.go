package billing

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/rental/backend/internal/domain/shared"
)

// Billing years a period key can hold; the storage CHECK uses the same range
const (
	MinBillingYear = 1
	MaxBillingYear = 9999
)

// MakePeriod returns the canonical "YYYY-MM" form of a billing period
func MakePeriod(year, month int) (string, error) {
	if year < MinBillingYear || year > MaxBillingYear {
		return "", shared.NewValidationError("INVALID_BILLING_YEAR", fmt.Sprintf("Billing year %d must be between %d and %d", year, MinBillingYear, MaxBillingYear))
	}
	if month < 1 || month > 12 {
		return "", shared.NewValidationError("INVALID_BILLING_MONTH", fmt.Sprintf("Billing month %d must be between 1 and 12", month))
	}
	return fmt.Sprintf("%04d-%02d", year, month), nil
}

// ParsePeriod splits a canonical period back into year and month.
// Only strings MakePeriod can produce are accepted.
func ParsePeriod(period string) (year, month int, err error) {
	invalid := shared.NewValidationError("INVALID_BILLING_PERIOD", fmt.Sprintf("Billing period %q must have the form YYYY-MM", period))
	if len(period) != 7 || period[4] != '-' {
		return 0, 0, invalid
	}
	year, err = strconv.Atoi(period[:4])
	if err != nil {
		return 0, 0, invalid
	}
	month, err = strconv.Atoi(period[5:])
	if err != nil {
		return 0, 0, invalid
	}
	canonical, err := MakePeriod(year, month)
	if err != nil {
		return 0, 0, err
	}
	if canonical != period {
		return 0, 0, invalid
	}
	return year, month, nil
}

// PreviousPeriod returns the calendar month before year/month
func PreviousPeriod(year, month int) (int, int) {
	if month <= 1 {
		return year - 1, 12
	}
	return year, month - 1
}

// BillingKey identifies the single bill allowed per accommodation and period
type BillingKey struct {
	AccommodationID uuid.UUID
	Period          string
}

// UniquenessKey derives the storage key of a bill
func UniquenessKey(accommodationID uuid.UUID, period string) BillingKey {
	return BillingKey{AccommodationID: accommodationID, Period: period}
}

// String returns "<accommodation-id>:<YYYY-MM>"
func (k BillingKey) String() string {
	return k.AccommodationID.String() + ":" + k.Period
}
