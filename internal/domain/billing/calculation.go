package billing

import (
	"fmt"

	"github.com/rental/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Scale is the number of decimal places kept for money, readings and usage
const Scale int32 = 2

// UtilityReading is the raw meter input of one utility
type UtilityReading struct {
	PreviousReading decimal.Decimal     `json:"previous_reading"`
	CurrentReading  decimal.Decimal     `json:"current_reading"`
	PricePerUnit    decimal.NullDecimal `json:"price_per_unit"` // Absent means the rate table price
}

// UtilityCharge is the derived usage and amount of one utility
type UtilityCharge struct {
	Usage        decimal.Decimal `json:"usage"`
	PricePerUnit decimal.Decimal `json:"price_per_unit"`
	Amount       decimal.Decimal `json:"amount"`
}

// FlatFees are the fixed monthly charges on top of rent and utilities
type FlatFees struct {
	Internet decimal.Decimal `json:"internet"`
	Garbage  decimal.Decimal `json:"garbage"`
	Parking  decimal.Decimal `json:"parking"`
	Other    decimal.Decimal `json:"other"`
}

// Sum returns the total of all flat fees
func (f FlatFees) Sum() decimal.Decimal {
	return f.Internet.Add(f.Garbage).Add(f.Parking).Add(f.Other)
}

// TotalsInput holds every raw value the bill totals depend on.
// Zero values mean "absent" and count as 0.
type TotalsInput struct {
	RoomRent        decimal.Decimal
	Electricity     UtilityReading
	Water           UtilityReading
	Fees            FlatFees
	Discount        decimal.Decimal
	PreviousBalance decimal.Decimal // Negative means credit
	PaidAmount      decimal.Decimal
}

// Totals holds the derived amounts of a bill
type Totals struct {
	Electricity      UtilityCharge   `json:"electricity"`
	Water            UtilityCharge   `json:"water"`
	Subtotal         decimal.Decimal `json:"subtotal"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	GrandTotal       decimal.Decimal `json:"grand_total"`
	RemainingBalance decimal.Decimal `json:"remaining_balance"`
}

// ComputeTotals derives all bill totals from raw inputs.
// It is a pure function: the same inputs and rates always give the same totals.
//
//	subtotal         = rent + electricity + water + internet + garbage + parking + other
//	totalAmount      = subtotal - discount
//	grandTotal       = totalAmount + previousBalance
//	remainingBalance = grandTotal - paidAmount
func ComputeTotals(in TotalsInput, rates RateTable) (Totals, error) {
	if err := rates.Validate(); err != nil {
		return Totals{}, err
	}
	if err := validateInput(in); err != nil {
		return Totals{}, err
	}

	electricity, err := computeUtility("electricity", in.Electricity, rates.ElectricityPerUnit)
	if err != nil {
		return Totals{}, err
	}
	water, err := computeUtility("water", in.Water, rates.WaterPerUnit)
	if err != nil {
		return Totals{}, err
	}

	fees := FlatFees{
		Internet: round(in.Fees.Internet),
		Garbage:  round(in.Fees.Garbage),
		Parking:  round(in.Fees.Parking),
		Other:    round(in.Fees.Other),
	}
	subtotal := round(in.RoomRent).
		Add(electricity.Amount).
		Add(water.Amount).
		Add(fees.Sum())

	discount := round(in.Discount)
	if discount.GreaterThan(subtotal) {
		return Totals{}, shared.NewValidationError("DISCOUNT_EXCEEDS_SUBTOTAL",
			fmt.Sprintf("Discount %s exceeds subtotal %s", discount.StringFixed(Scale), subtotal.StringFixed(Scale)))
	}

	totalAmount := subtotal.Sub(discount)
	grandTotal := totalAmount.Add(round(in.PreviousBalance))

	return Totals{
		Electricity:      electricity,
		Water:            water,
		Subtotal:         subtotal,
		TotalAmount:      totalAmount,
		GrandTotal:       grandTotal,
		RemainingBalance: grandTotal.Sub(round(in.PaidAmount)),
	}, nil
}

func computeUtility(name string, reading UtilityReading, rate decimal.Decimal) (UtilityCharge, error) {
	previous := round(reading.PreviousReading)
	current := round(reading.CurrentReading)
	if current.LessThan(previous) {
		return UtilityCharge{}, shared.NewValidationError("READING_REGRESSION",
			fmt.Sprintf("Current %s reading %s is below previous reading %s", name, current.StringFixed(Scale), previous.StringFixed(Scale)))
	}

	price := round(resolvePrice(reading.PricePerUnit, rate))
	usage := current.Sub(previous)
	return UtilityCharge{
		Usage:        usage,
		PricePerUnit: price,
		Amount:       round(usage.Mul(price)),
	}, nil
}

func validateInput(in TotalsInput) error {
	nonNegative := []struct {
		field string
		value decimal.Decimal
	}{
		{"room rent", in.RoomRent},
		{"previous electricity reading", in.Electricity.PreviousReading},
		{"current electricity reading", in.Electricity.CurrentReading},
		{"electricity price", in.Electricity.PricePerUnit.Decimal},
		{"previous water reading", in.Water.PreviousReading},
		{"current water reading", in.Water.CurrentReading},
		{"water price", in.Water.PricePerUnit.Decimal},
		{"internet fee", in.Fees.Internet},
		{"garbage fee", in.Fees.Garbage},
		{"parking fee", in.Fees.Parking},
		{"other fees", in.Fees.Other},
		{"discount", in.Discount},
		{"paid amount", in.PaidAmount},
	}
	for _, v := range nonNegative {
		if v.value.IsNegative() {
			return shared.NewValidationError("NEGATIVE_AMOUNT", fmt.Sprintf("The %s cannot be negative", v.field))
		}
	}
	return nil
}

func round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Scale)
}
