// Package valueobject holds small immutable domain values.
package valueobject

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// MoneyScale is the number of fractional digits kept for VND amounts.
const MoneyScale int32 = 2

// Money is a VND amount rounded half-up to MoneyScale places on creation.
type Money struct {
	amount decimal.Decimal
}

func NewMoney(amount decimal.Decimal) Money {
	return Money{amount: amount.Round(MoneyScale)}
}

func NewMoneyFromInt(dong int64) Money {
	return Money{amount: decimal.NewFromInt(dong)}
}

// ParseMoney reads a decimal string such as "2320000" or "99.5".
func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return NewMoney(d), nil
}

func (m Money) Amount() decimal.Decimal { return m.amount }
func (m Money) IsZero() bool            { return m.amount.IsZero() }
func (m Money) IsPositive() bool        { return m.amount.IsPositive() }
func (m Money) Add(o Money) Money       { return Money{amount: m.amount.Add(o.amount)} }
func (m Money) Sub(o Money) Money       { return Money{amount: m.amount.Sub(o.amount)} }

// Cmp returns -1, 0 or +1 as m is less than, equal to or greater than o.
func (m Money) Cmp(o Money) int { return m.amount.Cmp(o.amount) }

func (m Money) String() string {
	return m.amount.StringFixed(MoneyScale) + " VND"
}

// MarshalText emits the fixed-scale amount so Money reads as a JSON string.
func (m Money) MarshalText() ([]byte, error) {
	return []byte(m.amount.StringFixed(MoneyScale)), nil
}

func (m *Money) UnmarshalText(text []byte) error {
	parsed, err := ParseMoney(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
