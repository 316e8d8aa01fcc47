package billing

import (
	"github.com/rental/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Default unit prices in VND
var (
	DefaultElectricityRate = decimal.NewFromInt(3500)  // per kWh
	DefaultWaterRate       = decimal.NewFromInt(15000) // per m³
)

// RateTable holds the unit prices used when a bill carries no price of its own
type RateTable struct {
	ElectricityPerUnit decimal.Decimal `json:"electricity_per_unit"`
	WaterPerUnit       decimal.Decimal `json:"water_per_unit"`
}

// DefaultRateTable returns the standard rates
func DefaultRateTable() RateTable {
	return RateTable{
		ElectricityPerUnit: DefaultElectricityRate,
		WaterPerUnit:       DefaultWaterRate,
	}
}

// Validate rejects negative rates
func (r RateTable) Validate() error {
	if r.ElectricityPerUnit.IsNegative() {
		return shared.NewValidationError("INVALID_RATE", "Electricity rate cannot be negative")
	}
	if r.WaterPerUnit.IsNegative() {
		return shared.NewValidationError("INVALID_RATE", "Water rate cannot be negative")
	}
	return nil
}

// resolvePrice picks the explicit price when present, otherwise the table rate
func resolvePrice(price decimal.NullDecimal, fallback decimal.Decimal) decimal.Decimal {
	if price.Valid {
		return price.Decimal
	}
	return fallback
}
