package billing

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentRecord is one payment applied to a bill.
// It is a value object within the BillingRecord aggregate, stored as JSON.
type PaymentRecord struct {
	ID        uuid.UUID       `json:"id"`
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference,omitempty"` // Gateway or receipt reference
	PaidAt    time.Time       `json:"paid_at"`
}

// PaymentRecords is the append-only payment history of a bill
type PaymentRecords []PaymentRecord

// Total returns the sum of all payments
func (p PaymentRecords) Total() decimal.Decimal {
	total := decimal.Zero
	for _, r := range p {
		total = total.Add(r.Amount)
	}
	return total
}

// HasReference reports whether a payment with the given reference was recorded
func (p PaymentRecords) HasReference(reference string) bool {
	if reference == "" {
		return false
	}
	for _, r := range p {
		if r.Reference == reference {
			return true
		}
	}
	return false
}

// Value implements driver.Valuer interface for GORM to store as JSON
func (p PaymentRecords) Value() (driver.Value, error) {
	if p == nil {
		return "[]", nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner interface for GORM to read from JSON
func (p *PaymentRecords) Scan(value any) error {
	if value == nil {
		*p = PaymentRecords{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("failed to scan PaymentRecords: unsupported type")
	}

	if len(bytes) == 0 {
		*p = PaymentRecords{}
		return nil
	}

	return json.Unmarshal(bytes, p)
}
