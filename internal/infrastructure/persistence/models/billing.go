package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/rental/backend/internal/domain/billing"
	"github.com/shopspring/decimal"
)

// BillingRecordModel is the persistence model for the BillingRecord aggregate
type BillingRecordModel struct {
	AggregateModel
	AccommodationID uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:uq_billing_records_accommodation_period,priority:1"`
	TenantID        uuid.UUID  `gorm:"type:uuid;not null;index"`
	LandlordID      uuid.UUID  `gorm:"type:uuid;not null;index"`
	PropertyID      *uuid.UUID `gorm:"type:uuid;index"`
	ContractID      *uuid.UUID `gorm:"type:uuid;index"`

	BillingMonth  int       `gorm:"not null"`
	BillingYear   int       `gorm:"not null"`
	BillingPeriod string    `gorm:"type:varchar(7);not null;uniqueIndex:uq_billing_records_accommodation_period,priority:2;index"`
	DueDate       time.Time `gorm:"not null;index"`

	RoomRent decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`

	ElectricityPreviousReading decimal.Decimal     `gorm:"type:decimal(12,2);not null;default:0"`
	ElectricityCurrentReading  decimal.Decimal     `gorm:"type:decimal(12,2);not null;default:0"`
	ElectricityPricePerUnit    decimal.NullDecimal `gorm:"type:decimal(18,2)"`
	ElectricityUsage           decimal.Decimal     `gorm:"type:decimal(12,2);not null;default:0"`
	ElectricityAmount          decimal.Decimal     `gorm:"type:decimal(18,2);not null;default:0"`

	WaterPreviousReading decimal.Decimal     `gorm:"type:decimal(12,2);not null;default:0"`
	WaterCurrentReading  decimal.Decimal     `gorm:"type:decimal(12,2);not null;default:0"`
	WaterPricePerUnit    decimal.NullDecimal `gorm:"type:decimal(18,2)"`
	WaterUsage           decimal.Decimal     `gorm:"type:decimal(12,2);not null;default:0"`
	WaterAmount          decimal.Decimal     `gorm:"type:decimal(18,2);not null;default:0"`

	InternetFee          decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	GarbageFee           decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	ParkingFee           decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	OtherFees            decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	OtherFeesDescription string          `gorm:"type:text"`

	Discount        decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	DiscountReason  string          `gorm:"type:text"`
	PreviousBalance decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`

	Subtotal         decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	TotalAmount      decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	GrandTotal       decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	RemainingBalance decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`

	PaidAmount decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	Status     string          `gorm:"type:varchar(20);not null;default:'draft';index"`
	PaidAt     *time.Time
	Payments   billing.PaymentRecords `gorm:"type:jsonb;not null;default:'[]'"`

	NotificationSent   bool `gorm:"not null;default:false"`
	NotificationSentAt *time.Time
	ReminderCount      int `gorm:"not null;default:0"`
	LastReminderAt     *time.Time

	Notes           string `gorm:"type:text"`
	IsAutoGenerated bool   `gorm:"not null;default:false"`

	OverdueAt    *time.Time
	CancelledAt  *time.Time
	CancelReason string `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (BillingRecordModel) TableName() string {
	return "billing_records"
}

// ToDomain converts the persistence model to a domain BillingRecord
func (m *BillingRecordModel) ToDomain() *billing.BillingRecord {
	payments := m.Payments
	if payments == nil {
		payments = billing.PaymentRecords{}
	}
	return &billing.BillingRecord{
		BaseAggregateRoot:          m.AggregateModel.ToDomainAggregateRoot(),
		AccommodationID:            m.AccommodationID,
		TenantID:                   m.TenantID,
		LandlordID:                 m.LandlordID,
		PropertyID:                 m.PropertyID,
		ContractID:                 m.ContractID,
		BillingMonth:               m.BillingMonth,
		BillingYear:                m.BillingYear,
		BillingPeriod:              m.BillingPeriod,
		DueDate:                    m.DueDate,
		RoomRent:                   m.RoomRent,
		ElectricityPreviousReading: m.ElectricityPreviousReading,
		ElectricityCurrentReading:  m.ElectricityCurrentReading,
		ElectricityPricePerUnit:    m.ElectricityPricePerUnit,
		ElectricityUsage:           m.ElectricityUsage,
		ElectricityAmount:          m.ElectricityAmount,
		WaterPreviousReading:       m.WaterPreviousReading,
		WaterCurrentReading:        m.WaterCurrentReading,
		WaterPricePerUnit:          m.WaterPricePerUnit,
		WaterUsage:                 m.WaterUsage,
		WaterAmount:                m.WaterAmount,
		InternetFee:                m.InternetFee,
		GarbageFee:                 m.GarbageFee,
		ParkingFee:                 m.ParkingFee,
		OtherFees:                  m.OtherFees,
		OtherFeesDescription:       m.OtherFeesDescription,
		Discount:                   m.Discount,
		DiscountReason:             m.DiscountReason,
		PreviousBalance:            m.PreviousBalance,
		Subtotal:                   m.Subtotal,
		TotalAmount:                m.TotalAmount,
		GrandTotal:                 m.GrandTotal,
		RemainingBalance:           m.RemainingBalance,
		PaidAmount:                 m.PaidAmount,
		Status:                     billing.BillStatus(m.Status),
		PaidAt:                     m.PaidAt,
		Payments:                   payments,
		NotificationSent:           m.NotificationSent,
		NotificationSentAt:         m.NotificationSentAt,
		ReminderCount:              m.ReminderCount,
		LastReminderAt:             m.LastReminderAt,
		Notes:                      m.Notes,
		IsAutoGenerated:            m.IsAutoGenerated,
		OverdueAt:                  m.OverdueAt,
		CancelledAt:                m.CancelledAt,
		CancelReason:               m.CancelReason,
	}
}

// FromDomain populates the persistence model from a domain BillingRecord
func (m *BillingRecordModel) FromDomain(r *billing.BillingRecord) {
	m.FromDomainAggregateRoot(r.BaseAggregateRoot)
	m.AccommodationID = r.AccommodationID
	m.TenantID = r.TenantID
	m.LandlordID = r.LandlordID
	m.PropertyID = r.PropertyID
	m.ContractID = r.ContractID
	m.BillingMonth = r.BillingMonth
	m.BillingYear = r.BillingYear
	m.BillingPeriod = r.BillingPeriod
	m.DueDate = r.DueDate
	m.RoomRent = r.RoomRent
	m.ElectricityPreviousReading = r.ElectricityPreviousReading
	m.ElectricityCurrentReading = r.ElectricityCurrentReading
	m.ElectricityPricePerUnit = r.ElectricityPricePerUnit
	m.ElectricityUsage = r.ElectricityUsage
	m.ElectricityAmount = r.ElectricityAmount
	m.WaterPreviousReading = r.WaterPreviousReading
	m.WaterCurrentReading = r.WaterCurrentReading
	m.WaterPricePerUnit = r.WaterPricePerUnit
	m.WaterUsage = r.WaterUsage
	m.WaterAmount = r.WaterAmount
	m.InternetFee = r.InternetFee
	m.GarbageFee = r.GarbageFee
	m.ParkingFee = r.ParkingFee
	m.OtherFees = r.OtherFees
	m.OtherFeesDescription = r.OtherFeesDescription
	m.Discount = r.Discount
	m.DiscountReason = r.DiscountReason
	m.PreviousBalance = r.PreviousBalance
	m.Subtotal = r.Subtotal
	m.TotalAmount = r.TotalAmount
	m.GrandTotal = r.GrandTotal
	m.RemainingBalance = r.RemainingBalance
	m.PaidAmount = r.PaidAmount
	m.Status = string(r.Status)
	m.PaidAt = r.PaidAt
	m.Payments = r.Payments
	if m.Payments == nil {
		m.Payments = billing.PaymentRecords{}
	}
	m.NotificationSent = r.NotificationSent
	m.NotificationSentAt = r.NotificationSentAt
	m.ReminderCount = r.ReminderCount
	m.LastReminderAt = r.LastReminderAt
	m.Notes = r.Notes
	m.IsAutoGenerated = r.IsAutoGenerated
	m.OverdueAt = r.OverdueAt
	m.CancelledAt = r.CancelledAt
	m.CancelReason = r.CancelReason
}

// BillingRecordModelFromDomain creates a new persistence model from a domain BillingRecord
func BillingRecordModelFromDomain(r *billing.BillingRecord) *BillingRecordModel {
	m := &BillingRecordModel{}
	m.FromDomain(r)
	return m
}

// RentalContractModel is the read model of active rental contracts consumed by
// the monthly generation job. The contracts themselves are owned by another service.
type RentalContractModel struct {
	ID               uuid.UUID           `gorm:"type:uuid;primary_key"`
	AccommodationID  uuid.UUID           `gorm:"type:uuid;not null;index"`
	PropertyID       *uuid.UUID          `gorm:"type:uuid"`
	TenantID         uuid.UUID           `gorm:"type:uuid;not null"`
	LandlordID       uuid.UUID           `gorm:"type:uuid;not null"`
	MonthlyRent      decimal.Decimal     `gorm:"type:decimal(18,2);not null"`
	InternetFee      decimal.Decimal     `gorm:"type:decimal(18,2);not null;default:0"`
	GarbageFee       decimal.Decimal     `gorm:"type:decimal(18,2);not null;default:0"`
	ParkingFee       decimal.Decimal     `gorm:"type:decimal(18,2);not null;default:0"`
	ElectricityPrice decimal.NullDecimal `gorm:"type:decimal(18,2)"`
	WaterPrice       decimal.NullDecimal `gorm:"type:decimal(18,2)"`
	StartDate        time.Time           `gorm:"not null"`
	EndDate          *time.Time
	Status           string `gorm:"type:varchar(20);not null;index"`
}

// TableName returns the table name for GORM
func (RentalContractModel) TableName() string {
	return "rental_contracts"
}

// MeterReadingModel is a meter reading taken for an accommodation in a billing period
type MeterReadingModel struct {
	ID              uuid.UUID       `gorm:"type:uuid;primary_key"`
	AccommodationID uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:uq_meter_readings_accommodation_period,priority:1"`
	BillingPeriod   string          `gorm:"type:varchar(7);not null;uniqueIndex:uq_meter_readings_accommodation_period,priority:2"`
	Electricity     decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Water           decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	ReadAt          time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (MeterReadingModel) TableName() string {
	return "meter_readings"
}
