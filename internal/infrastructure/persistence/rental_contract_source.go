package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	appbilling "github.com/rental/backend/internal/application/billing"
	"github.com/rental/backend/internal/domain/billing"
	"github.com/rental/backend/internal/infrastructure/persistence/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ContractStatusActive is the status of a contract that is billed every month
const ContractStatusActive = "active"

// GormContractSource lists billable contracts from the rental_contracts read model
type GormContractSource struct {
	db *gorm.DB
}

// NewGormContractSource creates a new GormContractSource
func NewGormContractSource(db *gorm.DB) *GormContractSource {
	return &GormContractSource{db: db}
}

// ListActiveContracts returns the active contracts whose term overlaps the billing period
func (s *GormContractSource) ListActiveContracts(ctx context.Context, period string) ([]appbilling.ActiveContract, error) {
	year, month, err := billing.ParsePeriod(period)
	if err != nil {
		return nil, err
	}
	periodStart := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	nextStart := periodStart.AddDate(0, 1, 0)

	var contractModels []models.RentalContractModel
	if err := s.db.WithContext(ctx).
		Where("status = ?", ContractStatusActive).
		Where("start_date < ?", nextStart).
		Where("(end_date IS NULL OR end_date >= ?)", periodStart).
		Order("accommodation_id ASC").
		Find(&contractModels).Error; err != nil {
		return nil, err
	}

	contracts := make([]appbilling.ActiveContract, len(contractModels))
	for i, m := range contractModels {
		contracts[i] = appbilling.ActiveContract{
			ContractID:      m.ID,
			AccommodationID: m.AccommodationID,
			PropertyID:      m.PropertyID,
			TenantID:        m.TenantID,
			LandlordID:      m.LandlordID,
			RoomRent:        m.MonthlyRent,
			Fees: billing.FlatFees{
				Internet: m.InternetFee,
				Garbage:  m.GarbageFee,
				Parking:  m.ParkingFee,
				Other:    decimal.Zero,
			},
			ElectricityPrice: nullToPtr(m.ElectricityPrice),
			WaterPrice:       nullToPtr(m.WaterPrice),
		}
	}
	return contracts, nil
}

// GormMeterReadingSource reads meter readings from the meter_readings table
type GormMeterReadingSource struct {
	db *gorm.DB
}

// NewGormMeterReadingSource creates a new GormMeterReadingSource
func NewGormMeterReadingSource(db *gorm.DB) *GormMeterReadingSource {
	return &GormMeterReadingSource{db: db}
}

// CurrentReading returns the reading of an accommodation for a period, or nil when none was taken
func (s *GormMeterReadingSource) CurrentReading(ctx context.Context, accommodationID uuid.UUID, period string) (*appbilling.MeterReading, error) {
	var model models.MeterReadingModel
	if err := s.db.WithContext(ctx).
		Where("accommodation_id = ? AND billing_period = ?", accommodationID, period).
		Take(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &appbilling.MeterReading{
		Electricity: model.Electricity,
		Water:       model.Water,
	}, nil
}

func nullToPtr(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}

var (
	_ appbilling.ContractSource     = (*GormContractSource)(nil)
	_ appbilling.MeterReadingSource = (*GormMeterReadingSource)(nil)
)
