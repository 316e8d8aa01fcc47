package persistence

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rental/backend/internal/domain/billing"
	"github.com/rental/backend/internal/domain/shared"
	"github.com/rental/backend/internal/infrastructure/persistence/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GormBillingRecordRepository implements BillingRecordRepository using GORM
type GormBillingRecordRepository struct {
	db *gorm.DB
}

// NewGormBillingRecordRepository creates a new GormBillingRecordRepository
func NewGormBillingRecordRepository(db *gorm.DB) *GormBillingRecordRepository {
	return &GormBillingRecordRepository{db: db}
}

// Save inserts a new bill or updates an existing one with optimistic locking.
// The stored version must equal record.Version-1 for an update to apply.
func (r *GormBillingRecordRepository) Save(ctx context.Context, record *billing.BillingRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}
	model := models.BillingRecordModelFromDomain(record)
	db := r.db.WithContext(ctx)

	if record.Version <= 1 {
		return r.create(db, model)
	}

	result := db.Model(&models.BillingRecordModel{}).
		Select("*").
		Omit("id", "created_at").
		Where("id = ? AND version = ?", record.ID, record.Version-1).
		Updates(model)
	if result.Error != nil {
		return translateWriteError(result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}

	// Nothing updated: either the bill was never stored or someone else moved the version
	var count int64
	if err := db.Model(&models.BillingRecordModel{}).Where("id = ?", record.ID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return r.create(db, model)
	}
	return shared.ErrConcurrencyConflict
}

func (r *GormBillingRecordRepository) create(db *gorm.DB, model *models.BillingRecordModel) error {
	if err := db.Create(model).Error; err != nil {
		return translateWriteError(err)
	}
	return nil
}

// FindByID finds a bill by its ID
func (r *GormBillingRecordRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.BillingRecord, error) {
	var model models.BillingRecordModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByAccommodationAndPeriod finds the bill of an accommodation for a billing period
func (r *GormBillingRecordRepository) FindByAccommodationAndPeriod(ctx context.Context, accommodationID uuid.UUID, period string) (*billing.BillingRecord, error) {
	var model models.BillingRecordModel
	if err := r.db.WithContext(ctx).
		Where("accommodation_id = ? AND billing_period = ?", accommodationID, period).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindLatestBefore finds the most recent non-cancelled bill of an accommodation before period
func (r *GormBillingRecordRepository) FindLatestBefore(ctx context.Context, accommodationID uuid.UUID, period string) (*billing.BillingRecord, error) {
	var model models.BillingRecordModel
	if err := r.db.WithContext(ctx).
		Where("accommodation_id = ? AND billing_period < ? AND status <> ?",
			accommodationID, period, string(billing.BillStatusCancelled)).
		Order("billing_period DESC").
		Limit(1).
		Take(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAll finds all bills matching the filter
func (r *GormBillingRecordRepository) FindAll(ctx context.Context, filter billing.BillingRecordFilter) ([]billing.BillingRecord, error) {
	var recordModels []models.BillingRecordModel
	query := r.applyFilter(r.db.WithContext(ctx).Model(&models.BillingRecordModel{}), filter)
	if err := query.Find(&recordModels).Error; err != nil {
		return nil, err
	}
	return toBillingRecords(recordModels), nil
}

// Count counts bills matching the filter
func (r *GormBillingRecordRepository) Count(ctx context.Context, filter billing.BillingRecordFilter) (int64, error) {
	var count int64
	query := r.applyFilterWithoutPagination(r.db.WithContext(ctx).Model(&models.BillingRecordModel{}), filter)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// FindOverdueCandidates finds issued bills with an outstanding balance whose due date is before asOf
func (r *GormBillingRecordRepository) FindOverdueCandidates(ctx context.Context, asOf time.Time, limit int) ([]billing.BillingRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var recordModels []models.BillingRecordModel
	if err := r.db.WithContext(ctx).
		Where("status IN ?", []string{string(billing.BillStatusPending), string(billing.BillStatusPartial)}).
		Where("due_date < ? AND remaining_balance > 0", asOf).
		Order("due_date ASC, id ASC").
		Limit(limit).
		Find(&recordModels).Error; err != nil {
		return nil, err
	}
	return toBillingRecords(recordModels), nil
}

type periodStatusRow struct {
	Status           string
	BillCount        int64
	GrandTotal       decimal.Decimal
	PaidAmount       decimal.Decimal
	RemainingBalance decimal.Decimal
}

// SumByPeriod aggregates the bills of a period. Cancelled bills are counted
// but left out of the money totals.
func (r *GormBillingRecordRepository) SumByPeriod(ctx context.Context, period string) (*billing.PeriodSummary, error) {
	var rows []periodStatusRow
	if err := r.db.WithContext(ctx).
		Model(&models.BillingRecordModel{}).
		Select(`status,
			COUNT(*) AS bill_count,
			COALESCE(SUM(grand_total), 0) AS grand_total,
			COALESCE(SUM(paid_amount), 0) AS paid_amount,
			COALESCE(SUM(remaining_balance), 0) AS remaining_balance`).
		Where("billing_period = ?", period).
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	summary := &billing.PeriodSummary{
		Period:           period,
		GrandTotal:       decimal.Zero,
		PaidAmount:       decimal.Zero,
		RemainingBalance: decimal.Zero,
		CountByStatus:    make(map[billing.BillStatus]int64, len(billing.AllBillStatuses)),
	}
	for _, status := range billing.AllBillStatuses {
		summary.CountByStatus[status] = 0
	}
	for _, row := range rows {
		status := billing.BillStatus(row.Status)
		summary.CountByStatus[status] = row.BillCount
		summary.BillCount += row.BillCount
		if status == billing.BillStatusCancelled {
			continue
		}
		summary.GrandTotal = summary.GrandTotal.Add(row.GrandTotal)
		summary.PaidAmount = summary.PaidAmount.Add(row.PaidAmount)
		summary.RemainingBalance = summary.RemainingBalance.Add(row.RemainingBalance)
	}
	return summary, nil
}

// applyFilter applies filter options with pagination and ordering
func (r *GormBillingRecordRepository) applyFilter(query *gorm.DB, filter billing.BillingRecordFilter) *gorm.DB {
	query = r.applyFilterWithoutPagination(query, filter)

	query = query.Offset(filter.Offset()).Limit(filter.Limit())

	return query.Order(billingRecordOrder(filter.OrderBy, filter.OrderDir)).Order("id ASC")
}

// applyFilterWithoutPagination applies filter options without pagination
func (r *GormBillingRecordRepository) applyFilterWithoutPagination(query *gorm.DB, filter billing.BillingRecordFilter) *gorm.DB {
	if filter.AccommodationID != nil {
		query = query.Where("accommodation_id = ?", *filter.AccommodationID)
	}
	if filter.TenantID != nil {
		query = query.Where("tenant_id = ?", *filter.TenantID)
	}
	if filter.LandlordID != nil {
		query = query.Where("landlord_id = ?", *filter.LandlordID)
	}
	if filter.Period != "" {
		query = query.Where("billing_period = ?", filter.Period)
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		query = query.Where("status IN ?", statuses)
	}
	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		query = query.Where("(notes LIKE ? OR billing_period LIKE ?)", pattern, pattern)
	}
	return query
}

func toBillingRecords(recordModels []models.BillingRecordModel) []billing.BillingRecord {
	records := make([]billing.BillingRecord, len(recordModels))
	for i := range recordModels {
		records[i] = *recordModels[i].ToDomain()
	}
	return records
}

// translateWriteError maps unique violations on (accommodation_id, billing_period)
// to a conflict error and check violations to a validation error
func translateWriteError(err error) error {
	if isUniqueViolation(err) {
		return shared.NewConflictError("DUPLICATE_BILL", "A bill already exists for this accommodation and period")
	}
	if isCheckViolation(err) {
		return shared.NewValidationError("CONSTRAINT_VIOLATION", "The bill violates a storage constraint: "+err.Error())
	}
	return err
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "23505") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}

func isCheckViolation(err error) bool {
	if errors.Is(err, gorm.ErrCheckConstraintViolated) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "23514") || strings.Contains(msg, "CHECK constraint failed")
}

// Ensure GormBillingRecordRepository implements BillingRecordRepository
var _ billing.BillingRecordRepository = (*GormBillingRecordRepository)(nil)
