package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rental/backend/internal/domain/billing"
	"github.com/rental/backend/internal/domain/shared"
	"github.com/rental/backend/internal/domain/shared/valueobject"
	"github.com/rental/backend/internal/infrastructure/persistence/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var billCreatedAt = time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)

func setupBillingTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	// a single connection keeps every query on the same in-memory database
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(&models.BillingRecordModel{})
	require.NoError(t, err)

	return db
}

func newTestBill(t *testing.T, accommodationID uuid.UUID, year, month int) *billing.BillingRecord {
	t.Helper()
	r, err := billing.NewBillingRecord(billing.NewBillingRecordParams{
		AccommodationID: accommodationID,
		TenantID:        uuid.New(),
		LandlordID:      uuid.New(),
		BillingYear:     year,
		BillingMonth:    month,
		DueDate:         time.Date(year, time.Month(month), 10, 0, 0, 0, 0, time.UTC),
		RoomRent:        decimal.NewFromInt(2000000),
		Electricity:     billing.UtilityReading{PreviousReading: decimal.NewFromInt(100), CurrentReading: decimal.NewFromInt(150)},
		Water:           billing.UtilityReading{PreviousReading: decimal.NewFromInt(10), CurrentReading: decimal.NewFromInt(15)},
		Fees:            billing.FlatFees{Internet: decimal.NewFromInt(100000), Garbage: decimal.NewFromInt(20000)},
		Discount:        decimal.NewFromInt(50000),
		InitialStatus:   billing.BillStatusPending,
	}, billing.DefaultRateTable(), billCreatedAt)
	require.NoError(t, err)
	return r
}

func TestGormBillingRecordRepository_SaveAndFind(t *testing.T) {
	ctx := context.Background()

	t.Run("round trips a new bill", func(t *testing.T) {
		repo := NewGormBillingRecordRepository(setupBillingTestDB(t))
		bill := newTestBill(t, uuid.New(), 2026, 2)

		require.NoError(t, repo.Save(ctx, bill))

		found, err := repo.FindByID(ctx, bill.ID)
		require.NoError(t, err)
		assert.Equal(t, bill.AccommodationID, found.AccommodationID)
		assert.Equal(t, "2026-02", found.BillingPeriod)
		assert.Equal(t, billing.BillStatusPending, found.Status)
		assert.True(t, decimal.NewFromInt(2320000).Equal(found.GrandTotal), "grand total %s", found.GrandTotal)
		assert.True(t, found.ElectricityPricePerUnit.Valid)
		assert.True(t, decimal.NewFromInt(3500).Equal(found.ElectricityPricePerUnit.Decimal))
		assert.Empty(t, found.Payments)
	})

	t.Run("missing bill returns ErrNotFound", func(t *testing.T) {
		repo := NewGormBillingRecordRepository(setupBillingTestDB(t))

		_, err := repo.FindByID(ctx, uuid.New())
		assert.ErrorIs(t, err, shared.ErrNotFound)

		_, err = repo.FindByAccommodationAndPeriod(ctx, uuid.New(), "2026-02")
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("second bill for the same accommodation and period is a conflict", func(t *testing.T) {
		repo := NewGormBillingRecordRepository(setupBillingTestDB(t))
		accommodationID := uuid.New()

		require.NoError(t, repo.Save(ctx, newTestBill(t, accommodationID, 2026, 2)))
		err := repo.Save(ctx, newTestBill(t, accommodationID, 2026, 2))

		require.Error(t, err)
		assert.True(t, shared.IsConflictError(err))
		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "DUPLICATE_BILL", domainErr.Code)
	})

	t.Run("invalid bill is rejected before writing", func(t *testing.T) {
		db := setupBillingTestDB(t)
		repo := NewGormBillingRecordRepository(db)
		bill := newTestBill(t, uuid.New(), 2026, 4)
		bill.BillingPeriod = "2026-05"

		err := repo.Save(ctx, bill)
		require.Error(t, err)
		assert.True(t, shared.IsValidationError(err))

		var count int64
		require.NoError(t, db.Model(&models.BillingRecordModel{}).Count(&count).Error)
		assert.Zero(t, count)
	})

	t.Run("finds a bill by accommodation and period", func(t *testing.T) {
		repo := NewGormBillingRecordRepository(setupBillingTestDB(t))
		accommodationID := uuid.New()
		bill := newTestBill(t, accommodationID, 2026, 3)
		require.NoError(t, repo.Save(ctx, bill))

		found, err := repo.FindByAccommodationAndPeriod(ctx, accommodationID, "2026-03")
		require.NoError(t, err)
		assert.Equal(t, bill.ID, found.ID)
	})
}

func TestGormBillingRecordRepository_OptimisticLocking(t *testing.T) {
	ctx := context.Background()
	now := billCreatedAt.Add(24 * time.Hour)

	t.Run("persists a payment", func(t *testing.T) {
		repo := NewGormBillingRecordRepository(setupBillingTestDB(t))
		bill := newTestBill(t, uuid.New(), 2026, 2)
		require.NoError(t, repo.Save(ctx, bill))

		loaded, err := repo.FindByID(ctx, bill.ID)
		require.NoError(t, err)
		require.NoError(t, loaded.ApplyPayment(valueobject.NewMoneyFromInt(1000000), "TXN-1", billing.DefaultRateTable(), now))
		require.NoError(t, repo.Save(ctx, loaded))

		reloaded, err := repo.FindByID(ctx, bill.ID)
		require.NoError(t, err)
		assert.Equal(t, loaded.Version, reloaded.Version)
		assert.Equal(t, billing.BillStatusPartial, reloaded.Status)
		assert.True(t, decimal.NewFromInt(1320000).Equal(reloaded.RemainingBalance))
		require.Len(t, reloaded.Payments, 1)
		assert.Equal(t, "TXN-1", reloaded.Payments[0].Reference)
	})

	t.Run("stale copy fails with a concurrency conflict", func(t *testing.T) {
		repo := NewGormBillingRecordRepository(setupBillingTestDB(t))
		bill := newTestBill(t, uuid.New(), 2026, 2)
		require.NoError(t, repo.Save(ctx, bill))

		first, err := repo.FindByID(ctx, bill.ID)
		require.NoError(t, err)
		second, err := repo.FindByID(ctx, bill.ID)
		require.NoError(t, err)

		require.NoError(t, first.ApplyPayment(valueobject.NewMoneyFromInt(500000), "TXN-A", billing.DefaultRateTable(), now))
		require.NoError(t, repo.Save(ctx, first))

		require.NoError(t, second.ApplyPayment(valueobject.NewMoneyFromInt(700000), "TXN-B", billing.DefaultRateTable(), now))
		err = repo.Save(ctx, second)
		assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)

		stored, err := repo.FindByID(ctx, bill.ID)
		require.NoError(t, err)
		assert.True(t, decimal.NewFromInt(500000).Equal(stored.PaidAmount))
	})

	t.Run("unsaved bill with a bumped version is inserted", func(t *testing.T) {
		repo := NewGormBillingRecordRepository(setupBillingTestDB(t))
		bill := newTestBill(t, uuid.New(), 2026, 2)
		require.NoError(t, bill.RecordReminderSent(now))
		require.Greater(t, bill.Version, 1)

		require.NoError(t, repo.Save(ctx, bill))

		found, err := repo.FindByID(ctx, bill.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, found.ReminderCount)
	})
}

func TestGormBillingRecordRepository_FindLatestBefore(t *testing.T) {
	ctx := context.Background()
	repo := NewGormBillingRecordRepository(setupBillingTestDB(t))
	accommodationID := uuid.New()

	jan := newTestBill(t, accommodationID, 2026, 1)
	require.NoError(t, repo.Save(ctx, jan))

	feb := newTestBill(t, accommodationID, 2026, 2)
	require.NoError(t, feb.Cancel("entered twice", billCreatedAt))
	require.NoError(t, repo.Save(ctx, feb))

	require.NoError(t, repo.Save(ctx, newTestBill(t, accommodationID, 2026, 4)))
	require.NoError(t, repo.Save(ctx, newTestBill(t, uuid.New(), 2026, 2)))

	t.Run("skips cancelled bills", func(t *testing.T) {
		found, err := repo.FindLatestBefore(ctx, accommodationID, "2026-03")
		require.NoError(t, err)
		assert.Equal(t, jan.ID, found.ID)
	})

	t.Run("nothing earlier returns ErrNotFound", func(t *testing.T) {
		_, err := repo.FindLatestBefore(ctx, accommodationID, "2026-01")
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestGormBillingRecordRepository_FindAllAndCount(t *testing.T) {
	ctx := context.Background()
	repo := NewGormBillingRecordRepository(setupBillingTestDB(t))

	accommodationID := uuid.New()
	for month := 1; month <= 3; month++ {
		require.NoError(t, repo.Save(ctx, newTestBill(t, accommodationID, 2026, month)))
	}
	other := newTestBill(t, uuid.New(), 2026, 2)
	require.NoError(t, other.ApplyPayment(valueobject.NewMoneyFromInt(2320000), "TXN-9", billing.DefaultRateTable(), billCreatedAt))
	require.NoError(t, repo.Save(ctx, other))

	t.Run("filters by accommodation", func(t *testing.T) {
		filter := billing.DefaultBillingRecordFilter().WithAccommodation(accommodationID)
		filter.OrderDir = "asc"

		bills, err := repo.FindAll(ctx, filter)
		require.NoError(t, err)
		require.Len(t, bills, 3)
		assert.Equal(t, "2026-01", bills[0].BillingPeriod)
		assert.Equal(t, "2026-03", bills[2].BillingPeriod)

		count, err := repo.Count(ctx, filter)
		require.NoError(t, err)
		assert.Equal(t, int64(3), count)
	})

	t.Run("filters by period and status", func(t *testing.T) {
		filter := billing.DefaultBillingRecordFilter().
			WithPeriod("2026-02").
			WithStatuses(billing.BillStatusPaid)

		bills, err := repo.FindAll(ctx, filter)
		require.NoError(t, err)
		require.Len(t, bills, 1)
		assert.Equal(t, other.ID, bills[0].ID)
	})

	t.Run("paginates", func(t *testing.T) {
		filter := billing.DefaultBillingRecordFilter().WithPagination(2, 3)

		bills, err := repo.FindAll(ctx, filter)
		require.NoError(t, err)
		assert.Len(t, bills, 1)

		count, err := repo.Count(ctx, filter)
		require.NoError(t, err)
		assert.Equal(t, int64(4), count)
	})

	t.Run("unknown sort field falls back to created_at", func(t *testing.T) {
		filter := billing.DefaultBillingRecordFilter()
		filter.OrderBy = "grand_total; DROP TABLE billing_records"

		bills, err := repo.FindAll(ctx, filter)
		require.NoError(t, err)
		assert.Len(t, bills, 4)
	})
}

func TestGormBillingRecordRepository_FindOverdueCandidates(t *testing.T) {
	ctx := context.Background()
	repo := NewGormBillingRecordRepository(setupBillingTestDB(t))

	// due 2026-01-10, 2026-02-10 and 2026-03-10
	jan := newTestBill(t, uuid.New(), 2026, 1)
	feb := newTestBill(t, uuid.New(), 2026, 2)
	mar := newTestBill(t, uuid.New(), 2026, 3)
	paid := newTestBill(t, uuid.New(), 2026, 1)
	require.NoError(t, paid.ApplyPayment(valueobject.NewMoneyFromInt(2320000), "", billing.DefaultRateTable(), billCreatedAt))
	for _, b := range []*billing.BillingRecord{mar, feb, jan, paid} {
		require.NoError(t, repo.Save(ctx, b))
	}

	asOf := time.Date(2026, 2, 11, 0, 0, 0, 0, time.UTC)

	t.Run("returns outstanding bills past due in due date order", func(t *testing.T) {
		bills, err := repo.FindOverdueCandidates(ctx, asOf, 10)
		require.NoError(t, err)
		require.Len(t, bills, 2)
		assert.Equal(t, jan.ID, bills[0].ID)
		assert.Equal(t, feb.ID, bills[1].ID)
	})

	t.Run("respects the limit", func(t *testing.T) {
		bills, err := repo.FindOverdueCandidates(ctx, asOf, 1)
		require.NoError(t, err)
		require.Len(t, bills, 1)
		assert.Equal(t, jan.ID, bills[0].ID)
	})
}

func TestGormBillingRecordRepository_SumByPeriod(t *testing.T) {
	ctx := context.Background()
	repo := NewGormBillingRecordRepository(setupBillingTestDB(t))

	paid := newTestBill(t, uuid.New(), 2026, 2)
	require.NoError(t, paid.ApplyPayment(valueobject.NewMoneyFromInt(2320000), "", billing.DefaultRateTable(), billCreatedAt))
	partial := newTestBill(t, uuid.New(), 2026, 2)
	require.NoError(t, partial.ApplyPayment(valueobject.NewMoneyFromInt(320000), "", billing.DefaultRateTable(), billCreatedAt))
	cancelled := newTestBill(t, uuid.New(), 2026, 2)
	require.NoError(t, cancelled.Cancel("vacated", billCreatedAt))
	elsewhere := newTestBill(t, uuid.New(), 2026, 3)

	for _, b := range []*billing.BillingRecord{paid, partial, cancelled, elsewhere} {
		require.NoError(t, repo.Save(ctx, b))
	}

	summary, err := repo.SumByPeriod(ctx, "2026-02")
	require.NoError(t, err)

	assert.Equal(t, "2026-02", summary.Period)
	assert.Equal(t, int64(3), summary.BillCount)
	assert.Equal(t, int64(1), summary.CountByStatus[billing.BillStatusPaid])
	assert.Equal(t, int64(1), summary.CountByStatus[billing.BillStatusPartial])
	assert.Equal(t, int64(1), summary.CountByStatus[billing.BillStatusCancelled])
	assert.Equal(t, int64(0), summary.CountByStatus[billing.BillStatusOverdue])
	assert.True(t, decimal.NewFromInt(4640000).Equal(summary.GrandTotal), "grand total %s", summary.GrandTotal)
	assert.True(t, decimal.NewFromInt(2640000).Equal(summary.PaidAmount), "paid %s", summary.PaidAmount)
	assert.True(t, decimal.NewFromInt(2000000).Equal(summary.RemainingBalance), "remaining %s", summary.RemainingBalance)

	t.Run("empty period", func(t *testing.T) {
		summary, err := repo.SumByPeriod(ctx, "2025-12")
		require.NoError(t, err)
		assert.Equal(t, int64(0), summary.BillCount)
		assert.True(t, summary.GrandTotal.IsZero())
	})
}

func TestTranslateWriteError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{"gorm duplicated key", gorm.ErrDuplicatedKey, "DUPLICATE_BILL"},
		{"sqlite unique", errors.New("UNIQUE constraint failed: billing_records.accommodation_id"), "DUPLICATE_BILL"},
		{"gorm check violation", gorm.ErrCheckConstraintViolated, "CONSTRAINT_VIOLATION"},
		{"postgres check violation", errors.New(`new row for relation "billing_records" violates check constraint (SQLSTATE 23514)`), "CONSTRAINT_VIOLATION"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var domainErr *shared.DomainError
			require.ErrorAs(t, translateWriteError(tt.err), &domainErr)
			assert.Equal(t, tt.code, domainErr.Code)
		})
	}

	t.Run("other errors pass through", func(t *testing.T) {
		err := errors.New("connection reset")
		assert.Same(t, err, translateWriteError(err))
	})
}
