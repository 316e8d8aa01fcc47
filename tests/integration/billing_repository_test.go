package integration

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rental/backend/internal/domain/billing"
	"github.com/rental/backend/internal/domain/shared"
	"github.com/rental/backend/internal/domain/shared/valueobject"
	"github.com/rental/backend/internal/infrastructure/persistence"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	code := m.Run()
	stopPostgres()
	os.Exit(code)
}

var issuedAt = time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)

// newPendingBill builds an issued bill with a grand total of 2,320,000
func newPendingBill(t *testing.T, accommodationID uuid.UUID, year, month int) *billing.BillingRecord {
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
	}, billing.DefaultRateTable(), issuedAt)
	require.NoError(t, err)
	return r
}

// TestBillingRecordRepository_Integration tests the repository against a real PostgreSQL database
func TestBillingRecordRepository_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	testDB := NewSharedTestDB(t)
	testDB.CleanTables()
	t.Cleanup(testDB.CleanTables)

	repo := persistence.NewGormBillingRecordRepository(testDB.DB)
	ctx := context.Background()
	rates := billing.DefaultRateTable()

	t.Run("Save and FindByID keeps money exact", func(t *testing.T) {
		bill := newPendingBill(t, uuid.New(), 2026, 2)
		require.NoError(t, repo.Save(ctx, bill))

		found, err := repo.FindByID(ctx, bill.ID)
		require.NoError(t, err)
		assert.Equal(t, "2026-02", found.BillingPeriod)
		assert.Equal(t, billing.BillStatusPending, found.Status)
		assert.True(t, decimal.NewFromInt(2320000).Equal(found.GrandTotal), "grand total %s", found.GrandTotal)
		assert.True(t, found.GrandTotal.Equal(found.RemainingBalance))
		assert.Equal(t, 1, found.Version)
	})

	t.Run("second bill for the same accommodation and period conflicts", func(t *testing.T) {
		accommodationID := uuid.New()
		require.NoError(t, repo.Save(ctx, newPendingBill(t, accommodationID, 2026, 2)))

		err := repo.Save(ctx, newPendingBill(t, accommodationID, 2026, 2))
		require.Error(t, err)
		assert.True(t, shared.IsConflictError(err))

		bill, err := repo.FindByAccommodationAndPeriod(ctx, accommodationID, "2026-02")
		require.NoError(t, err)
		assert.Equal(t, accommodationID, bill.AccommodationID)
	})

	t.Run("schema accepts every year the period key accepts", func(t *testing.T) {
		for _, year := range []int{billing.MinBillingYear, 1999, 2101, billing.MaxBillingYear} {
			bill := newPendingBill(t, uuid.New(), year, 6)
			require.NoError(t, repo.Save(ctx, bill), "year %d", year)

			found, err := repo.FindByID(ctx, bill.ID)
			require.NoError(t, err)
			assert.Equal(t, year, found.BillingYear)
		}
	})

	t.Run("payments persist and stale copies are rejected", func(t *testing.T) {
		bill := newPendingBill(t, uuid.New(), 2026, 2)
		require.NoError(t, repo.Save(ctx, bill))

		first, err := repo.FindByID(ctx, bill.ID)
		require.NoError(t, err)
		stale, err := repo.FindByID(ctx, bill.ID)
		require.NoError(t, err)

		require.NoError(t, first.ApplyPayment(valueobject.NewMoneyFromInt(1000000), "TXN-1", rates, issuedAt))
		require.NoError(t, repo.Save(ctx, first))

		require.NoError(t, stale.ApplyPayment(valueobject.NewMoneyFromInt(500000), "TXN-2", rates, issuedAt))
		assert.ErrorIs(t, repo.Save(ctx, stale), shared.ErrConcurrencyConflict)

		stored, err := repo.FindByID(ctx, bill.ID)
		require.NoError(t, err)
		assert.Equal(t, billing.BillStatusPartial, stored.Status)
		assert.True(t, decimal.NewFromInt(1320000).Equal(stored.RemainingBalance), "remaining %s", stored.RemainingBalance)
		require.Len(t, stored.Payments, 1)
		assert.Equal(t, "TXN-1", stored.Payments[0].Reference)
	})

	t.Run("concurrent payments apply exactly once", func(t *testing.T) {
		bill := newPendingBill(t, uuid.New(), 2026, 2)
		require.NoError(t, repo.Save(ctx, bill))

		const writers = 5
		var wg sync.WaitGroup
		results := make(chan error, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				loaded, err := repo.FindByID(ctx, bill.ID)
				if err != nil {
					results <- err
					return
				}
				if err := loaded.ApplyPayment(valueobject.NewMoneyFromInt(100000), "", rates, issuedAt); err != nil {
					results <- err
					return
				}
				results <- repo.Save(ctx, loaded)
			}()
		}
		wg.Wait()
		close(results)

		saved := 0
		for err := range results {
			if err == nil {
				saved++
				continue
			}
			assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
		}
		require.GreaterOrEqual(t, saved, 1)

		stored, err := repo.FindByID(ctx, bill.ID)
		require.NoError(t, err)
		assert.Len(t, stored.Payments, saved)
		assert.True(t, decimal.NewFromInt(int64(saved)*100000).Equal(stored.PaidAmount), "paid %s", stored.PaidAmount)
	})

	t.Run("FindLatestBefore walks back across years", func(t *testing.T) {
		accommodationID := uuid.New()
		require.NoError(t, repo.Save(ctx, newPendingBill(t, accommodationID, 2025, 11)))
		require.NoError(t, repo.Save(ctx, newPendingBill(t, accommodationID, 2025, 12)))

		latest, err := repo.FindLatestBefore(ctx, accommodationID, "2026-01")
		require.NoError(t, err)
		assert.Equal(t, "2025-12", latest.BillingPeriod)

		_, err = repo.FindLatestBefore(ctx, accommodationID, "2025-11")
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestBillingRecordRepository_QueriesIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	testDB := NewSharedTestDB(t)
	testDB.CleanTables()
	t.Cleanup(testDB.CleanTables)

	repo := persistence.NewGormBillingRecordRepository(testDB.DB)
	ctx := context.Background()
	rates := billing.DefaultRateTable()

	paid := newPendingBill(t, uuid.New(), 2026, 3)
	require.NoError(t, paid.ApplyPayment(valueobject.NewMoneyFromInt(2320000), "", rates, issuedAt))
	partial := newPendingBill(t, uuid.New(), 2026, 3)
	require.NoError(t, partial.ApplyPayment(valueobject.NewMoneyFromInt(320000), "", rates, issuedAt))
	cancelled := newPendingBill(t, uuid.New(), 2026, 3)
	require.NoError(t, cancelled.Cancel("vacated", issuedAt))
	pending := newPendingBill(t, uuid.New(), 2026, 3)
	earlier := newPendingBill(t, uuid.New(), 2026, 2)

	for _, b := range []*billing.BillingRecord{paid, partial, cancelled, pending, earlier} {
		require.NoError(t, repo.Save(ctx, b))
	}

	t.Run("SumByPeriod leaves cancelled bills out of the totals", func(t *testing.T) {
		summary, err := repo.SumByPeriod(ctx, "2026-03")
		require.NoError(t, err)

		assert.Equal(t, int64(4), summary.BillCount)
		assert.Equal(t, int64(1), summary.CountByStatus[billing.BillStatusCancelled])
		assert.True(t, decimal.NewFromInt(6960000).Equal(summary.GrandTotal), "grand total %s", summary.GrandTotal)
		assert.True(t, decimal.NewFromInt(2640000).Equal(summary.PaidAmount), "paid %s", summary.PaidAmount)
		assert.True(t, decimal.NewFromInt(4320000).Equal(summary.RemainingBalance), "remaining %s", summary.RemainingBalance)
	})

	t.Run("FindAll and Count filter by period and status", func(t *testing.T) {
		filter := billing.DefaultBillingRecordFilter().WithPeriod("2026-03")
		filter.Statuses = []billing.BillStatus{billing.BillStatusPending}

		bills, err := repo.FindAll(ctx, filter)
		require.NoError(t, err)
		require.Len(t, bills, 1)
		assert.Equal(t, pending.ID, bills[0].ID)

		count, err := repo.Count(ctx, billing.DefaultBillingRecordFilter().WithPeriod("2026-03"))
		require.NoError(t, err)
		assert.Equal(t, int64(4), count)
	})

	t.Run("FindOverdueCandidates returns outstanding bills past due", func(t *testing.T) {
		asOf := time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)
		bills, err := repo.FindOverdueCandidates(ctx, asOf, 10)
		require.NoError(t, err)

		ids := make([]uuid.UUID, len(bills))
		for i, b := range bills {
			ids[i] = b.ID
		}
		require.Len(t, ids, 3)
		assert.Equal(t, earlier.ID, ids[0], "earliest due date first")
		assert.ElementsMatch(t, []uuid.UUID{earlier.ID, partial.ID, pending.ID}, ids)
	})
}
