package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rental/backend/internal/domain/billing"
	"github.com/rental/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

var exportNow = time.Date(2026, 2, 1, 1, 0, 0, 0, time.UTC)

func newStatementBill(t *testing.T) billing.BillingRecord {
	t.Helper()
	r, err := billing.NewBillingRecord(billing.NewBillingRecordParams{
		AccommodationID: uuid.New(),
		TenantID:        uuid.New(),
		LandlordID:      uuid.New(),
		BillingYear:     2026,
		BillingMonth:    2,
		DueDate:         time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC),
		RoomRent:        decimal.NewFromInt(2000000),
		Electricity:     billing.UtilityReading{PreviousReading: decimal.NewFromInt(100), CurrentReading: decimal.NewFromInt(150)},
		Water:           billing.UtilityReading{PreviousReading: decimal.NewFromInt(10), CurrentReading: decimal.NewFromInt(15)},
		Fees:            billing.FlatFees{Internet: decimal.NewFromInt(100000), Garbage: decimal.NewFromInt(20000)},
		Discount:        decimal.NewFromInt(50000),
		InitialStatus:   billing.BillStatusPending,
	}, billing.DefaultRateTable(), exportNow)
	require.NoError(t, err)
	return *r
}

func rawCell(t *testing.T, f *excelize.File, sheet, cell string) string {
	t.Helper()
	v, err := f.GetCellValue(sheet, cell, excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	return v
}

func TestBillingExporter_Metadata(t *testing.T) {
	e := NewBillingExporter("")
	assert.Equal(t, ".xlsx", e.FileExtension())
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", e.ContentType())
	assert.Equal(t, "Bills", e.sheet)
}

func TestBillingExporter_ExportBills(t *testing.T) {
	paid := newStatementBill(t)
	require.NoError(t, paid.ApplyPayment(valueobject.NewMoneyFromInt(2320000), "TXN-1", billing.DefaultRateTable(), exportNow.Add(24*time.Hour)))
	pending := newStatementBill(t)
	cancelled := newStatementBill(t)
	require.NoError(t, cancelled.Cancel("tenant moved out", exportNow))

	data, err := NewBillingExporter("Statement").ExportBills("2026-02", []billing.BillingRecord{paid, pending, cancelled})
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Statement"}, f.GetSheetList())

	rows, err := f.GetRows("Statement")
	require.NoError(t, err)
	require.Len(t, rows, 5, "header, three bills, totals")
	assert.Equal(t, "Bill ID", rows[0][0])
	assert.Equal(t, "Grand Total", rows[0][14])

	t.Run("bill rows", func(t *testing.T) {
		assert.Equal(t, paid.ID.String(), rows[1][0])
		assert.Equal(t, "2026-02", rows[1][3])
		assert.Equal(t, "paid", rows[1][4])
		assert.Equal(t, "2026-02-10", rows[1][5])
		assert.Equal(t, "2320000", rawCell(t, f, "Statement", "O2"))
		assert.Equal(t, "2320000", rawCell(t, f, "Statement", "P2"))
		assert.Equal(t, "0", rawCell(t, f, "Statement", "Q2"))
		assert.Equal(t, "2026-02-02", rawCell(t, f, "Statement", "R2"))

		assert.Equal(t, "pending", rows[2][4])
		assert.Equal(t, "", rawCell(t, f, "Statement", "R3"))
		assert.Equal(t, "cancelled", rows[3][4])
	})

	t.Run("totals exclude cancelled bills", func(t *testing.T) {
		assert.Equal(t, "Total", rawCell(t, f, "Statement", "A5"))
		assert.Equal(t, "4640000", rawCell(t, f, "Statement", "O5"))
		assert.Equal(t, "2320000", rawCell(t, f, "Statement", "P5"))
		assert.Equal(t, "2320000", rawCell(t, f, "Statement", "Q5"))
		assert.Equal(t, "4000000", rawCell(t, f, "Statement", "G5"))
	})
}

func TestBillingExporter_EmptyPeriod(t *testing.T) {
	data, err := NewBillingExporter("Bills").ExportBills("2026-03", nil)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Bills")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Total", rows[1][0])
	assert.Equal(t, "0", rawCell(t, f, "Bills", "O2"))

	title, err := f.GetDocProps()
	require.NoError(t, err)
	assert.Equal(t, "Rent statement 2026-03", title.Title)
}
