// Package export renders billing statements as spreadsheets.
package export

import (
	"fmt"

	"github.com/rental/backend/internal/domain/billing"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const (
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	dateLayout      = "2006-01-02"
	defaultSheet    = "Bills"

	// Built-in number format "#,##0"
	numFmtThousands = 3
	// Built-in number format "#,##0.00"
	numFmtDecimal = 4
)

type cellKind int

const (
	kindText cellKind = iota
	kindMoney
	kindQuantity
)

// billColumn maps one statement column to a bill field. Money columns set
// Amount and are summed in the totals row; the others set Value.
type billColumn struct {
	Header string
	Width  float64
	Kind   cellKind
	Value  func(r *billing.BillingRecord) any
	Amount func(r *billing.BillingRecord) decimal.Decimal
}

func (c billColumn) cell(r *billing.BillingRecord) any {
	if c.Amount != nil {
		return money(c.Amount(r))
	}
	return c.Value(r)
}

func money(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

func text(fn func(r *billing.BillingRecord) string) func(r *billing.BillingRecord) any {
	return func(r *billing.BillingRecord) any { return fn(r) }
}

var billColumns = []billColumn{
	{Header: "Bill ID", Width: 38, Value: text(func(r *billing.BillingRecord) string { return r.ID.String() })},
	{Header: "Accommodation", Width: 38, Value: text(func(r *billing.BillingRecord) string { return r.AccommodationID.String() })},
	{Header: "Tenant", Width: 38, Value: text(func(r *billing.BillingRecord) string { return r.TenantID.String() })},
	{Header: "Period", Width: 10, Value: text(func(r *billing.BillingRecord) string { return r.BillingPeriod })},
	{Header: "Status", Width: 11, Value: text(func(r *billing.BillingRecord) string { return string(r.Status) })},
	{Header: "Due Date", Width: 12, Value: text(func(r *billing.BillingRecord) string { return r.DueDate.Format(dateLayout) })},
	{Header: "Room Rent", Width: 14, Kind: kindMoney, Amount: func(r *billing.BillingRecord) decimal.Decimal { return r.RoomRent }},
	{Header: "Electricity (kWh)", Width: 12, Kind: kindQuantity, Value: func(r *billing.BillingRecord) any { return money(r.ElectricityUsage) }},
	{Header: "Electricity", Width: 14, Kind: kindMoney, Amount: func(r *billing.BillingRecord) decimal.Decimal { return r.ElectricityAmount }},
	{Header: "Water (m3)", Width: 12, Kind: kindQuantity, Value: func(r *billing.BillingRecord) any { return money(r.WaterUsage) }},
	{Header: "Water", Width: 14, Kind: kindMoney, Amount: func(r *billing.BillingRecord) decimal.Decimal { return r.WaterAmount }},
	{Header: "Fees", Width: 14, Kind: kindMoney, Amount: func(r *billing.BillingRecord) decimal.Decimal {
		return r.InternetFee.Add(r.GarbageFee).Add(r.ParkingFee).Add(r.OtherFees)
	}},
	{Header: "Discount", Width: 14, Kind: kindMoney, Amount: func(r *billing.BillingRecord) decimal.Decimal { return r.Discount }},
	{Header: "Previous Balance", Width: 16, Kind: kindMoney, Amount: func(r *billing.BillingRecord) decimal.Decimal { return r.PreviousBalance }},
	{Header: "Grand Total", Width: 16, Kind: kindMoney, Amount: func(r *billing.BillingRecord) decimal.Decimal { return r.GrandTotal }},
	{Header: "Paid", Width: 16, Kind: kindMoney, Amount: func(r *billing.BillingRecord) decimal.Decimal { return r.PaidAmount }},
	{Header: "Remaining", Width: 16, Kind: kindMoney, Amount: func(r *billing.BillingRecord) decimal.Decimal { return r.RemainingBalance }},
	{Header: "Paid At", Width: 12, Value: text(func(r *billing.BillingRecord) string {
		if r.PaidAt == nil {
			return ""
		}
		return r.PaidAt.Format(dateLayout)
	})},
	{Header: "Reminders", Width: 10, Value: func(r *billing.BillingRecord) any { return r.ReminderCount }},
}

// BillingExporter writes the bills of one period to an xlsx workbook
type BillingExporter struct {
	sheet string
}

// NewBillingExporter creates an exporter writing to the named sheet
func NewBillingExporter(sheetName string) *BillingExporter {
	if sheetName == "" {
		sheetName = defaultSheet
	}
	return &BillingExporter{sheet: sheetName}
}

// ContentType returns the xlsx MIME type
func (e *BillingExporter) ContentType() string {
	return xlsxContentType
}

// FileExtension returns ".xlsx"
func (e *BillingExporter) FileExtension() string {
	return ".xlsx"
}

// ExportBills renders one row per bill followed by a totals row.
// Cancelled bills are listed but left out of the totals.
func (e *BillingExporter) ExportBills(period string, bills []billing.BillingRecord) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := e.sheet
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	_ = f.SetDocProps(&excelize.DocProperties{
		Title:   fmt.Sprintf("Rent statement %s", period),
		Subject: period,
		Creator: "rental-billing",
	})

	styles, err := newStyles(f)
	if err != nil {
		return nil, err
	}

	for i, col := range billColumns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, col.Header); err != nil {
			return nil, fmt.Errorf("write header: %w", err)
		}
		colName, _ := excelize.ColumnNumberToName(i + 1)
		_ = f.SetColWidth(sheet, colName, colName, col.Width)
	}
	lastCol, _ := excelize.ColumnNumberToName(len(billColumns))
	_ = f.SetCellStyle(sheet, "A1", lastCol+"1", styles.header)

	totals := make([]decimal.Decimal, len(billColumns))
	rowIdx := 2
	for i := range bills {
		r := &bills[i]
		for colIdx, col := range billColumns {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx)
			if err := f.SetCellValue(sheet, cell, col.cell(r)); err != nil {
				return nil, fmt.Errorf("write bill %s: %w", r.ID, err)
			}
			if col.Amount != nil && r.Status != billing.BillStatusCancelled {
				totals[colIdx] = totals[colIdx].Add(col.Amount(r))
			}
		}
		rowIdx++
	}
	e.applyNumberFormats(f, styles, 2, rowIdx-1)

	// Totals row
	totalCell, _ := excelize.CoordinatesToCellName(1, rowIdx)
	_ = f.SetCellValue(sheet, totalCell, "Total")
	for colIdx, col := range billColumns {
		if col.Amount == nil {
			continue
		}
		cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx)
		_ = f.SetCellValue(sheet, cell, money(totals[colIdx]))
	}
	lastCell, _ := excelize.CoordinatesToCellName(len(billColumns), rowIdx)
	_ = f.SetCellStyle(sheet, totalCell, lastCell, styles.total)

	_ = f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

type sheetStyles struct {
	header   int
	total    int
	money    int
	quantity int
}

func newStyles(f *excelize.File) (sheetStyles, error) {
	var s sheetStyles
	var err error
	if s.header, err = f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DCE6F1"}, Pattern: 1},
	}); err != nil {
		return s, fmt.Errorf("header style: %w", err)
	}
	if s.total, err = f.NewStyle(&excelize.Style{
		Font:   &excelize.Font{Bold: true},
		NumFmt: numFmtThousands,
		Border: []excelize.Border{{Type: "top", Color: "#000000", Style: 1}},
	}); err != nil {
		return s, fmt.Errorf("total style: %w", err)
	}
	if s.money, err = f.NewStyle(&excelize.Style{NumFmt: numFmtThousands}); err != nil {
		return s, fmt.Errorf("money style: %w", err)
	}
	if s.quantity, err = f.NewStyle(&excelize.Style{NumFmt: numFmtDecimal}); err != nil {
		return s, fmt.Errorf("quantity style: %w", err)
	}
	return s, nil
}

func (e *BillingExporter) applyNumberFormats(f *excelize.File, styles sheetStyles, firstRow, lastRow int) {
	if lastRow < firstRow {
		return
	}
	for colIdx, col := range billColumns {
		style := 0
		switch col.Kind {
		case kindMoney:
			style = styles.money
		case kindQuantity:
			style = styles.quantity
		default:
			continue
		}
		top, _ := excelize.CoordinatesToCellName(colIdx+1, firstRow)
		bottom, _ := excelize.CoordinatesToCellName(colIdx+1, lastRow)
		_ = f.SetCellStyle(e.sheet, top, bottom, style)
	}
}
