package persistence

import (
	"strings"

	"gorm.io/gorm/clause"
)

const defaultBillingRecordSort = "created_at"

// billingRecordSortColumns whitelists the columns bills can be listed by.
// Callers never reach ORDER BY with a column outside it.
var billingRecordSortColumns = map[string]struct{}{
	"created_at":        {},
	"updated_at":        {},
	"billing_period":    {},
	"due_date":          {},
	"status":            {},
	"grand_total":       {},
	"paid_amount":       {},
	"remaining_balance": {},
	"paid_at":           {},
	"reminder_count":    {},
}

// billingRecordOrder resolves a requested sort. Unknown columns fall back to
// created_at; any direction other than asc sorts descending.
func billingRecordOrder(orderBy, orderDir string) clause.OrderByColumn {
	column := strings.ToLower(strings.TrimSpace(orderBy))
	if _, ok := billingRecordSortColumns[column]; !ok {
		column = defaultBillingRecordSort
	}
	return clause.OrderByColumn{
		Column: clause.Column{Name: column},
		Desc:   !strings.EqualFold(strings.TrimSpace(orderDir), "asc"),
	}
}
