// Package billing provides the rent billing domain of the student-housing platform.
//
// A BillingRecord is the monthly bill of one accommodation. It is derived from
// metered utility readings, fixed fees, a discount and the balance carried over
// from the previous period, and it tracks payments and reminders until the bill
// is paid or cancelled.
//
// Key Aggregates:
//   - BillingRecord: One bill per accommodation per billing period
//
// Value Objects:
//   - BillingKey: Canonical (accommodation, YYYY-MM) identity used for uniqueness
//   - RateTable: Unit prices for electricity and water
//   - TotalsInput / Totals: Raw inputs and derived amounts of ComputeTotals
//
// The billing domain integrates with:
//   - Contract data: room rent and parties, supplied by the generation job
//   - Meter readings: supplied by the caller, previous readings carried over
//   - Notification delivery: consumes reminder and overdue events
package billing
