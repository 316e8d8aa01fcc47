package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rental/backend/internal/domain/billing"
	"github.com/rental/backend/internal/domain/shared"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// ErrMeterNil is returned when no meter is given
var ErrMeterNil = errors.New("telemetry: meter cannot be nil")

// jobDurationBuckets spans quick sweeps up to a slow month-start generation run
var jobDurationBuckets = []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900}

// BillingMetrics counts billing activity. It subscribes to the billing domain
// events on the event bus and observes scheduled job runs.
type BillingMetrics struct {
	logger *zap.Logger

	billsCreated      metric.Int64Counter
	billedAmount      metric.Float64Counter
	paymentsApplied   metric.Int64Counter
	paymentAmount     metric.Float64Counter
	billsPaid         metric.Int64Counter
	billsOverdue      metric.Int64Counter
	billsCancelled    metric.Int64Counter
	remindersRecorded metric.Int64Counter
	jobRuns           metric.Int64Counter
	jobDuration       metric.Float64Histogram
}

// NewBillingMetrics registers the billing instruments on meter
func NewBillingMetrics(meter metric.Meter, logger *zap.Logger) (*BillingMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	bm := &BillingMetrics{logger: logger}
	counters := []struct {
		target     *metric.Int64Counter
		name, desc string
		unit       string
	}{
		{&bm.billsCreated, "billing_bills_created_total", "Bills created", "{bills}"},
		{&bm.paymentsApplied, "billing_payments_applied_total", "Payments applied to bills", "{payments}"},
		{&bm.billsPaid, "billing_bills_paid_total", "Bills settled in full", "{bills}"},
		{&bm.billsOverdue, "billing_bills_overdue_total", "Bills flagged overdue", "{bills}"},
		{&bm.billsCancelled, "billing_bills_cancelled_total", "Bills cancelled", "{bills}"},
		{&bm.remindersRecorded, "billing_reminders_total", "Payment reminders recorded", "{reminders}"},
		{&bm.jobRuns, "billing_job_runs_total", "Scheduled billing job runs", "{runs}"},
	}
	var errs []error
	for _, c := range counters {
		var err error
		*c.target, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit(c.unit))
		errs = append(errs, err)
	}

	var err error
	bm.billedAmount, err = meter.Float64Counter("billing_billed_amount_total",
		metric.WithDescription("Grand total of created bills"), metric.WithUnit("{currency}"))
	errs = append(errs, err)
	bm.paymentAmount, err = meter.Float64Counter("billing_payment_amount_total",
		metric.WithDescription("Amount collected through payments"), metric.WithUnit("{currency}"))
	errs = append(errs, err)
	bm.jobDuration, err = meter.Float64Histogram("billing_job_duration_seconds",
		metric.WithDescription("Duration of scheduled billing jobs"), metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(jobDurationBuckets...))
	errs = append(errs, err)

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("failed to create billing instruments: %w", err)
	}
	return bm, nil
}

// EventTypes implements shared.EventHandler
func (bm *BillingMetrics) EventTypes() []string {
	return []string{
		billing.EventTypeBillingRecordCreated,
		billing.EventTypeBillPaymentApplied,
		billing.EventTypeBillPaid,
		billing.EventTypeBillOverdue,
		billing.EventTypeBillCancelled,
		billing.EventTypeBillReminderRecorded,
	}
}

// Handle implements shared.EventHandler
func (bm *BillingMetrics) Handle(ctx context.Context, event shared.DomainEvent) error {
	switch e := event.(type) {
	case *billing.BillingRecordCreatedEvent:
		attrs := metric.WithAttributes(
			AttrBillStatus.String(string(e.Status)),
			AttrAutoGenerated.Bool(e.IsAutoGenerated),
		)
		bm.billsCreated.Add(ctx, 1, attrs)
		bm.billedAmount.Add(ctx, e.GrandTotal.InexactFloat64(), attrs)
	case *billing.BillPaymentAppliedEvent:
		bm.paymentsApplied.Add(ctx, 1, metric.WithAttributes(AttrBillStatus.String(string(e.Status))))
		bm.paymentAmount.Add(ctx, e.Amount.InexactFloat64())
	case *billing.BillPaidEvent:
		bm.billsPaid.Add(ctx, 1)
	case *billing.BillOverdueEvent:
		bm.billsOverdue.Add(ctx, 1)
	case *billing.BillCancelledEvent:
		bm.billsCancelled.Add(ctx, 1)
	case *billing.BillReminderRecordedEvent:
		bm.remindersRecorded.Add(ctx, 1)
	default:
		bm.logger.Debug("Ignoring event in billing metrics", zap.String("event_type", event.EventType()))
	}
	return nil
}

// ObserveJobRun records the outcome and duration of a scheduled job
func (bm *BillingMetrics) ObserveJobRun(ctx context.Context, job string, duration time.Duration, err error) {
	outcome := "success"
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		outcome = "timeout"
	case err != nil:
		outcome = "failure"
	}
	bm.jobRuns.Add(ctx, 1, metric.WithAttributes(AttrJob.String(job), AttrOutcome.String(outcome)))
	bm.jobDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(AttrJob.String(job)))
}
