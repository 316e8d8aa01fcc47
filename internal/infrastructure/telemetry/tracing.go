package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName names the tracer and meter of the billing code
const TracerName = "rental-backend"

// Attribute keys of billing spans and metrics
var (
	AttrBillID          = attribute.Key("bill.id")
	AttrBillStatus      = attribute.Key("bill.status")
	AttrAutoGenerated   = attribute.Key("bill.auto_generated")
	AttrAccommodationID = attribute.Key("accommodation.id")
	AttrBillingPeriod   = attribute.Key("billing.period")
	AttrPaymentAmount   = attribute.Key("payment.amount")
	AttrPaymentRef      = attribute.Key("payment.reference")
	AttrContracts       = attribute.Key("billing.contracts")
	AttrCreated         = attribute.Key("billing.created")
	AttrSkipped         = attribute.Key("billing.skipped")
	AttrFailed          = attribute.Key("billing.failed")
	AttrMarked          = attribute.Key("billing.marked")
	AttrJob             = attribute.Key("job")
	AttrOutcome         = attribute.Key("outcome")
)

// StartSpan starts an internal span on the global tracer provider. The caller
// ends it.
//
//	ctx, span := telemetry.StartSpan(ctx, "billing.record_payment", telemetry.AttrBillID.String(id))
//	defer span.End()
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
}

// RecordError records err on span and marks it failed. A nil err is ignored.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
