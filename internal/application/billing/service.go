package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rental/backend/internal/domain/billing"
	"github.com/rental/backend/internal/domain/shared"
	"github.com/rental/backend/internal/domain/shared/valueobject"
	"github.com/rental/backend/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	// DefaultDueDay is the day of the billing month a bill falls due
	DefaultDueDay = 10

	// maxSaveAttempts bounds the reload-and-retry loop on optimistic lock conflicts
	maxSaveAttempts = 3

	// overdueBatchSize is the number of bills loaded per overdue sweep round
	overdueBatchSize = 200

	paymentKeyPrefix = "billing:payment:"
)

// StatementExporter renders the bills of one period as a downloadable document
type StatementExporter interface {
	ExportBills(period string, bills []billing.BillingRecord) ([]byte, error)
	ContentType() string
	FileExtension() string
}

// BillingService is the application entry point of rent billing: the
// generation job, payment processing and the reminder scheduler all go
// through it.
type BillingService struct {
	repo           billing.BillingRecordRepository
	eventPublisher shared.EventPublisher
	idempotency    shared.IdempotencyStore
	idemConfig     shared.IdempotencyConfig
	exporter       StatementExporter
	rates          billing.RateTable
	dueDay         int
	clock          func() time.Time
	logger         *zap.Logger
}

// BillingServiceConfig holds the dependencies of the billing service
type BillingServiceConfig struct {
	Repo              billing.BillingRecordRepository
	EventPublisher    shared.EventPublisher   // Optional
	Idempotency       shared.IdempotencyStore // Optional, payment references are deduplicated when set
	IdempotencyConfig shared.IdempotencyConfig
	Exporter          StatementExporter // Optional
	Rates             billing.RateTable
	DueDay            int // 1-28, defaults to DefaultDueDay
	Clock             func() time.Time
	Logger            *zap.Logger
}

// NewBillingService creates a new BillingService
func NewBillingService(config BillingServiceConfig) *BillingService {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := config.Clock
	if clock == nil {
		clock = time.Now
	}
	rates := config.Rates
	if rates == (billing.RateTable{}) {
		rates = billing.DefaultRateTable()
	}
	dueDay := config.DueDay
	if dueDay < 1 || dueDay > 28 {
		dueDay = DefaultDueDay
	}
	idemConfig := config.IdempotencyConfig
	if idemConfig.TTL <= 0 {
		idemConfig = shared.DefaultIdempotencyConfig()
	}

	return &BillingService{
		repo:           config.Repo,
		eventPublisher: config.EventPublisher,
		idempotency:    config.Idempotency,
		idemConfig:     idemConfig,
		exporter:       config.Exporter,
		rates:          rates,
		dueDay:         dueDay,
		clock:          clock,
		logger:         logger.Named("billing"),
	}
}

// Rates returns the rate table applied to new bills
func (s *BillingService) Rates() billing.RateTable {
	return s.rates
}

// ===================== Generation =====================

// GenerateBill creates the bill of one accommodation for one period.
// A second bill for the same accommodation and period fails with a conflict error.
func (s *BillingService) GenerateBill(ctx context.Context, req GenerateBillRequest) (*BillResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "billing.generate",
		telemetry.AttrAccommodationID.String(req.AccommodationID.String()),
		telemetry.AttrBillingPeriod.String(fmt.Sprintf("%04d-%02d", req.BillingYear, req.BillingMonth)),
	)
	defer span.End()

	resp, err := s.generateBill(ctx, req)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	span.SetAttributes(
		telemetry.AttrBillID.String(resp.ID.String()),
		telemetry.AttrBillStatus.String(resp.Status),
	)
	return resp, nil
}

func (s *BillingService) generateBill(ctx context.Context, req GenerateBillRequest) (*BillResponse, error) {
	period, err := billing.MakePeriod(req.BillingYear, req.BillingMonth)
	if err != nil {
		return nil, err
	}
	key := billing.UniquenessKey(req.AccommodationID, period)

	existing, err := s.repo.FindByAccommodationAndPeriod(ctx, req.AccommodationID, period)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return nil, fmt.Errorf("check existing bill: %w", err)
	}
	if existing != nil {
		return nil, shared.NewConflictError("DUPLICATE_BILL", fmt.Sprintf("A bill for %s already exists", key))
	}

	params := billing.NewBillingRecordParams{
		AccommodationID:      req.AccommodationID,
		TenantID:             req.TenantID,
		LandlordID:           req.LandlordID,
		PropertyID:           req.PropertyID,
		ContractID:           req.ContractID,
		BillingYear:          req.BillingYear,
		BillingMonth:         req.BillingMonth,
		RoomRent:             req.RoomRent,
		Electricity:          toReading(req.Electricity),
		Water:                toReading(req.Water),
		Fees:                 req.Fees.toDomain(),
		OtherFeesDescription: req.OtherFeesDescription,
		Discount:             req.Discount,
		DiscountReason:       req.DiscountReason,
		PreviousBalance:      valueOrZero(req.PreviousBalance),
		InitialStatus:        billing.BillStatusDraft,
		Notes:                req.Notes,
		IsAutoGenerated:      req.IsAutoGenerated,
	}
	if req.Activate {
		params.InitialStatus = billing.BillStatusPending
	}
	if req.DueDate != nil {
		params.DueDate = *req.DueDate
	} else {
		params.DueDate = s.defaultDueDate(req.BillingYear, req.BillingMonth)
	}

	if err := s.carryOver(ctx, &params, req, period); err != nil {
		return nil, err
	}
	// Meters not read yet: zero usage until readings are entered
	if req.Electricity.CurrentReading == nil {
		params.Electricity.CurrentReading = params.Electricity.PreviousReading
	}
	if req.Water.CurrentReading == nil {
		params.Water.CurrentReading = params.Water.PreviousReading
	}

	record, err := billing.NewBillingRecord(params, s.rates, s.clock())
	if err != nil {
		return nil, err
	}

	if err := s.repo.Save(ctx, record); err != nil {
		return nil, err
	}
	s.publishEvents(ctx, record)

	s.logger.Info("Bill generated",
		zap.String("bill_id", record.ID.String()),
		zap.String("billing_key", key.String()),
		zap.String("status", string(record.Status)),
		zap.String("grand_total", record.GrandTotal.StringFixed(billing.Scale)),
		zap.Bool("auto_generated", record.IsAutoGenerated))

	resp := ToBillResponse(record)
	return &resp, nil
}

// carryOver fills omitted previous readings and balance from the last bill
func (s *BillingService) carryOver(ctx context.Context, params *billing.NewBillingRecordParams, req GenerateBillRequest, period string) error {
	needsReadings := req.Electricity.PreviousReading == nil || req.Water.PreviousReading == nil
	if !needsReadings && req.PreviousBalance != nil {
		return nil
	}

	last, err := s.repo.FindLatestBefore(ctx, req.AccommodationID, period)
	if errors.Is(err, shared.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load previous bill: %w", err)
	}
	if last == nil {
		return nil
	}
	if year, month := billing.PreviousPeriod(req.BillingYear, req.BillingMonth); last.BillingYear != year || last.BillingMonth != month {
		s.logger.Warn("Carrying over across a billing gap",
			zap.String("accommodation_id", req.AccommodationID.String()),
			zap.String("from_period", last.BillingPeriod),
			zap.String("to_period", period))
	}

	if req.Electricity.PreviousReading == nil {
		params.Electricity.PreviousReading = last.ElectricityCurrentReading
	}
	if req.Water.PreviousReading == nil {
		params.Water.PreviousReading = last.WaterCurrentReading
	}
	if req.PreviousBalance == nil && last.Status != billing.BillStatusCancelled && !last.RemainingBalance.IsZero() {
		params.PreviousBalance = last.RemainingBalance
		s.logger.Debug("Carrying over previous balance",
			zap.String("from_period", last.BillingPeriod),
			zap.String("to_period", period),
			zap.String("balance", last.RemainingBalance.StringFixed(billing.Scale)))
	}
	return nil
}

func (s *BillingService) defaultDueDate(year, month int) time.Time {
	return time.Date(year, time.Month(month), s.dueDay, 0, 0, 0, 0, s.clock().Location())
}

// ===================== Payments & reminders =====================

// RecordPayment applies a confirmed payment. A payment reference is applied at most once;
// replaying it returns the bill with AlreadyProcessed set.
func (s *BillingService) RecordPayment(ctx context.Context, id uuid.UUID, req RecordPaymentRequest) (*PaymentResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "billing.record_payment",
		telemetry.AttrBillID.String(id.String()),
		telemetry.AttrPaymentAmount.String(req.Amount.String()),
		telemetry.AttrPaymentRef.String(req.Reference),
	)
	defer span.End()

	result, err := s.recordPayment(ctx, id, req)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if result.AlreadyProcessed {
		span.AddEvent("payment_replayed", trace.WithAttributes(telemetry.AttrPaymentRef.String(req.Reference)))
	}
	return result, nil
}

func (s *BillingService) recordPayment(ctx context.Context, id uuid.UUID, req RecordPaymentRequest) (*PaymentResult, error) {
	amount := valueobject.NewMoney(req.Amount)
	if !amount.IsPositive() {
		return nil, shared.NewValidationError("INVALID_PAYMENT_AMOUNT", "Payment amount must be positive")
	}

	idemKey := ""
	if req.Reference != "" && s.idempotency != nil && s.idemConfig.Enabled {
		idemKey = paymentKeyPrefix + req.Reference
		isNew, err := s.idempotency.MarkProcessed(ctx, idemKey, s.idemConfig.TTL)
		if err != nil {
			return nil, fmt.Errorf("payment idempotency check: %w", err)
		}
		if !isNew {
			s.logger.Info("Payment already processed (idempotency check)",
				zap.String("bill_id", id.String()),
				zap.String("reference", req.Reference))
			return s.alreadyProcessed(ctx, id, req.Reference)
		}
	}

	alreadyApplied := false
	record, err := s.update(ctx, id, func(r *billing.BillingRecord) error {
		if r.Payments.HasReference(req.Reference) {
			alreadyApplied = true
			return nil
		}
		return r.ApplyPayment(amount, req.Reference, s.rates, s.clock())
	})
	if err != nil {
		s.releaseKey(ctx, idemKey)
		return nil, err
	}

	resp := ToBillResponse(record)
	if alreadyApplied {
		return &PaymentResult{Bill: &resp, AlreadyProcessed: true}, nil
	}

	s.logger.Info("Payment recorded",
		zap.String("bill_id", record.ID.String()),
		zap.String("billing_key", record.Key().String()),
		zap.String("amount", amount.Amount().StringFixed(billing.Scale)),
		zap.String("remaining_balance", record.RemainingBalance.StringFixed(billing.Scale)),
		zap.String("status", string(record.Status)))

	return &PaymentResult{Bill: &resp}, nil
}

// alreadyProcessed answers a replayed reference. A reference marked in the
// store but missing from this bill belongs to another bill or is still in flight.
func (s *BillingService) alreadyProcessed(ctx context.Context, id uuid.UUID, reference string) (*PaymentResult, error) {
	record, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !record.Payments.HasReference(reference) {
		return nil, shared.NewConflictError("PAYMENT_REFERENCE_IN_USE",
			fmt.Sprintf("Payment reference %s was already submitted for another bill or is still being processed", reference))
	}
	resp := ToBillResponse(record)
	return &PaymentResult{Bill: &resp, AlreadyProcessed: true}, nil
}

func (s *BillingService) releaseKey(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := s.idempotency.Release(ctx, key); err != nil {
		s.logger.Warn("Failed to release payment idempotency key",
			zap.String("key", key),
			zap.Error(err))
	}
}

// RecordReminder records that a payment reminder was dispatched for a bill
func (s *BillingService) RecordReminder(ctx context.Context, id uuid.UUID) (*BillResponse, error) {
	return s.mutate(ctx, id, "Reminder recorded", func(r *billing.BillingRecord) error {
		return r.RecordReminderSent(s.clock())
	})
}

// ===================== Edits & lifecycle =====================

// UpdateReadings replaces the meter readings of a bill. Omitted readings keep their current values.
func (s *BillingService) UpdateReadings(ctx context.Context, id uuid.UUID, req UpdateReadingsRequest) (*BillResponse, error) {
	return s.mutate(ctx, id, "Readings updated", func(r *billing.BillingRecord) error {
		electricity := mergeReading(req.Electricity, r.ElectricityPreviousReading, r.ElectricityCurrentReading)
		water := mergeReading(req.Water, r.WaterPreviousReading, r.WaterCurrentReading)
		return r.UpdateReadings(electricity, water, s.rates, s.clock())
	})
}

// UpdateCharges replaces the rent and flat fees of a bill
func (s *BillingService) UpdateCharges(ctx context.Context, id uuid.UUID, req UpdateChargesRequest) (*BillResponse, error) {
	return s.mutate(ctx, id, "Charges updated", func(r *billing.BillingRecord) error {
		return r.UpdateCharges(billing.Charges{
			RoomRent:             req.RoomRent,
			Fees:                 req.Fees.toDomain(),
			OtherFeesDescription: req.OtherFeesDescription,
		}, s.rates, s.clock())
	})
}

// ApplyDiscount sets the discount of a bill
func (s *BillingService) ApplyDiscount(ctx context.Context, id uuid.UUID, req ApplyDiscountRequest) (*BillResponse, error) {
	return s.mutate(ctx, id, "Discount applied", func(r *billing.BillingRecord) error {
		return r.ApplyDiscount(req.Amount, req.Reason, s.rates, s.clock())
	})
}

// AdjustPreviousBalance corrects the balance carried over from the last period
func (s *BillingService) AdjustPreviousBalance(ctx context.Context, id uuid.UUID, req AdjustPreviousBalanceRequest) (*BillResponse, error) {
	s.logger.Info("Adjusting previous balance",
		zap.String("bill_id", id.String()),
		zap.String("balance", req.Balance.StringFixed(billing.Scale)),
		zap.String("reason", req.Reason))
	return s.mutate(ctx, id, "Previous balance adjusted", func(r *billing.BillingRecord) error {
		return r.SetPreviousBalance(req.Balance, s.rates, s.clock())
	})
}

// Activate issues a draft bill for payment
func (s *BillingService) Activate(ctx context.Context, id uuid.UUID) (*BillResponse, error) {
	return s.mutate(ctx, id, "Bill activated", func(r *billing.BillingRecord) error {
		return r.Activate(s.clock())
	})
}

// Cancel voids a bill
func (s *BillingService) Cancel(ctx context.Context, id uuid.UUID, req CancelBillRequest) (*BillResponse, error) {
	return s.mutate(ctx, id, "Bill cancelled", func(r *billing.BillingRecord) error {
		return r.Cancel(req.Reason, s.clock())
	})
}

// MarkOverdueBills flags every outstanding bill past its due date and returns how many were flagged
func (s *BillingService) MarkOverdueBills(ctx context.Context, asOf time.Time) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "billing.mark_overdue")
	defer span.End()

	marked, err := s.markOverdueBills(ctx, asOf)
	span.SetAttributes(telemetry.AttrMarked.Int(marked))
	if err != nil {
		telemetry.RecordError(span, err)
	}
	return marked, err
}

func (s *BillingService) markOverdueBills(ctx context.Context, asOf time.Time) (int, error) {
	marked := 0
	for {
		candidates, err := s.repo.FindOverdueCandidates(ctx, asOf, overdueBatchSize)
		if err != nil {
			return marked, fmt.Errorf("find overdue candidates: %w", err)
		}

		progress := 0
		for i := range candidates {
			if err := ctx.Err(); err != nil {
				return marked, err
			}
			record := &candidates[i]
			if !record.IsOverdue(asOf) {
				continue
			}
			if err := record.MarkOverdue(asOf); err != nil {
				s.logger.Warn("Skipping bill in overdue sweep",
					zap.String("bill_id", record.ID.String()),
					zap.Error(err))
				continue
			}
			if err := s.repo.Save(ctx, record); err != nil {
				s.logger.Warn("Failed to save overdue bill",
					zap.String("bill_id", record.ID.String()),
					zap.Error(err))
				continue
			}
			s.publishEvents(ctx, record)
			progress++
		}
		marked += progress

		if len(candidates) < overdueBatchSize || progress == 0 {
			break
		}
	}

	s.logger.Info("Overdue sweep finished",
		zap.Time("as_of", asOf),
		zap.Int("marked", marked))
	return marked, nil
}

// ===================== Queries =====================

// GetBill gets a bill by ID
func (s *BillingService) GetBill(ctx context.Context, id uuid.UUID) (*BillResponse, error) {
	record, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := ToBillResponse(record)
	return &resp, nil
}

// GetBillByPeriod gets the bill of an accommodation for a period
func (s *BillingService) GetBillByPeriod(ctx context.Context, accommodationID uuid.UUID, year, month int) (*BillResponse, error) {
	period, err := billing.MakePeriod(year, month)
	if err != nil {
		return nil, err
	}
	record, err := s.repo.FindByAccommodationAndPeriod(ctx, accommodationID, period)
	if err != nil {
		return nil, err
	}
	resp := ToBillResponse(record)
	return &resp, nil
}

// ListBills lists bills with filtering and pagination
func (s *BillingService) ListBills(ctx context.Context, req ListBillsRequest) (shared.Paginated[BillResponse], error) {
	filter := s.toFilter(req)

	records, err := s.repo.FindAll(ctx, filter)
	if err != nil {
		return shared.Paginated[BillResponse]{}, err
	}
	total, err := s.repo.Count(ctx, filter)
	if err != nil {
		return shared.Paginated[BillResponse]{}, err
	}

	items := make([]BillResponse, len(records))
	for i := range records {
		items[i] = ToBillResponse(&records[i])
	}
	return shared.NewPaginated(items, total, filter.Page, filter.Limit()), nil
}

func (s *BillingService) toFilter(req ListBillsRequest) billing.BillingRecordFilter {
	filter := billing.DefaultBillingRecordFilter()
	filter.AccommodationID = req.AccommodationID
	filter.TenantID = req.TenantID
	filter.LandlordID = req.LandlordID
	filter.Period = req.Period
	if req.Status != "" {
		filter.Statuses = []billing.BillStatus{billing.BillStatus(req.Status)}
	}
	if req.Page > 0 {
		filter.Page = req.Page
	}
	if req.PageSize > 0 {
		filter.PageSize = req.PageSize
	}
	return filter
}

// GetPeriodSummary aggregates the bills of one period
func (s *BillingService) GetPeriodSummary(ctx context.Context, year, month int) (*PeriodSummaryResponse, error) {
	period, err := billing.MakePeriod(year, month)
	if err != nil {
		return nil, err
	}
	summary, err := s.repo.SumByPeriod(ctx, period)
	if err != nil {
		return nil, err
	}
	resp := ToPeriodSummaryResponse(summary)
	return &resp, nil
}

// ExportPeriod renders every bill of a period with the configured exporter
func (s *BillingService) ExportPeriod(ctx context.Context, year, month int) ([]byte, string, error) {
	if s.exporter == nil {
		return nil, "", shared.NewStateError("EXPORT_DISABLED", "Bill export is not configured")
	}
	period, err := billing.MakePeriod(year, month)
	if err != nil {
		return nil, "", err
	}

	filter := billing.DefaultBillingRecordFilter().WithPeriod(period)
	filter.OrderBy = "created_at"
	filter.OrderDir = "asc"

	var bills []billing.BillingRecord
	for page := 1; ; page++ {
		filter = filter.WithPagination(page, 100)
		batch, err := s.repo.FindAll(ctx, filter)
		if err != nil {
			return nil, "", err
		}
		bills = append(bills, batch...)
		if len(batch) < 100 {
			break
		}
	}

	data, err := s.exporter.ExportBills(period, bills)
	if err != nil {
		return nil, "", fmt.Errorf("export bills: %w", err)
	}
	filename := fmt.Sprintf("bills-%s%s", period, s.exporter.FileExtension())
	return data, filename, nil
}

// ExportContentType returns the MIME type of exported statements
func (s *BillingService) ExportContentType() string {
	if s.exporter == nil {
		return ""
	}
	return s.exporter.ContentType()
}

// ===================== Helpers =====================

// mutate loads a bill, applies fn, saves and publishes its events
func (s *BillingService) mutate(ctx context.Context, id uuid.UUID, action string, fn func(*billing.BillingRecord) error) (*BillResponse, error) {
	record, err := s.update(ctx, id, fn)
	if err != nil {
		return nil, err
	}

	s.logger.Info(action,
		zap.String("bill_id", record.ID.String()),
		zap.String("billing_key", record.Key().String()),
		zap.String("status", string(record.Status)))

	resp := ToBillResponse(record)
	return &resp, nil
}

// update runs load, fn and save, reloading on optimistic lock conflicts
func (s *BillingService) update(ctx context.Context, id uuid.UUID, fn func(*billing.BillingRecord) error) (*billing.BillingRecord, error) {
	var lastErr error
	for attempt := 1; attempt <= maxSaveAttempts; attempt++ {
		record, err := s.repo.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}

		versionBefore := record.Version
		if err := fn(record); err != nil {
			return nil, err
		}
		if record.Version == versionBefore {
			// nothing changed, e.g. a replayed payment
			return record, nil
		}

		err = s.repo.Save(ctx, record)
		if err == nil {
			s.publishEvents(ctx, record)
			return record, nil
		}
		if !errors.Is(err, shared.ErrConcurrencyConflict) {
			return nil, err
		}

		lastErr = err
		s.logger.Debug("Concurrent bill update, retrying",
			zap.String("bill_id", id.String()),
			zap.Int("attempt", attempt))
	}
	return nil, lastErr
}

func (s *BillingService) publishEvents(ctx context.Context, record *billing.BillingRecord) {
	events := record.GetDomainEvents()
	record.ClearDomainEvents()
	if s.eventPublisher == nil || len(events) == 0 {
		return
	}
	if err := s.eventPublisher.Publish(ctx, events...); err != nil {
		s.logger.Error("Failed to publish billing events",
			zap.String("bill_id", record.ID.String()),
			zap.Int("event_count", len(events)),
			zap.Error(err))
	}
}

func toReading(in ReadingInput) billing.UtilityReading {
	return billing.UtilityReading{
		PreviousReading: valueOrZero(in.PreviousReading),
		CurrentReading:  valueOrZero(in.CurrentReading),
		PricePerUnit:    ptrToNull(in.PricePerUnit),
	}
}

func mergeReading(in ReadingInput, previous, current decimal.Decimal) billing.UtilityReading {
	reading := billing.UtilityReading{
		PreviousReading: previous,
		CurrentReading:  current,
		PricePerUnit:    ptrToNull(in.PricePerUnit),
	}
	if in.PreviousReading != nil {
		reading.PreviousReading = *in.PreviousReading
	}
	if in.CurrentReading != nil {
		reading.CurrentReading = *in.CurrentReading
	}
	return reading
}
