package billing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rental/backend/internal/domain/billing"
	"github.com/rental/backend/internal/domain/shared"
	"github.com/rental/backend/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ActiveContract is the billing-relevant view of a rental contract
type ActiveContract struct {
	ContractID       uuid.UUID
	AccommodationID  uuid.UUID
	PropertyID       *uuid.UUID
	TenantID         uuid.UUID
	LandlordID       uuid.UUID
	RoomRent         decimal.Decimal
	Fees             billing.FlatFees
	ElectricityPrice *decimal.Decimal // Per-contract override of the rate table
	WaterPrice       *decimal.Decimal
}

// ContractSource lists the contracts that must be billed for a period
type ContractSource interface {
	ListActiveContracts(ctx context.Context, period string) ([]ActiveContract, error)
}

// MeterReading holds the current meter readings of an accommodation
type MeterReading struct {
	Electricity decimal.Decimal
	Water       decimal.Decimal
}

// MeterReadingSource provides current meter readings.
// It returns nil without error when the meters were not read yet.
type MeterReadingSource interface {
	CurrentReading(ctx context.Context, accommodationID uuid.UUID, period string) (*MeterReading, error)
}

// BillingLocker serializes bill generation per billing key across instances
type BillingLocker interface {
	// TryLock acquires the lock for key. It returns false when another holder owns it.
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Unlock releases a lock acquired by this locker
	Unlock(ctx context.Context, key string) error
}

// GenerationReport summarizes one run of the monthly generation job
type GenerationReport struct {
	Period    string            `json:"period"`
	Created   int               `json:"created"`
	Skipped   int               `json:"skipped"`
	Failed    int               `json:"failed"`
	Errors    map[string]string `json:"errors,omitempty"` // Accommodation ID -> error
	StartedAt time.Time         `json:"started_at"`
	Duration  time.Duration     `json:"duration"`
}

// MonthlyBillingJobConfig holds the configuration of the generation job
type MonthlyBillingJobConfig struct {
	Workers int           // Parallel accommodations, defaults to 4
	LockTTL time.Duration // Per-key lock lifetime, defaults to 1 minute
}

// MonthlyBillingJob creates the monthly bills of every active contract
type MonthlyBillingJob struct {
	service   *BillingService
	contracts ContractSource
	readings  MeterReadingSource
	locker    BillingLocker
	workers   int
	lockTTL   time.Duration
	logger    *zap.Logger
}

// NewMonthlyBillingJob creates a new MonthlyBillingJob.
// readings and locker may be nil.
func NewMonthlyBillingJob(
	service *BillingService,
	contracts ContractSource,
	readings MeterReadingSource,
	locker BillingLocker,
	config MonthlyBillingJobConfig,
	logger *zap.Logger,
) *MonthlyBillingJob {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Workers <= 0 {
		config.Workers = 4
	}
	if config.LockTTL <= 0 {
		config.LockTTL = time.Minute
	}
	return &MonthlyBillingJob{
		service:   service,
		contracts: contracts,
		readings:  readings,
		locker:    locker,
		workers:   config.Workers,
		lockTTL:   config.LockTTL,
		logger:    logger.Named("billing_job"),
	}
}

// Run generates the bills of year/month. Accommodations are processed in
// parallel; an existing bill for the period counts as skipped.
func (j *MonthlyBillingJob) Run(ctx context.Context, year, month int) (*GenerationReport, error) {
	period, err := billing.MakePeriod(year, month)
	if err != nil {
		return nil, err
	}

	report := &GenerationReport{
		Period:    period,
		Errors:    make(map[string]string),
		StartedAt: j.service.clock(),
	}

	ctx, span := telemetry.StartSpan(ctx, "billing.monthly_generation", telemetry.AttrBillingPeriod.String(period))
	defer span.End()

	contracts, err := j.contracts.ListActiveContracts(ctx, period)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("list active contracts: %w", err)
	}
	span.SetAttributes(telemetry.AttrContracts.Int(len(contracts)))

	j.logger.Info("Monthly billing started",
		zap.String("period", period),
		zap.Int("contracts", len(contracts)),
		zap.Int("workers", j.workers))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.workers)

	for _, contract := range contracts {
		g.Go(func() error {
			outcome, err := j.generate(gctx, contract, year, month, period)

			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case outcomeCreated:
				report.Created++
			case outcomeSkipped:
				report.Skipped++
			default:
				report.Failed++
				report.Errors[contract.AccommodationID.String()] = err.Error()
			}
			// a failed accommodation must not stop the others
			return nil
		})
	}
	_ = g.Wait()

	report.Duration = j.service.clock().Sub(report.StartedAt)
	span.SetAttributes(
		telemetry.AttrCreated.Int(report.Created),
		telemetry.AttrSkipped.Int(report.Skipped),
		telemetry.AttrFailed.Int(report.Failed),
	)

	j.logger.Info("Monthly billing finished",
		zap.String("period", period),
		zap.Int("created", report.Created),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
		zap.Duration("duration", report.Duration))

	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

type generationOutcome int

const (
	outcomeFailed generationOutcome = iota
	outcomeCreated
	outcomeSkipped
)

func (j *MonthlyBillingJob) generate(ctx context.Context, contract ActiveContract, year, month int, period string) (generationOutcome, error) {
	if err := ctx.Err(); err != nil {
		return outcomeFailed, err
	}

	key := billing.UniquenessKey(contract.AccommodationID, period).String()
	if j.locker != nil {
		acquired, err := j.locker.TryLock(ctx, key, j.lockTTL)
		if err != nil {
			return outcomeFailed, fmt.Errorf("acquire lock: %w", err)
		}
		if !acquired {
			j.logger.Debug("Bill generation already running elsewhere", zap.String("billing_key", key))
			return outcomeSkipped, nil
		}
		defer func() {
			if err := j.locker.Unlock(context.WithoutCancel(ctx), key); err != nil {
				j.logger.Warn("Failed to release billing lock", zap.String("billing_key", key), zap.Error(err))
			}
		}()
	}

	req := GenerateBillRequest{
		AccommodationID: contract.AccommodationID,
		TenantID:        contract.TenantID,
		LandlordID:      contract.LandlordID,
		PropertyID:      contract.PropertyID,
		BillingYear:     year,
		BillingMonth:    month,
		RoomRent:        contract.RoomRent,
		Fees: FeesInput{
			Internet: contract.Fees.Internet,
			Garbage:  contract.Fees.Garbage,
			Parking:  contract.Fees.Parking,
			Other:    contract.Fees.Other,
		},
		Electricity:     ReadingInput{PricePerUnit: contract.ElectricityPrice},
		Water:           ReadingInput{PricePerUnit: contract.WaterPrice},
		IsAutoGenerated: true,
	}
	contractID := contract.ContractID
	req.ContractID = &contractID

	// With readings the bill is issued at once, without them it waits as a draft
	if j.readings != nil {
		reading, err := j.readings.CurrentReading(ctx, contract.AccommodationID, period)
		if err != nil {
			return outcomeFailed, fmt.Errorf("load meter readings: %w", err)
		}
		if reading != nil {
			electricity, water := reading.Electricity, reading.Water
			req.Electricity.CurrentReading = &electricity
			req.Water.CurrentReading = &water
			req.Activate = true
		}
	}

	if _, err := j.service.GenerateBill(ctx, req); err != nil {
		if shared.IsConflictError(err) {
			return outcomeSkipped, nil
		}
		j.logger.Warn("Bill generation failed",
			zap.String("billing_key", key),
			zap.Error(err))
		return outcomeFailed, err
	}
	return outcomeCreated, nil
}
