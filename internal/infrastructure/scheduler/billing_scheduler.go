package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	appbilling "github.com/rental/backend/internal/application/billing"
	"github.com/rental/backend/internal/infrastructure/config"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job names
const (
	JobMonthlyGeneration = "monthly_generation"
	JobOverdueSweep      = "overdue_sweep"
)

var (
	ErrInvalidConfig       = errors.New("invalid scheduler configuration")
	ErrSchedulerNotRunning = errors.New("scheduler is not running")
	// ErrJobAlreadyRunning is reported in JobRun.Error when a trigger finds
	// the same job in progress.
	ErrJobAlreadyRunning = errors.New("job already running")
)

// BillGenerator creates the bills of one billing month
type BillGenerator interface {
	Run(ctx context.Context, year, month int) (*appbilling.GenerationReport, error)
}

// OverdueMarker flags outstanding bills past their due date
type OverdueMarker interface {
	MarkOverdueBills(ctx context.Context, asOf time.Time) (int, error)
}

// JobObserver is notified after every job run
type JobObserver interface {
	ObserveJobRun(ctx context.Context, job string, duration time.Duration, err error)
}

// JobRun records the outcome of the most recent run of a job
type JobRun struct {
	Job       string        `json:"job"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`
	Processed int           `json:"processed"`
	TimedOut  bool          `json:"timed_out,omitempty"`
}

// JobStatus describes a registered job
type JobStatus struct {
	Job      string    `json:"job"`
	Schedule string    `json:"schedule"`
	NextRun  time.Time `json:"next_run"`
	LastRun  *JobRun   `json:"last_run,omitempty"`
}

// BillingScheduler runs monthly bill generation and the daily overdue sweep
// on cron schedules evaluated in the configured timezone
type BillingScheduler struct {
	config    config.SchedulerConfig
	location  *time.Location
	generator BillGenerator
	overdue   OverdueMarker
	observer  JobObserver
	logger    *zap.Logger
	now       func() time.Time

	cron    *cron.Cron
	entries map[string]cron.EntryID
	specs   map[string]string

	mu      sync.Mutex
	running bool
	active  map[string]bool
	lastRun map[string]JobRun
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewBillingScheduler validates the cron specs and registers both jobs
func NewBillingScheduler(cfg config.SchedulerConfig, generator BillGenerator, overdue OverdueMarker, logger *zap.Logger) (*BillingScheduler, error) {
	if generator == nil || overdue == nil {
		return nil, fmt.Errorf("%w: generator and overdue marker are required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "UTC"
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q: %v", ErrInvalidConfig, cfg.Timezone, err)
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 30 * time.Minute
	}

	logger = logger.Named("billing_scheduler")
	cronLog := newCronLogger(logger)
	s := &BillingScheduler{
		config:    cfg,
		location:  loc,
		generator: generator,
		overdue:   overdue,
		logger:    logger,
		now:       time.Now,
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
		entries: make(map[string]cron.EntryID),
		specs:   make(map[string]string),
		active:  make(map[string]bool),
		lastRun: make(map[string]JobRun),
	}

	jobs := []struct {
		name string
		spec string
		run  func()
	}{
		{JobMonthlyGeneration, cfg.GenerationCron, func() { _ = s.runScheduled(JobMonthlyGeneration, s.generate) }},
		{JobOverdueSweep, cfg.OverdueCron, func() { _ = s.runScheduled(JobOverdueSweep, s.sweepOverdue) }},
	}
	for _, job := range jobs {
		id, err := s.cron.AddFunc(job.spec, job.run)
		if err != nil {
			return nil, fmt.Errorf("%w: %s schedule %q: %v", ErrInvalidConfig, job.name, job.spec, err)
		}
		s.entries[job.name] = id
		s.specs[job.name] = job.spec
	}

	return s, nil
}

// SetObserver registers an observer for job runs. Call it before Start.
func (s *BillingScheduler) SetObserver(observer JobObserver) {
	s.observer = observer
}

// Start starts the cron loop. Jobs started by the scheduler are cancelled
// when ctx is done or Stop is called.
func (s *BillingScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	s.cron.Start()

	s.logger.Info("Billing scheduler started",
		zap.String("generation_cron", s.specs[JobMonthlyGeneration]),
		zap.String("overdue_cron", s.specs[JobOverdueSweep]),
		zap.String("timezone", s.location.String()),
	)
	return nil
}

// Stop stops scheduling, cancels running jobs and waits for them or ctx
func (s *BillingScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	done := s.cron.Stop()

	select {
	case <-done.Done():
		s.logger.Info("Billing scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Billing scheduler stop timed out")
		return ctx.Err()
	}
}

// IsRunning reports whether the cron loop is running
func (s *BillingScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// TriggerGeneration runs monthly generation immediately for the current month
func (s *BillingScheduler) TriggerGeneration() (JobRun, error) {
	return s.trigger(JobMonthlyGeneration, s.generate)
}

// TriggerOverdueSweep runs the overdue sweep immediately
func (s *BillingScheduler) TriggerOverdueSweep() (JobRun, error) {
	return s.trigger(JobOverdueSweep, s.sweepOverdue)
}

// Status returns the registered jobs with their next and last runs
func (s *BillingScheduler) Status() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	statuses := make([]JobStatus, 0, len(s.entries))
	for _, name := range []string{JobMonthlyGeneration, JobOverdueSweep} {
		status := JobStatus{
			Job:      name,
			Schedule: s.specs[name],
			NextRun:  s.cron.Entry(s.entries[name]).Next,
		}
		if run, ok := s.lastRun[name]; ok {
			status.LastRun = &run
		}
		statuses = append(statuses, status)
	}
	return statuses
}

func (s *BillingScheduler) trigger(name string, fn func(context.Context, time.Time) (int, error)) (JobRun, error) {
	if !s.IsRunning() {
		return JobRun{}, ErrSchedulerNotRunning
	}
	run := s.runScheduled(name, fn)
	if run.Error != "" {
		return run, errors.New(run.Error)
	}
	return run, nil
}

// runScheduled executes one job with the configured timeout and records its outcome.
// A job already in progress is not started twice.
func (s *BillingScheduler) runScheduled(name string, fn func(context.Context, time.Time) (int, error)) JobRun {
	s.mu.Lock()
	if s.active[name] {
		s.mu.Unlock()
		s.logger.Warn("Skipping job, previous run still in progress", zap.String("job", name))
		return JobRun{Job: name, Error: ErrJobAlreadyRunning.Error()}
	}
	parent := s.ctx
	if parent == nil {
		parent = context.Background()
	}
	s.active[name] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.active, name)
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(parent, s.config.JobTimeout)
	defer cancel()

	begin := time.Now()
	startedAt := s.now().In(s.location)
	s.logger.Info("Billing job started", zap.String("job", name), zap.Time("started_at", startedAt))

	processed, err := fn(ctx, startedAt)
	run := JobRun{
		Job:       name,
		StartedAt: startedAt,
		Duration:  time.Since(begin),
		Processed: processed,
		TimedOut:  errors.Is(err, context.DeadlineExceeded),
	}
	if err != nil {
		run.Error = err.Error()
		s.logger.Error("Billing job failed",
			zap.String("job", name),
			zap.Int("processed", processed),
			zap.Bool("timed_out", run.TimedOut),
			zap.Error(err),
		)
	} else {
		s.logger.Info("Billing job finished",
			zap.String("job", name),
			zap.Int("processed", processed),
			zap.Duration("duration", run.Duration),
		)
	}

	s.mu.Lock()
	s.lastRun[name] = run
	s.mu.Unlock()

	if s.observer != nil {
		s.observer.ObserveJobRun(parent, name, run.Duration, err)
	}
	return run
}

// generate creates the bills of the month the run falls in
func (s *BillingScheduler) generate(ctx context.Context, now time.Time) (int, error) {
	report, err := s.generator.Run(ctx, now.Year(), int(now.Month()))
	if err != nil {
		return 0, err
	}
	if report.Failed > 0 {
		s.logger.Warn("Some bills could not be generated",
			zap.String("period", report.Period),
			zap.Int("failed", report.Failed),
			zap.Any("errors", report.Errors),
		)
	}
	return report.Created, nil
}

func (s *BillingScheduler) sweepOverdue(ctx context.Context, now time.Time) (int, error) {
	return s.overdue.MarkOverdueBills(ctx, now)
}

// cronLogger adapts zap to cron.Logger
type cronLogger struct {
	sugar *zap.SugaredLogger
}

func newCronLogger(logger *zap.Logger) cronLogger {
	return cronLogger{sugar: logger.Sugar()}
}

// Info logs cron's routine messages at debug level
func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

// Error logs cron errors, including recovered job panics
func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}

var _ cron.Logger = cronLogger{}
