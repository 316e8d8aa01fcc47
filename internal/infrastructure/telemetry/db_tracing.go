package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultSlowQuery = 200 * time.Millisecond

// DBTracingConfig controls query spans for the billing store.
type DBTracingConfig struct {
	Enabled bool
	// LogFullSQL keeps bound variables in span statements.
	LogFullSQL bool
	SlowQuery  time.Duration
	DBName     string
}

// QueryTracing is a gorm plugin. It installs otelgorm and then annotates each
// statement span with the table, affected rows, real failures and slowness.
type QueryTracing struct {
	cfg    DBTracingConfig
	logger *zap.Logger
}

var _ gorm.Plugin = (*QueryTracing)(nil)

func NewQueryTracing(cfg DBTracingConfig, logger *zap.Logger) *QueryTracing {
	if cfg.SlowQuery <= 0 {
		cfg.SlowQuery = defaultSlowQuery
	}
	if cfg.DBName == "" {
		cfg.DBName = "postgresql"
	}
	return &QueryTracing{cfg: cfg, logger: logger}
}

func (q *QueryTracing) Name() string { return "rental:query_tracing" }

// Initialize is called by db.Use. A disabled config leaves db untouched.
func (q *QueryTracing) Initialize(db *gorm.DB) error {
	if !q.cfg.Enabled {
		q.logger.Debug("query tracing disabled")
		return nil
	}

	opts := []otelgorm.Option{otelgorm.WithDBName(q.cfg.DBName)}
	if !q.cfg.LogFullSQL {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}

	cb := db.Callback()
	hooks := []struct {
		name     string
		fn       func(*gorm.DB)
		register func(string, func(*gorm.DB)) error
	}{
		{"query_timing:start_create", stampStart, cb.Create().Before("gorm:create").Register},
		{"query_timing:end_create", q.annotate, cb.Create().After("gorm:create").Register},
		{"query_timing:start_query", stampStart, cb.Query().Before("gorm:query").Register},
		{"query_timing:end_query", q.annotate, cb.Query().After("gorm:query").Register},
		{"query_timing:start_update", stampStart, cb.Update().Before("gorm:update").Register},
		{"query_timing:end_update", q.annotate, cb.Update().After("gorm:update").Register},
		{"query_timing:start_delete", stampStart, cb.Delete().Before("gorm:delete").Register},
		{"query_timing:end_delete", q.annotate, cb.Delete().After("gorm:delete").Register},
		{"query_timing:start_row", stampStart, cb.Row().Before("gorm:row").Register},
		{"query_timing:end_row", q.annotate, cb.Row().After("gorm:row").Register},
		{"query_timing:start_raw", stampStart, cb.Raw().Before("gorm:raw").Register},
		{"query_timing:end_raw", q.annotate, cb.Raw().After("gorm:raw").Register},
	}
	for _, h := range hooks {
		if err := h.register(h.name, h.fn); err != nil {
			return err
		}
	}

	q.logger.Info("query tracing enabled",
		zap.Bool("log_full_sql", q.cfg.LogFullSQL),
		zap.Duration("slow_query", q.cfg.SlowQuery),
	)
	return nil
}

type queryStartKey struct{}

func stampStart(db *gorm.DB) {
	if ctx := db.Statement.Context; ctx != nil {
		db.Statement.Context = context.WithValue(ctx, queryStartKey{}, time.Now())
	}
}

func (q *QueryTracing) annotate(db *gorm.DB) {
	stmt := db.Statement
	if stmt.Context == nil {
		return
	}
	span := trace.SpanFromContext(stmt.Context)
	if !span.IsRecording() {
		return
	}

	if stmt.Table != "" {
		span.SetAttributes(attribute.String("db.sql.table", stmt.Table))
	}
	if stmt.RowsAffected >= 0 {
		span.SetAttributes(attribute.Int64("db.rows_affected", stmt.RowsAffected))
	}
	if err := db.Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	started, ok := stmt.Context.Value(queryStartKey{}).(time.Time)
	if !ok {
		return
	}
	if took := time.Since(started); took > q.cfg.SlowQuery {
		span.SetAttributes(
			attribute.Bool("db.slow_query", true),
			attribute.Int64("db.query_duration_ms", took.Milliseconds()),
		)
		span.AddEvent("slow_query", trace.WithAttributes(
			attribute.Int64("threshold_ms", q.cfg.SlowQuery.Milliseconds()),
		))
	}
}
