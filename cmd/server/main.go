package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	appbilling "github.com/rental/backend/internal/application/billing"
	"github.com/rental/backend/internal/domain/billing"
	"github.com/rental/backend/internal/domain/shared"
	"github.com/rental/backend/internal/infrastructure/cache"
	"github.com/rental/backend/internal/infrastructure/config"
	"github.com/rental/backend/internal/infrastructure/event"
	"github.com/rental/backend/internal/infrastructure/export"
	"github.com/rental/backend/internal/infrastructure/logger"
	"github.com/rental/backend/internal/infrastructure/migration"
	"github.com/rental/backend/internal/infrastructure/persistence"
	"github.com/rental/backend/internal/infrastructure/scheduler"
	"github.com/rental/backend/internal/infrastructure/telemetry"
	"github.com/rental/backend/internal/interfaces/http/handler"
	"github.com/rental/backend/internal/interfaces/http/middleware"
	"github.com/rental/backend/internal/interfaces/http/router"
	"github.com/rental/backend/migrations"
	"go.uber.org/zap"

	_ "time/tzdata"
)

// version is overridden at build time with -ldflags "-X main.version=..."
var version = "dev"

//	@title			Rental Billing API
//	@version		1.0
//	@description	Monthly rent billing: bill generation, payments, reminders and period statements

//	@host		localhost:8080
//	@BasePath	/api/v1

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Output:  cfg.Log.Output,
		Service: cfg.App.Name,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	ctx := context.Background()

	// OpenTelemetry: traces, metrics and, optionally, the zap log bridge
	otelProviders, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		Insecure:          cfg.Telemetry.Insecure,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    version,
		MetricsInterval:   cfg.Telemetry.MetricsInterval,
		LogsEnabled:       cfg.Telemetry.LogsEnabled,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		if err := otelProviders.Shutdown(context.Background()); err != nil {
			log.Error("Error shutting down telemetry", zap.Error(err))
		}
	}()
	log = otelProviders.Bridge(log, cfg.Telemetry.ServiceName)

	log.Info("Starting rental billing backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	if cfg.Database.AutoMigrate {
		if err := runMigrations(&cfg.Database, log); err != nil {
			log.Fatal("Failed to apply migrations", zap.Error(err))
		}
	}

	// Create GORM logger backed by zap
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level), cfg.Telemetry.DBSlowQueryThreshold)

	db, err := persistence.NewDatabase(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	queryTracing := telemetry.NewQueryTracing(telemetry.DBTracingConfig{
		Enabled:    cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		LogFullSQL: cfg.Telemetry.DBLogFullSQL,
		SlowQuery:  cfg.Telemetry.DBSlowQueryThreshold,
	}, log)
	if err := db.DB.Use(queryTracing); err != nil {
		log.Fatal("Failed to register database tracing", zap.Error(err))
	}

	// Payment idempotency and generation locks, Redis-backed when enabled
	stores := cache.NewStoreFactory(cfg.Redis, cache.WithLogger(log))
	if err := stores.Connect(ctx); err != nil {
		log.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer func() {
		if err := stores.Close(); err != nil {
			log.Error("Error closing Redis client", zap.Error(err))
		}
	}()
	idempotencyStore := stores.IdempotencyStore()
	defer idempotencyStore.Close()

	// Repositories and read models
	billingRepo := persistence.NewGormBillingRecordRepository(db.DB)
	contractSource := persistence.NewGormContractSource(db.DB)
	readingSource := persistence.NewGormMeterReadingSource(db.DB)

	// Event bus with the audit log handler and, optionally, the Kafka publisher
	eventBus := event.NewInMemoryEventBus(log)
	eventBus.Subscribe(event.NewLoggingHandler(log))

	billingMetrics, err := telemetry.NewBillingMetrics(otelProviders.Meter(telemetry.TracerName), log)
	if err != nil {
		log.Fatal("Failed to create billing metrics", zap.Error(err))
	}
	eventBus.Subscribe(billingMetrics)

	if cfg.Kafka.Enabled {
		producer, err := event.NewSyncProducer(cfg.Kafka)
		if err != nil {
			log.Fatal("Failed to create Kafka producer", zap.Error(err))
		}
		kafkaPublisher := event.NewKafkaPublisher(producer, cfg.Kafka.Topic, event.NewEventSerializer(), log)
		eventBus.Subscribe(kafkaPublisher)
		defer func() {
			if err := kafkaPublisher.Close(); err != nil {
				log.Error("Error closing Kafka producer", zap.Error(err))
			}
		}()
		log.Info("Kafka event publisher enabled",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic),
		)
	}

	if err := eventBus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	defer func() {
		if err := eventBus.Stop(context.Background()); err != nil {
			log.Error("Error stopping event bus", zap.Error(err))
		}
	}()

	var exporter appbilling.StatementExporter
	if cfg.Export.Enabled {
		exporter = export.NewBillingExporter(cfg.Export.SheetName)
	}

	billingService := appbilling.NewBillingService(appbilling.BillingServiceConfig{
		Repo:           billingRepo,
		EventPublisher: eventBus,
		Idempotency:    idempotencyStore,
		IdempotencyConfig: shared.IdempotencyConfig{
			TTL:     cfg.Billing.PaymentIdempotencyTTL,
			Enabled: true,
		},
		Exporter: exporter,
		Rates: billing.RateTable{
			ElectricityPerUnit: cfg.Billing.ElectricityRate,
			WaterPerUnit:       cfg.Billing.WaterRate,
		},
		DueDay: cfg.Billing.DueDay,
		Logger: log,
	})

	var jobs handler.JobRunner
	if cfg.Scheduler.Enabled {
		generationJob := appbilling.NewMonthlyBillingJob(
			billingService,
			contractSource,
			readingSource,
			stores.Locker(),
			appbilling.MonthlyBillingJobConfig{
				Workers: cfg.Billing.GenerationWorkers,
				LockTTL: cfg.Billing.GenerationLockTTL,
			},
			log,
		)
		billingScheduler, err := scheduler.NewBillingScheduler(cfg.Scheduler, generationJob, billingService, log)
		if err != nil {
			log.Fatal("Failed to create billing scheduler", zap.Error(err))
		}
		billingScheduler.SetObserver(billingMetrics)
		if err := billingScheduler.Start(ctx); err != nil {
			log.Fatal("Failed to start billing scheduler", zap.Error(err))
		}
		defer func() {
			if err := billingScheduler.Stop(context.Background()); err != nil {
				log.Error("Error stopping billing scheduler", zap.Error(err))
			}
		}()
		jobs = billingScheduler
		log.Info("Billing scheduler started",
			zap.String("generation_cron", cfg.Scheduler.GenerationCron),
			zap.String("overdue_cron", cfg.Scheduler.OverdueCron),
			zap.String("timezone", cfg.Scheduler.Timezone),
		)
	}

	// Set Gin mode based on environment
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	middleware.SetupValidator()

	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	// Middleware order: request ID, tracing, recovery, access log, security headers, CORS, body limit
	engine.Use(logger.RequestID())
	engine.Use(middleware.Tracing(middleware.TracingConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Enabled:     cfg.Telemetry.Enabled,
	}))
	engine.Use(middleware.SpanEnricher())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.AccessLog(log))
	engine.Use(middleware.SecureHeaders(cfg.App.Env == "production"))

	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowOrigins = cfg.HTTP.CORSOrigins
	engine.Use(middleware.CORS(corsConfig))
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodyBytes))

	systemHandler := handler.NewSystemHandler(cfg.App.Name, version).
		AddCheck("database", db.PingContext).
		AddCheck("redis", stores.Ping)

	// Health check endpoint (outside API versioning)
	engine.GET("/health", systemHandler.Health)

	router.NewAPI(engine, router.WithMiddleware(middleware.Timeout(cfg.HTTP.RequestTimeout))).
		Add(handler.NewBillingHandler(billingService, jobs)).
		Add(router.NewGroup("/system").GET("/info", systemHandler.GetSystemInfo)).
		Mount()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
		return
	}

	log.Info("Server exited gracefully")
}

// runMigrations applies the embedded migrations over a dedicated connection;
// closing the migrator closes the connection it was given
func runMigrations(cfg *config.DatabaseConfig, log *zap.Logger) error {
	conn, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return err
	}

	migrator, err := migration.New(conn, migrations.FS, log)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer func() {
		if err := migrator.Close(); err != nil {
			log.Warn("Error closing migrator", zap.Error(err))
		}
	}()

	return migrator.Up()
}
