// Package integration runs the billing store against real PostgreSQL and
// Redis instances started with testcontainers.
package integration

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/rental/backend/internal/infrastructure/config"
	"github.com/rental/backend/internal/infrastructure/migration"
	"github.com/rental/backend/internal/infrastructure/persistence"
	"github.com/rental/backend/internal/infrastructure/persistence/models"
	"github.com/rental/backend/migrations"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// postgresContainer is started once per package run and migrated once
var postgresContainer struct {
	sync.Mutex
	container *tcpostgres.PostgresContainer
	cfg       config.DatabaseConfig
}

// TestDB is a connection to the package's migrated PostgreSQL container
type TestDB struct {
	DB *gorm.DB
	t  *testing.T
}

// NewSharedTestDB connects to the package container, starting and migrating
// it on first use. Tests share its data and clean up with CleanTables.
func NewSharedTestDB(t *testing.T) *TestDB {
	t.Helper()

	cfg := startPostgres(t)
	gormLog := gormlogger.Discard
	if os.Getenv("TEST_DB_DEBUG") != "" {
		gormLog = gormlogger.Default.LogMode(gormlogger.Info)
	}

	database, err := persistence.NewDatabase(&cfg, gormLog)
	require.NoError(t, err, "Failed to connect to test database")
	t.Cleanup(func() { _ = database.Close() })

	return &TestDB{DB: database.DB, t: t}
}

func startPostgres(t *testing.T) config.DatabaseConfig {
	t.Helper()

	postgresContainer.Lock()
	defer postgresContainer.Unlock()
	if postgresContainer.container != nil {
		return postgresContainer.cfg
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("rental_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("admin123"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	cfg := config.DatabaseConfig{
		Host:            host,
		Port:            port.Int(),
		User:            "postgres",
		Password:        "admin123",
		DBName:          "rental_test",
		SSLMode:         "disable",
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: time.Minute,
	}
	migrateSchema(t, cfg)

	postgresContainer.container = container
	postgresContainer.cfg = cfg
	return cfg
}

// migrateSchema applies the embedded migrations the way the server does at startup
func migrateSchema(t *testing.T, cfg config.DatabaseConfig) {
	t.Helper()

	conn, err := sql.Open("postgres", cfg.DSN())
	require.NoError(t, err)
	m, err := migration.New(conn, migrations.FS, zap.NewNop())
	require.NoError(t, err, "Failed to create migrator")
	defer func() { _ = m.Close() }()

	require.NoError(t, m.Up(), "Failed to run migrations")
}

// stopPostgres terminates the package container; TestMain calls it
func stopPostgres() {
	postgresContainer.Lock()
	defer postgresContainer.Unlock()
	if postgresContainer.container == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_ = postgresContainer.container.Terminate(ctx)
	postgresContainer.container = nil
}

// CleanTables truncates every table except the migration bookkeeping
func (tdb *TestDB) CleanTables() {
	tdb.t.Helper()

	var tables []string
	require.NoError(tdb.t, tdb.DB.Raw(
		`SELECT tablename FROM pg_tables WHERE schemaname = 'public' AND tablename <> 'schema_migrations'`,
	).Scan(&tables).Error)

	for _, table := range tables {
		if err := tdb.DB.Exec(fmt.Sprintf("TRUNCATE TABLE %q CASCADE", table)).Error; err != nil {
			tdb.t.Logf("Warning: failed to truncate %s: %v", table, err)
		}
	}
}

// TestContract describes a rental_contracts row
type TestContract struct {
	AccommodationID  uuid.UUID
	MonthlyRent      int64
	InternetFee      int64
	ElectricityPrice int64 // 0 leaves the contract price unset
	WaterPrice       int64
	StartDate        time.Time
	EndDate          *time.Time
	Status           string // defaults to active
}

// CreateTestContract inserts a contract into the read model and returns its ID
func (tdb *TestDB) CreateTestContract(c TestContract) uuid.UUID {
	tdb.t.Helper()

	if c.Status == "" {
		c.Status = "active"
	}
	model := models.RentalContractModel{
		ID:              uuid.New(),
		AccommodationID: c.AccommodationID,
		TenantID:        uuid.New(),
		LandlordID:      uuid.New(),
		MonthlyRent:     decimal.NewFromInt(c.MonthlyRent),
		InternetFee:     decimal.NewFromInt(c.InternetFee),
		GarbageFee:      decimal.Zero,
		ParkingFee:      decimal.Zero,
		StartDate:       c.StartDate,
		EndDate:         c.EndDate,
		Status:          c.Status,
	}
	if c.ElectricityPrice > 0 {
		model.ElectricityPrice = decimal.NewNullDecimal(decimal.NewFromInt(c.ElectricityPrice))
	}
	if c.WaterPrice > 0 {
		model.WaterPrice = decimal.NewNullDecimal(decimal.NewFromInt(c.WaterPrice))
	}

	require.NoError(tdb.t, tdb.DB.Create(&model).Error, "Failed to create test contract")
	return model.ID
}

// CreateTestMeterReading records the meter readings of an accommodation for a period
func (tdb *TestDB) CreateTestMeterReading(accommodationID uuid.UUID, period string, electricity, water int64) {
	tdb.t.Helper()

	model := models.MeterReadingModel{
		ID:              uuid.New(),
		AccommodationID: accommodationID,
		BillingPeriod:   period,
		Electricity:     decimal.NewFromInt(electricity),
		Water:           decimal.NewFromInt(water),
		ReadAt:          time.Now(),
	}
	require.NoError(tdb.t, tdb.DB.Create(&model).Error, "Failed to create test meter reading")
}
