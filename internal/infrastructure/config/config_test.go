package config

import (
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testEnvKeys = []string{
	"RENTAL_APP_NAME",
	"RENTAL_APP_ENV",
	"RENTAL_APP_PORT",
	"RENTAL_DATABASE_HOST",
	"RENTAL_DATABASE_PORT",
	"RENTAL_DATABASE_PASSWORD",
	"RENTAL_DATABASE_SSLMODE",
	"RENTAL_DATABASE_MAX_OPEN_CONNS",
	"RENTAL_DATABASE_MAX_IDLE_CONNS",
	"RENTAL_BILLING_ELECTRICITY_RATE",
	"RENTAL_BILLING_WATER_RATE",
	"RENTAL_BILLING_DUE_DAY",
	"RENTAL_SCHEDULER_ENABLED",
	"RENTAL_SCHEDULER_GENERATION_CRON",
	"RENTAL_SCHEDULER_TIMEZONE",
	"RENTAL_KAFKA_ENABLED",
	"RENTAL_KAFKA_TOPIC",
	"RENTAL_TELEMETRY_ENABLED",
	"RENTAL_TELEMETRY_SAMPLING_RATIO",
	"RENTAL_TELEMETRY_SERVICE_NAME",
	"RENTAL_TELEMETRY_DB_LOG_FULL_SQL",
}

// clearEnv unsets every variable Load reads; t.Setenv restores them after the test
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range testEnvKeys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoad(t *testing.T) {
	t.Run("loads default values when env vars not set", func(t *testing.T) {
		clearEnv(t)

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "rental-backend", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "8080", cfg.App.Port)
		assert.Equal(t, "localhost", cfg.Database.Host)
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.Equal(t, "rental", cfg.Database.DBName)
		assert.Equal(t, 25, cfg.Database.MaxOpenConns)
		assert.Equal(t, 5, cfg.Database.MaxIdleConns)
		assert.Equal(t, time.Hour, cfg.Database.ConnMaxLifetime)
		assert.Equal(t, "localhost:6379", cfg.Redis.Addr())

		assert.True(t, cfg.Billing.ElectricityRate.Equal(decimal.NewFromInt(3500)))
		assert.True(t, cfg.Billing.WaterRate.Equal(decimal.NewFromInt(15000)))
		assert.Equal(t, 10, cfg.Billing.DueDay)
		assert.Equal(t, 30*24*time.Hour, cfg.Billing.PaymentIdempotencyTTL)
		assert.Equal(t, 4, cfg.Billing.GenerationWorkers)

		assert.Equal(t, "0 1 1 * *", cfg.Scheduler.GenerationCron)
		assert.Equal(t, "0 2 * * *", cfg.Scheduler.OverdueCron)
		assert.Equal(t, "rental.billing.events", cfg.Kafka.Topic)
		assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
		assert.Equal(t, "Bills", cfg.Export.SheetName)

		assert.False(t, cfg.Telemetry.Enabled)
		assert.Equal(t, "localhost:4317", cfg.Telemetry.CollectorEndpoint)
		assert.Equal(t, 1.0, cfg.Telemetry.SamplingRatio)
		assert.Equal(t, "rental-backend", cfg.Telemetry.ServiceName)
		assert.Equal(t, 60*time.Second, cfg.Telemetry.MetricsInterval)
		assert.Equal(t, 200*time.Millisecond, cfg.Telemetry.DBSlowQueryThreshold)
	})

	t.Run("loads values from environment variables with RENTAL prefix", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("RENTAL_APP_NAME", "test-app")
		t.Setenv("RENTAL_APP_PORT", "9000")
		t.Setenv("RENTAL_DATABASE_HOST", "testdb.local")
		t.Setenv("RENTAL_DATABASE_PORT", "5433")
		t.Setenv("RENTAL_BILLING_ELECTRICITY_RATE", "3800.5")
		t.Setenv("RENTAL_BILLING_WATER_RATE", "16000")
		t.Setenv("RENTAL_BILLING_DUE_DAY", "5")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "test-app", cfg.App.Name)
		assert.Equal(t, "9000", cfg.App.Port)
		assert.Equal(t, "testdb.local", cfg.Database.Host)
		assert.Equal(t, 5433, cfg.Database.Port)
		assert.True(t, cfg.Billing.ElectricityRate.Equal(decimal.RequireFromString("3800.5")))
		assert.True(t, cfg.Billing.WaterRate.Equal(decimal.NewFromInt(16000)))
		assert.Equal(t, 5, cfg.Billing.DueDay)
		assert.Equal(t, "test-app", cfg.Kafka.ClientID)
	})

	t.Run("rejects a malformed rate", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("RENTAL_BILLING_WATER_RATE", "fifteen")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), `invalid decimal "fifteen"`)
	})

	t.Run("rejects a negative rate", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("RENTAL_BILLING_ELECTRICITY_RATE", "-1")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cannot be negative")
	})

	t.Run("rejects a due day past the 28th", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("RENTAL_BILLING_DUE_DAY", "31")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "billing.due_day")
	})

	t.Run("loads telemetry settings", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("RENTAL_TELEMETRY_ENABLED", "true")
		t.Setenv("RENTAL_TELEMETRY_SAMPLING_RATIO", "0.25")
		t.Setenv("RENTAL_TELEMETRY_SERVICE_NAME", "billing-worker")

		cfg, err := Load()
		require.NoError(t, err)
		assert.True(t, cfg.Telemetry.Enabled)
		assert.Equal(t, 0.25, cfg.Telemetry.SamplingRatio)
		assert.Equal(t, "billing-worker", cfg.Telemetry.ServiceName)
	})

	t.Run("rejects a sampling ratio above one", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("RENTAL_TELEMETRY_SAMPLING_RATIO", "1.5")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "telemetry.sampling_ratio")
	})

	t.Run("validates MaxIdleConns cannot exceed MaxOpenConns", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("RENTAL_DATABASE_MAX_OPEN_CONNS", "10")
		t.Setenv("RENTAL_DATABASE_MAX_IDLE_CONNS", "20")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cannot exceed")
	})

	t.Run("validates cron expressions when the scheduler is enabled", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("RENTAL_SCHEDULER_ENABLED", "true")
		t.Setenv("RENTAL_SCHEDULER_TIMEZONE", "UTC")
		t.Setenv("RENTAL_SCHEDULER_GENERATION_CRON", "every month")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "scheduler.generation_cron")
	})
}

func TestLoad_ProductionValidation(t *testing.T) {
	t.Run("requires database.password in production", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("RENTAL_APP_ENV", "production")
		t.Setenv("RENTAL_DATABASE_SSLMODE", "require")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.password is required in production")
	})

	t.Run("requires SSL enabled in production", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("RENTAL_APP_ENV", "production")
		t.Setenv("RENTAL_DATABASE_PASSWORD", "secure-password")
		t.Setenv("RENTAL_DATABASE_SSLMODE", "disable")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.sslmode cannot be 'disable' in production")
	})

	t.Run("rejects full SQL logging in production", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("RENTAL_APP_ENV", "production")
		t.Setenv("RENTAL_DATABASE_PASSWORD", "secure-password")
		t.Setenv("RENTAL_DATABASE_SSLMODE", "require")
		t.Setenv("RENTAL_TELEMETRY_DB_LOG_FULL_SQL", "true")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "telemetry.db_log_full_sql")
	})

	t.Run("passes validation with valid production config", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("RENTAL_APP_ENV", "production")
		t.Setenv("RENTAL_DATABASE_PASSWORD", "secure-password")
		t.Setenv("RENTAL_DATABASE_SSLMODE", "require")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "production", cfg.App.Env)
	})
}

func TestDatabaseConfig_DSN(t *testing.T) {
	t.Run("generates valid DSN", func(t *testing.T) {
		cfg := DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "testuser",
			Password: "testpass",
			DBName:   "testdb",
			SSLMode:  "disable",
		}

		dsn := cfg.DSN()
		assert.Contains(t, dsn, "localhost:5432")
		assert.Contains(t, dsn, "testuser")
		assert.Contains(t, dsn, "testdb")
		assert.Contains(t, dsn, "sslmode=disable")
	})

	t.Run("escapes special characters in password", func(t *testing.T) {
		cfg := DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "user",
			Password: "pass@word#123",
			DBName:   "db",
			SSLMode:  "disable",
		}

		assert.Contains(t, cfg.DSN(), "pass%40word%23123")
	})
}
