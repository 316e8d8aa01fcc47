package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. RENTAL_DATABASE_PASSWORD.
const EnvPrefix = "RENTAL"

// Config is the full service configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Log       LogConfig       `mapstructure:"log"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Billing   BillingConfig   `mapstructure:"billing"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Export    ExportConfig    `mapstructure:"export"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	Port string `mapstructure:"port"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
	Output string `mapstructure:"output"` // stdout, stderr or a file path
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	// AutoMigrate applies the embedded migrations when the server starts.
	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// DSN renders a postgres URL with the credentials escaped.
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:     d.DBName,
		RawQuery: url.Values{"sslmode": {d.SSLMode}}.Encode(),
	}
	return u.String()
}

// RedisConfig switches payment idempotency and generation locks to Redis.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (r *RedisConfig) Addr() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}

type HTTPConfig struct {
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	MaxHeaderBytes  int           `mapstructure:"max_header_bytes"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	TrustedProxies  []string      `mapstructure:"trusted_proxies"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
}

// BillingConfig is the rate table and billing policy. Rates are VND per kWh
// and per m3.
type BillingConfig struct {
	ElectricityRate       decimal.Decimal `mapstructure:"electricity_rate"`
	WaterRate             decimal.Decimal `mapstructure:"water_rate"`
	DueDay                int             `mapstructure:"due_day"`
	PaymentIdempotencyTTL time.Duration   `mapstructure:"payment_idempotency_ttl"`
	GenerationWorkers     int             `mapstructure:"generation_workers"`
	GenerationLockTTL     time.Duration   `mapstructure:"generation_lock_ttl"`
}

type SchedulerConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	GenerationCron string        `mapstructure:"generation_cron"`
	OverdueCron    string        `mapstructure:"overdue_cron"`
	JobTimeout     time.Duration `mapstructure:"job_timeout"`
	Timezone       string        `mapstructure:"timezone"`
}

type KafkaConfig struct {
	Enabled  bool     `mapstructure:"enabled"`
	Brokers  []string `mapstructure:"brokers"`
	Topic    string   `mapstructure:"topic"`
	ClientID string   `mapstructure:"client_id"`
}

type ExportConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	SheetName string `mapstructure:"sheet_name"`
}

// TelemetryConfig drives the OTLP exporters and GORM query tracing.
type TelemetryConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	CollectorEndpoint string        `mapstructure:"collector_endpoint"`
	SamplingRatio     float64       `mapstructure:"sampling_ratio"`
	ServiceName       string        `mapstructure:"service_name"`
	Insecure          bool          `mapstructure:"insecure"`
	MetricsInterval   time.Duration `mapstructure:"metrics_interval"`
	LogsEnabled       bool          `mapstructure:"logs_enabled"`
	DBTraceEnabled    bool          `mapstructure:"db_trace_enabled"`
	// DBLogFullSQL keeps bound variables in query spans. Refused in production.
	DBLogFullSQL         bool          `mapstructure:"db_log_full_sql"`
	DBSlowQueryThreshold time.Duration `mapstructure:"db_slow_query_threshold"`
}

// defaults doubles as the key list for environment binding: viper only
// resolves env overrides for keys it already knows.
var defaults = map[string]any{
	"app.name": "rental-backend",
	"app.env":  "development",
	"app.port": "8080",

	"database.host":               "localhost",
	"database.port":               5432,
	"database.user":               "postgres",
	"database.password":           "",
	"database.dbname":             "rental",
	"database.sslmode":            "disable",
	"database.max_open_conns":     25,
	"database.max_idle_conns":     5,
	"database.conn_max_lifetime":  time.Hour,
	"database.conn_max_idle_time": 30 * time.Minute,
	"database.auto_migrate":       false,

	"redis.enabled":  false,
	"redis.host":     "localhost",
	"redis.port":     6379,
	"redis.password": "",
	"redis.db":       0,

	"log.level":  "info",
	"log.format": "console",
	"log.output": "stdout",

	"http.read_timeout":     15 * time.Second,
	"http.write_timeout":    30 * time.Second,
	"http.idle_timeout":     time.Minute,
	"http.max_header_bytes": 1 << 20,
	"http.shutdown_timeout": 10 * time.Second,
	"http.trusted_proxies":  []string{},
	"http.cors_origins":     []string{},
	"http.max_body_bytes":   1 << 20,
	"http.request_timeout":  25 * time.Second,

	"billing.electricity_rate":        "3500",
	"billing.water_rate":              "15000",
	"billing.due_day":                 10,
	"billing.payment_idempotency_ttl": 30 * 24 * time.Hour,
	"billing.generation_workers":      4,
	"billing.generation_lock_ttl":     time.Minute,

	"scheduler.enabled":         false,
	"scheduler.generation_cron": "0 1 1 * *",
	"scheduler.overdue_cron":    "0 2 * * *",
	"scheduler.job_timeout":     30 * time.Minute,
	"scheduler.timezone":        "Asia/Ho_Chi_Minh",

	"kafka.enabled":   false,
	"kafka.brokers":   []string{"localhost:9092"},
	"kafka.topic":     "rental.billing.events",
	"kafka.client_id": "",

	"export.enabled":    false,
	"export.sheet_name": "Bills",

	"telemetry.enabled":                 false,
	"telemetry.collector_endpoint":      "localhost:4317",
	"telemetry.sampling_ratio":          1.0,
	"telemetry.service_name":            "",
	"telemetry.insecure":                false,
	"telemetry.metrics_interval":        time.Minute,
	"telemetry.logs_enabled":            false,
	"telemetry.db_trace_enabled":        false,
	"telemetry.db_log_full_sql":         false,
	"telemetry.db_slow_query_threshold": 200 * time.Millisecond,
}

// Load reads config.toml from the working directory, ./backend or /app, then
// applies RENTAL_* environment overrides on top of the built-in defaults.
func Load() (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./backend")
	v.AddConfigPath("/app")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	hooks := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		decimalHook,
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hooks); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if cfg.Kafka.ClientID == "" {
		cfg.Kafka.ClientID = cfg.App.Name
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = cfg.App.Name
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var decimalType = reflect.TypeOf(decimal.Decimal{})

// decimalHook lets rates come from env strings as well as TOML numbers.
func decimalHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != decimalType {
		return data, nil
	}
	switch raw := data.(type) {
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("invalid decimal %q", raw)
		}
		return d, nil
	case int:
		return decimal.NewFromInt(int64(raw)), nil
	case int64:
		return decimal.NewFromInt(raw), nil
	case float64:
		return decimal.NewFromFloat(raw), nil
	}
	return data, nil
}

func (c *Config) validate() error {
	db := c.Database
	switch {
	case db.MaxOpenConns <= 0:
		return errors.New("database.max_open_conns must be positive")
	case db.MaxIdleConns < 0:
		return errors.New("database.max_idle_conns cannot be negative")
	case db.MaxIdleConns > db.MaxOpenConns:
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			db.MaxIdleConns, db.MaxOpenConns)
	}

	b := c.Billing
	switch {
	case b.ElectricityRate.IsNegative():
		return errors.New("billing.electricity_rate cannot be negative")
	case b.WaterRate.IsNegative():
		return errors.New("billing.water_rate cannot be negative")
	case b.DueDay < 1 || b.DueDay > 28:
		return fmt.Errorf("billing.due_day must be between 1 and 28, got %d", b.DueDay)
	case b.GenerationWorkers < 0:
		return errors.New("billing.generation_workers cannot be negative")
	}

	if c.Scheduler.Enabled {
		if _, err := cron.ParseStandard(c.Scheduler.GenerationCron); err != nil {
			return fmt.Errorf("scheduler.generation_cron is not a valid cron expression: %w", err)
		}
		if _, err := cron.ParseStandard(c.Scheduler.OverdueCron); err != nil {
			return fmt.Errorf("scheduler.overdue_cron is not a valid cron expression: %w", err)
		}
		if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
			return fmt.Errorf("scheduler.timezone: %w", err)
		}
	}

	if c.Kafka.Enabled && (c.Kafka.Topic == "" || len(c.Kafka.Brokers) == 0) {
		return errors.New("kafka.topic and kafka.brokers are required when kafka is enabled")
	}

	if r := c.Telemetry.SamplingRatio; r < 0 || r > 1 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %g", r)
	}

	if c.App.Env == "production" {
		switch {
		case db.Password == "":
			return errors.New("database.password is required in production")
		case db.SSLMode == "disable":
			return errors.New("database.sslmode cannot be 'disable' in production")
		case c.Telemetry.DBLogFullSQL:
			return errors.New("telemetry.db_log_full_sql must be false in production")
		}
	}
	return nil
}
