package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"eventsim/pkg/errors"
)

type Config struct {
	App           AppConfig
	HTTP          HTTPConfig
	Postgres      PostgresConfig
	ClickHouse    ClickHouseConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	Telegram      TelegramConfig
	ErrorTracking ErrorTrackingConfig
	Lifecycle     LifecycleConfig
	Simulator     SimulatorConfig
	PriceFeed     PriceFeedConfig
	Workers       WorkerConfig
}

type AppConfig struct {
	Name     string `envconfig:"APP_NAME" default:"eventsim"`
	Env      string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	Version  string `envconfig:"APP_VERSION" default:"dev"`
}

type HTTPConfig struct {
	Port            int `envconfig:"HTTP_PORT" default:"8080"`
	IngestRateLimit int `envconfig:"HTTP_INGEST_RATE_LIMIT" default:"50"` // payloads per second
	IngestBurst     int `envconfig:"HTTP_INGEST_BURST" default:"100"`
}

// PostgresConfig is optional: an empty host disables the event/position journal.
type PostgresConfig struct {
	Host     string `envconfig:"POSTGRES_HOST"`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER"`
	Password string `envconfig:"POSTGRES_PASSWORD"`
	Database string `envconfig:"POSTGRES_DB" default:"eventsim"`
	SSLMode  string `envconfig:"POSTGRES_SSL_MODE" default:"disable"`
	MaxConns int    `envconfig:"POSTGRES_MAX_CONNS" default:"10"`
}

func (c PostgresConfig) Enabled() bool { return c.Host != "" }

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// ClickHouseConfig is optional: an empty host disables the position metrics sink.
type ClickHouseConfig struct {
	Host     string `envconfig:"CLICKHOUSE_HOST"`
	Port     int    `envconfig:"CLICKHOUSE_PORT" default:"9000"`
	User     string `envconfig:"CLICKHOUSE_USER" default:"default"`
	Password string `envconfig:"CLICKHOUSE_PASSWORD"`
	Database string `envconfig:"CLICKHOUSE_DB" default:"eventsim"`
}

func (c ClickHouseConfig) Enabled() bool { return c.Host != "" }

// RedisConfig is optional: without a host the deduplicator keeps fingerprints in memory.
type RedisConfig struct {
	Host      string `envconfig:"REDIS_HOST"`
	Port      int    `envconfig:"REDIS_PORT" default:"6379"`
	Password  string `envconfig:"REDIS_PASSWORD"`
	DB        int    `envconfig:"REDIS_DB" default:"0"`
	KeyPrefix string `envconfig:"REDIS_DEDUP_PREFIX" default:"eventsim:fp:"`
}

func (c RedisConfig) Enabled() bool { return c.Host != "" }

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type KafkaConfig struct {
	Brokers []string `envconfig:"KAFKA_BROKERS"`
	GroupID string   `envconfig:"KAFKA_GROUP_ID" default:"eventsim"`
}

func (c KafkaConfig) Enabled() bool { return len(c.Brokers) > 0 }

type TelegramConfig struct {
	BotToken string `envconfig:"TELEGRAM_BOT_TOKEN"`
	ChatID   int64  `envconfig:"TELEGRAM_CHAT_ID"`
	Debug    bool   `envconfig:"TELEGRAM_DEBUG" default:"false"`

	// TemplatesDir overrides the embedded prompt templates (telegram/*.tmpl under it)
	TemplatesDir string `envconfig:"TELEGRAM_TEMPLATES_DIR"`
}

func (c TelegramConfig) Enabled() bool { return c.BotToken != "" && c.ChatID != 0 }

type ErrorTrackingConfig struct {
	Enabled     bool   `envconfig:"ERROR_TRACKING_ENABLED" default:"true"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"SENTRY_ENVIRONMENT" default:"production"`
}

// LifecycleConfig drives event expiry, deduplication and confirmation.
// MaxEventLifetime and DedupRetention are required and have no default.
type LifecycleConfig struct {
	MaxEventLifetime         time.Duration `envconfig:"EVENT_MAX_LIFETIME" required:"true"`
	DedupRetention           time.Duration `envconfig:"DEDUP_RETENTION" required:"true"`
	ConfirmationMode         string        `envconfig:"CONFIRMATION_MODE" default:"MANUAL"`
	ConfirmationTimeout      time.Duration `envconfig:"CONFIRMATION_TIMEOUT" default:"5m"`
	ConfirmationPollInterval time.Duration `envconfig:"CONFIRMATION_POLL_INTERVAL" default:"500ms"`
	FirstClassSources        []string      `envconfig:"FIRST_CLASS_SOURCES"`
}

// SimulatorConfig derives TP/SL thresholds from the entry price.
type SimulatorConfig struct {
	TakeProfitPct float64       `envconfig:"SIM_TAKE_PROFIT_PCT" default:"10"`
	StopLossPct   float64       `envconfig:"SIM_STOP_LOSS_PCT" default:"5"`
	MaxDuration   time.Duration `envconfig:"SIM_MAX_DURATION" default:"1h"`
	SymbolQuote   string        `envconfig:"SYMBOL_QUOTE" default:"USDT"`
}

type PriceFeedConfig struct {
	URL     string        `envconfig:"PRICE_FEED_URL" default:"wss://fstream.binance.com/stream"`
	Symbols []string      `envconfig:"PRICE_FEED_SYMBOLS" default:"BTCUSDT,ETHUSDT"`
	MaxAge  time.Duration `envconfig:"PRICE_FEED_MAX_AGE" default:"30s"`
}

// WorkerConfig contains intervals for background workers
type WorkerConfig struct {
	PositionMonitorInterval time.Duration `envconfig:"WORKER_POSITION_MONITOR_INTERVAL" default:"1s"`
	EventExpiryInterval     time.Duration `envconfig:"WORKER_EVENT_EXPIRY_INTERVAL" default:"30s"`
}

// Load reads configuration from environment variables.
// A .env file is loaded first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to process env config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks cross-field constraints envconfig cannot express
func (c *Config) Validate() error {
	lc := c.Lifecycle
	if lc.MaxEventLifetime <= 0 {
		return errors.Wrapf(errors.ErrInvalidInput, "EVENT_MAX_LIFETIME must be positive")
	}
	if lc.DedupRetention < lc.MaxEventLifetime {
		return errors.Wrapf(errors.ErrInvalidInput,
			"DEDUP_RETENTION (%s) must be >= EVENT_MAX_LIFETIME (%s)", lc.DedupRetention, lc.MaxEventLifetime)
	}
	if lc.ConfirmationTimeout <= 0 || lc.ConfirmationPollInterval <= 0 {
		return errors.Wrapf(errors.ErrInvalidInput, "confirmation timeout and poll interval must be positive")
	}
	switch strings.ToUpper(lc.ConfirmationMode) {
	case "AUTO", "MANUAL":
	default:
		return errors.Wrapf(errors.ErrInvalidInput, "CONFIRMATION_MODE must be AUTO or MANUAL, got %q", lc.ConfirmationMode)
	}

	sc := c.Simulator
	if sc.TakeProfitPct <= 0 || sc.StopLossPct <= 0 || sc.StopLossPct >= 100 {
		return errors.Wrapf(errors.ErrInvalidInput, "SIM_TAKE_PROFIT_PCT and SIM_STOP_LOSS_PCT must be in (0, 100)")
	}
	if sc.MaxDuration <= 0 {
		return errors.Wrapf(errors.ErrInvalidInput, "SIM_MAX_DURATION must be positive")
	}

	if c.Workers.PositionMonitorInterval <= 0 || c.Workers.EventExpiryInterval <= 0 {
		return errors.Wrapf(errors.ErrInvalidInput, "worker intervals must be positive")
	}
	return nil
}
