package app

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/odyssey-erp/retailstock/internal/inventory"
)

// Config holds runtime configuration for the application.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	AppAddr           string        `envconfig:"APP_ADDR" default:":8080"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"15s"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"30s"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	// PGDSN selects the PostgreSQL store. Empty runs on the seeded in-memory store.
	PGDSN string `envconfig:"PG_DSN"`
	// RedisAddr enables document locks and the job queue. Empty disables both.
	RedisAddr string        `envconfig:"REDIS_ADDR"`
	LockTTL   time.Duration `envconfig:"LOCK_TTL" default:"30s"`

	ActorTokenSecret   string `envconfig:"ACTOR_TOKEN_SECRET" required:"true"`
	RateLimitPerMinute int    `envconfig:"RATE_LIMIT_PER_MINUTE" default:"120"`

	AdjustmentCostFallback inventory.CostFallback `envconfig:"ADJUSTMENT_COST_FALLBACK" default:"selling_price"`

	WorkerConcurrency    int           `envconfig:"WORKER_CONCURRENCY" default:"5"`
	WorkerMetricsAddr    string        `envconfig:"WORKER_METRICS_ADDR" default:":9091"`
	RevaluationCron      string        `envconfig:"REVALUATION_CRON" default:"0 2 * * *"`
	AlertScanCron        string        `envconfig:"ALERT_SCAN_CRON" default:"*/15 * * * *"`
	IdempotencyCron      string        `envconfig:"IDEMPOTENCY_CLEANUP_CRON" default:"30 3 * * *"`
	IdempotencyRetention time.Duration `envconfig:"IDEMPOTENCY_RETENTION" default:"168h"`
}

// LoadConfig reads configuration from environment variables. A .env file in
// the working directory is loaded first when present; real environment wins.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values envconfig cannot.
func (c *Config) Validate() error {
	if c.ActorTokenSecret == "" {
		return errors.New("actor token secret must be provided")
	}
	if !c.AdjustmentCostFallback.Valid() {
		return fmt.Errorf("ADJUSTMENT_COST_FALLBACK: unknown policy %q", c.AdjustmentCostFallback)
	}
	if c.RateLimitPerMinute < 0 {
		return errors.New("RATE_LIMIT_PER_MINUTE must not be negative")
	}
	return nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}

// UsesMemoryStore reports whether no database is configured.
func (c *Config) UsesMemoryStore() bool {
	return c == nil || c.PGDSN == ""
}
