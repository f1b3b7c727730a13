// Package dispatchcfg holds the Dispatcher process's environment-derived
// configuration, generalized from the teacher's internal/infra/worker
// WorkerConfig the same way internal/infra/ingestorcfg is: fail-open env
// loading via internal/pkg/config, adapted from cron/notify-concurrency
// fields to this process's tick interval, per-tick batch size, and
// per-tick channel concurrency.
package dispatchcfg

import (
	"fmt"
	"log/slog"
	"time"

	"rss-media-bus/internal/pkg/config"
)

// Config holds the Dispatcher's tunable parameters. It is loaded once
// at startup and held behind an atomic.Pointer in cmd/notifier; reload
// never mutates a live Config's fields in place.
type Config struct {
	// TickInterval is the pause between the end of one dispatch tick and
	// the start of the next.
	TickInterval time.Duration

	// BatchLimit bounds how many articles a single channel's tick pulls.
	BatchLimit int

	// Concurrency bounds how many recipient channels are processed at once.
	Concurrency int

	// RecipientsPath is the on-disk recipients.yaml reloaded on SIGUSR1.
	RecipientsPath string

	// DBPath is the sqlite database file shared with the Ingestor.
	DBPath string

	// TelegramAPIBaseURL is the Telegram Bot API base URL; overridable
	// for tests against a local stub server.
	TelegramAPIBaseURL string

	// HealthPort serves /health and /health/ready.
	HealthPort int
}

// DefaultConfig returns production-ready defaults: a 30-second tick, a
// 500-article batch cap per channel, 8-way channel concurrency, and the
// standard Telegram Bot API base URL.
func DefaultConfig() Config {
	return Config{
		TickInterval:       30 * time.Second,
		BatchLimit:         500,
		Concurrency:        8,
		RecipientsPath:     "recipients.yaml",
		DBPath:             "rss-media-bus.db",
		TelegramAPIBaseURL: "https://api.telegram.org",
		HealthPort:         9092,
	}
}

// Validate checks field values, aggregating every violation found
// rather than stopping at the first.
func (c *Config) Validate() error {
	var errs []error

	if err := config.ValidateDuration(c.TickInterval, time.Second, 10*time.Minute); err != nil {
		errs = append(errs, fmt.Errorf("tick interval: %w", err))
	}
	if err := config.ValidateIntRange(c.BatchLimit, 1, 10000); err != nil {
		errs = append(errs, fmt.Errorf("batch limit: %w", err))
	}
	if err := config.ValidateIntRange(c.Concurrency, 1, 100); err != nil {
		errs = append(errs, fmt.Errorf("concurrency: %w", err))
	}
	if c.RecipientsPath == "" {
		errs = append(errs, fmt.Errorf("recipients path: must not be empty"))
	}
	if c.DBPath == "" {
		errs = append(errs, fmt.Errorf("db path: must not be empty"))
	}
	if c.TelegramAPIBaseURL == "" {
		errs = append(errs, fmt.Errorf("telegram api base url: must not be empty"))
	}
	if err := config.ValidateIntRange(c.HealthPort, 1024, 65535); err != nil {
		errs = append(errs, fmt.Errorf("health port: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed: %v", errs)
	}
	return nil
}

// LoadConfigFromEnv loads Config from environment variables over
// DefaultConfig, falling back field-by-field to the default on any
// validation failure rather than failing startup. Environment
// variables:
//
//   - DISPATCH_TICK_INTERVAL: duration, e.g. "30s" (default 30s)
//   - DISPATCH_BATCH_LIMIT: int 1-10000 (default 500)
//   - DISPATCH_CONCURRENCY: int 1-100 (default 8)
//   - RECIPIENTS_PATH: file path (default "recipients.yaml")
//   - DB_PATH: file path (default "rss-media-bus.db")
//   - TELEGRAM_API_BASE_URL: URL (default "https://api.telegram.org")
//   - DISPATCH_HEALTH_PORT: int 1024-65535 (default 9092)
func LoadConfigFromEnv(logger *slog.Logger, metrics *config.ConfigMetrics) *Config {
	cfg := DefaultConfig()
	fallback := false

	apply := func(field, envKey string, result config.ConfigLoadResult) {
		if !result.FallbackApplied {
			return
		}
		fallback = true
		metrics.RecordValidationError(field)
		metrics.RecordFallback(field, "default")
		for _, warning := range result.Warnings {
			logger.Warn("configuration fallback applied",
				slog.String("field", field), slog.String("env_key", envKey), slog.String("warning", warning))
		}
	}

	result := config.LoadEnvDuration("DISPATCH_TICK_INTERVAL", cfg.TickInterval, func(d time.Duration) error {
		return config.ValidateDuration(d, time.Second, 10*time.Minute)
	})
	cfg.TickInterval = result.Value.(time.Duration)
	apply("tick_interval", "DISPATCH_TICK_INTERVAL", result)

	result = config.LoadEnvInt("DISPATCH_BATCH_LIMIT", cfg.BatchLimit, func(v int) error {
		return config.ValidateIntRange(v, 1, 10000)
	})
	cfg.BatchLimit = result.Value.(int)
	apply("batch_limit", "DISPATCH_BATCH_LIMIT", result)

	result = config.LoadEnvInt("DISPATCH_CONCURRENCY", cfg.Concurrency, func(v int) error {
		return config.ValidateIntRange(v, 1, 100)
	})
	cfg.Concurrency = result.Value.(int)
	apply("concurrency", "DISPATCH_CONCURRENCY", result)

	cfg.RecipientsPath = config.LoadEnvString("RECIPIENTS_PATH", cfg.RecipientsPath)
	cfg.DBPath = config.LoadEnvString("DB_PATH", cfg.DBPath)
	cfg.TelegramAPIBaseURL = config.LoadEnvString("TELEGRAM_API_BASE_URL", cfg.TelegramAPIBaseURL)

	result = config.LoadEnvInt("DISPATCH_HEALTH_PORT", cfg.HealthPort, func(v int) error {
		return config.ValidateIntRange(v, 1024, 65535)
	})
	cfg.HealthPort = result.Value.(int)
	apply("health_port", "DISPATCH_HEALTH_PORT", result)

	metrics.SetFallbackActive("", fallback)
	metrics.RecordLoadTimestamp()

	return &cfg
}
