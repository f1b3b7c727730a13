// Package ingestorcfg holds the Ingestor process's environment-derived
// configuration, generalized from the teacher's internal/infra/worker
// WorkerConfig: same fail-open env loading (LoadConfigFromEnv never
// returns an error, falling back to a default and logging a warning
// plus a metric on every invalid value), same reusable validators from
// internal/pkg/config, adapted from cron/notify-concurrency fields to
// this process's cycle interval and fetch concurrency caps.
package ingestorcfg

import (
	"fmt"
	"log/slog"
	"time"

	"rss-media-bus/internal/pkg/config"
)

// Config holds the Ingestor's tunable parameters. It is loaded once at
// startup and held behind an atomic.Pointer in cmd/ingestor; reload
// never mutates a live Config's fields in place.
type Config struct {
	// CycleInterval is the pause between the end of one ingest cycle
	// and the start of the next.
	CycleInterval time.Duration

	// GlobalConcurrency bounds total concurrent feed fetches.
	GlobalConcurrency int

	// PerHostConcurrency bounds concurrent fetches to a single host.
	PerHostConcurrency int

	// PruneRetentionDays is how far back Prune deletes ingested articles.
	PruneRetentionDays int

	// SourcesPath is the on-disk sources.yaml reloaded on SIGHUP.
	SourcesPath string

	// DBPath is the sqlite database file shared with the Dispatcher.
	DBPath string

	// HealthPort serves /health and /health/ready.
	HealthPort int
}

// DefaultConfig returns production-ready defaults: a 5-minute cycle, a
// global fetch concurrency of 5 with at most 3 of those against any one
// host, 30 days of article retention, and the standard worker health port.
func DefaultConfig() Config {
	return Config{
		CycleInterval:      5 * time.Minute,
		GlobalConcurrency:  5,
		PerHostConcurrency: 3,
		PruneRetentionDays: 30,
		SourcesPath:        "sources.yaml",
		DBPath:             "rss-media-bus.db",
		HealthPort:         9091,
	}
}

// Validate checks field values, aggregating every violation found
// rather than stopping at the first.
func (c *Config) Validate() error {
	var errs []error

	if err := config.ValidatePositiveDuration(c.CycleInterval); err != nil {
		errs = append(errs, fmt.Errorf("cycle interval: %w", err))
	}
	if err := config.ValidateIntRange(c.GlobalConcurrency, 1, 100); err != nil {
		errs = append(errs, fmt.Errorf("global concurrency: %w", err))
	}
	if err := config.ValidateIntRange(c.PerHostConcurrency, 1, 50); err != nil {
		errs = append(errs, fmt.Errorf("per-host concurrency: %w", err))
	}
	if err := config.ValidateIntRange(c.PruneRetentionDays, 1, 3650); err != nil {
		errs = append(errs, fmt.Errorf("prune retention days: %w", err))
	}
	if c.SourcesPath == "" {
		errs = append(errs, fmt.Errorf("sources path: must not be empty"))
	}
	if c.DBPath == "" {
		errs = append(errs, fmt.Errorf("db path: must not be empty"))
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
//   - INGEST_CYCLE_INTERVAL: duration, e.g. "5m" (default 5m)
//   - INGEST_GLOBAL_CONCURRENCY: int 1-100 (default 5)
//   - INGEST_PER_HOST_CONCURRENCY: int 1-50 (default 3)
//   - INGEST_PRUNE_RETENTION_DAYS: int 1-3650 (default 30)
//   - SOURCES_PATH: file path (default "sources.yaml")
//   - DB_PATH: file path (default "rss-media-bus.db")
//   - INGEST_HEALTH_PORT: int 1024-65535 (default 9091)
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

	result := config.LoadEnvDuration("INGEST_CYCLE_INTERVAL", cfg.CycleInterval, func(d time.Duration) error {
		return config.ValidateDuration(d, 30*time.Second, 6*time.Hour)
	})
	cfg.CycleInterval = result.Value.(time.Duration)
	apply("cycle_interval", "INGEST_CYCLE_INTERVAL", result)

	result = config.LoadEnvInt("INGEST_GLOBAL_CONCURRENCY", cfg.GlobalConcurrency, func(v int) error {
		return config.ValidateIntRange(v, 1, 100)
	})
	cfg.GlobalConcurrency = result.Value.(int)
	apply("global_concurrency", "INGEST_GLOBAL_CONCURRENCY", result)

	result = config.LoadEnvInt("INGEST_PER_HOST_CONCURRENCY", cfg.PerHostConcurrency, func(v int) error {
		return config.ValidateIntRange(v, 1, 50)
	})
	cfg.PerHostConcurrency = result.Value.(int)
	apply("per_host_concurrency", "INGEST_PER_HOST_CONCURRENCY", result)

	result = config.LoadEnvInt("INGEST_PRUNE_RETENTION_DAYS", cfg.PruneRetentionDays, func(v int) error {
		return config.ValidateIntRange(v, 1, 3650)
	})
	cfg.PruneRetentionDays = result.Value.(int)
	apply("prune_retention_days", "INGEST_PRUNE_RETENTION_DAYS", result)

	cfg.SourcesPath = config.LoadEnvString("SOURCES_PATH", cfg.SourcesPath)
	cfg.DBPath = config.LoadEnvString("DB_PATH", cfg.DBPath)

	result = config.LoadEnvInt("INGEST_HEALTH_PORT", cfg.HealthPort, func(v int) error {
		return config.ValidateIntRange(v, 1024, 65535)
	})
	cfg.HealthPort = result.Value.(int)
	apply("health_port", "INGEST_HEALTH_PORT", result)

	metrics.SetFallbackActive("", fallback)
	metrics.RecordLoadTimestamp()

	return &cfg
}
