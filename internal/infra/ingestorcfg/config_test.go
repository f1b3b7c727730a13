package ingestorcfg

import (
	"bytes"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rss-media-bus/internal/pkg/config"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 5*time.Minute, cfg.CycleInterval)
	assert.Equal(t, 5, cfg.GlobalConcurrency)
	assert.Equal(t, 3, cfg.PerHostConcurrency)
	assert.Equal(t, 30, cfg.PruneRetentionDays)
	assert.Equal(t, "sources.yaml", cfg.SourcesPath)
	assert.Equal(t, 9091, cfg.HealthPort)
	require.NoError(t, cfg.Validate())
}

func TestConfig_ValidateRejectsOutOfRangeFields(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GlobalConcurrency = 0
	cfg.HealthPort = 80

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "global concurrency")
	assert.Contains(t, err.Error(), "health port")
}

func TestLoadConfigFromEnv_FallsBackOnInvalidValue(t *testing.T) {
	t.Setenv("INGEST_GLOBAL_CONCURRENCY", "not-a-number")
	defer os.Unsetenv("INGEST_GLOBAL_CONCURRENCY")

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	metrics := config.NewConfigMetrics("ingestorcfg_test_fallback")

	cfg := LoadConfigFromEnv(logger, metrics)

	assert.Equal(t, 5, cfg.GlobalConcurrency, "should fall back to default")
	assert.Contains(t, buf.String(), "configuration fallback applied")
}

func TestLoadConfigFromEnv_UsesValidOverride(t *testing.T) {
	t.Setenv("INGEST_CYCLE_INTERVAL", "10m")
	defer os.Unsetenv("INGEST_CYCLE_INTERVAL")

	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	metrics := config.NewConfigMetrics("ingestorcfg_test_override")

	cfg := LoadConfigFromEnv(logger, metrics)

	assert.Equal(t, 10*time.Minute, cfg.CycleInterval)
}
