package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"rss-media-bus/internal/feed"
	"rss-media-bus/internal/governor"
	"rss-media-bus/internal/infra/ingestorcfg"
	workerPkg "rss-media-bus/internal/infra/worker"
	"rss-media-bus/internal/ingest"
	"rss-media-bus/internal/pkg/config"
	"rss-media-bus/internal/sourceconfig"
	"rss-media-bus/internal/store"
)

func main() {
	logger := initLogger()

	configMetrics := config.NewConfigMetrics("ingestor")
	cfg := ingestorcfg.LoadConfigFromEnv(logger, configMetrics)
	logger.Info("ingestor configuration loaded",
		slog.Duration("cycle_interval", cfg.CycleInterval),
		slog.Int("global_concurrency", cfg.GlobalConcurrency),
		slog.Int("per_host_concurrency", cfg.PerHostConcurrency),
		slog.String("sources_path", cfg.SourcesPath),
		slog.Int("health_port", cfg.HealthPort))

	// The live config is held behind an atomic.Pointer: a future reload
	// swaps the pointer wholesale, it never mutates cfg's fields in place,
	// so a reader racing a reload always sees one complete value or the other.
	var liveConfig atomic.Pointer[ingestorcfg.Config]
	liveConfig.Store(cfg)

	database, err := store.Open(cfg.DBPath)
	if err != nil {
		logger.Error("failed to open article store", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			logger.Error("failed to close article store", slog.Any("error", err))
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	articleStore := store.New(database)
	fetcher := feed.NewFetcher()
	normalizer := feed.NewNormalizer()
	gov := governor.New(logger)
	loader := sourceconfig.New(cfg.SourcesPath)

	ingestor := ingest.New(articleStore, fetcher, normalizer, gov, loader, logger,
		ingest.WithInterval(cfg.CycleInterval),
		ingest.WithConcurrency(cfg.GlobalConcurrency, cfg.PerHostConcurrency),
	)

	healthAddr := fmt.Sprintf(":%d", cfg.HealthPort)
	healthServer := workerPkg.NewHealthServer(healthAddr, logger)
	go func() {
		if err := healthServer.Start(ctx); err != nil && err != http.ErrServerClosed {
			logger.Error("health server failed", slog.Any("error", err))
		}
	}()
	logger.Info("health check server started", slog.String("addr", healthAddr))

	startMetricsServer(ctx, logger)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for s := range sig {
			switch s {
			case syscall.SIGHUP:
				logger.Info("SIGHUP received, feed set will reload at the start of the next cycle")
				ingestor.RequestReload()
			case syscall.SIGINT, syscall.SIGTERM:
				logger.Info("shutdown signal received, draining in-flight cycle", slog.String("signal", s.String()))
				healthServer.SetReady(false)
				cancel()
				return
			}
		}
	}()

	healthServer.SetReady(true)
	logger.Info("ingestor started")

	if err := ingestor.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("ingestor run loop exited unexpectedly", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("ingestor stopped")
}

// initLogger initializes and returns a structured logger based on environment configuration.
func initLogger() *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}
