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

	"rss-media-bus/internal/dispatch"
	"rss-media-bus/internal/filter"
	"rss-media-bus/internal/infra/chat"
	"rss-media-bus/internal/infra/dispatchcfg"
	workerPkg "rss-media-bus/internal/infra/worker"
	"rss-media-bus/internal/pkg/config"
	"rss-media-bus/internal/registry"
	"rss-media-bus/internal/store"
)

func main() {
	logger := initLogger()

	configMetrics := config.NewConfigMetrics("notifier")
	cfg := dispatchcfg.LoadConfigFromEnv(logger, configMetrics)
	logger.Info("notifier configuration loaded",
		slog.Duration("tick_interval", cfg.TickInterval),
		slog.Int("batch_limit", cfg.BatchLimit),
		slog.Int("concurrency", cfg.Concurrency),
		slog.String("recipients_path", cfg.RecipientsPath),
		slog.Int("health_port", cfg.HealthPort))

	// As with the Ingestor, the live config is held behind an atomic.Pointer
	// so a future reload swaps it wholesale rather than mutating fields in
	// place underneath a concurrent reader.
	var liveConfig atomic.Pointer[dispatchcfg.Config]
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
	channels := registry.New(cfg.RecipientsPath)
	if err := channels.Load(); err != nil {
		logger.Error("failed to load recipients config", slog.Any("error", err))
		os.Exit(1)
	}

	chatClient := chat.New(nil, cfg.TelegramAPIBaseURL)
	filterEngine := filter.New()

	dispatcher := dispatch.New(articleStore, channels, chatClient, filterEngine, logger,
		dispatch.WithTickInterval(cfg.TickInterval),
		dispatch.WithBatchLimit(cfg.BatchLimit),
		dispatch.WithConcurrency(cfg.Concurrency),
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
	signal.Notify(sig, syscall.SIGUSR1, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for s := range sig {
			switch s {
			case syscall.SIGUSR1:
				logger.Info("SIGUSR1 received, recipients will reload at the start of the next tick")
				dispatcher.RequestReload()
			case syscall.SIGINT, syscall.SIGTERM:
				logger.Info("shutdown signal received, draining in-flight tick", slog.String("signal", s.String()))
				healthServer.SetReady(false)
				cancel()
				return
			}
		}
	}()

	healthServer.SetReady(true)
	logger.Info("notifier started")

	if err := dispatcher.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("dispatcher run loop exited unexpectedly", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("notifier stopped")
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
