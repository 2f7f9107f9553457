// Command demandcast implements a per-SKU demand forecasting service.
//
// The service trains seasonal trend models on daily sales history pulled
// from a SQL database or an HTTP endpoint, stores the fitted models as
// artifacts, and serves forecasts from those artifacts. Models are trained
// on demand at prediction time, explicitly via the training endpoint, or
// by a scheduled sweep that retrains stale artifacts.
//
// The service serves an HTTP API on port 8000 (configurable) providing:
//   - POST /predict - Forecast demand for a SKU
//   - POST /train - Start background training for a SKU
//   - GET /models - List stored model artifacts
//   - DELETE /models/{sku} - Remove a stored model artifact
//   - GET /skus - List SKUs with enough history to train on
//   - GET /healthz - Health check endpoint
//   - GET /metrics - Prometheus metrics endpoint
//
// Usage:
//
//	demandcast \
//	  -listen=:8000 \
//	  -source=sql \
//	  -storage=file -artifact-dir=/var/lib/demandcast/models \
//	  -retrain-interval=24h -retrain-max-age=168h
//
// Environment variables:
//
//	LISTEN              - HTTP listen address (default: :8000)
//	SOURCE              - Sales data source: sql or http (default: sql)
//	SOURCE_DSN          - MySQL DSN for the sql source
//	SOURCE_URL          - History endpoint for the http source
//	STORAGE             - Artifact backend: memory, file, redis (default: file)
//	ARTIFACT_DIR        - Directory for file storage (default: models)
//	REDIS_ADDR          - Redis server address
//	REDIS_TTL           - Redis artifact TTL (0 keeps artifacts)
//	HORIZON_DAYS        - Default forecast horizon (default: 30)
//	MAX_HORIZON_DAYS    - Maximum accepted horizon (default: 365)
//	CROSS_VALIDATION    - Enable rolling-origin cross-validation
//	RETRAIN_INTERVAL    - Scheduled retraining interval (0 disables)
//	RETRAIN_MAX_AGE     - Artifact age that triggers retraining (default: 168h)
//	TRACKING_URL        - Experiment tracking endpoint (empty disables)
//	LOG_LEVEL           - Logging level: debug, info, warn, error (default: info)
//	LOG_FORMAT          - Logging format: text, json (default: text)
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/demandcast/demandcast/cmd/demandcast/config"
	"github.com/demandcast/demandcast/cmd/demandcast/logger"
	"github.com/demandcast/demandcast/cmd/demandcast/metrics"
	"github.com/demandcast/demandcast/cmd/demandcast/router"
	"github.com/demandcast/demandcast/pkg/httpx"
	"github.com/demandcast/demandcast/pkg/sales"
	"github.com/demandcast/demandcast/pkg/storage"
	"github.com/demandcast/demandcast/pkg/tracking"
	"github.com/demandcast/demandcast/pkg/training"
)

// version is set via ldflags at build time
var version = "dev"

func main() {
	cfg := config.ParseFlags()

	logger := logger.New(cfg)
	slog.SetDefault(logger)

	logger.Info("starting demandcast",
		"version", version,
		"source", cfg.Source,
		"storage", cfg.Storage,
	)

	source, err := sales.New(cfg.Source, cfg.SourceConfig)
	if err != nil {
		logger.Error("failed to create sales source", "error", err)
		os.Exit(1)
	}
	if closer, ok := source.(interface{ Close() error }); ok {
		defer func() {
			if err := closer.Close(); err != nil {
				logger.Error("failed to close sales source", "error", err)
			}
		}()
	}

	store, err := newStore(cfg)
	if err != nil {
		logger.Error("failed to create artifact store", "error", err)
		os.Exit(1)
	}
	if closer, ok := store.(interface{ Close() error }); ok {
		defer func() {
			if err := closer.Close(); err != nil {
				logger.Error("failed to close artifact store", "error", err)
			}
		}()
	}

	trainer := training.NewTrainer(logger)
	trainer.CrossValidation = cfg.CrossValidation

	tracker := tracking.NewClient(cfg.TrackingURL, cfg.TrackingExperiment, logger)

	svc := NewService(source, store, trainer, tracker, metrics.New(), logger)

	opts := router.Options{
		DefaultHorizonDays: cfg.DefaultHorizonDays,
		MaxHorizonDays:     cfg.MaxHorizonDays,
	}
	mux := router.SetupRoutes(svc, opts, logger)
	handler := httpx.LoggingMiddleware(logger)(httpx.RecoveryMiddleware(logger)(mux))
	httpServer := httpx.NewServer(cfg.Listen, handler, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.RetrainInterval > 0 {
		scheduler := gocron.NewScheduler(time.UTC)
		_, err := scheduler.Every(cfg.RetrainInterval).Do(func() {
			svc.RetrainStale(ctx, cfg.RetrainMaxAge)
		})
		if err != nil {
			logger.Error("failed to schedule retraining sweep", "error", err)
			os.Exit(1)
		}
		scheduler.StartAsync()
		defer scheduler.Stop()
		logger.Info("scheduled retraining enabled",
			"interval", cfg.RetrainInterval,
			"max_age", cfg.RetrainMaxAge,
		)
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- httpServer.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-serverErr:
		if err != nil {
			logger.Error("server failed", "error", err)
		}
	}

	logger.Info("shutting down")
	cancel()

	if err := httpServer.Stop(10 * time.Second); err != nil {
		logger.Error("server shutdown failed", "error", err)
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}

// newStore builds the artifact store the configuration selects.
func newStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage {
	case "memory":
		return storage.NewMemoryStore(), nil
	case "redis":
		return storage.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisTTL)
	default:
		return storage.NewFileStore(cfg.ArtifactDir)
	}
}
