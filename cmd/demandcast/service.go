// Service orchestration for the demandcast HTTP API: on-demand training,
// forecast serving from stored artifacts, and the scheduled retraining
// sweep. The per-SKU single-training guarantee lives here, not in the
// training pipeline, so the core stays stateless.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/demandcast/demandcast/cmd/demandcast/metrics"
	"github.com/demandcast/demandcast/cmd/demandcast/router"
	"github.com/demandcast/demandcast/pkg/forecast"
	"github.com/demandcast/demandcast/pkg/prediction"
	"github.com/demandcast/demandcast/pkg/sales"
	"github.com/demandcast/demandcast/pkg/storage"
	"github.com/demandcast/demandcast/pkg/tracking"
	"github.com/demandcast/demandcast/pkg/training"
)

// ErrTrainingInProgress is returned when a synchronous training request
// collides with one already running for the same SKU.
var ErrTrainingInProgress = errors.New("training already in progress for this sku")

// Service wires the sales source, trainer, artifact store, and tracker
// together behind the operations the HTTP layer exposes.
type Service struct {
	source  sales.Source
	store   storage.Store
	trainer *training.Trainer
	tracker *tracking.Client
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu       sync.Mutex
	inflight map[string]bool
}

// NewService creates the service orchestrator. metrics may be nil in tests.
func NewService(
	source sales.Source,
	store storage.Store,
	trainer *training.Trainer,
	tracker *tracking.Client,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		source:   source,
		store:    store,
		trainer:  trainer,
		tracker:  tracker,
		metrics:  m,
		logger:   logger,
		inflight: make(map[string]bool),
	}
}

// TrainSKU fetches history, trains, evaluates, and stores the artifact for
// one SKU. At most one training runs per SKU at a time; a concurrent
// request gets ErrTrainingInProgress.
func (s *Service) TrainSKU(ctx context.Context, sku string) (storage.Artifact, error) {
	if !s.acquire(sku) {
		return storage.Artifact{}, ErrTrainingInProgress
	}
	defer s.release(sku)

	start := time.Now()

	fetchStart := time.Now()
	records, err := s.source.History(ctx, sku)
	if s.metrics != nil {
		s.metrics.RecordFetch(time.Since(fetchStart).Seconds())
	}
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordError("source", "history_failed")
		}
		return storage.Artifact{}, fmt.Errorf("fetch history for %s: %w", sku, err)
	}

	model, trainMetrics, err := s.trainer.Train(ctx, sku, records)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordTrain(time.Since(start).Seconds(), "failed")
		}
		return storage.Artifact{}, err
	}

	blob, err := json.Marshal(model)
	if err != nil {
		return storage.Artifact{}, fmt.Errorf("serialize model for %s: %w", sku, err)
	}

	artifact := storage.Artifact{
		SKU:       sku,
		Model:     blob,
		Metrics:   trainMetrics,
		TrainedAt: time.Now().UTC(),
	}

	if err := s.store.Put(ctx, artifact); err != nil {
		if s.metrics != nil {
			s.metrics.RecordError("storage", "put_failed")
		}
		return storage.Artifact{}, fmt.Errorf("store artifact for %s: %w", sku, err)
	}

	if s.metrics != nil {
		s.metrics.RecordTrain(time.Since(start).Seconds(), "success")
		s.metrics.SetLastMAPE(sku, trainMetrics.MAPE)
		s.refreshModelCount(ctx)
	}

	cfg := model.Config()
	s.tracker.LogRun(ctx, sku,
		map[string]any{
			"mode":    string(cfg.Mode),
			"weekly":  cfg.Weekly,
			"yearly":  cfg.Yearly,
			"records": model.TrainPoints(),
		},
		map[string]float64{
			"mae":   trainMetrics.MAE,
			"rmse":  trainMetrics.RMSE,
			"mape":  trainMetrics.MAPE,
			"smape": trainMetrics.SMAPE,
			"r2":    trainMetrics.R2,
		},
	)

	return artifact, nil
}

// StartTraining launches TrainSKU on a background goroutine unless an
// artifact already exists and retrain is false, or a training for the SKU
// is already running. The returned status tells the caller which case
// applied.
func (s *Service) StartTraining(ctx context.Context, sku string, retrain bool) (string, error) {
	if !retrain {
		_, found, err := s.store.Get(ctx, sku)
		if err != nil {
			return "", fmt.Errorf("check artifact for %s: %w", sku, err)
		}
		if found {
			return router.StatusModelExists, nil
		}
	}

	s.mu.Lock()
	if s.inflight[sku] {
		s.mu.Unlock()
		return router.StatusTrainingInProgress, nil
	}
	s.mu.Unlock()

	go func() {
		// Detached from the request context: training outlives the
		// HTTP request that started it.
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		if _, err := s.TrainSKU(ctx, sku); err != nil {
			s.logger.Error("background training failed", "sku", sku, "error", err)
		}
	}()

	return router.StatusTrainingStarted, nil
}

// PredictSKU serves a forecast for one SKU, training on demand when no
// artifact exists yet.
func (s *Service) PredictSKU(ctx context.Context, sku string, horizonDays int) (prediction.Result, storage.Artifact, error) {
	artifact, found, err := s.store.Get(ctx, sku)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordError("storage", "get_failed")
		}
		return prediction.Result{}, storage.Artifact{}, fmt.Errorf("load artifact for %s: %w", sku, err)
	}

	if !found {
		s.logger.Info("no model artifact, training on demand", "sku", sku)
		artifact, err = s.TrainSKU(ctx, sku)
		if err != nil {
			return prediction.Result{}, storage.Artifact{}, err
		}
	}

	var model forecast.Model
	if err := json.Unmarshal(artifact.Model, &model); err != nil {
		if s.metrics != nil {
			s.metrics.RecordError("storage", "decode_failed")
		}
		return prediction.Result{}, storage.Artifact{}, &prediction.PredictionError{
			SKU: sku, Stage: "load", Err: err,
		}
	}

	start := time.Now()
	result, err := prediction.Predict(&model, horizonDays, time.Time{})
	if s.metrics != nil {
		s.metrics.RecordPredict(time.Since(start).Seconds())
	}
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordError("prediction", "predict_failed")
		}
		return prediction.Result{}, storage.Artifact{}, err
	}

	return result, artifact, nil
}

// ListModels returns the listing view of every stored artifact.
func (s *Service) ListModels(ctx context.Context) ([]storage.Info, error) {
	return s.store.List(ctx)
}

// DeleteModel removes the artifact for a SKU.
func (s *Service) DeleteModel(ctx context.Context, sku string) error {
	if err := s.store.Delete(ctx, sku); err != nil {
		return err
	}
	if s.metrics != nil {
		s.refreshModelCount(ctx)
	}
	return nil
}

// ListSKUs returns the SKUs the sales source considers trainable.
func (s *Service) ListSKUs(ctx context.Context) ([]sales.SKUInfo, error) {
	return s.source.ListTrainable(ctx)
}

// RetrainStale retrains every trainable SKU whose artifact is older than
// maxAge or missing entirely. Failures are logged per SKU and do not stop
// the sweep.
func (s *Service) RetrainStale(ctx context.Context, maxAge time.Duration) {
	skus, err := s.source.ListTrainable(ctx)
	if err != nil {
		s.logger.Error("retraining sweep: failed to list skus", "error", err)
		if s.metrics != nil {
			s.metrics.RecordError("source", "list_failed")
		}
		return
	}

	cutoff := time.Now().Add(-maxAge)
	retrained := 0
	for _, info := range skus {
		if err := ctx.Err(); err != nil {
			s.logger.Warn("retraining sweep canceled", "error", err)
			return
		}

		artifact, found, err := s.store.Get(ctx, info.SKU)
		if err != nil {
			s.logger.Error("retraining sweep: failed to check artifact", "sku", info.SKU, "error", err)
			continue
		}
		if found && artifact.TrainedAt.After(cutoff) {
			continue
		}

		if _, err := s.TrainSKU(ctx, info.SKU); err != nil {
			s.logger.Error("retraining sweep: training failed", "sku", info.SKU, "error", err)
			continue
		}
		retrained++
	}

	s.logger.Info("retraining sweep complete", "candidates", len(skus), "retrained", retrained)
}

func (s *Service) acquire(sku string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight[sku] {
		return false
	}
	s.inflight[sku] = true
	return true
}

func (s *Service) release(sku string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, sku)
}

func (s *Service) refreshModelCount(ctx context.Context) {
	infos, err := s.store.List(ctx)
	if err != nil {
		return
	}
	s.metrics.SetTrainedModels(len(infos))
}
