// Package router configures HTTP routes for the demandcast API.
//
// Routes configured:
//   - POST /predict - Forecast demand for a SKU, training on demand if needed
//   - POST /train - Start background training for a SKU
//   - GET /models - List stored model artifacts with their metrics
//   - DELETE /models/{sku} - Remove a stored model artifact
//   - GET /skus - List SKUs with enough sales history to train on
//   - GET /healthz - Health check endpoint (returns 200 OK)
//   - GET /metrics - Prometheus metrics endpoint
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/demandcast/demandcast/cmd/demandcast/config"
	"github.com/demandcast/demandcast/pkg/httpx"
	"github.com/demandcast/demandcast/pkg/prediction"
	"github.com/demandcast/demandcast/pkg/sales"
	"github.com/demandcast/demandcast/pkg/storage"
	"github.com/demandcast/demandcast/pkg/timeseries"
	"github.com/demandcast/demandcast/pkg/training"
)

// Outcomes of a StartTraining request.
const (
	StatusTrainingStarted    = "training_started"
	StatusTrainingInProgress = "training_in_progress"
	StatusModelExists        = "model_exists"
)

// Service is the orchestration surface the HTTP handlers depend on.
type Service interface {
	PredictSKU(ctx context.Context, sku string, horizonDays int) (prediction.Result, storage.Artifact, error)
	StartTraining(ctx context.Context, sku string, retrain bool) (string, error)
	ListModels(ctx context.Context) ([]storage.Info, error)
	DeleteModel(ctx context.Context, sku string) error
	ListSKUs(ctx context.Context) ([]sales.SKUInfo, error)
}

// Options carry the request-validation limits the handlers enforce.
type Options struct {
	DefaultHorizonDays int
	MaxHorizonDays     int
}

type predictRequest struct {
	SKU         string `json:"sku"`
	HorizonDays int    `json:"horizon_days"`
}

type trainRequest struct {
	SKU     string `json:"sku"`
	Retrain bool   `json:"retrain"`
}

// SetupRoutes configures HTTP endpoints for the demandcast service.
func SetupRoutes(svc Service, opts Options, logger *slog.Logger) *http.ServeMux {
	mux := http.NewServeMux()

	mux.Handle("/healthz", httpx.HealthHandler())
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("POST /predict", handlePredict(svc, opts, logger))
	mux.HandleFunc("POST /train", handleTrain(svc, logger))
	mux.HandleFunc("GET /models", handleListModels(svc, logger))
	mux.HandleFunc("DELETE /models/{sku}", handleDeleteModel(svc, logger))
	mux.HandleFunc("GET /skus", handleListSKUs(svc, logger))

	return mux
}

// handlePredict returns a handler for POST /predict.
func handlePredict(svc Service, opts Options, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req predictRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpx.WriteErrorMessage(w, http.StatusBadRequest, "invalid JSON body")
			return
		}

		if !config.SKUPattern.MatchString(req.SKU) {
			httpx.WriteErrorMessage(w, http.StatusBadRequest, "invalid sku format")
			return
		}
		if req.HorizonDays == 0 {
			req.HorizonDays = opts.DefaultHorizonDays
		}
		if req.HorizonDays < 1 || req.HorizonDays > opts.MaxHorizonDays {
			httpx.WriteErrorMessage(w, http.StatusBadRequest,
				fmt.Sprintf("horizon_days must be between 1 and %d", opts.MaxHorizonDays))
			return
		}

		// Training on demand can take a while; give it room.
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
		defer cancel()

		result, artifact, err := svc.PredictSKU(ctx, req.SKU, req.HorizonDays)
		if err != nil {
			writePipelineError(w, logger, req.SKU, err)
			return
		}

		resp := map[string]any{
			"sku":          req.SKU,
			"horizon_days": req.HorizonDays,
			"generated_at": time.Now().UTC().Format(time.RFC3339),
			"predictions":  result.Rows,
			"summary":      result.Summary,
			"model": map[string]any{
				"trained_at": artifact.TrainedAt.Format(time.RFC3339),
				"metrics":    artifact.Metrics,
			},
		}
		if err := httpx.WriteJSON(w, http.StatusOK, resp); err != nil {
			logger.Error("failed to write JSON response", "error", err)
		}
	}
}

// handleTrain returns a handler for POST /train.
func handleTrain(svc Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req trainRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpx.WriteErrorMessage(w, http.StatusBadRequest, "invalid JSON body")
			return
		}

		if !config.SKUPattern.MatchString(req.SKU) {
			httpx.WriteErrorMessage(w, http.StatusBadRequest, "invalid sku format")
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status, err := svc.StartTraining(ctx, req.SKU, req.Retrain)
		if err != nil {
			logger.Error("failed to start training", "sku", req.SKU, "error", err)
			httpx.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
			return
		}

		code := http.StatusAccepted
		if status != StatusTrainingStarted {
			code = http.StatusOK
		}
		if err := httpx.WriteJSON(w, code, map[string]string{"sku": req.SKU, "status": status}); err != nil {
			logger.Error("failed to write JSON response", "error", err)
		}
	}
}

// handleListModels returns a handler for GET /models.
func handleListModels(svc Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		infos, err := svc.ListModels(ctx)
		if err != nil {
			logger.Error("failed to list models", "error", err)
			httpx.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
			return
		}

		resp := map[string]any{"models": infos, "count": len(infos)}
		if err := httpx.WriteJSON(w, http.StatusOK, resp); err != nil {
			logger.Error("failed to write JSON response", "error", err)
		}
	}
}

// handleDeleteModel returns a handler for DELETE /models/{sku}.
func handleDeleteModel(svc Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sku := r.PathValue("sku")
		if !config.SKUPattern.MatchString(sku) {
			httpx.WriteErrorMessage(w, http.StatusBadRequest, "invalid sku format")
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := svc.DeleteModel(ctx, sku); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				httpx.WriteErrorMessage(w, http.StatusNotFound, fmt.Sprintf("no model found for sku %q", sku))
				return
			}
			logger.Error("failed to delete model", "sku", sku, "error", err)
			httpx.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
			return
		}

		if err := httpx.WriteJSON(w, http.StatusOK, map[string]string{"sku": sku, "status": "deleted"}); err != nil {
			logger.Error("failed to write JSON response", "error", err)
		}
	}
}

// handleListSKUs returns a handler for GET /skus.
func handleListSKUs(svc Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		defer cancel()

		skus, err := svc.ListSKUs(ctx)
		if err != nil {
			logger.Error("failed to list skus", "error", err)
			httpx.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
			return
		}

		resp := map[string]any{"skus": skus, "count": len(skus)}
		if err := httpx.WriteJSON(w, http.StatusOK, resp); err != nil {
			logger.Error("failed to write JSON response", "error", err)
		}
	}
}

// writePipelineError maps training and prediction failures to HTTP codes.
// Too little history is the caller's problem, not the server's.
func writePipelineError(w http.ResponseWriter, logger *slog.Logger, sku string, err error) {
	var insufficient *training.InsufficientDataError
	if errors.As(err, &insufficient) {
		httpx.WriteErrorMessage(w, http.StatusUnprocessableEntity, insufficient.Error())
		return
	}
	var empty *timeseries.EmptyInputError
	if errors.As(err, &empty) {
		httpx.WriteErrorMessage(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	logger.Error("prediction failed", "sku", sku, "error", err)
	httpx.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
}
