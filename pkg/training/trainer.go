// Package training turns raw sales history into fitted, evaluated demand
// models. It owns the minimum-data gate, the holdout evaluation that scores
// every trained model, and the optional rolling-origin cross-validation.
package training

import (
	"context"
	"log/slog"

	"github.com/demandcast/demandcast/pkg/forecast"
	"github.com/demandcast/demandcast/pkg/timeseries"
)

// MinTrainingRecords is the hard floor of prepared daily records required to
// attempt training.
const MinTrainingRecords = 30

// Trainer orchestrates the training pipeline: prepare, gate, configure, fit,
// evaluate.
type Trainer struct {
	logger *slog.Logger

	// CrossValidation enables the best-effort rolling-origin evaluation in
	// addition to the holdout metrics.
	CrossValidation bool
}

// NewTrainer creates a Trainer. A nil logger falls back to slog.Default.
func NewTrainer(logger *slog.Logger) *Trainer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Trainer{logger: logger}
}

// Train prepares the raw records, fits a model on the full prepared series,
// and evaluates it.
//
// Failures before the fit (empty input, fewer than MinTrainingRecords
// prepared days) abort with typed errors carrying the SKU and the counts
// that tripped the gate. Evaluation failures never abort: a usable model
// with unknown accuracy beats no model, so they degrade to an error field
// inside the returned metrics.
func (t *Trainer) Train(ctx context.Context, sku string, records []timeseries.Record) (*forecast.Model, Metrics, error) {
	series, err := timeseries.Prepare(records)
	if err != nil {
		return nil, Metrics{}, &TrainingError{SKU: sku, Stage: "prepare", Err: err}
	}

	if len(series) < MinTrainingRecords {
		return nil, Metrics{}, &InsufficientDataError{SKU: sku, Required: MinTrainingRecords, Got: len(series)}
	}

	if err := ctx.Err(); err != nil {
		return nil, Metrics{}, &TrainingError{SKU: sku, Stage: "fit", Err: err}
	}

	cfg := forecast.Configure(series)
	t.logger.Info("fitting model",
		"sku", sku,
		"records", len(series),
		"span_days", series.SpanDays(),
		"mode", cfg.Mode,
		"weekly", cfg.Weekly,
		"yearly", cfg.Yearly,
	)

	model, err := forecast.Fit(series, cfg)
	if err != nil {
		return nil, Metrics{}, &TrainingError{SKU: sku, Stage: "fit", Err: err}
	}

	metrics := Evaluate(model, series, sku, t.logger)

	if t.CrossValidation {
		summary := CrossValidate(ctx, series, sku, t.logger)
		metrics.CrossValidation = &summary
	}

	t.logger.Info("training complete",
		"sku", sku,
		"mape", metrics.MAPE,
		"accuracy", metrics.AccuracyCategory,
		"test_samples", metrics.TestSamples,
	)

	return model, metrics, nil
}
