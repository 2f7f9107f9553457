package training

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/demandcast/demandcast/pkg/forecast"
	"github.com/demandcast/demandcast/pkg/timeseries"
)

// CVSummary aggregates per-fold metrics from rolling-origin cross-validation.
// It is best-effort diagnostics: a summary with Warning set and zero folds
// means cross-validation could not run, not that training failed.
type CVSummary struct {
	MAE      float64 `json:"cv_mae"`
	MAPE     float64 `json:"cv_mape"`
	RMSE     float64 `json:"cv_rmse"`
	Coverage float64 `json:"cv_coverage"`

	Folds       int       `json:"cv_folds"`
	HorizonDays int       `json:"cv_horizon_days"`
	EvaluatedAt time.Time `json:"cv_date"`

	Warning string `json:"cv_warning,omitempty"`
}

// cvWindows selects rolling-origin window sizes from the series span. Short
// series get short horizons so enough folds fit inside the data.
func cvWindows(spanDays int) (horizon, initial, period int) {
	switch {
	case spanDays < 90:
		return 14, 30, 7
	case spanDays < 365:
		return 30, 90, 14
	default:
		return 60, 180, 30
	}
}

// CrossValidate runs rolling-origin evaluation over the prepared series: for
// each cutoff it fits a fresh model on everything before the cutoff and
// scores the following horizon. Per-fold MAE/MAPE/RMSE and interval coverage
// are averaged across folds.
//
// It never returns an error. Anything that prevents a full run, such as too
// little data or a fold that fails to fit, downgrades to a Warning on the
// returned summary.
func CrossValidate(ctx context.Context, series timeseries.Series, sku string, logger *slog.Logger) CVSummary {
	if logger == nil {
		logger = slog.Default()
	}

	horizon, initial, period := cvWindows(series.SpanDays())

	summary := CVSummary{
		HorizonDays: horizon,
		EvaluatedAt: time.Now().UTC(),
	}

	if len(series) < initial+horizon {
		summary.Warning = "insufficient data for cross-validation"
		logger.Warn("skipping cross-validation",
			"sku", sku, "records", len(series), "needed", initial+horizon)
		return summary
	}

	var sumMAE, sumMAPE, sumRMSE, sumCoverage float64

	for cutoff := initial; cutoff+horizon <= len(series); cutoff += period {
		if err := ctx.Err(); err != nil {
			summary.Warning = "cross-validation interrupted: " + err.Error()
			break
		}

		trainPart := series.Slice(0, cutoff)
		testPart := series.Slice(cutoff, cutoff+horizon)

		foldModel, err := forecast.Fit(trainPart, forecast.Configure(trainPart))
		if err != nil {
			summary.Warning = "fold fit failed: " + err.Error()
			logger.Warn("cross-validation fold failed", "sku", sku, "cutoff", cutoff, "error", err)
			continue
		}

		points := foldModel.Predict(testPart.Dates())
		actual := testPart.Values()
		predicted := make([]float64, len(points))
		covered := 0
		for i, p := range points {
			predicted[i] = math.Max(0, p.Value)
			if p.Lower != nil && p.Upper != nil &&
				actual[i] >= math.Max(0, *p.Lower) && actual[i] <= math.Max(0, *p.Upper) {
				covered++
			}
		}

		sumMAE += meanAbsError(actual, predicted)
		sumMAPE += maskedMAPE(actual, predicted)
		sumRMSE += math.Sqrt(meanSquaredError(actual, predicted))
		sumCoverage += float64(covered) / float64(len(actual))
		summary.Folds++
	}

	if summary.Folds == 0 {
		if summary.Warning == "" {
			summary.Warning = "no cross-validation folds completed"
		}
		return summary
	}

	n := float64(summary.Folds)
	summary.MAE = round4(sumMAE / n)
	summary.MAPE = round4(sumMAPE / n)
	summary.RMSE = round4(sumRMSE / n)
	summary.Coverage = round4(sumCoverage / n)

	logger.Info("cross-validation complete",
		"sku", sku,
		"folds", summary.Folds,
		"cv_mape", summary.MAPE,
		"cv_coverage", summary.Coverage,
	)

	return summary
}
