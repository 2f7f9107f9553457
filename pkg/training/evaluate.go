package training

import (
	"log/slog"
	"math"
	"time"

	"github.com/demandcast/demandcast/pkg/forecast"
	"github.com/demandcast/demandcast/pkg/timeseries"
)

// holdoutFraction of the prepared series is used for fitting during
// evaluation; the trailing remainder is the test window.
const holdoutFraction = 0.8

// minHoldoutDays is the smallest test window worth scoring against. Below
// this the evaluation falls back to in-sample scoring.
const minHoldoutDays = 7

// Accuracy categories derived from MAPE. The thresholds (10/20/50) are kept
// exactly as deployed consumers expect them.
const (
	AccuracyExcellent = "Excellent"
	AccuracyGood      = "Good"
	AccuracyFair      = "Fair"
	AccuracyPoor      = "Poor"
)

// Metrics is the evaluation bundle attached to every trained model.
//
// When InSample is true the holdout window was too short and the metrics
// were computed against the data the model was fitted on; they read
// optimistic and should be treated with reduced confidence.
type Metrics struct {
	MAE               float64 `json:"mae"`
	MSE               float64 `json:"mse"`
	RMSE              float64 `json:"rmse"`
	MAPE              float64 `json:"mape"`
	SMAPE             float64 `json:"smape"`
	R2                float64 `json:"r2"`
	DirectionAccuracy float64 `json:"direction_accuracy"`
	Bias              float64 `json:"bias"`

	TestSamples  int       `json:"test_samples"`
	EvaluatedAt  time.Time `json:"evaluation_date"`
	DataSpanDays int       `json:"data_span_days"`
	AvgActual    float64   `json:"avg_actual"`
	AvgPredicted float64   `json:"avg_predicted"`
	InSample     bool      `json:"in_sample,omitempty"`

	AccuracyCategory string `json:"accuracy_category,omitempty"`

	CrossValidation *CVSummary `json:"cross_validation,omitempty"`

	// Error is set instead of the metric fields when evaluation itself
	// failed. Training still succeeds in that case.
	Error string `json:"error,omitempty"`
}

// Evaluate scores a fitted model with an 80/20 chronological holdout.
//
// When the trailing 20% holds fewer than minHoldoutDays points, the
// already-fitted model is scored in-sample against the full series instead.
// Otherwise a fresh model is fitted on the leading 80%, with the
// configuration recomputed from that subset rather than copied, and scored
// against the held-out tail.
//
// Evaluate never fails: internal errors produce a bundle carrying only the
// error and timestamp.
func Evaluate(model *forecast.Model, series timeseries.Series, sku string, logger *slog.Logger) Metrics {
	if logger == nil {
		logger = slog.Default()
	}

	split := int(float64(len(series)) * holdoutFraction)
	trainPart := series.Slice(0, split)
	testPart := series.Slice(split, len(series))

	var (
		actual    []float64
		predicted []float64
		inSample  bool
	)

	if len(testPart) < minHoldoutDays {
		logger.Warn("holdout window too short, scoring in-sample",
			"sku", sku, "test_records", len(testPart))

		actual = series.Values()
		predicted = pointValues(model.Predict(series.Dates()))
		inSample = true
	} else {
		cfg := forecast.Configure(trainPart)
		holdoutModel, err := forecast.Fit(trainPart, cfg)
		if err != nil {
			logger.Error("holdout refit failed", "sku", sku, "error", err)
			return Metrics{Error: err.Error(), EvaluatedAt: time.Now().UTC()}
		}

		actual = testPart.Values()
		predicted = pointValues(holdoutModel.Predict(testPart.Dates()))
	}

	// Negative demand predictions are meaningless; floor before scoring.
	for i, p := range predicted {
		if p < 0 {
			predicted[i] = 0
		}
	}

	mape := maskedMAPE(actual, predicted)

	m := Metrics{
		MAE:               round4(meanAbsError(actual, predicted)),
		MSE:               round4(meanSquaredError(actual, predicted)),
		RMSE:              round4(math.Sqrt(meanSquaredError(actual, predicted))),
		MAPE:              round4(mape),
		SMAPE:             round4(smape(actual, predicted)),
		R2:                round4(rSquared(actual, predicted)),
		DirectionAccuracy: round4(directionAccuracy(actual, predicted)),
		Bias:              round4(meanBias(actual, predicted)),
		TestSamples:       len(actual),
		EvaluatedAt:       time.Now().UTC(),
		DataSpanDays:      series.SpanDays(),
		AvgActual:         round4(mean(actual)),
		AvgPredicted:      round4(mean(predicted)),
		InSample:          inSample,
		AccuracyCategory:  CategorizeMAPE(mape),
	}

	logger.Info("evaluation complete",
		"sku", sku,
		"mape", m.MAPE,
		"rmse", m.RMSE,
		"accuracy", m.AccuracyCategory,
		"in_sample", inSample,
	)

	return m
}

// CategorizeMAPE maps a MAPE percentage to its accuracy category.
func CategorizeMAPE(mape float64) string {
	switch {
	case mape <= 10:
		return AccuracyExcellent
	case mape <= 20:
		return AccuracyGood
	case mape <= 50:
		return AccuracyFair
	default:
		return AccuracyPoor
	}
}

func pointValues(points []forecast.Point) []float64 {
	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = p.Value
	}
	return values
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func meanAbsError(actual, predicted []float64) float64 {
	if len(actual) == 0 {
		return 0
	}
	sum := 0.0
	for i := range actual {
		sum += math.Abs(actual[i] - predicted[i])
	}
	return sum / float64(len(actual))
}

func meanSquaredError(actual, predicted []float64) float64 {
	if len(actual) == 0 {
		return 0
	}
	sum := 0.0
	for i := range actual {
		diff := actual[i] - predicted[i]
		sum += diff * diff
	}
	return sum / float64(len(actual))
}

// maskedMAPE is the mean absolute percentage error over entries whose
// actual is non-zero. All-zero actuals yield 0, which under-reports error
// for intermittent-demand items; that behavior is intentional and matches
// what downstream consumers calibrated against.
func maskedMAPE(actual, predicted []float64) float64 {
	sum := 0.0
	count := 0
	for i := range actual {
		if actual[i] == 0 {
			continue
		}
		sum += math.Abs((actual[i] - predicted[i]) / actual[i])
		count++
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count) * 100
}

func smape(actual, predicted []float64) float64 {
	if len(actual) == 0 {
		return 0
	}
	sum := 0.0
	for i := range actual {
		sum += 2 * math.Abs(actual[i]-predicted[i]) /
			(math.Abs(actual[i]) + math.Abs(predicted[i]) + 1e-8)
	}
	return sum / float64(len(actual)) * 100
}

func rSquared(actual, predicted []float64) float64 {
	avg := mean(actual)
	ssRes, ssTot := 0.0, 0.0
	for i := range actual {
		res := actual[i] - predicted[i]
		tot := actual[i] - avg
		ssRes += res * res
		ssTot += tot * tot
	}
	return 1 - ssRes/(ssTot+1e-8)
}

// directionAccuracy is the fraction of day-over-day changes whose sign
// matches between actual and predicted, as a percentage. Fewer than 2
// points yields 0.
func directionAccuracy(actual, predicted []float64) float64 {
	if len(actual) < 2 {
		return 0
	}
	matches := 0
	for i := 1; i < len(actual); i++ {
		actualSign := sign(actual[i] - actual[i-1])
		predictedSign := sign(predicted[i] - predicted[i-1])
		if actualSign == predictedSign {
			matches++
		}
	}
	return float64(matches) / float64(len(actual)-1) * 100
}

func meanBias(actual, predicted []float64) float64 {
	if len(actual) == 0 {
		return 0
	}
	sum := 0.0
	for i := range actual {
		sum += predicted[i] - actual[i]
	}
	return sum / float64(len(actual))
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
