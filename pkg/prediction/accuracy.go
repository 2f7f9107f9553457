package prediction

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/demandcast/demandcast/pkg/timeseries"
)

// NoOverlapError indicates that an accuracy comparison found no dates shared
// between the actuals and the forecast.
type NoOverlapError struct {
	SKU        string
	Actuals    int
	Forecasted int
}

func (e *NoOverlapError) Error() string {
	return fmt.Sprintf("sku %s: no overlapping dates between %d actual and %d predicted days",
		e.SKU, e.Actuals, e.Forecasted)
}

// AccuracyReport scores a past forecast against what actually sold.
type AccuracyReport struct {
	SKU string `json:"sku"`

	PeriodStart   time.Time `json:"start_date"`
	PeriodEnd     time.Time `json:"end_date"`
	DaysEvaluated int       `json:"days_evaluated"`

	MAE               float64 `json:"mae"`
	MSE               float64 `json:"mse"`
	RMSE              float64 `json:"rmse"`
	MAPE              float64 `json:"mape"`
	SMAPE             float64 `json:"smape"`
	Bias              float64 `json:"bias"`
	BiasPercent       float64 `json:"bias_percent"`
	Correlation       float64 `json:"correlation"`
	DirectionAccuracy float64 `json:"direction_accuracy"`

	Quality        string  `json:"forecast_quality"`
	AvgActual      float64 `json:"avg_actual"`
	AvgPredicted   float64 `json:"avg_predicted"`
	TotalActual    float64 `json:"total_actual"`
	TotalPredicted float64 `json:"total_predicted"`

	AnalyzedAt time.Time `json:"analysis_date"`
}

// AnalyzeAccuracy inner-joins actual daily sales against previously
// generated forecast rows by calendar day and scores the overlap.
//
// Unlike holdout evaluation, the percentage error here uses a smoothed
// denominator (actual + 1e-8) rather than masking zero-actual days: a
// stored forecast is compared on every day it overlaps, including days that
// sold nothing.
//
// Returns *NoOverlapError when the join is empty.
func AnalyzeAccuracy(sku string, actuals []timeseries.Observation, predictions []Row) (AccuracyReport, error) {
	predByDay := make(map[time.Time]float64, len(predictions))
	for _, row := range predictions {
		predByDay[timeseries.Day(row.Date)] = row.Value
	}

	type joined struct {
		day       time.Time
		actual    float64
		predicted float64
	}
	var rows []joined
	for _, obs := range actuals {
		day := timeseries.Day(obs.Date)
		value, ok := predByDay[day]
		if !ok {
			continue
		}
		rows = append(rows, joined{day: day, actual: obs.Quantity, predicted: value})
	}

	if len(rows) == 0 {
		return AccuracyReport{}, &NoOverlapError{
			SKU:        sku,
			Actuals:    len(actuals),
			Forecasted: len(predictions),
		}
	}

	// Direction accuracy depends on chronological order; actuals may
	// arrive unsorted.
	sort.Slice(rows, func(i, j int) bool { return rows[i].day.Before(rows[j].day) })

	days := make([]time.Time, len(rows))
	actual := make([]float64, len(rows))
	predicted := make([]float64, len(rows))
	for i, r := range rows {
		days[i] = r.day
		actual[i] = r.actual
		predicted[i] = r.predicted
	}

	start, end := days[0], days[len(days)-1]

	mape := smoothedMAPE(actual, predicted)
	avgActual := meanOf(actual)
	bias := biasOf(actual, predicted)

	report := AccuracyReport{
		SKU:           sku,
		PeriodStart:   start,
		PeriodEnd:     end,
		DaysEvaluated: len(days),

		MAE:               round4(absErrorOf(actual, predicted)),
		MSE:               round4(squaredErrorOf(actual, predicted)),
		RMSE:              round4(math.Sqrt(squaredErrorOf(actual, predicted))),
		MAPE:              round4(mape),
		SMAPE:             round4(symmetricMAPE(actual, predicted)),
		Bias:              round4(bias),
		BiasPercent:       round4(bias / (avgActual + 1e-8) * 100),
		Correlation:       round4(pearson(actual, predicted)),
		DirectionAccuracy: round4(directionMatch(actual, predicted)),

		Quality:        qualityLabel(mape),
		AvgActual:      round2(avgActual),
		AvgPredicted:   round2(meanOf(predicted)),
		TotalActual:    round2(sumOf(actual)),
		TotalPredicted: round2(sumOf(predicted)),

		AnalyzedAt: time.Now().UTC(),
	}

	return report, nil
}

// qualityLabel maps MAPE to the same 10/20/50 thresholds used at training
// time.
func qualityLabel(mape float64) string {
	switch {
	case mape <= 10:
		return "Excellent"
	case mape <= 20:
		return "Good"
	case mape <= 50:
		return "Fair"
	default:
		return "Poor"
	}
}

func sumOf(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum
}

func meanOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return sumOf(values) / float64(len(values))
}

func absErrorOf(actual, predicted []float64) float64 {
	sum := 0.0
	for i := range actual {
		sum += math.Abs(actual[i] - predicted[i])
	}
	return sum / float64(len(actual))
}

func squaredErrorOf(actual, predicted []float64) float64 {
	sum := 0.0
	for i := range actual {
		diff := actual[i] - predicted[i]
		sum += diff * diff
	}
	return sum / float64(len(actual))
}

func smoothedMAPE(actual, predicted []float64) float64 {
	sum := 0.0
	for i := range actual {
		sum += math.Abs((actual[i] - predicted[i]) / (actual[i] + 1e-8))
	}
	return sum / float64(len(actual)) * 100
}

func symmetricMAPE(actual, predicted []float64) float64 {
	sum := 0.0
	for i := range actual {
		sum += 2 * math.Abs(actual[i]-predicted[i]) /
			(math.Abs(actual[i]) + math.Abs(predicted[i]) + 1e-8)
	}
	return sum / float64(len(actual)) * 100
}

func biasOf(actual, predicted []float64) float64 {
	sum := 0.0
	for i := range actual {
		sum += predicted[i] - actual[i]
	}
	return sum / float64(len(actual))
}

// pearson returns the Pearson correlation coefficient, or 0 when fewer than
// 2 points or either side has no variance.
func pearson(actual, predicted []float64) float64 {
	if len(actual) < 2 {
		return 0
	}

	meanA := meanOf(actual)
	meanP := meanOf(predicted)

	var cov, varA, varP float64
	for i := range actual {
		da := actual[i] - meanA
		dp := predicted[i] - meanP
		cov += da * dp
		varA += da * da
		varP += dp * dp
	}

	if varA == 0 || varP == 0 {
		return 0
	}
	return cov / math.Sqrt(varA*varP)
}

func directionMatch(actual, predicted []float64) float64 {
	if len(actual) < 2 {
		return 0
	}
	matches := 0
	for i := 1; i < len(actual); i++ {
		if signOf(actual[i]-actual[i-1]) == signOf(predicted[i]-predicted[i-1]) {
			matches++
		}
	}
	return float64(matches) / float64(len(actual)-1) * 100
}

func signOf(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func round4(v float64) float64 { return math.Round(v*10000) / 10000 }
