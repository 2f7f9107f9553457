package prediction

import (
	"math"

	"github.com/demandcast/demandcast/pkg/timeseries"
)

// IntervalStats describes the spread of the uncertainty band widths
// across a forecast horizon.
type IntervalStats struct {
	AvgWidth float64 `json:"avg_width"`
	MaxWidth float64 `json:"max_width"`
	MinWidth float64 `json:"min_width"`
	WidthStd float64 `json:"width_std"`
}

// UncertaintyTrend classifies how band widths evolve over the horizon.
type UncertaintyTrend struct {
	Trend      string  `json:"trend"`
	TrendSlope float64 `json:"trend_slope"`
}

// ForecastRange bounds the point forecasts themselves.
type ForecastRange struct {
	MinPredicted float64 `json:"min_predicted"`
	MaxPredicted float64 `json:"max_predicted"`
	RangeSpan    float64 `json:"range_span"`
}

// IntervalReport summarizes the prediction intervals of a forecast.
type IntervalReport struct {
	ConfidenceLevel float64          `json:"confidence_level"`
	Intervals       IntervalStats    `json:"interval_statistics"`
	Uncertainty     UncertaintyTrend `json:"uncertainty_analysis"`
	Range           ForecastRange    `json:"forecast_range"`
}

// AnalyzeIntervals computes width statistics, the uncertainty trend and
// the forecast range for a horizon of rows. Rows without bounds count
// as zero-width intervals. confidenceLevel is echoed into the report
// and does not affect the computation.
func AnalyzeIntervals(rows []Row, confidenceLevel float64) (IntervalReport, error) {
	if len(rows) == 0 {
		return IntervalReport{}, &timeseries.EmptyInputError{What: "predictions"}
	}

	values := make([]float64, len(rows))
	widths := make([]float64, len(rows))
	for i, r := range rows {
		values[i] = r.Value
		lower, upper := r.Value, r.Value
		if r.Lower != nil {
			lower = *r.Lower
		}
		if r.Upper != nil {
			upper = *r.Upper
		}
		widths[i] = upper - lower
	}

	slope := 0.0
	if len(widths) > 1 {
		slope = fitSlope(widths)
	}
	trend := "stable"
	switch {
	case slope > 0:
		trend = "increasing"
	case slope < 0:
		trend = "decreasing"
	}

	minVal, maxVal := minMax(values)
	minWidth, maxWidth := minMax(widths)

	return IntervalReport{
		ConfidenceLevel: confidenceLevel,
		Intervals: IntervalStats{
			AvgWidth: round2(meanOf(widths)),
			MaxWidth: round2(maxWidth),
			MinWidth: round2(minWidth),
			WidthStd: round2(populationStd(widths)),
		},
		Uncertainty: UncertaintyTrend{
			Trend:      trend,
			TrendSlope: round4(slope),
		},
		Range: ForecastRange{
			MinPredicted: round2(minVal),
			MaxPredicted: round2(maxVal),
			RangeSpan:    round2(maxVal - minVal),
		},
	}, nil
}

// fitSlope returns the least squares slope of ys against their indexes.
func fitSlope(ys []float64) float64 {
	n := float64(len(ys))
	meanX := (n - 1) / 2
	meanY := meanOf(ys)
	var num, den float64
	for i, y := range ys {
		dx := float64(i) - meanX
		num += dx * (y - meanY)
		den += dx * dx
	}
	if den == 0 {
		return 0
	}
	return num / den
}

func populationStd(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := meanOf(xs)
	var sum float64
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)))
}

func minMax(xs []float64) (lo, hi float64) {
	lo, hi = xs[0], xs[0]
	for _, x := range xs[1:] {
		if x < lo {
			lo = x
		}
		if x > hi {
			hi = x
		}
	}
	return lo, hi
}
