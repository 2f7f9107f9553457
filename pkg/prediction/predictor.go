// Package prediction turns fitted demand models into decision-ready output:
// bounded daily forecasts with summary statistics, forecast-vs-actual
// accuracy scoring, and uncertainty-band analysis.
package prediction

import (
	"fmt"
	"time"

	"github.com/demandcast/demandcast/pkg/forecast"
	"github.com/demandcast/demandcast/pkg/timeseries"
)

// Row is a single forecasted day. Lower/Upper are nil when the model was
// trained without uncertainty estimation. Invariant: Value >= 0 and, when
// bounds are present, 0 <= Lower <= Value <= Upper.
type Row struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"yhat"`
	Lower *float64  `json:"yhat_lower,omitempty"`
	Upper *float64  `json:"yhat_upper,omitempty"`
	Trend float64   `json:"trend"`
}

// Extremum marks the day a forecast peaks or bottoms out.
type Extremum struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// Summary aggregates a forecast horizon for planning decisions.
type Summary struct {
	HorizonDays  int       `json:"horizon_days"`
	Total        float64   `json:"total_predicted_demand"`
	DailyAverage float64   `json:"avg_daily_demand"`
	Peak         Extremum  `json:"peak_demand"`
	Trough       Extremum  `json:"low_demand"`
	GeneratedAt  time.Time `json:"forecast_date"`
}

// Result is the full output of one prediction call.
type Result struct {
	Rows    []Row   `json:"predictions"`
	Summary Summary `json:"summary"`
}

// PredictionError wraps a failure in the prediction path with the SKU (when
// known) and stage context.
type PredictionError struct {
	SKU   string
	Stage string
	Err   error
}

func (e *PredictionError) Error() string {
	if e.SKU == "" {
		return fmt.Sprintf("prediction failed at %s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("sku %s: prediction failed at %s: %v", e.SKU, e.Stage, e.Err)
}

func (e *PredictionError) Unwrap() error { return e.Err }

// Predict generates exactly horizonDays consecutive daily forecasts starting
// at start. A zero start defaults to the day after the current time, which
// is the operational case; tests pass an explicit start for determinism.
//
// Negative demand forecasts are physically meaningless: points and bounds
// are floored at zero before they are surfaced.
func Predict(model *forecast.Model, horizonDays int, start time.Time) (Result, error) {
	if model == nil {
		return Result{}, &PredictionError{Stage: "load", Err: fmt.Errorf("nil model")}
	}
	if horizonDays <= 0 {
		return Result{}, &PredictionError{Stage: "validate", Err: fmt.Errorf("horizon must be positive, got %d", horizonDays)}
	}

	if start.IsZero() {
		start = time.Now().UTC().AddDate(0, 0, 1)
	}
	start = timeseries.Day(start)

	dates := make([]time.Time, horizonDays)
	for i := range dates {
		dates[i] = start.AddDate(0, 0, i)
	}

	points := model.Predict(dates)

	rows := make([]Row, len(points))
	for i, p := range points {
		row := Row{
			Date:  p.Date,
			Value: clampZero(p.Value),
			Trend: p.Trend,
		}
		if p.Lower != nil && p.Upper != nil {
			lower := clampZero(*p.Lower)
			upper := clampZero(*p.Upper)
			row.Lower = &lower
			row.Upper = &upper
		}
		rows[i] = row
	}

	return Result{
		Rows:    rows,
		Summary: summarize(rows),
	}, nil
}

// summarize computes the horizon totals and locates the peak and trough
// days. Ties go to the earliest day.
func summarize(rows []Row) Summary {
	total := 0.0
	peakIdx, troughIdx := 0, 0
	for i, row := range rows {
		total += row.Value
		if row.Value > rows[peakIdx].Value {
			peakIdx = i
		}
		if row.Value < rows[troughIdx].Value {
			troughIdx = i
		}
	}

	return Summary{
		HorizonDays:  len(rows),
		Total:        round2(total),
		DailyAverage: round2(total / float64(len(rows))),
		Peak:         Extremum{Date: rows[peakIdx].Date, Value: rows[peakIdx].Value},
		Trough:       Extremum{Date: rows[troughIdx].Date, Value: rows[troughIdx].Value},
		GeneratedAt:  time.Now().UTC(),
	}
}

func clampZero(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
