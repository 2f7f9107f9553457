package prediction

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/demandcast/demandcast/pkg/timeseries"
)

func boundedRows(start time.Time, values, lowers, uppers []float64) []Row {
	out := make([]Row, len(values))
	for i := range values {
		lo, hi := lowers[i], uppers[i]
		out[i] = Row{
			Date:  start.AddDate(0, 0, i),
			Value: values[i],
			Lower: &lo,
			Upper: &hi,
		}
	}
	return out
}

func TestAnalyzeIntervals_Empty(t *testing.T) {
	_, err := AnalyzeIntervals(nil, 0.8)
	var emptyErr *timeseries.EmptyInputError
	if !errors.As(err, &emptyErr) {
		t.Fatalf("want *timeseries.EmptyInputError, got %v", err)
	}
}

func TestAnalyzeIntervals_WidthStats(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := boundedRows(start,
		[]float64{10, 20, 30, 40},
		[]float64{8, 17, 26, 35},
		[]float64{12, 23, 34, 45},
	)

	report, err := AnalyzeIntervals(rows, 0.8)
	if err != nil {
		t.Fatalf("AnalyzeIntervals: %v", err)
	}

	// Widths are 4, 6, 8, 10.
	if report.Intervals.AvgWidth != 7 {
		t.Errorf("AvgWidth = %v, want 7", report.Intervals.AvgWidth)
	}
	if report.Intervals.MinWidth != 4 {
		t.Errorf("MinWidth = %v, want 4", report.Intervals.MinWidth)
	}
	if report.Intervals.MaxWidth != 10 {
		t.Errorf("MaxWidth = %v, want 10", report.Intervals.MaxWidth)
	}
	if math.Abs(report.Intervals.WidthStd-2.24) > 0.001 {
		t.Errorf("WidthStd = %v, want 2.24", report.Intervals.WidthStd)
	}

	if report.Uncertainty.Trend != "increasing" {
		t.Errorf("Trend = %q, want increasing", report.Uncertainty.Trend)
	}
	if report.Uncertainty.TrendSlope != 2 {
		t.Errorf("TrendSlope = %v, want 2", report.Uncertainty.TrendSlope)
	}

	if report.Range.MinPredicted != 10 || report.Range.MaxPredicted != 40 {
		t.Errorf("range = (%v, %v), want (10, 40)",
			report.Range.MinPredicted, report.Range.MaxPredicted)
	}
	if report.Range.RangeSpan != 30 {
		t.Errorf("RangeSpan = %v, want 30", report.Range.RangeSpan)
	}
	if report.ConfidenceLevel != 0.8 {
		t.Errorf("ConfidenceLevel = %v, want 0.8", report.ConfidenceLevel)
	}
}

func TestAnalyzeIntervals_TrendClassification(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		lowers []float64
		uppers []float64
		want   string
	}{
		{"increasing", []float64{9, 8, 7}, []float64{11, 12, 13}, "increasing"},
		{"decreasing", []float64{7, 8, 9}, []float64{13, 12, 11}, "decreasing"},
		{"stable", []float64{8, 8, 8}, []float64{12, 12, 12}, "stable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows := boundedRows(start, []float64{10, 10, 10}, tt.lowers, tt.uppers)
			report, err := AnalyzeIntervals(rows, 0.8)
			if err != nil {
				t.Fatalf("AnalyzeIntervals: %v", err)
			}
			if report.Uncertainty.Trend != tt.want {
				t.Errorf("Trend = %q, want %q", report.Uncertainty.Trend, tt.want)
			}
		})
	}
}

func TestAnalyzeIntervals_MissingBoundsCountAsZeroWidth(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := []Row{
		{Date: start, Value: 10},
		{Date: start.AddDate(0, 0, 1), Value: 12},
		{Date: start.AddDate(0, 0, 2), Value: 14},
	}

	report, err := AnalyzeIntervals(rows, 0.8)
	if err != nil {
		t.Fatalf("AnalyzeIntervals: %v", err)
	}
	if report.Intervals.AvgWidth != 0 || report.Intervals.MaxWidth != 0 {
		t.Errorf("widths = %+v, want all zero", report.Intervals)
	}
	if report.Uncertainty.Trend != "stable" {
		t.Errorf("Trend = %q, want stable", report.Uncertainty.Trend)
	}
	if report.Range.RangeSpan != 4 {
		t.Errorf("RangeSpan = %v, want 4", report.Range.RangeSpan)
	}
}

func TestAnalyzeIntervals_SingleRow(t *testing.T) {
	lo, hi := 8.0, 12.0
	rows := []Row{{
		Date:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Value: 10,
		Lower: &lo,
		Upper: &hi,
	}}

	report, err := AnalyzeIntervals(rows, 0.9)
	if err != nil {
		t.Fatalf("AnalyzeIntervals: %v", err)
	}
	if report.Uncertainty.Trend != "stable" {
		t.Errorf("Trend = %q, want stable", report.Uncertainty.Trend)
	}
	if report.Uncertainty.TrendSlope != 0 {
		t.Errorf("TrendSlope = %v, want 0", report.Uncertainty.TrendSlope)
	}
	if report.Intervals.AvgWidth != 4 {
		t.Errorf("AvgWidth = %v, want 4", report.Intervals.AvgWidth)
	}
	if report.Range.RangeSpan != 0 {
		t.Errorf("RangeSpan = %v, want 0", report.Range.RangeSpan)
	}
}
