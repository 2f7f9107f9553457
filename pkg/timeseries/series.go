// Package timeseries normalizes raw per-SKU sales observations into dense
// daily series suitable for model fitting.
//
// Sales exports are messy: days with no sales are simply absent, quantities
// can be missing on voided transactions, and upstream corrections sometimes
// produce negative totals. Prepare turns all of that into a contiguous,
// non-negative, chronologically ordered daily series.
package timeseries

import (
	"math"
	"sort"
	"time"
)

// Record is a raw sales observation as delivered by a sales source.
// Quantity is nil when the source had no usable value for that day.
type Record struct {
	Date     time.Time
	Quantity *float64
}

// Observation is a single day of a prepared series.
type Observation struct {
	Date     time.Time `json:"date"`
	Quantity float64   `json:"quantity"`
}

// Series is a prepared daily series: one observation per calendar day,
// contiguous from the first to the last observed date, all quantities >= 0.
type Series []Observation

// EmptyInputError indicates that an operation received no usable data points,
// so no date range (or statistic) could be established.
type EmptyInputError struct {
	// What names the input that was empty, e.g. "sales history".
	What string
}

func (e *EmptyInputError) Error() string {
	return e.What + ": no usable data points"
}

// Day truncates t to midnight UTC. All series operate on calendar days.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Prepare normalizes raw sales records into a dense daily Series.
//
// Records with a nil quantity are dropped before gap-filling. Negative
// quantities are upstream data errors, not failures, and are floored to
// zero. Days inside the observed range with no record are filled with zero
// sales. When two records collapse onto the same calendar day the later one
// wins; callers are expected to deliver pre-aggregated daily totals.
//
// Returns *EmptyInputError when no record carries a quantity.
func Prepare(records []Record) (Series, error) {
	byDay := make(map[time.Time]float64, len(records))
	for _, r := range records {
		if r.Quantity == nil {
			continue
		}
		q := *r.Quantity
		if q < 0 {
			q = 0
		}
		byDay[Day(r.Date)] = q
	}

	if len(byDay) == 0 {
		return nil, &EmptyInputError{What: "sales history"}
	}

	days := make([]time.Time, 0, len(byDay))
	for d := range byDay {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	first, last := days[0], days[len(days)-1]
	n := int(last.Sub(first).Hours()/24) + 1

	series := make(Series, 0, n)
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		series = append(series, Observation{Date: d, Quantity: byDay[d]})
	}

	return series, nil
}

// Start returns the first date of the series (zero time for empty series).
func (s Series) Start() time.Time {
	if len(s) == 0 {
		return time.Time{}
	}
	return s[0].Date
}

// End returns the last date of the series (zero time for empty series).
func (s Series) End() time.Time {
	if len(s) == 0 {
		return time.Time{}
	}
	return s[len(s)-1].Date
}

// SpanDays returns the number of days between the first and last observation.
// A single-day series has span 0.
func (s Series) SpanDays() int {
	if len(s) == 0 {
		return 0
	}
	return int(s.End().Sub(s.Start()).Hours() / 24)
}

// Values returns the quantities in chronological order.
func (s Series) Values() []float64 {
	values := make([]float64, len(s))
	for i, obs := range s {
		values[i] = obs.Quantity
	}
	return values
}

// Dates returns the calendar days in chronological order.
func (s Series) Dates() []time.Time {
	dates := make([]time.Time, len(s))
	for i, obs := range s {
		dates[i] = obs.Date
	}
	return dates
}

// Mean returns the arithmetic mean quantity, 0 for an empty series.
func (s Series) Mean() float64 {
	if len(s) == 0 {
		return 0
	}
	sum := 0.0
	for _, obs := range s {
		sum += obs.Quantity
	}
	return sum / float64(len(s))
}

// StdDev returns the sample standard deviation of quantities.
// Returns 0 for series with fewer than 2 points.
func (s Series) StdDev() float64 {
	if len(s) < 2 {
		return 0
	}
	mean := s.Mean()
	variance := 0.0
	for _, obs := range s {
		diff := obs.Quantity - mean
		variance += diff * diff
	}
	return math.Sqrt(variance / float64(len(s)-1))
}

// Slice returns the sub-series [from, to). Bounds are clamped.
func (s Series) Slice(from, to int) Series {
	if from < 0 {
		from = 0
	}
	if to > len(s) {
		to = len(s)
	}
	if from >= to {
		return Series{}
	}
	return s[from:to]
}
