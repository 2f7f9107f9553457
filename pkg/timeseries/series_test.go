package timeseries

import (
	"errors"
	"testing"
	"time"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func qty(v float64) *float64 { return &v }

func TestPrepare_FillsGapsAndClamps(t *testing.T) {
	records := []Record{
		{Date: day("2024-03-05"), Quantity: qty(4)},
		{Date: day("2024-03-01"), Quantity: qty(10)},
		{Date: day("2024-03-03"), Quantity: qty(-2)}, // data error, floored
		{Date: day("2024-03-02"), Quantity: nil},     // dropped before gap fill
	}

	series, err := Prepare(records)
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}

	wantDates := []string{"2024-03-01", "2024-03-02", "2024-03-03", "2024-03-04", "2024-03-05"}
	wantQty := []float64{10, 0, 0, 0, 4}

	if len(series) != len(wantDates) {
		t.Fatalf("len(series) = %d, want %d", len(series), len(wantDates))
	}
	for i, obs := range series {
		if got := obs.Date.Format("2006-01-02"); got != wantDates[i] {
			t.Errorf("series[%d].Date = %s, want %s", i, got, wantDates[i])
		}
		if obs.Quantity != wantQty[i] {
			t.Errorf("series[%d].Quantity = %v, want %v", i, obs.Quantity, wantQty[i])
		}
	}
}

func TestPrepare_Invariants(t *testing.T) {
	tests := []struct {
		name     string
		records  []Record
		wantLen  int
		wantSpan int
	}{
		{
			name: "contiguous input",
			records: []Record{
				{Date: day("2024-01-01"), Quantity: qty(1)},
				{Date: day("2024-01-02"), Quantity: qty(2)},
				{Date: day("2024-01-03"), Quantity: qty(3)},
			},
			wantLen:  3,
			wantSpan: 2,
		},
		{
			name: "wide gap",
			records: []Record{
				{Date: day("2024-01-01"), Quantity: qty(5)},
				{Date: day("2024-01-31"), Quantity: qty(5)},
			},
			wantLen:  31,
			wantSpan: 30,
		},
		{
			name: "single day",
			records: []Record{
				{Date: day("2024-06-15"), Quantity: qty(7)},
			},
			wantLen:  1,
			wantSpan: 0,
		},
		{
			name: "spans month boundary",
			records: []Record{
				{Date: day("2024-02-27"), Quantity: qty(1)},
				{Date: day("2024-03-02"), Quantity: qty(1)},
			},
			wantLen:  5, // leap year: Feb 27, 28, 29, Mar 1, Mar 2
			wantSpan: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			series, err := Prepare(tt.records)
			if err != nil {
				t.Fatalf("Prepare() error = %v", err)
			}
			if len(series) != tt.wantLen {
				t.Errorf("len = %d, want %d", len(series), tt.wantLen)
			}
			if got := series.SpanDays(); got != tt.wantSpan {
				t.Errorf("SpanDays() = %d, want %d", got, tt.wantSpan)
			}
			if len(series) != series.SpanDays()+1 {
				t.Errorf("len (%d) != span+1 (%d)", len(series), series.SpanDays()+1)
			}
			for i := 1; i < len(series); i++ {
				if got := series[i].Date.Sub(series[i-1].Date); got != 24*time.Hour {
					t.Errorf("gap between series[%d] and series[%d] = %v, want 24h", i-1, i, got)
				}
			}
			for i, obs := range series {
				if obs.Quantity < 0 {
					t.Errorf("series[%d].Quantity = %v, want >= 0", i, obs.Quantity)
				}
			}
		})
	}
}

func TestPrepare_EmptyInput(t *testing.T) {
	tests := []struct {
		name    string
		records []Record
	}{
		{name: "nil input", records: nil},
		{name: "no records", records: []Record{}},
		{
			name: "only null quantities",
			records: []Record{
				{Date: day("2024-01-01"), Quantity: nil},
				{Date: day("2024-01-02"), Quantity: nil},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Prepare(tt.records)
			var emptyErr *EmptyInputError
			if !errors.As(err, &emptyErr) {
				t.Fatalf("Prepare() error = %v, want *EmptyInputError", err)
			}
		})
	}
}

func TestPrepare_Idempotent(t *testing.T) {
	records := []Record{
		{Date: day("2024-01-01"), Quantity: qty(3)},
		{Date: day("2024-01-04"), Quantity: qty(9)},
	}

	first, err := Prepare(records)
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}

	rePrepared := make([]Record, len(first))
	for i, obs := range first {
		q := obs.Quantity
		rePrepared[i] = Record{Date: obs.Date, Quantity: &q}
	}

	second, err := Prepare(rePrepared)
	if err != nil {
		t.Fatalf("Prepare(prepared) error = %v", err)
	}

	if len(second) != len(first) {
		t.Fatalf("re-prepared len = %d, want %d", len(second), len(first))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("re-prepared[%d] = %+v, want %+v", i, second[i], first[i])
		}
	}
}

func TestSeries_Stats(t *testing.T) {
	series := Series{
		{Date: day("2024-01-01"), Quantity: 2},
		{Date: day("2024-01-02"), Quantity: 4},
		{Date: day("2024-01-03"), Quantity: 6},
	}

	if got := series.Mean(); got != 4 {
		t.Errorf("Mean() = %v, want 4", got)
	}
	if got := series.StdDev(); got != 2 {
		t.Errorf("StdDev() = %v, want 2", got)
	}
	if got := (Series{}).Mean(); got != 0 {
		t.Errorf("empty Mean() = %v, want 0", got)
	}
	if got := (Series{{Date: day("2024-01-01"), Quantity: 5}}).StdDev(); got != 0 {
		t.Errorf("single-point StdDev() = %v, want 0", got)
	}
}

func TestSeries_Slice(t *testing.T) {
	series := Series{
		{Date: day("2024-01-01"), Quantity: 1},
		{Date: day("2024-01-02"), Quantity: 2},
		{Date: day("2024-01-03"), Quantity: 3},
	}

	if got := series.Slice(0, 2); len(got) != 2 || got[1].Quantity != 2 {
		t.Errorf("Slice(0,2) = %+v", got)
	}
	if got := series.Slice(2, 10); len(got) != 1 || got[0].Quantity != 3 {
		t.Errorf("Slice(2,10) = %+v", got)
	}
	if got := series.Slice(3, 2); len(got) != 0 {
		t.Errorf("Slice(3,2) = %+v, want empty", got)
	}
}
