// Package forecast implements the additive time-series decomposition model
// used for demand forecasting, plus the policy that selects its
// hyperparameters from the shape of the prepared data.
//
// The model decomposes a daily series into a piecewise-linear trend
// (changepoint hinges) and periodic Fourier seasonalities, fitted jointly by
// ridge-regularized least squares. It is fully deterministic: the same
// series and configuration always produce the same model.
package forecast

import "github.com/demandcast/demandcast/pkg/timeseries"

// Mode selects how seasonal components combine with the trend.
type Mode string

const (
	// ModeAdditive fits the series on its natural scale.
	ModeAdditive Mode = "additive"

	// ModeMultiplicative fits log1p(quantity) additively, so seasonal
	// effects scale with the level of the series.
	ModeMultiplicative Mode = "multiplicative"
)

// Seasonality describes one periodic component of the model.
type Seasonality struct {
	Name         string  `json:"name"`
	PeriodDays   float64 `json:"periodDays"`
	FourierOrder int     `json:"fourierOrder"`
}

// Config holds the model hyperparameters. It is derived from the prepared
// series via Configure and is never supplied directly by callers.
type Config struct {
	Weekly bool `json:"weekly"`
	Yearly bool `json:"yearly"`
	Mode   Mode `json:"mode"`

	// ChangepointPriorScale controls trend flexibility. Smaller values
	// regularize changepoint adjustments harder.
	ChangepointPriorScale float64 `json:"changepointPriorScale"`

	// SeasonalityPriorScale controls seasonal flexibility.
	SeasonalityPriorScale float64 `json:"seasonalityPriorScale"`

	// IntervalWidth is the central probability mass of the uncertainty
	// band, in (0, 1).
	IntervalWidth float64 `json:"intervalWidth"`

	// UncertaintySamples controls uncertainty estimation. Zero disables
	// bands entirely.
	UncertaintySamples int `json:"uncertaintySamples"`

	// Extra lists custom seasonalities beyond the weekly/yearly built-ins.
	Extra []Seasonality `json:"extra,omitempty"`
}

// Configure derives model hyperparameters from the span and level of a
// prepared series. It is a pure function: no randomness, no side effects.
//
// The span thresholds are a minimum-cycles-observed heuristic: a component
// is only enabled once the data covers enough full cycles for the fit to be
// more signal than noise (3 weeks for weekly, a full year for yearly, a
// month for the monthly component).
func Configure(series timeseries.Series) Config {
	span := series.SpanDays()

	cfg := Config{
		Weekly:                span > 21,
		Yearly:                span > 365,
		Mode:                  ModeAdditive,
		ChangepointPriorScale: 0.05,
		SeasonalityPriorScale: 10,
		IntervalWidth:         0.8,
		UncertaintySamples:    1000,
	}

	// Multiplicative seasonality blows up on all-zero series, so it is
	// only selected when the series has a positive level.
	if series.Mean() > 0 {
		cfg.Mode = ModeMultiplicative
	}

	if span > 30 {
		cfg.Extra = append(cfg.Extra, Seasonality{
			Name:         "monthly",
			PeriodDays:   30.5,
			FourierOrder: 3,
		})
	}

	return cfg
}

// seasonalities resolves the full ordered list of seasonal components,
// built-ins first.
func (c Config) seasonalities() []Seasonality {
	var components []Seasonality
	if c.Weekly {
		components = append(components, Seasonality{Name: "weekly", PeriodDays: 7, FourierOrder: 3})
	}
	if c.Yearly {
		components = append(components, Seasonality{Name: "yearly", PeriodDays: 365.25, FourierOrder: 10})
	}
	components = append(components, c.Extra...)
	return components
}
