package forecast

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/demandcast/demandcast/pkg/timeseries"
)

// maxChangepoints is the number of candidate trend changepoints, placed
// uniformly over the first 80% of the training range. The trailing 20% is
// left changepoint-free so the extrapolated trend is anchored in data the
// model has actually seen settle.
const maxChangepoints = 25

// changepointRange is the fraction of the training range that may contain
// changepoints.
const changepointRange = 0.8

// stabilityRidge is a tiny penalty on the intercept and slope columns that
// keeps the normal equations positive definite without meaningfully
// regularizing them.
const stabilityRidge = 1e-8

// Point is a single forecasted day. Lower and Upper are nil when the model
// was configured without uncertainty estimation.
type Point struct {
	Date  time.Time
	Value float64
	Lower *float64
	Upper *float64
	Trend float64
}

// Model is a fitted trend+seasonality decomposition. It is immutable after
// Fit and safe for concurrent Predict calls.
type Model struct {
	cfg          Config
	origin       time.Time
	timeScale    float64
	trainPoints  int
	changepoints []float64
	coeffs       []float64
	residualStd  float64
}

// Fit fits the decomposition to a prepared daily series.
//
// The design matrix holds an intercept, a linear trend, one hinge column per
// candidate changepoint, and sin/cos pairs for every enabled seasonality.
// Changepoint columns are penalized by 1/ChangepointPriorScale and seasonal
// columns by 1/SeasonalityPriorScale, which is the least-squares analogue of
// the prior scales. Fitting is deterministic.
func Fit(series timeseries.Series, cfg Config) (*Model, error) {
	n := len(series)
	if n < 3 {
		return nil, fmt.Errorf("need at least 3 points to fit, got %d", n)
	}

	cpPrior := cfg.ChangepointPriorScale
	if cpPrior <= 0 {
		cpPrior = 0.05
	}
	seasPrior := cfg.SeasonalityPriorScale
	if seasPrior <= 0 {
		seasPrior = 10
	}

	scale := float64(series.SpanDays())
	if scale < 1 {
		scale = 1
	}

	m := &Model{
		cfg:          cfg,
		origin:       series.Start(),
		timeScale:    scale,
		trainPoints:  n,
		changepoints: placeChangepoints(n),
	}

	target := make([]float64, n)
	for i, obs := range series {
		target[i] = m.toFitScale(obs.Quantity)
	}

	cols := m.columnCount()
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = m.designRow(float64(i))
	}

	penalties := make([]float64, cols)
	penalties[0] = stabilityRidge
	penalties[1] = stabilityRidge
	idx := 2
	for range m.changepoints {
		penalties[idx] = 1 / cpPrior
		idx++
	}
	for ; idx < cols; idx++ {
		penalties[idx] = 1 / seasPrior
	}

	coeffs, err := solveRidge(rows, target, penalties)
	if err != nil {
		return nil, fmt.Errorf("fit trend/seasonality system: %w", err)
	}
	m.coeffs = coeffs

	// Residual spread on the fit scale drives the uncertainty bands.
	ssr := 0.0
	for i, row := range rows {
		resid := target[i] - dot(row, coeffs)
		ssr += resid * resid
	}
	dof := n - cols
	if dof < 1 {
		dof = 1
	}
	m.residualStd = math.Sqrt(ssr / float64(dof))

	return m, nil
}

// Predict evaluates the fitted model at the given dates. Dates may fall
// inside or beyond the training range; bands widen with distance past the
// training end. Values are returned unclamped; demand semantics (flooring at
// zero) belong to the callers.
func (m *Model) Predict(dates []time.Time) []Point {
	points := make([]Point, len(dates))

	z := 0.0
	if m.cfg.UncertaintySamples > 0 {
		width := m.cfg.IntervalWidth
		if width <= 0 || width >= 1 {
			width = 0.8
		}
		z = math.Sqrt2 * math.Erfinv(width)
	}

	for i, date := range dates {
		day := timeseries.Day(date).Sub(m.origin).Hours() / 24

		row := m.designRow(day)
		fitted := dot(row, m.coeffs)
		trend := m.trendAt(day)

		p := Point{
			Date:  timeseries.Day(date),
			Value: m.fromFitScale(fitted),
			Trend: m.fromFitScale(trend),
		}

		if z > 0 {
			// Bands grow with extrapolation distance: the further past
			// the training end, the less the trend can be trusted.
			beyond := day - float64(m.trainPoints-1)
			if beyond < 0 {
				beyond = 0
			}
			spread := z * m.residualStd * math.Sqrt(1+beyond/float64(m.trainPoints))
			lower := m.fromFitScale(fitted - spread)
			upper := m.fromFitScale(fitted + spread)
			p.Lower = &lower
			p.Upper = &upper
		}

		points[i] = p
	}

	return points
}

// Config returns the configuration the model was fitted with.
func (m *Model) Config() Config { return m.cfg }

// TrainPoints returns the number of observations the model was fitted on.
func (m *Model) TrainPoints() int { return m.trainPoints }

func (m *Model) toFitScale(v float64) float64 {
	if m.cfg.Mode == ModeMultiplicative {
		return math.Log1p(v)
	}
	return v
}

func (m *Model) fromFitScale(v float64) float64 {
	if m.cfg.Mode == ModeMultiplicative {
		return math.Expm1(v)
	}
	return v
}

func (m *Model) columnCount() int {
	cols := 2 + len(m.changepoints)
	for _, s := range m.cfg.seasonalities() {
		cols += 2 * s.FourierOrder
	}
	return cols
}

// designRow builds one row of the design matrix for a given day offset from
// the series origin (fractional days allowed).
func (m *Model) designRow(day float64) []float64 {
	x := day / m.timeScale

	row := make([]float64, 0, m.columnCount())
	row = append(row, 1, x)
	for _, s := range m.changepoints {
		row = append(row, hinge(x-s))
	}
	for _, s := range m.cfg.seasonalities() {
		for k := 1; k <= s.FourierOrder; k++ {
			angle := 2 * math.Pi * float64(k) * day / s.PeriodDays
			row = append(row, math.Sin(angle), math.Cos(angle))
		}
	}
	return row
}

// trendAt evaluates only the trend component (intercept, slope, hinges).
func (m *Model) trendAt(day float64) float64 {
	x := day / m.timeScale
	trend := m.coeffs[0] + m.coeffs[1]*x
	for j, s := range m.changepoints {
		trend += m.coeffs[2+j] * hinge(x-s)
	}
	return trend
}

// placeChangepoints returns scaled candidate changepoint locations for a
// series of n daily points. Short series get proportionally fewer
// changepoints; series too short to place any get none.
func placeChangepoints(n int) []float64 {
	count := maxChangepoints
	if limit := int(changepointRange*float64(n)) - 1; limit < count {
		count = limit
	}
	if count < 1 {
		return nil
	}

	points := make([]float64, count)
	for j := 0; j < count; j++ {
		points[j] = changepointRange * float64(j+1) / float64(count+1)
	}
	return points
}

func hinge(v float64) float64 {
	if v > 0 {
		return v
	}
	return 0
}

func dot(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// solveRidge solves (X'X + diag(penalties)) beta = X'y by Gaussian
// elimination with partial pivoting.
func solveRidge(rows [][]float64, target, penalties []float64) ([]float64, error) {
	cols := len(penalties)

	gram := make([][]float64, cols)
	for i := range gram {
		gram[i] = make([]float64, cols+1)
	}

	for _, row := range rows {
		for i := 0; i < cols; i++ {
			for j := i; j < cols; j++ {
				gram[i][j] += row[i] * row[j]
			}
		}
	}
	for i := 0; i < cols; i++ {
		for j := 0; j < i; j++ {
			gram[i][j] = gram[j][i]
		}
		gram[i][i] += penalties[i]
	}
	for k, row := range rows {
		for i := 0; i < cols; i++ {
			gram[i][cols] += row[i] * target[k]
		}
	}

	// Forward elimination with partial pivoting.
	for col := 0; col < cols; col++ {
		pivot := col
		for r := col + 1; r < cols; r++ {
			if math.Abs(gram[r][col]) > math.Abs(gram[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(gram[pivot][col]) < 1e-12 {
			return nil, errors.New("singular normal equations")
		}
		gram[col], gram[pivot] = gram[pivot], gram[col]

		for r := col + 1; r < cols; r++ {
			factor := gram[r][col] / gram[col][col]
			for c := col; c <= cols; c++ {
				gram[r][c] -= factor * gram[col][c]
			}
		}
	}

	beta := make([]float64, cols)
	for col := cols - 1; col >= 0; col-- {
		sum := gram[col][cols]
		for c := col + 1; c < cols; c++ {
			sum -= gram[col][c] * beta[c]
		}
		beta[col] = sum / gram[col][col]
	}

	return beta, nil
}

// modelState is the serialized form of a fitted model. Coefficients are
// stored as JSON numbers, which round-trip float64 values exactly.
type modelState struct {
	Config       Config    `json:"config"`
	Origin       time.Time `json:"origin"`
	TimeScale    float64   `json:"timeScale"`
	TrainPoints  int       `json:"trainPoints"`
	Changepoints []float64 `json:"changepoints"`
	Coeffs       []float64 `json:"coeffs"`
	ResidualStd  float64   `json:"residualStd"`
}

// MarshalJSON serializes the fitted model for artifact storage.
func (m *Model) MarshalJSON() ([]byte, error) {
	return json.Marshal(modelState{
		Config:       m.cfg,
		Origin:       m.origin,
		TimeScale:    m.timeScale,
		TrainPoints:  m.trainPoints,
		Changepoints: m.changepoints,
		Coeffs:       m.coeffs,
		ResidualStd:  m.residualStd,
	})
}

// UnmarshalJSON restores a fitted model from its serialized form. A restored
// model predicts identically to the one that was stored.
func (m *Model) UnmarshalJSON(data []byte) error {
	var state modelState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("decode model state: %w", err)
	}
	if len(state.Coeffs) == 0 {
		return errors.New("model state has no coefficients")
	}
	if state.TimeScale <= 0 {
		return errors.New("model state has invalid time scale")
	}

	m.cfg = state.Config
	m.origin = state.Origin
	m.timeScale = state.TimeScale
	m.trainPoints = state.TrainPoints
	m.changepoints = state.Changepoints
	m.coeffs = state.Coeffs
	m.residualStd = state.ResidualStd

	if len(m.coeffs) != m.columnCount() {
		return fmt.Errorf("model state has %d coefficients, want %d", len(m.coeffs), m.columnCount())
	}
	return nil
}
