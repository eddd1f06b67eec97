package forecast

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"

	"brentcast/pkg/model"
)

// Penalty floors keep the normal equations positive definite when Fourier
// columns are degenerate (e.g. daily harmonics sampled once a day).
const (
	freePenalty  = 1e-8
	ridgeFloor   = 1e-6
	firstPassPen = 1e-4
)

// Model is a fitted trend + seasonality model. It is immutable once Fit returns.
type Model struct {
	opts Options

	dates  []time.Time
	yScale float64
	layout layout

	beta  []float64 // scaled coefficients in layout order
	sigma float64   // scaled residual standard deviation

	cpScale float64 // mean |delta|, drives simulated future changepoints
}

// Params is an exported snapshot of the fitted coefficients, in price units
type Params struct {
	Intercept    float64              `json:"intercept"`
	Slope        float64              `json:"slope"` // per unit of scaled time
	Changepoints []time.Time          `json:"changepoints"`
	Deltas       []float64            `json:"deltas"`
	Seasonal     map[string][]float64 `json:"seasonal"`
	Sigma        float64              `json:"sigma"`
}

func insufficientf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInsufficientData}, args...)...)
}

// Fit estimates the model over a date-ascending training series.
//
// The trend and seasonal coefficients are solved jointly as a ridge
// regression whose per-block penalties come from Gaussian priors on the
// scaled series. A first, lightly penalized pass estimates the noise
// variance that sets the prior strength for the second pass.
func Fit(training []model.PricePoint, opts Options) (*Model, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	n := len(training)
	if n < 2 || n < opts.MinPoints {
		return nil, insufficientf("need at least %d points, got %d", max(opts.MinPoints, 2), n)
	}

	dates := make([]time.Time, n)
	y := make([]float64, n)
	yScale := 0.0
	for i, p := range training {
		if i > 0 && !p.Date.After(training[i-1].Date) {
			return nil, fmt.Errorf("%w: training dates must be strictly increasing at %s",
				ErrInvalidCalendar, p.Date.Format(model.DateLayout))
		}
		if math.IsNaN(p.Price) || math.IsInf(p.Price, 0) {
			return nil, insufficientf("non-finite price on %s", p.Date.Format(model.DateLayout))
		}
		dates[i] = p.Date
		y[i] = p.Price
		yScale = math.Max(yScale, math.Abs(p.Price))
	}
	if yScale == 0 {
		yScale = 1
	}
	for i := range y {
		y[i] /= yScale
	}

	spanDays := dates[n-1].Sub(dates[0]).Hours() / 24
	seasonal, err := resolveSeasonality(opts, spanDays)
	if err != nil {
		return nil, err
	}

	lay := layout{start: dates[0], spanDays: spanDays, seasonal: seasonal}
	ts := make([]float64, n)
	for i, d := range dates {
		ts[i] = lay.scaledTime(d)
	}
	lay.changepoints = placeChangepoints(ts, opts.NumChangepoints, opts.ChangepointRange)

	p := lay.numCols()
	X := mat.NewDense(n, p, nil)
	row := make([]float64, 0, p)
	for i, d := range dates {
		row = lay.row(d, row)
		X.SetRow(i, row)
	}
	yv := mat.NewVecDense(n, y)

	// pass 1: near-OLS to estimate the noise level
	pen := make([]float64, p)
	for j := range pen {
		pen[j] = firstPassPen
	}
	pen[0], pen[1] = freePenalty, freePenalty
	beta, err := solveRidge(X, yv, pen)
	if err != nil {
		return nil, err
	}
	dof := n - p
	if dof < 1 {
		dof = n
	}
	noiseVar := math.Max(sumSquares(X, yv, beta)/float64(dof), 1e-12)

	// pass 2: prior-weighted. Laplace(b) on deltas is matched by variance 2b^2.
	cpPen := math.Max(noiseVar/(2*opts.ChangepointPriorScale*opts.ChangepointPriorScale), ridgeFloor)
	sPen := math.Max(noiseVar/(opts.SeasonalityPriorScale*opts.SeasonalityPriorScale), ridgeFloor)
	off := lay.seasonalOffset()
	for j := 2; j < p; j++ {
		if j < off {
			pen[j] = cpPen
		} else {
			pen[j] = sPen
		}
	}
	beta, err = solveRidge(X, yv, pen)
	if err != nil {
		return nil, err
	}

	cpScale := 0.0
	if k := len(lay.changepoints); k > 0 {
		for j := 0; j < k; j++ {
			cpScale += math.Abs(beta[2+j])
		}
		cpScale /= float64(k)
	}

	return &Model{
		opts:    opts,
		dates:   dates,
		yScale:  yScale,
		layout:  lay,
		beta:    beta,
		sigma:   math.Sqrt(sumSquares(X, yv, beta) / float64(n)),
		cpScale: cpScale,
	}, nil
}

// solveRidge solves (XᵀX + diag(pen)) β = Xᵀy
func solveRidge(X *mat.Dense, y *mat.VecDense, pen []float64) ([]float64, error) {
	_, p := X.Dims()

	var a mat.SymDense
	a.SymOuterK(1, X.T())
	for j := 0; j < p; j++ {
		a.SetSym(j, j, a.At(j, j)+pen[j])
	}

	var rhs mat.VecDense
	rhs.MulVec(X.T(), y)

	var beta mat.VecDense
	var chol mat.Cholesky
	if chol.Factorize(&a) {
		if err := chol.SolveVecTo(&beta, &rhs); err == nil {
			return beta.RawVector().Data, nil
		}
	}
	if err := beta.SolveVec(&a, &rhs); err != nil {
		return nil, insufficientf("normal equations are singular: %v", err)
	}
	return beta.RawVector().Data, nil
}

func sumSquares(X *mat.Dense, y *mat.VecDense, beta []float64) float64 {
	var fitted mat.VecDense
	fitted.MulVec(X, mat.NewVecDense(len(beta), beta))
	ss := 0.0
	for i := 0; i < y.Len(); i++ {
		r := y.AtVec(i) - fitted.AtVec(i)
		ss += r * r
	}
	return ss
}

// Start is the first training date
func (m *Model) Start() time.Time { return m.dates[0] }

// End is the last training date
func (m *Model) End() time.Time { return m.dates[len(m.dates)-1] }

// TrainingDates returns a copy of the dates the model was fitted on
func (m *Model) TrainingDates() []time.Time {
	out := make([]time.Time, len(m.dates))
	copy(out, m.dates)
	return out
}

// IntervalWidth is the configured interval coverage
func (m *Model) IntervalWidth() float64 { return m.opts.IntervalWidth }

// Options returns the options the model was fitted with
func (m *Model) Options() Options { return m.opts }

// Sigma is the residual standard deviation in price units
func (m *Model) Sigma() float64 { return m.sigma * m.yScale }

// Seasonalities lists the fitted seasonal components by name
func (m *Model) Seasonalities() []string {
	names := make([]string, len(m.layout.seasonal))
	for i, s := range m.layout.seasonal {
		names[i] = s.Name
	}
	return names
}

// Changepoints returns the changepoint dates
func (m *Model) Changepoints() []time.Time {
	out := make([]time.Time, len(m.layout.changepoints))
	for i, cp := range m.layout.changepoints {
		days := cp * m.layout.spanDays
		out[i] = m.layout.start.Add(time.Duration(days * 24 * float64(time.Hour))).Round(time.Minute)
	}
	return out
}

// Params returns the fitted coefficients scaled back to price units
func (m *Model) Params() Params {
	ncp := len(m.layout.changepoints)
	p := Params{
		Intercept:    m.beta[0] * m.yScale,
		Slope:        m.beta[1] * m.yScale,
		Changepoints: m.Changepoints(),
		Deltas:       make([]float64, ncp),
		Seasonal:     make(map[string][]float64, len(m.layout.seasonal)),
		Sigma:        m.Sigma(),
	}
	for j := 0; j < ncp; j++ {
		p.Deltas[j] = m.beta[2+j] * m.yScale
	}
	off := m.layout.seasonalOffset()
	for _, s := range m.layout.seasonal {
		coef := make([]float64, 2*s.Order)
		for j := range coef {
			coef[j] = m.beta[off+j] * m.yScale
		}
		p.Seasonal[s.Name] = coef
		off += 2 * s.Order
	}
	return p
}

// components evaluates the scaled trend and each seasonal block at t
func (m *Model) components(t time.Time, row []float64) (trend float64, seasonal []float64, buf []float64) {
	row = m.layout.row(t, row)
	off := m.layout.seasonalOffset()
	for j := 0; j < off; j++ {
		trend += m.beta[j] * row[j]
	}
	seasonal = make([]float64, len(m.layout.seasonal))
	for i, s := range m.layout.seasonal {
		for j := 0; j < 2*s.Order; j++ {
			seasonal[i] += m.beta[off+j] * row[off+j]
		}
		off += 2 * s.Order
	}
	return trend, seasonal, row
}
