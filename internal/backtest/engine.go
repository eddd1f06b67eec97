// Package backtest measures out-of-sample forecast accuracy by refitting
// the model at rolling origins and scoring each forecast against the
// prices that followed.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/stat"

	"brentcast/internal/forecast"
	"brentcast/pkg/model"
)

// ErrNoOrigins is returned when the series is too short for a single origin
var ErrNoOrigins = errors.New("series too short for any backtest origin")

// ProgressCallback is called as origins finish
type ProgressCallback func(done, total int)

// Config holds backtest parameters
type Config struct {
	Origins     int // number of forecast origins, newest first
	Step        int // points between consecutive origins
	HorizonDays int // business days forecast at each origin
	Window      int // training points per origin; 0 grows from the first point
	Workers     int
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		Origins:     20,
		Step:        5,
		HorizonDays: 5,
		Window:      0,
		Workers:     4,
	}
}

// OriginResult is one refit-and-forecast
type OriginResult struct {
	Origin    time.Time          `json:"origin"` // last training date
	Forecast  []model.Prediction `json:"forecast"`
	Actuals   []model.PricePoint `json:"actuals"` // realized prices matched by date
	MAPE      float64            `json:"mape"`
	Covered   int                `json:"covered"`
	Err       string             `json:"error,omitempty"`
	stepAPE   []float64
	stepValid []bool
}

// Result contains the complete backtest results
type Result struct {
	Origins  []OriginResult `json:"origins"` // newest first
	MAPE     float64        `json:"mape"`    // over every scored forecast row
	StepMAPE []float64      `json:"step_mape"`
	Coverage float64        `json:"coverage"`
	Scored   int            `json:"scored"`
	Failed   int            `json:"failed"`
	Elapsed  time.Duration  `json:"elapsed"`
}

// Backtester runs rolling-origin backtests
type Backtester struct {
	config       Config
	opts         forecast.Options
	progressFunc ProgressCallback
}

// NewBacktester creates a new backtester
func NewBacktester(cfg Config, opts forecast.Options) *Backtester {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Step < 1 {
		cfg.Step = 1
	}
	return &Backtester{config: cfg, opts: opts}
}

// SetProgressCallback sets the progress callback function
func (b *Backtester) SetProgressCallback(fn ProgressCallback) {
	b.progressFunc = fn
}

// origins returns the indices of the last training point for each origin,
// newest first. Each origin leaves HorizonDays points after it.
func (b *Backtester) origins(n int) []int {
	minTrain := max(b.opts.MinPoints, 2)
	if b.config.Window > 0 {
		minTrain = max(minTrain, b.config.Window)
	}

	var out []int
	for k := 0; k < b.config.Origins; k++ {
		idx := n - 1 - b.config.HorizonDays - k*b.config.Step
		if idx+1 < minTrain {
			break
		}
		out = append(out, idx)
	}
	return out
}

// Run backtests over a date-ascending series
func (b *Backtester) Run(ctx context.Context, points []model.PricePoint) (*Result, error) {
	startTime := time.Now()

	if b.config.HorizonDays < 1 || b.config.HorizonDays > forecast.MaxHorizon {
		return nil, fmt.Errorf("%w: %d", forecast.ErrInvalidHorizon, b.config.HorizonDays)
	}

	idxs := b.origins(len(points))
	if len(idxs) == 0 {
		return nil, fmt.Errorf("%w: %d points", ErrNoOrigins, len(points))
	}

	byDate := make(map[time.Time]float64, len(points))
	for _, p := range points {
		byDate[p.Date] = p.Price
	}

	// Channels
	jobChan := make(chan int, len(idxs))
	results := make([]OriginResult, len(idxs))
	for i := range idxs {
		jobChan <- i
	}
	close(jobChan)

	var doneCount int64

	var wg sync.WaitGroup
	for w := 0; w < b.config.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobChan {
				if ctx.Err() != nil {
					return
				}
				results[i] = b.runOrigin(points, idxs[i], byDate)

				count := atomic.AddInt64(&doneCount, 1)
				if b.progressFunc != nil {
					b.progressFunc(int(count), len(idxs))
				}
			}
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := aggregate(results, b.config.HorizonDays)
	res.Elapsed = time.Since(startTime)
	return res, nil
}

func (b *Backtester) runOrigin(points []model.PricePoint, idx int, byDate map[time.Time]float64) OriginResult {
	lo := 0
	if b.config.Window > 0 {
		lo = idx + 1 - b.config.Window
	}
	train := points[lo : idx+1]
	or := OriginResult{Origin: train[len(train)-1].Date}

	m, err := forecast.Fit(train, b.opts)
	if err != nil {
		or.Err = err.Error()
		return or
	}
	preds, err := forecast.Predict(m, forecast.NextBusinessDays(m.End(), b.config.HorizonDays))
	if err != nil {
		or.Err = err.Error()
		return or
	}
	or.Forecast = preds

	or.stepAPE = make([]float64, len(preds))
	or.stepValid = make([]bool, len(preds))
	var apes []float64
	for step, p := range preds {
		actual, ok := byDate[p.Date]
		if !ok {
			// holiday without a settlement price
			continue
		}
		or.Actuals = append(or.Actuals, model.PricePoint{Date: p.Date, Price: actual})
		ape := math.Abs(actual-p.Yhat) / math.Abs(actual) * 100
		or.stepAPE[step] = ape
		or.stepValid[step] = true
		apes = append(apes, ape)
		if actual >= p.YhatLower && actual <= p.YhatUpper {
			or.Covered++
		}
	}
	if len(apes) > 0 {
		or.MAPE = stat.Mean(apes, nil)
	}
	return or
}

func aggregate(results []OriginResult, horizon int) *Result {
	res := &Result{StepMAPE: make([]float64, horizon)}

	stepSum := make([]float64, horizon)
	stepN := make([]int, horizon)
	var all []float64
	covered := 0

	for _, or := range results {
		if or.Err != "" {
			res.Failed++
			continue
		}
		covered += or.Covered
		for step, ok := range or.stepValid {
			if !ok {
				continue
			}
			stepSum[step] += or.stepAPE[step]
			stepN[step]++
			all = append(all, or.stepAPE[step])
		}
	}

	for step := range stepSum {
		if stepN[step] > 0 {
			res.StepMAPE[step] = stepSum[step] / float64(stepN[step])
		}
	}
	res.Scored = len(all)
	if len(all) > 0 {
		res.MAPE = stat.Mean(all, nil)
		res.Coverage = float64(covered) / float64(len(all))
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Origin.After(results[j].Origin)
	})
	res.Origins = results
	return res
}
