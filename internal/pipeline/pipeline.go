// Package pipeline runs the fit, predict and evaluate sequence over the
// current price series and caches finished results.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"brentcast/internal/archive"
	"brentcast/internal/evaluate"
	"brentcast/internal/forecast"
	"brentcast/internal/metrics"
	"brentcast/internal/series"
	"brentcast/pkg/model"
)

// ErrNoSeries is returned when the runner has no price series loaded
var ErrNoSeries = errors.New("no price series loaded")

// Request selects the training window and forecast shape for one run
type Request struct {
	Cutoff           time.Time `json:"cutoff"`
	IntervalWidth    float64   `json:"interval_width"`
	HorizonDays      int       `json:"horizon_days"`
	DailySeasonality bool      `json:"daily_seasonality"`
}

// ModelSummary describes the fitted model of a run
type ModelSummary struct {
	TrainingStart  time.Time       `json:"training_start"`
	TrainingEnd    time.Time       `json:"training_end"`
	TrainingPoints int             `json:"training_points"`
	Seasonalities  []string        `json:"seasonalities"`
	Sigma          float64         `json:"sigma"`
	Params         forecast.Params `json:"params"`
}

// Result is the complete output of one run
type Result struct {
	RunID       string                  `json:"run_id"`
	CreatedAt   time.Time               `json:"created_at"`
	Request     Request                 `json:"request"`
	Model       ModelSummary            `json:"model"`
	Predictions []model.Prediction      `json:"predictions"` // training dates + horizon
	Forecast    []model.Prediction      `json:"forecast"`    // horizon rows only
	Evaluation  *model.EvaluationResult `json:"evaluation"`
	Cached      bool                    `json:"cached"`
}

// RunRecorder persists run outcomes. archive.Store satisfies it.
type RunRecorder interface {
	RecordRun(ctx context.Context, r archive.RunRecord) error
}

type cacheKey struct {
	version  uint64
	cutoff   time.Time
	lastDate time.Time
	width    float64
	horizon  int
	daily    bool
}

// Runner executes pipeline runs against a swappable series
type Runner struct {
	store   atomic.Pointer[series.Store]
	base    forecast.Options
	cache   *lru.Cache[cacheKey, *Result]
	metrics *metrics.Metrics
	logger  *zap.Logger

	recorder RunRecorder
	symbol   string

	onProgress func(done, total int)
	now        func() time.Time
}

// NewRunner creates a runner. base supplies every fitting option the
// Request does not override. cacheSize <= 0 disables caching.
func NewRunner(store *series.Store, base forecast.Options, logger *zap.Logger, m *metrics.Metrics, cacheSize int) (*Runner, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.New(nil)
	}

	r := &Runner{
		base:    base,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
	if cacheSize > 0 {
		cache, err := lru.New[cacheKey, *Result](cacheSize)
		if err != nil {
			return nil, fmt.Errorf("creating result cache: %w", err)
		}
		r.cache = cache
	}
	if store != nil {
		r.SetStore(store)
	}
	return r, nil
}

// SetRecorder stores each fresh run under symbol
func (r *Runner) SetRecorder(rec RunRecorder, symbol string) {
	r.recorder = rec
	r.symbol = symbol
}

// SetProgressCallback forwards interval sampling progress
func (r *Runner) SetProgressCallback(fn func(done, total int)) {
	r.onProgress = fn
}

// Store returns the series currently in use
func (r *Runner) Store() *series.Store {
	return r.store.Load()
}

// SetStore swaps in a new series and drops every cached result
func (r *Runner) SetStore(s *series.Store) {
	r.store.Store(s)
	if r.cache != nil {
		r.cache.Purge()
	}
	r.metrics.SeriesPoints.Set(float64(s.Len()))
}

// Run fits on the series from req.Cutoff, forecasts req.HorizonDays
// business days past the last date and evaluates the in-sample fit.
// It returns either a complete result or an error.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	start := r.now()

	res, cached, err := r.run(ctx, req)
	switch {
	case err != nil:
		r.metrics.Runs.WithLabelValues("error").Inc()
		r.logger.Warn("forecast run failed",
			zap.String("cutoff", req.Cutoff.Format(model.DateLayout)),
			zap.Int("horizon", req.HorizonDays),
			zap.Error(err))
		return nil, err
	case cached:
		r.metrics.Runs.WithLabelValues("cached").Inc()
		return res, nil
	}

	r.metrics.Runs.WithLabelValues("ok").Inc()
	r.metrics.RunDuration.Observe(r.now().Sub(start).Seconds())
	r.metrics.LastMAPE.Set(res.Evaluation.MAPE)
	r.metrics.LastRSquared.Set(res.Evaluation.RSquared)

	r.logger.Info("forecast run complete",
		zap.String("run_id", res.RunID),
		zap.Int("training_points", res.Model.TrainingPoints),
		zap.Int("horizon", req.HorizonDays),
		zap.Float64("mape", res.Evaluation.MAPE),
		zap.Float64("r_squared", res.Evaluation.RSquared),
		zap.Duration("elapsed", r.now().Sub(start)))

	if r.recorder != nil {
		rec := archive.RunRecord{
			RunID:         res.RunID,
			CreatedAt:     res.CreatedAt,
			Symbol:        r.symbol,
			Cutoff:        req.Cutoff,
			HorizonDays:   req.HorizonDays,
			IntervalWidth: req.IntervalWidth,
			MAPE:          res.Evaluation.MAPE,
			RSquared:      res.Evaluation.RSquared,
			Coverage:      res.Evaluation.Coverage,
		}
		if err := r.recorder.RecordRun(ctx, rec); err != nil {
			r.logger.Warn("recording run failed", zap.String("run_id", res.RunID), zap.Error(err))
		}
	}
	return res, nil
}

func (r *Runner) run(ctx context.Context, req Request) (*Result, bool, error) {
	if req.HorizonDays < 1 || req.HorizonDays > forecast.MaxHorizon {
		return nil, false, fmt.Errorf("%w: %d (allowed 1..%d)", forecast.ErrInvalidHorizon, req.HorizonDays, forecast.MaxHorizon)
	}

	store := r.store.Load()
	if store == nil {
		return nil, false, ErrNoSeries
	}

	training, err := store.From(req.Cutoff)
	if err != nil {
		return nil, false, fmt.Errorf("selecting training window: %w", err)
	}

	key := cacheKey{
		version:  store.Version(),
		cutoff:   series.Day(req.Cutoff),
		lastDate: training[len(training)-1].Date,
		width:    req.IntervalWidth,
		horizon:  req.HorizonDays,
		daily:    req.DailySeasonality,
	}
	if r.cache != nil {
		if hit, ok := r.cache.Get(key); ok {
			r.metrics.CacheHits.Inc()
			out := hit.clone()
			out.Cached = true
			return out, true, nil
		}
		r.metrics.CacheMisses.Inc()
	}

	opts := r.base
	opts.IntervalWidth = req.IntervalWidth
	opts.DailySeasonality = req.DailySeasonality

	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	fitStart := r.now()
	m, err := forecast.Fit(training, opts)
	if err != nil {
		return nil, false, fmt.Errorf("fitting model: %w", err)
	}
	r.metrics.FitDuration.Observe(r.now().Sub(fitStart).Seconds())

	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	calendar, err := forecast.BuildFutureCalendar(m, req.HorizonDays)
	if err != nil {
		return nil, false, err
	}

	predictor := forecast.NewPredictor()
	if r.onProgress != nil {
		predictor.SetProgressCallback(r.onProgress)
	}
	preds, err := predictor.Predict(m, calendar)
	if err != nil {
		return nil, false, fmt.Errorf("predicting: %w", err)
	}

	eval, err := evaluate.Evaluate(preds, training)
	if err != nil {
		return nil, false, fmt.Errorf("evaluating: %w", err)
	}

	res := &Result{
		RunID:     uuid.NewString(),
		CreatedAt: r.now(),
		Request:   req,
		Model: ModelSummary{
			TrainingStart:  m.Start(),
			TrainingEnd:    m.End(),
			TrainingPoints: len(training),
			Seasonalities:  m.Seasonalities(),
			Sigma:          m.Sigma(),
			Params:         m.Params(),
		},
		Predictions: preds,
		Forecast:    preds[len(training):],
		Evaluation:  eval,
	}

	if r.cache != nil {
		r.cache.Add(key, res.clone())
	}
	return res, false, nil
}

// clone deep-copies a result so callers never share slices with the cache
func (res *Result) clone() *Result {
	out := *res
	out.Predictions = append([]model.Prediction(nil), res.Predictions...)
	out.Forecast = out.Predictions[len(out.Predictions)-len(res.Forecast):]
	out.Model.Seasonalities = append([]string(nil), res.Model.Seasonalities...)
	out.Model.Params.Changepoints = append([]time.Time(nil), res.Model.Params.Changepoints...)
	out.Model.Params.Deltas = append([]float64(nil), res.Model.Params.Deltas...)
	out.Model.Params.Seasonal = make(map[string][]float64, len(res.Model.Params.Seasonal))
	for name, coef := range res.Model.Params.Seasonal {
		out.Model.Params.Seasonal[name] = append([]float64(nil), coef...)
	}
	if res.Evaluation != nil {
		eval := *res.Evaluation
		eval.Rows = append([]model.EvaluationRow(nil), res.Evaluation.Rows...)
		out.Evaluation = &eval
	}
	return &out
}
