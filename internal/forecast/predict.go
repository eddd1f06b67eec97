package forecast

import (
	"math"
	"time"

	"brentcast/pkg/model"
)

// Predictor evaluates a fitted model over a calendar of dates
type Predictor struct {
	onProgress func(done, total int)
}

// NewPredictor creates a predictor
func NewPredictor() *Predictor {
	return &Predictor{}
}

// SetProgressCallback sets a callback invoked while interval samples are drawn
func (p *Predictor) SetProgressCallback(fn func(done, total int)) {
	p.onProgress = fn
}

// Predict evaluates the model at every calendar date. Dates inside the
// training window give in-sample fits; later dates are the forecast. The
// trend past the last changepoint keeps the final segment's slope.
func Predict(m *Model, calendar []time.Time) ([]model.Prediction, error) {
	return NewPredictor().Predict(m, calendar)
}

// Forecast builds the future calendar and predicts over it
func Forecast(m *Model, horizonDays int) ([]model.Prediction, error) {
	cal, err := BuildFutureCalendar(m, horizonDays)
	if err != nil {
		return nil, err
	}
	return Predict(m, cal)
}

// Predict evaluates the model at every calendar date
func (p *Predictor) Predict(m *Model, calendar []time.Time) ([]model.Prediction, error) {
	if err := validateCalendar(calendar); err != nil {
		return nil, err
	}

	n := len(calendar)
	preds := make([]model.Prediction, n)
	ts := make([]float64, n)
	yhat := make([]float64, n)

	var row []float64
	for i, d := range calendar {
		var trend float64
		var seasonal []float64
		trend, seasonal, row = m.components(d, row)

		pred := model.Prediction{Date: d, Trend: trend * m.yScale}
		total := trend
		for j, s := range m.layout.seasonal {
			total += seasonal[j]
			v := seasonal[j] * m.yScale
			switch s.Name {
			case "yearly":
				pred.Yearly = v
			case "weekly":
				pred.Weekly = v
			case "daily":
				pred.Daily = v
			}
		}
		pred.Yhat = total * m.yScale

		preds[i] = pred
		ts[i] = m.layout.scaledTime(d)
		yhat[i] = total
	}

	lower, upper := p.intervals(m, ts, yhat)
	for i := range preds {
		// sampled quantiles can land on the wrong side of yhat when the
		// spread is tiny; the point estimate always lies inside its interval
		preds[i].YhatLower = math.Min(lower[i]*m.yScale, preds[i].Yhat)
		preds[i].YhatUpper = math.Max(upper[i]*m.yScale, preds[i].Yhat)
	}
	return preds, nil
}
