// Package evaluate scores predictions against realized prices.
package evaluate

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"brentcast/pkg/model"
)

var (
	// ErrMisalignment is returned when predictions and actuals cannot be paired.
	ErrMisalignment = errors.New("predictions and actuals are misaligned")

	// ErrDivisionByZero is returned when a metric denominator is zero.
	ErrDivisionByZero = errors.New("division by zero")
)

func dayKey(p model.PricePoint) string { return p.Date.Format(model.DateLayout) }

// Evaluate joins predictions to actuals by date and computes MAPE, R² and
// interval coverage.
//
// MAPE and coverage use the inner join on date. R² pairs the in-sample
// prefix of predictions with actuals by position; the pairing is checked
// date by date so that both metrics always compare the same rows.
func Evaluate(predictions []model.Prediction, actuals []model.PricePoint) (*model.EvaluationResult, error) {
	byDate := make(map[string]float64, len(actuals))
	for _, a := range actuals {
		byDate[dayKey(a)] = a.Price
	}

	rows := make([]model.EvaluationRow, 0, len(actuals))
	apes := make([]float64, 0, len(actuals))
	inside := 0
	for _, p := range predictions {
		actual, ok := byDate[p.Date.Format(model.DateLayout)]
		if !ok {
			continue
		}
		if actual == 0 {
			return nil, fmt.Errorf("%w: actual price is zero on %s", ErrDivisionByZero, p.Date.Format(model.DateLayout))
		}
		ape := math.Abs(actual-p.Yhat) / math.Abs(actual) * 100
		rows = append(rows, model.EvaluationRow{Date: p.Date, Yhat: p.Yhat, Actual: actual, APE: ape})
		apes = append(apes, ape)
		if actual >= p.YhatLower && actual <= p.YhatUpper {
			inside++
		}
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no overlapping dates", ErrMisalignment)
	}

	r2, err := RSquared(predictions, actuals)
	if err != nil {
		return nil, err
	}

	sort.Slice(rows, func(i, j int) bool {
		return rows[i].Date.After(rows[j].Date)
	})

	return &model.EvaluationResult{
		Rows:     rows,
		MAPE:     stat.Mean(apes, nil),
		RSquared: r2,
		Coverage: float64(inside) / float64(len(rows)),
	}, nil
}

// RSquared computes 1 - SS_res/SS_tot with SS_tot about the mean of all
// actuals. predictions[i] is paired with actuals[i]; predictions may run
// past the end of actuals (the forecast rows) and those rows are ignored.
func RSquared(predictions []model.Prediction, actuals []model.PricePoint) (float64, error) {
	if len(actuals) == 0 {
		return 0, fmt.Errorf("%w: no actuals", ErrMisalignment)
	}
	if len(predictions) < len(actuals) {
		return 0, fmt.Errorf("%w: %d predictions for %d actuals", ErrMisalignment, len(predictions), len(actuals))
	}

	y := make([]float64, len(actuals))
	for i, a := range actuals {
		if got := predictions[i].Date.Format(model.DateLayout); got != dayKey(a) {
			return 0, fmt.Errorf("%w: row %d is %s, expected %s", ErrMisalignment, i, got, dayKey(a))
		}
		y[i] = a.Price
	}

	mean := stat.Mean(y, nil)
	var ssTot, ssRes float64
	for i, v := range y {
		ssTot += (v - mean) * (v - mean)
		r := predictions[i].Yhat - v
		ssRes += r * r
	}
	if ssTot == 0 {
		return 0, fmt.Errorf("%w: actuals have zero variance", ErrDivisionByZero)
	}
	return 1 - ssRes/ssTot, nil
}
