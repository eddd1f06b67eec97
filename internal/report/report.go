// Package report turns pipeline output into display rows with fixed
// decimal rounding.
package report

import (
	"fmt"

	"github.com/shopspring/decimal"

	"brentcast/pkg/model"
)

// Decimal places used for display
const (
	PricePlaces = 2
	BoundPlaces = 3
)

var (
	ForecastHeader   = []string{"Date", "Forecast", "Lower", "Upper"}
	EvaluationHeader = []string{"Date", "Forecast", "Actual", "APE %"}
	HistoryHeader    = []string{"Date", "Price", "Change", "Change %"}
	YearHeader       = []string{"Year", "Days", "Mean", "Min", "Max"}
)

// Round rounds half away from zero to places decimals
func Round(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

// Fixed formats v with exactly places decimals
func Fixed(v float64, places int32) string {
	return decimal.NewFromFloat(v).StringFixed(places)
}

// RoundPrediction applies display rounding: point estimate to 2 places,
// bounds to 3, components to 2
func RoundPrediction(p model.Prediction) model.Prediction {
	p.Yhat = Round(p.Yhat, PricePlaces)
	p.YhatLower = Round(p.YhatLower, BoundPlaces)
	p.YhatUpper = Round(p.YhatUpper, BoundPlaces)
	p.Trend = Round(p.Trend, PricePlaces)
	p.Yearly = Round(p.Yearly, PricePlaces)
	p.Weekly = Round(p.Weekly, PricePlaces)
	p.Daily = Round(p.Daily, PricePlaces)
	return p
}

// RoundPredictions rounds a copy of preds
func RoundPredictions(preds []model.Prediction) []model.Prediction {
	out := make([]model.Prediction, len(preds))
	for i, p := range preds {
		out[i] = RoundPrediction(p)
	}
	return out
}

// ForecastRows formats predictions for a table
func ForecastRows(preds []model.Prediction) [][]string {
	rows := make([][]string, len(preds))
	for i, p := range preds {
		rows[i] = []string{
			p.Date.Format(model.DateLayout),
			Fixed(p.Yhat, PricePlaces),
			Fixed(p.YhatLower, BoundPlaces),
			Fixed(p.YhatUpper, BoundPlaces),
		}
	}
	return rows
}

// ComponentRows formats the additive decomposition of predictions
func ComponentRows(preds []model.Prediction) [][]string {
	rows := make([][]string, len(preds))
	for i, p := range preds {
		rows[i] = []string{
			p.Date.Format(model.DateLayout),
			Fixed(p.Trend, PricePlaces),
			Fixed(p.Yearly, PricePlaces),
			Fixed(p.Weekly, PricePlaces),
			Fixed(p.Daily, PricePlaces),
		}
	}
	return rows
}

// EvaluationRows formats evaluation rows in the order given (newest first)
func EvaluationRows(rows []model.EvaluationRow) [][]string {
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = []string{
			r.Date.Format(model.DateLayout),
			Fixed(r.Yhat, PricePlaces),
			Fixed(r.Actual, PricePlaces),
			Fixed(r.APE, PricePlaces),
		}
	}
	return out
}

// HistoryRows formats daily changes; the first row has blank change cells
func HistoryRows(changes []model.DailyChange) [][]string {
	rows := make([][]string, len(changes))
	for i, c := range changes {
		change, pct := "", ""
		if c.HasPrev {
			change = Fixed(c.Change, PricePlaces)
			pct = Fixed(c.ChangePct, PricePlaces) + "%"
		}
		rows[i] = []string{c.Date.Format(model.DateLayout), Fixed(c.Price, PricePlaces), change, pct}
	}
	return rows
}

// YearRows formats per-year statistics
func YearRows(stats []model.YearStat) [][]string {
	rows := make([][]string, len(stats))
	for i, s := range stats {
		rows[i] = []string{
			fmt.Sprintf("%d", s.Year),
			fmt.Sprintf("%d", s.Count),
			Fixed(s.Mean, PricePlaces),
			Fixed(s.Min, PricePlaces),
			Fixed(s.Max, PricePlaces),
		}
	}
	return rows
}

// SummaryLine is the one-line accuracy statement. R² is unitless; the "%"
// suffix is only appended when r2Percent is set.
func SummaryLine(res *model.EvaluationResult, r2Percent bool) string {
	r2 := Fixed(res.RSquared, 2)
	if r2Percent {
		r2 += "%"
	}
	return fmt.Sprintf("MAPE of %s%% and R² of %s", Fixed(res.MAPE, 2), r2)
}

// RangeLine summarizes a price range ("big numbers")
func RangeLine(s *model.Summary) string {
	if s == nil {
		return "no prices in range"
	}
	return fmt.Sprintf("%s to %s: %d days, mean %s, min %s, max %s",
		s.Start.Format(model.DateLayout), s.End.Format(model.DateLayout), s.Count,
		Fixed(s.Mean, PricePlaces), Fixed(s.Min, PricePlaces), Fixed(s.Max, PricePlaces))
}
