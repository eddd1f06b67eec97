package model

import "time"

// DateLayout is the calendar-date format used across tables and the API
const DateLayout = "2006-01-02"

// PricePoint is a single daily closing price
type PricePoint struct {
	Date  time.Time `json:"date"`
	Price float64   `json:"price"`
}

// Prediction is the model output for one calendar date
type Prediction struct {
	Date      time.Time `json:"date"`
	Yhat      float64   `json:"yhat"`
	YhatLower float64   `json:"yhat_lower"`
	YhatUpper float64   `json:"yhat_upper"`

	// Additive components; Yhat = Trend + Yearly + Weekly + Daily
	Trend  float64 `json:"trend"`
	Yearly float64 `json:"yearly,omitempty"`
	Weekly float64 `json:"weekly,omitempty"`
	Daily  float64 `json:"daily,omitempty"`
}

// EvaluationRow pairs a prediction with the realized price on the same date
type EvaluationRow struct {
	Date   time.Time `json:"date"`
	Yhat   float64   `json:"yhat"`
	Actual float64   `json:"actual"`
	APE    float64   `json:"ape"` // absolute percentage error, percent
}

// EvaluationResult holds in-sample accuracy metrics
type EvaluationResult struct {
	Rows     []EvaluationRow `json:"rows"`      // date descending
	MAPE     float64         `json:"mape"`      // percent
	RSquared float64         `json:"r_squared"` // unitless
	Coverage float64         `json:"coverage"`  // share of actuals inside [lower, upper]
}

// DailyChange is a price row annotated with the move from the previous row
type DailyChange struct {
	Date      time.Time `json:"date"`
	Price     float64   `json:"price"`
	Change    float64   `json:"change"`
	ChangePct float64   `json:"change_pct"`
	HasPrev   bool      `json:"has_prev"`
}

// Summary holds the headline statistics of a price range
type Summary struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Count int       `json:"count"`
	Mean  float64   `json:"mean"`
	Min   float64   `json:"min"`
	Max   float64   `json:"max"`
}

// YearStat is the average price within one calendar year
type YearStat struct {
	Year  int     `json:"year"`
	Count int     `json:"count"`
	Mean  float64 `json:"mean"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}
