package analyzer

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"brentcast/pkg/model"
)

// tradingDaysPerYear annualizes daily return volatility
const tradingDaysPerYear = 252

// HistoryAnalyzer derives descriptive statistics from a price range
type HistoryAnalyzer struct{}

// NewHistoryAnalyzer creates a new history analyzer
func NewHistoryAnalyzer() *HistoryAnalyzer {
	return &HistoryAnalyzer{}
}

// Summarize returns count, mean, min and max of the range.
// Returns nil for an empty range.
func (a *HistoryAnalyzer) Summarize(points []model.PricePoint) *model.Summary {
	if len(points) == 0 {
		return nil
	}

	prices := pricesOf(points)
	s := &model.Summary{
		Start: points[0].Date,
		End:   points[len(points)-1].Date,
		Count: len(points),
		Mean:  stat.Mean(prices, nil),
		Min:   prices[0],
		Max:   prices[0],
	}
	for _, p := range prices[1:] {
		s.Min = math.Min(s.Min, p)
		s.Max = math.Max(s.Max, p)
	}
	return s
}

// DailyChanges annotates each row with the move from the previous row.
// The first row has no predecessor and reports HasPrev=false.
func (a *HistoryAnalyzer) DailyChanges(points []model.PricePoint) []model.DailyChange {
	out := make([]model.DailyChange, len(points))
	for i, p := range points {
		out[i] = model.DailyChange{Date: p.Date, Price: p.Price}
		if i == 0 {
			continue
		}
		prev := points[i-1].Price
		out[i].HasPrev = true
		out[i].Change = p.Price - prev
		out[i].ChangePct = (p.Price - prev) / prev * 100
	}
	return out
}

// YearlyStats groups the range by calendar year, oldest first
func (a *HistoryAnalyzer) YearlyStats(points []model.PricePoint) []model.YearStat {
	var out []model.YearStat
	var prices []float64

	flush := func(year int) {
		if len(prices) == 0 {
			return
		}
		ys := model.YearStat{
			Year:  year,
			Count: len(prices),
			Mean:  stat.Mean(prices, nil),
			Min:   prices[0],
			Max:   prices[0],
		}
		for _, p := range prices[1:] {
			ys.Min = math.Min(ys.Min, p)
			ys.Max = math.Max(ys.Max, p)
		}
		out = append(out, ys)
		prices = prices[:0]
	}

	year := 0
	for _, p := range points {
		if y := p.Date.Year(); y != year {
			flush(year)
			year = y
		}
		prices = append(prices, p.Price)
	}
	flush(year)
	return out
}

// Volatility is the annualized standard deviation of daily log returns,
// in percent. Needs at least three points.
func (a *HistoryAnalyzer) Volatility(points []model.PricePoint) float64 {
	if len(points) < 3 {
		return 0
	}
	returns := make([]float64, len(points)-1)
	for i := 1; i < len(points); i++ {
		returns[i-1] = math.Log(points[i].Price / points[i-1].Price)
	}
	return stat.StdDev(returns, nil) * math.Sqrt(tradingDaysPerYear) * 100
}

// MovingAverage returns the trailing mean of the last period prices
func (a *HistoryAnalyzer) MovingAverage(points []model.PricePoint, period int) (float64, bool) {
	if period <= 0 || len(points) < period {
		return 0, false
	}
	return stat.Mean(pricesOf(points[len(points)-period:]), nil), true
}

func pricesOf(points []model.PricePoint) []float64 {
	prices := make([]float64, len(points))
	for i, p := range points {
		prices[i] = p.Price
	}
	return prices
}
