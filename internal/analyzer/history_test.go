package analyzer

import (
	"math"
	"testing"
	"time"

	"brentcast/pkg/model"
)

func pts(start time.Time, prices ...float64) []model.PricePoint {
	out := make([]model.PricePoint, len(prices))
	for i, p := range prices {
		out[i] = model.PricePoint{Date: start.AddDate(0, 0, i), Price: p}
	}
	return out
}

func TestSummarize(t *testing.T) {
	a := NewHistoryAnalyzer()

	if a.Summarize(nil) != nil {
		t.Error("Expected nil summary for empty range")
	}

	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	s := a.Summarize(pts(start, 80, 84, 78, 82))
	if s.Count != 4 {
		t.Errorf("Expected count 4, got %d", s.Count)
	}
	if s.Mean != 81 {
		t.Errorf("Expected mean 81, got %f", s.Mean)
	}
	if s.Min != 78 || s.Max != 84 {
		t.Errorf("Expected min 78 max 84, got %f %f", s.Min, s.Max)
	}
	if !s.Start.Equal(start) || !s.End.Equal(start.AddDate(0, 0, 3)) {
		t.Errorf("Unexpected bounds %s..%s", s.Start, s.End)
	}
}

func TestDailyChanges(t *testing.T) {
	a := NewHistoryAnalyzer()
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	rows := a.DailyChanges(pts(start, 100, 102, 96.9))
	if len(rows) != 3 {
		t.Fatalf("Expected 3 rows, got %d", len(rows))
	}
	if rows[0].HasPrev {
		t.Error("First row should have no predecessor")
	}
	if math.Abs(rows[1].Change-2) > 1e-9 || math.Abs(rows[1].ChangePct-2) > 1e-9 {
		t.Errorf("Expected +2 / +2%%, got %f / %f", rows[1].Change, rows[1].ChangePct)
	}
	if math.Abs(rows[2].ChangePct-(-5)) > 1e-9 {
		t.Errorf("Expected -5%%, got %f", rows[2].ChangePct)
	}
}

func TestYearlyStats(t *testing.T) {
	a := NewHistoryAnalyzer()
	points := []model.PricePoint{
		{Date: time.Date(2022, 12, 29, 0, 0, 0, 0, time.UTC), Price: 80},
		{Date: time.Date(2022, 12, 30, 0, 0, 0, 0, time.UTC), Price: 90},
		{Date: time.Date(2023, 1, 3, 0, 0, 0, 0, time.UTC), Price: 70},
	}

	stats := a.YearlyStats(points)
	if len(stats) != 2 {
		t.Fatalf("Expected 2 years, got %d", len(stats))
	}
	if stats[0].Year != 2022 || stats[0].Mean != 85 || stats[0].Count != 2 {
		t.Errorf("Unexpected 2022 stats %+v", stats[0])
	}
	if stats[1].Year != 2023 || stats[1].Mean != 70 || stats[1].Min != 70 {
		t.Errorf("Unexpected 2023 stats %+v", stats[1])
	}

	if len(a.YearlyStats(nil)) != 0 {
		t.Error("Expected no stats for empty input")
	}
}

func TestVolatilityAndMovingAverage(t *testing.T) {
	a := NewHistoryAnalyzer()
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	flat := pts(start, 80, 80, 80, 80)
	if v := a.Volatility(flat); v != 0 {
		t.Errorf("Expected zero volatility for flat prices, got %f", v)
	}
	if v := a.Volatility(pts(start, 80, 82, 79, 83)); v <= 0 {
		t.Errorf("Expected positive volatility, got %f", v)
	}

	ma, ok := a.MovingAverage(pts(start, 1, 2, 3, 4), 2)
	if !ok || ma != 3.5 {
		t.Errorf("Expected MA 3.5, got %f (ok=%v)", ma, ok)
	}
	if _, ok := a.MovingAverage(flat, 5); ok {
		t.Error("Expected MA to be unavailable with too few points")
	}
}
