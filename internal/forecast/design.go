package forecast

import (
	"math"
	"time"
)

const (
	yearlyPeriod = 365.25
	weeklyPeriod = 7.0
	dailyPeriod  = 1.0

	secondsPerDay = 86400.0
)

// seasonality is one Fourier block of the design matrix
type seasonality struct {
	Name   string  `json:"name"`
	Period float64 `json:"period"` // days
	Order  int     `json:"order"`
}

// epochDays is t measured in fractional days since the Unix epoch.
// Seasonal phases use absolute time so they stay aligned for any date.
func epochDays(t time.Time) float64 {
	return float64(t.Unix()) / secondsPerDay
}

// fourier appends sin/cos pairs for harmonics 1..order
func fourier(dst []float64, days, period float64, order int) []float64 {
	for k := 1; k <= order; k++ {
		x := 2 * math.Pi * float64(k) * days / period
		dst = append(dst, math.Sin(x), math.Cos(x))
	}
	return dst
}

// layout describes the regression columns:
// [intercept, slope, hinge per changepoint..., fourier blocks...]
type layout struct {
	start        time.Time
	spanDays     float64
	changepoints []float64 // scaled time
	seasonal     []seasonality
}

func (l *layout) scaledTime(t time.Time) float64 {
	return t.Sub(l.start).Hours() / 24 / l.spanDays
}

func (l *layout) numCols() int {
	n := 2 + len(l.changepoints)
	for _, s := range l.seasonal {
		n += 2 * s.Order
	}
	return n
}

func (l *layout) seasonalOffset() int {
	return 2 + len(l.changepoints)
}

// row fills the design row for t
func (l *layout) row(t time.Time, dst []float64) []float64 {
	ts := l.scaledTime(t)
	dst = append(dst[:0], 1, ts)
	for _, cp := range l.changepoints {
		dst = append(dst, math.Max(0, ts-cp))
	}
	days := epochDays(t)
	for _, s := range l.seasonal {
		dst = fourier(dst, days, s.Period, s.Order)
	}
	return dst
}

// placeChangepoints spaces n changepoints evenly over the first share of
// the training points, returning their scaled times.
func placeChangepoints(ts []float64, n int, share float64) []float64 {
	hist := int(math.Floor(float64(len(ts)) * share))
	if n > hist-1 {
		n = hist - 1
	}
	if n <= 0 {
		return nil
	}

	cps := make([]float64, 0, n)
	step := float64(hist-1) / float64(n)
	for j := 1; j <= n; j++ {
		idx := int(math.Round(float64(j) * step))
		cp := ts[idx]
		if len(cps) > 0 && cp <= cps[len(cps)-1] {
			continue
		}
		cps = append(cps, cp)
	}
	return cps
}

// resolveSeasonality picks the Fourier blocks for a training span
func resolveSeasonality(opts Options, spanDays float64) ([]seasonality, error) {
	var out []seasonality

	pick := func(name string, mode SeasonalityMode, period float64, order int) error {
		enough := spanDays >= 2*period
		switch mode {
		case SeasonalityOff:
			return nil
		case SeasonalityOn:
			if !enough {
				return insufficientf("%s seasonality needs %.0f days of history, have %.0f", name, 2*period, spanDays)
			}
		case SeasonalityAuto:
			if !enough {
				return nil
			}
		}
		out = append(out, seasonality{Name: name, Period: period, Order: order})
		return nil
	}

	if err := pick("yearly", opts.YearlySeasonality, yearlyPeriod, opts.YearlyOrder); err != nil {
		return nil, err
	}
	if err := pick("weekly", opts.WeeklySeasonality, weeklyPeriod, opts.WeeklyOrder); err != nil {
		return nil, err
	}
	if opts.DailySeasonality {
		if err := pick("daily", SeasonalityOn, dailyPeriod, opts.DailyOrder); err != nil {
			return nil, err
		}
	}
	return out, nil
}
