// Package forecast fits an additive piecewise-linear trend plus Fourier
// seasonality model to a daily price series and predicts business days
// ahead of it with uncertainty intervals.
package forecast

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientData is returned when the training series cannot identify the model terms.
	ErrInsufficientData = errors.New("insufficient training data")

	// ErrInvalidHorizon is returned when the requested horizon is outside [1, MaxHorizon].
	ErrInvalidHorizon = errors.New("invalid forecast horizon")

	// ErrInvalidCalendar is returned when prediction dates are empty, unsorted or duplicated.
	ErrInvalidCalendar = errors.New("invalid prediction calendar")

	// ErrInvalidOptions is returned for out-of-range model options.
	ErrInvalidOptions = errors.New("invalid model options")
)

// MaxHorizon is the longest forecast, in business days
const MaxHorizon = 7

// SeasonalityMode controls whether a seasonal component is fitted
type SeasonalityMode string

const (
	// SeasonalityAuto enables the component when the training span covers two cycles
	SeasonalityAuto SeasonalityMode = "auto"
	SeasonalityOn   SeasonalityMode = "on"
	SeasonalityOff  SeasonalityMode = "off"
)

// Options configures model fitting and interval estimation
type Options struct {
	IntervalWidth float64 // target coverage of [YhatLower, YhatUpper]

	YearlySeasonality SeasonalityMode
	WeeklySeasonality SeasonalityMode
	DailySeasonality  bool // sub-day cycles; off for once-daily prices

	YearlyOrder int
	WeeklyOrder int
	DailyOrder  int

	NumChangepoints       int
	ChangepointRange      float64 // share of history eligible for changepoints
	ChangepointPriorScale float64
	SeasonalityPriorScale float64

	UncertaintySamples int
	Seed               uint64

	MinPoints int
}

// DefaultOptions returns the options used by the command line and server
func DefaultOptions() Options {
	return Options{
		IntervalWidth:         0.95,
		YearlySeasonality:     SeasonalityAuto,
		WeeklySeasonality:     SeasonalityAuto,
		DailySeasonality:      false,
		YearlyOrder:           10,
		WeeklyOrder:           3,
		DailyOrder:            4,
		NumChangepoints:       25,
		ChangepointRange:      0.8,
		ChangepointPriorScale: 0.05,
		SeasonalityPriorScale: 10,
		UncertaintySamples:    1000,
		Seed:                  42,
		MinPoints:             14,
	}
}

func (o Options) validate() error {
	if !(o.IntervalWidth > 0 && o.IntervalWidth < 1) {
		return fmt.Errorf("%w: interval width %v must be in (0, 1)", ErrInvalidOptions, o.IntervalWidth)
	}
	for _, m := range []SeasonalityMode{o.YearlySeasonality, o.WeeklySeasonality} {
		switch m {
		case SeasonalityAuto, SeasonalityOn, SeasonalityOff:
		default:
			return fmt.Errorf("%w: seasonality mode %q", ErrInvalidOptions, m)
		}
	}
	if o.YearlyOrder < 1 || o.WeeklyOrder < 1 || o.DailyOrder < 1 {
		return fmt.Errorf("%w: fourier orders must be positive", ErrInvalidOptions)
	}
	if o.NumChangepoints < 0 {
		return fmt.Errorf("%w: num changepoints must not be negative", ErrInvalidOptions)
	}
	if !(o.ChangepointRange > 0 && o.ChangepointRange <= 1) {
		return fmt.Errorf("%w: changepoint range %v must be in (0, 1]", ErrInvalidOptions, o.ChangepointRange)
	}
	if o.ChangepointPriorScale <= 0 || o.SeasonalityPriorScale <= 0 {
		return fmt.Errorf("%w: prior scales must be positive", ErrInvalidOptions)
	}
	if o.UncertaintySamples < 0 {
		return fmt.Errorf("%w: uncertainty samples must not be negative", ErrInvalidOptions)
	}
	if o.MinPoints < 2 {
		return fmt.Errorf("%w: min points must be at least 2", ErrInvalidOptions)
	}
	return nil
}
