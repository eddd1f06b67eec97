package forecast

import (
	"fmt"
	"time"
)

// IsBusinessDay reports whether t falls on Monday through Friday. No holiday
// calendar is applied.
func IsBusinessDay(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// NextBusinessDays returns the n business days strictly after the given date
func NextBusinessDays(after time.Time, n int) []time.Time {
	if n <= 0 {
		return nil
	}
	out := make([]time.Time, 0, n)
	d := after
	for len(out) < n {
		d = d.AddDate(0, 0, 1)
		if IsBusinessDay(d) {
			out = append(out, d)
		}
	}
	return out
}

// BuildFutureCalendar returns the training dates followed by horizonDays
// business days after the last training date.
func BuildFutureCalendar(m *Model, horizonDays int) ([]time.Time, error) {
	if horizonDays < 1 || horizonDays > MaxHorizon {
		return nil, fmt.Errorf("%w: %d (allowed 1-%d)", ErrInvalidHorizon, horizonDays, MaxHorizon)
	}
	cal := m.TrainingDates()
	return append(cal, NextBusinessDays(m.End(), horizonDays)...), nil
}

func validateCalendar(calendar []time.Time) error {
	if len(calendar) == 0 {
		return fmt.Errorf("%w: no dates", ErrInvalidCalendar)
	}
	for i := 1; i < len(calendar); i++ {
		if !calendar[i].After(calendar[i-1]) {
			return fmt.Errorf("%w: %s does not follow %s", ErrInvalidCalendar,
				calendar[i].Format("2006-01-02"), calendar[i-1].Format("2006-01-02"))
		}
	}
	return nil
}
