// Package series holds the cleaned daily price history and answers range
// and point queries over it.
package series

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync/atomic"
	"time"

	"brentcast/pkg/model"
)

var (
	// ErrRange is returned when a query range is inverted or does not overlap the data.
	ErrRange = errors.New("invalid or empty range")

	// ErrNotFound is returned when a date has no price (non-trading day or out of range).
	ErrNotFound = errors.New("date not found in series")

	// ErrInvalidSeries is returned when input points cannot form a series.
	ErrInvalidSeries = errors.New("invalid series")
)

var versionSeq atomic.Uint64

// Store is a read-only, date-ordered price series
type Store struct {
	points  []model.PricePoint
	index   map[time.Time]int
	version uint64
}

// Day truncates t to a UTC calendar date
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// New builds a store from unordered points. Duplicate dates and
// non-positive prices are rejected.
func New(points []model.PricePoint) (*Store, error) {
	sorted := make([]model.PricePoint, len(points))
	for i, p := range points {
		if math.IsNaN(p.Price) || math.IsInf(p.Price, 0) || p.Price <= 0 {
			return nil, fmt.Errorf("%w: price %v on %s", ErrInvalidSeries, p.Price, p.Date.Format(model.DateLayout))
		}
		sorted[i] = model.PricePoint{Date: Day(p.Date), Price: p.Price}
	}

	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	index := make(map[time.Time]int, len(sorted))
	for i, p := range sorted {
		if _, dup := index[p.Date]; dup {
			return nil, fmt.Errorf("%w: duplicate date %s", ErrInvalidSeries, p.Date.Format(model.DateLayout))
		}
		index[p.Date] = i
	}

	return &Store{
		points:  sorted,
		index:   index,
		version: versionSeq.Add(1),
	}, nil
}

// Len returns the number of points
func (s *Store) Len() int { return len(s.points) }

// Version identifies this snapshot of the series. A refreshed series gets a new version.
func (s *Store) Version() uint64 { return s.version }

// Points returns a copy of the whole series
func (s *Store) Points() []model.PricePoint {
	out := make([]model.PricePoint, len(s.points))
	copy(out, s.points)
	return out
}

// First returns the earliest point
func (s *Store) First() (model.PricePoint, error) {
	if len(s.points) == 0 {
		return model.PricePoint{}, fmt.Errorf("%w: series is empty", ErrNotFound)
	}
	return s.points[0], nil
}

// Last returns the latest point
func (s *Store) Last() (model.PricePoint, error) {
	if len(s.points) == 0 {
		return model.PricePoint{}, fmt.Errorf("%w: series is empty", ErrNotFound)
	}
	return s.points[len(s.points)-1], nil
}

// Slice returns the points between start and end, both inclusive
func (s *Store) Slice(start, end time.Time) ([]model.PricePoint, error) {
	start, end = Day(start), Day(end)
	if start.After(end) {
		return nil, fmt.Errorf("%w: start %s after end %s", ErrRange,
			start.Format(model.DateLayout), end.Format(model.DateLayout))
	}

	lo := sort.Search(len(s.points), func(i int) bool {
		return !s.points[i].Date.Before(start)
	})
	hi := sort.Search(len(s.points), func(i int) bool {
		return s.points[i].Date.After(end)
	})
	if lo >= hi {
		return nil, fmt.Errorf("%w: no data between %s and %s", ErrRange,
			start.Format(model.DateLayout), end.Format(model.DateLayout))
	}

	out := make([]model.PricePoint, hi-lo)
	copy(out, s.points[lo:hi])
	return out, nil
}

// From returns the training window starting at cutoff through the latest date
func (s *Store) From(cutoff time.Time) ([]model.PricePoint, error) {
	last, err := s.Last()
	if err != nil {
		return nil, fmt.Errorf("%w: series is empty", ErrRange)
	}
	return s.Slice(cutoff, last.Date)
}

// PriceOn returns the price on an exact date
func (s *Store) PriceOn(date time.Time) (float64, error) {
	i, ok := s.index[Day(date)]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, date.Format(model.DateLayout))
	}
	return s.points[i].Price, nil
}

// Nearest returns the latest point on or before date, or the first point
// after it when date precedes the series.
func (s *Store) Nearest(date time.Time) (model.PricePoint, error) {
	if len(s.points) == 0 {
		return model.PricePoint{}, fmt.Errorf("%w: series is empty", ErrNotFound)
	}
	date = Day(date)
	i := sort.Search(len(s.points), func(i int) bool {
		return s.points[i].Date.After(date)
	})
	if i == 0 {
		return s.points[0], nil
	}
	return s.points[i-1], nil
}
