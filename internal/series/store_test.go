package series

import (
	"errors"
	"testing"
	"time"

	"brentcast/pkg/model"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func testStore(t *testing.T) *Store {
	t.Helper()
	// Fri 2024-01-05 .. Wed 2024-01-10, weekend absent
	s, err := New([]model.PricePoint{
		{Date: date(2024, 1, 9), Price: 78.0},
		{Date: date(2024, 1, 5), Price: 75.0},
		{Date: date(2024, 1, 8), Price: 76.5},
		{Date: date(2024, 1, 10), Price: 77.2},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestNewSortsAndValidates(t *testing.T) {
	s := testStore(t)
	pts := s.Points()
	for i := 1; i < len(pts); i++ {
		if !pts[i].Date.After(pts[i-1].Date) {
			t.Fatalf("Expected ascending dates at %d, got %v after %v", i, pts[i].Date, pts[i-1].Date)
		}
	}

	tests := []struct {
		name   string
		points []model.PricePoint
	}{
		{"duplicate date", []model.PricePoint{{Date: date(2024, 1, 5), Price: 1}, {Date: date(2024, 1, 5).Add(3 * time.Hour), Price: 2}}},
		{"zero price", []model.PricePoint{{Date: date(2024, 1, 5), Price: 0}}},
		{"negative price", []model.PricePoint{{Date: date(2024, 1, 5), Price: -3}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.points); !errors.Is(err, ErrInvalidSeries) {
				t.Errorf("Expected ErrInvalidSeries, got %v", err)
			}
		})
	}
}

func TestVersionChangesPerSnapshot(t *testing.T) {
	a := testStore(t)
	b := testStore(t)
	if a.Version() == b.Version() {
		t.Error("Expected distinct versions for distinct snapshots")
	}
}

func TestSlice(t *testing.T) {
	s := testStore(t)

	got, err := s.Slice(date(2024, 1, 6), date(2024, 1, 9))
	if err != nil {
		t.Fatalf("Slice: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 points, got %d", len(got))
	}
	if !got[0].Date.Equal(date(2024, 1, 8)) || !got[1].Date.Equal(date(2024, 1, 9)) {
		t.Errorf("Unexpected slice %v", got)
	}

	// inclusive bounds
	got, err = s.Slice(date(2024, 1, 5), date(2024, 1, 10))
	if err != nil || len(got) != 4 {
		t.Errorf("Expected all 4 points, got %d (err=%v)", len(got), err)
	}

	if _, err := s.Slice(date(2024, 1, 10), date(2024, 1, 5)); !errors.Is(err, ErrRange) {
		t.Errorf("Expected ErrRange for inverted range, got %v", err)
	}
	if _, err := s.Slice(date(2024, 1, 6), date(2024, 1, 7)); !errors.Is(err, ErrRange) {
		t.Errorf("Expected ErrRange for weekend-only range, got %v", err)
	}
	if _, err := s.Slice(date(2023, 1, 1), date(2023, 12, 31)); !errors.Is(err, ErrRange) {
		t.Errorf("Expected ErrRange for range before data, got %v", err)
	}
}

func TestSliceReturnsCopy(t *testing.T) {
	s := testStore(t)
	got, _ := s.Slice(date(2024, 1, 5), date(2024, 1, 10))
	got[0].Price = 999
	if p, _ := s.PriceOn(date(2024, 1, 5)); p != 75.0 {
		t.Errorf("Store mutated through slice: got %f", p)
	}
}

func TestFrom(t *testing.T) {
	s := testStore(t)
	got, err := s.From(date(2024, 1, 8))
	if err != nil {
		t.Fatalf("From: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("Expected 3 points, got %d", len(got))
	}
	if _, err := s.From(date(2025, 1, 1)); !errors.Is(err, ErrRange) {
		t.Errorf("Expected ErrRange for cutoff after data, got %v", err)
	}
}

func TestPriceOn(t *testing.T) {
	s := testStore(t)

	p, err := s.PriceOn(time.Date(2024, 1, 8, 15, 30, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("PriceOn: %v", err)
	}
	if p != 76.5 {
		t.Errorf("Expected 76.5, got %f", p)
	}

	if _, err := s.PriceOn(date(2024, 1, 6)); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for Saturday, got %v", err)
	}
}

func TestNearest(t *testing.T) {
	s := testStore(t)

	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{"exact", date(2024, 1, 9), date(2024, 1, 9)},
		{"weekend uses friday", date(2024, 1, 7), date(2024, 1, 5)},
		{"before data uses first", date(2023, 12, 1), date(2024, 1, 5)},
		{"after data uses last", date(2024, 2, 1), date(2024, 1, 10)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Nearest(tt.in)
			if err != nil {
				t.Fatalf("Nearest: %v", err)
			}
			if !got.Date.Equal(tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, got.Date)
			}
		})
	}

	empty, _ := New(nil)
	if _, err := empty.Nearest(date(2024, 1, 1)); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on empty store, got %v", err)
	}
}
