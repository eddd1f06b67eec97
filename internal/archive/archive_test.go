package archive

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brentcast/pkg/model"
)

func day(s string) time.Time {
	t, err := time.Parse(model.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "sub", "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndLoad(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	pts := []model.PricePoint{
		{Date: day("2024-01-02"), Price: 75.89},
		{Date: day("2024-01-03"), Price: 78.25},
		{Date: day("2024-01-04"), Price: 77.59},
	}
	require.NoError(t, s.Save(ctx, "BZ=F", "yahoo", pts))

	got, err := s.Load(ctx, "BZ=F", day("2024-01-03"))
	require.NoError(t, err)
	assert.Equal(t, pts[1:], got)

	other, err := s.Load(ctx, "CL=F", day("2000-01-01"))
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestSaveUpserts(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "BZ=F", "yahoo", []model.PricePoint{{Date: day("2024-01-02"), Price: 75}}))
	require.NoError(t, s.Save(ctx, "BZ=F", "yahoo", []model.PricePoint{
		{Date: day("2024-01-02"), Price: 76},
		{Date: day("2024-01-03"), Price: 77},
	}))

	got, err := s.Load(ctx, "BZ=F", time.Time{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 76.0, got[0].Price)
}

func TestLastFetched(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	last, err := s.LastFetched(ctx, "BZ=F")
	require.NoError(t, err)
	assert.True(t, last.IsZero())

	fixed := time.Date(2024, 5, 3, 22, 30, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }
	require.NoError(t, s.Save(ctx, "BZ=F", "yahoo", []model.PricePoint{{Date: day("2024-05-03"), Price: 83}}))

	last, err = s.LastFetched(ctx, "BZ=F")
	require.NoError(t, err)
	assert.True(t, last.Equal(fixed))
}

func TestRecordRuns(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	base := time.Date(2024, 5, 3, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.RecordRun(ctx, RunRecord{
			RunID:       id,
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
			Symbol:      "BZ=F",
			Cutoff:      day("2022-05-02"),
			HorizonDays: 1,
			MAPE:        float64(i),
		}))
	}

	runs, err := s.RecentRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].RunID)
	assert.Equal(t, "b", runs[1].RunID)
	assert.Equal(t, day("2022-05-02"), runs[0].Cutoff)

	assert.Error(t, s.RecordRun(ctx, RunRecord{RunID: "a"}), "duplicate run id")
}
