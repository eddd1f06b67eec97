package daemon

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"brentcast/internal/metrics"
	"brentcast/internal/provider"
	"brentcast/internal/series"
	"brentcast/pkg/model"
)

type fakeProvider struct {
	mu     sync.Mutex
	points []model.PricePoint
	err    error
}

func (f *fakeProvider) Name() string      { return "fake" }
func (f *fakeProvider) IsAvailable() bool { return true }
func (f *fakeProvider) RateLimit() int    { return 60 }

func (f *fakeProvider) GetDailySeries(ctx context.Context, symbol string, start time.Time) ([]model.PricePoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.points, f.err
}

type holder struct {
	mu    sync.Mutex
	store *series.Store
	swaps int
}

func (h *holder) Store() *series.Store {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.store
}

func (h *holder) SetStore(s *series.Store) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.store = s
	h.swaps++
}

func points(n int) []model.PricePoint {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]model.PricePoint, n)
	for i := range out {
		out[i] = model.PricePoint{Date: start.AddDate(0, 0, i), Price: 80 + float64(i)}
	}
	return out
}

func TestRefreshSwapsOnlyOnChange(t *testing.T) {
	p := &fakeProvider{points: points(10)}
	h := &holder{}
	m := metrics.New(nil)
	r := NewRefresher(p, h, "BZ=F", time.Time{}, m, zaptest.NewLogger(t))
	ctx := context.Background()

	require.NoError(t, r.Refresh(ctx))
	assert.Equal(t, 1, h.swaps)
	assert.Equal(t, 10, h.Store().Len())
	assert.False(t, r.LastRefresh().IsZero())

	require.NoError(t, r.Refresh(ctx))
	assert.Equal(t, 1, h.swaps, "identical series must not be swapped")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Refreshes.WithLabelValues("unchanged")))

	p.points = points(11)
	require.NoError(t, r.Refresh(ctx))
	assert.Equal(t, 2, h.swaps)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Refreshes.WithLabelValues("updated")))
}

func TestRefreshKeepsSeriesOnFailure(t *testing.T) {
	p := &fakeProvider{points: points(5)}
	h := &holder{}
	r := NewRefresher(p, h, "BZ=F", time.Time{}, nil, zaptest.NewLogger(t))
	require.NoError(t, r.Refresh(context.Background()))
	before := h.Store()

	p.err = &provider.ProviderError{Provider: "fake", Err: provider.ErrUpstreamData}
	err := r.Refresh(context.Background())
	assert.True(t, errors.Is(err, provider.ErrUpstreamData))
	assert.Same(t, before, h.Store())

	p.err = nil
	p.points = []model.PricePoint{{Date: time.Now(), Price: -1}}
	err = r.Refresh(context.Background())
	assert.ErrorIs(t, err, series.ErrInvalidSeries)
	assert.Same(t, before, h.Store())
}

func TestStartRejectsBadSpec(t *testing.T) {
	r := NewRefresher(&fakeProvider{}, &holder{}, "BZ=F", time.Time{}, nil, zaptest.NewLogger(t))
	assert.Error(t, r.Start(context.Background(), "not a cron"))

	require.NoError(t, r.Start(context.Background(), "30 22 * * 1-5"))
	r.Stop()
}

type blockingProvider struct {
	fakeProvider
	entered chan struct{}
	release chan struct{}
}

func (b *blockingProvider) GetDailySeries(ctx context.Context, symbol string, start time.Time) ([]model.PricePoint, error) {
	close(b.entered)
	select {
	case <-b.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return b.fakeProvider.GetDailySeries(ctx, symbol, start)
}

func TestLastRefreshDoesNotWaitForDownload(t *testing.T) {
	p := &blockingProvider{
		fakeProvider: fakeProvider{points: points(5)},
		entered:      make(chan struct{}),
		release:      make(chan struct{}),
	}
	r := NewRefresher(p, &holder{}, "BZ=F", time.Time{}, nil, zaptest.NewLogger(t))

	done := make(chan error, 1)
	go func() { done <- r.Refresh(context.Background()) }()
	<-p.entered

	got := make(chan time.Time, 1)
	go func() { got <- r.LastRefresh() }()
	select {
	case last := <-got:
		assert.True(t, last.IsZero(), "no refresh has finished yet")
	case <-time.After(500 * time.Millisecond):
		t.Fatal("LastRefresh blocked while a download was in flight")
	}

	close(p.release)
	require.NoError(t, <-done)
	assert.False(t, r.LastRefresh().IsZero())
}
