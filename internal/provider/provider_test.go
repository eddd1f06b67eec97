package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"brentcast/pkg/model"
)

func day(s string) time.Time {
	t, err := time.Parse(model.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

const yahooBody = `{"chart":{"result":[{"meta":{"symbol":"BZ=F","currency":"USD","gmtoffset":-14400},
"timestamp":[1714536000,1714622400,1714708800,1714708900],
"indicators":{"quote":[{"close":[83.44,null,83.67,83.96]}]}}],"error":null}}`

func TestYahooDailySeries(t *testing.T) {
	var gotPath, gotInterval string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotInterval = r.URL.Query().Get("interval")
		fmt.Fprint(w, yahooBody)
	}))
	defer srv.Close()

	p := NewYahooProvider(600, time.Second)
	p.SetBaseURL(srv.URL)

	pts, err := p.GetDailySeries(context.Background(), "BZ=F", day("2024-01-01"))
	require.NoError(t, err)

	assert.Equal(t, "/BZ=F", gotPath)
	assert.Equal(t, "1d", gotInterval)
	// null close skipped; duplicate session keeps the last bar
	require.Len(t, pts, 2)
	assert.Equal(t, day("2024-05-01"), pts[0].Date)
	assert.Equal(t, 83.44, pts[0].Price)
	assert.Equal(t, day("2024-05-03"), pts[1].Date)
	assert.Equal(t, 83.96, pts[1].Price)
}

func TestYahooErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		upstream  bool
		retryable bool
	}{
		{"chart error", 200, `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found"}}}`, true, false},
		{"empty result", 200, `{"chart":{"result":[],"error":null}}`, true, false},
		{"garbage", 200, `not json`, true, false},
		{"rate limited", http.StatusTooManyRequests, ``, true, true},
		{"server error", http.StatusBadGateway, ``, true, true},
		{"not found", http.StatusNotFound, ``, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			p := NewYahooProvider(600, time.Second)
			p.SetBaseURL(srv.URL)

			_, err := p.GetDailySeries(context.Background(), "BZ=F", day("2024-01-01"))
			require.Error(t, err)

			var pe *ProviderError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, "yahoo", pe.Provider)
			assert.Equal(t, tt.retryable, pe.Retryable)
			assert.Equal(t, tt.upstream, errors.Is(err, ErrUpstreamData))
		})
	}
}

func TestTransportFailureIsUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	p := NewYahooProvider(600, time.Second)
	p.SetBaseURL(url)

	_, err := p.GetDailySeries(context.Background(), "BZ=F", day("2024-01-01"))
	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.True(t, pe.Retryable)
	assert.ErrorIs(t, err, ErrUpstreamData)
}

func TestAlphaVantageBrent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "BRENT", r.URL.Query().Get("function"))
		assert.Equal(t, "daily", r.URL.Query().Get("interval"))
		assert.Equal(t, "demo", r.URL.Query().Get("apikey"))
		fmt.Fprint(w, `{"name":"Crude Oil Prices: Brent","interval":"daily","unit":"dollars per barrel",
"data":[{"date":"2024-05-03","value":"83.67"},{"date":"2024-05-02","value":"."},{"date":"2024-05-01","value":"83.44"},{"date":"2023-12-29","value":"77.69"}]}`)
	}))
	defer srv.Close()

	p := NewAlphaVantageProvider("demo", 600, time.Second)
	p.SetBaseURL(srv.URL)
	assert.True(t, p.IsAvailable())

	pts, err := p.GetDailySeries(context.Background(), "ignored", day("2024-01-01"))
	require.NoError(t, err)
	assert.Equal(t, []model.PricePoint{
		{Date: day("2024-05-01"), Price: 83.44},
		{Date: day("2024-05-03"), Price: 83.67},
	}, pts)
}

func TestAlphaVantageRateLimitNote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"Information":"Thank you for using Alpha Vantage! Our standard API rate limit is 25 requests per day."}`)
	}))
	defer srv.Close()

	p := NewAlphaVantageProvider("demo", 600, time.Second)
	p.SetBaseURL(srv.URL)

	_, err := p.GetDailySeries(context.Background(), "", day("2024-01-01"))
	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.True(t, pe.Retryable)
	assert.False(t, NewAlphaVantageProvider("", 5, 0).IsAvailable())
}

type stubProvider struct {
	name      string
	available bool
	points    []model.PricePoint
	err       error
	calls     int
}

func (s *stubProvider) Name() string      { return s.name }
func (s *stubProvider) IsAvailable() bool { return s.available }
func (s *stubProvider) RateLimit() int    { return 10 }

func (s *stubProvider) GetDailySeries(ctx context.Context, symbol string, start time.Time) ([]model.PricePoint, error) {
	s.calls++
	return s.points, s.err
}

func TestFallbackProvider(t *testing.T) {
	pts := []model.PricePoint{{Date: day("2024-05-03"), Price: 83.67}}
	failing := &stubProvider{name: "a", available: true, err: upstreamf("a", "boom")}
	offline := &stubProvider{name: "b", available: false, points: pts}
	working := &stubProvider{name: "c", available: true, points: pts}

	f := NewFallbackProvider(failing, offline, working)
	assert.Len(t, f.Providers(), 2)

	got, err := f.GetDailySeries(context.Background(), "BZ=F", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, pts, got)
	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, 0, offline.calls)

	_, err = NewFallbackProvider().GetDailySeries(context.Background(), "BZ=F", time.Time{})
	assert.ErrorIs(t, err, ErrUpstreamData)
}

type memCache struct {
	mu      sync.Mutex
	points  []model.PricePoint
	fetched time.Time
	saves   int
	saveErr error
}

func (m *memCache) Load(ctx context.Context, symbol string, start time.Time) ([]model.PricePoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.PricePoint
	for _, p := range m.points {
		if !p.Date.Before(start) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memCache) Save(ctx context.Context, symbol, source string, points []model.PricePoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.points = points
	m.fetched = time.Now()
	m.saves++
	return nil
}

func (m *memCache) LastFetched(ctx context.Context, symbol string) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetched, nil
}

func TestCachingProvider(t *testing.T) {
	pts := []model.PricePoint{
		{Date: day("2024-05-02"), Price: 83.0},
		{Date: day("2024-05-03"), Price: 83.67},
	}
	inner := &stubProvider{name: "yahoo", available: true, points: pts}
	cache := &memCache{}
	p := NewCachingProvider(inner, cache, time.Hour)
	ctx := context.Background()

	got, err := p.GetDailySeries(ctx, "BZ=F", day("2024-01-01"))
	require.NoError(t, err)
	assert.Equal(t, pts, got)
	assert.Equal(t, 1, cache.saves)

	// fresh cache: no second upstream call
	got, err = p.GetDailySeries(ctx, "BZ=F", day("2024-05-03"))
	require.NoError(t, err)
	assert.Equal(t, pts[1:], got)
	assert.Equal(t, 1, inner.calls)

	// stale cache with failing upstream falls back to archived rows
	p.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	inner.err = upstreamf("yahoo", "down")
	got, err = p.GetDailySeries(ctx, "BZ=F", day("2024-01-01"))
	require.NoError(t, err)
	assert.Equal(t, pts, got)
	assert.Equal(t, 2, inner.calls)
}

func TestCachingProviderSaveFailure(t *testing.T) {
	pts := []model.PricePoint{{Date: day("2024-05-03"), Price: 83.67}}
	diskFull := errors.New("disk full")
	ctx := context.Background()

	cache := &memCache{saveErr: diskFull}
	p := NewCachingProvider(&stubProvider{name: "yahoo", available: true, points: pts}, cache, time.Hour)
	p.SetLogger(zaptest.NewLogger(t))

	got, err := p.GetDailySeries(ctx, "BZ=F", day("2024-01-01"))
	require.NoError(t, err, "a failed archive write must not drop a good download")
	assert.Equal(t, pts, got)

	p.SetRequireSave(true)
	_, err = p.GetDailySeries(ctx, "BZ=F", day("2024-01-01"))
	assert.ErrorIs(t, err, diskFull)
}

func TestOfflineProvider(t *testing.T) {
	cache := &memCache{}
	p := NewOfflineProvider(cache)

	_, err := p.GetDailySeries(context.Background(), "BZ=F", time.Time{})
	assert.ErrorIs(t, err, ErrUpstreamData)

	cache.points = []model.PricePoint{{Date: day("2024-05-03"), Price: 83.67}}
	got, err := p.GetDailySeries(context.Background(), "BZ=F", time.Time{})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
