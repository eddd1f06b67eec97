package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"brentcast/internal/config"
	"brentcast/internal/forecast"
	"brentcast/internal/metrics"
	"brentcast/internal/pipeline"
	"brentcast/internal/provider"
	"brentcast/internal/series"
	"brentcast/pkg/model"
)

func testStore(t *testing.T) *series.Store {
	t.Helper()
	start := time.Date(2021, 1, 4, 0, 0, 0, 0, time.UTC)
	var pts []model.PricePoint
	for i := 0; i < 3*365; i++ {
		d := start.AddDate(0, 0, i)
		if !forecast.IsBusinessDay(d) {
			continue
		}
		pts = append(pts, model.PricePoint{Date: d, Price: 75 + 0.01*float64(i) + 2*math.Sin(float64(i)/58)})
	}
	s, err := series.New(pts)
	require.NoError(t, err)
	return s
}

func testServer(t *testing.T, secret string) (*Server, http.Handler) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Server.AuthSecret = secret
	cfg.Model.UncertaintySamples = 50

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	runner, err := pipeline.NewRunner(testStore(t), cfg.ForecastOptions(), zaptest.NewLogger(t), m, 4)
	require.NoError(t, err)

	s := NewServer(cfg, runner, reg, zaptest.NewLogger(t))
	return s, s.Handler()
}

func get(t *testing.T, h http.Handler, target, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestForecastEndpoint(t *testing.T) {
	_, h := testServer(t, "")

	rec := get(t, h, "/api/forecast?horizon=5&cutoff=2022-05-01", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp ForecastResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.RunID)
	assert.Len(t, resp.Forecast, 5)
	assert.Empty(t, resp.Predictions)
	assert.True(t, strings.HasPrefix(resp.Summary, "MAPE of "))
	assert.NotContains(t, resp.Summary[strings.Index(resp.Summary, "R²"):], "%")
	for _, p := range resp.Forecast {
		assert.Equal(t, math.Round(p.Yhat*100)/100, p.Yhat)
	}

	rec = get(t, h, "/api/forecast?horizon=5&cutoff=2022-05-01&full=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Cached)
	assert.Len(t, resp.Predictions, resp.Model.TrainingPoints+5)
}

func TestForecastEndpointErrors(t *testing.T) {
	_, h := testServer(t, "")

	tests := []struct {
		target string
		status int
	}{
		{"/api/forecast?horizon=9", http.StatusBadRequest},
		{"/api/forecast?horizon=x", http.StatusBadRequest},
		{"/api/forecast?width=1.5", http.StatusBadRequest},
		{"/api/forecast?cutoff=2031-01-01", http.StatusBadRequest},
		{"/api/forecast?cutoff=2023-12-29", http.StatusUnprocessableEntity},
		{"/api/forecast?cutoff=yesterday", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			rec := get(t, h, tt.target, "")
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestHistoryEndpoint(t *testing.T) {
	_, h := testServer(t, "")

	rec := get(t, h, "/api/history?start=2023-01-02&end=2023-01-06", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HistoryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Rows, 5)
	assert.False(t, resp.Rows[0].HasPrev)
	assert.True(t, resp.Rows[1].HasPrev)
	assert.Equal(t, 5, resp.Summary.Count)

	rec = get(t, h, "/api/history?start=2023-02-01&end=2023-01-01", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPriceEndpoint(t *testing.T) {
	_, h := testServer(t, "")

	rec := get(t, h, "/api/price?date=2023-01-04", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp PriceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Exact)
	assert.Equal(t, "2023-01-04", resp.Date)

	// Saturday
	rec = get(t, h, "/api/price?date=2023-01-07", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = get(t, h, "/api/price?date=2023-01-07&nearest=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Exact)
	assert.Equal(t, "2023-01-06", resp.Date)

	rec = get(t, h, "/api/price", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInsightsEndpoint(t *testing.T) {
	_, h := testServer(t, "")

	rec := get(t, h, "/api/insights", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp InsightsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Years, 4) // 2021..2024
	assert.Equal(t, 2021, resp.Years[0].Year)
	assert.NotNil(t, resp.MA20)
	assert.NotNil(t, resp.MA200)
}

func TestAuthMiddleware(t *testing.T) {
	_, h := testServer(t, "s3cret")

	assert.Equal(t, http.StatusUnauthorized, get(t, h, "/api/price?date=2023-01-04", "").Code)
	assert.Equal(t, http.StatusUnauthorized, get(t, h, "/api/price?date=2023-01-04", "garbage").Code)

	forged, err := IssueToken("other", "tester", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, get(t, h, "/api/price?date=2023-01-04", forged).Code)

	expired, err := IssueToken("s3cret", "tester", -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, get(t, h, "/api/price?date=2023-01-04", expired).Code)

	token, err := IssueToken("s3cret", "tester", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, get(t, h, "/api/price?date=2023-01-04", token).Code)

	// health and metrics stay open
	assert.Equal(t, http.StatusOK, get(t, h, "/health", "").Code)
	assert.Equal(t, http.StatusOK, get(t, h, "/metrics", "").Code)

	_, err = IssueToken("", "tester", time.Hour)
	assert.Error(t, err)
}

func TestHealthAndMetrics(t *testing.T) {
	s, h := testServer(t, "")
	refreshed := time.Date(2024, 1, 3, 22, 30, 0, 0, time.UTC)
	s.SetRefreshClock(func() time.Time { return refreshed })

	rec := get(t, h, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var health map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, "2024-01-03", health["last_date"])
	assert.Equal(t, "2024-01-03T22:30:00Z", health["last_refresh"])

	require.Equal(t, http.StatusOK, get(t, h, "/api/forecast", "").Code)
	rec = get(t, h, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `brentcast_forecast_runs_total{outcome="ok"} 1`)
	assert.Contains(t, rec.Body.String(), "brentcast_series_points")
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"bad horizon", fmt.Errorf("run: %w", forecast.ErrInvalidHorizon), http.StatusBadRequest},
		{"missing date", series.ErrNotFound, http.StatusNotFound},
		{"too little data", forecast.ErrInsufficientData, http.StatusUnprocessableEntity},
		{"no series", pipeline.ErrNoSeries, http.StatusServiceUnavailable},
		{"upstream down", &provider.ProviderError{Provider: "yahoo", Err: fmt.Errorf("%w: status 503", provider.ErrUpstreamData)}, http.StatusBadGateway},
		{"anything else", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}
