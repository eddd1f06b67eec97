package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"brentcast/internal/ratelimit"
	"brentcast/pkg/model"
)

const yahooBaseURL = "https://query1.finance.yahoo.com/v8/finance/chart"

// YahooProvider implements the Provider interface for Yahoo Finance (unofficial API)
type YahooProvider struct {
	client    *http.Client
	limiter   *ratelimit.Limiter
	rateLimit int
	baseURL   string
	now       func() time.Time
}

// NewYahooProvider creates a new Yahoo Finance provider
func NewYahooProvider(rateLimitPerMin int, timeout time.Duration) *YahooProvider {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &YahooProvider{
		client:    &http.Client{Timeout: timeout},
		limiter:   ratelimit.NewLimiter("yahoo", rateLimitPerMin),
		rateLimit: rateLimitPerMin,
		baseURL:   yahooBaseURL,
		now:       time.Now,
	}
}

// SetBaseURL points the provider at a different chart endpoint
func (p *YahooProvider) SetBaseURL(u string) {
	p.baseURL = u
}

// Name returns the provider name
func (p *YahooProvider) Name() string {
	return "yahoo"
}

// IsAvailable always returns true (no API key needed)
func (p *YahooProvider) IsAvailable() bool {
	return true
}

// RateLimit returns the rate limit per minute
func (p *YahooProvider) RateLimit() int {
	return p.rateLimit
}

// yahooResponse represents the Yahoo Finance chart response.
// Prices are pointers because Yahoo emits null for missing sessions.
type yahooResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol    string `json:"symbol"`
				Currency  string `json:"currency"`
				GMTOffset int64  `json:"gmtoffset"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
				AdjClose []struct {
					AdjClose []*float64 `json:"adjclose"`
				} `json:"adjclose"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// GetDailySeries fetches daily closes from start until now
func (p *YahooProvider) GetDailySeries(ctx context.Context, symbol string, start time.Time) ([]model.PricePoint, error) {
	u := fmt.Sprintf("%s/%s?period1=%d&period2=%d&interval=1d&events=history&includePrePost=false",
		p.baseURL, url.PathEscape(symbol), start.Unix(), p.now().Unix())

	var data yahooResponse
	if err := getJSON(ctx, p.client, p.limiter, p.Name(), u, &data); err != nil {
		return nil, err
	}

	if data.Chart.Error != nil {
		return nil, upstreamf(p.Name(), "%s", data.Chart.Error.Description)
	}

	if len(data.Chart.Result) == 0 || len(data.Chart.Result[0].Timestamp) == 0 {
		return nil, upstreamf(p.Name(), "no data available for %s", symbol)
	}

	result := data.Chart.Result[0]
	var closes []*float64
	if len(result.Indicators.AdjClose) > 0 && len(result.Indicators.AdjClose[0].AdjClose) > 0 {
		closes = result.Indicators.AdjClose[0].AdjClose
	} else if len(result.Indicators.Quote) > 0 {
		closes = result.Indicators.Quote[0].Close
	}

	points := make([]model.PricePoint, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		// Skip sessions without a close (holidays, partial bars)
		if i >= len(closes) || closes[i] == nil {
			continue
		}
		// Shift into exchange-local time so the session lands on its own date
		local := time.Unix(ts+result.Meta.GMTOffset, 0).UTC()
		points = append(points, model.PricePoint{Date: local, Price: *closes[i]})
	}

	points = normalize(points, start)
	if len(points) == 0 {
		return nil, upstreamf(p.Name(), "no usable closes for %s since %s", symbol, start.Format(model.DateLayout))
	}
	return points, nil
}
