package provider

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"brentcast/internal/ratelimit"
	"brentcast/pkg/model"
)

const alphaVantageBaseURL = "https://www.alphavantage.co/query"

// AlphaVantageProvider serves the Brent commodity series from Alpha Vantage.
// The endpoint has a single instrument, so the symbol argument is ignored.
type AlphaVantageProvider struct {
	apiKey    string
	client    *http.Client
	limiter   *ratelimit.Limiter
	rateLimit int
	baseURL   string
}

// NewAlphaVantageProvider creates a new Alpha Vantage provider
func NewAlphaVantageProvider(apiKey string, rateLimitPerMin int, timeout time.Duration) *AlphaVantageProvider {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &AlphaVantageProvider{
		apiKey:    apiKey,
		client:    &http.Client{Timeout: timeout},
		limiter:   ratelimit.NewLimiter("alphavantage", rateLimitPerMin),
		rateLimit: rateLimitPerMin,
		baseURL:   alphaVantageBaseURL,
	}
}

// SetBaseURL points the provider at a different query endpoint
func (p *AlphaVantageProvider) SetBaseURL(u string) {
	p.baseURL = u
}

// Name returns the provider name
func (p *AlphaVantageProvider) Name() string {
	return "alphavantage"
}

// IsAvailable checks if the provider has an API key
func (p *AlphaVantageProvider) IsAvailable() bool {
	return p.apiKey != ""
}

// RateLimit returns the rate limit per minute
func (p *AlphaVantageProvider) RateLimit() int {
	return p.rateLimit
}

// alphaVantageResponse represents the commodity endpoint response
type alphaVantageResponse struct {
	Name     string `json:"name"`
	Interval string `json:"interval"`
	Unit     string `json:"unit"`
	Data     []struct {
		Date  string `json:"date"`
		Value string `json:"value"`
	} `json:"data"`
	Note        string `json:"Note"`        // Rate limit message
	Information string `json:"Information"` // Rate limit message (newer API)
	Error       string `json:"Error Message"`
}

// GetDailySeries fetches the daily Brent series from start until the latest session
func (p *AlphaVantageProvider) GetDailySeries(ctx context.Context, symbol string, start time.Time) ([]model.PricePoint, error) {
	u := fmt.Sprintf("%s?function=BRENT&interval=daily&apikey=%s", p.baseURL, p.apiKey)

	var data alphaVantageResponse
	if err := getJSON(ctx, p.client, p.limiter, p.Name(), u, &data); err != nil {
		return nil, err
	}

	if msg := data.Note + data.Information; msg != "" {
		p.limiter.SignalRateLimited(0)
		return nil, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("rate limited: %s", msg), Retryable: true}
	}

	if data.Error != "" {
		return nil, upstreamf(p.Name(), "%s", data.Error)
	}

	points := make([]model.PricePoint, 0, len(data.Data))
	for _, row := range data.Data {
		d, err := time.Parse(model.DateLayout, row.Date)
		if err != nil {
			continue
		}
		// "." marks a day without a published price
		price, err := strconv.ParseFloat(row.Value, 64)
		if err != nil {
			continue
		}
		points = append(points, model.PricePoint{Date: d, Price: price})
	}

	points = normalize(points, start)
	if len(points) == 0 {
		return nil, upstreamf(p.Name(), "no data since %s", start.Format(model.DateLayout))
	}
	return points, nil
}
