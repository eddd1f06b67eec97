package provider

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"brentcast/internal/series"
	"brentcast/pkg/model"
)

// ErrUpstreamData marks an empty or malformed response from a data source
var ErrUpstreamData = errors.New("upstream data error")

// Provider defines the interface for daily price sources
type Provider interface {
	// Name returns the provider name
	Name() string

	// GetDailySeries fetches daily closing prices for symbol from start
	// (inclusive) up to the latest available session, oldest first
	GetDailySeries(ctx context.Context, symbol string, start time.Time) ([]model.PricePoint, error)

	// IsAvailable checks if the provider can be used (e.g. has an API key)
	IsAvailable() bool

	// RateLimit returns the rate limit per minute
	RateLimit() int
}

// ProviderError represents a provider-specific error
type ProviderError struct {
	Provider  string
	Err       error
	Retryable bool
}

func (e *ProviderError) Error() string {
	return e.Provider + ": " + e.Err.Error()
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func upstreamf(provider, format string, args ...any) *ProviderError {
	return &ProviderError{
		Provider: provider,
		Err:      fmt.Errorf("%w: "+format, append([]any{ErrUpstreamData}, args...)...),
	}
}

// normalize sorts by date, keeps the last value seen for a day and drops
// rows before start or without a usable price
func normalize(points []model.PricePoint, start time.Time) []model.PricePoint {
	start = series.Day(start)
	byDay := make(map[time.Time]float64, len(points))
	for _, p := range points {
		d := series.Day(p.Date)
		if d.Before(start) || p.Price <= 0 || math.IsNaN(p.Price) || math.IsInf(p.Price, 0) {
			continue
		}
		byDay[d] = p.Price
	}

	out := make([]model.PricePoint, 0, len(byDay))
	for d, price := range byDay {
		out = append(out, model.PricePoint{Date: d, Price: price})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})
	return out
}

// FallbackProvider tries multiple providers in order
type FallbackProvider struct {
	providers []Provider
}

// NewFallbackProvider creates a new fallback provider
func NewFallbackProvider(providers ...Provider) *FallbackProvider {
	// Filter to only available providers
	available := make([]Provider, 0, len(providers))
	for _, p := range providers {
		if p.IsAvailable() {
			available = append(available, p)
		}
	}
	return &FallbackProvider{providers: available}
}

// Name returns the combined provider name
func (f *FallbackProvider) Name() string {
	return "fallback"
}

// GetDailySeries tries each provider in order until one succeeds
func (f *FallbackProvider) GetDailySeries(ctx context.Context, symbol string, start time.Time) ([]model.PricePoint, error) {
	if len(f.providers) == 0 {
		return nil, upstreamf(f.Name(), "no providers available")
	}

	var lastErr error
	for _, p := range f.providers {
		data, err := p.GetDailySeries(ctx, symbol, start)
		if err == nil {
			return data, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
	}
	return nil, lastErr
}

// IsAvailable returns true if any provider is available
func (f *FallbackProvider) IsAvailable() bool {
	return len(f.providers) > 0
}

// RateLimit returns the highest rate limit among providers
func (f *FallbackProvider) RateLimit() int {
	maxRate := 0
	for _, p := range f.providers {
		if p.RateLimit() > maxRate {
			maxRate = p.RateLimit()
		}
	}
	return maxRate
}

// Providers returns the list of underlying providers
func (f *FallbackProvider) Providers() []Provider {
	return f.providers
}
