package provider

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"brentcast/pkg/model"
)

// SeriesCache is persistent storage for downloaded series.
// archive.Store satisfies it.
type SeriesCache interface {
	Load(ctx context.Context, symbol string, start time.Time) ([]model.PricePoint, error)
	Save(ctx context.Context, symbol, source string, points []model.PricePoint) error
	LastFetched(ctx context.Context, symbol string) (time.Time, error)
}

// CachingProvider wraps a Provider with a persistent cache.
// A fresh cache is served without touching the network; a stale one is
// refreshed from inner and served as-is only if inner fails.
type CachingProvider struct {
	inner  Provider
	cache  SeriesCache
	maxAge time.Duration
	now    func() time.Time

	logger      *zap.Logger
	requireSave bool
}

// NewCachingProvider creates a caching wrapper. maxAge <= 0 always refetches
// and uses the cache only as a fallback.
func NewCachingProvider(inner Provider, cache SeriesCache, maxAge time.Duration) *CachingProvider {
	return &CachingProvider{
		inner:  inner,
		cache:  cache,
		maxAge: maxAge,
		now:    time.Now,
		logger: zap.NewNop(),
	}
}

// SetLogger sets where failed cache writes are reported
func (p *CachingProvider) SetLogger(logger *zap.Logger) {
	if logger != nil {
		p.logger = logger
	}
}

// SetRequireSave makes a failed cache write fail the fetch. By default the
// downloaded points are still returned.
func (p *CachingProvider) SetRequireSave(strict bool) {
	p.requireSave = strict
}

// Inner returns the wrapped provider
func (p *CachingProvider) Inner() Provider { return p.inner }

func (p *CachingProvider) Name() string      { return p.inner.Name() }
func (p *CachingProvider) IsAvailable() bool { return p.inner.IsAvailable() }
func (p *CachingProvider) RateLimit() int    { return p.inner.RateLimit() }

func (p *CachingProvider) GetDailySeries(ctx context.Context, symbol string, start time.Time) ([]model.PricePoint, error) {
	if p.maxAge > 0 {
		last, err := p.cache.LastFetched(ctx, symbol)
		if err == nil && !last.IsZero() && p.now().Sub(last) < p.maxAge {
			cached, err := p.cache.Load(ctx, symbol, start)
			if err == nil && len(cached) > 0 {
				return cached, nil
			}
		}
	}

	points, err := p.inner.GetDailySeries(ctx, symbol, start)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		cached, cerr := p.cache.Load(ctx, symbol, start)
		if cerr == nil && len(cached) > 0 {
			return cached, nil
		}
		return nil, err
	}

	if err := p.cache.Save(ctx, symbol, p.inner.Name(), points); err != nil {
		if p.requireSave {
			return nil, fmt.Errorf("archiving %s: %w", symbol, err)
		}
		p.logger.Warn("archiving downloaded series failed",
			zap.String("symbol", symbol),
			zap.Int("points", len(points)),
			zap.Error(err))
	}
	return points, nil
}

// OfflineProvider serves only what the cache already holds
type OfflineProvider struct {
	cache SeriesCache
}

// NewOfflineProvider creates a provider that never touches the network
func NewOfflineProvider(cache SeriesCache) *OfflineProvider {
	return &OfflineProvider{cache: cache}
}

func (p *OfflineProvider) Name() string      { return "archive" }
func (p *OfflineProvider) IsAvailable() bool { return true }
func (p *OfflineProvider) RateLimit() int    { return 0 }

func (p *OfflineProvider) GetDailySeries(ctx context.Context, symbol string, start time.Time) ([]model.PricePoint, error) {
	points, err := p.cache.Load(ctx, symbol, start)
	if err != nil {
		return nil, &ProviderError{Provider: p.Name(), Err: err}
	}
	if len(points) == 0 {
		return nil, upstreamf(p.Name(), "nothing archived for %s since %s", symbol, start.Format(model.DateLayout))
	}
	return points, nil
}
