// Package daemon keeps the served price series current by re-downloading
// it on a cron schedule.
package daemon

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"brentcast/internal/metrics"
	"brentcast/internal/provider"
	"brentcast/internal/series"
)

// SeriesHolder owns the series that requests are served from.
// pipeline.Runner satisfies it.
type SeriesHolder interface {
	Store() *series.Store
	SetStore(s *series.Store)
}

// Refresher downloads the series and swaps it into the holder
type Refresher struct {
	provider provider.Provider
	holder   SeriesHolder
	symbol   string
	start    time.Time
	timeout  time.Duration

	metrics *metrics.Metrics
	logger  *zap.Logger

	cron *cron.Cron
	mu   sync.Mutex   // one refresh at a time
	last atomic.Int64 // unix nanos of the last success, 0 before any
}

// NewRefresher creates a refresher for symbol with history from start
func NewRefresher(p provider.Provider, holder SeriesHolder, symbol string, start time.Time, m *metrics.Metrics, logger *zap.Logger) *Refresher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.New(nil)
	}
	return &Refresher{
		provider: p,
		holder:   holder,
		symbol:   symbol,
		start:    start,
		timeout:  2 * time.Minute,
		metrics:  m,
		logger:   logger.Named("refresher"),
		cron:     cron.New(),
	}
}

// Refresh downloads the series once. The holder is only updated when the
// new series differs from the current one, so cached results survive a
// no-op refresh.
func (r *Refresher) Refresh(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	points, err := r.provider.GetDailySeries(ctx, r.symbol, r.start)
	if err != nil {
		r.metrics.Refreshes.WithLabelValues("error").Inc()
		return fmt.Errorf("fetching %s: %w", r.symbol, err)
	}

	fresh, err := series.New(points)
	if err != nil {
		r.metrics.Refreshes.WithLabelValues("error").Inc()
		return fmt.Errorf("building series: %w", err)
	}

	if current := r.holder.Store(); current != nil && sameSeries(current, fresh) {
		r.metrics.Refreshes.WithLabelValues("unchanged").Inc()
		r.logger.Debug("series unchanged", zap.Int("points", fresh.Len()))
		r.last.Store(time.Now().UnixNano())
		return nil
	}

	r.holder.SetStore(fresh)
	r.metrics.Refreshes.WithLabelValues("updated").Inc()
	r.last.Store(time.Now().UnixNano())

	last, _ := fresh.Last()
	r.logger.Info("series refreshed",
		zap.String("symbol", r.symbol),
		zap.String("provider", r.provider.Name()),
		zap.Int("points", fresh.Len()),
		zap.Time("last_date", last.Date))
	return nil
}

// LastRefresh returns when the last successful refresh finished.
// It never waits on a refresh in flight.
func (r *Refresher) LastRefresh() time.Time {
	ns := r.last.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Start schedules Refresh with a standard five-field cron spec
func (r *Refresher) Start(ctx context.Context, spec string) error {
	if _, err := r.cron.AddFunc(spec, func() {
		if err := r.Refresh(ctx); err != nil {
			r.logger.Warn("scheduled refresh failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("register refresh %q: %w", spec, err)
	}
	r.cron.Start()
	r.logger.Info("refresh scheduled", zap.String("cron", spec))
	return nil
}

// Stop stops the schedule and waits for a running refresh to finish
func (r *Refresher) Stop() {
	<-r.cron.Stop().Done()
	r.logger.Info("refresher stopped")
}

func sameSeries(a, b *series.Store) bool {
	if a.Len() != b.Len() {
		return false
	}
	pa, pb := a.Points(), b.Points()
	for i := range pa {
		if !pa[i].Date.Equal(pb[i].Date) || pa[i].Price != pb[i].Price {
			return false
		}
	}
	return true
}
