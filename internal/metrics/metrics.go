package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for forecast runs and refreshes
type Metrics struct {
	Runs         *prometheus.CounterVec // by outcome
	FitDuration  prometheus.Histogram
	RunDuration  prometheus.Histogram
	CacheHits    prometheus.Counter
	CacheMisses  prometheus.Counter
	Refreshes    *prometheus.CounterVec // by outcome
	SeriesPoints prometheus.Gauge
	LastMAPE     prometheus.Gauge
	LastRSquared prometheus.Gauge
}

// New creates the collectors and registers them with reg. A nil registerer
// leaves them unregistered, which keeps tests isolated.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "brentcast_forecast_runs_total",
			Help: "Forecast pipeline runs by outcome",
		}, []string{"outcome"}),
		FitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "brentcast_fit_duration_seconds",
			Help:    "Time spent fitting the model",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "brentcast_run_duration_seconds",
			Help:    "End-to-end pipeline time including prediction and evaluation",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "brentcast_cache_hits_total",
			Help: "Forecast results served from cache",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "brentcast_cache_misses_total",
			Help: "Forecast requests that required a fresh fit",
		}),
		Refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "brentcast_series_refreshes_total",
			Help: "Price series refreshes by outcome",
		}, []string{"outcome"}),
		SeriesPoints: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "brentcast_series_points",
			Help: "Number of points in the current price series",
		}),
		LastMAPE: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "brentcast_last_mape_percent",
			Help: "In-sample MAPE of the most recent fresh run",
		}),
		LastRSquared: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "brentcast_last_r_squared",
			Help: "In-sample R² of the most recent fresh run",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.Runs, m.FitDuration, m.RunDuration,
			m.CacheHits, m.CacheMisses,
			m.Refreshes, m.SeriesPoints,
			m.LastMAPE, m.LastRSquared,
		)
	}
	return m
}
