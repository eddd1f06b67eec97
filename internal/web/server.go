package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"brentcast/internal/analyzer"
	"brentcast/internal/config"
	"brentcast/internal/pipeline"
)

// Server represents the HTTP API server
type Server struct {
	config   *config.Config
	runner   *pipeline.Runner
	analyzer *analyzer.HistoryAnalyzer
	gatherer prometheus.Gatherer
	logger   *zap.Logger
	srv      *http.Server

	lastRefresh func() time.Time
}

// NewServer creates a new API server. gatherer backs /metrics and may be nil.
func NewServer(cfg *config.Config, runner *pipeline.Runner, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		config:   cfg,
		runner:   runner,
		analyzer: analyzer.NewHistoryAnalyzer(),
		gatherer: gatherer,
		logger:   logger.Named("web"),
	}
}

// SetRefreshClock reports the last series refresh on /health
func (s *Server) SetRefreshClock(fn func() time.Time) {
	s.lastRefresh = fn
}

// Handler builds the route table with middleware applied
func (s *Server) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("/api/forecast", s.handleForecast)
	api.HandleFunc("/api/history", s.handleHistory)
	api.HandleFunc("/api/price", s.handlePrice)
	api.HandleFunc("/api/insights", s.handleInsights)

	mux := http.NewServeMux()
	mux.Handle("/api/", authMiddleware(s.config.Server.AuthSecret, api))
	mux.HandleFunc("/health", s.handleHealth)
	if s.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	return corsMiddleware(s.logMiddleware(mux))
}

// Start starts the server on the specified port
func (s *Server) Start(port int) error {
	s.srv = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.logger.Info("listening", zap.String("addr", fmt.Sprintf("http://localhost:%d", port)))
	return s.srv.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv != nil {
		return s.srv.Shutdown(ctx)
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", time.Since(start)))
	})
}

// corsMiddleware adds CORS headers for browser dashboards
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
