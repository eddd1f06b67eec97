package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"brentcast/internal/evaluate"
	"brentcast/internal/forecast"
	"brentcast/internal/pipeline"
	"brentcast/internal/provider"
	"brentcast/internal/report"
	"brentcast/internal/series"
	"brentcast/pkg/model"
)

// ForecastResponse is the /api/forecast payload
type ForecastResponse struct {
	RunID       string                  `json:"run_id"`
	Cached      bool                    `json:"cached"`
	Summary     string                  `json:"summary"`
	Request     pipeline.Request        `json:"request"`
	Model       pipeline.ModelSummary   `json:"model"`
	Forecast    []model.Prediction      `json:"forecast"`
	Evaluation  *model.EvaluationResult `json:"evaluation"`
	Predictions []model.Prediction      `json:"predictions,omitempty"`
}

// HistoryResponse is the /api/history payload
type HistoryResponse struct {
	Summary *model.Summary      `json:"summary"`
	Rows    []model.DailyChange `json:"rows"`
}

// PriceResponse is the /api/price payload
type PriceResponse struct {
	Requested string  `json:"requested"`
	Date      string  `json:"date"`
	Price     float64 `json:"price"`
	Exact     bool    `json:"exact"`
}

// InsightsResponse is the /api/insights payload
type InsightsResponse struct {
	Years      []model.YearStat `json:"years"`
	Volatility float64          `json:"volatility_pct"`
	MA20       *float64         `json:"ma20,omitempty"`
	MA200      *float64         `json:"ma200,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// statusFor maps domain errors onto HTTP statuses
func statusFor(err error) int {
	switch {
	case errors.Is(err, forecast.ErrInvalidHorizon),
		errors.Is(err, forecast.ErrInvalidOptions),
		errors.Is(err, series.ErrRange):
		return http.StatusBadRequest
	case errors.Is(err, series.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, forecast.ErrInsufficientData),
		errors.Is(err, evaluate.ErrMisalignment),
		errors.Is(err, evaluate.ErrDivisionByZero):
		return http.StatusUnprocessableEntity
	case errors.Is(err, pipeline.ErrNoSeries):
		return http.StatusServiceUnavailable
	case errors.Is(err, provider.ErrUpstreamData):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func parseDate(r *http.Request, key string, fallback time.Time) (time.Time, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback, nil
	}
	t, err := time.Parse(model.DateLayout, v)
	if err != nil {
		return time.Time{}, errors.New(key + " must be YYYY-MM-DD")
	}
	return t, nil
}

func parseBool(r *http.Request, key string, fallback bool) (bool, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, errors.New(key + " must be a boolean")
	}
	return b, nil
}

// rangeOf resolves start/end query parameters against the current series
func (s *Server) rangeOf(w http.ResponseWriter, r *http.Request) ([]model.PricePoint, bool) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return nil, false
	}
	store := s.runner.Store()
	if store == nil {
		writeError(w, http.StatusServiceUnavailable, pipeline.ErrNoSeries.Error())
		return nil, false
	}
	first, err := store.First()
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return nil, false
	}
	last, _ := store.Last()

	start, err := parseDate(r, "start", first.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	end, err := parseDate(r, "end", last.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}

	points, err := store.Slice(start, end)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return nil, false
	}
	return points, true
}

// handleForecast runs the pipeline with query overrides on the configured defaults
func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	defCutoff, err := s.config.Cutoff()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	req := pipeline.Request{
		IntervalWidth:    s.config.Model.IntervalWidth,
		HorizonDays:      s.config.Model.HorizonDays,
		DailySeasonality: s.config.Model.DailySeasonality,
	}
	if req.Cutoff, err = parseDate(r, "cutoff", defCutoff); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if v := r.URL.Query().Get("horizon"); v != "" {
		if req.HorizonDays, err = strconv.Atoi(v); err != nil {
			writeError(w, http.StatusBadRequest, "horizon must be an integer")
			return
		}
	}
	if v := r.URL.Query().Get("width"); v != "" {
		if req.IntervalWidth, err = strconv.ParseFloat(v, 64); err != nil {
			writeError(w, http.StatusBadRequest, "width must be a number")
			return
		}
	}
	if req.DailySeasonality, err = parseBool(r, "daily", req.DailySeasonality); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	full, err := parseBool(r, "full", false)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.runner.Run(r.Context(), req)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	resp := ForecastResponse{
		RunID:      res.RunID,
		Cached:     res.Cached,
		Summary:    report.SummaryLine(res.Evaluation, s.config.Report.R2PercentSuffix),
		Request:    res.Request,
		Model:      res.Model,
		Forecast:   report.RoundPredictions(res.Forecast),
		Evaluation: res.Evaluation,
	}
	if full {
		resp.Predictions = report.RoundPredictions(res.Predictions)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleHistory returns the price table with daily changes for a range
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	points, ok := s.rangeOf(w, r)
	if !ok {
		return
	}

	sum := s.analyzer.Summarize(points)
	sum.Mean = report.Round(sum.Mean, report.PricePlaces)
	sum.Min = report.Round(sum.Min, report.PricePlaces)
	sum.Max = report.Round(sum.Max, report.PricePlaces)

	writeJSON(w, http.StatusOK, HistoryResponse{
		Summary: sum,
		Rows:    s.analyzer.DailyChanges(points),
	})
}

// handlePrice returns the price on one date, optionally the nearest session
func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	store := s.runner.Store()
	if store == nil {
		writeError(w, http.StatusServiceUnavailable, pipeline.ErrNoSeries.Error())
		return
	}

	raw := r.URL.Query().Get("date")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "date is required")
		return
	}
	date, err := parseDate(r, "date", time.Time{})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	nearest, err := parseBool(r, "nearest", false)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := PriceResponse{Requested: raw, Date: raw, Exact: true}
	price, err := store.PriceOn(date)
	if err != nil {
		if !nearest || !errors.Is(err, series.ErrNotFound) {
			writeError(w, statusFor(err), err.Error())
			return
		}
		p, nerr := store.Nearest(date)
		if nerr != nil {
			writeError(w, statusFor(nerr), nerr.Error())
			return
		}
		price = p.Price
		resp.Date = p.Date.Format(model.DateLayout)
		resp.Exact = false
	}
	resp.Price = report.Round(price, report.PricePlaces)
	writeJSON(w, http.StatusOK, resp)
}

// handleInsights returns per-year statistics and recent indicators
func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	points, ok := s.rangeOf(w, r)
	if !ok {
		return
	}

	years := s.analyzer.YearlyStats(points)
	for i := range years {
		years[i].Mean = report.Round(years[i].Mean, report.PricePlaces)
		years[i].Min = report.Round(years[i].Min, report.PricePlaces)
		years[i].Max = report.Round(years[i].Max, report.PricePlaces)
	}

	resp := InsightsResponse{
		Years:      years,
		Volatility: report.Round(s.analyzer.Volatility(points), report.PricePlaces),
	}
	if ma, ok := s.analyzer.MovingAverage(points, 20); ok {
		v := report.Round(ma, report.PricePlaces)
		resp.MA20 = &v
	}
	if ma, ok := s.analyzer.MovingAverage(points, 200); ok {
		v := report.Round(ma, report.PricePlaces)
		resp.MA200 = &v
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleHealth reports whether a series is loaded
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok"}
	store := s.runner.Store()
	if store == nil {
		resp["status"] = "no series"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	resp["points"] = store.Len()
	if last, err := store.Last(); err == nil {
		resp["last_date"] = last.Date.Format(model.DateLayout)
	}
	if s.lastRefresh != nil {
		if t := s.lastRefresh(); !t.IsZero() {
			resp["last_refresh"] = t.UTC().Format(time.RFC3339)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
