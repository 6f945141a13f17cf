// Package api is the thin HTTP boundary over the search orchestrator and
// the health monitor. Request validation and JSON shaping live here; all
// engine behaviour stays in the packages underneath.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pricehound/pricehound/health"
	"github.com/pricehound/pricehound/search"
)

// Query length bounds enforced at the boundary.
const (
	minQueryLen = 3
	maxQueryLen = 500
)

// Searcher is the orchestrator surface the API depends on.
type Searcher interface {
	Search(ctx context.Context, req search.Request) (*search.Response, error)
}

// HealthReader is the monitor surface the API depends on.
type HealthReader interface {
	Get(sourceID string) (health.Record, bool)
	Snapshot() []health.Record
	Alerts(unacknowledgedOnly bool) []health.Alert
	Acknowledge(ctx context.Context, alertID, who string) error
}

// Service wires the engine into HTTP routes.
type Service struct {
	searcher Searcher
	monitor  HealthReader
	logger   *slog.Logger
}

// NewService creates the HTTP service.
func NewService(s Searcher, m HealthReader, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{searcher: s, monitor: m, logger: logger}
}

// Router builds the chi router with all routes mounted.
func (s *Service) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Post("/api/search", s.handleSearch)
	r.Get("/api/health", s.handleHealthList)
	r.Get("/api/health/{sourceID}", s.handleHealthGet)
	r.Get("/api/alerts", s.handleAlerts)
	r.Post("/api/alerts/{alertID}/ack", s.handleAlertAck)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// handleSearch runs one search. POST /api/search
func (s *Service) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req search.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if n := len(req.Query); n < minQueryLen || n > maxQueryLen {
		writeError(w, http.StatusBadRequest, "query must be between 3 and 500 characters")
		return
	}
	if req.MaxResults < 0 || req.MaxResults > search.MaxResultsCap {
		writeError(w, http.StatusBadRequest, "maxResults must be between 1 and 100")
		return
	}

	resp, err := s.searcher.Search(r.Context(), req)
	if err != nil {
		if errors.Is(err, search.ErrEmptyQuery) {
			writeError(w, http.StatusBadRequest, "query must not be blank")
			return
		}
		s.logger.Error("api: search failed", "query", req.Query, "error", err)
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleHealthList returns every source's health record. GET /api/health
func (s *Service) handleHealthList(w http.ResponseWriter, _ *http.Request) {
	records := s.monitor.Snapshot()
	if records == nil {
		records = []health.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sources": records})
}

// handleHealthGet returns one source's record. GET /api/health/{sourceID}
func (s *Service) handleHealthGet(w http.ResponseWriter, r *http.Request) {
	sourceID := chi.URLParam(r, "sourceID")
	rec, ok := s.monitor.Get(sourceID)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown source")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleAlerts lists alerts newest-first. GET /api/alerts?unacknowledged=true
func (s *Service) handleAlerts(w http.ResponseWriter, r *http.Request) {
	unackOnly := r.URL.Query().Get("unacknowledged") == "true"
	alerts := s.monitor.Alerts(unackOnly)
	if alerts == nil {
		alerts = []health.Alert{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}

// handleAlertAck acknowledges one alert. POST /api/alerts/{alertID}/ack
func (s *Service) handleAlertAck(w http.ResponseWriter, r *http.Request) {
	alertID := chi.URLParam(r, "alertID")

	var body struct {
		AcknowledgedBy string `json:"acknowledgedBy"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.AcknowledgedBy == "" {
		writeError(w, http.StatusBadRequest, "acknowledgedBy required")
		return
	}

	if err := s.monitor.Acknowledge(r.Context(), alertID, body.AcknowledgedBy); err != nil {
		if errors.Is(err, health.ErrAlertNotFound) {
			writeError(w, http.StatusNotFound, "unknown alert")
			return
		}
		s.logger.Error("api: acknowledge failed", "alert", alertID, "error", err)
		writeError(w, http.StatusInternalServerError, "acknowledge failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"acknowledged": true})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
