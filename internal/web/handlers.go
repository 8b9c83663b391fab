package web

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/JonMunkholm/shortages/internal/query"
)

// healthTimeout bounds the store ping behind /healthz.
const healthTimeout = 2 * time.Second

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}

type healthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health == nil {
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Store: "unknown"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	if err := s.deps.Health.Ping(ctx); err != nil {
		s.respondError(w, r, err, http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Store: "ok"})
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.Queries.Overview(r.Context())
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleManufacturers(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", query.DefaultManufacturerLimit)
	result, err := s.deps.Queries.Manufacturers(r.Context(), limit)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleBrandVsGeneric(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.Queries.BrandVsGeneric(r.Context())
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleRoutes(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", query.DefaultRouteLimit)
	result, err := s.deps.Queries.Routes(r.Context(), limit)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleProductTypes(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.Queries.ProductTypes(r.Context())
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleLongestShortages(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", query.DefaultLongestLimit)
	result, err := s.deps.Queries.LongestShortages(r.Context(), limit)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleRefresh drops cached query results.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.deps.Queries.Refresh()
	writeJSON(w, http.StatusOK, map[string]string{"status": "refreshed"})
}

func (s *Server) handleLatestRun(w http.ResponseWriter, r *http.Request) {
	if s.deps.Runs == nil {
		writeError(w, http.StatusNotFound, "RUN001", "no pipeline run recorded")
		return
	}
	report := s.deps.Runs.LastReport()
	if report == nil {
		writeError(w, http.StatusNotFound, "RUN001", "no pipeline run recorded")
		return
	}
	writeJSON(w, http.StatusOK, report)
}
