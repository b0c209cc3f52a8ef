package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/codeGROOVE-dev/whenthere/pkg/lookup"
	"github.com/codeGROOVE-dev/whenthere/pkg/tzconvert"
	"github.com/codeGROOVE-dev/whenthere/pkg/whenthere"
	"github.com/codeGROOVE-dev/whenthere/pkg/zones"
)

const (
	maxBodySize   = 64 << 10
	searchTimeout = 15 * time.Second
)

// Searcher finds places for free text.
type Searcher interface {
	Search(ctx context.Context, query string) (lookup.SearchResult, error)
}

type server struct {
	store      *whenthere.Store
	search     Searcher
	logger     *slog.Logger
	limiter    *rateLimiter
	shareBase  string
	production bool
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(securityHeaders(s.production))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/rows", s.handleRows)
		r.Post("/zones", s.handleAddZone)
		r.Put("/zones/{id}", s.handleReplaceZone)
		r.Delete("/zones/{id}", s.handleRemoveZone)
		r.Post("/zones/{id}/move", s.handleMoveZone)
		r.Post("/select", s.handleSelect)
		r.Delete("/select", s.handleClearSelection)
		r.Post("/reset", s.handleReset)
		r.Get("/share", s.handleShare)
		r.With(s.limiter.middleware).Get("/search", s.handleSearch)
	})
	return r
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v) //nolint:errchkjson // response already started
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeStoreError maps store validation failures onto HTTP statuses.
func (s *server) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, zones.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, zones.ErrUnknownZone), errors.Is(err, zones.ErrEmptyTitle),
		errors.Is(err, tzconvert.ErrUnknownZone), errors.Is(err, tzconvert.ErrHourOutOfRange):
		status = http.StatusBadRequest
	default:
		s.logger.ErrorContext(r.Context(), "store operation failed", "path", r.URL.Path, "error", err)
	}
	writeError(w, status, err.Error())
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func zoneID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid location id")
		return uuid.Nil, false
	}
	return id, true
}

type rowsResponse struct {
	Selection       *whenthere.Selection `json:"selection"`
	MenuBar         string               `json:"menuBar"`
	Rows            []whenthere.Row      `json:"rows"`
	HourLabels      []string             `json:"hourLabels"`
	Uses24HourClock bool                 `json:"uses24HourClock"`
}

func (s *server) rows() rowsResponse {
	resp := rowsResponse{
		MenuBar:         s.store.MenuBarLabel(),
		Rows:            s.store.Rows(),
		Uses24HourClock: s.store.Uses24HourClock(),
		HourLabels:      make([]string, 24),
	}
	for h := range 24 {
		resp.HourLabels[h] = s.store.HourLabel(h)
	}
	if sel, ok := s.store.Selection(); ok {
		resp.Selection = &sel
	}
	return resp
}

func (s *server) handleRows(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.rows())
}

type zoneRequest struct {
	TimeZone string `json:"timeZone"`
	Title    string `json:"title"`
	Subtitle string `json:"subtitle"`
}

func (s *server) handleAddZone(w http.ResponseWriter, r *http.Request) {
	var req zoneRequest
	if !decode(w, r, &req) {
		return
	}
	loc, err := s.store.AddZone(req.TimeZone, req.Title, req.Subtitle)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, loc)
}

func (s *server) handleReplaceZone(w http.ResponseWriter, r *http.Request) {
	id, ok := zoneID(w, r)
	if !ok {
		return
	}
	var req zoneRequest
	if !decode(w, r, &req) {
		return
	}
	loc, err := s.store.ReplaceZone(id, req.TimeZone, req.Title, req.Subtitle)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loc)
}

func (s *server) handleRemoveZone(w http.ResponseWriter, r *http.Request) {
	id, ok := zoneID(w, r)
	if !ok {
		return
	}
	if !s.store.RemoveZone(id) {
		writeError(w, http.StatusNotFound, zones.ErrNotFound.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type moveRequest struct {
	Index int `json:"index"`
}

func (s *server) handleMoveZone(w http.ResponseWriter, r *http.Request) {
	id, ok := zoneID(w, r)
	if !ok {
		return
	}
	var req moveRequest
	if !decode(w, r, &req) {
		return
	}
	if _, found := s.store.Location(id); !found {
		writeError(w, http.StatusNotFound, zones.ErrNotFound.Error())
		return
	}
	moved := s.store.MoveZone(id, req.Index)
	writeJSON(w, http.StatusOK, map[string]any{"moved": moved, "zones": s.store.Zones()})
}

type selectRequest struct {
	ZoneID uuid.UUID `json:"zoneId"`
	Hour   int       `json:"hour"`
}

func (s *server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.store.SelectHour(req.ZoneID, req.Hour); err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.rows())
}

func (s *server) handleClearSelection(w http.ResponseWriter, _ *http.Request) {
	s.store.ClearSelection()
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleReset(w http.ResponseWriter, _ *http.Request) {
	if !s.store.ResetToCurrentHour() {
		writeError(w, http.StatusConflict, "no locations to select")
		return
	}
	writeJSON(w, http.StatusOK, s.rows())
}

func (s *server) handleShare(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"url": s.store.ShareLink(s.shareBase)})
}

type searchResponse struct {
	Source  string         `json:"source,omitempty"`
	Status  string         `json:"status,omitempty"`
	Results []lookup.Place `json:"results"`
}

func (s *server) handleSearch(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), searchTimeout)
	defer cancel()

	query := r.URL.Query().Get("text")
	res, err := s.search.Search(ctx, query)
	if err != nil && !errors.Is(err, lookup.ErrQueryTooShort) {
		s.logger.WarnContext(ctx, "search failed", "query", query, "error", err)
	}
	results := res.Places
	if results == nil {
		results = []lookup.Place{}
	}
	writeJSON(w, http.StatusOK, searchResponse{Source: res.Source, Status: lookup.Status(res, err), Results: results})
}
