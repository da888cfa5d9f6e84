// Package server exposes the search engine over HTTP for host applications
// that embed it as a sidecar rather than in-process.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fastsearch/fastsearch/internal/engine"
	"github.com/fastsearch/fastsearch/internal/engine/index"
	pkgerrors "github.com/fastsearch/fastsearch/pkg/errors"
	"github.com/fastsearch/fastsearch/pkg/logger"
)

// Handler serves the engine's public API.
type Handler struct {
	eng    *engine.Engine
	logger *slog.Logger
}

// New creates a Handler over the given engine.
func New(eng *engine.Engine) *Handler {
	return &Handler{
		eng:    eng,
		logger: slog.Default().With("component", "http-handler"),
	}
}

// Register attaches all API routes to the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/indices", h.ListIndices)
	mux.HandleFunc("PUT /api/v1/indices/{name}", h.CreateIndex)
	mux.HandleFunc("DELETE /api/v1/indices/{name}", h.DeleteIndex)
	mux.HandleFunc("GET /api/v1/indices/{name}/stats", h.IndexStats)
	mux.HandleFunc("GET /api/v1/indices/{name}/search", h.Search)
	mux.HandleFunc("PUT /api/v1/indices/{name}/documents/{id}", h.IndexDocument)
	mux.HandleFunc("GET /api/v1/indices/{name}/documents/{id}", h.GetDocument)
	mux.HandleFunc("DELETE /api/v1/indices/{name}/documents/{id}", h.DeleteDocument)
	mux.HandleFunc("POST /api/v1/indices/{name}/export", h.ExportIndex)
	mux.HandleFunc("POST /api/v1/indices/{name}/import", h.ImportIndex)
	mux.HandleFunc("POST /api/v1/cache/clear", h.ClearCache)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
}

type createIndexRequest struct {
	Mapping map[string]string `json:"mapping"`
}

type snapshotRequest struct {
	Path string `json:"path"`
}

type searchResponse struct {
	Query   string               `json:"query"`
	Total   int                  `json:"total"`
	Results []index.SearchResult `json:"results"`
	TookMs  int64                `json:"took_ms"`
}

// CreateIndex handles PUT /api/v1/indices/{name}.
func (h *Handler) CreateIndex(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var req createIndexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, pkgerrors.Invalidf("request body must be JSON with a mapping object"))
		return
	}
	if err := h.eng.CreateIndex(name, req.Mapping); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]string{"index": name})
}

// DeleteIndex handles DELETE /api/v1/indices/{name}.
func (h *Handler) DeleteIndex(w http.ResponseWriter, r *http.Request) {
	if err := h.eng.DeleteIndex(r.Context(), r.PathValue("name")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListIndices handles GET /api/v1/indices.
func (h *Handler) ListIndices(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string][]string{"indices": h.eng.ListIndices()})
}

// IndexStats handles GET /api/v1/indices/{name}/stats.
func (h *Handler) IndexStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.eng.Stats(r.PathValue("name"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

// IndexDocument handles PUT /api/v1/indices/{name}/documents/{id}. The
// request body is the document's field object.
func (h *Handler) IndexDocument(w http.ResponseWriter, r *http.Request) {
	name, docID := r.PathValue("name"), r.PathValue("id")
	var fields map[string]any
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		h.writeError(w, pkgerrors.Invalidf("request body must be a JSON field object"))
		return
	}
	if err := h.eng.IndexDocument(r.Context(), name, docID, fields); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"indexed": docID})
}

// GetDocument handles GET /api/v1/indices/{name}/documents/{id}.
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	fields, err := h.eng.GetDocument(r.PathValue("name"), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, fields)
}

// DeleteDocument handles DELETE /api/v1/indices/{name}/documents/{id}.
func (h *Handler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := h.eng.DeleteDocument(r.Context(), r.PathValue("name"), r.PathValue("id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Search handles GET /api/v1/indices/{name}/search. Query parameters: q
// (free text), limit, and zero or more filter expressions of the form
// field:value or field:min..max.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	name := r.PathValue("name")
	log := logger.FromContext(r.Context())

	query := r.URL.Query().Get("q")
	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			h.writeError(w, pkgerrors.Invalidf("limit must be a positive integer"))
			return
		}
		limit = parsed
	}
	filters, err := ParseFilters(r.URL.Query()["filter"])
	if err != nil {
		h.writeError(w, err)
		return
	}

	results, err := h.eng.Search(r.Context(), name, query, filters, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	log.Info("search completed",
		"index", name,
		"query", query,
		"filters", len(filters),
		"returned", len(results),
		"latency_ms", time.Since(start).Milliseconds(),
	)
	h.writeJSON(w, http.StatusOK, searchResponse{
		Query:   query,
		Total:   len(results),
		Results: results,
		TookMs:  time.Since(start).Milliseconds(),
	})
}

// ExportIndex handles POST /api/v1/indices/{name}/export.
func (h *Handler) ExportIndex(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	req, err := decodeSnapshotRequest(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.eng.ExportIndex(name, req.Path); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"exported": name})
}

// ImportIndex handles POST /api/v1/indices/{name}/import.
func (h *Handler) ImportIndex(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	req, err := decodeSnapshotRequest(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.eng.ImportIndex(r.Context(), name, req.Path); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"imported": name})
}

// ClearCache handles POST /api/v1/cache/clear.
func (h *Handler) ClearCache(w http.ResponseWriter, r *http.Request) {
	h.eng.ClearCache(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// CacheStats handles GET /api/v1/cache/stats.
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	hits, misses := h.eng.CacheStats()
	h.writeJSON(w, http.StatusOK, map[string]int64{"hits": hits, "misses": misses})
}

// ParseFilters converts filter query parameters into engine filters. Each
// expression is field:value for exact matching or field:min..max for an
// inclusive range (either bound may be omitted). Values stay strings; the
// schema layer coerces them against the index mapping.
func ParseFilters(exprs []string) ([]index.Filter, error) {
	if len(exprs) == 0 {
		return nil, nil
	}
	filters := make([]index.Filter, 0, len(exprs))
	for _, expr := range exprs {
		field, value, found := strings.Cut(expr, ":")
		if !found || field == "" {
			return nil, pkgerrors.Invalidf("filter %q must have the form field:value or field:min..max", expr)
		}
		f := index.Filter{Field: field}
		if lo, hi, isRange := strings.Cut(value, ".."); isRange {
			if lo == "" && hi == "" {
				return nil, pkgerrors.Invalidf("filter %q supplies an empty range", expr)
			}
			if lo != "" {
				f.Min = lo
			}
			if hi != "" {
				f.Max = hi
			}
		} else {
			if value == "" {
				return nil, pkgerrors.Invalidf("filter %q supplies no value", expr)
			}
			f.Exact = value
		}
		filters = append(filters, f)
	}
	return filters, nil
}

func decodeSnapshotRequest(r *http.Request) (snapshotRequest, error) {
	var req snapshotRequest
	if r.Body == nil || r.ContentLength == 0 {
		return req, nil
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, pkgerrors.Invalidf("request body must be JSON with an optional path")
	}
	return req, nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("writing response failed", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := pkgerrors.HTTPStatusCode(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "error", err)
	}
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}
