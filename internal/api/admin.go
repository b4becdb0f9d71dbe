package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tuvan0/tuvan/internal/config"
	"github.com/tuvan0/tuvan/internal/ingest"
	"github.com/tuvan0/tuvan/internal/knowledge"
	"github.com/tuvan0/tuvan/internal/log"
	"github.com/tuvan0/tuvan/internal/metrics"
)

// bearerAuth guards admin routes with a constant-time bearer key check.
func bearerAuth(key string, logger log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(key)) != 1 {
				logger.Warn("admin auth failed", "path", r.URL.Path, "ip", r.RemoteAddr)
				writeError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid bearer token", logger)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type adminHandler struct {
	cfg      *config.Config
	metrics  *metrics.Collector
	ingestor Ingestor
	counter  DocumentCounter
	logger   log.Logger
}

// getConfig returns the running configuration. Secrets are masked by the
// config's own MarshalJSON.
func (h *adminHandler) getConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.cfg, h.logger)
}

// getMetrics returns a JSON snapshot of the pipeline counters.
func (h *adminHandler) getMetrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.metrics.Snapshot(), h.logger)
}

// exportMetrics returns the counters as JSON or Prometheus text, selected
// by ?format=.
func (h *adminHandler) exportMetrics(w http.ResponseWriter, r *http.Request) {
	switch format := r.URL.Query().Get("format"); format {
	case "", "json":
		writeJSON(w, http.StatusOK, h.metrics.Snapshot(), h.logger)
	case "prometheus":
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		if _, err := fmt.Fprint(w, h.metrics.Prometheus()); err != nil {
			h.logger.Debug("writing prometheus export", "error", err)
		}
	default:
		writeError(w, http.StatusBadRequest, "invalid_format",
			fmt.Sprintf("unknown format %q (want json or prometheus)", format), h.logger)
	}
}

// resetMetrics clears all counters.
func (h *adminHandler) resetMetrics(w http.ResponseWriter, _ *http.Request) {
	h.metrics.Reset()
	h.logger.Info("metrics reset via admin API")
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"}, h.logger)
}

// ingestRequest is the body of POST /admin/ingest. Either Path (a server-side
// file) or Documents (inline content) must be set.
type ingestRequest struct {
	Path       string `json:"path,omitempty"`
	FileType   string `json:"file_type,omitempty"`
	Collection string `json:"collection,omitempty"`

	Documents []struct {
		Title    string            `json:"title"`
		Content  string            `json:"content"`
		Source   string            `json:"source"`
		Metadata map[string]string `json:"metadata"`
	} `json:"documents,omitempty"`
}

// runIngest triggers an ingestion job and returns its result.
func (h *adminHandler) runIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	r.Body = http.MaxBytesReader(w, r.Body, 16*1024*1024)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body", h.logger)
		return
	}

	collection := req.Collection
	if collection == "" {
		collection = h.cfg.Collection
	}

	var (
		res *ingest.Result
		err error
	)
	switch {
	case req.Path != "":
		res, err = h.ingestor.Ingest(r.Context(), req.Path, req.FileType, collection)
	case len(req.Documents) > 0:
		docs := make([]knowledge.Document, 0, len(req.Documents))
		for _, d := range req.Documents {
			docs = append(docs, knowledge.Document{
				Title:    d.Title,
				Content:  d.Content,
				Source:   d.Source,
				Metadata: d.Metadata,
			})
		}
		res, err = h.ingestor.IngestDocuments(r.Context(), docs, collection)
	default:
		writeError(w, http.StatusBadRequest, "invalid_request", "path or documents is required", h.logger)
		return
	}

	if err != nil {
		switch {
		case errors.Is(err, ingest.ErrIngestInProgress):
			writeError(w, http.StatusConflict, "ingest_in_progress", err.Error(), h.logger)
		case errors.Is(err, ingest.ErrUnsupportedType), errors.Is(err, ingest.ErrNoContent):
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error(), h.logger)
		default:
			h.logger.Error("admin ingest failed", "collection", collection, "error", err)
			writeError(w, http.StatusInternalServerError, "ingest_failed", "ingestion failed", h.logger)
		}
		return
	}

	writeJSON(w, http.StatusOK, res, h.logger)
}

// statusResponse is the body of GET /admin/status.
type statusResponse struct {
	Status           string `json:"status"`
	Model            string `json:"model"`
	Collection       string `json:"collection"`
	Documents        int64  `json:"documents"`
	WebSearchEnabled bool   `json:"web_search_enabled"`
}

// status summarizes the running service: model, default collection and its
// document count.
func (h *adminHandler) status(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Status:           "ok",
		Model:            h.cfg.ModelName,
		Collection:       h.cfg.Collection,
		WebSearchEnabled: h.cfg.WebSearchEnabled,
	}

	if h.counter != nil {
		count, err := h.counter.Count(r.Context(), h.cfg.Collection)
		if err != nil {
			h.logger.Warn("counting documents for status", "error", err)
			resp.Status = "degraded"
		} else {
			resp.Documents = count
		}
	}

	writeJSON(w, http.StatusOK, resp, h.logger)
}
