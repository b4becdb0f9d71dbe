// Package api exposes the answer pipeline over HTTP: a JSON answer
// endpoint, an SSE streaming variant, health probes and a key-protected
// admin surface.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tuvan0/tuvan/internal/config"
	"github.com/tuvan0/tuvan/internal/ingest"
	"github.com/tuvan0/tuvan/internal/knowledge"
	"github.com/tuvan0/tuvan/internal/log"
	"github.com/tuvan0/tuvan/internal/metrics"
	"github.com/tuvan0/tuvan/internal/rag"
)

// Answerer is the answer pipeline as the HTTP layer sees it, satisfied by
// *rag.Controller.
type Answerer interface {
	Answer(ctx context.Context, req rag.Request, emit func(token string) error) (*rag.Result, error)
}

// Ingestor runs ingestion jobs for the admin API, satisfied by
// *ingest.Service.
type Ingestor interface {
	Ingest(ctx context.Context, path, fileType, collection string) (*ingest.Result, error)
	IngestDocuments(ctx context.Context, docs []knowledge.Document, collection string) (*ingest.Result, error)
}

// DocumentCounter reports collection sizes for the admin status endpoint,
// satisfied by *knowledge.Store.
type DocumentCounter interface {
	Count(ctx context.Context, collection string) (int64, error)
}

// ServerConfig contains the API server dependencies.
type ServerConfig struct {
	Logger     log.Logger
	Answerer   Answerer           // Required
	Metrics    *metrics.Collector // Required
	Config     *config.Config     // Required: exposed (masked) on /admin/config
	Ingestor   Ingestor           // Optional: nil disables POST /admin/ingest
	Counter    DocumentCounter    // Optional: nil omits document counts in /admin/status
	Pool       *pgxpool.Pool      // Optional: nil disables the DB ping in /ready
	AdminKey   string             // Required: bearer key for /admin routes
	TrustProxy bool               // Trust X-Real-IP/X-Forwarded-For (behind reverse proxy)
	RateBurst  int                // Rate limiter burst per IP (0 = default 30)
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates the server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Answerer == nil {
		return nil, errors.New("answerer is required")
	}
	if cfg.Metrics == nil {
		return nil, errors.New("metrics collector is required")
	}
	if cfg.Config == nil {
		return nil, errors.New("config is required")
	}
	if cfg.AdminKey == "" {
		return nil, errors.New("admin key is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	ah := &answerHandler{
		answerer: cfg.Answerer,
		logger:   logger,
	}

	adm := &adminHandler{
		cfg:      cfg.Config,
		metrics:  cfg.Metrics,
		ingestor: cfg.Ingestor,
		counter:  cfg.Counter,
		logger:   logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/answer", ah.answer)
	mux.HandleFunc("POST /api/v1/answer/stream", ah.stream)

	auth := bearerAuth(cfg.AdminKey, logger)
	mux.Handle("GET /admin/config", auth(http.HandlerFunc(adm.getConfig)))
	mux.Handle("GET /admin/metrics", auth(http.HandlerFunc(adm.getMetrics)))
	mux.Handle("GET /admin/metrics/export", auth(http.HandlerFunc(adm.exportMetrics)))
	mux.Handle("DELETE /admin/metrics", auth(http.HandlerFunc(adm.resetMetrics)))
	mux.Handle("GET /admin/status", auth(http.HandlerFunc(adm.status)))
	if cfg.Ingestor != nil {
		mux.Handle("POST /admin/ingest", auth(http.HandlerFunc(adm.runIngest)))
	}

	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 30
	}
	rl := newRateLimiter(1.0, burst)

	// Middleware stack, outermost first:
	//   Recovery -> RequestID -> Logging -> RateLimit -> Routes
	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Health probes skip the middleware stack so rate limiting never
	// starves a liveness check.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health)
	topMux.Handle("GET /ready", readiness(cfg.Pool))
	topMux.Handle("/", handler)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
