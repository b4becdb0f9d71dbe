// Package app assembles the application: configuration, database, Genkit,
// retrieval backends and the answer pipeline, with ordered teardown.
package app

import (
	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tuvan0/tuvan/internal/config"
	"github.com/tuvan0/tuvan/internal/ingest"
	"github.com/tuvan0/tuvan/internal/knowledge"
	"github.com/tuvan0/tuvan/internal/log"
	"github.com/tuvan0/tuvan/internal/metrics"
	"github.com/tuvan0/tuvan/internal/rag"
	"github.com/tuvan0/tuvan/internal/websearch"
	"github.com/tuvan0/tuvan/internal/workers"
)

// App is the application container.
type App struct {
	Config *config.Config
	Logger log.Logger

	Genkit   *genkit.Genkit
	Embedder ai.Embedder
	DBPool   *pgxpool.Pool

	Knowledge  *knowledge.Store
	Web        *websearch.Client // nil when web search is disabled
	Model      *rag.Model
	Metrics    *metrics.Collector
	Controller *rag.Controller
	Ingest     *ingest.Service

	workerPool   *workers.Pool
	traceCleanup func()
}

// Close releases resources in reverse dependency order.
func (a *App) Close() error {
	if a.Logger != nil {
		a.Logger.Info("shutting down application")
	}

	if a.workerPool != nil {
		a.workerPool.Close()
	}
	if a.DBPool != nil {
		a.DBPool.Close()
	}
	if a.traceCleanup != nil {
		a.traceCleanup()
	}
	return nil
}
