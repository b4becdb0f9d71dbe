package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tuvan0/tuvan/db"
	"github.com/tuvan0/tuvan/internal/config"
	"github.com/tuvan0/tuvan/internal/ingest"
	"github.com/tuvan0/tuvan/internal/knowledge"
	"github.com/tuvan0/tuvan/internal/log"
	"github.com/tuvan0/tuvan/internal/metrics"
	"github.com/tuvan0/tuvan/internal/observability"
	"github.com/tuvan0/tuvan/internal/rag"
	"github.com/tuvan0/tuvan/internal/websearch"
	"github.com/tuvan0/tuvan/internal/workers"
)

// Setup initializes the application. On any failure everything already
// initialized is released before returning.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	if cfg == nil {
		return nil, config.ErrConfigNil
	}
	if logger == nil {
		logger = log.NewNop()
	}

	a := &App{Config: cfg, Logger: logger}
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	// Tracing must be registered before Genkit initialization so Genkit's
	// TracerProvider picks up the span processor.
	a.traceCleanup = provideTraceShutdown(ctx, cfg, logger)

	pool, err := provideDBPool(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.DBPool = pool

	g, err := provideGenkit(ctx, logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g
	a.Embedder = googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)

	store, err := knowledge.New(pool, a.Embedder, logger)
	if err != nil {
		return nil, fmt.Errorf("creating knowledge store: %w", err)
	}
	a.Knowledge = store

	if cfg.WebSearchEnabled {
		web, err := websearch.New(cfg.TavilyAPIKey, logger, websearch.WithMaxResults(cfg.WebMaxResults))
		if err != nil {
			return nil, fmt.Errorf("creating web search client: %w", err)
		}
		a.Web = web
	}

	model, err := rag.NewModel(g, cfg.ModelName, cfg.MaxTokens, logger)
	if err != nil {
		return nil, fmt.Errorf("creating model client: %w", err)
	}
	a.Model = model

	a.workerPool = workers.New(cfg.WorkerCount, cfg.QueueSize, logger)
	a.Metrics = metrics.New()

	controller, err := provideController(a)
	if err != nil {
		return nil, err
	}
	a.Controller = controller

	ingestSvc, err := ingest.New(store, ingest.Config{
		ChunkSize:    cfg.ChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating ingest service: %w", err)
	}
	a.Ingest = ingestSvc

	return a, nil
}

// provideTraceShutdown sets up OTLP trace export when enabled.
func provideTraceShutdown(ctx context.Context, cfg *config.Config, logger log.Logger) func() {
	if !cfg.Trace.Enabled {
		return func() {}
	}

	shutdown, err := observability.Setup(ctx, observability.Config{
		AgentHost:   cfg.Trace.AgentHost,
		Environment: cfg.Trace.Environment,
		ServiceName: cfg.Trace.ServiceName,
	}, logger)
	if err != nil {
		logger.Warn("trace setup failed, continuing without tracing", "error", err)
		return func() {}
	}

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn("shutting down tracer provider", "error", err)
		}
	}
}

// provideDBPool runs migrations and creates the connection pool.
func provideDBPool(ctx context.Context, cfg *config.Config, logger log.Logger) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL(), logger); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresURL())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}

// provideGenkit initializes Genkit with the Google AI plugin. The plugin
// reads GEMINI_API_KEY from the environment.
func provideGenkit(ctx context.Context, logger log.Logger) (*genkit.Genkit, error) {
	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		return nil, errors.New("initializing genkit")
	}
	logger.Debug("genkit initialized with googleai plugin")
	return g, nil
}

// provideController wires the answer pipeline.
func provideController(a *App) (*rag.Controller, error) {
	cfg := a.Config

	var web rag.WebSearcher
	if a.Web != nil {
		web = a.Web
	}

	retriever := rag.NewRetriever(&vectorAdapter{store: a.Knowledge}, web, a.workerPool, a.Logger)
	router := rag.NewRouter(a.Model, a.Metrics, a.Logger)

	grader, err := rag.NewGrader(a.Model, a.Metrics, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("creating grader: %w", err)
	}

	controller, err := rag.NewController(rag.ControllerConfig{
		Router:           router,
		Grader:           grader,
		Retriever:        retriever,
		Model:            a.Model,
		Metrics:          a.Metrics,
		Logger:           a.Logger,
		Collection:       cfg.Collection,
		TopK:             cfg.TopK,
		MaxRetries:       cfg.MaxRetries,
		Temperature:      cfg.Temperature,
		RetryTemperature: cfg.RetryTemperature,
	})
	if err != nil {
		return nil, fmt.Errorf("creating controller: %w", err)
	}
	return controller, nil
}

// documentSearcher is the slice of the knowledge store the adapter needs.
type documentSearcher interface {
	Search(ctx context.Context, collection, query string, topK int) ([]knowledge.Document, error)
}

// vectorAdapter bridges the knowledge store to the pipeline's document type.
type vectorAdapter struct {
	store documentSearcher
}

func (v *vectorAdapter) Search(ctx context.Context, collection, query string, topK int) ([]rag.Document, error) {
	results, err := v.store.Search(ctx, collection, query, topK)
	if err != nil {
		return nil, err
	}

	docs := make([]rag.Document, 0, len(results))
	for _, r := range results {
		metadata := map[string]string{"origin": "vectorstore"}
		for k, val := range r.Metadata {
			metadata[k] = val
		}
		if r.Source != "" {
			metadata["source"] = r.Source
		}
		docs = append(docs, rag.Document{
			Content:  r.Content,
			Source:   r.ID,
			Title:    r.Title,
			Score:    r.Score,
			Metadata: metadata,
		})
	}
	return docs, nil
}
