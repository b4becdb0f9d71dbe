package rag

import (
	"context"
	"time"

	"github.com/tuvan0/tuvan/internal/log"
	"github.com/tuvan0/tuvan/internal/workers"
)

// Per-backend call timeouts. Web search is slower than the local vector
// store and gets more headroom.
const (
	vectorSearchTimeout = 15 * time.Second
	webSearchTimeout    = 20 * time.Second
)

// VectorSearcher retrieves evidence from the admissions collection.
// Implemented by the knowledge store adapter in internal/app.
type VectorSearcher interface {
	Search(ctx context.Context, collection, query string, topK int) ([]Document, error)
}

// WebSearcher retrieves live web evidence.
// Implemented by the Tavily client in internal/websearch.
type WebSearcher interface {
	Search(ctx context.Context, query string) ([]Document, error)
}

// Retriever offloads blocking backend calls to a bounded worker pool.
// An unavailable backend, a saturated pool or a timed-out call all produce
// an empty result; retrieval never retries and never surfaces an error.
type Retriever struct {
	vector VectorSearcher
	web    WebSearcher
	pool   *workers.Pool
	logger log.Logger
}

// NewRetriever creates a retriever. Either backend may be nil if it is not
// configured; pool is required.
func NewRetriever(vector VectorSearcher, web WebSearcher, pool *workers.Pool, logger log.Logger) *Retriever {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Retriever{vector: vector, web: web, pool: pool, logger: logger}
}

// HasVector reports whether the vector backend is configured.
func (r *Retriever) HasVector() bool { return r.vector != nil }

// HasWeb reports whether the web backend is configured.
func (r *Retriever) HasWeb() bool { return r.web != nil }

// VectorSearch retrieves topK documents from the collection. Empty result
// on any failure.
func (r *Retriever) VectorSearch(ctx context.Context, collection, query string, topK int) []Document {
	if r.vector == nil {
		return nil
	}
	return r.offload(ctx, "vector", vectorSearchTimeout, func(callCtx context.Context) ([]Document, error) {
		return r.vector.Search(callCtx, collection, query, topK)
	})
}

// WebSearch retrieves web documents. Empty result on any failure.
func (r *Retriever) WebSearch(ctx context.Context, query string) []Document {
	if r.web == nil {
		return nil
	}
	return r.offload(ctx, "web", webSearchTimeout, func(callCtx context.Context) ([]Document, error) {
		return r.web.Search(callCtx, query)
	})
}

// offload runs one backend call on the worker pool and waits for it with a
// deadline. Pool rejection is admission control and counts as backend
// unavailable.
func (r *Retriever) offload(ctx context.Context, backend string, timeout time.Duration,
	call func(ctx context.Context) ([]Document, error)) []Document {

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		docs []Document
		err  error
	}
	// Buffered so the worker never blocks if the caller has gone away.
	ch := make(chan outcome, 1)

	err := r.pool.Submit(callCtx, func() {
		docs, err := call(callCtx)
		ch <- outcome{docs: docs, err: err}
	})
	if err != nil {
		r.logger.Warn("retrieval rejected by pool", "backend", backend, "error", err)
		return nil
	}

	select {
	case out := <-ch:
		if out.err != nil {
			r.logger.Warn("retrieval backend unavailable", "backend", backend, "error", out.err)
			return nil
		}
		return out.docs
	case <-callCtx.Done():
		r.logger.Warn("retrieval timed out", "backend", backend, "timeout", timeout)
		return nil
	}
}
