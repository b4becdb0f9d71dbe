// Package knowledge stores admissions documents in PostgreSQL with pgvector
// embeddings and serves similarity search for the answer pipeline.
package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"github.com/tuvan0/tuvan/internal/log"
)

var (
	// ErrNilQuerier indicates the store was constructed without a database.
	ErrNilQuerier = errors.New("nil querier")

	// ErrNilEmbedder indicates the store was constructed without an embedder.
	ErrNilEmbedder = errors.New("nil embedder")

	// ErrEmptyEmbedding indicates the embedder returned no vector.
	ErrEmptyEmbedding = errors.New("empty embedding returned")
)

// searchTimeout bounds a single similarity search including the query
// embedding call.
const searchTimeout = 15 * time.Second

// Document is a stored admissions document or chunk.
type Document struct {
	ID         string
	Collection string
	Title      string
	Content    string
	Source     string
	Metadata   map[string]string
	// Score is the cosine similarity to the query, only set on search results.
	Score     float64
	CreatedAt time.Time
}

// Querier defines the database operations Store needs. The interface is
// defined here, by the consumer, so tests can substitute a fake and
// production can pass a *pgxpool.Pool directly.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store manages documents with vector search. Safe for concurrent use.
type Store struct {
	db       Querier
	embedder ai.Embedder
	logger   log.Logger
}

// New creates a Store. db and embedder are required.
func New(db Querier, embedder ai.Embedder, logger log.Logger) (*Store, error) {
	if db == nil {
		return nil, ErrNilQuerier
	}
	if embedder == nil {
		return nil, ErrNilEmbedder
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{db: db, embedder: embedder, logger: logger}, nil
}

// Add embeds and upserts a single document.
func (s *Store) Add(ctx context.Context, doc Document) error {
	vecs, err := s.embed(ctx, []string{doc.Content})
	if err != nil {
		return fmt.Errorf("embedding document %q: %w", doc.ID, err)
	}
	return s.upsert(ctx, doc, vecs[0])
}

// AddBatch embeds and upserts a batch of documents. The batch shares one
// embedding call; a database failure aborts the whole batch so the caller
// can count it as failed and move on.
func (s *Store) AddBatch(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	contents := make([]string, len(docs))
	for i, d := range docs {
		contents[i] = d.Content
	}
	vecs, err := s.embed(ctx, contents)
	if err != nil {
		return fmt.Errorf("embedding batch of %d: %w", len(docs), err)
	}

	for i, doc := range docs {
		if err := s.upsert(ctx, doc, vecs[i]); err != nil {
			return err
		}
	}
	s.logger.Debug("batch stored", "documents", len(docs), "collection", docs[0].Collection)
	return nil
}

func (s *Store) upsert(ctx context.Context, doc Document, vec pgvector.Vector) error {
	metadataJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("marshaling metadata for %q: %w", doc.ID, err)
	}

	const q = `
		INSERT INTO documents (id, collection, title, content, source, metadata, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			collection = EXCLUDED.collection,
			title      = EXCLUDED.title,
			content    = EXCLUDED.content,
			source     = EXCLUDED.source,
			metadata   = EXCLUDED.metadata,
			embedding  = EXCLUDED.embedding`

	createdAt := doc.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	if _, err := s.db.Exec(ctx, q,
		doc.ID, doc.Collection, doc.Title, doc.Content, doc.Source,
		metadataJSON, vec, createdAt,
	); err != nil {
		return fmt.Errorf("upserting document %q: %w", doc.ID, err)
	}
	return nil
}

// Search returns the topK documents in collection most similar to query,
// ordered by descending similarity. Scores are cosine similarity in [0, 1].
func (s *Store) Search(ctx context.Context, collection, query string, topK int) ([]Document, error) {
	if topK < 1 {
		topK = 1
	}

	ctx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	vecs, err := s.embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	const q = `
		SELECT id, collection, title, content, source, metadata,
		       1 - (embedding <=> $1) AS score,
		       created_at
		FROM documents
		WHERE collection = $2 AND embedding IS NOT NULL
		ORDER BY embedding <=> $1
		LIMIT $3`

	rows, err := s.db.Query(ctx, q, vecs[0], collection, topK)
	if err != nil {
		return nil, fmt.Errorf("searching collection %q: %w", collection, err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var (
			doc          Document
			metadataJSON []byte
		)
		if err := rows.Scan(&doc.ID, &doc.Collection, &doc.Title, &doc.Content,
			&doc.Source, &metadataJSON, &doc.Score, &doc.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning search row: %w", err)
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &doc.Metadata); err != nil {
				s.logger.Warn("skipping unreadable metadata", "id", doc.ID, "error", err)
			}
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading search rows: %w", err)
	}

	s.logger.Debug("similarity search done",
		"collection", collection, "top_k", topK, "results", len(docs))
	return docs, nil
}

// Count returns the number of documents in a collection.
func (s *Store) Count(ctx context.Context, collection string) (int64, error) {
	var count int64
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM documents WHERE collection = $1`, collection,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting collection %q: %w", collection, err)
	}
	return count, nil
}

// Delete removes a document by ID. Deleting a missing document is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id); err != nil {
		return fmt.Errorf("deleting document %q: %w", id, err)
	}
	return nil
}

// embed generates embeddings for the given texts, one vector per text.
func (s *Store) embed(ctx context.Context, texts []string) ([]pgvector.Vector, error) {
	input := make([]*ai.Document, len(texts))
	for i, t := range texts {
		input[i] = ai.DocumentFromText(t, nil)
	}

	resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{Input: input})
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts",
			ErrEmptyEmbedding, len(resp.Embeddings), len(texts))
	}

	vecs := make([]pgvector.Vector, len(texts))
	for i, e := range resp.Embeddings {
		if len(e.Embedding) == 0 {
			return nil, ErrEmptyEmbedding
		}
		vecs[i] = pgvector.NewVector(e.Embedding)
	}
	return vecs, nil
}
