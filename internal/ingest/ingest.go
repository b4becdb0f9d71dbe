// Package ingest loads admissions source files, splits them into
// overlapping chunks and stores them in the knowledge collection.
//
// A run continues past failed batches: one bad batch costs its own chunks,
// never the rest of the file. Concurrent runs into the same collection are
// serialized by a file lock.
package ingest

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/ledongthuc/pdf"

	"github.com/tuvan0/tuvan/internal/knowledge"
	"github.com/tuvan0/tuvan/internal/language"
	"github.com/tuvan0/tuvan/internal/log"
)

var (
	// ErrUnsupportedType indicates a file type outside json, pdf, txt, md.
	ErrUnsupportedType = errors.New("unsupported file type")

	// ErrIngestInProgress indicates another run holds the collection lock.
	ErrIngestInProgress = errors.New("ingest already in progress for collection")

	// ErrNoContent indicates the source file produced no ingestible text.
	ErrNoContent = errors.New("no ingestible content")
)

// DefaultBatchSize is the number of chunks upserted per batch.
const DefaultBatchSize = 100

// DocumentStore is the storage interface the ingester needs, satisfied by
// the knowledge store.
type DocumentStore interface {
	AddBatch(ctx context.Context, docs []knowledge.Document) error
}

// Config holds ingestion parameters.
type Config struct {
	ChunkSize    int
	ChunkOverlap int
	BatchSize    int
	// LockDir holds the per-collection lock files. Default os.TempDir().
	LockDir string
}

// Result reports one ingestion run.
type Result struct {
	// Success is true when every batch was stored. A run with failed
	// batches still counts its surviving chunks.
	Success            bool `json:"success"`
	DocumentsProcessed int  `json:"documents_processed"`
	ChunksCreated      int  `json:"chunks_created"`
	FailedBatches      int  `json:"failed_batches"`
}

// Service ingests source files into a knowledge collection.
type Service struct {
	store        DocumentStore
	chunkSize    int
	chunkOverlap int
	batchSize    int
	lockDir      string
	logger       log.Logger
}

// New creates an ingestion service. store is required.
func New(store DocumentStore, cfg Config, logger log.Logger) (*Service, error) {
	if store == nil {
		return nil, errors.New("nil document store")
	}
	if logger == nil {
		logger = log.NewNop()
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 1000
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = 200
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.LockDir == "" {
		cfg.LockDir = os.TempDir()
	}

	return &Service{
		store:        store,
		chunkSize:    cfg.ChunkSize,
		chunkOverlap: cfg.ChunkOverlap,
		batchSize:    cfg.BatchSize,
		lockDir:      cfg.LockDir,
		logger:       logger,
	}, nil
}

// sourceDoc is one logical document extracted from a source file.
type sourceDoc struct {
	Title    string
	Content  string
	Source   string
	Metadata map[string]string
}

// DetectFileType maps a file extension to an ingestible type.
func DetectFileType(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "json", nil
	case ".pdf":
		return "pdf", nil
	case ".txt":
		return "txt", nil
	case ".md", ".markdown":
		return "md", nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, filepath.Ext(path))
	}
}

// Ingest loads one file into the collection. fileType may be empty, in
// which case it is detected from the extension.
func (s *Service) Ingest(ctx context.Context, path, fileType, collection string) (*Result, error) {
	if fileType == "" {
		detected, err := DetectFileType(path)
		if err != nil {
			return nil, err
		}
		fileType = detected
	}

	unlock, err := s.lockCollection(collection)
	if err != nil {
		return nil, err
	}
	defer unlock()

	docs, err := s.extract(path, fileType)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoContent, path)
	}

	return s.storeDocs(ctx, docs, collection, fileType)
}

// IngestDocuments stores already-extracted documents, used by the admin
// ingest endpoint where content arrives in the request body.
func (s *Service) IngestDocuments(ctx context.Context, docs []knowledge.Document, collection string) (*Result, error) {
	if len(docs) == 0 {
		return nil, ErrNoContent
	}

	unlock, err := s.lockCollection(collection)
	if err != nil {
		return nil, err
	}
	defer unlock()

	source := make([]sourceDoc, 0, len(docs))
	for _, d := range docs {
		if strings.TrimSpace(d.Content) == "" {
			continue
		}
		source = append(source, sourceDoc{
			Title:    d.Title,
			Content:  d.Content,
			Source:   d.Source,
			Metadata: d.Metadata,
		})
	}
	if len(source) == 0 {
		return nil, ErrNoContent
	}
	return s.storeDocs(ctx, source, collection, "inline")
}

// lockCollection takes the per-collection file lock. The lock is advisory
// and scoped to this host, which is where ingest runs.
func (s *Service) lockCollection(collection string) (func(), error) {
	name := fmt.Sprintf("tuvan-ingest-%x.lock", sha256.Sum256([]byte(collection)))
	fl := flock.New(filepath.Join(s.lockDir, name))

	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring ingest lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrIngestInProgress, collection)
	}
	return func() {
		if err := fl.Unlock(); err != nil {
			s.logger.Warn("releasing ingest lock", "collection", collection, "error", err)
		}
	}, nil
}

// storeDocs chunks the documents and upserts them in batches. A failed
// batch is logged and skipped; the run continues.
func (s *Service) storeDocs(ctx context.Context, docs []sourceDoc, collection, fileType string) (*Result, error) {
	start := time.Now()
	res := &Result{DocumentsProcessed: len(docs)}

	var batch []knowledge.Document
	flushBatch := func() {
		if len(batch) == 0 {
			return
		}
		if err := s.store.AddBatch(ctx, batch); err != nil {
			s.logger.Warn("batch failed, continuing",
				"collection", collection, "batch_size", len(batch), "error", err)
			res.FailedBatches++
		} else {
			res.ChunksCreated += len(batch)
		}
		batch = batch[:0]
	}

	for _, doc := range docs {
		content := language.Normalize(doc.Content)
		for i, chunk := range Chunk(content, s.chunkSize, s.chunkOverlap) {
			metadata := map[string]string{
				"file_type":   fileType,
				"chunk_index": strconv.Itoa(i),
			}
			for k, v := range doc.Metadata {
				metadata[k] = v
			}

			batch = append(batch, knowledge.Document{
				ID:         chunkID(doc.Source, doc.Title, i),
				Collection: collection,
				Title:      doc.Title,
				Content:    chunk,
				Source:     doc.Source,
				Metadata:   metadata,
			})
			if len(batch) >= s.batchSize {
				flushBatch()
			}
		}
	}
	flushBatch()

	res.Success = res.FailedBatches == 0
	s.logger.Info("ingest finished",
		"collection", collection,
		"documents", res.DocumentsProcessed,
		"chunks", res.ChunksCreated,
		"failed_batches", res.FailedBatches,
		"duration", time.Since(start),
	)
	return res, nil
}

// chunkID derives a stable document ID so re-ingesting the same source
// updates rows instead of duplicating them.
func chunkID(source, title string, index int) string {
	h := sha256.Sum256([]byte(source + "\x00" + title + "\x00" + strconv.Itoa(index)))
	return "doc_" + hex.EncodeToString(h[:16])
}

// jsonRecord is the shape of curated admissions data files: a JSON array of
// records with title, content and optional source and metadata.
type jsonRecord struct {
	Title    string            `json:"title"`
	Content  string            `json:"content"`
	Source   string            `json:"source"`
	Metadata map[string]string `json:"metadata"`
}

// extract reads the file and produces logical documents per file type.
func (s *Service) extract(path, fileType string) ([]sourceDoc, error) {
	switch fileType {
	case "json":
		return extractJSON(path)
	case "pdf":
		return extractPDF(path)
	case "txt", "md":
		return extractText(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, fileType)
	}
}

func extractJSON(path string) ([]sourceDoc, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var records []jsonRecord
	if err := json.Unmarshal(data, &records); err != nil {
		// A single top-level object is accepted too.
		var single jsonRecord
		if err2 := json.Unmarshal(data, &single); err2 != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		records = []jsonRecord{single}
	}

	docs := make([]sourceDoc, 0, len(records))
	for _, r := range records {
		if strings.TrimSpace(r.Content) == "" {
			continue
		}
		source := r.Source
		if source == "" {
			source = path
		}
		docs = append(docs, sourceDoc{
			Title:    r.Title,
			Content:  r.Content,
			Source:   source,
			Metadata: r.Metadata,
		})
	}
	return docs, nil
}

func extractPDF(path string) ([]sourceDoc, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	plain, err := reader.GetPlainText()
	if err != nil {
		return nil, fmt.Errorf("extracting text from %s: %w", path, err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return nil, fmt.Errorf("reading text from %s: %w", path, err)
	}

	content := strings.TrimSpace(buf.String())
	if content == "" {
		return nil, nil
	}
	return []sourceDoc{{
		Title:   strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Content: content,
		Source:  path,
	}}, nil
}

func extractText(path string) ([]sourceDoc, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	content := strings.TrimSpace(string(data))
	if content == "" {
		return nil, nil
	}
	return []sourceDoc{{
		Title:   strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Content: content,
		Source:  path,
	}}, nil
}
