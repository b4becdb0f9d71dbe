package app

import (
	"context"
	"errors"
	"testing"

	"github.com/tuvan0/tuvan/internal/knowledge"
)

type fakeSearcher struct {
	docs []knowledge.Document
	err  error

	lastCollection string
	lastTopK       int
}

func (f *fakeSearcher) Search(_ context.Context, collection, _ string, topK int) ([]knowledge.Document, error) {
	f.lastCollection = collection
	f.lastTopK = topK
	return f.docs, f.err
}

func TestVectorAdapterMapsDocuments(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{docs: []knowledge.Document{
		{
			ID:       "doc_1",
			Title:    "Điểm chuẩn 2026",
			Content:  "Ngành Kinh tế lấy 26.5 điểm.",
			Source:   "https://tuyensinh.vn/a",
			Score:    0.91,
			Metadata: map[string]string{"year": "2026"},
		},
		{ID: "doc_2", Content: "Học phí 30 triệu."},
	}}
	adapter := &vectorAdapter{store: searcher}

	docs, err := adapter.Search(context.Background(), "academy", "điểm chuẩn", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if searcher.lastCollection != "academy" || searcher.lastTopK != 5 {
		t.Errorf("passthrough = %q/%d", searcher.lastCollection, searcher.lastTopK)
	}
	if len(docs) != 2 {
		t.Fatalf("got %d documents, want 2", len(docs))
	}

	first := docs[0]
	if first.Source != "doc_1" {
		t.Errorf("Source = %q, want the document ID", first.Source)
	}
	if first.Title != "Điểm chuẩn 2026" || first.Score != 0.91 {
		t.Errorf("Title/Score = %q/%v", first.Title, first.Score)
	}
	if first.Metadata["origin"] != "vectorstore" {
		t.Errorf("origin = %q, want vectorstore", first.Metadata["origin"])
	}
	if first.Metadata["source"] != "https://tuyensinh.vn/a" {
		t.Errorf("source metadata = %q", first.Metadata["source"])
	}
	if first.Metadata["year"] != "2026" {
		t.Errorf("store metadata not carried: %v", first.Metadata)
	}
}

func TestVectorAdapterPropagatesError(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("connection refused")
	adapter := &vectorAdapter{store: &fakeSearcher{err: wantErr}}

	if _, err := adapter.Search(context.Background(), "academy", "q", 5); !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want the backend error for the retriever's empty-result path", err)
	}
}

func TestSetupNilConfig(t *testing.T) {
	t.Parallel()

	if _, err := Setup(context.Background(), nil, nil); err == nil {
		t.Fatal("Setup(nil config) = nil error")
	}
}
