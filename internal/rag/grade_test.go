package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/tuvan0/tuvan/internal/log"
	"github.com/tuvan0/tuvan/internal/metrics"
)

func TestOverlapRatio(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		question string
		content  string
		want     float64
	}{
		{
			name:     "all terms present",
			question: "điểm chuẩn kinh tế",
			content:  "Năm nay điểm chuẩn ngành kinh tế tăng nhẹ",
			want:     1.0,
		},
		{
			name:     "no terms present",
			question: "tuition fees",
			content:  "hoàn toàn không liên quan",
			want:     0.0,
		},
		{
			name:     "half the terms present",
			question: "admission scores",
			content:  "the admission process is simple",
			want:     0.5,
		},
		{
			name:     "case insensitive",
			question: "KINH TẾ",
			content:  "ngành kinh tế",
			want:     1.0,
		},
		{
			name:     "empty question",
			question: "",
			content:  "anything",
			want:     0.0,
		},
		{
			name:     "repeated query terms count once",
			question: "kinh kinh tế",
			content:  "kinh",
			want:     0.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := OverlapRatio(tt.question, tt.content); got != tt.want {
				t.Errorf("OverlapRatio(%q, %q) = %v, want %v", tt.question, tt.content, got, tt.want)
			}
		})
	}
}

func TestFilterByOverlap(t *testing.T) {
	t.Parallel()

	question := "điểm chuẩn kinh tế năm 2026 của trường đại học nào cao"
	docs := []Document{
		{Source: "a", Content: "điểm chuẩn kinh tế năm 2026"},     // high overlap
		{Source: "b", Content: "hoàn toàn khác chủ đề luôn nhé"},  // zero overlap
		{Source: "c", Content: "trường đại học công bố điểm mới"}, // partial overlap
	}

	kept := FilterByOverlap(question, docs)

	if len(kept) != 2 {
		t.Fatalf("kept %d documents, want 2: %+v", len(kept), kept)
	}
	// Retrieval order preserved, no re-ranking.
	if kept[0].Source != "a" || kept[1].Source != "c" {
		t.Errorf("order not preserved: got %q then %q", kept[0].Source, kept[1].Source)
	}
	// Scores carry the overlap ratio.
	for _, d := range kept {
		if d.Score < RelevanceThreshold {
			t.Errorf("kept document %q with score %v below threshold", d.Source, d.Score)
		}
	}
}

func TestFilterByOverlapEmptyInput(t *testing.T) {
	t.Parallel()

	if kept := FilterByOverlap("câu hỏi", nil); len(kept) != 0 {
		t.Errorf("FilterByOverlap(nil) = %v, want empty", kept)
	}
}

func TestGradeDocuments(t *testing.T) {
	t.Parallel()

	docs := []Document{
		{Source: "keep-1", Content: "relevant content"},
		{Source: "drop", Content: "irrelevant content"},
		{Source: "keep-2", Content: "also relevant"},
	}

	m := &mockModel{classifyFn: func(_, user string, _ []string) (string, error) {
		if strings.Contains(user, "irrelevant content") {
			return "no", nil
		}
		return "yes", nil
	}}
	g, err := NewGrader(m, metrics.New(), log.NewNop())
	if err != nil {
		t.Fatalf("NewGrader: %v", err)
	}

	kept := g.GradeDocuments(context.Background(), "question", docs)
	if len(kept) != 2 {
		t.Fatalf("kept %d documents, want 2", len(kept))
	}
	if kept[0].Source != "keep-1" || kept[1].Source != "keep-2" {
		t.Errorf("order not preserved: %+v", kept)
	}
	if m.classifyCalls != 3 {
		t.Errorf("classify called %d times, want one per document", m.classifyCalls)
	}
}

func TestGradeDocumentsFailOpen(t *testing.T) {
	t.Parallel()

	docs := []Document{{Source: "a", Content: "x"}, {Source: "b", Content: "y"}}
	m := &mockModel{classifyFn: func(_, _ string, _ []string) (string, error) {
		return "", errors.New("model down")
	}}
	g, err := NewGrader(m, metrics.New(), log.NewNop())
	if err != nil {
		t.Fatalf("NewGrader: %v", err)
	}

	kept := g.GradeDocuments(context.Background(), "q", docs)
	if len(kept) != len(docs) {
		t.Errorf("fail-open kept %d of %d documents", len(kept), len(docs))
	}
}

func TestCheckGrounded(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		docs []Document
		fn   func(system, user string, allowed []string) (string, error)
		want bool
	}{
		{
			name: "no evidence is trivially grounded",
			docs: nil,
			fn: func(_, _ string, _ []string) (string, error) {
				panic("must not call the model without evidence")
			},
			want: true,
		},
		{
			name: "model verdict yes",
			docs: []Document{{Content: "fact"}},
			fn:   func(_, _ string, _ []string) (string, error) { return "yes", nil },
			want: true,
		},
		{
			name: "model verdict no",
			docs: []Document{{Content: "fact"}},
			fn:   func(_, _ string, _ []string) (string, error) { return "no", nil },
			want: false,
		},
		{
			name: "model failure is fail-open grounded",
			docs: []Document{{Content: "fact"}},
			fn:   func(_, _ string, _ []string) (string, error) { return "", errors.New("down") },
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			g, err := NewGrader(&mockModel{classifyFn: tt.fn}, metrics.New(), log.NewNop())
			if err != nil {
				t.Fatalf("NewGrader: %v", err)
			}
			if got := g.CheckGrounded(context.Background(), tt.docs, "answer"); got != tt.want {
				t.Errorf("CheckGrounded = %v, want %v", got, tt.want)
			}
		})
	}
}
