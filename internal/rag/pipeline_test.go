package rag_test

import (
	"context"
	"strings"
	"testing"

	"github.com/tuvan0/tuvan/internal/log"
	"github.com/tuvan0/tuvan/internal/metrics"
	"github.com/tuvan0/tuvan/internal/rag"
	"github.com/tuvan0/tuvan/internal/testutil"
	"github.com/tuvan0/tuvan/internal/workers"
)

// End-to-end pipeline tests over the exported API, with real router, grader
// and retriever wiring around a scripted model.

type staticVector struct {
	docs []rag.Document
}

func (s *staticVector) Search(context.Context, string, string, int) ([]rag.Document, error) {
	return s.docs, nil
}

func TestPipelineAdaptiveVectorAnswer(t *testing.T) {
	t.Parallel()

	model := &testutil.MockModel{CannedAnswer: "Điểm chuẩn ngành Kinh tế là 26.5 điểm."}
	collector := metrics.New()
	logger := log.NewNop()

	pool := workers.New(2, 8, logger)
	t.Cleanup(pool.Close)

	vector := &staticVector{docs: []rag.Document{
		{Content: "Điểm chuẩn ngành Kinh tế năm 2026 là 26.5.", Title: "Điểm chuẩn", Source: "doc_1"},
	}}
	retriever := rag.NewRetriever(vector, nil, pool, logger)

	grader, err := rag.NewGrader(model, collector, logger)
	if err != nil {
		t.Fatalf("NewGrader: %v", err)
	}

	controller, err := rag.NewController(rag.ControllerConfig{
		Router:    rag.NewRouter(model, collector, logger),
		Grader:    grader,
		Retriever: retriever,
		Model:     model,
		Metrics:   collector,
		Logger:    logger,
	})
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}

	var streamed strings.Builder
	res, err := controller.Answer(context.Background(), rag.Request{
		Question: "Điểm chuẩn ngành Kinh tế là bao nhiêu?",
		UserID:   "u1",
		Adaptive: true,
	}, func(token string) error {
		streamed.WriteString(token)
		return nil
	})
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}

	if res.Route != rag.RouteVectorStore {
		t.Errorf("Route = %q, want vectorstore for an admissions question", res.Route)
	}
	if res.Language != "vi" {
		t.Errorf("Language = %q, want vi", res.Language)
	}
	if !res.Grounded || res.Failed {
		t.Errorf("result = %+v, want grounded success", res)
	}
	if len(res.Sources) != 1 {
		t.Errorf("Sources = %d, want the retained document", len(res.Sources))
	}
	if streamed.String() != res.Answer {
		t.Errorf("streamed %q, answer %q", streamed.String(), res.Answer)
	}

	// Adaptive mode makes model calls: routing, one relevance verdict and
	// one groundedness verdict.
	if got := model.ClassifyCalls(); got != 3 {
		t.Errorf("classify calls = %d, want 3", got)
	}
	if got := model.StreamCalls(); got != 1 {
		t.Errorf("stream calls = %d, want 1", got)
	}

	// The prompt carries the evidence block in the Vietnamese template.
	prompt := model.Prompts()[0]
	if !strings.Contains(prompt, "[Nguồn 1") || !strings.Contains(prompt, "Câu hỏi:") {
		t.Errorf("prompt missing Vietnamese evidence template:\n%s", prompt)
	}

	stats := collector.Snapshot()
	if stats.TotalRequests != 1 || stats.Routes["vectorstore"] != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestPipelineNonAdaptiveSkipsModelVerdicts(t *testing.T) {
	t.Parallel()

	model := &testutil.MockModel{CannedAnswer: "The benchmark score is 26.5 points."}
	collector := metrics.New()
	logger := log.NewNop()

	pool := workers.New(2, 8, logger)
	t.Cleanup(pool.Close)

	vector := &staticVector{docs: []rag.Document{
		{Content: "The benchmark admission score for economics is 26.5 points.", Source: "doc_1"},
	}}
	retriever := rag.NewRetriever(vector, nil, pool, logger)

	grader, err := rag.NewGrader(model, collector, logger)
	if err != nil {
		t.Fatalf("NewGrader: %v", err)
	}

	controller, err := rag.NewController(rag.ControllerConfig{
		Router:    rag.NewRouter(model, collector, logger),
		Grader:    grader,
		Retriever: retriever,
		Model:     model,
		Metrics:   collector,
		Logger:    logger,
	})
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}

	res, err := controller.Answer(context.Background(), rag.Request{
		Question: "What is the benchmark admission score for economics?",
		UserID:   "u2",
	}, nil)
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}

	if res.Language != "en" {
		t.Errorf("Language = %q, want en", res.Language)
	}
	if res.Attempts != 1 || !res.Grounded {
		t.Errorf("result = %+v", res)
	}
	// Keyword routing and overlap filtering run without the model.
	if got := model.ClassifyCalls(); got != 0 {
		t.Errorf("classify calls = %d, want 0 in non-adaptive mode", got)
	}
}
