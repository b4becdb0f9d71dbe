package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tuvan0/tuvan/internal/log"
	"github.com/tuvan0/tuvan/internal/metrics"
)

// RelevanceThreshold is the minimum term-overlap ratio for the heuristic
// grader to keep a document.
const RelevanceThreshold = 0.10

// gradeTimeout bounds a single grading model call.
const gradeTimeout = 15 * time.Second

const relevanceSystemPrompt = `You are a grader assessing the relevance of a retrieved document to a user question.
If the document contains keywords or semantic meaning related to the question, grade it as relevant.
Answer with exactly one word: "yes" or "no".`

const groundedSystemPrompt = `You are a grader assessing whether an answer is grounded in and supported by a set of retrieved facts.
Answer with exactly one word: "yes" if the answer is supported by the facts, "no" otherwise.`

var yesNoLabels = []string{"yes", "no"}

// OverlapRatio computes |question terms ∩ document terms| / |question terms|
// over lowercased whitespace-split tokens. An empty question yields 0.
func OverlapRatio(question, content string) float64 {
	qTerms := strings.Fields(strings.ToLower(question))
	if len(qTerms) == 0 {
		return 0
	}

	docTerms := make(map[string]bool)
	for _, t := range strings.Fields(strings.ToLower(content)) {
		docTerms[t] = true
	}

	seen := make(map[string]bool, len(qTerms))
	matched, unique := 0, 0
	for _, t := range qTerms {
		if seen[t] {
			continue
		}
		seen[t] = true
		unique++
		if docTerms[t] {
			matched++
		}
	}
	return float64(matched) / float64(unique)
}

// FilterByOverlap keeps documents whose overlap ratio with the question
// reaches RelevanceThreshold. Retrieval order is preserved and each kept
// document's Score is set to its overlap ratio. Never calls a model.
func FilterByOverlap(question string, docs []Document) []Document {
	kept := make([]Document, 0, len(docs))
	for _, doc := range docs {
		ratio := OverlapRatio(question, doc.Content)
		if ratio >= RelevanceThreshold {
			doc.Score = ratio
			kept = append(kept, doc)
		}
	}
	return kept
}

// Grader runs model-assisted relevance and groundedness checks. Every model
// failure resolves fail-open: an ungradable document is retained, an
// ungradable answer is considered grounded.
type Grader struct {
	model   ModelClient
	metrics *metrics.Collector
	logger  log.Logger
}

// NewGrader creates a grader. model is required.
func NewGrader(model ModelClient, collector *metrics.Collector, logger log.Logger) (*Grader, error) {
	if model == nil {
		return nil, fmt.Errorf("nil model client")
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Grader{model: model, metrics: collector, logger: logger}, nil
}

// GradeDocuments grades each document independently with one yes/no call and
// drops the ones graded "no". Order is preserved; there is no re-ranking.
func (g *Grader) GradeDocuments(ctx context.Context, question string, docs []Document) []Document {
	kept := make([]Document, 0, len(docs))
	for _, doc := range docs {
		if g.gradeOne(ctx, question, doc) {
			kept = append(kept, doc)
		}
	}
	return kept
}

func (g *Grader) gradeOne(ctx context.Context, question string, doc Document) bool {
	callCtx, cancel := context.WithTimeout(ctx, gradeTimeout)
	defer cancel()

	user := fmt.Sprintf("Document:\n%s\n\nQuestion: %s\n\nRelevant (yes/no):", doc.Content, question)
	label, err := g.model.Classify(callCtx, relevanceSystemPrompt, user, yesNoLabels)
	if err != nil {
		g.logger.Warn("relevance grading failed, retaining document",
			"source", doc.Source, "error", err)
		if g.metrics != nil {
			g.metrics.RecordFailOpen()
		}
		return true
	}
	return label == "yes"
}

// CheckGrounded reports whether the generation is supported by the evidence.
// With no evidence there is nothing to contradict, so the answer is
// trivially grounded. A failed model call also resolves to grounded.
func (g *Grader) CheckGrounded(ctx context.Context, docs []Document, generation string) bool {
	if len(docs) == 0 {
		return true
	}

	callCtx, cancel := context.WithTimeout(ctx, gradeTimeout)
	defer cancel()

	var facts strings.Builder
	for i, doc := range docs {
		fmt.Fprintf(&facts, "Fact %d: %s\n", i+1, doc.Content)
	}
	user := fmt.Sprintf("Facts:\n%s\nAnswer: %s\n\nGrounded (yes/no):", facts.String(), generation)

	label, err := g.model.Classify(callCtx, groundedSystemPrompt, user, yesNoLabels)
	if err != nil {
		g.logger.Warn("groundedness check failed, accepting answer", "error", err)
		if g.metrics != nil {
			g.metrics.RecordFailOpen()
		}
		return true
	}
	return label == "yes"
}
