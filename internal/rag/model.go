package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"google.golang.org/genai"

	"github.com/tuvan0/tuvan/internal/log"
)

// ErrUnexpectedLabel indicates a classification response that matched none
// of the allowed labels.
var ErrUnexpectedLabel = errors.New("unexpected classification label")

// classifyMaxTokens keeps classification responses to a single label.
const classifyMaxTokens = 16

// ModelClient is the pipeline's view of the language model. Implementations
// must be safe for concurrent use.
type ModelClient interface {
	// Classify makes one constrained call and returns one of the allowed
	// labels, or an error. Callers treat any error per their fail-open rules.
	Classify(ctx context.Context, system, user string, allowed []string) (string, error)

	// Stream generates from prompt, invoking cb for every token chunk, and
	// returns the full response text.
	Stream(ctx context.Context, prompt string, temperature float32, cb func(token string) error) (string, error)
}

// Model is the Genkit-backed ModelClient used in production.
type Model struct {
	g         *genkit.Genkit
	modelName string
	maxTokens int
	logger    log.Logger
}

// NewModel creates a Model. g and modelName are required.
func NewModel(g *genkit.Genkit, modelName string, maxTokens int, logger log.Logger) (*Model, error) {
	if g == nil {
		return nil, errors.New("nil genkit instance")
	}
	if modelName == "" {
		return nil, errors.New("empty model name")
	}
	if maxTokens <= 0 {
		maxTokens = 1000
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Model{g: g, modelName: modelName, maxTokens: maxTokens, logger: logger}, nil
}

// Classify runs one deterministic generation and maps the output onto the
// allowed labels. Temperature 0 and a tiny token budget keep the call cheap
// and reproducible.
func (m *Model) Classify(ctx context.Context, system, user string, allowed []string) (string, error) {
	resp, err := genkit.Generate(ctx, m.g,
		ai.WithModelName(m.modelName),
		ai.WithSystem(system),
		ai.WithPrompt(user),
		ai.WithConfig(&genai.GenerateContentConfig{
			Temperature:     genai.Ptr[float32](0),
			MaxOutputTokens: classifyMaxTokens,
		}),
	)
	if err != nil {
		return "", fmt.Errorf("classification call: %w", err)
	}

	return matchLabel(resp.Text(), allowed)
}

// matchLabel normalizes a model response and maps it onto one of the allowed
// labels. Models wrap labels in punctuation, quotes or code fences often
// enough that exact comparison is not workable.
func matchLabel(text string, allowed []string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(stripCodeFences(text)))
	normalized = strings.Trim(normalized, `"'.,:;!`)

	for _, label := range allowed {
		if normalized == label {
			return label, nil
		}
	}
	// Relaxed pass: the label appears inside a longer response.
	for _, label := range allowed {
		if strings.Contains(normalized, label) {
			return label, nil
		}
	}
	return "", fmt.Errorf("%w: %q not in %v", ErrUnexpectedLabel, normalized, allowed)
}

// stripCodeFences removes ``` wrapping from model output.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// Drop a language tag on the opening fence.
	if idx := strings.Index(s, "\n"); idx >= 0 && !strings.ContainsAny(s[:idx], " \t") {
		s = s[idx+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// Stream generates the answer, pushing each chunk's text to cb.
func (m *Model) Stream(ctx context.Context, prompt string, temperature float32, cb func(token string) error) (string, error) {
	opts := []ai.GenerateOption{
		ai.WithModelName(m.modelName),
		ai.WithPrompt(prompt),
		ai.WithConfig(&genai.GenerateContentConfig{
			Temperature:     genai.Ptr(temperature),
			MaxOutputTokens: int32(m.maxTokens),
		}),
	}
	if cb != nil {
		opts = append(opts, ai.WithStreaming(func(_ context.Context, chunk *ai.ModelResponseChunk) error {
			return cb(chunk.Text())
		}))
	}

	resp, err := genkit.Generate(ctx, m.g, opts...)
	if err != nil {
		return "", fmt.Errorf("generation call: %w", err)
	}
	return resp.Text(), nil
}
