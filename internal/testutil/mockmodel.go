package testutil

import (
	"context"
	"strings"
	"sync"
)

// MockModel is a scriptable model client for tests above the rag package.
// The zero value routes everything to the vector store, grades every
// document relevant, finds every answer grounded and streams CannedAnswer
// word by word.
type MockModel struct {
	mu sync.Mutex

	// CannedAnswer is streamed and returned by Stream. Defaults to a short
	// Vietnamese sentence.
	CannedAnswer string

	// ClassifyFn overrides classification when set.
	ClassifyFn func(system, user string, allowed []string) (string, error)

	// StreamFn overrides generation when set.
	StreamFn func(prompt string, cb func(token string) error) (string, error)

	classifyCalls int
	streamCalls   int
	prompts       []string
}

// Classify implements rag.ModelClient.
func (m *MockModel) Classify(_ context.Context, system, user string, allowed []string) (string, error) {
	m.mu.Lock()
	m.classifyCalls++
	fn := m.ClassifyFn
	m.mu.Unlock()

	if fn != nil {
		return fn(system, user, allowed)
	}

	// Default verdicts: first allowed label for routing, "yes" for graders.
	for _, label := range allowed {
		if label == "yes" {
			return "yes", nil
		}
	}
	return allowed[0], nil
}

// Stream implements rag.ModelClient.
func (m *MockModel) Stream(_ context.Context, prompt string, _ float32, cb func(token string) error) (string, error) {
	m.mu.Lock()
	m.streamCalls++
	m.prompts = append(m.prompts, prompt)
	answer := m.CannedAnswer
	fn := m.StreamFn
	m.mu.Unlock()

	if fn != nil {
		return fn(prompt, cb)
	}

	if answer == "" {
		answer = "Điểm chuẩn ngành này là 26.5 điểm."
	}
	if cb != nil {
		for i, word := range strings.Fields(answer) {
			token := word
			if i > 0 {
				token = " " + word
			}
			if err := cb(token); err != nil {
				return "", err
			}
		}
	}
	return answer, nil
}

// ClassifyCalls reports how many classification calls were made.
func (m *MockModel) ClassifyCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.classifyCalls
}

// StreamCalls reports how many generation calls were made.
func (m *MockModel) StreamCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streamCalls
}

// Prompts returns the generation prompts seen so far.
func (m *MockModel) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}
