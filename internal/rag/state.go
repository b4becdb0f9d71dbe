// Package rag implements the adaptive answer pipeline: query routing,
// evidence retrieval, relevance grading, prompt assembly, streaming
// generation and groundedness checking, coordinated by the Controller.
package rag

// Route identifies the retrieval path chosen for a question.
type Route string

const (
	// RouteVectorStore retrieves from the curated admissions collection.
	RouteVectorStore Route = "vectorstore"

	// RouteWebSearch retrieves live web results.
	RouteWebSearch Route = "web_search"

	// RouteDirectModel answers without evidence. Routers never choose it;
	// the controller degrades to it when no retrieval backend is available.
	RouteDirectModel Route = "direct"
)

// Document is a piece of retrieved evidence.
type Document struct {
	Content string
	// Source is a file path for vector store hits or a URL for web results.
	Source string
	Title  string
	// Score is the relevance to the question: cosine similarity for vector
	// hits, the search engine score for web results, or the term-overlap
	// ratio once the heuristic grader has run.
	Score    float64
	Metadata map[string]string
}

// State carries one request through the pipeline. It lives on a single
// goroutine for the lifetime of the request and is never shared.
//
// Documents only ever shrink (relevance filtering) or are replaced wholesale
// (fallback retrieval); they are never merged incrementally. Iteration is
// monotonic and never exceeds MaxRetries.
type State struct {
	Question   string
	Documents  []Document
	Route      Route
	Generation string
	Iteration  int
	MaxRetries int
}
