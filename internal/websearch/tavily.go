// Package websearch provides live web evidence through the Tavily search
// API. Results are mapped to pipeline documents with the page URL as the
// source.
package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tuvan0/tuvan/internal/log"
	"github.com/tuvan0/tuvan/internal/rag"
)

// ErrMissingAPIKey indicates the client was constructed without a key.
var ErrMissingAPIKey = errors.New("missing Tavily API key")

const (
	defaultEndpoint   = "https://api.tavily.com/search"
	defaultMaxResults = 3

	// maxSnippetBytes caps a single result snippet before it enters a
	// prompt.
	maxSnippetBytes = 4 * 1024
)

// Client calls the Tavily search API. Safe for concurrent use.
type Client struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
	maxResults int
	logger     log.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client, mainly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithEndpoint overrides the API endpoint, mainly for tests.
func WithEndpoint(url string) Option {
	return func(c *Client) { c.endpoint = url }
}

// WithMaxResults sets how many results to request (default 3).
func WithMaxResults(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxResults = n
		}
	}
}

// New creates a Tavily client.
func New(apiKey string, logger log.Logger, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if logger == nil {
		logger = log.NewNop()
	}

	c := &Client{
		httpClient: &http.Client{Timeout: 20 * time.Second},
		endpoint:   defaultEndpoint,
		apiKey:     apiKey,
		maxResults: defaultMaxResults,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type searchRequest struct {
	Query       string `json:"query"`
	SearchDepth string `json:"search_depth"`
	MaxResults  int    `json:"max_results"`
}

type searchResponse struct {
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

// Search runs one web search and maps the results to documents. The caller
// treats any error as backend-unavailable and proceeds with no evidence.
func (c *Client) Search(ctx context.Context, query string) ([]rag.Document, error) {
	body, err := json.Marshal(searchRequest{
		Query:       query,
		SearchDepth: "basic",
		MaxResults:  c.maxResults,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling search API: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search API returned %s", resp.Status)
	}

	var parsed searchResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding search response: %w", err)
	}

	docs := make([]rag.Document, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		if r.URL == "" || r.Content == "" {
			continue
		}
		docs = append(docs, rag.Document{
			Content: sanitizeSnippet(r.Content, maxSnippetBytes),
			Source:  r.URL,
			Title:   r.Title,
			Score:   r.Score,
			Metadata: map[string]string{
				"origin": "web_search",
			},
		})
	}

	c.logger.Debug("web search done", "query_len", len(query), "results", len(docs))
	return docs, nil
}
