// Package metrics collects in-process counters for the answer pipeline.
//
// The collector is a mutex-protected struct rather than a full metrics
// registry: the admin API needs a JSON snapshot, a Prometheus text export
// and a reset operation, all over the same numbers.
package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Collector aggregates request counters. Safe for concurrent use.
type Collector struct {
	mu sync.Mutex

	startTime time.Time

	totalRequests  int64
	failedRequests int64
	totalTokens    int64

	totalDuration time.Duration
	maxDuration   time.Duration

	routes    map[string]int64
	languages map[string]int64

	fallbacks int64 // vector -> web fallback retrievals
	retries   int64 // regeneration attempts after not-grounded verdicts
	failOpens int64 // grading/routing calls that failed open
}

// New creates an empty collector.
func New() *Collector {
	return &Collector{
		startTime: time.Now(),
		routes:    make(map[string]int64),
		languages: make(map[string]int64),
	}
}

// RecordRequest records one completed answer request.
func (c *Collector) RecordRequest(route, lang string, duration time.Duration, tokens int, failed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.totalRequests++
	if failed {
		c.failedRequests++
	}
	c.totalTokens += int64(tokens)
	c.totalDuration += duration
	if duration > c.maxDuration {
		c.maxDuration = duration
	}
	if route != "" {
		c.routes[route]++
	}
	if lang != "" {
		c.languages[lang]++
	}
}

// RecordFallback counts a fallback retrieval (vector store to web search).
func (c *Collector) RecordFallback() {
	c.mu.Lock()
	c.fallbacks++
	c.mu.Unlock()
}

// RecordRetry counts a regeneration attempt after a not-grounded verdict.
func (c *Collector) RecordRetry() {
	c.mu.Lock()
	c.retries++
	c.mu.Unlock()
}

// RecordFailOpen counts a grading or routing model call that failed and was
// resolved by the fail-open default.
func (c *Collector) RecordFailOpen() {
	c.mu.Lock()
	c.failOpens++
	c.mu.Unlock()
}

// Stats is a point-in-time snapshot of the collector.
type Stats struct {
	UptimeSeconds  float64          `json:"uptime_seconds"`
	TotalRequests  int64            `json:"total_requests"`
	FailedRequests int64            `json:"failed_requests"`
	TotalTokens    int64            `json:"total_tokens"`
	AvgDurationMS  float64          `json:"avg_duration_ms"`
	MaxDurationMS  float64          `json:"max_duration_ms"`
	Routes         map[string]int64 `json:"routes"`
	Languages      map[string]int64 `json:"languages"`
	Fallbacks      int64            `json:"fallbacks"`
	Retries        int64            `json:"retries"`
	FailOpens      int64            `json:"fail_opens"`
}

// Snapshot returns a copy of the current counters.
func (c *Collector) Snapshot() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		UptimeSeconds:  time.Since(c.startTime).Seconds(),
		TotalRequests:  c.totalRequests,
		FailedRequests: c.failedRequests,
		TotalTokens:    c.totalTokens,
		MaxDurationMS:  float64(c.maxDuration.Milliseconds()),
		Routes:         make(map[string]int64, len(c.routes)),
		Languages:      make(map[string]int64, len(c.languages)),
		Fallbacks:      c.fallbacks,
		Retries:        c.retries,
		FailOpens:      c.failOpens,
	}
	if c.totalRequests > 0 {
		s.AvgDurationMS = float64(c.totalDuration.Milliseconds()) / float64(c.totalRequests)
	}
	for k, v := range c.routes {
		s.Routes[k] = v
	}
	for k, v := range c.languages {
		s.Languages[k] = v
	}
	return s
}

// Reset clears all counters and restarts the uptime clock.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.startTime = time.Now()
	c.totalRequests = 0
	c.failedRequests = 0
	c.totalTokens = 0
	c.totalDuration = 0
	c.maxDuration = 0
	c.routes = make(map[string]int64)
	c.languages = make(map[string]int64)
	c.fallbacks = 0
	c.retries = 0
	c.failOpens = 0
}

// Prometheus renders the counters in Prometheus text exposition format.
func (c *Collector) Prometheus() string {
	s := c.Snapshot()

	var b strings.Builder
	writeCounter := func(name, help string, value int64) {
		fmt.Fprintf(&b, "# HELP %s %s\n# TYPE %s counter\n%s %d\n", name, help, name, name, value)
	}

	writeCounter("tuvan_requests_total", "Total answer requests.", s.TotalRequests)
	writeCounter("tuvan_requests_failed_total", "Failed answer requests.", s.FailedRequests)
	writeCounter("tuvan_tokens_total", "Tokens streamed to callers.", s.TotalTokens)
	writeCounter("tuvan_fallback_retrievals_total", "Vector-to-web fallback retrievals.", s.Fallbacks)
	writeCounter("tuvan_generation_retries_total", "Regenerations after not-grounded verdicts.", s.Retries)
	writeCounter("tuvan_fail_open_total", "Grading or routing calls resolved fail-open.", s.FailOpens)

	writeLabeled := func(name, help, label string, values map[string]int64) {
		fmt.Fprintf(&b, "# HELP %s %s\n# TYPE %s counter\n", name, help, name)
		keys := make([]string, 0, len(values))
		for k := range values {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "%s{%s=%q} %d\n", name, label, k, values[k])
		}
	}
	writeLabeled("tuvan_requests_by_route_total", "Requests by retrieval route.", "route", s.Routes)
	writeLabeled("tuvan_requests_by_language_total", "Requests by detected language.", "language", s.Languages)

	fmt.Fprintf(&b, "# HELP tuvan_uptime_seconds Seconds since start or last reset.\n# TYPE tuvan_uptime_seconds gauge\ntuvan_uptime_seconds %.3f\n", s.UptimeSeconds)
	return b.String()
}
