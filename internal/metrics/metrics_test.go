package metrics

import (
	"strings"
	"sync"
	"testing"
	"time"
)

func TestCollectorSnapshot(t *testing.T) {
	t.Parallel()

	c := New()
	c.RecordRequest("vectorstore", "vi", 100*time.Millisecond, 42, false)
	c.RecordRequest("web_search", "en", 300*time.Millisecond, 10, true)
	c.RecordFallback()
	c.RecordRetry()
	c.RecordRetry()
	c.RecordFailOpen()

	s := c.Snapshot()
	if s.TotalRequests != 2 {
		t.Errorf("TotalRequests = %d, want 2", s.TotalRequests)
	}
	if s.FailedRequests != 1 {
		t.Errorf("FailedRequests = %d, want 1", s.FailedRequests)
	}
	if s.TotalTokens != 52 {
		t.Errorf("TotalTokens = %d, want 52", s.TotalTokens)
	}
	if s.Routes["vectorstore"] != 1 || s.Routes["web_search"] != 1 {
		t.Errorf("Routes = %v", s.Routes)
	}
	if s.Languages["vi"] != 1 || s.Languages["en"] != 1 {
		t.Errorf("Languages = %v", s.Languages)
	}
	if s.Fallbacks != 1 || s.Retries != 2 || s.FailOpens != 1 {
		t.Errorf("Fallbacks=%d Retries=%d FailOpens=%d", s.Fallbacks, s.Retries, s.FailOpens)
	}
	if s.MaxDurationMS != 300 {
		t.Errorf("MaxDurationMS = %v, want 300", s.MaxDurationMS)
	}
	if s.AvgDurationMS != 200 {
		t.Errorf("AvgDurationMS = %v, want 200", s.AvgDurationMS)
	}
}

func TestCollectorReset(t *testing.T) {
	t.Parallel()

	c := New()
	c.RecordRequest("vectorstore", "vi", time.Second, 5, false)
	c.Reset()

	s := c.Snapshot()
	if s.TotalRequests != 0 || s.TotalTokens != 0 || len(s.Routes) != 0 {
		t.Errorf("snapshot after reset not empty: %+v", s)
	}
}

func TestCollectorConcurrent(t *testing.T) {
	t.Parallel()

	c := New()
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				c.RecordRequest("vectorstore", "vi", time.Millisecond, 1, false)
				c.RecordRetry()
			}
		}()
	}
	wg.Wait()

	s := c.Snapshot()
	if s.TotalRequests != 1000 {
		t.Errorf("TotalRequests = %d, want 1000", s.TotalRequests)
	}
	if s.Retries != 1000 {
		t.Errorf("Retries = %d, want 1000", s.Retries)
	}
}

func TestPrometheusFormat(t *testing.T) {
	t.Parallel()

	c := New()
	c.RecordRequest("vectorstore", "vi", time.Millisecond, 3, false)

	out := c.Prometheus()
	for _, want := range []string{
		"# TYPE tuvan_requests_total counter",
		"tuvan_requests_total 1",
		"tuvan_tokens_total 3",
		`tuvan_requests_by_route_total{route="vectorstore"} 1`,
		`tuvan_requests_by_language_total{language="vi"} 1`,
		"# TYPE tuvan_uptime_seconds gauge",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("prometheus output missing %q:\n%s", want, out)
		}
	}
}
