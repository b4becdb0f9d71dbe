package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tuvan0/tuvan/internal/ingest"
	"github.com/tuvan0/tuvan/internal/knowledge"
	"github.com/tuvan0/tuvan/internal/log"
	"github.com/tuvan0/tuvan/internal/metrics"
	"github.com/tuvan0/tuvan/internal/rag"
)

type stubIngestor struct {
	result   *ingest.Result
	err      error
	lastPath string
	lastDocs []knowledge.Document
}

func (s *stubIngestor) Ingest(_ context.Context, path, _, _ string) (*ingest.Result, error) {
	s.lastPath = path
	return s.result, s.err
}

func (s *stubIngestor) IngestDocuments(_ context.Context, docs []knowledge.Document, _ string) (*ingest.Result, error) {
	s.lastDocs = docs
	return s.result, s.err
}

type stubCounter struct {
	count int64
	err   error
}

func (s *stubCounter) Count(context.Context, string) (int64, error) {
	return s.count, s.err
}

func newAdminServer(t *testing.T, ingestor Ingestor, counter DocumentCounter) (*Server, *metrics.Collector) {
	t.Helper()

	cfg := testConfig()
	cfg.TavilyAPIKey = "tvly-super-secret-key"

	collector := metrics.New()
	srv, err := NewServer(ServerConfig{
		Logger:    log.NewNop(),
		Answerer:  &stubAnswerer{result: &rag.Result{}},
		Metrics:   collector,
		Config:    cfg,
		Ingestor:  ingestor,
		Counter:   counter,
		AdminKey:  "test-admin-key",
		RateBurst: 1000,
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return srv, collector
}

func adminRequest(method, path, body, key string) *http.Request {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	if key != "" {
		r.Header.Set("Authorization", "Bearer "+key)
	}
	return r
}

func TestAdminAuth(t *testing.T) {
	t.Parallel()

	srv, _ := newAdminServer(t, nil, nil)

	tests := []struct {
		name string
		key  string
		want int
	}{
		{"missing key", "", http.StatusUnauthorized},
		{"wrong key", "wrong", http.StatusUnauthorized},
		{"valid key", "test-admin-key", http.StatusOK},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, adminRequest(http.MethodGet, "/admin/metrics", "", tt.key))
		if rec.Code != tt.want {
			t.Errorf("%s: status = %d, want %d", tt.name, rec.Code, tt.want)
		}
	}
}

func TestAdminConfigMasksSecrets(t *testing.T) {
	t.Parallel()

	srv, _ := newAdminServer(t, nil, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, adminRequest(http.MethodGet, "/admin/config", "", "test-admin-key"))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if strings.Contains(body, "tvly-super-secret-key") {
		t.Error("Tavily key leaked in /admin/config response")
	}
	if !strings.Contains(body, `"model_name":"gemini-2.5-flash"`) {
		t.Errorf("config missing model name: %s", body)
	}
}

func TestAdminMetricsLifecycle(t *testing.T) {
	t.Parallel()

	srv, collector := newAdminServer(t, nil, nil)
	collector.RecordRequest("vectorstore", "vi", 100*time.Millisecond, 42, false)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, adminRequest(http.MethodGet, "/admin/metrics", "", "test-admin-key"))
	var stats metrics.Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decoding stats: %v", err)
	}
	if stats.TotalRequests != 1 || stats.Routes["vectorstore"] != 1 {
		t.Errorf("stats = %+v", stats)
	}

	// Prometheus export.
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, adminRequest(http.MethodGet, "/admin/metrics/export?format=prometheus", "", "test-admin-key"))
	if !strings.Contains(rec.Body.String(), "tuvan_requests_total 1") {
		t.Errorf("prometheus export missing counter:\n%s", rec.Body.String())
	}

	// Unknown format.
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, adminRequest(http.MethodGet, "/admin/metrics/export?format=xml", "", "test-admin-key"))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown format status = %d, want 400", rec.Code)
	}

	// Reset.
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, adminRequest(http.MethodDelete, "/admin/metrics", "", "test-admin-key"))
	if rec.Code != http.StatusOK {
		t.Fatalf("reset status = %d", rec.Code)
	}
	if got := collector.Snapshot().TotalRequests; got != 0 {
		t.Errorf("TotalRequests after reset = %d, want 0", got)
	}
}

func TestAdminIngestPath(t *testing.T) {
	t.Parallel()

	stub := &stubIngestor{result: &ingest.Result{Success: true, DocumentsProcessed: 3, ChunksCreated: 7}}
	srv, _ := newAdminServer(t, stub, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, adminRequest(http.MethodPost, "/admin/ingest",
		`{"path": "/data/admissions.json"}`, "test-admin-key"))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if stub.lastPath != "/data/admissions.json" {
		t.Errorf("path = %q", stub.lastPath)
	}
	var res ingest.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if !res.Success || res.ChunksCreated != 7 {
		t.Errorf("result = %+v", res)
	}
}

func TestAdminIngestInlineDocuments(t *testing.T) {
	t.Parallel()

	stub := &stubIngestor{result: &ingest.Result{Success: true, DocumentsProcessed: 1, ChunksCreated: 1}}
	srv, _ := newAdminServer(t, stub, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, adminRequest(http.MethodPost, "/admin/ingest",
		`{"documents": [{"title": "Đề án", "content": "Chỉ tiêu 5000."}]}`, "test-admin-key"))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if len(stub.lastDocs) != 1 || stub.lastDocs[0].Title != "Đề án" {
		t.Errorf("docs = %+v", stub.lastDocs)
	}
}

func TestAdminIngestErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		stub *stubIngestor
		body string
		want int
	}{
		{"neither path nor documents", &stubIngestor{}, `{}`, http.StatusBadRequest},
		{"in progress", &stubIngestor{err: ingest.ErrIngestInProgress}, `{"path": "/x.json"}`, http.StatusConflict},
		{"unsupported type", &stubIngestor{err: ingest.ErrUnsupportedType}, `{"path": "/x.zip"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv, _ := newAdminServer(t, tt.stub, nil)
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, adminRequest(http.MethodPost, "/admin/ingest", tt.body, "test-admin-key"))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestAdminStatus(t *testing.T) {
	t.Parallel()

	srv, _ := newAdminServer(t, nil, &stubCounter{count: 1234})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, adminRequest(http.MethodGet, "/admin/status", "", "test-admin-key"))

	var resp statusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding status: %v", err)
	}
	if resp.Status != "ok" || resp.Documents != 1234 || resp.Collection != "academy" {
		t.Errorf("status = %+v", resp)
	}
	if !resp.WebSearchEnabled {
		t.Error("web_search_enabled = false, want true")
	}
}
