package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tuvan0/tuvan/internal/log"
)

func newTestCrawler(t *testing.T, store DocumentStore) *Crawler {
	t.Helper()
	s := newTestService(t, store, Config{ChunkSize: 1000, ChunkOverlap: 100})
	c, err := NewCrawler(s, CrawlConfig{MaxDepth: 2, MaxPages: 10, Delay: time.Millisecond}, log.NewNop())
	if err != nil {
		t.Fatalf("NewCrawler: %v", err)
	}
	return c
}

func articleHTML(title, paragraph string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html><head><title>%s</title><meta name="description" content="Thông tin tuyển sinh"></head>
<body><main><article><h1>%s</h1><p>%s</p></article></main></body></html>`,
		title, title, paragraph)
}

func TestCrawl(t *testing.T) {
	t.Parallel()

	paragraph := strings.Repeat("Điểm chuẩn ngành Kinh tế năm nay là 26.5, chỉ tiêu 500 sinh viên. ", 10)

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		page := articleHTML("Tuyển sinh 2026", paragraph)
		page = strings.Replace(page, "</article>", `<a href="/diem-chuan">điểm chuẩn</a></article>`, 1)
		_, _ = w.Write([]byte(page))
	})
	mux.HandleFunc("/diem-chuan", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(articleHTML("Điểm chuẩn", paragraph)))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := &fakeStore{}
	c := newTestCrawler(t, store)

	res, err := c.Crawl(context.Background(), srv.URL, "academy")
	if err != nil {
		t.Fatalf("Crawl: %v", err)
	}
	if res.PagesIngested != 2 {
		t.Fatalf("PagesIngested = %d, want 2", res.PagesIngested)
	}
	if res.Ingest == nil || !res.Ingest.Success || res.Ingest.ChunksCreated == 0 {
		t.Fatalf("ingest result = %+v, want stored chunks", res.Ingest)
	}

	docs := store.stored()
	var sawLinked bool
	for _, doc := range docs {
		if !strings.HasPrefix(doc.Source, srv.URL) {
			t.Errorf("Source = %q, want page URL under %s", doc.Source, srv.URL)
		}
		if doc.Metadata["file_type"] != "web" {
			t.Errorf("file_type = %q, want web", doc.Metadata["file_type"])
		}
		if doc.Metadata["description"] != "Thông tin tuyển sinh" {
			t.Errorf("description = %q", doc.Metadata["description"])
		}
		if strings.HasSuffix(doc.Source, "/diem-chuan") {
			sawLinked = true
		}
	}
	if !sawLinked {
		t.Error("linked page was not crawled")
	}
}

func TestCrawlSkipsThinPages(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(articleHTML("Trang chủ", "quá ngắn")))
	}))
	defer srv.Close()

	c := newTestCrawler(t, &fakeStore{})
	if _, err := c.Crawl(context.Background(), srv.URL, "academy"); !errors.Is(err, ErrNoContent) {
		t.Fatalf("err = %v, want ErrNoContent when every page is too thin", err)
	}
}

func TestCrawlInvalidURL(t *testing.T) {
	t.Parallel()

	c := newTestCrawler(t, &fakeStore{})
	if _, err := c.Crawl(context.Background(), "not a url", "academy"); !errors.Is(err, ErrInvalidStartURL) {
		t.Fatalf("err = %v, want ErrInvalidStartURL", err)
	}
}
