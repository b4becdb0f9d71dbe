package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/gocolly/colly/v2"

	"github.com/tuvan0/tuvan/internal/log"
)

// ErrInvalidStartURL indicates the crawl start URL could not be parsed.
var ErrInvalidStartURL = errors.New("invalid start URL")

// minPageRunes filters out navigation shells and error pages.
const minPageRunes = 200

// CrawlConfig bounds a crawl. The crawler never leaves the start URL's host.
type CrawlConfig struct {
	// MaxDepth limits link-following depth from the start page. Default 2.
	MaxDepth int
	// MaxPages caps the number of pages fetched. Default 50.
	MaxPages int
	// Delay between requests to the same host. Default 500ms.
	Delay     time.Duration
	UserAgent string
}

// CrawlResult reports one crawl run.
type CrawlResult struct {
	PagesVisited  int     `json:"pages_visited"`
	PagesIngested int     `json:"pages_ingested"`
	Ingest        *Result `json:"ingest"`
}

// Crawler fetches admissions pages from a university site and feeds the
// readable content through the ingestion pipeline.
type Crawler struct {
	service   *Service
	maxDepth  int
	maxPages  int
	delay     time.Duration
	userAgent string
	logger    log.Logger
}

// NewCrawler creates a crawler writing through the given ingestion service.
func NewCrawler(service *Service, cfg CrawlConfig, logger log.Logger) (*Crawler, error) {
	if service == nil {
		return nil, errors.New("nil ingest service")
	}
	if logger == nil {
		logger = log.NewNop()
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = 2
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 50
	}
	if cfg.Delay <= 0 {
		cfg.Delay = 500 * time.Millisecond
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "tuvan-crawler/1.0"
	}

	return &Crawler{
		service:   service,
		maxDepth:  cfg.MaxDepth,
		maxPages:  cfg.MaxPages,
		delay:     cfg.Delay,
		userAgent: cfg.UserAgent,
		logger:    logger,
	}, nil
}

// Crawl walks the site starting at startURL, staying on its host, and
// ingests every page with enough readable text into the collection.
func (c *Crawler) Crawl(ctx context.Context, startURL, collection string) (*CrawlResult, error) {
	start, err := url.Parse(startURL)
	if err != nil || start.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStartURL, startURL)
	}

	unlock, err := c.service.lockCollection(collection)
	if err != nil {
		return nil, err
	}
	defer unlock()

	collector := colly.NewCollector(
		colly.AllowedDomains(start.Hostname()),
		colly.MaxDepth(c.maxDepth),
		colly.UserAgent(c.userAgent),
	)
	if err := collector.Limit(&colly.LimitRule{DomainGlob: "*", Delay: c.delay}); err != nil {
		return nil, fmt.Errorf("configuring crawl rate: %w", err)
	}

	res := &CrawlResult{}
	var docs []sourceDoc

	collector.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil || res.PagesVisited >= c.maxPages {
			r.Abort()
			return
		}
		res.PagesVisited++
	})

	collector.OnHTML("a[href]", func(e *colly.HTMLElement) {
		link := e.Request.AbsoluteURL(e.Attr("href"))
		if link != "" {
			_ = e.Request.Visit(link)
		}
	})

	collector.OnResponse(func(r *colly.Response) {
		if !strings.Contains(r.Headers.Get("Content-Type"), "text/html") {
			return
		}
		doc, ok := c.extractPage(r.Body, r.Request.URL)
		if !ok {
			return
		}
		docs = append(docs, doc)
		res.PagesIngested++
	})

	collector.OnError(func(r *colly.Response, err error) {
		c.logger.Warn("page fetch failed", "url", r.Request.URL.String(), "error", err)
	})

	if err := collector.Visit(start.String()); err != nil {
		return nil, fmt.Errorf("starting crawl at %s: %w", startURL, err)
	}
	collector.Wait()

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: no readable pages under %s", ErrNoContent, start.Host)
	}

	ingestRes, err := c.service.storeDocs(ctx, docs, collection, "web")
	if err != nil {
		return nil, err
	}
	res.Ingest = ingestRes
	return res, nil
}

// extractPage pulls the readable article text out of an HTML page. Pages
// without enough text, typically navigation hubs, are skipped.
func (c *Crawler) extractPage(body []byte, pageURL *url.URL) (sourceDoc, bool) {
	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err != nil {
		c.logger.Warn("readability extraction failed", "url", pageURL.String(), "error", err)
		return sourceDoc{}, false
	}

	content := strings.TrimSpace(article.TextContent)
	if len([]rune(content)) < minPageRunes {
		return sourceDoc{}, false
	}

	title := strings.TrimSpace(article.Title)
	description := ""
	if doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body)); err == nil {
		if title == "" {
			title = strings.TrimSpace(doc.Find("title").First().Text())
		}
		description, _ = doc.Find(`meta[name="description"]`).First().Attr("content")
	}

	metadata := map[string]string{"crawled_at": time.Now().UTC().Format(time.RFC3339)}
	if description = strings.TrimSpace(description); description != "" {
		metadata["description"] = description
	}
	if site := strings.TrimSpace(article.SiteName); site != "" {
		metadata["site"] = site
	}

	return sourceDoc{
		Title:    title,
		Content:  content,
		Source:   pageURL.String(),
		Metadata: metadata,
	}, true
}
