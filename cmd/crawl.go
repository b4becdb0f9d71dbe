package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tuvan0/tuvan/internal/app"
	"github.com/tuvan0/tuvan/internal/ingest"
)

var (
	crawlDepth      int
	crawlMaxPages   int
	crawlDelay      time.Duration
	crawlCollection string
)

var crawlCmd = &cobra.Command{
	Use:   "crawl [url]",
	Short: "Crawl a university site into the knowledge base",
	Long: `Crawl walks the site starting at the given URL, staying on its host,
extracts the readable article text from each page and ingests it into the
configured collection.`,
	Args: cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		return runCrawl(args[0])
	},
}

func init() {
	crawlCmd.Flags().IntVar(&crawlDepth, "depth", 2, "maximum link depth from the start page")
	crawlCmd.Flags().IntVar(&crawlMaxPages, "max-pages", 50, "maximum pages to fetch")
	crawlCmd.Flags().DurationVar(&crawlDelay, "delay", 500*time.Millisecond, "delay between requests")
	crawlCmd.Flags().StringVar(&crawlCollection, "collection", "", "target collection (default from config)")
	rootCmd.AddCommand(crawlCmd)
}

func runCrawl(startURL string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := newLogger()
	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	crawler, err := ingest.NewCrawler(a.Ingest, ingest.CrawlConfig{
		MaxDepth: crawlDepth,
		MaxPages: crawlMaxPages,
		Delay:    crawlDelay,
	}, logger)
	if err != nil {
		return fmt.Errorf("creating crawler: %w", err)
	}

	collection := crawlCollection
	if collection == "" {
		collection = cfg.Collection
	}

	res, err := crawler.Crawl(ctx, startURL, collection)
	if err != nil {
		return fmt.Errorf("crawling %s: %w", startURL, err)
	}

	fmt.Printf("%d pages visited, %d ingested, %d chunks stored\n",
		res.PagesVisited, res.PagesIngested, res.Ingest.ChunksCreated)
	return nil
}
