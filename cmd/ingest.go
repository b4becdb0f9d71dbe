package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tuvan0/tuvan/internal/app"
)

var (
	ingestFileType   string
	ingestCollection string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file...]",
	Short: "Load admissions documents into the knowledge base",
	Long: `Ingest splits each file into overlapping chunks, embeds them and
upserts them into the configured collection. Supported types: json (an
array of {title, content, source, metadata} records), pdf, txt, md. The
type is detected from the extension unless --type is given.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		return runIngest(args)
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestFileType, "type", "", "file type override (json, pdf, txt, md)")
	ingestCmd.Flags().StringVar(&ingestCollection, "collection", "", "target collection (default from config)")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(paths []string) error {
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

	collection := ingestCollection
	if collection == "" {
		collection = cfg.Collection
	}

	for _, path := range paths {
		res, err := a.Ingest.Ingest(ctx, path, ingestFileType, collection)
		if err != nil {
			return fmt.Errorf("ingesting %s: %w", path, err)
		}
		fmt.Printf("%s: %d documents, %d chunks", path, res.DocumentsProcessed, res.ChunksCreated)
		if res.FailedBatches > 0 {
			fmt.Printf(" (%d batches failed)", res.FailedBatches)
		}
		fmt.Println()
	}
	return nil
}
