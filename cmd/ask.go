package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tuvan0/tuvan/internal/app"
	"github.com/tuvan0/tuvan/internal/rag"
)

var (
	askAdaptive   bool
	askCollection string
	askSources    bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer one question and exit",
	Long: `Ask streams the answer to stdout as it is generated.

With --adaptive the pipeline uses model-assisted routing, per-document
relevance grading and groundedness-checked retries instead of the cheaper
keyword and word-overlap heuristics.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		return runAsk(strings.Join(args, " "))
	},
}

func init() {
	askCmd.Flags().BoolVar(&askAdaptive, "adaptive", false, "model-assisted routing and grading")
	askCmd.Flags().StringVar(&askCollection, "collection", "", "knowledge collection (default from config)")
	askCmd.Flags().BoolVar(&askSources, "sources", false, "print evidence sources after the answer")
	rootCmd.AddCommand(askCmd)
}

func runAsk(question string) error {
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

	res, err := a.Controller.Answer(ctx, rag.Request{
		Question:   question,
		UserID:     "cli",
		Collection: askCollection,
		Adaptive:   askAdaptive,
	}, func(token string) error {
		_, err := fmt.Print(token)
		return err
	})
	if err != nil {
		return fmt.Errorf("answering: %w", err)
	}
	fmt.Println()

	if askSources && len(res.Sources) > 0 {
		fmt.Fprintln(os.Stderr)
		fmt.Fprintf(os.Stderr, "Sources (%s):\n", res.Route)
		for i, doc := range res.Sources {
			label := doc.Title
			if label == "" {
				label = doc.Source
			}
			fmt.Fprintf(os.Stderr, "  %d. %s\n", i+1, label)
		}
	}
	return nil
}
