package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mike-a-ellis/bookrag/internal/agent"
	"github.com/mike-a-ellis/bookrag/internal/app"
	"github.com/mike-a-ellis/bookrag/internal/document"
	"github.com/mike-a-ellis/bookrag/internal/storage"
)

var (
	outPath   string
	cachePath string
	topK      int
)

var extractCmd = &cobra.Command{
	Use:   "extract <source>",
	Short: "Extract page text into a JSON page cache",
	Args:  cobra.ExactArgs(1),
	RunE:  runExtract,
}

var indexCmd = &cobra.Command{
	Use:   "index <source>",
	Short: "Segment, embed and store a book",
	Long: `Extracts pages from source, splits them into overlapping chunks and adds
every chunk that is not yet indexed. Re-running on the same book inserts nothing.

Sources: *.pdf, *.md, *.markdown, *.txt (form feeds separate pages), a JSON page
cache written by "extract", or github:owner/repo/path.`,
	Args: cobra.ExactArgs(1),
	RunE: runIndex,
}

var queryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "Print the passages most relevant to text",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runQuery,
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a question from the indexed book",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

var summarizeCmd = &cobra.Command{
	Use:   "summarize <topic>",
	Short: "Summarize what the book says about a topic",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSummarize,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the number of indexed chunks",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the resolved configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfig,
}

func init() {
	extractCmd.Flags().StringVarP(&outPath, "out", "o", "pages.json", "page cache to write")
	indexCmd.Flags().StringVar(&cachePath, "cache", "", "also save extracted pages to this JSON file")
	for _, c := range []*cobra.Command{queryCmd, askCmd, summarizeCmd} {
		c.Flags().IntVarP(&topK, "k", "k", 0, "number of passages to retrieve (default from config)")
	}
}

func runExtract(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	loader, err := app.NewLoader(ctx, cfg, slog.Default())
	if err != nil {
		return err
	}

	fmt.Printf("Extracting %s...\n", args[0])
	pages, err := loader.Load(ctx, args[0])
	if err != nil {
		return fmt.Errorf("extraction failed: %w", err)
	}
	if err := document.SaveJSON(outPath, pages); err != nil {
		return err
	}

	stats := pages.Stats()
	fmt.Println()
	fmt.Println("Extraction complete!")
	fmt.Printf("  Pages: %d (%d with text, %d empty, %d failed)\n",
		stats.Total, stats.Success, stats.Empty, stats.Failed)
	fmt.Printf("  Saved: %s\n", outPath)
	return nil
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	start := time.Now()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	fmt.Printf("Opening %s index %q...\n", cfg.Backend, cfg.CollectionName)
	a, err := app.New(ctx, cfg, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to open index: %w", err)
	}
	defer a.Close()

	pipeline, err := a.Pipeline(ctx, cachePath)
	if err != nil {
		return err
	}

	fmt.Printf("Indexing %s...\n", args[0])
	result, err := pipeline.Run(ctx, args[0])
	if result != nil {
		printIndexResult(result.Pages, result.Segments.PagesProcessed, result.Segments.ChunkCount, result.Upsert)
	}
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	count, err := a.Index.Count(ctx)
	if err != nil {
		return err
	}
	fmt.Println()
	fmt.Printf("Index now holds %d chunks\n", count)
	fmt.Printf("Total time: %s\n", time.Since(start).Round(time.Millisecond))
	return nil
}

func printIndexResult(pages document.ExtractStats, processed, chunks int, upsert storage.UpsertResult) {
	fmt.Println()
	fmt.Println("Indexing complete!")
	fmt.Printf("  Pages: %d/%d segmented (%d empty, %d failed extraction)\n",
		processed, pages.Total, pages.Empty, pages.Failed)
	fmt.Printf("  Chunks: %d\n", chunks)
	fmt.Printf("  Inserted: %d\n", upsert.Inserted)
	fmt.Printf("  Already indexed: %d\n", upsert.SkippedExisting)

	if len(upsert.Failed) > 0 {
		fmt.Println()
		fmt.Println("Failed chunks:")
		for _, f := range upsert.Failed {
			fmt.Printf("  - %s: %s\n", f.ID, f.Reason)
		}
	}
}

func runQuery(cmd *cobra.Command, args []string) error {
	return dispatch(cmd, agent.CapabilitySearch, strings.Join(args, " "))
}

func runSummarize(cmd *cobra.Command, args []string) error {
	return dispatch(cmd, agent.CapabilitySummarize, strings.Join(args, " "))
}

func dispatch(cmd *cobra.Command, capability agent.Capability, query string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	a, err := app.New(ctx, cfg, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to open index: %w", err)
	}
	defer a.Close()

	out, err := a.Dispatcher.Dispatch(ctx, agent.Call{Capability: capability, Query: query, K: topK})
	if errors.Is(err, agent.ErrCapabilityUnavailable) {
		return fmt.Errorf("%w: set OPENAI_API_KEY or OPENROUTER_API_KEY", err)
	}
	if err != nil {
		return err
	}
	fmt.Println(out)
	return nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	question := strings.Join(args, " ")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	a, err := app.New(ctx, cfg, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to open index: %w", err)
	}
	defer a.Close()

	if a.Synthesizer == nil {
		return fmt.Errorf("%w: set OPENAI_API_KEY or OPENROUTER_API_KEY", agent.ErrCapabilityUnavailable)
	}

	k := topK
	if k <= 0 {
		k = cfg.TopK
	}
	hits, err := a.Retriever.Retrieve(ctx, question, k)
	if err != nil {
		return err
	}
	if len(hits) == 0 {
		fmt.Println(agent.NoResults)
		return nil
	}

	text, err := a.Synthesizer.Answer(ctx, question, hits)
	if err != nil {
		return err
	}

	fmt.Println(text)
	fmt.Println()
	fmt.Println("Sources:")
	for _, h := range hits {
		fmt.Printf("  - page %d (relevance %s)\n", h.Chunk.PageID, h.Relevance)
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	backend, err := app.OpenBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	fmt.Printf("Collection: %s (%s, %s)\n", cfg.CollectionName, cfg.Backend, cfg.Metric)
	if err := backend.Health(ctx); err != nil {
		return fmt.Errorf("index unreachable: %w", err)
	}

	count, err := backend.Count(ctx)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		fmt.Println("Not indexed yet")
		return nil
	case err != nil:
		return err
	}
	dim, err := backend.Dimension(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Chunks: %d\n", count)
	fmt.Printf("Dimension: %d\n", dim)
	return nil
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	out, err := cfg.YAML()
	if err != nil {
		return err
	}
	_, err = os.Stdout.WriteString(out)
	return err
}
