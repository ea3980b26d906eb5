// Package main provides the bookrag CLI for indexing and querying books.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mike-a-ellis/bookrag/internal/config"
)

var (
	configPath string
	verbose    bool

	chunkSize    int
	chunkOverlap int
	persistDir   string
	collection   string
	backend      string
)

var rootCmd = &cobra.Command{
	Use:   "bookrag",
	Short: "Question answering over a single book",
	Long: `Index a book (PDF, Markdown, plain text, a JSON page cache or a GitHub
repository of Markdown files) and query it with semantic search.

Settings come from defaults, then --config, then the environment, then flags.

Environment variables:
  OPENAI_API_KEY      API key for embeddings and answers
  OPENROUTER_API_KEY  Use OpenRouter for answers instead
  QDRANT_HOST         Qdrant hostname when --backend=qdrant (default: localhost)
  QDRANT_PORT         Qdrant gRPC port (default: 6334)
  GITHUB_TOKEN        GitHub token for github: sources (optional)
  BOOKRAG_*           Any setting, e.g. BOOKRAG_CHUNK_SIZE`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
		}
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "", "YAML config file")
	flags.BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	flags.IntVar(&chunkSize, "chunk-size", 0, "maximum chunk length in characters")
	flags.IntVar(&chunkOverlap, "chunk-overlap", 0, "characters shared by consecutive chunks")
	flags.StringVar(&persistDir, "persist-directory", "", "directory of the sqlite index")
	flags.StringVar(&collection, "collection", "", "collection name")
	flags.StringVar(&backend, "backend", "", "index backend: sqlite or qdrant")

	rootCmd.AddCommand(extractCmd, indexCmd, queryCmd, askCmd, summarizeCmd, statusCmd, collectionsCmd, resetCmd, configCmd)
}

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		cancel()
		os.Exit(1)
	}
}

// loadConfig resolves settings and applies explicitly set flags on top.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("chunk-size") {
		cfg.ChunkSize = chunkSize
	}
	if flags.Changed("chunk-overlap") {
		cfg.ChunkOverlap = chunkOverlap
	}
	if flags.Changed("persist-directory") {
		cfg.PersistDirectory = persistDir
	}
	if flags.Changed("collection") {
		cfg.CollectionName = collection
	}
	if flags.Changed("backend") {
		cfg.Backend = backend
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration: %w", err)
	}
	return cfg, nil
}
