// Package app assembles bookrag components from a resolved configuration.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mike-a-ellis/bookrag/internal/agent"
	"github.com/mike-a-ellis/bookrag/internal/answer"
	"github.com/mike-a-ellis/bookrag/internal/config"
	"github.com/mike-a-ellis/bookrag/internal/document"
	"github.com/mike-a-ellis/bookrag/internal/embedding"
	ghclient "github.com/mike-a-ellis/bookrag/internal/github"
	"github.com/mike-a-ellis/bookrag/internal/indexer"
	"github.com/mike-a-ellis/bookrag/internal/retrieval"
	"github.com/mike-a-ellis/bookrag/internal/segment"
	"github.com/mike-a-ellis/bookrag/internal/storage"
)

// nativeDimensions lists output sizes of OpenAI embedding models, needed to
// create Qdrant collections before the first vector is seen.
var nativeDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// App holds the components shared by the CLI and the MCP server.
type App struct {
	Config    *config.Config
	Index     *storage.Index
	Embedder  storage.Embedder
	Retriever *retrieval.Retriever
	// Synthesizer is nil when no generation API key is configured.
	Synthesizer *answer.Synthesizer
	Dispatcher  *agent.Dispatcher

	logger *slog.Logger
}

// New opens the configured index and builds the query side components.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	embedder, err := NewEmbedder(cfg, logger)
	if err != nil {
		return nil, err
	}

	backend, err := OpenBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}

	index := storage.NewIndex(backend, embedder,
		storage.WithBatchSize(cfg.BatchSize),
		storage.WithLogger(logger),
	)

	retriever := retrieval.New(embedder, index,
		retrieval.WithMinRelevance(cfg.MinRelevance),
		retrieval.WithLogger(logger),
	)

	a := &App{
		Config:    cfg,
		Index:     index,
		Embedder:  embedder,
		Retriever: retriever,
		logger:    logger,
	}

	var summarizer agent.Summarizer
	if gen, err := NewGenerator(cfg, logger); err == nil {
		a.Synthesizer = answer.NewSynthesizer(gen, cfg.MaxContextChars, logger)
		summarizer = a.Synthesizer
	} else {
		logger.Debug("Answer generation disabled", "error", err)
	}
	a.Dispatcher = agent.NewDispatcher(retriever, summarizer, cfg.TopK, logger)
	return a, nil
}

// Pipeline builds the ingestion pipeline writing into the app's index.
// cachePath, when set, receives the extracted pages as JSON.
func (a *App) Pipeline(ctx context.Context, cachePath string) (*indexer.Pipeline, error) {
	loader, err := NewLoader(ctx, a.Config, a.logger)
	if err != nil {
		return nil, err
	}

	seg, err := segment.New(a.Config.ChunkSize, a.Config.ChunkOverlap, a.logger)
	if err != nil {
		return nil, err
	}

	var opts []indexer.Option
	if cachePath != "" {
		opts = append(opts, indexer.WithPageCache(cachePath))
	}
	return indexer.NewPipeline(loader, seg, a.Index, a.logger, opts...), nil
}

// Close releases the index backend.
func (a *App) Close() error {
	return a.Index.Close()
}

// NewLoader builds a document loader that also accepts GitHub sources.
func NewLoader(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*document.Loader, error) {
	gh, err := ghclient.NewClient(ctx, cfg.GitHubToken)
	if err != nil {
		return nil, fmt.Errorf("create GitHub client: %w", err)
	}
	return document.NewLoader(cfg.MaxWorkers, logger,
		document.WithGitHub(document.NewGitHubSource(gh, logger)),
	), nil
}

// OpenBackend opens the configured storage backend.
func OpenBackend(ctx context.Context, cfg *config.Config) (storage.Backend, error) {
	metric := cfg.MetricValue()

	switch cfg.Backend {
	case config.BackendQdrant:
		return storage.NewQdrantBackend(ctx, storage.QdrantConfig{
			Host:       cfg.Qdrant.Host,
			Port:       cfg.Qdrant.Port,
			APIKey:     cfg.Qdrant.APIKey,
			UseTLS:     cfg.Qdrant.UseTLS,
			Collection: cfg.CollectionName,
			Dimension:  EmbeddingDimension(cfg),
			Metric:     metric,
		})
	case config.BackendSQLite:
		return storage.OpenSQLite(cfg.PersistDirectory, cfg.CollectionName, metric)
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", config.ErrInvalidConfig, cfg.Backend)
	}
}

// NewEmbedder builds the configured embedding provider.
func NewEmbedder(cfg *config.Config, logger *slog.Logger) (storage.Embedder, error) {
	switch cfg.Embedding.Provider {
	case config.ProviderHashing:
		return embedding.NewHashingEmbedder(EmbeddingDimension(cfg)), nil
	case config.ProviderOpenAI:
		client, err := embedding.NewClient(cfg.Embedding.APIKey, cfg.Embedding.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("embedding client: %w", err)
		}
		return embedding.NewEmbedder(client, embedding.Config{
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
			Retry:      cfg.RetryPolicy(),
		}, logger), nil
	default:
		return nil, fmt.Errorf("%w: unknown embedding provider %q", config.ErrInvalidConfig, cfg.Embedding.Provider)
	}
}

// NewGenerator builds the chat model client. It fails with
// embedding.ErrMissingAPIKey when no generation key is configured.
func NewGenerator(cfg *config.Config, logger *slog.Logger) (answer.Generator, error) {
	client, err := embedding.NewClient(cfg.Generation.APIKey, cfg.Generation.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("generation client: %w", err)
	}
	return answer.NewOpenAIGenerator(client, cfg.Generation.Model, cfg.RetryPolicy(), logger), nil
}

// EmbeddingDimension returns the vector size the configured embedder
// produces, or 0 when it is only known after the first call.
func EmbeddingDimension(cfg *config.Config) int {
	if cfg.Embedding.Dimensions > 0 {
		return cfg.Embedding.Dimensions
	}
	if cfg.Embedding.Provider == config.ProviderHashing {
		return embedding.DefaultHashingDimension
	}
	model := cfg.Embedding.Model
	if model == "" {
		model = embedding.DefaultModel
	}
	return nativeDimensions[model]
}
