package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"
)

const (
	// DefaultModel is the embedding model used when none is configured.
	DefaultModel = "text-embedding-3-small"

	// DefaultBatchSize keeps a single request well under provider input limits.
	DefaultBatchSize = 100
)

// Config selects the model and request shape of an Embedder.
type Config struct {
	Model      string
	Dimensions int // Optional; 0 keeps the model's native size
	BatchSize  int
	Retry      RetryPolicy
}

// Embedder generates embeddings through an OpenAI-compatible API. Requests
// are batched and transient failures are retried with exponential backoff.
type Embedder struct {
	client *Client
	cfg    Config
	logger *slog.Logger
}

// NewEmbedder creates an Embedder. Zero config fields take package defaults.
func NewEmbedder(client *Client, cfg Config, logger *slog.Logger) *Embedder {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Embedder{client: client, cfg: cfg, logger: logger}
}

// Embed returns one vector per text, in input order.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	all := make([][]float32, 0, len(texts))

	for i := 0; i < len(texts); i += e.cfg.BatchSize {
		end := min(i+e.cfg.BatchSize, len(texts))

		embeddings, err := e.embedBatchWithRetry(ctx, texts[i:end])
		if err != nil {
			return nil, fmt.Errorf("%w: batch %d-%d: %w", ErrEmbedding, i, end, err)
		}
		all = append(all, embeddings...)
	}
	return all, nil
}

func (e *Embedder) embedBatchWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
		Model: openai.EmbeddingModel(e.cfg.Model),
	}
	if e.cfg.Dimensions > 0 {
		params.Dimensions = openai.Int(int64(e.cfg.Dimensions))
	}

	var embeddings [][]float32
	attempt := 0

	operation := func() error {
		attempt++
		resp, err := e.client.client.Embeddings.New(ctx, params)
		if err != nil {
			if IsTransient(err) {
				e.logger.Warn("Embedding request failed, retrying",
					"attempt", attempt,
					"texts", len(texts),
					"error", err,
				)
				return err
			}
			return backoff.Permanent(err)
		}

		if len(resp.Data) != len(texts) {
			return backoff.Permanent(fmt.Errorf("got %d embeddings for %d texts", len(resp.Data), len(texts)))
		}

		data := resp.Data
		sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })

		embeddings = make([][]float32, len(data))
		for i, d := range data {
			embeddings[i] = toFloat32(d.Embedding)
		}
		return nil
	}

	if err := backoff.Retry(operation, e.cfg.Retry.BackOff(ctx)); err != nil {
		return nil, err
	}
	return embeddings, nil
}

// toFloat32 converts []float64 to []float32.
// The API returns float64, but the index stores float32.
func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}
