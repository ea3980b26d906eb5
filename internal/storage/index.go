package storage

import (
	"context"
	"fmt"
	"log/slog"
)

// DefaultBatchSize is the number of chunks embedded and written per batch.
const DefaultBatchSize = 32

// Index embeds chunks and keeps them in a Backend. Upserts are idempotent:
// chunks whose id is already stored are never embedded again.
type Index struct {
	backend   Backend
	embedder  Embedder
	batchSize int
	logger    *slog.Logger
}

// IndexOption configures an Index.
type IndexOption func(*Index)

// WithBatchSize sets the upsert batch size. Values below 1 are ignored.
func WithBatchSize(n int) IndexOption {
	return func(idx *Index) {
		if n > 0 {
			idx.batchSize = n
		}
	}
}

// WithLogger sets the logger used for batch progress and embedding failures.
func WithLogger(logger *slog.Logger) IndexOption {
	return func(idx *Index) {
		if logger != nil {
			idx.logger = logger
		}
	}
}

// NewIndex creates an Index over backend.
func NewIndex(backend Backend, embedder Embedder, opts ...IndexOption) *Index {
	idx := &Index{
		backend:   backend,
		embedder:  embedder,
		batchSize: DefaultBatchSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// Upsert embeds and stores chunks that are not yet in the index.
//
// Batches are written one at a time, so a backend error leaves every earlier
// batch persisted; rerunning the upsert picks up where it stopped. A chunk
// that cannot be embedded is reported in Failed and does not stop its batch.
func (idx *Index) Upsert(ctx context.Context, chunks []*Chunk) (*UpsertResult, error) {
	result := &UpsertResult{}

	if err := idx.backend.EnsureCollection(ctx); err != nil {
		return result, fmt.Errorf("upsert: %w", err)
	}
	dim, err := idx.backend.Dimension(ctx)
	if err != nil {
		return result, fmt.Errorf("upsert: %w", err)
	}

	seen := make(map[string]struct{}, len(chunks))
	unique := make([]*Chunk, 0, len(chunks))
	for _, c := range chunks {
		if _, ok := seen[c.ID]; ok {
			result.SkippedExisting++
			continue
		}
		seen[c.ID] = struct{}{}
		unique = append(unique, c)
	}

	for start := 0; start < len(unique); start += idx.batchSize {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("upsert: %w", err)
		}

		end := min(start+idx.batchSize, len(unique))
		batch := unique[start:end]

		ids := make([]string, len(batch))
		for i, c := range batch {
			ids[i] = c.ID
		}
		existing, err := idx.backend.Exists(ctx, ids)
		if err != nil {
			return result, fmt.Errorf("upsert batch %d-%d: %w", start, end, err)
		}

		missing := make([]*Chunk, 0, len(batch))
		for _, c := range batch {
			if _, ok := existing[c.ID]; ok {
				result.SkippedExisting++
				continue
			}
			missing = append(missing, c)
		}
		if len(missing) == 0 {
			continue
		}

		embedded, failed, err := idx.embed(ctx, missing)
		if err != nil {
			return result, fmt.Errorf("upsert batch %d-%d: %w", start, end, err)
		}

		ready := make([]*Chunk, 0, len(embedded))
		for _, c := range embedded {
			if dim == 0 {
				dim = len(c.Embedding)
			}
			if len(c.Embedding) != dim {
				failed = append(failed, FailedChunk{
					ID:     c.ID,
					Reason: fmt.Sprintf("%v: got %d, expected %d", ErrDimensionMismatch, len(c.Embedding), dim),
				})
				continue
			}
			ready = append(ready, c)
		}
		result.Failed = append(result.Failed, failed...)

		if len(ready) > 0 {
			if err := idx.backend.Insert(ctx, ready); err != nil {
				return result, fmt.Errorf("upsert batch %d-%d: %w", start, end, err)
			}
			result.Inserted += len(ready)
		}

		idx.logger.Debug("Upserted batch",
			"range", fmt.Sprintf("%d-%d", start, end),
			"inserted", len(ready),
			"failed", len(failed),
		)
	}

	return result, nil
}

// embed computes vectors for chunks with one embedder call. If that call
// fails, every chunk is retried on its own so a single bad input only costs
// itself. Returned chunks are copies; the inputs are not modified.
func (idx *Index) embed(ctx context.Context, chunks []*Chunk) ([]*Chunk, []FailedChunk, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := idx.embedder.Embed(ctx, texts)
	if err == nil && len(vectors) == len(chunks) {
		out := make([]*Chunk, 0, len(chunks))
		var failed []FailedChunk
		for i, c := range chunks {
			if len(vectors[i]) == 0 {
				failed = append(failed, FailedChunk{ID: c.ID, Reason: "empty embedding"})
				continue
			}
			out = append(out, withEmbedding(c, vectors[i]))
		}
		return out, failed, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, nil, ctxErr
	}
	if err == nil {
		err = fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(chunks))
	}
	idx.logger.Warn("Batch embedding failed, retrying chunks individually",
		"chunks", len(chunks),
		"error", err,
	)

	var (
		out    []*Chunk
		failed []FailedChunk
	)
	for _, c := range chunks {
		vectors, err := idx.embedder.Embed(ctx, []string{c.Text})
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, nil, ctxErr
		}
		switch {
		case err != nil:
			failed = append(failed, FailedChunk{ID: c.ID, Reason: err.Error()})
		case len(vectors) != 1 || len(vectors[0]) == 0:
			failed = append(failed, FailedChunk{ID: c.ID, Reason: "empty embedding"})
		default:
			out = append(out, withEmbedding(c, vectors[0]))
		}
		if err != nil {
			idx.logger.Warn("Failed to embed chunk", "chunk_id", c.ID, "error", err)
		}
	}
	return out, failed, nil
}

func withEmbedding(c *Chunk, vector []float32) *Chunk {
	cp := *c
	cp.Embedding = vector
	return &cp
}

// Get returns the subset of ids present in the index.
func (idx *Index) Get(ctx context.Context, ids []string) (map[string]struct{}, error) {
	present, err := idx.backend.Exists(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("get chunks: %w", err)
	}
	return present, nil
}

// Chunks returns the stored records for ids in insertion order. Unknown ids
// are omitted.
func (idx *Index) Chunks(ctx context.Context, ids []string) ([]*Chunk, error) {
	chunks, err := idx.backend.Fetch(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("fetch chunks: %w", err)
	}
	return chunks, nil
}

// SimilaritySearch returns up to k chunks closest to query, most relevant
// first. Equal distances keep insertion order.
func (idx *Index) SimilaritySearch(ctx context.Context, query []float32, k int) ([]ScoredChunk, error) {
	if k <= 0 {
		return nil, nil
	}
	hits, err := idx.backend.Search(ctx, query, k)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	return hits, nil
}

// Count returns the number of stored chunks.
func (idx *Index) Count(ctx context.Context) (int, error) {
	n, err := idx.backend.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return n, nil
}

// Health checks that the backend is reachable and readable.
func (idx *Index) Health(ctx context.Context) error {
	return idx.backend.Health(ctx)
}

// Close releases the backend.
func (idx *Index) Close() error {
	return idx.backend.Close()
}
