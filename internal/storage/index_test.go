package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestIndex(t *testing.T, embedder Embedder, opts ...IndexOption) (*Index, *SQLiteBackend) {
	t.Helper()
	backend, _ := setupTestBackend(t, MetricCosine)
	return NewIndex(backend, embedder, opts...), backend
}

func sampleChunks() []*Chunk {
	return []*Chunk{
		withSpan(newChunk(1, 0, "The quick brown fox"), 0),
		withSpan(newChunk(1, 1, "fox jumps over the"), 16),
		withSpan(newChunk(1, 2, "the lazy dog."), 31),
		withSpan(newChunk(2, 0, "Call me Ishmael."), 0),
		withSpan(newChunk(3, 0, "It was a bright cold day in April"), 4),
	}
}

func TestIndex_UpsertIdempotent(t *testing.T) {
	embedder := &letterEmbedder{}
	idx, _ := setupTestIndex(t, embedder, WithBatchSize(2))
	ctx := context.Background()
	chunks := sampleChunks()

	first, err := idx.Upsert(ctx, chunks)
	require.NoError(t, err)
	assert.Equal(t, &UpsertResult{Inserted: 5, SkippedExisting: 0}, first)
	embedded := embedder.texts

	second, err := idx.Upsert(ctx, chunks)
	require.NoError(t, err)
	assert.Equal(t, &UpsertResult{Inserted: 0, SkippedExisting: 5}, second)
	assert.Equal(t, embedded, embedder.texts, "existing chunks must not be embedded again")

	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	stored, err := idx.Chunks(ctx, []string{"1_0", "1_1", "1_2", "2_0", "3_0"})
	require.NoError(t, err)
	require.Len(t, stored, 5)
	for i, c := range stored {
		assert.Equal(t, chunks[i].ID, c.ID)
		assert.Equal(t, chunks[i].Text, c.Text)
		assert.Equal(t, chunks[i].PageID, c.PageID)
		assert.Equal(t, chunks[i].Start, c.Start, "chunk %s start", c.ID)
		assert.Equal(t, chunks[i].End, c.End, "chunk %s end", c.ID)
	}
	assert.Nil(t, chunks[0].Embedding, "input chunks are not modified")
}

func TestIndex_UpsertPartialOverlap(t *testing.T) {
	idx, _ := setupTestIndex(t, &letterEmbedder{})
	ctx := context.Background()
	chunks := sampleChunks()

	_, err := idx.Upsert(ctx, chunks[:3])
	require.NoError(t, err)

	result, err := idx.Upsert(ctx, append(chunks, chunks[4]))
	require.NoError(t, err)
	assert.Equal(t, 2, result.Inserted)
	assert.Equal(t, 4, result.SkippedExisting, "three stored plus one duplicate in the input")

	present, err := idx.Get(ctx, []string{"1_0", "3_0", "4_0"})
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"1_0": {}, "3_0": {}}, present)
}

func TestIndex_EmbeddingFailureIsolated(t *testing.T) {
	embedder := &letterEmbedder{poison: "Ishmael"}
	idx, _ := setupTestIndex(t, embedder, WithBatchSize(10))
	ctx := context.Background()

	result, err := idx.Upsert(ctx, sampleChunks())
	require.NoError(t, err)
	assert.Equal(t, 4, result.Inserted)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "2_0", result.Failed[0].ID)

	present, err := idx.Get(ctx, []string{"2_0"})
	require.NoError(t, err)
	assert.Empty(t, present)

	embedder.poison = ""
	retry, err := idx.Upsert(ctx, sampleChunks())
	require.NoError(t, err)
	assert.Equal(t, 1, retry.Inserted)
	assert.Equal(t, 4, retry.SkippedExisting)
}

func TestIndex_SimilaritySearchOwnText(t *testing.T) {
	idx, _ := setupTestIndex(t, &letterEmbedder{})
	ctx := context.Background()

	chunk := newChunk(7, 0, "Whale ahoy, the white whale!")
	_, err := idx.Upsert(ctx, []*Chunk{chunk})
	require.NoError(t, err)

	query, err := (&letterEmbedder{}).Embed(ctx, []string{chunk.Text})
	require.NoError(t, err)

	hits, err := idx.SimilaritySearch(ctx, query[0], 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "7_0", hits[0].Chunk.ID)
	assert.True(t, hits[0].Relevance.Defined)
	assert.InDelta(t, 1.0, hits[0].Relevance.Score, 1e-6)
}

func TestIndex_SimilaritySearchRanking(t *testing.T) {
	idx, _ := setupTestIndex(t, &letterEmbedder{})
	ctx := context.Background()

	_, err := idx.Upsert(ctx, sampleChunks())
	require.NoError(t, err)

	query, err := (&letterEmbedder{}).Embed(ctx, []string{"the lazy dog"})
	require.NoError(t, err)

	hits, err := idx.SimilaritySearch(ctx, query[0], 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, "1_2", hits[0].Chunk.ID)
	for i := 1; i < len(hits); i++ {
		assert.GreaterOrEqual(t, hits[i-1].Relevance.Score, hits[i].Relevance.Score)
	}

	none, err := idx.SimilaritySearch(ctx, query[0], 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

// failingBackend wraps a backend and fails Insert after a number of calls.
type failingBackend struct {
	Backend
	allowed int
}

func (b *failingBackend) Insert(ctx context.Context, chunks []*Chunk) error {
	if b.allowed == 0 {
		return errors.New("disk full")
	}
	b.allowed--
	return b.Backend.Insert(ctx, chunks)
}

func TestIndex_BackendFailureKeepsEarlierBatches(t *testing.T) {
	backend, _ := setupTestBackend(t, MetricCosine)
	idx := NewIndex(&failingBackend{Backend: backend, allowed: 1}, &letterEmbedder{}, WithBatchSize(2))
	ctx := context.Background()

	result, err := idx.Upsert(ctx, sampleChunks())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upsert batch 2-4")
	assert.Equal(t, 2, result.Inserted)

	n, err := backend.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	resumed, err := NewIndex(backend, &letterEmbedder{}, WithBatchSize(2)).Upsert(ctx, sampleChunks())
	require.NoError(t, err)
	assert.Equal(t, 3, resumed.Inserted)
	assert.Equal(t, 2, resumed.SkippedExisting)
}

func TestIndex_CancelledContext(t *testing.T) {
	idx, _ := setupTestIndex(t, &letterEmbedder{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := idx.Upsert(ctx, sampleChunks())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIndex_CountMissingCollection(t *testing.T) {
	idx, _ := setupTestIndex(t, &letterEmbedder{})

	_, err := idx.Count(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
}

// wrongDimEmbedder returns a short vector for one text.
type wrongDimEmbedder struct {
	letterEmbedder
	short string
}

func (e *wrongDimEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out, err := e.letterEmbedder.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	for i, text := range texts {
		if text == e.short {
			out[i] = out[i][:3]
		}
	}
	return out, nil
}

func TestIndex_DimensionMismatchIsPerChunk(t *testing.T) {
	idx, _ := setupTestIndex(t, &wrongDimEmbedder{short: "Call me Ishmael."})

	result, err := idx.Upsert(context.Background(), sampleChunks())
	require.NoError(t, err)
	assert.Equal(t, 4, result.Inserted)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "2_0", result.Failed[0].ID)
	assert.Contains(t, result.Failed[0].Reason, ErrDimensionMismatch.Error())
}
