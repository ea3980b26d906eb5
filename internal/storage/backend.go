package storage

import "context"

// Backend persists chunks of a single collection.
//
// Read methods return ErrNotFound until EnsureCollection has created the
// collection. Insert writes a batch atomically and ignores ids that are
// already stored. Collections lists every collection in the store, and
// DropCollection deletes the backend's own collection with its chunks.
type Backend interface {
	EnsureCollection(ctx context.Context) error
	Dimension(ctx context.Context) (int, error)
	Exists(ctx context.Context, ids []string) (map[string]struct{}, error)
	Fetch(ctx context.Context, ids []string) ([]*Chunk, error)
	Insert(ctx context.Context, chunks []*Chunk) error
	Search(ctx context.Context, query []float32, k int) ([]ScoredChunk, error)
	Count(ctx context.Context) (int, error)
	Collections(ctx context.Context) ([]string, error)
	DropCollection(ctx context.Context) error
	Health(ctx context.Context) error
	Close() error
}

// Embedder turns texts into vectors, one per input text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
