// Package retrieval turns a free-text query into ranked chunks.
//
// The embedder must be the one used when the index was built; vectors from a
// different model live in a different space and produce meaningless ranks.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mike-a-ellis/bookrag/internal/storage"
)

// Searcher is the part of the index a Retriever needs.
type Searcher interface {
	SimilaritySearch(ctx context.Context, query []float32, k int) ([]storage.ScoredChunk, error)
}

// Retriever embeds queries and searches the index.
type Retriever struct {
	embedder     storage.Embedder
	searcher     Searcher
	minRelevance float64
	logger       *slog.Logger
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithMinRelevance drops results below min. Results with undefined
// relevance never pass a positive threshold.
func WithMinRelevance(min float64) Option {
	return func(r *Retriever) {
		r.minRelevance = min
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Retriever) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New creates a Retriever.
func New(embedder storage.Embedder, searcher Searcher, opts ...Option) *Retriever {
	r := &Retriever{
		embedder: embedder,
		searcher: searcher,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve returns up to k chunks most similar to query, most relevant
// first. An empty result means nothing relevant was found and is not an error.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]storage.ScoredChunk, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is empty", ErrInvalidQuery)
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", ErrInvalidQuery, k)
	}

	vectors, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embed query: got %d vectors", len(vectors))
	}

	hits, err := r.searcher.SimilaritySearch(ctx, vectors[0], k)
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}

	if r.minRelevance > 0 {
		kept := hits[:0]
		for _, h := range hits {
			if h.Relevance.Meets(r.minRelevance) {
				kept = append(kept, h)
			}
		}
		if dropped := len(hits) - len(kept); dropped > 0 {
			r.logger.Debug("Dropped results below relevance threshold",
				"dropped", dropped,
				"min_relevance", r.minRelevance,
			)
		}
		hits = kept
	}

	if len(hits) == 0 {
		return []storage.ScoredChunk{}, nil
	}
	return hits, nil
}
