package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/mike-a-ellis/bookrag/internal/document"
	"github.com/mike-a-ellis/bookrag/internal/segment"
	"github.com/mike-a-ellis/bookrag/internal/storage"
)

// IndexResult contains statistics about an indexing run.
type IndexResult struct {
	Source   string
	Pages    document.ExtractStats
	Segments segment.Report
	Skipped  []segment.SkippedPage
	Upsert   storage.UpsertResult
	Duration time.Duration
}

// Loader produces pages for a source.
type Loader interface {
	Load(ctx context.Context, source string) (document.Pages, error)
}

// Upserter stores chunk records. *storage.Index satisfies it.
type Upserter interface {
	Upsert(ctx context.Context, chunks []*storage.Chunk) (*storage.UpsertResult, error)
}

// Pipeline orchestrates extraction, segmentation and indexing.
type Pipeline struct {
	loader    Loader
	segmenter *segment.Segmenter
	index     Upserter
	cachePath string
	logger    *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithPageCache saves extracted pages to path so later runs can start from
// the JSON cache instead of the original document.
func WithPageCache(path string) Option {
	return func(p *Pipeline) {
		p.cachePath = path
	}
}

// NewPipeline creates a new indexing pipeline with the given components.
func NewPipeline(loader Loader, segmenter *segment.Segmenter, index Upserter, logger *slog.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{
		loader:    loader,
		segmenter: segmenter,
		index:     index,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run loads source and indexes its pages. Running it again on the same
// source inserts nothing new.
func (p *Pipeline) Run(ctx context.Context, source string) (*IndexResult, error) {
	start := time.Now()
	p.logger.Info("Starting indexing", "source", source)

	pages, err := p.loader.Load(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", source, err)
	}

	if p.cachePath != "" && !samePath(p.cachePath, source) {
		if err := document.SaveJSON(p.cachePath, pages); err != nil {
			return nil, err
		}
		p.logger.Info("Saved page cache", "path", p.cachePath, "pages", len(pages))
	}

	result, err := p.IndexPages(ctx, pages)
	if result != nil {
		result.Source = source
		result.Duration = time.Since(start)
	}
	return result, err
}

// IndexPages segments pages and upserts the chunks. The returned result is
// populated as far as the run got, even when an error is returned.
func (p *Pipeline) IndexPages(ctx context.Context, pages document.Pages) (*IndexResult, error) {
	start := time.Now()
	result := &IndexResult{Pages: pages.Stats()}

	segmented, err := p.segmenter.Segment(pages)
	result.Segments = segment.NewReport(segmented)
	result.Segments.Log(p.logger)
	if segmented != nil {
		result.Skipped = segmented.Skipped
	}
	if err != nil {
		return result, fmt.Errorf("segment: %w", err)
	}

	chunks := make([]*storage.Chunk, len(segmented.Chunks))
	for i, c := range segmented.Chunks {
		chunks[i] = &storage.Chunk{
			ID:         c.ID,
			PageID:     c.PageID,
			LocalIndex: c.LocalIndex,
			Text:       c.Text,
			Start:      c.Start,
			End:        c.End,
		}
	}

	upserted, err := p.index.Upsert(ctx, chunks)
	if upserted != nil {
		result.Upsert = *upserted
	}
	result.Duration = time.Since(start)
	if err != nil {
		return result, fmt.Errorf("index: %w", err)
	}

	for _, f := range result.Upsert.Failed {
		p.logger.Warn("Chunk not indexed", "id", f.ID, "reason", f.Reason)
	}
	p.logger.Info("Indexing complete",
		"chunks", len(chunks),
		"inserted", result.Upsert.Inserted,
		"skipped_existing", result.Upsert.SkippedExisting,
		"failed", len(result.Upsert.Failed),
		"duration", result.Duration,
	)
	return result, nil
}

func samePath(a, b string) bool {
	if strings.HasPrefix(b, document.GitHubScheme) {
		return false
	}
	return filepath.Clean(a) == filepath.Clean(b)
}
