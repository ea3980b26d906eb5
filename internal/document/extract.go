package document

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
)

// Extractor produces per-page text from a source document.
type Extractor interface {
	Extract(ctx context.Context, source string) (Pages, error)
}

// Loader picks an extractor by source kind and enforces that at least one
// page yielded usable text.
type Loader struct {
	pdf      Extractor
	markdown Extractor
	text     Extractor
	github   Extractor
	logger   *slog.Logger
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithGitHub enables "github:owner/repo/path" sources.
func WithGitHub(source Extractor) LoaderOption {
	return func(l *Loader) {
		l.github = source
	}
}

// WithPDFExtractor replaces the default PDF extractor.
func WithPDFExtractor(e Extractor) LoaderOption {
	return func(l *Loader) {
		l.pdf = e
	}
}

// NewLoader creates a loader whose PDF extraction runs on maxWorkers goroutines.
func NewLoader(maxWorkers int, logger *slog.Logger, opts ...LoaderOption) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Loader{
		pdf:      NewPDFExtractor(maxWorkers, logger),
		markdown: NewMarkdownExtractor(),
		text:     TextExtractor{},
		logger:   logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load extracts pages from source. Sources are file paths (.pdf, .md,
// .markdown, .txt, .json page caches) or "github:owner/repo/path".
func (l *Loader) Load(ctx context.Context, source string) (Pages, error) {
	extractor, err := l.extractorFor(source)
	if err != nil {
		return nil, err
	}

	pages, err := extractor.Extract(ctx, source)
	if err != nil {
		return nil, err
	}

	stats := pages.Stats()
	l.logger.Info("Extracted pages",
		"source", source,
		"total", stats.Total,
		"success", stats.Success,
		"empty", stats.Empty,
		"failed", stats.Failed,
	)
	if stats.Success == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyResult, source)
	}
	return pages, nil
}

func (l *Loader) extractorFor(source string) (Extractor, error) {
	if strings.HasPrefix(source, GitHubScheme) {
		if l.github == nil {
			return nil, fmt.Errorf("%w: github sources are not configured", ErrUnsupportedInput)
		}
		return l.github, nil
	}

	switch strings.ToLower(filepath.Ext(source)) {
	case ".pdf":
		return l.pdf, nil
	case ".md", ".markdown":
		return l.markdown, nil
	case ".txt":
		return l.text, nil
	case ".json":
		return jsonExtractor{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedInput, source)
	}
}

type jsonExtractor struct{}

func (jsonExtractor) Extract(_ context.Context, path string) (Pages, error) {
	return LoadJSON(path)
}
