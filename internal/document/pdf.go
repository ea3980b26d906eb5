package document

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"github.com/ledongthuc/pdf"
	"golang.org/x/sync/errgroup"
)

// MaxWorkersCap bounds the extraction pool regardless of core count.
const MaxWorkersCap = 8

// DefaultMaxWorkers returns min(NumCPU, MaxWorkersCap).
func DefaultMaxWorkers() int {
	return min(runtime.NumCPU(), MaxWorkersCap)
}

// PDFExtractor extracts page text from PDF files on a bounded worker pool.
type PDFExtractor struct {
	maxWorkers int
	logger     *slog.Logger
}

// NewPDFExtractor creates an extractor using at most maxWorkers goroutines.
// A non-positive maxWorkers selects DefaultMaxWorkers.
func NewPDFExtractor(maxWorkers int, logger *slog.Logger) *PDFExtractor {
	if maxWorkers <= 0 {
		maxWorkers = DefaultMaxWorkers()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PDFExtractor{maxWorkers: maxWorkers, logger: logger}
}

// Extract reads every page of the PDF at path. A page that cannot be read is
// recorded as an error sentinel and the remaining pages are still extracted.
// Only failures to open the document itself are returned as errors.
func (e *PDFExtractor) Extract(ctx context.Context, path string) (Pages, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrEmptyResult, path)
	}

	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf %s: %w", path, err)
	}
	total := reader.NumPage()
	f.Close()
	if total == 0 {
		return nil, fmt.Errorf("%w: %s has no pages", ErrEmptyResult, path)
	}

	e.logger.Info("Extracting PDF", "path", path, "pages", total, "workers", e.maxWorkers)

	// Each page owns exactly one slot, so workers never write the same index.
	texts := make([]string, total)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxWorkers)
	for i := 0; i < total; i++ {
		pageNum := i + 1
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			texts[pageNum-1] = e.extractPage(path, pageNum)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("extract %s: %w", path, err)
	}

	pages := make(Pages, total)
	for i, text := range texts {
		pages[i+1] = text
	}
	return pages, nil
}

// extractPage opens its own reader: pdf.Reader keeps per-object state that is
// not safe to share across goroutines.
func (e *PDFExtractor) extractPage(path string, pageNum int) (text string) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("Page extraction panicked", "page", pageNum, "panic", r)
			text = ErrorSentinel(fmt.Sprint(r))
		}
	}()

	f, reader, err := pdf.Open(path)
	if err != nil {
		return ErrorSentinel(err.Error())
	}
	defer f.Close()

	page := reader.Page(pageNum)
	if page.V.IsNull() {
		return ""
	}

	text, err = page.GetPlainText(nil)
	if err != nil {
		e.logger.Warn("Page extraction failed", "page", pageNum, "error", err)
		return ErrorSentinel(err.Error())
	}
	return text
}
