package document

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// TextExtractor reads plain text files. Form feeds separate pages, which is
// what pdftotext and most print-to-text tools emit; a file without them is a
// single page.
type TextExtractor struct{}

// Extract implements Extractor.
func (TextExtractor) Extract(_ context.Context, path string) (Pages, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	parts := strings.Split(string(data), "\f")
	pages := make(Pages, len(parts))
	for i, part := range parts {
		pages[i+1] = part
	}
	return pages, nil
}
