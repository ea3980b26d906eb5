package segment

import (
	"log/slog"
	"unicode/utf8"
)

// Report summarizes a segmentation run. Sizes are in runes.
type Report struct {
	PagesProcessed int
	PagesSkipped   int
	ChunkCount     int
	MinSize        int
	MaxSize        int
	MeanSize       float64
}

// NewReport computes statistics for result without modifying it.
func NewReport(result *Result) Report {
	if result == nil {
		return Report{}
	}

	r := Report{
		PagesProcessed: result.PagesProcessed,
		PagesSkipped:   len(result.Skipped),
		ChunkCount:     len(result.Chunks),
	}
	if r.ChunkCount == 0 {
		return r
	}

	total := 0
	for i, c := range result.Chunks {
		size := utf8.RuneCountInString(c.Text)
		total += size
		if i == 0 || size < r.MinSize {
			r.MinSize = size
		}
		if size > r.MaxSize {
			r.MaxSize = size
		}
	}
	r.MeanSize = float64(total) / float64(r.ChunkCount)
	return r
}

// Log writes the report as a single structured record.
func (r Report) Log(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("Segmented document",
		"pages_processed", r.PagesProcessed,
		"pages_skipped", r.PagesSkipped,
		"chunks", r.ChunkCount,
		"min_size", r.MinSize,
		"max_size", r.MaxSize,
		"mean_size", r.MeanSize,
	)
}
