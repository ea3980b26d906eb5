// Package segment splits extracted page text into overlapping chunks with
// stable identifiers.
package segment

import (
	"fmt"
	"log/slog"
	"unicode"

	"github.com/mike-a-ellis/bookrag/internal/document"
)

// Chunk is a window of page text. Start and End are rune offsets of Text
// within the page.
type Chunk struct {
	ID         string
	PageID     int
	LocalIndex int
	Text       string
	Start      int
	End        int
}

// ChunkID builds the identifier of the localIndex-th chunk on a page.
func ChunkID(pageID, localIndex int) string {
	return fmt.Sprintf("%d_%d", pageID, localIndex)
}

// SkippedPage records a page that produced no chunks and why.
type SkippedPage struct {
	PageID int
	Reason string
}

const (
	ReasonExtractionFailed = "extraction failed"
	ReasonEmpty            = "empty page"
	ReasonNoChunks         = "no chunks"
)

// Result is the output of segmenting a document.
type Result struct {
	Chunks         []Chunk
	PagesProcessed int
	Skipped        []SkippedPage
}

// Segmenter splits pages into windows of at most chunkSize runes that
// overlap by at most overlap runes.
type Segmenter struct {
	chunkSize int
	overlap   int
	logger    *slog.Logger

	// split windows one page. Tests replace it to exercise page recovery.
	split func(pageID int, r []rune) []Chunk
}

// New validates the window parameters and returns a Segmenter.
func New(chunkSize, overlap int, logger *slog.Logger) (*Segmenter, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidConfig, chunkSize)
	}
	if overlap < 0 || overlap >= chunkSize {
		return nil, fmt.Errorf("%w: overlap must be in [0, %d), got %d", ErrInvalidConfig, chunkSize, overlap)
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Segmenter{chunkSize: chunkSize, overlap: overlap, logger: logger}
	s.split = s.windows
	return s, nil
}

// Segment splits pages with the given parameters using the default logger.
func Segment(pages document.Pages, chunkSize, overlap int) ([]Chunk, error) {
	s, err := New(chunkSize, overlap, nil)
	if err != nil {
		return nil, err
	}
	result, err := s.Segment(pages)
	if err != nil {
		return nil, err
	}
	return result.Chunks, nil
}

// Segment splits every page in ascending page order. Failed and blank pages
// are skipped; a page that fails to split is logged and skipped as well.
// It returns ErrEmptyResult when no chunk was produced at all.
func (s *Segmenter) Segment(pages document.Pages) (*Result, error) {
	result := &Result{}

	for _, id := range pages.IDs() {
		text := pages[id]

		switch {
		case document.IsFailed(text):
			result.Skipped = append(result.Skipped, SkippedPage{PageID: id, Reason: ReasonExtractionFailed})
			continue
		case document.IsBlank(text):
			result.Skipped = append(result.Skipped, SkippedPage{PageID: id, Reason: ReasonEmpty})
			continue
		}

		chunks, err := s.splitPage(id, text)
		if err != nil {
			s.logger.Warn("Skipping page", "page", id, "error", err)
			result.Skipped = append(result.Skipped, SkippedPage{PageID: id, Reason: err.Error()})
			continue
		}
		if len(chunks) == 0 {
			result.Skipped = append(result.Skipped, SkippedPage{PageID: id, Reason: ReasonNoChunks})
			continue
		}

		result.PagesProcessed++
		result.Chunks = append(result.Chunks, chunks...)
	}

	if len(result.Chunks) == 0 {
		return result, fmt.Errorf("%w: %d pages, %d skipped", ErrEmptyResult, len(pages), len(result.Skipped))
	}
	return result, nil
}

// splitPage converts a panic inside the windowing code into an error so one
// bad page cannot stop the document.
func (s *Segmenter) splitPage(pageID int, text string) (chunks []Chunk, err error) {
	defer func() {
		if r := recover(); r != nil {
			chunks = nil
			err = fmt.Errorf("split page %d: %v", pageID, r)
		}
	}()
	return s.split(pageID, []rune(text)), nil
}

func (s *Segmenter) windows(pageID int, r []rune) []Chunk {
	n := len(r)
	start := 0
	for start < n && unicode.IsSpace(r[start]) {
		start++
	}

	var chunks []Chunk
	floor := 0
	for start < n {
		end := start + s.chunkSize
		if end >= n {
			end = n
		} else {
			end = snapEnd(r, start, end)
		}

		if lo, hi := trimSpan(r, start, end); lo < hi {
			chunks = append(chunks, Chunk{
				ID:         ChunkID(pageID, len(chunks)),
				PageID:     pageID,
				LocalIndex: len(chunks),
				Text:       string(r[lo:hi]),
				Start:      lo,
				End:        hi,
			})
			floor = lo + 1
		}

		if end >= n {
			break
		}
		start = nextStart(r, start, end, s.overlap, floor)
	}
	return chunks
}

// snapEnd moves a window end back to the nearest paragraph break, then line
// break, then word boundary. Paragraph and line breaks only count in the
// upper half of the window so a break near the start cannot shrink it to a
// sliver. With no boundary the window is cut at end.
func snapEnd(r []rune, start, end int) int {
	half := start + (end-start)/2

	for p := end; p > half && p-2 >= start; p-- {
		if r[p-1] == '\n' && r[p-2] == '\n' {
			return p
		}
	}
	for p := end; p > half; p-- {
		if r[p-1] == '\n' {
			return p
		}
	}
	for p := end; p > start; p-- {
		if unicode.IsSpace(r[p]) || unicode.IsSpace(r[p-1]) {
			return p
		}
	}
	return end
}

// nextStart backs off overlap runes from end, then moves forward to the first
// word start at or before end so the following window does not open mid-word.
// It always advances past start and to at least floor, one past the start of
// the last emitted chunk, so a window opened in whitespace cannot snap back
// onto the same word.
func nextStart(r []rune, start, end, overlap, floor int) int {
	next := end - overlap
	if next <= start {
		next = start + 1
	}
	if next < floor {
		next = floor
	}
	for p := next; p <= end; p++ {
		if p > 0 && unicode.IsSpace(r[p-1]) && !unicode.IsSpace(r[p]) {
			return p
		}
	}
	return next
}

func trimSpan(r []rune, lo, hi int) (int, int) {
	for lo < hi && unicode.IsSpace(r[lo]) {
		lo++
	}
	for hi > lo && unicode.IsSpace(r[hi-1]) {
		hi--
	}
	return lo, hi
}
