// Package document turns source documents into per-page raw text.
//
// Extraction is the only place pages are produced. Every extractor yields a
// Pages map keyed by 1-based page number whose values are either the page
// text or an error sentinel recording why that page could not be read.
package document

import (
	"sort"
	"strings"
)

// ErrorMarker is the substring that identifies a failed page. Any page value
// containing it is treated as an extraction failure, regardless of what follows.
const ErrorMarker = "[Error:"

// Pages maps a 1-based page number to its raw text or an error sentinel.
type Pages map[int]string

// ErrorSentinel formats the value stored for a page whose extraction failed.
func ErrorSentinel(reason string) string {
	return ErrorMarker + " " + reason + "]"
}

// IsFailed reports whether a page value is an error sentinel.
func IsFailed(text string) bool {
	return strings.Contains(text, ErrorMarker)
}

// IsBlank reports whether a page carries no usable text.
func IsBlank(text string) bool {
	return strings.TrimSpace(text) == ""
}

// IDs returns the page numbers in ascending order.
func (p Pages) IDs() []int {
	ids := make([]int, 0, len(p))
	for id := range p {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// ExtractStats summarises an extraction run.
type ExtractStats struct {
	Total   int
	Success int
	Empty   int
	Failed  int
}

// Stats classifies every page as successful, empty or failed.
func (p Pages) Stats() ExtractStats {
	stats := ExtractStats{Total: len(p)}
	for _, text := range p {
		switch {
		case IsFailed(text):
			stats.Failed++
		case IsBlank(text):
			stats.Empty++
		default:
			stats.Success++
		}
	}
	return stats
}
