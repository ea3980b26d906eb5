package answer

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/mike-a-ellis/bookrag/internal/storage"
)

// DefaultMaxContextChars caps the grounding context at roughly 16k tokens,
// estimating four characters per token.
const DefaultMaxContextChars = 16000 * 4

// blockSeparator joins context blocks.
const blockSeparator = "\n\n"

// Block formats one retrieved chunk as "[Page N]: text".
func Block(c *storage.Chunk) string {
	return fmt.Sprintf("[Page %d]: %s", c.PageID, c.Text)
}

// BuildContext joins result blocks in rank order. When the next block would
// push the context past maxChars (in characters, separators included) it and
// every lower-ranked block are dropped; blocks are never cut. maxChars <= 0
// means no limit. It returns the context and the number of blocks used.
func BuildContext(results []storage.ScoredChunk, maxChars int) (string, int) {
	var (
		b    strings.Builder
		size int
		used int
	)
	for _, r := range results {
		block := Block(r.Chunk)
		n := utf8.RuneCountInString(block)
		if used > 0 {
			n += utf8.RuneCountInString(blockSeparator)
		}
		if maxChars > 0 && size+n > maxChars {
			break
		}
		if used > 0 {
			b.WriteString(blockSeparator)
		}
		b.WriteString(block)
		size += n
		used++
	}
	return b.String(), used
}
