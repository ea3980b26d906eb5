package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"
)

// letterEmbedder maps text to letter frequencies, so equal texts get equal
// vectors and texts sharing letters are close.
type letterEmbedder struct {
	mu     sync.Mutex
	calls  int
	texts  int
	poison string
}

func (e *letterEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.calls++
	e.texts += len(texts)
	e.mu.Unlock()

	out := make([][]float32, len(texts))
	for i, text := range texts {
		if e.poison != "" && strings.Contains(text, e.poison) {
			return nil, errors.New("embedding rejected input")
		}
		v := make([]float32, 26)
		for _, r := range strings.ToLower(text) {
			if r >= 'a' && r <= 'z' {
				v[r-'a']++
			} else if unicode.IsDigit(r) {
				v[0] += 0.5
			}
		}
		out[i] = v
	}
	return out, nil
}

func newChunk(pageID, localIndex int, text string) *Chunk {
	return &Chunk{
		ID:         fmt.Sprintf("%d_%d", pageID, localIndex),
		PageID:     pageID,
		LocalIndex: localIndex,
		Text:       text,
	}
}

// withSpan places c at rune offset start of its page.
func withSpan(c *Chunk, start int) *Chunk {
	c.Start = start
	c.End = start + utf8.RuneCountInString(c.Text)
	return c
}
