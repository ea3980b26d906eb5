package storage

import (
	"encoding/json"
	"strconv"
)

// Chunk is a stored text unit with its embedding and page provenance.
type Chunk struct {
	ID         string    // "<page>_<local index>"
	PageID     int       // Originating page
	LocalIndex int       // Position within the page
	Text       string    // Chunk text
	Start      int       // Rune offset of Text within the page
	End        int       // Rune offset one past the end of Text
	Embedding  []float32 // Set by Index.Upsert
	Seq        int64     // Insertion order, assigned by the backend
}

// ScoredChunk is a search hit. Distance follows the collection metric;
// Relevance is derived from it and is higher for closer chunks.
type ScoredChunk struct {
	Chunk     *Chunk
	Distance  float64
	Relevance Relevance
}

// Relevance is a similarity score in [0, 1], or undefined when the distance
// is degenerate (a zero-magnitude vector).
type Relevance struct {
	Score   float64
	Defined bool
}

// Score wraps a defined relevance value.
func Score(v float64) Relevance {
	return Relevance{Score: v, Defined: true}
}

// Meets reports whether r is defined and at least min.
func (r Relevance) Meets(min float64) bool {
	return r.Defined && r.Score >= min
}

func (r Relevance) String() string {
	if !r.Defined {
		return "N/A"
	}
	return strconv.FormatFloat(r.Score, 'f', 4, 64)
}

// MarshalJSON encodes a defined score as a number and an undefined one as "N/A".
func (r Relevance) MarshalJSON() ([]byte, error) {
	if !r.Defined {
		return json.Marshal("N/A")
	}
	return json.Marshal(r.Score)
}

// UpsertResult reports what an Upsert call did with each input chunk.
type UpsertResult struct {
	Inserted        int
	SkippedExisting int
	Failed          []FailedChunk
}

// FailedChunk is a chunk left out of the index because it could not be embedded.
type FailedChunk struct {
	ID     string
	Reason string
}

// DefaultCollection is the collection name used when none is configured.
const DefaultCollection = "book_chunks"
