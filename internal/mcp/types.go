// Package mcp exposes the book index as Model Context Protocol tools.
package mcp

// SearchBookInput defines the input parameters for the search_book tool.
type SearchBookInput struct {
	// Query is the semantic search query.
	Query string `json:"query" jsonschema:"The question or topic to look up in the book"`
	// MaxResults is the maximum number of chunks to return.
	MaxResults int `json:"max_results,omitempty" jsonschema:"Maximum number of passages to return (default 5, at most 20)"`
}

// SearchBookOutput contains the ranked passages.
type SearchBookOutput struct {
	// Results is ordered by descending relevance.
	Results []SearchResult `json:"results"`
	// Text is the same results rendered for direct display.
	Text string `json:"text"`
	// Message provides informational context (e.g., "No relevant content found.").
	Message string `json:"message,omitempty"`
}

// SearchResult is one retrieved chunk with its provenance.
type SearchResult struct {
	ChunkID string `json:"chunk_id"`
	Page    int    `json:"page"`
	// Relevance is a score in [0, 1], null when undefined.
	Relevance *float64 `json:"relevance"`
	// Label renders Relevance with four decimals, or "N/A".
	Label string `json:"label"`
	Text  string `json:"text"`
}

// AskBookInput defines the input parameters for the ask_book tool.
type AskBookInput struct {
	Question   string `json:"question" jsonschema:"The question to answer from the book content"`
	MaxResults int    `json:"max_results,omitempty" jsonschema:"Number of passages used as context (default 5, at most 20)"`
}

// AskBookOutput contains the generated answer and the pages it drew on.
type AskBookOutput struct {
	Answer string `json:"answer"`
	Pages  []int  `json:"pages"`
}

// SummarizeBookInput defines the input parameters for the summarize_book tool.
type SummarizeBookInput struct {
	Topic      string `json:"topic" jsonschema:"The topic to summarize across the book"`
	MaxResults int    `json:"max_results,omitempty" jsonschema:"Number of passages to summarize (default 5, at most 20)"`
}

// SummarizeBookOutput contains the summary.
type SummarizeBookOutput struct {
	Summary string `json:"summary"`
}

// StatusInput defines the input parameters for the index_status tool.
// This tool takes no parameters.
type StatusInput struct{}

// StatusOutput describes the index the server is answering from.
type StatusOutput struct {
	Collection  string `json:"collection"`
	Backend     string `json:"backend"`
	TotalChunks int    `json:"total_chunks"`
	// Indexed is false when the collection has not been created yet.
	Indexed bool `json:"indexed"`
	// Generation reports whether ask_book and summarize_book are available.
	Generation bool `json:"generation"`
}
