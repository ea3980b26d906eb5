package mcp

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mike-a-ellis/bookrag/internal/agent"
	"github.com/mike-a-ellis/bookrag/internal/storage"
)

// maxResultsLimit caps max_results for every tool.
const maxResultsLimit = 20

func clampK(k int) int {
	switch {
	case k <= 0:
		return agent.DefaultK
	case k > maxResultsLimit:
		return maxResultsLimit
	default:
		return k
	}
}

// makeSearchHandler creates the search_book tool handler.
func makeSearchHandler(retriever agent.Retriever) func(
	context.Context, *mcp.CallToolRequest, SearchBookInput,
) (*mcp.CallToolResult, SearchBookOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input SearchBookInput) (
		*mcp.CallToolResult, SearchBookOutput, error,
	) {
		hits, err := retriever.Retrieve(ctx, input.Query, clampK(input.MaxResults))
		if err != nil {
			return nil, SearchBookOutput{}, fmt.Errorf("search failed: %w", err)
		}

		out := SearchBookOutput{
			Results: make([]SearchResult, 0, len(hits)),
			Text:    agent.FormatResults(hits),
		}
		for _, h := range hits {
			r := SearchResult{
				ChunkID: h.Chunk.ID,
				Page:    h.Chunk.PageID,
				Label:   h.Relevance.String(),
				Text:    h.Chunk.Text,
			}
			if h.Relevance.Defined {
				score := h.Relevance.Score
				r.Relevance = &score
			}
			out.Results = append(out.Results, r)
		}
		if len(hits) == 0 {
			out.Message = agent.NoResults
		}
		return nil, out, nil
	}
}

// makeAskHandler creates the ask_book tool handler. With nothing relevant
// retrieved it answers with agent.NoResults instead of calling the model.
func makeAskHandler(retriever agent.Retriever, answerer Answerer) func(
	context.Context, *mcp.CallToolRequest, AskBookInput,
) (*mcp.CallToolResult, AskBookOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input AskBookInput) (
		*mcp.CallToolResult, AskBookOutput, error,
	) {
		hits, err := retriever.Retrieve(ctx, input.Question, clampK(input.MaxResults))
		if err != nil {
			return nil, AskBookOutput{}, fmt.Errorf("retrieve failed: %w", err)
		}
		if len(hits) == 0 {
			return nil, AskBookOutput{Answer: agent.NoResults, Pages: []int{}}, nil
		}

		text, err := answerer.Answer(ctx, input.Question, hits)
		if err != nil {
			return nil, AskBookOutput{}, fmt.Errorf("answer failed: %w", err)
		}
		return nil, AskBookOutput{Answer: text, Pages: pagesOf(hits)}, nil
	}
}

// makeSummarizeHandler creates the summarize_book tool handler.
func makeSummarizeHandler(dispatcher *agent.Dispatcher) func(
	context.Context, *mcp.CallToolRequest, SummarizeBookInput,
) (*mcp.CallToolResult, SummarizeBookOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input SummarizeBookInput) (
		*mcp.CallToolResult, SummarizeBookOutput, error,
	) {
		summary, err := dispatcher.Dispatch(ctx, agent.Call{
			Capability: agent.CapabilitySummarize,
			Query:      input.Topic,
			K:          clampK(input.MaxResults),
		})
		if err != nil {
			return nil, SummarizeBookOutput{}, fmt.Errorf("summarize failed: %w", err)
		}
		return nil, SummarizeBookOutput{Summary: summary}, nil
	}
}

// makeStatusHandler creates the index_status tool handler. A collection that
// has not been created yet is reported as not indexed rather than as an error.
func makeStatusHandler(index Counter, collection, backend string, generation bool) func(
	context.Context, *mcp.CallToolRequest, StatusInput,
) (*mcp.CallToolResult, StatusOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input StatusInput) (
		*mcp.CallToolResult, StatusOutput, error,
	) {
		out := StatusOutput{
			Collection: collection,
			Backend:    backend,
			Generation: generation,
		}

		count, err := index.Count(ctx)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			return nil, out, nil
		case err != nil:
			return nil, StatusOutput{}, fmt.Errorf("index_error: failed to count chunks: %w", err)
		}

		out.TotalChunks = count
		out.Indexed = true
		return nil, out, nil
	}
}

// pagesOf returns the distinct pages of hits in ascending order.
func pagesOf(hits []storage.ScoredChunk) []int {
	seen := make(map[int]struct{}, len(hits))
	pages := make([]int, 0, len(hits))
	for _, h := range hits {
		if _, ok := seen[h.Chunk.PageID]; ok {
			continue
		}
		seen[h.Chunk.PageID] = struct{}{}
		pages = append(pages, h.Chunk.PageID)
	}
	sort.Ints(pages)
	return pages
}
