package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mike-a-ellis/bookrag/internal/agent"
	"github.com/mike-a-ellis/bookrag/internal/answer"
	"github.com/mike-a-ellis/bookrag/internal/embedding"
	"github.com/mike-a-ellis/bookrag/internal/retrieval"
	"github.com/mike-a-ellis/bookrag/internal/storage"
)

type stubGenerator struct {
	prompts []string
	err     error
}

func (g *stubGenerator) Complete(_ context.Context, _, prompt string) (string, error) {
	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return "", g.err
	}
	return "generated", nil
}

type fixture struct {
	index     *storage.Index
	retriever *retrieval.Retriever
	generator *stubGenerator
	config    *Config
}

func newFixture(t *testing.T, chunks ...*storage.Chunk) *fixture {
	t.Helper()
	ctx := context.Background()

	backend, err := storage.OpenSQLite(t.TempDir(), "book", storage.MetricCosine)
	require.NoError(t, err)

	embedder := embedding.NewHashingEmbedder(128)
	index := storage.NewIndex(backend, embedder)
	t.Cleanup(func() { _ = index.Close() })

	// Upserting nothing still creates the collection.
	_, err = index.Upsert(ctx, chunks)
	require.NoError(t, err)

	retriever := retrieval.New(embedder, index)
	gen := &stubGenerator{}
	synth := answer.NewSynthesizer(gen, answer.DefaultMaxContextChars, nil)

	return &fixture{
		index:     index,
		retriever: retriever,
		generator: gen,
		config: &Config{
			Retriever:  retriever,
			Answerer:   synth,
			Dispatcher: agent.NewDispatcher(retriever, synth, 0, nil),
			Index:      index,
			Collection: "book",
			Backend:    "sqlite",
		},
	}
}

func bookChunks() []*storage.Chunk {
	return []*storage.Chunk{
		{ID: "1_0", PageID: 1, Text: "The whale surfaced beside the ship at dawn."},
		{ID: "2_0", PageID: 2, Text: "Ahab paced the deck and spoke of the white whale."},
		{ID: "3_0", PageID: 3, Text: "Recipes for chowder filled the inn at Nantucket."},
	}
}

func TestSearchHandler(t *testing.T) {
	f := newFixture(t, bookChunks()...)
	handler := makeSearchHandler(f.retriever)

	_, out, err := handler(context.Background(), nil, SearchBookInput{Query: "white whale", MaxResults: 2})
	require.NoError(t, err)

	require.Len(t, out.Results, 2)
	assert.Equal(t, "2_0", out.Results[0].ChunkID)
	assert.Equal(t, 2, out.Results[0].Page)
	require.NotNil(t, out.Results[0].Relevance)
	assert.GreaterOrEqual(t, *out.Results[0].Relevance, *out.Results[1].Relevance)
	assert.Len(t, out.Results[0].Label, 6)
	assert.True(t, strings.HasPrefix(out.Text, "[1] Page 2 (relevance "))
	assert.Empty(t, out.Message)
}

func TestSearchHandler_EmptyIndex(t *testing.T) {
	f := newFixture(t)
	handler := makeSearchHandler(f.retriever)

	_, out, err := handler(context.Background(), nil, SearchBookInput{Query: "anything"})
	require.NoError(t, err)
	assert.NotNil(t, out.Results)
	assert.Empty(t, out.Results)
	assert.Equal(t, agent.NoResults, out.Message)
	assert.Equal(t, agent.NoResults, out.Text)
}

func TestSearchHandler_InvalidQuery(t *testing.T) {
	f := newFixture(t, bookChunks()...)
	handler := makeSearchHandler(f.retriever)

	_, _, err := handler(context.Background(), nil, SearchBookInput{Query: "  "})
	assert.ErrorIs(t, err, retrieval.ErrInvalidQuery)
}

func TestClampK(t *testing.T) {
	assert.Equal(t, agent.DefaultK, clampK(0))
	assert.Equal(t, agent.DefaultK, clampK(-3))
	assert.Equal(t, 7, clampK(7))
	assert.Equal(t, maxResultsLimit, clampK(500))
}

func TestAskHandler(t *testing.T) {
	f := newFixture(t, bookChunks()...)
	handler := makeAskHandler(f.retriever, f.config.Answerer)

	_, out, err := handler(context.Background(), nil, AskBookInput{Question: "Who spoke of the white whale?", MaxResults: 3})
	require.NoError(t, err)
	assert.Equal(t, "generated", out.Answer)
	assert.Equal(t, []int{1, 2, 3}, out.Pages)

	require.Len(t, f.generator.prompts, 1)
	assert.Contains(t, f.generator.prompts[0], "[Page 2]: Ahab paced the deck")
	assert.True(t, strings.HasSuffix(f.generator.prompts[0], "Question: Who spoke of the white whale?"))
}

func TestAskHandler_NothingRetrieved(t *testing.T) {
	f := newFixture(t)
	handler := makeAskHandler(f.retriever, f.config.Answerer)

	_, out, err := handler(context.Background(), nil, AskBookInput{Question: "Who is Ishmael?"})
	require.NoError(t, err)
	assert.Equal(t, agent.NoResults, out.Answer)
	assert.Empty(t, f.generator.prompts)
}

func TestAskHandler_GenerationError(t *testing.T) {
	f := newFixture(t, bookChunks()...)
	f.generator.err = errors.New("model offline")
	handler := makeAskHandler(f.retriever, f.config.Answerer)

	_, _, err := handler(context.Background(), nil, AskBookInput{Question: "whale"})
	assert.ErrorIs(t, err, answer.ErrGeneration)
}

func TestSummarizeHandler(t *testing.T) {
	f := newFixture(t, bookChunks()...)
	handler := makeSummarizeHandler(f.config.Dispatcher)

	_, out, err := handler(context.Background(), nil, SummarizeBookInput{Topic: "the whale"})
	require.NoError(t, err)
	assert.Equal(t, "generated", out.Summary)
	require.Len(t, f.generator.prompts, 1)
	assert.Contains(t, f.generator.prompts[0], "focusing on: the whale")
}

func TestStatusHandler(t *testing.T) {
	ctx := context.Background()

	backend, err := storage.OpenSQLite(t.TempDir(), "book", storage.MetricCosine)
	require.NoError(t, err)
	defer backend.Close()

	_, out, err := makeStatusHandler(backend, "book", "sqlite", true)(ctx, nil, StatusInput{})
	require.NoError(t, err)
	assert.False(t, out.Indexed)
	assert.Zero(t, out.TotalChunks)
	assert.Equal(t, "book", out.Collection)

	empty := newFixture(t)
	_, out, err = makeStatusHandler(empty.index, "book", "sqlite", true)(ctx, nil, StatusInput{})
	require.NoError(t, err)
	assert.True(t, out.Indexed)
	assert.Zero(t, out.TotalChunks)

	full := newFixture(t, bookChunks()...)
	_, out, err = makeStatusHandler(full.index, "book", "sqlite", false)(ctx, nil, StatusInput{})
	require.NoError(t, err)
	assert.True(t, out.Indexed)
	assert.Equal(t, 3, out.TotalChunks)
	assert.False(t, out.Generation)
}

func TestServer_ToolsOverSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, bookChunks()...)
	server := NewServer(f.config)

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	serverSession, err := server.MCPServer().Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	defer serverSession.Close()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	defer session.Close()

	res, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "search_book",
		Arguments: map[string]any{"query": "chowder at the inn", "max_results": 1},
	})
	require.NoError(t, err)
	require.False(t, res.IsError)

	raw, err := json.Marshal(res.StructuredContent)
	require.NoError(t, err)
	var out SearchBookOutput
	require.NoError(t, json.Unmarshal(raw, &out))
	require.Len(t, out.Results, 1)
	assert.Equal(t, 3, out.Results[0].Page)

	res, err = session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "index_status",
		Arguments: map[string]any{},
	})
	require.NoError(t, err)
	require.False(t, res.IsError)
	raw, err = json.Marshal(res.StructuredContent)
	require.NoError(t, err)
	var status StatusOutput
	require.NoError(t, json.Unmarshal(raw, &status))
	assert.Equal(t, 3, status.TotalChunks)
	assert.True(t, status.Generation)
}

func TestServer_WithoutGeneration(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, bookChunks()...)
	f.config.Answerer = nil
	f.config.Dispatcher = nil
	server := NewServer(f.config)

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	serverSession, err := server.MCPServer().Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	defer serverSession.Close()

	session, err := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil).
		Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	defer session.Close()

	tools, err := session.ListTools(ctx, nil)
	require.NoError(t, err)
	var names []string
	for _, tool := range tools.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"search_book", "index_status"}, names)
}

type healthFunc func(context.Context) error

func (f healthFunc) Health(ctx context.Context) error { return f(ctx) }

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantCode   int
		wantStatus string
		wantIndex  string
	}{
		{"healthy", nil, http.StatusOK, "healthy", "connected"},
		{"unhealthy", errors.New("connection refused"), http.StatusServiceUnavailable, "unhealthy", "disconnected"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHealthHandler(healthFunc(func(context.Context) error { return tt.err }))

			rec := httptest.NewRecorder()
			handler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var resp HealthResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, tt.wantStatus, resp.Status)
			assert.Equal(t, tt.wantIndex, resp.Index)
			assert.NotEmpty(t, resp.Timestamp)
		})
	}
}
