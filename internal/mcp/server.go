package mcp

import (
	"context"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mike-a-ellis/bookrag/internal/agent"
	"github.com/mike-a-ellis/bookrag/internal/storage"
)

// Answerer produces a grounded answer from retrieved chunks.
// *answer.Synthesizer implements it.
type Answerer interface {
	Answer(ctx context.Context, question string, results []storage.ScoredChunk) (string, error)
}

// Counter reports how many chunks the index holds.
type Counter interface {
	Count(ctx context.Context) (int, error)
}

// Config holds server dependencies. Answerer and Dispatcher may be nil when
// no language model is configured; ask_book and summarize_book are then not
// registered.
type Config struct {
	Retriever  agent.Retriever
	Answerer   Answerer
	Dispatcher *agent.Dispatcher
	Index      Counter
	Collection string
	Backend    string
	Logger     *slog.Logger
}

// Server wraps the MCP server with dependencies.
type Server struct {
	server *mcp.Server
	logger *slog.Logger
}

// NewServer creates a configured MCP server with tools registered.
func NewServer(cfg *Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "bookrag",
		Version: "v0.1.0",
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_book",
		Description: "Search the indexed book semantically. Returns the most relevant passages with their page numbers.",
	}, makeSearchHandler(cfg.Retriever))

	generation := cfg.Answerer != nil && cfg.Dispatcher != nil
	if generation {
		mcp.AddTool(server, &mcp.Tool{
			Name:        "ask_book",
			Description: "Answer a question using only passages retrieved from the indexed book.",
		}, makeAskHandler(cfg.Retriever, cfg.Answerer))

		mcp.AddTool(server, &mcp.Tool{
			Name:        "summarize_book",
			Description: "Summarize what the indexed book says about a topic.",
		}, makeSummarizeHandler(cfg.Dispatcher))
	} else {
		logger.Info("No language model configured, ask_book and summarize_book disabled")
	}

	mcp.AddTool(server, &mcp.Tool{
		Name:        "index_status",
		Description: "Report the collection name, storage backend and number of indexed chunks.",
	}, makeStatusHandler(cfg.Index, cfg.Collection, cfg.Backend, generation))

	return &Server{server: server, logger: logger}
}

// Run serves over stdio until the client disconnects or ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}
