// Package main provides the MCP server entry point for bookrag.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mike-a-ellis/bookrag/internal/app"
	"github.com/mike-a-ellis/bookrag/internal/config"
	mcpserver "github.com/mike-a-ellis/bookrag/internal/mcp"
)

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Create context that cancels on SIGTERM/SIGINT
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	// Stdio carries the protocol, so logs go to stderr
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := config.Load(os.Getenv("BOOKRAG_CONFIG"))
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("failed to open index: %v", err)
	}
	defer a.Close()

	server := mcpserver.NewServer(&mcpserver.Config{
		Retriever:  a.Retriever,
		Answerer:   answerer(a),
		Dispatcher: a.Dispatcher,
		Index:      a.Index,
		Collection: cfg.CollectionName,
		Backend:    cfg.Backend,
		Logger:     logger,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/health", mcpserver.NewHealthHandler(a.Index))
	mux.Handle("/mcp", mcpserver.NewHTTPHandler(server, nil))

	httpServer := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Server.Port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	if cfg.Server.Mode == "http" {
		logger.Info("Starting HTTP server", "addr", httpServer.Addr, "mcp", "/mcp", "health", "/health")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server error: %v", err)
		}
		return
	}

	// Stdio mode keeps the health endpoint available in the background
	go func() {
		logger.Info("Starting health server", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("Health server error", "error", err)
		}
	}()

	logger.Info("Starting bookrag MCP server (stdio mode)", "collection", cfg.CollectionName)
	if err := server.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// answerer avoids handing the server a typed nil when generation is disabled.
func answerer(a *app.App) mcpserver.Answerer {
	if a.Synthesizer == nil {
		return nil
	}
	return a.Synthesizer
}
