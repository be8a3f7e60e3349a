package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	mcpadapter "github.com/kirillkom/legal-case-rag/internal/adapters/mcp"
	"github.com/kirillkom/legal-case-rag/internal/bootstrap"
	"github.com/kirillkom/legal-case-rag/internal/config"
	"github.com/kirillkom/legal-case-rag/internal/observability/logging"
)

// stdout carries JSON-RPC, so logs go to stderr.
func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.NewJSONLoggerTo(os.Stderr, "mcp", cfg.LogLevel))

	app, err := bootstrap.New(context.Background(), cfg, bootstrap.Options{Retrieval: true})
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	slog.Info("mcp_server_starting", "corpus_path", cfg.CorpusPath, "dense_available", app.Retrieval.DenseAvailable())
	if err := mcpadapter.NewServer(app.Retrieval, cfg.AgentDefaultTopN).ServeStdio(); err != nil {
		slog.Error("mcp_server_failed", "error", err)
		os.Exit(1)
	}
}
