package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/kirillkom/legal-case-rag/internal/adapters/cli"
	"github.com/kirillkom/legal-case-rag/internal/bootstrap"
	"github.com/kirillkom/legal-case-rag/internal/config"
	"github.com/kirillkom/legal-case-rag/internal/observability/logging"
)

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.NewJSONLoggerTo(os.Stderr, "cli", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := cli.NewRootCommand(func(ctx context.Context, corpusPath string, need cli.Need) (*cli.Services, func(), error) {
		c := cfg
		if corpusPath != "" {
			c.CorpusPath = corpusPath
		}
		app, err := bootstrap.New(ctx, c, bootstrap.Options{
			Retrieval: need.Retrieval,
			Agent:     need.Agent,
			Embedding: need.Embedding,
			Journal:   need.Agent,
		})
		if err != nil {
			return nil, nil, err
		}
		svc := &cli.Services{CorpusPath: c.CorpusPath}
		if app.Retrieval != nil {
			svc.Retrieval = app.Retrieval
		}
		if app.Agent != nil {
			svc.Agent = app.Agent
		}
		if app.Embedder != nil {
			svc.Embedder = app.Embedder
		}
		return svc, app.Close, nil
	})
	root.SetOut(os.Stdout)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}
