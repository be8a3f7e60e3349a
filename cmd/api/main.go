package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	httpadapter "github.com/kirillkom/legal-case-rag/internal/adapters/http"
	"github.com/kirillkom/legal-case-rag/internal/bootstrap"
	"github.com/kirillkom/legal-case-rag/internal/config"
	"github.com/kirillkom/legal-case-rag/internal/observability/logging"
	"github.com/kirillkom/legal-case-rag/internal/observability/metrics"
)

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.NewJSONLogger("api", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpMetrics := metrics.NewHTTPServerMetrics("api")
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		Agent:             true,
		Queue:             true,
		Journal:           true,
		BreakerObserver:   httpMetrics.ObserveBreaker,
		RetrievalObserver: httpMetrics,
		AgentObserver:     httpMetrics,
	})
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	opts := httpadapter.RouterOptions{Metrics: httpMetrics, Runs: app.Runs}
	if app.Scheduler != nil {
		opts.Scheduler = app.Scheduler
	}
	handler, err := httpadapter.NewRouter(cfg, app.Retrieval, app.Agent, opts).Handler()
	if err != nil {
		slog.Error("router_init_failed", "error", err)
		os.Exit(1)
	}

	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.AgentRunTimeout(),
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("api_listening", "addr", server.Addr, "corpus_path", cfg.CorpusPath, "dense_available", app.Retrieval.DenseAvailable())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		slog.Error("api_server_failed", "error", err)
		os.Exit(1)
	}
	slog.Info("api_stopped")
}
