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

	"github.com/kirillkom/legal-case-rag/internal/bootstrap"
	"github.com/kirillkom/legal-case-rag/internal/config"
	"github.com/kirillkom/legal-case-rag/internal/core/domain"
	"github.com/kirillkom/legal-case-rag/internal/observability/logging"
	"github.com/kirillkom/legal-case-rag/internal/observability/metrics"
)

const jobTimeout = 30 * time.Minute

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.NewJSONLogger("worker", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics("worker")
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		Embedding:       true,
		Queue:           true,
		BreakerObserver: workerMetrics.ObserveBreaker,
	})
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("worker_metrics_listening", "addr", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		slog.Info("worker_subscribed", "subject", cfg.NATSSubject)
		return app.Queue.SubscribeEmbeddingJobs(gctx, func(handlerCtx context.Context, job domain.EmbeddingJob) error {
			if !job.RequestedAt.IsZero() {
				workerMetrics.ObserveQueueLag(time.Since(job.RequestedAt))
			}
			jobCtx, cancel := context.WithTimeout(handlerCtx, jobTimeout)
			defer cancel()

			workerMetrics.StartJob()
			started := time.Now()
			report, err := app.Embedder.EmbedCorpus(jobCtx, job)
			parts, chunks := 0, 0
			if report != nil {
				parts, chunks = report.Parts, report.Chunks
			}
			workerMetrics.FinishJob(time.Since(started), parts, chunks, err)
			return err
		})
	})
	if err := g.Wait(); err != nil {
		slog.Error("worker_failed", "error", err)
		os.Exit(1)
	}
	slog.Info("worker_stopped")
}
