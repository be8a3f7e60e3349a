package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/legal-case-rag/internal/config"
	"github.com/kirillkom/legal-case-rag/internal/core/ports"
	"github.com/kirillkom/legal-case-rag/internal/core/usecase"
	"github.com/kirillkom/legal-case-rag/internal/infrastructure/chunking"
	"github.com/kirillkom/legal-case-rag/internal/infrastructure/corpus"
	"github.com/kirillkom/legal-case-rag/internal/infrastructure/lexical"
	"github.com/kirillkom/legal-case-rag/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/legal-case-rag/internal/infrastructure/queue/nats"
	"github.com/kirillkom/legal-case-rag/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/legal-case-rag/internal/infrastructure/resilience"
	"github.com/kirillkom/legal-case-rag/internal/infrastructure/vector/qdrant"
	"github.com/kirillkom/legal-case-rag/internal/infrastructure/xmlpart"
)

const denseProbeTimeout = 5 * time.Second

// Options selects the collaborators a binary needs. Observers are optional.
type Options struct {
	Retrieval bool // corpus index, resolver and dense retriever
	Agent     bool // orchestrator; implies Retrieval
	Embedding bool // extractor, chunker and vector indexer
	Queue     bool // NATS job queue
	Journal   bool // postgres run journal when POSTGRES_DSN is set

	BreakerObserver   func(operation, state string)
	RetrievalObserver ports.RetrievalObserver
	AgentObserver     ports.AgentObserver
}

type App struct {
	Config config.Config

	Retrieval *usecase.RetrievalUseCase
	Agent     *usecase.Orchestrator
	Embedder  *usecase.EmbedCorpusUseCase
	Scheduler *usecase.ScheduleEmbeddingUseCase
	Queue     ports.JobQueue
	Runs      ports.RunLookup

	closers []func()
}

func New(ctx context.Context, cfg config.Config, opts Options) (_ *App, err error) {
	app := &App{Config: cfg}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	if opts.Agent {
		opts.Retrieval = true
	}

	newExecutor := func() *resilience.Executor {
		rc := cfg.Resilience()
		rc.StateObserver = opts.BreakerObserver
		return resilience.NewExecutor(rc)
	}

	ollamaClient := ollama.NewWithOptions(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, ollama.Options{
		Generation: ollama.GenerationOptions{
			Temperature: cfg.OllamaTemperature,
			TopP:        cfg.OllamaTopP,
			NumPredict:  cfg.OllamaNumPredict,
		},
		Timeout:            time.Duration(cfg.AgentGenerationTimeoutSeconds) * time.Second,
		ResilienceExecutor: newExecutor(),
	})
	embedder := ollama.NewEmbedder(ollamaClient)
	vectorDB := qdrant.NewWithOptions(cfg.QdrantURL, cfg.QdrantCollection, qdrant.Options{
		Distance:           cfg.QdrantDistance,
		ResilienceExecutor: newExecutor(),
	})

	var journal ports.RunJournal
	if opts.Journal && cfg.PostgresDSN != "" {
		db, err := postgres.OpenDB(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		app.closers = append(app.closers, func() { _ = db.Close() })
		repo, err := runRepository(ctx, db)
		if err != nil {
			return nil, err
		}
		journal = repo
		app.Runs = repo
	}

	if opts.Queue {
		queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			Name:               "legal-case-rag",
			ResilienceExecutor: newExecutor(),
		})
		if err != nil {
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		app.closers = append(app.closers, queue.Close)
		app.Queue = queue
		app.Scheduler = usecase.NewScheduleEmbeddingUseCase(queue, cfg.CorpusPath)
	}

	if opts.Embedding {
		app.Embedder = usecase.NewEmbedCorpusUseCase(
			xmlpart.NewExtractor(),
			chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap),
			embedder,
			vectorDB,
			cfg.PartTags(),
			cfg.EmbedBatchSize,
		)
	}

	if !opts.Retrieval {
		return app, nil
	}

	searcher, err := lexical.Open(ctx, cfg.CorpusPath, corpus.LoadUnits,
		lexical.Params{K1: cfg.BM25K1, B: cfg.BM25B}, cfg.SnippetWindow)
	if err != nil {
		return nil, fmt.Errorf("build lexical index: %w", err)
	}

	app.Retrieval = usecase.NewRetrievalUseCase(
		searcher,
		xmlpart.NewResolver(cfg.CorpusPath),
		denseRetriever(ctx, cfg, embedder, vectorDB),
		usecase.RetrievalOptions{
			DefaultTopN: cfg.AgentDefaultTopN,
			Observer:    opts.RetrievalObserver,
		},
	)

	if opts.Agent {
		app.Agent = usecase.NewOrchestrator(
			app.Retrieval,
			ollama.NewChatGenerator(ollamaClient),
			cfg.AgentLimits(),
			usecase.OrchestratorOptions{
				Journal:  journal,
				Observer: opts.AgentObserver,
			},
		)
	}
	return app, nil
}

func runRepository(ctx context.Context, db *sql.DB) (*postgres.RunRepository, error) {
	repo := postgres.NewRunRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return repo, nil
}

// denseRetriever returns nil when semantic search is disabled or the vector
// collection cannot be reached at startup; retrieval then runs lexical only.
func denseRetriever(ctx context.Context, cfg config.Config, embedder *ollama.Embedder, client *qdrant.Client) ports.DenseRetriever {
	if !cfg.DenseEnabled {
		slog.Info("semantic_search_disabled", "reason", "disabled by config")
		return nil
	}
	probeCtx, cancel := context.WithTimeout(ctx, denseProbeTimeout)
	defer cancel()
	if err := client.Probe(probeCtx); err != nil {
		slog.Warn("semantic_search_disabled",
			"reason", "vector collection unreachable",
			"collection", cfg.QdrantCollection,
			"error", err,
		)
		return nil
	}
	return qdrant.NewRetriever(embedder, client)
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
