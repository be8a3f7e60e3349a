package ports

import (
	"context"

	"github.com/kirillkom/legal-case-rag/internal/core/domain"
)

// RetrievalService is the inbound contract for the three retrieval tools.
// Results are rendered in their wire formats.
type RetrievalService interface {
	KeywordSearch(ctx context.Context, query string, n int) (string, error)
	SemanticSearch(ctx context.Context, query string, n int) (string, error)
	ReadDocumentPart(ctx context.Context, partID string, opts domain.ResolveOptions) (string, error)
	HybridSearch(ctx context.Context, query string, n int) ([]domain.HybridHit, error)
}

// QueryOrchestrator drives one user query through the tool loop.
type QueryOrchestrator interface {
	Run(ctx context.Context, req domain.QueryRequest) (*domain.QueryRunResult, error)
}

// EmbeddingScheduler enqueues corpus embedding jobs.
type EmbeddingScheduler interface {
	Schedule(ctx context.Context, corpusPath string) (*domain.EmbeddingJob, error)
}

// CorpusEmbedder executes an embedding job.
type CorpusEmbedder interface {
	EmbedCorpus(ctx context.Context, job domain.EmbeddingJob) (*domain.EmbeddingReport, error)
}
