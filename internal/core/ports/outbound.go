package ports

import (
	"context"
	"time"

	"github.com/kirillkom/legal-case-rag/internal/core/domain"
)

// LexicalSearcher ranks corpus units with BM25. Implementations are
// read-only after construction.
type LexicalSearcher interface {
	Search(query string, k int) []domain.ScoredResult
	Snippet(id, query string) string
}

// PartResolver returns the serialized subtree of the element with the given id.
type PartResolver interface {
	Resolve(ctx context.Context, id string, opts domain.ResolveOptions) (string, error)
}

// PartExtractor streams id-bearing elements with one of the given tag names.
type PartExtractor interface {
	ExtractParts(ctx context.Context, path string, tags []string, fn func(domain.CorpusPart) error) error
}

// DenseRetriever is the external vector-similarity collaborator.
type DenseRetriever interface {
	Search(ctx context.Context, query string, n int) ([]domain.DenseHit, error)
}

// Generator runs one chat generation round.
type Generator interface {
	Chat(ctx context.Context, messages []domain.ChatMessage) (string, error)
}

// Embedder builds vectors for part chunks.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Chunker splits long markup into embeddable pieces.
type Chunker interface {
	Split(text string) []string
}

// VectorIndexer writes part chunks into the dense index.
type VectorIndexer interface {
	IndexChunks(ctx context.Context, chunks []domain.PartChunk, vectors [][]float32) error
}

// JobQueue publishes/consumes embedding jobs.
type JobQueue interface {
	PublishEmbeddingJob(ctx context.Context, job domain.EmbeddingJob) error
	SubscribeEmbeddingJobs(ctx context.Context, handler func(context.Context, domain.EmbeddingJob) error) error
}

// RunJournal keeps an audit trail of finished orchestration runs.
type RunJournal interface {
	RecordRun(ctx context.Context, run *domain.QueryRunResult) error
}

// RetrievalObserver receives one measurement per retrieval call.
type RetrievalObserver interface {
	ObserveRetrieval(mode string, results int, duration time.Duration, err error)
}

// AgentObserver receives orchestration measurements.
type AgentObserver interface {
	ObserveRun(termination string, turns int)
	ObserveToolCall(tool, status string, duration time.Duration)
}

// RunLookup reads journaled runs back.
type RunLookup interface {
	GetRun(ctx context.Context, id string) (*domain.QueryRunResult, error)
	ListRuns(ctx context.Context, limit int) ([]domain.QueryRunResult, error)
}
