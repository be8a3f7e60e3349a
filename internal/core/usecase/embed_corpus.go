package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/legal-case-rag/internal/core/domain"
	"github.com/kirillkom/legal-case-rag/internal/core/ports"
)

const defaultEmbedBatchSize = 16

// EmbedCorpusUseCase streams selected parts of a corpus file into the
// vector index: extract, chunk, embed in batches, upsert.
type EmbedCorpusUseCase struct {
	extractor ports.PartExtractor
	chunker   ports.Chunker
	embedder  ports.Embedder
	indexer   ports.VectorIndexer
	tags      []string
	batchSize int
}

func NewEmbedCorpusUseCase(
	extractor ports.PartExtractor,
	chunker ports.Chunker,
	embedder ports.Embedder,
	indexer ports.VectorIndexer,
	tags []string,
	batchSize int,
) *EmbedCorpusUseCase {
	if batchSize <= 0 {
		batchSize = defaultEmbedBatchSize
	}
	return &EmbedCorpusUseCase{
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		indexer:   indexer,
		tags:      tags,
		batchSize: batchSize,
	}
}

// EmbedCorpus returns a report even on failure; it counts what was indexed
// before the error.
func (uc *EmbedCorpusUseCase) EmbedCorpus(ctx context.Context, job domain.EmbeddingJob) (*domain.EmbeddingReport, error) {
	started := time.Now()
	report := &domain.EmbeddingReport{JobID: job.ID}
	if strings.TrimSpace(job.CorpusPath) == "" {
		return report, domain.WrapError(domain.ErrInvalidInput, "embed corpus", errors.New("corpus_path is required"))
	}

	pending := make([]domain.PartChunk, 0, uc.batchSize)
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		if err := uc.indexBatch(ctx, pending); err != nil {
			return err
		}
		report.Chunks += len(pending)
		pending = pending[:0]
		return nil
	}

	err := uc.extractor.ExtractParts(ctx, job.CorpusPath, uc.tags, func(part domain.CorpusPart) error {
		pieces := uc.chunker.Split(part.Markup)
		if len(pieces) == 0 {
			return nil
		}
		report.Parts++
		for i, piece := range pieces {
			pending = append(pending, domain.PartChunk{
				UnitID:     part.ID,
				Tag:        part.Tag,
				ChunkIndex: i,
				Text:       piece,
				Document:   part.Markup,
			})
			if len(pending) >= uc.batchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err == nil {
		err = flush()
	}
	if err == nil && report.Parts == 0 {
		err = domain.WrapError(domain.ErrInvalidInput, "embed corpus", fmt.Errorf("no parts tagged %s", strings.Join(uc.tags, ",")))
	}
	report.Duration = time.Since(started)

	if err != nil {
		slog.Error("corpus_embedding_failed",
			"job_id", job.ID,
			"corpus_path", job.CorpusPath,
			"parts", report.Parts,
			"chunks", report.Chunks,
			"error", err,
		)
		return report, fmt.Errorf("embed corpus: %w", err)
	}
	slog.Info("corpus_embedded",
		"job_id", job.ID,
		"corpus_path", job.CorpusPath,
		"parts", report.Parts,
		"chunks", report.Chunks,
		"duration_ms", report.Duration.Milliseconds(),
	)
	return report, nil
}

func (uc *EmbedCorpusUseCase) indexBatch(ctx context.Context, chunks []domain.PartChunk) error {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := uc.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return domain.WrapError(
			domain.ErrInvalidInput,
			"embed chunks",
			fmt.Errorf("vectors/chunks mismatch: %d/%d", len(vectors), len(chunks)),
		)
	}
	if err := uc.indexer.IndexChunks(ctx, chunks, vectors); err != nil {
		return fmt.Errorf("index chunks in vector db: %w", err)
	}
	return nil
}
