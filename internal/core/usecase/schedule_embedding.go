package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/legal-case-rag/internal/core/domain"
	"github.com/kirillkom/legal-case-rag/internal/core/ports"
)

type ScheduleEmbeddingUseCase struct {
	queue       ports.JobQueue
	defaultPath string
}

func NewScheduleEmbeddingUseCase(queue ports.JobQueue, defaultPath string) *ScheduleEmbeddingUseCase {
	return &ScheduleEmbeddingUseCase{queue: queue, defaultPath: defaultPath}
}

// Schedule publishes a job for corpusPath, or for the served corpus when
// corpusPath is blank.
func (uc *ScheduleEmbeddingUseCase) Schedule(ctx context.Context, corpusPath string) (*domain.EmbeddingJob, error) {
	path := strings.TrimSpace(corpusPath)
	if path == "" {
		path = uc.defaultPath
	}
	if path == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "schedule embedding", errors.New("corpus_path is required"))
	}

	job := domain.EmbeddingJob{
		ID:          uuid.NewString(),
		CorpusPath:  path,
		RequestedAt: time.Now().UTC(),
	}
	if err := uc.queue.PublishEmbeddingJob(ctx, job); err != nil {
		return nil, fmt.Errorf("publish embedding job: %w", err)
	}
	slog.Info("embedding_job_scheduled", "job_id", job.ID, "corpus_path", job.CorpusPath)
	return &job, nil
}
