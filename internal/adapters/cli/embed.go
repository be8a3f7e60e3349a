package cli

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kirillkom/legal-case-rag/internal/core/domain"
)

func (r *root) embedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "embed",
		Short: "Embed the corpus parts into the vector index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, release, err := r.services(cmd.Context(), Need{Embedding: true})
			if err != nil {
				return err
			}
			defer release()
			job := domain.EmbeddingJob{
				ID:          uuid.NewString(),
				CorpusPath:  svc.CorpusPath,
				RequestedAt: time.Now().UTC(),
			}
			report, err := svc.Embedder.EmbedCorpus(cmd.Context(), job)
			if report != nil {
				cmd.Printf("parts=%d chunks=%d duration=%s\n", report.Parts, report.Chunks, report.Duration.Round(time.Millisecond))
			}
			if err != nil {
				return fmt.Errorf("embed: %w", err)
			}
			return nil
		},
	}
}
