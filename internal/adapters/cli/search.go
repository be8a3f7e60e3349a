package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kirillkom/legal-case-rag/internal/core/domain"
)

func (r *root) searchCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search the corpus",
	}
	cmd.PersistentFlags().IntVarP(&limit, "limit", "n", 3, "number of results")

	keyword := &cobra.Command{
		Use:   "keyword [query]",
		Short: "BM25 keyword search, printed as <results> XML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, release, err := r.services(cmd.Context(), Need{Retrieval: true})
			if err != nil {
				return err
			}
			defer release()
			out, err := svc.Retrieval.KeywordSearch(cmd.Context(), args[0], limit)
			if err != nil {
				return fmt.Errorf("keyword search: %w", err)
			}
			cmd.Println(out)
			return nil
		},
	}

	semantic := &cobra.Command{
		Use:   "semantic [query]",
		Short: "Dense vector search, printed as <results> XML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, release, err := r.services(cmd.Context(), Need{Retrieval: true})
			if err != nil {
				return err
			}
			defer release()
			out, err := svc.Retrieval.SemanticSearch(cmd.Context(), args[0], limit)
			if domain.IsKind(err, domain.ErrRetrieverUnavailable) {
				return errors.New("Semantic search not initialized")
			}
			if err != nil {
				return fmt.Errorf("semantic search: %w", err)
			}
			cmd.Println(out)
			return nil
		},
	}

	hybrid := &cobra.Command{
		Use:   "hybrid [query]",
		Short: "Reciprocal rank fusion of keyword and semantic results, printed as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, release, err := r.services(cmd.Context(), Need{Retrieval: true})
			if err != nil {
				return err
			}
			defer release()
			hits, err := svc.Retrieval.HybridSearch(cmd.Context(), args[0], limit)
			if err != nil {
				return fmt.Errorf("hybrid search: %w", err)
			}
			if hits == nil {
				hits = []domain.HybridHit{}
			}
			return printJSON(cmd, hits)
		},
	}

	cmd.AddCommand(keyword, semantic, hybrid)
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
