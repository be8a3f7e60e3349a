package qdrant

import (
	"context"
	"fmt"
	"strings"

	"github.com/kirillkom/legal-case-rag/internal/core/domain"
)

// chunkFanout widens the point search so that units split into several
// chunks still yield n distinct ids.
const chunkFanout = 3

// maxSearchResults caps n so the point limit stays bounded.
const maxSearchResults = 1000

type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Retriever answers dense queries by embedding the query and searching the
// collection. Hits are collapsed to one per unit, keeping the best score.
type Retriever struct {
	embedder QueryEmbedder
	client   *Client
}

func NewRetriever(embedder QueryEmbedder, client *Client) *Retriever {
	return &Retriever{embedder: embedder, client: client}
}

func (r *Retriever) Search(ctx context.Context, query string, n int) ([]domain.DenseHit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "dense search", fmt.Errorf("query is required"))
	}
	if n <= 0 {
		return nil, nil
	}
	if n > maxSearchResults {
		n = maxSearchResults
	}

	vector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := r.client.SearchVector(ctx, vector, n*chunkFanout)
	if err != nil {
		return nil, fmt.Errorf("search vectors: %w", err)
	}

	out := make([]domain.DenseHit, 0, min(n, len(hits)))
	seen := make(map[string]struct{}, len(hits))
	for _, h := range hits {
		if h.ID == "" {
			continue
		}
		if _, ok := seen[h.ID]; ok {
			continue
		}
		seen[h.ID] = struct{}{}
		out = append(out, h)
		if len(out) == n {
			break
		}
	}
	return out, nil
}
