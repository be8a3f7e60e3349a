package lexical

import (
	"context"
	"log/slog"
	"time"

	"github.com/kirillkom/legal-case-rag/internal/core/domain"
)

type UnitLoader func(ctx context.Context, path string) ([]domain.SearchableUnit, error)

// Searcher serves BM25 queries and snippets over one index.
type Searcher struct {
	index  *Index
	window int
}

func NewSearcher(index *Index, window int) *Searcher {
	if window <= 0 {
		window = DefaultSnippetWindow
	}
	return &Searcher{index: index, window: window}
}

// Open loads the corpus at path and builds the index once.
func Open(ctx context.Context, path string, load UnitLoader, params Params, window int) (*Searcher, error) {
	started := time.Now()
	units, err := load(ctx, path)
	if err != nil {
		return nil, err
	}
	idx := Build(units, params)
	slog.Info("lexical_index_built",
		"path", path,
		"units", idx.Len(),
		"terms", len(idx.df),
		"avg_len", idx.AverageLength(),
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return NewSearcher(idx, window), nil
}

func (s *Searcher) Index() *Index { return s.index }

func (s *Searcher) Search(query string, k int) []domain.ScoredResult {
	return s.index.Search(query, k)
}

func (s *Searcher) Snippet(id, query string) string {
	text, ok := s.index.Text(id)
	if !ok {
		return ""
	}
	return Snippet(text, query, s.window)
}
