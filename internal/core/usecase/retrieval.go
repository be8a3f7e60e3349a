package usecase

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/kirillkom/legal-case-rag/internal/core/domain"
	"github.com/kirillkom/legal-case-rag/internal/core/ports"
)

const (
	defaultTopN  = 3
	maxTopN      = 100
	defaultRRFK  = 60
	hybridFanout = 3
)

type RetrievalOptions struct {
	DefaultTopN int
	RRFK        int
	Observer    ports.RetrievalObserver
}

// RetrievalUseCase serves the three retrieval tools plus hybrid fusion.
// dense may be nil; semantic calls then fail with ErrRetrieverUnavailable.
type RetrievalUseCase struct {
	lexical  ports.LexicalSearcher
	resolver ports.PartResolver
	dense    ports.DenseRetriever
	opts     RetrievalOptions
}

func NewRetrievalUseCase(
	lexical ports.LexicalSearcher,
	resolver ports.PartResolver,
	dense ports.DenseRetriever,
	opts RetrievalOptions,
) *RetrievalUseCase {
	if opts.DefaultTopN <= 0 {
		opts.DefaultTopN = defaultTopN
	}
	if opts.RRFK <= 0 {
		opts.RRFK = defaultRRFK
	}
	return &RetrievalUseCase{
		lexical:  lexical,
		resolver: resolver,
		dense:    dense,
		opts:     opts,
	}
}

// DenseAvailable reports whether semantic search can be served.
func (uc *RetrievalUseCase) DenseAvailable() bool {
	return uc.dense != nil
}

func (uc *RetrievalUseCase) KeywordSearch(ctx context.Context, query string, n int) (string, error) {
	started := time.Now()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	hits := uc.lexical.Search(query, uc.topN(n))
	out := RenderLexicalResults(hits, func(id string) string {
		return uc.lexical.Snippet(id, query)
	})
	uc.observe(domain.ToolKeywordSearch, len(hits), started, nil)
	return out, nil
}

func (uc *RetrievalUseCase) SemanticSearch(ctx context.Context, query string, n int) (string, error) {
	started := time.Now()
	hits, err := uc.denseSearch(ctx, query, uc.topN(n))
	uc.observe(domain.ToolSemanticSearch, len(hits), started, err)
	if err != nil {
		return "", err
	}
	return RenderDenseResults(hits), nil
}

func (uc *RetrievalUseCase) ReadDocumentPart(ctx context.Context, partID string, opts domain.ResolveOptions) (string, error) {
	started := time.Now()
	out, err := uc.resolver.Resolve(ctx, partID, opts)
	results := 0
	if err == nil {
		results = 1
	}
	uc.observe(domain.ToolReadDocumentPart, results, started, err)
	return out, err
}

// HybridSearch fuses lexical and dense rankings with reciprocal rank fusion.
// When the dense retriever is missing the lexical ranking is returned alone.
func (uc *RetrievalUseCase) HybridSearch(ctx context.Context, query string, n int) ([]domain.HybridHit, error) {
	started := time.Now()
	n = uc.topN(n)
	candidates := n * hybridFanout

	lexical := uc.lexical.Search(query, candidates)
	var dense []domain.DenseHit
	if uc.dense != nil {
		var err error
		dense, err = uc.denseSearch(ctx, query, candidates)
		if err != nil {
			uc.observe("hybrid", 0, started, err)
			return nil, err
		}
	}

	fused := fuseRRF(lexical, dense, uc.opts.RRFK)
	if len(fused) > n {
		fused = fused[:n]
	}
	for i := range fused {
		fused[i].Snippet = uc.lexical.Snippet(fused[i].ID, query)
	}
	uc.observe("hybrid", len(fused), started, nil)
	return fused, nil
}

func (uc *RetrievalUseCase) denseSearch(ctx context.Context, query string, n int) ([]domain.DenseHit, error) {
	if uc.dense == nil {
		return nil, domain.WrapError(domain.ErrRetrieverUnavailable, "semantic search", fmt.Errorf("dense retriever is disabled"))
	}
	hits, err := uc.dense.Search(ctx, query, n)
	if err != nil {
		return nil, fmt.Errorf("semantic search: %w", err)
	}
	return hits, nil
}

// topN applies the default for n <= 0 and caps model-supplied counts.
func (uc *RetrievalUseCase) topN(n int) int {
	switch {
	case n <= 0:
		return uc.opts.DefaultTopN
	case n > maxTopN:
		return maxTopN
	}
	return n
}

func (uc *RetrievalUseCase) observe(mode string, results int, started time.Time, err error) {
	if uc.opts.Observer == nil {
		return
	}
	uc.opts.Observer.ObserveRetrieval(mode, results, time.Since(started), err)
}

// RenderLexicalResults writes the keyword search wire format. Scores have
// three decimals and snippets have &, < and > escaped.
func RenderLexicalResults(hits []domain.ScoredResult, snippet func(id string) string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<results num=\"%d\">", len(hits))
	for _, hit := range hits {
		fmt.Fprintf(&b, "\n  <result id=\"%s\" score=\"%.3f\">", escapeAttr(hit.ID), hit.Score)
		b.WriteString("\n    ")
		b.WriteString(escapeText(snippet(hit.ID)))
		b.WriteString("\n  </result>")
	}
	b.WriteString("\n</results>")
	return b.String()
}

// RenderDenseResults writes the semantic search wire format. A fragment
// that is well-formed XML content is embedded as markup; anything else is
// escaped and embedded as text.
func RenderDenseResults(hits []domain.DenseHit) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<results num=\"%d\">", len(hits))
	for _, hit := range hits {
		fmt.Fprintf(&b, "<result id=\"%s\" score=\"%.3f\">", escapeAttr(hit.ID), hit.Score)
		if isXMLContent(hit.Fragment) {
			b.WriteString(hit.Fragment)
		} else {
			b.WriteString(escapeText(hit.Fragment))
		}
		b.WriteString("</result>")
	}
	b.WriteString("</results>")
	return b.String()
}

// isXMLContent reports whether fragment parses as balanced element content.
// Chunks cut out of longer markup usually do not.
func isXMLContent(fragment string) bool {
	if !strings.Contains(fragment, "<") {
		return false
	}
	dec := xml.NewDecoder(strings.NewReader("<root>" + fragment + "</root>"))
	depth := 0
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return depth == 0
		}
		if err != nil {
			return false
		}
		switch tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
		case xml.ProcInst, xml.Directive:
			// A declaration or doctype cannot appear inside an element.
			return false
		}
	}
}

var (
	textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	attrEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
)

func escapeText(s string) string { return textEscaper.Replace(s) }
func escapeAttr(s string) string { return attrEscaper.Replace(s) }

type fusedCandidate struct {
	hit   domain.HybridHit
	order int
}

func fuseRRF(lexical []domain.ScoredResult, dense []domain.DenseHit, rrfK int) []domain.HybridHit {
	if rrfK <= 0 {
		rrfK = defaultRRFK
	}

	acc := make(map[string]*fusedCandidate, len(lexical)+len(dense))
	get := func(id string) *fusedCandidate {
		c, ok := acc[id]
		if !ok {
			c = &fusedCandidate{hit: domain.HybridHit{ID: id}, order: len(acc)}
			acc[id] = c
		}
		return c
	}
	for rank, hit := range lexical {
		c := get(hit.ID)
		c.hit.LexicalRank = rank + 1
		c.hit.Score += 1.0 / float64(rrfK+rank+1)
	}
	for rank, hit := range dense {
		c := get(hit.ID)
		if c.hit.SemanticRank != 0 {
			continue
		}
		c.hit.SemanticRank = rank + 1
		c.hit.Score += 1.0 / float64(rrfK+rank+1)
	}

	ordered := make([]*fusedCandidate, 0, len(acc))
	for _, c := range acc {
		ordered = append(ordered, c)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].hit.Score != ordered[j].hit.Score {
			return ordered[i].hit.Score > ordered[j].hit.Score
		}
		return ordered[i].order < ordered[j].order
	})

	out := make([]domain.HybridHit, len(ordered))
	for i, c := range ordered {
		out[i] = c.hit
	}
	return out
}
