package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/legal-case-rag/internal/core/domain"
)

func TestKeywordSearchRendersWireFormat(t *testing.T) {
	lex := &fakeLexical{
		hits: []domain.ScoredResult{
			{ID: "Case1.Facts.p2", Score: 1.23456, Rank: 1},
			{ID: "Case1.Facts.p1", Score: 0.5, Rank: 2},
		},
		snippets: map[string]string{
			"Case1.Facts.p2": "Smith & Jones <appeal> ...",
			"Case1.Facts.p1": "The motion was denied.",
		},
	}
	obs := &fakeRetrievalObserver{}
	uc := NewRetrievalUseCase(lex, &fakeResolver{}, nil, RetrievalOptions{Observer: obs})

	out, err := uc.KeywordSearch(context.Background(), "appeal", 0)
	if err != nil {
		t.Fatalf("KeywordSearch() error = %v", err)
	}
	want := `<results num="2">
  <result id="Case1.Facts.p2" score="1.235">
    Smith &amp; Jones &lt;appeal&gt; ...
  </result>
  <result id="Case1.Facts.p1" score="0.500">
    The motion was denied.
  </result>
</results>`
	if out != want {
		t.Fatalf("unexpected output:\n%s\nwant:\n%s", out, want)
	}
	if lex.lastK != 3 {
		t.Fatalf("n<=0 should use the default of 3, got %d", lex.lastK)
	}
	if len(obs.modes) != 1 || obs.modes[0] != "keyword_search:2:ok" {
		t.Fatalf("unexpected observations %v", obs.modes)
	}
}

func TestKeywordSearchWithoutHits(t *testing.T) {
	uc := NewRetrievalUseCase(&fakeLexical{}, &fakeResolver{}, nil, RetrievalOptions{})
	out, err := uc.KeywordSearch(context.Background(), "x", 5)
	if err != nil {
		t.Fatalf("KeywordSearch() error = %v", err)
	}
	if out != "<results num=\"0\">\n</results>" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestSemanticSearchEmbedsMarkupAndEscapesText(t *testing.T) {
	dense := &fakeDense{hits: []domain.DenseHit{
		{ID: "Case1.Facts.p1", Score: 0.91234, Fragment: `<Paragraph id="Case1.Facts.p1">held <b>that</b></Paragraph>`},
		{ID: "p9", Score: 0.5, Fragment: "a < b & c"},
		{ID: "p10", Score: 0.25, Fragment: "<open>unclosed"},
	}}
	uc := NewRetrievalUseCase(&fakeLexical{}, &fakeResolver{}, dense, RetrievalOptions{})

	out, err := uc.SemanticSearch(context.Background(), "holding", 3)
	if err != nil {
		t.Fatalf("SemanticSearch() error = %v", err)
	}
	want := `<results num="3">` +
		`<result id="Case1.Facts.p1" score="0.912"><Paragraph id="Case1.Facts.p1">held <b>that</b></Paragraph></result>` +
		`<result id="p9" score="0.500">a &lt; b &amp; c</result>` +
		`<result id="p10" score="0.250">&lt;open&gt;unclosed</result>` +
		`</results>`
	if out != want {
		t.Fatalf("unexpected output:\n%s\nwant:\n%s", out, want)
	}
}

func TestSemanticSearchUnavailableWithoutRetriever(t *testing.T) {
	obs := &fakeRetrievalObserver{}
	uc := NewRetrievalUseCase(&fakeLexical{}, &fakeResolver{}, nil, RetrievalOptions{Observer: obs})
	if uc.DenseAvailable() {
		t.Fatalf("dense should be unavailable")
	}
	if _, err := uc.SemanticSearch(context.Background(), "q", 3); !domain.IsKind(err, domain.ErrRetrieverUnavailable) {
		t.Fatalf("expected ErrRetrieverUnavailable, got %v", err)
	}
	if obs.modes[0] != "semantic_search:0:error" {
		t.Fatalf("unexpected observations %v", obs.modes)
	}
}

func TestSemanticSearchPropagatesRetrieverErrors(t *testing.T) {
	uc := NewRetrievalUseCase(&fakeLexical{}, &fakeResolver{}, &fakeDense{err: errors.New("qdrant down")}, RetrievalOptions{})
	if _, err := uc.SemanticSearch(context.Background(), "q", 3); err == nil {
		t.Fatalf("expected error")
	}
}

func TestReadDocumentPartPassesThroughResolver(t *testing.T) {
	uc := NewRetrievalUseCase(&fakeLexical{}, &fakeResolver{out: "<Votes/>\n"}, nil, RetrievalOptions{})
	out, err := uc.ReadDocumentPart(context.Background(), "votes", domain.ResolveOptions{})
	if err != nil || out != "<Votes/>\n" {
		t.Fatalf("unexpected result %q %v", out, err)
	}

	uc = NewRetrievalUseCase(&fakeLexical{}, &fakeResolver{err: domain.ErrIdentifierNotFound}, nil, RetrievalOptions{})
	if _, err := uc.ReadDocumentPart(context.Background(), "nope", domain.ResolveOptions{}); !domain.IsKind(err, domain.ErrIdentifierNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestHybridSearchFusesWithRRF(t *testing.T) {
	lex := &fakeLexical{
		hits: []domain.ScoredResult{
			{ID: "a", Score: 3}, {ID: "b", Score: 2}, {ID: "c", Score: 1},
		},
		snippets: map[string]string{"b": "snippet b"},
	}
	dense := &fakeDense{hits: []domain.DenseHit{
		{ID: "b", Score: 0.9}, {ID: "d", Score: 0.8}, {ID: "b", Score: 0.7},
	}}
	uc := NewRetrievalUseCase(lex, &fakeResolver{}, dense, RetrievalOptions{})

	hits, err := uc.HybridSearch(context.Background(), "q", 2)
	if err != nil {
		t.Fatalf("HybridSearch() error = %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %+v", hits)
	}
	if hits[0].ID != "b" || hits[0].LexicalRank != 2 || hits[0].SemanticRank != 1 || hits[0].Snippet != "snippet b" {
		t.Fatalf("expected b first with both ranks, got %+v", hits[0])
	}
	if hits[1].ID != "a" {
		t.Fatalf("expected a second, got %+v", hits[1])
	}
	if lex.lastK != 6 || dense.lastN != 6 {
		t.Fatalf("expected candidate fanout of 6, got lexical=%d dense=%d", lex.lastK, dense.lastN)
	}
}

func TestHybridSearchFallsBackToLexicalOnly(t *testing.T) {
	lex := &fakeLexical{hits: []domain.ScoredResult{{ID: "a", Score: 1}, {ID: "b", Score: 0.5}}}
	uc := NewRetrievalUseCase(lex, &fakeResolver{}, nil, RetrievalOptions{})
	hits, err := uc.HybridSearch(context.Background(), "q", 5)
	if err != nil {
		t.Fatalf("HybridSearch() error = %v", err)
	}
	if len(hits) != 2 || hits[0].ID != "a" || hits[0].SemanticRank != 0 {
		t.Fatalf("unexpected hits %+v", hits)
	}
}

func TestIsXMLContent(t *testing.T) {
	cases := map[string]bool{
		"<p>x</p>":                        true,
		"lead <b>x</b> tail":              true,
		"<a/><b/>":                        true,
		"plain text":                      false,
		"<a>":                             false,
		"<a><b>x</a>":                     false,
		"</a>":                            false,
		`<Paragraph id="p1">held <b>that`: false,
		`<?xml version="1.0"?><a/>`:       false,
	}
	for in, want := range cases {
		if got := isXMLContent(in); got != want {
			t.Fatalf("isXMLContent(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestRenderDenseResultsEscapesUnbalancedChunks(t *testing.T) {
	out := RenderDenseResults([]domain.DenseHit{{ID: "p1", Score: 0.5, Fragment: `<Paragraph id="p1">held <b>that`}})
	want := `<results num="1"><result id="p1" score="0.500">&lt;Paragraph id="p1"&gt;held &lt;b&gt;that</result></results>`
	if out != want {
		t.Fatalf("unexpected output:\n%s\nwant:\n%s", out, want)
	}
	if !isXMLContent(out) {
		t.Fatalf("rendered results are not well-formed: %s", out)
	}
}

func TestSearchCapsResultCount(t *testing.T) {
	dense := &fakeDense{}
	uc := NewRetrievalUseCase(&fakeLexical{}, &fakeResolver{}, dense, RetrievalOptions{})

	if _, err := uc.SemanticSearch(context.Background(), "x", 1_000_000_000_000_000); err != nil {
		t.Fatalf("SemanticSearch() error = %v", err)
	}
	if dense.lastN != maxTopN {
		t.Fatalf("expected n capped at %d, got %d", maxTopN, dense.lastN)
	}

	if _, err := uc.HybridSearch(context.Background(), "x", 1_000_000_000_000_000); err != nil {
		t.Fatalf("HybridSearch() error = %v", err)
	}
	if dense.lastN != maxTopN*hybridFanout {
		t.Fatalf("expected hybrid candidates %d, got %d", maxTopN*hybridFanout, dense.lastN)
	}
}
