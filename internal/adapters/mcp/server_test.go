package mcpadapter

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kirillkom/legal-case-rag/internal/core/domain"
)

type fakeRetrieval struct {
	query string
	n     int
	opts  domain.ResolveOptions
	err   error
}

func (f *fakeRetrieval) KeywordSearch(_ context.Context, query string, n int) (string, error) {
	f.query, f.n = query, n
	return `<results num="0"></results>`, f.err
}

func (f *fakeRetrieval) SemanticSearch(_ context.Context, query string, n int) (string, error) {
	f.query, f.n = query, n
	if f.err != nil {
		return "", f.err
	}
	return `<results num="0"></results>`, nil
}

func (f *fakeRetrieval) ReadDocumentPart(_ context.Context, partID string, opts domain.ResolveOptions) (string, error) {
	f.query, f.opts = partID, opts
	if f.err != nil {
		return "", f.err
	}
	return `<p id="` + partID + `">x</p>`, nil
}

func (f *fakeRetrieval) HybridSearch(context.Context, string, int) ([]domain.HybridHit, error) {
	return nil, nil
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) != 1 {
		t.Fatalf("expected one content item, got %+v", res.Content)
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", res.Content[0])
	}
	return text.Text
}

func TestKeywordSearchToolDefaultsN(t *testing.T) {
	retrieval := &fakeRetrieval{}
	s := NewServer(retrieval, 3)

	res, err := s.keywordSearch(context.Background(), callRequest(domain.ToolKeywordSearch, map[string]any{"query": "habeas"}))
	if err != nil {
		t.Fatalf("keywordSearch() error = %v", err)
	}
	if res.IsError || !strings.HasPrefix(resultText(t, res), "<results") {
		t.Fatalf("unexpected result %+v", res)
	}
	if retrieval.query != "habeas" || retrieval.n != 3 {
		t.Fatalf("unexpected call %+v", retrieval)
	}

	if _, err := s.keywordSearch(context.Background(), callRequest(domain.ToolKeywordSearch, map[string]any{"query": "x", "n": float64(7)})); err != nil {
		t.Fatalf("keywordSearch() error = %v", err)
	}
	if retrieval.n != 7 {
		t.Fatalf("expected n=7, got %d", retrieval.n)
	}
}

func TestToolsReportMissingArgumentsAsToolErrors(t *testing.T) {
	s := NewServer(&fakeRetrieval{}, 3)

	res, err := s.semanticSearch(context.Background(), callRequest(domain.ToolSemanticSearch, map[string]any{}))
	if err != nil || !res.IsError {
		t.Fatalf("expected tool error result, got %+v / %v", res, err)
	}
	res, err = s.readDocumentPart(context.Background(), callRequest(domain.ToolReadDocumentPart, map[string]any{"part_id": " "}))
	if err != nil || !res.IsError {
		t.Fatalf("expected tool error result, got %+v / %v", res, err)
	}
}

func TestSemanticSearchUnavailable(t *testing.T) {
	s := NewServer(&fakeRetrieval{err: domain.WrapError(domain.ErrRetrieverUnavailable, "semantic search", errors.New("disabled"))}, 3)

	res, err := s.semanticSearch(context.Background(), callRequest(domain.ToolSemanticSearch, map[string]any{"query": "x"}))
	if err != nil {
		t.Fatalf("semanticSearch() error = %v", err)
	}
	if !res.IsError || resultText(t, res) != "Semantic search not initialized" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestReadDocumentPartToolOptions(t *testing.T) {
	retrieval := &fakeRetrieval{}
	s := NewServer(retrieval, 3)

	res, err := s.readDocumentPart(context.Background(), callRequest(domain.ToolReadDocumentPart, map[string]any{"part_id": "Case1.Facts.p1"}))
	if err != nil || res.IsError {
		t.Fatalf("unexpected result %+v / %v", res, err)
	}
	if !retrieval.opts.Wrap || retrieval.opts.Stream {
		t.Fatalf("expected wrap default on and stream off, got %+v", retrieval.opts)
	}

	_, _ = s.readDocumentPart(context.Background(), callRequest(domain.ToolReadDocumentPart, map[string]any{"part_id": "x", "wrap": false, "stream": true}))
	if retrieval.opts.Wrap || !retrieval.opts.Stream {
		t.Fatalf("options not applied: %+v", retrieval.opts)
	}

	retrieval.err = domain.WrapError(domain.ErrIdentifierNotFound, "resolve part", errors.New("x"))
	res, _ = s.readDocumentPart(context.Background(), callRequest(domain.ToolReadDocumentPart, map[string]any{"part_id": "x"}))
	if !res.IsError || !strings.Contains(resultText(t, res), "part_id not found") {
		t.Fatalf("unexpected not-found result %+v", res)
	}
}

func TestServerListsRetrievalTools(t *testing.T) {
	s := NewServer(&fakeRetrieval{}, 0)
	tools := s.MCPServer().ListTools()
	for _, name := range []string{domain.ToolKeywordSearch, domain.ToolSemanticSearch, domain.ToolReadDocumentPart} {
		if _, ok := tools[name]; !ok {
			t.Fatalf("tool %s not registered", name)
		}
	}
}
