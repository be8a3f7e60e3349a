package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kirillkom/legal-case-rag/internal/core/domain"
)

type fakeGenerator struct {
	mu        sync.Mutex
	responses []string
	fallback  string
	err       error
	calls     [][]domain.ChatMessage
}

func (f *fakeGenerator) Chat(_ context.Context, messages []domain.ChatMessage) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]domain.ChatMessage(nil), messages...))
	if f.err != nil {
		return "", f.err
	}
	if len(f.responses) == 0 {
		return f.fallback, nil
	}
	out := f.responses[0]
	f.responses = f.responses[1:]
	return out, nil
}

type toolCallRecord struct {
	tool string
	arg  string
	n    int
	opts domain.ResolveOptions
}

type fakeRetrieval struct {
	calls    []toolCallRecord
	keyword  string
	semantic string
	parts    map[string]string
	denseErr error
}

func (f *fakeRetrieval) KeywordSearch(_ context.Context, query string, n int) (string, error) {
	f.calls = append(f.calls, toolCallRecord{tool: domain.ToolKeywordSearch, arg: query, n: n})
	return f.keyword, nil
}

func (f *fakeRetrieval) SemanticSearch(_ context.Context, query string, n int) (string, error) {
	f.calls = append(f.calls, toolCallRecord{tool: domain.ToolSemanticSearch, arg: query, n: n})
	if f.denseErr != nil {
		return "", f.denseErr
	}
	return f.semantic, nil
}

func (f *fakeRetrieval) ReadDocumentPart(_ context.Context, partID string, opts domain.ResolveOptions) (string, error) {
	f.calls = append(f.calls, toolCallRecord{tool: domain.ToolReadDocumentPart, arg: partID, opts: opts})
	out, ok := f.parts[partID]
	if !ok {
		return "", domain.WrapError(domain.ErrIdentifierNotFound, "resolve part", fmt.Errorf("%s", partID))
	}
	return out, nil
}

func (f *fakeRetrieval) HybridSearch(context.Context, string, int) ([]domain.HybridHit, error) {
	return nil, nil
}

type fakeJournal struct {
	runs []*domain.QueryRunResult
	err  error
}

func (f *fakeJournal) RecordRun(_ context.Context, run *domain.QueryRunResult) error {
	f.runs = append(f.runs, run)
	return f.err
}

type fakeAgentObserver struct {
	runs  []string
	tools []string
}

func (f *fakeAgentObserver) ObserveRun(termination string, turns int) {
	f.runs = append(f.runs, fmt.Sprintf("%s:%d", termination, turns))
}

func (f *fakeAgentObserver) ObserveToolCall(tool, status string, _ time.Duration) {
	f.tools = append(f.tools, tool+":"+status)
}

type fakeLexical struct {
	hits     []domain.ScoredResult
	snippets map[string]string
	lastK    int
}

func (f *fakeLexical) Search(_ string, k int) []domain.ScoredResult {
	f.lastK = k
	if len(f.hits) > k {
		return f.hits[:k]
	}
	return f.hits
}

func (f *fakeLexical) Snippet(id, _ string) string {
	return f.snippets[id]
}

type fakeResolver struct {
	out string
	err error
}

func (f *fakeResolver) Resolve(context.Context, string, domain.ResolveOptions) (string, error) {
	return f.out, f.err
}

type fakeDense struct {
	hits  []domain.DenseHit
	err   error
	lastN int
}

func (f *fakeDense) Search(_ context.Context, _ string, n int) ([]domain.DenseHit, error) {
	f.lastN = n
	if f.err != nil {
		return nil, f.err
	}
	if len(f.hits) > n {
		return f.hits[:n], nil
	}
	return f.hits, nil
}

type fakeRetrievalObserver struct {
	modes []string
}

func (f *fakeRetrievalObserver) ObserveRetrieval(mode string, results int, _ time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	f.modes = append(f.modes, fmt.Sprintf("%s:%d:%s", mode, results, status))
}
