package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, err := io.ReadAll(rec.Result().Body)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	return string(body)
}

func TestHTTPMiddlewareNormalizesPartPaths(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	for _, path := range []string{"/v1/parts/Case1.Facts.p1", "/v1/parts/Decision1"} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	out := scrape(t, m.Handler())
	want := `lcr_http_requests_total{method="GET",path="/v1/parts/{part_id}",service="api",status="404"} 2`
	if !strings.Contains(out, want) {
		t.Fatalf("expected %q in:\n%s", want, out)
	}
	if strings.Contains(out, "Decision1") {
		t.Fatalf("raw part id leaked into labels:\n%s", out)
	}
}

func TestHTTPServerMetricsRecordsRetrievalAndAgent(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	m.ObserveRetrieval("keyword", 3, 10*time.Millisecond, nil)
	m.ObserveRetrieval("semantic", 0, time.Millisecond, errors.New("down"))
	m.ObserveToolCall("read_document_part", "ok", time.Millisecond)
	m.ObserveRun("max_turns", 5)
	m.ObserveBreaker("ollama.chat", "open")

	out := scrape(t, m.Handler())
	for _, want := range []string{
		`lcr_retrieval_requests_total{mode="keyword",service="api",status="ok"} 1`,
		`lcr_retrieval_requests_total{mode="semantic",service="api",status="error"} 1`,
		`lcr_agent_tool_calls_total{service="api",status="ok",tool="read_document_part"} 1`,
		`lcr_agent_runs_total{service="api",termination="max_turns"} 1`,
		`lcr_resilience_breaker_open{operation="ollama.chat",service="api"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in:\n%s", want, out)
		}
	}
}

func TestWorkerMetricsCountsPartsAndChunks(t *testing.T) {
	m := NewWorkerMetrics("worker")
	m.StartJob()
	m.FinishJob(2*time.Second, 4, 9, nil)
	m.ObserveQueueLag(-time.Second)

	out := scrape(t, m.Handler())
	for _, want := range []string{
		`lcr_worker_embedding_jobs_total{service="worker",status="success"} 1`,
		`lcr_worker_embedded_parts_total{service="worker"} 4`,
		`lcr_worker_indexed_chunks_total{service="worker"} 9`,
		`lcr_worker_embedding_jobs_in_flight{service="worker"} 0`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in:\n%s", want, out)
		}
	}
}
