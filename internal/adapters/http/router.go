package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/legal-case-rag/internal/config"
	"github.com/kirillkom/legal-case-rag/internal/core/domain"
	"github.com/kirillkom/legal-case-rag/internal/core/ports"
	"github.com/kirillkom/legal-case-rag/internal/observability/metrics"
)

const maxRequestBodyBytes = 1 << 20

type RouterOptions struct {
	// Scheduler, Runs and Metrics are optional; the matching endpoints
	// answer 503 when they are missing.
	Scheduler ports.EmbeddingScheduler
	Runs      ports.RunLookup
	Metrics   *metrics.HTTPServerMetrics
}

type Router struct {
	cfg       config.Config
	retrieval ports.RetrievalService
	agent     ports.QueryOrchestrator
	opts      RouterOptions
}

func NewRouter(
	cfg config.Config,
	retrieval ports.RetrievalService,
	agent ports.QueryOrchestrator,
	opts RouterOptions,
) *Router {
	return &Router{
		cfg:       cfg,
		retrieval: retrieval,
		agent:     agent,
		opts:      opts,
	}
}

// Handler builds the mux and the middleware chain. It fails only when the
// embedded OpenAPI document is invalid.
func (rt *Router) Handler() (http.Handler, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("GET /openapi.yaml", rt.openAPI)
	if rt.opts.Metrics != nil {
		mux.Handle("GET /metrics", rt.opts.Metrics.Handler())
	}
	mux.HandleFunc("POST /v1/search/keyword", rt.keywordSearch)
	mux.HandleFunc("POST /v1/search/semantic", rt.semanticSearch)
	mux.HandleFunc("POST /v1/search/hybrid", rt.hybridSearch)
	mux.HandleFunc("GET /v1/parts/{part_id}", rt.readDocumentPart)
	mux.HandleFunc("POST /v1/agent/query", rt.agentQuery)
	mux.HandleFunc("GET /v1/agent/runs", rt.listRuns)
	mux.HandleFunc("GET /v1/agent/runs/{run_id}", rt.getRun)
	mux.HandleFunc("POST /v1/corpus/embeddings", rt.scheduleEmbedding)

	var handler http.Handler = mux
	if rt.cfg.OpenAPIValidation {
		doc, err := loadOpenAPI()
		if err != nil {
			return nil, err
		}
		handler, err = openAPIValidationMiddleware(handler, doc)
		if err != nil {
			return nil, err
		}
	}
	handler = apiKeyMiddleware(handler, rt.cfg.APIKey)
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, time.Duration(rt.cfg.APIOverloadWaitMS)*time.Millisecond)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	if rt.opts.Metrics != nil {
		handler = rt.opts.Metrics.Middleware(handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler), nil
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	payload := map[string]any{"status": "ok"}
	if d, ok := rt.retrieval.(interface{ DenseAvailable() bool }); ok {
		payload["dense_available"] = d.DenseAvailable()
	}
	writeJSON(w, http.StatusOK, payload)
}

func (rt *Router) openAPI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(OpenAPIDocument())
}

type searchRequest struct {
	Query string `json:"query"`
	N     int    `json:"n"`
}

func decodeSearchRequest(w http.ResponseWriter, r *http.Request) (searchRequest, bool) {
	var req searchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return req, false
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, domain.WrapError(domain.ErrInvalidInput, "search", errors.New("query is required")))
		return req, false
	}
	if req.N < 0 {
		writeError(w, domain.WrapError(domain.ErrInvalidInput, "search", errors.New("n must not be negative")))
		return req, false
	}
	return req, true
}

func (rt *Router) keywordSearch(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeSearchRequest(w, r)
	if !ok {
		return
	}
	out, err := rt.retrieval.KeywordSearch(r.Context(), req.Query, req.N)
	if err != nil {
		writeError(w, err)
		return
	}
	writeXML(w, http.StatusOK, out)
}

func (rt *Router) semanticSearch(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeSearchRequest(w, r)
	if !ok {
		return
	}
	out, err := rt.retrieval.SemanticSearch(r.Context(), req.Query, req.N)
	if err != nil {
		writeError(w, err)
		return
	}
	writeXML(w, http.StatusOK, out)
}

func (rt *Router) hybridSearch(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeSearchRequest(w, r)
	if !ok {
		return
	}
	hits, err := rt.retrieval.HybridSearch(r.Context(), req.Query, req.N)
	if err != nil {
		writeError(w, err)
		return
	}
	if hits == nil {
		hits = []domain.HybridHit{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"query": req.Query, "results": hits})
}

func (rt *Router) readDocumentPart(w http.ResponseWriter, r *http.Request) {
	partID := r.PathValue("part_id")
	opts := domain.ResolveOptions{Wrap: true}
	var err error
	if opts.Wrap, err = queryBool(r, "wrap", true); err != nil {
		writeError(w, err)
		return
	}
	if opts.Stream, err = queryBool(r, "stream", false); err != nil {
		writeError(w, err)
		return
	}

	out, err := rt.retrieval.ReadDocumentPart(r.Context(), partID, opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeXML(w, http.StatusOK, out)
}

func (rt *Router) agentQuery(w http.ResponseWriter, r *http.Request) {
	var req domain.QueryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	res, err := rt.agent.Run(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (rt *Router) listRuns(w http.ResponseWriter, r *http.Request) {
	if rt.opts.Runs == nil {
		writeError(w, domain.WrapError(domain.ErrTemporary, "list runs", errors.New("run journal is disabled")))
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, domain.WrapError(domain.ErrInvalidInput, "list runs", fmt.Errorf("invalid limit %q", raw)))
			return
		}
		limit = n
	}
	runs, err := rt.opts.Runs.ListRuns(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if runs == nil {
		runs = []domain.QueryRunResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (rt *Router) getRun(w http.ResponseWriter, r *http.Request) {
	if rt.opts.Runs == nil {
		writeError(w, domain.WrapError(domain.ErrTemporary, "get run", errors.New("run journal is disabled")))
		return
	}
	run, err := rt.opts.Runs.GetRun(r.Context(), r.PathValue("run_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (rt *Router) scheduleEmbedding(w http.ResponseWriter, r *http.Request) {
	if rt.opts.Scheduler == nil {
		writeError(w, domain.WrapError(domain.ErrTemporary, "schedule embedding", errors.New("job queue is not configured")))
		return
	}
	var req struct {
		CorpusPath string `json:"corpus_path"`
	}
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, err)
		return
	}
	job, err := rt.opts.Scheduler.Schedule(r.Context(), req.CorpusPath)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func queryBool(r *http.Request, key string, fallback bool) (bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, domain.WrapError(domain.ErrInvalidInput, "parse query", fmt.Errorf("%s must be a boolean", key))
	}
	return v, nil
}

// decodeJSON returns io.EOF untouched for an empty body.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return err
		}
		return domain.WrapError(domain.ErrInvalidInput, "decode request", err)
	}
	return nil
}

func writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, io.EOF) {
		err = domain.WrapError(domain.ErrInvalidInput, "decode request", errors.New("request body is required"))
	}
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("http_handler_failed", "status", status, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeXML(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}
