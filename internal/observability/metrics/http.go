package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry
	service  string

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	retrievalTotal    *prometheus.CounterVec
	retrievalResults  *prometheus.HistogramVec
	retrievalDuration *prometheus.HistogramVec
	agentRunsTotal    *prometheus.CounterVec
	agentTurns        *prometheus.HistogramVec
	agentToolCalls    *prometheus.CounterVec
	agentToolDuration *prometheus.HistogramVec
	breakerState      *prometheus.GaugeVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lcr",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "lcr",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "lcr",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	retrievalTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lcr",
			Subsystem: "retrieval",
			Name:      "requests_total",
			Help:      "Total retrieval calls by mode and status.",
		},
		[]string{"service", "mode", "status"},
	)
	retrievalResults := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "lcr",
			Subsystem: "retrieval",
			Name:      "results",
			Help:      "Distribution of results returned per retrieval call.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service", "mode"},
	)
	retrievalDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "lcr",
			Subsystem: "retrieval",
			Name:      "duration_seconds",
			Help:      "Retrieval call duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "mode"},
	)
	agentRunsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lcr",
			Subsystem: "agent",
			Name:      "runs_total",
			Help:      "Total completed orchestration runs by termination.",
		},
		[]string{"service", "termination"},
	)
	agentTurns := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "lcr",
			Subsystem: "agent",
			Name:      "turns",
			Help:      "Distribution of generation turns per run.",
			Buckets:   []float64{1, 2, 3, 4, 5, 6, 8, 10},
		},
		[]string{"service"},
	)
	agentToolCalls := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lcr",
			Subsystem: "agent",
			Name:      "tool_calls_total",
			Help:      "Total tool calls dispatched by the orchestrator.",
		},
		[]string{"service", "tool", "status"},
	)
	agentToolDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "lcr",
			Subsystem: "agent",
			Name:      "tool_duration_seconds",
			Help:      "Tool call duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "tool"},
	)
	breakerState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "lcr",
			Subsystem: "resilience",
			Name:      "breaker_open",
			Help:      "1 when the circuit breaker of an operation is open.",
		},
		[]string{"service", "operation"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		retrievalTotal,
		retrievalResults,
		retrievalDuration,
		agentRunsTotal,
		agentTurns,
		agentToolCalls,
		agentToolDuration,
		breakerState,
	)

	return &HTTPServerMetrics{
		registry:          registry,
		service:           service,
		requestTotal:      requestTotal,
		requestDuration:   requestDuration,
		requestInFlight:   requestInFlight,
		retrievalTotal:    retrievalTotal,
		retrievalResults:  retrievalResults,
		retrievalDuration: retrievalDuration,
		agentRunsTotal:    agentRunsTotal,
		agentTurns:        agentTurns,
		agentToolCalls:    agentToolCalls,
		agentToolDuration: agentToolDuration,
		breakerState:      breakerState,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			m.service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(m.service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/parts/"):
		return "/v1/parts/{part_id}"
	case strings.HasPrefix(path, "/v1/agent/runs/"):
		return "/v1/agent/runs/{run_id}"
	default:
		return path
	}
}

// ObserveRetrieval records one keyword, semantic, hybrid or read call.
func (m *HTTPServerMetrics) ObserveRetrieval(mode string, results int, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.retrievalTotal.WithLabelValues(m.service, mode, status).Inc()
	m.retrievalDuration.WithLabelValues(m.service, mode).Observe(duration.Seconds())
	if err == nil && results >= 0 {
		m.retrievalResults.WithLabelValues(m.service, mode).Observe(float64(results))
	}
}

func (m *HTTPServerMetrics) ObserveRun(termination string, turns int) {
	if termination == "" {
		termination = "unknown"
	}
	m.agentRunsTotal.WithLabelValues(m.service, termination).Inc()
	if turns > 0 {
		m.agentTurns.WithLabelValues(m.service).Observe(float64(turns))
	}
}

func (m *HTTPServerMetrics) ObserveToolCall(tool, status string, duration time.Duration) {
	if tool == "" {
		tool = "unknown"
	}
	if status == "" {
		status = "unknown"
	}
	m.agentToolCalls.WithLabelValues(m.service, tool, status).Inc()
	m.agentToolDuration.WithLabelValues(m.service, tool).Observe(duration.Seconds())
}

// ObserveBreaker is a resilience.Config StateObserver.
func (m *HTTPServerMetrics) ObserveBreaker(operation, state string) {
	v := 0.0
	if state == "open" {
		v = 1
	}
	m.breakerState.WithLabelValues(m.service, operation).Set(v)
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
