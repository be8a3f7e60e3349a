package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry
	service  string

	jobTotal     *prometheus.CounterVec
	jobDuration  *prometheus.HistogramVec
	jobInFlight  prometheus.Gauge
	partsTotal   *prometheus.CounterVec
	chunksTotal  *prometheus.CounterVec
	queueLag     *prometheus.HistogramVec
	breakerState *prometheus.GaugeVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	jobTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lcr",
			Subsystem: "worker",
			Name:      "embedding_jobs_total",
			Help:      "Total embedding jobs by status.",
		},
		[]string{"service", "status"},
	)
	jobDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "lcr",
			Subsystem: "worker",
			Name:      "embedding_job_duration_seconds",
			Help:      "Embedding job duration in seconds by status.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800},
		},
		[]string{"service", "status"},
	)
	jobInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "lcr",
			Subsystem: "worker",
			Name:      "embedding_jobs_in_flight",
			Help:      "Number of in-flight embedding jobs.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	partsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lcr",
			Subsystem: "worker",
			Name:      "embedded_parts_total",
			Help:      "Total corpus parts embedded.",
		},
		[]string{"service"},
	)
	chunksTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lcr",
			Subsystem: "worker",
			Name:      "indexed_chunks_total",
			Help:      "Total chunks written to the vector index.",
		},
		[]string{"service"},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "lcr",
			Subsystem: "worker",
			Name:      "queue_lag_seconds",
			Help:      "Delay between job request and processing start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
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

	registry.MustRegister(jobTotal, jobDuration, jobInFlight, partsTotal, chunksTotal, queueLag, breakerState)

	return &WorkerMetrics{
		registry:     registry,
		service:      service,
		jobTotal:     jobTotal,
		jobDuration:  jobDuration,
		jobInFlight:  jobInFlight,
		partsTotal:   partsTotal,
		chunksTotal:  chunksTotal,
		queueLag:     queueLag,
		breakerState: breakerState,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartJob() {
	m.jobInFlight.Inc()
}

// FinishJob records a finished job. parts and chunks count what was indexed
// before the job ended, even when it failed.
func (m *WorkerMetrics) FinishJob(duration time.Duration, parts, chunks int, err error) {
	m.jobInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.jobTotal.WithLabelValues(m.service, status).Inc()
	m.jobDuration.WithLabelValues(m.service, status).Observe(duration.Seconds())
	if parts > 0 {
		m.partsTotal.WithLabelValues(m.service).Add(float64(parts))
	}
	if chunks > 0 {
		m.chunksTotal.WithLabelValues(m.service).Add(float64(chunks))
	}
}

func (m *WorkerMetrics) ObserveQueueLag(lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(m.service).Observe(lag.Seconds())
}

func (m *WorkerMetrics) ObserveBreaker(operation, state string) {
	v := 0.0
	if state == "open" {
		v = 1
	}
	m.breakerState.WithLabelValues(m.service, operation).Set(v)
}
