package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	reasoningTotal    *prometheus.CounterVec
	reasoningDuration *prometheus.HistogramVec
	reasoningErrors   *prometheus.CounterVec

	turnTotal    *prometheus.CounterVec
	turnDuration prometheus.Histogram
	activeTurns  prometheus.Gauge

	toolExecutionTotal    *prometheus.CounterVec
	toolExecutionDuration *prometheus.HistogramVec
	toolDenialsTotal      prometheus.Counter

	retrievalCacheTotal *prometheus.CounterVec
	retrievalQueryTime  prometheus.Histogram

	ingestionTotal    *prometheus.CounterVec
	ingestionDuration *prometheus.HistogramVec
	indexChunksTotal  prometheus.Gauge

	checkpointLoadDuration prometheus.Histogram
	checkpointSaveDuration prometheus.Histogram
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			reasoningTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "reasoning_total",
					Help: "Total reasoning steps by provider and status.",
				},
				[]string{"provider", "status"},
			),
			reasoningDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "reasoning_duration_seconds",
					Help:    "Reasoning step duration in seconds by provider.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"provider"},
			),
			reasoningErrors: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "reasoning_errors_total",
					Help: "Total reasoning step errors by provider.",
				},
				[]string{"provider"},
			),
			turnTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "turn_total",
					Help: "Total completed turn-chains by status.",
				},
				[]string{"status"},
			),
			turnDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "turn_duration_seconds",
					Help:    "Turn-chain duration in seconds, user message to final answer.",
					Buckets: prometheus.DefBuckets,
				},
			),
			activeTurns: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "active_turns",
					Help: "Turn-chains currently in flight.",
				},
			),
			toolExecutionTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tool_execution_total",
					Help: "Total tool executions by tool and status.",
				},
				[]string{"tool", "status"},
			),
			toolExecutionDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "tool_execution_duration_seconds",
					Help:    "Tool execution duration in seconds by tool.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"tool"},
			),
			toolDenialsTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "tool_denials_total",
					Help: "Total tool calls denied by the per-query quota.",
				},
			),
			retrievalCacheTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "retrieval_cache_total",
					Help: "Retrieval cache lookups by outcome (hit, rehydrate, miss).",
				},
				[]string{"outcome"},
			),
			retrievalQueryTime: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "retrieval_query_duration_seconds",
					Help:    "Similarity query duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			ingestionTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "ingestion_total",
					Help: "Total ingestion attempts by doc type and status.",
				},
				[]string{"doc_type", "status"},
			),
			ingestionDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "ingestion_duration_seconds",
					Help:    "Ingestion pipeline duration in seconds by doc type.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"doc_type"},
			),
			indexChunksTotal: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "index_chunks_total",
					Help: "Chunks written by the most recent index build.",
				},
			),
			checkpointLoadDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "checkpoint_load_duration_seconds",
					Help:    "Checkpoint load duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			checkpointSaveDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "checkpoint_save_duration_seconds",
					Help:    "Checkpoint save duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
		}

		prometheus.MustRegister(
			m.reasoningTotal,
			m.reasoningDuration,
			m.reasoningErrors,
			m.turnTotal,
			m.turnDuration,
			m.activeTurns,
			m.toolExecutionTotal,
			m.toolExecutionDuration,
			m.toolDenialsTotal,
			m.retrievalCacheTotal,
			m.retrievalQueryTime,
			m.ingestionTotal,
			m.ingestionDuration,
			m.indexChunksTotal,
			m.checkpointLoadDuration,
			m.checkpointSaveDuration,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func RecordReasoningStep(provider string, duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.reasoningTotal.WithLabelValues(provider, status).Inc()
	m.reasoningDuration.WithLabelValues(provider).Observe(duration.Seconds())
	if !success {
		m.reasoningErrors.WithLabelValues(provider).Inc()
	}
}

func RecordTurn(duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.turnTotal.WithLabelValues(status).Inc()
	m.turnDuration.Observe(duration.Seconds())
}

func IncActiveTurns() {
	getMetrics().activeTurns.Inc()
}

func DecActiveTurns() {
	getMetrics().activeTurns.Dec()
}

func RecordToolExecution(tool string, duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.toolExecutionTotal.WithLabelValues(tool, status).Inc()
	m.toolExecutionDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

func RecordToolDenials(count int) {
	if count <= 0 {
		return
	}
	getMetrics().toolDenialsTotal.Add(float64(count))
}

// RecordRetrievalLookup records a cache lookup outcome: "hit" (in-memory),
// "rehydrate" (loaded from disk), or "miss" (no source for the key).
func RecordRetrievalLookup(outcome string) {
	getMetrics().retrievalCacheTotal.WithLabelValues(outcome).Inc()
}

func RecordRetrievalQuery(duration time.Duration) {
	getMetrics().retrievalQueryTime.Observe(duration.Seconds())
}

func RecordIngestion(docType string, duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.ingestionTotal.WithLabelValues(docType, status).Inc()
	m.ingestionDuration.WithLabelValues(docType).Observe(duration.Seconds())
}

func SetIndexChunks(total int) {
	getMetrics().indexChunksTotal.Set(float64(total))
}

func RecordCheckpointLoad(duration time.Duration) {
	getMetrics().checkpointLoadDuration.Observe(duration.Seconds())
}

func RecordCheckpointSave(duration time.Duration) {
	getMetrics().checkpointSaveDuration.Observe(duration.Seconds())
}
