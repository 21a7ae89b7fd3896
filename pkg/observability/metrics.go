package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the engine's Prometheus collectors.
type Metrics struct {
	turns          prometheus.Counter
	modelLatency   prometheus.Histogram
	toolExecutions *prometheus.CounterVec
	toolRetries    *prometheus.CounterVec
	runs           *prometheus.CounterVec
}

// NewMetrics registers the engine collectors on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		turns: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "arbor",
			Name:      "turns_total",
			Help:      "Total loop turns executed.",
		}),
		modelLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "arbor",
			Name:      "model_latency_seconds",
			Help:      "Latency of model gateway round trips.",
			Buckets:   prometheus.DefBuckets,
		}),
		toolExecutions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arbor",
			Name:      "tool_executions_total",
			Help:      "Tool executions by tool name and final status.",
		}, []string{"tool", "status"}),
		toolRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arbor",
			Name:      "tool_retries_total",
			Help:      "Retry attempts by tool name.",
		}, []string{"tool"}),
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arbor",
			Name:      "runs_total",
			Help:      "Completed runs by terminal outcome.",
		}, []string{"outcome"}),
	}
}

// ObserveTurn counts one loop turn.
func (m *Metrics) ObserveTurn() {
	if m == nil {
		return
	}
	m.turns.Inc()
}

// ObserveModelLatency records one gateway round trip.
func (m *Metrics) ObserveModelLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.modelLatency.Observe(d.Seconds())
}

// ObserveToolExecution counts a finished tool execution.
func (m *Metrics) ObserveToolExecution(tool, status string) {
	if m == nil {
		return
	}
	m.toolExecutions.WithLabelValues(tool, status).Inc()
}

// ObserveToolRetry counts one retry attempt for a tool.
func (m *Metrics) ObserveToolRetry(tool string) {
	if m == nil {
		return
	}
	m.toolRetries.WithLabelValues(tool).Inc()
}

// ObserveRun counts one terminated run.
func (m *Metrics) ObserveRun(outcome string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(outcome).Inc()
}

// Handler serves the given gatherer over HTTP in the Prometheus exposition format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
