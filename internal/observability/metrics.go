// Package observability exposes prometheus metrics for the agent subsystem:
// provider requests, retries, circuit-breaker state changes, tool
// executions, and agent-loop iterations.
package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the recorder handed to the provider and agent layers.
type Metrics struct {
	providerRequests   prometheus.CounterVec
	providerLatency    prometheus.HistogramVec
	providerRetries    prometheus.CounterVec
	breakerTransitions prometheus.CounterVec
	toolExecutions     prometheus.CounterVec
	toolLatency        prometheus.HistogramVec
	loopIterations     prometheus.HistogramVec
	draftMerges        prometheus.Counter
	eventsMaterialized prometheus.Counter
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// NewMetrics builds the recorder against the default prometheus registry.
func NewMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		defaultMetrics = newMetrics(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// NewMetricsWithRegisterer allows tests to provide a dedicated registry.
func NewMetricsWithRegisterer(reg prometheus.Registerer) *Metrics {
	return newMetrics(reg)
}

func newMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		providerRequests: *factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hearth",
			Subsystem: "provider",
			Name:      "requests_total",
			Help:      "Completed provider requests by provider, model, and outcome",
		}, []string{"provider", "model", "outcome"}),
		providerLatency: *factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hearth",
			Subsystem: "provider",
			Name:      "request_duration_seconds",
			Help:      "Provider request latency including retries",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"provider", "model"}),
		providerRetries: *factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hearth",
			Subsystem: "provider",
			Name:      "retries_total",
			Help:      "Individual retry attempts against a provider",
		}, []string{"provider"}),
		breakerTransitions: *factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hearth",
			Subsystem: "provider",
			Name:      "breaker_transitions_total",
			Help:      "Circuit breaker state transitions by breaker name and new state",
		}, []string{"name", "state"}),
		toolExecutions: *factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hearth",
			Subsystem: "tools",
			Name:      "executions_total",
			Help:      "Tool executions by tool name and outcome",
		}, []string{"tool", "outcome"}),
		toolLatency: *factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hearth",
			Subsystem: "tools",
			Name:      "execution_duration_seconds",
			Help:      "Tool execution latency",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"tool"}),
		loopIterations: *factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hearth",
			Subsystem: "agent",
			Name:      "loop_iterations",
			Help:      "Reasoning loop iterations consumed per user message",
			Buckets:   []float64{1, 2, 3, 4, 5, 6, 8, 10},
		}, []string{"outcome"}),
		draftMerges: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "hearth",
			Subsystem: "draft",
			Name:      "merges_total",
			Help:      "Successful draft merges across all sessions",
		}),
		eventsMaterialized: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "hearth",
			Subsystem: "draft",
			Name:      "events_materialized_total",
			Help:      "Drafts successfully turned into published events",
		}),
	}
}

func outcomeLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordProviderRequest records one completed provider round trip, inclusive
// of internal retries.
func (m *Metrics) RecordProviderRequest(provider, model string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.providerRequests.WithLabelValues(provider, model, outcomeLabel(err)).Inc()
	m.providerLatency.WithLabelValues(provider, model).Observe(duration.Seconds())
}

// RecordProviderRetry counts a single retry attempt.
func (m *Metrics) RecordProviderRetry(provider string) {
	if m == nil {
		return
	}
	m.providerRetries.WithLabelValues(provider).Inc()
}

// RecordBreakerTransition counts a circuit breaker state change.
func (m *Metrics) RecordBreakerTransition(name, state string) {
	if m == nil {
		return
	}
	m.breakerTransitions.WithLabelValues(name, state).Inc()
}

// RecordToolExecution records one tool dispatch.
func (m *Metrics) RecordToolExecution(tool string, duration time.Duration, success bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.toolExecutions.WithLabelValues(tool, outcome).Inc()
	m.toolLatency.WithLabelValues(tool).Observe(duration.Seconds())
}

// RecordLoopIterations records how many reasoning iterations one user
// message consumed and how the loop ended.
func (m *Metrics) RecordLoopIterations(iterations int, outcome string) {
	if m == nil {
		return
	}
	m.loopIterations.WithLabelValues(outcome).Observe(float64(iterations))
}

// RecordDraftMerge counts a successful draft merge.
func (m *Metrics) RecordDraftMerge() {
	if m == nil {
		return
	}
	m.draftMerges.Inc()
}

// RecordEventMaterialized counts a draft finalized into a real event.
func (m *Metrics) RecordEventMaterialized() {
	if m == nil {
		return
	}
	m.eventsMaterialized.Inc()
}
