package observability

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRecordProviderRequestOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegisterer(reg)

	m.RecordProviderRequest("ollama", "llama3", 120*time.Millisecond, nil)
	m.RecordProviderRequest("ollama", "llama3", 80*time.Millisecond, errors.New("boom"))

	require.Equal(t, 1.0, testutil.ToFloat64(
		m.providerRequests.WithLabelValues("ollama", "llama3", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(
		m.providerRequests.WithLabelValues("ollama", "llama3", "error")))
}

func TestRecordToolExecution(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegisterer(reg)

	m.RecordToolExecution("create_event_draft", 2*time.Millisecond, true)
	m.RecordToolExecution("create_event_draft", 2*time.Millisecond, false)
	m.RecordToolExecution("create_event_draft", 2*time.Millisecond, true)

	require.Equal(t, 2.0, testutil.ToFloat64(
		m.toolExecutions.WithLabelValues("create_event_draft", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(
		m.toolExecutions.WithLabelValues("create_event_draft", "failure")))
}

func TestRecordBreakerTransition(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegisterer(reg)

	m.RecordBreakerTransition("llm-ollama", "open")
	m.RecordBreakerTransition("llm-ollama", "open")

	require.Equal(t, 2.0, testutil.ToFloat64(
		m.breakerTransitions.WithLabelValues("llm-ollama", "open")))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.RecordProviderRequest("x", "y", time.Second, nil)
		m.RecordProviderRetry("x")
		m.RecordBreakerTransition("x", "open")
		m.RecordToolExecution("x", time.Second, true)
		m.RecordLoopIterations(3, "answered")
		m.RecordDraftMerge()
		m.RecordEventMaterialized()
	})
}
