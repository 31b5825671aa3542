// Package testsupport holds helpers shared by package tests: Prometheus
// assertions and ephemeral containers for integration tests.
package testsupport

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

// GetMetricValue returns the current value of a counter or gauge, or the sample
// count of a histogram, from the default registry. Missing series read as 0.
func GetMetricValue(t *testing.T, metricName string, labels map[string]string) float64 {
	t.Helper()

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err, "failed to gather metrics")

	for _, mf := range families {
		if mf.GetName() != metricName {
			continue
		}
		for _, m := range mf.GetMetric() {
			if !matchesLabels(m, labels) {
				continue
			}
			switch {
			case m.GetCounter() != nil:
				return m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				return m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				return float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return 0
}

func matchesLabels(m *dto.Metric, filter map[string]string) bool {
	if len(filter) == 0 {
		return true
	}
	got := make(map[string]string, len(m.GetLabel()))
	for _, pair := range m.GetLabel() {
		got[pair.GetName()] = pair.GetValue()
	}
	for k, v := range filter {
		if got[k] != v {
			return false
		}
	}
	return true
}

// AssertMetricDelta asserts that fn moves a metric by at least expectedDelta.
// Tests in other packages may bump the same global series concurrently, so
// only a lower bound is checked.
func AssertMetricDelta(t *testing.T, metricName string, labels map[string]string, expectedDelta float64, fn func()) {
	t.Helper()

	initial := GetMetricValue(t, metricName, labels)
	fn()
	final := GetMetricValue(t, metricName, labels)

	require.GreaterOrEqual(t, final-initial, expectedDelta, "metric %s%v delta mismatch", metricName, labels)
}

// AssertMetricDeltaAsync waits until a metric has grown by expectedDelta after fn.
// Use it for background work such as reload loops.
func AssertMetricDeltaAsync(t *testing.T, metricName string, labels map[string]string, expectedDelta float64, fn func()) {
	t.Helper()

	initial := GetMetricValue(t, metricName, labels)
	fn()

	require.Eventually(t, func() bool {
		return GetMetricValue(t, metricName, labels) >= initial+expectedDelta
	}, 2*time.Second, 20*time.Millisecond, "metric %s%v failed to reach expected delta +%.0f", metricName, labels, expectedDelta)
}
