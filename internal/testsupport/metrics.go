package testsupport

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// GetMetricValue reads a metric from the default registry. Counters and
// gauges report their value, histograms their sample count. Series whose
// labels include every pair in labels are summed; a missing metric reads 0.
func GetMetricValue(t *testing.T, name string, labels map[string]string) float64 {
	t.Helper()

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err, "failed to gather metrics")

	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if hasLabels(m, labels) {
				total += sampleValue(m)
			}
		}
	}
	return total
}

// AssertMetricDelta runs fn and asserts the metric moved by exactly delta.
// Callers must not run in parallel with other tests touching the same series.
func AssertMetricDelta(t *testing.T, name string, labels map[string]string, delta float64, fn func()) {
	t.Helper()

	before := GetMetricValue(t, name, labels)
	fn()
	after := GetMetricValue(t, name, labels)

	assert.Equal(t, delta, after-before, "metric %s%v delta mismatch", name, labels)
}

// AssertHistogramRecorded asserts the histogram holds at least one sample.
func AssertHistogramRecorded(t *testing.T, name string, labels map[string]string) {
	t.Helper()

	assert.Positive(t, GetMetricValue(t, name, labels), "histogram %s%v has no samples", name, labels)
}

func sampleValue(m *dto.Metric) float64 {
	switch {
	case m.GetCounter() != nil:
		return m.GetCounter().GetValue()
	case m.GetGauge() != nil:
		return m.GetGauge().GetValue()
	case m.GetHistogram() != nil:
		return float64(m.GetHistogram().GetSampleCount())
	default:
		return 0
	}
}

func hasLabels(m *dto.Metric, want map[string]string) bool {
	matched := 0
	for _, pair := range m.GetLabel() {
		if v, ok := want[pair.GetName()]; ok {
			if v != pair.GetValue() {
				return false
			}
			matched++
		}
	}
	return matched == len(want)
}
