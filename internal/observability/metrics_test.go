package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	m, err := NewMetrics()
	require.NoError(t, err)
	return m
}

func TestHealthCheckHealthyByDefault(t *testing.T) {
	m := newTestMetrics(t)
	m.Pipeline.SetCurrentState("listening")

	status := m.HealthCheck()

	assert.True(t, status.Healthy)
	assert.Equal(t, "listening", status.State)
	assert.Empty(t, status.Reasons)
	assert.Empty(t, status.Warnings)
}

func TestHealthCheckUnhealthyInErrorState(t *testing.T) {
	m := newTestMetrics(t)
	m.Pipeline.SetCurrentState("error")

	status := m.HealthCheck()

	assert.False(t, status.Healthy)
	require.Len(t, status.Reasons, 1)
	assert.Contains(t, status.Reasons[0], "error state")
}

func TestHealthCheckUnhealthyOnErrorRate(t *testing.T) {
	m := newTestMetrics(t)
	m.Pipeline.SetCurrentState("listening")

	for i := 0; i < 11; i++ {
		m.Pipeline.RecordError("stage_failure", "stt")
	}

	status := m.HealthCheck()

	assert.False(t, status.Healthy)
	assert.GreaterOrEqual(t, status.ErrorRatePerHour, 11.0)
}

func TestHealthCheckFlagsHighBufferUtilization(t *testing.T) {
	m := newTestMetrics(t)
	m.Pipeline.SetCurrentState("listening")
	m.Pipeline.UpdateBufferUtilization(0.95)

	status := m.HealthCheck()

	// High utilization warns but does not mark unhealthy.
	assert.True(t, status.Healthy)
	require.Len(t, status.Warnings, 1)
	assert.Contains(t, status.Warnings[0], "utilization")
}

func TestPipelineStatsSnapshot(t *testing.T) {
	m := newTestMetrics(t)

	m.Pipeline.RecordFrameProcessed("capture")
	m.Pipeline.RecordFrameProcessed("capture")
	m.Pipeline.RecordFrameProcessed("wakeword")
	m.Pipeline.RecordTranscript()
	m.Pipeline.RecordWakeDetection(0.9)
	m.Pipeline.RecordWakeDetection(0.6)
	m.Pipeline.RecordWakeDetection(0.1)
	m.Pipeline.RecordStateTransition("idle", "listening")

	stats := m.Pipeline.GetStats()

	assert.Equal(t, uint64(2), stats.FramesProcessed["capture"])
	assert.Equal(t, uint64(1), stats.FramesProcessed["wakeword"])
	assert.Equal(t, uint64(1), stats.TranscriptsCompleted)
	assert.Equal(t, uint64(1), stats.WakeDetections["high"])
	assert.Equal(t, uint64(1), stats.WakeDetections["medium"])
	assert.Equal(t, uint64(1), stats.WakeDetections["low"])
	assert.Equal(t, uint64(1), stats.StateTransitions)
	assert.Equal(t, "listening", stats.CurrentState)
}

func TestLatencyPercentiles(t *testing.T) {
	m := newTestMetrics(t)

	// 100 samples: 1ms to 100ms.
	for i := 1; i <= 100; i++ {
		m.Pipeline.RecordEndToEndLatency(float64(i) / 1000.0)
	}

	stats := m.Pipeline.GetStats()
	assert.Equal(t, 100, stats.LatencySamples)
	assert.InDelta(t, 50.5, stats.LatencyMeanMs, 0.01)
	assert.InDelta(t, 96.0, stats.LatencyP95Ms, 1.01)
}

func TestGatherTextContainsMetrics(t *testing.T) {
	m := newTestMetrics(t)
	m.Pipeline.RecordTranscript()
	m.Pipeline.RecordError("queue_full", "preprocess")

	text, err := m.GatherText()
	require.NoError(t, err)

	assert.Contains(t, text, "pipeline_transcripts_completed_total 1")
	assert.Contains(t, text, `pipeline_errors_total{kind="queue_full",stage="preprocess"} 1`)
	assert.Contains(t, text, "# TYPE pipeline_transcripts_completed_total counter")
}
