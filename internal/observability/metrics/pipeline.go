// Package metrics provides Prometheus collectors for the pipeline, capture
// and publishing subsystems.
package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// latencyWindowSize bounds the in-memory latency window used to derive
	// exact percentiles for stats snapshots and the latency budget checks.
	latencyWindowSize = 10000

	errorRateWindow = time.Hour
)

// PipelineStats is a summary snapshot of pipeline telemetry.
type PipelineStats struct {
	FramesProcessed      map[string]uint64
	TranscriptsCompleted uint64
	WakeDetections       map[string]uint64
	StateTransitions     uint64
	Errors               uint64
	ErrorRatePerHour     float64
	CurrentState         string
	BufferUtilization    float64
	LatencyMeanMs        float64
	LatencyP95Ms         float64
	LatencySamples       int
}

// PipelineMetrics contains Prometheus metrics for pipeline operations. A
// single lock also guards a snapshot mirror used for exact percentile and
// error-rate queries that the Prometheus API does not expose client-side.
type PipelineMetrics struct {
	registry *prometheus.Registry

	endToEndLatency  *prometheus.HistogramVec
	stageLatency     *prometheus.HistogramVec
	stateLoopLatency prometheus.Histogram

	framesProcessedTotal  *prometheus.CounterVec
	transcriptsTotal      prometheus.Counter
	wakeDetectionsTotal   *prometheus.CounterVec
	stateTransitionsTotal *prometheus.CounterVec
	errorsTotal           *prometheus.CounterVec

	queueSizeGauge         *prometheus.GaugeVec
	currentStateGauge      *prometheus.GaugeVec
	bufferUtilizationGauge prometheus.Gauge

	mu                sync.Mutex
	framesProcessed   map[string]uint64
	transcripts       uint64
	wakeDetections    map[string]uint64
	transitions       uint64
	errorCount        uint64
	errorTimes        []time.Time
	currentState      string
	bufferUtilization float64
	latencyWindow     []float64 // seconds, rolling
	latencyNext       int
}

// NewPipelineMetrics creates and registers new pipeline metrics.
func NewPipelineMetrics(registry *prometheus.Registry) (*PipelineMetrics, error) {
	m := &PipelineMetrics{
		registry:        registry,
		framesProcessed: make(map[string]uint64),
		wakeDetections:  make(map[string]uint64),
		latencyWindow:   make([]float64, 0, latencyWindowSize),
	}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *PipelineMetrics) initMetrics() {
	m.endToEndLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_end_to_end_latency_seconds",
			Help:    "Latency from frame capture to published transcript record",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 11), // 1ms to ~1s
		},
		[]string{"outcome"},
	)

	m.stageLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_stage_latency_seconds",
			Help:    "Per-stage processing latency",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14), // 0.1ms to ~1.6s
		},
		[]string{"stage"},
	)

	m.stateLoopLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pipeline_state_loop_latency_seconds",
			Help:    "State machine loop iteration latency",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 10), // 0.1ms to ~50ms
		},
	)

	m.framesProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_frames_processed_total",
			Help: "Total frames processed per stage",
		},
		[]string{"stage"},
	)

	m.transcriptsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_transcripts_completed_total",
			Help: "Total completed transcript records",
		},
	)

	m.wakeDetectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_wake_detections_total",
			Help: "Total wake-word detections bucketed by confidence",
		},
		[]string{"confidence"}, // high, medium, low
	)

	m.stateTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_state_transitions_total",
			Help: "Total state machine transitions",
		},
		[]string{"from", "to"},
	)

	m.errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_errors_total",
			Help: "Total pipeline errors",
		},
		[]string{"kind", "stage"},
	)

	m.queueSizeGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pipeline_queue_size",
			Help: "Current inter-stage queue sizes",
		},
		[]string{"queue"},
	)

	m.currentStateGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pipeline_state",
			Help: "Current pipeline state (1 for the active state)",
		},
		[]string{"state"},
	)

	m.bufferUtilizationGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pipeline_buffer_utilization_ratio",
			Help: "Audio ring buffer utilization ratio (0.0 to 1.0)",
		},
	)
}

// Describe implements the Collector interface
func (m *PipelineMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.endToEndLatency.Describe(ch)
	m.stageLatency.Describe(ch)
	m.stateLoopLatency.Describe(ch)
	m.framesProcessedTotal.Describe(ch)
	m.transcriptsTotal.Describe(ch)
	m.wakeDetectionsTotal.Describe(ch)
	m.stateTransitionsTotal.Describe(ch)
	m.errorsTotal.Describe(ch)
	m.queueSizeGauge.Describe(ch)
	m.currentStateGauge.Describe(ch)
	m.bufferUtilizationGauge.Describe(ch)
}

// Collect implements the Collector interface
func (m *PipelineMetrics) Collect(ch chan<- prometheus.Metric) {
	m.endToEndLatency.Collect(ch)
	m.stageLatency.Collect(ch)
	m.stateLoopLatency.Collect(ch)
	m.framesProcessedTotal.Collect(ch)
	m.transcriptsTotal.Collect(ch)
	m.wakeDetectionsTotal.Collect(ch)
	m.stateTransitionsTotal.Collect(ch)
	m.errorsTotal.Collect(ch)
	m.queueSizeGauge.Collect(ch)
	m.currentStateGauge.Collect(ch)
	m.bufferUtilizationGauge.Collect(ch)
}

// RecordEndToEndLatency records one complete capture-to-publish cycle.
func (m *PipelineMetrics) RecordEndToEndLatency(seconds float64) {
	m.endToEndLatency.WithLabelValues("completed").Observe(seconds)

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.latencyWindow) < latencyWindowSize {
		m.latencyWindow = append(m.latencyWindow, seconds)
	} else {
		m.latencyWindow[m.latencyNext] = seconds
	}
	m.latencyNext = (m.latencyNext + 1) % latencyWindowSize
}

// RecordStageLatency records the processing latency of one stage operation.
func (m *PipelineMetrics) RecordStageLatency(stage string, seconds float64) {
	m.stageLatency.WithLabelValues(stage).Observe(seconds)
}

// RecordLoopLatency records one state machine loop iteration.
func (m *PipelineMetrics) RecordLoopLatency(seconds float64) {
	m.stateLoopLatency.Observe(seconds)
}

// RecordFrameProcessed counts one frame handled by a stage.
func (m *PipelineMetrics) RecordFrameProcessed(stage string) {
	m.framesProcessedTotal.WithLabelValues(stage).Inc()

	m.mu.Lock()
	m.framesProcessed[stage]++
	m.mu.Unlock()
}

// RecordTranscript counts one completed transcript record.
func (m *PipelineMetrics) RecordTranscript() {
	m.transcriptsTotal.Inc()

	m.mu.Lock()
	m.transcripts++
	m.mu.Unlock()
}

// confidenceBucket maps a wake-word confidence to its label value.
func confidenceBucket(confidence float64) string {
	switch {
	case confidence >= 0.8:
		return "high"
	case confidence >= 0.5:
		return "medium"
	default:
		return "low"
	}
}

// RecordWakeDetection counts one wake-word detection.
func (m *PipelineMetrics) RecordWakeDetection(confidence float64) {
	bucket := confidenceBucket(confidence)
	m.wakeDetectionsTotal.WithLabelValues(bucket).Inc()

	m.mu.Lock()
	m.wakeDetections[bucket]++
	m.mu.Unlock()
}

// RecordStateTransition counts one state change and updates the state gauge.
func (m *PipelineMetrics) RecordStateTransition(from, to string) {
	m.stateTransitionsTotal.WithLabelValues(from, to).Inc()
	m.currentStateGauge.WithLabelValues(from).Set(0)
	m.currentStateGauge.WithLabelValues(to).Set(1)

	m.mu.Lock()
	m.transitions++
	m.currentState = to
	m.mu.Unlock()
}

// SetCurrentState sets the state gauge without counting a transition.
func (m *PipelineMetrics) SetCurrentState(state string) {
	m.currentStateGauge.WithLabelValues(state).Set(1)

	m.mu.Lock()
	m.currentState = state
	m.mu.Unlock()
}

// RecordError counts one error by kind and stage.
func (m *PipelineMetrics) RecordError(kind, stage string) {
	m.errorsTotal.WithLabelValues(kind, stage).Inc()

	m.mu.Lock()
	m.errorCount++
	m.errorTimes = append(m.errorTimes, time.Now())
	m.pruneErrorTimesLocked(time.Now())
	m.mu.Unlock()
}

func (m *PipelineMetrics) pruneErrorTimesLocked(now time.Time) {
	cutoff := now.Add(-errorRateWindow)
	i := 0
	for i < len(m.errorTimes) && m.errorTimes[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		m.errorTimes = m.errorTimes[i:]
	}
}

// UpdateQueueSize updates the size gauge for one queue.
func (m *PipelineMetrics) UpdateQueueSize(queue string, size int) {
	m.queueSizeGauge.WithLabelValues(queue).Set(float64(size))
}

// UpdateBufferUtilization updates the ring buffer utilization ratio.
func (m *PipelineMetrics) UpdateBufferUtilization(utilization float64) {
	m.bufferUtilizationGauge.Set(utilization)

	m.mu.Lock()
	m.bufferUtilization = utilization
	m.mu.Unlock()
}

// ErrorRatePerHour returns the number of errors recorded in the past hour.
func (m *PipelineMetrics) ErrorRatePerHour() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneErrorTimesLocked(time.Now())
	return float64(len(m.errorTimes))
}

// CurrentState returns the last state set on the metrics.
func (m *PipelineMetrics) CurrentState() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentState
}

// BufferUtilization returns the last reported buffer utilization ratio.
func (m *PipelineMetrics) BufferUtilization() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bufferUtilization
}

// GetStats returns a summary snapshot including exact latency percentiles
// from the rolling window.
func (m *PipelineMetrics) GetStats() PipelineStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pruneErrorTimesLocked(time.Now())

	frames := make(map[string]uint64, len(m.framesProcessed))
	for k, v := range m.framesProcessed {
		frames[k] = v
	}
	wakes := make(map[string]uint64, len(m.wakeDetections))
	for k, v := range m.wakeDetections {
		wakes[k] = v
	}

	stats := PipelineStats{
		FramesProcessed:      frames,
		TranscriptsCompleted: m.transcripts,
		WakeDetections:       wakes,
		StateTransitions:     m.transitions,
		Errors:               m.errorCount,
		ErrorRatePerHour:     float64(len(m.errorTimes)),
		CurrentState:         m.currentState,
		BufferUtilization:    m.bufferUtilization,
		LatencySamples:       len(m.latencyWindow),
	}

	if len(m.latencyWindow) > 0 {
		sorted := make([]float64, len(m.latencyWindow))
		copy(sorted, m.latencyWindow)
		sort.Float64s(sorted)

		var sum float64
		for _, v := range sorted {
			sum += v
		}
		stats.LatencyMeanMs = sum / float64(len(sorted)) * 1000

		idx := int(float64(len(sorted))*0.95 + 0.5)
		if idx >= len(sorted) {
			idx = len(sorted) - 1
		}
		stats.LatencyP95Ms = sorted[idx] * 1000
	}

	return stats
}
