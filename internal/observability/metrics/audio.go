package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// AudioMetrics contains Prometheus metrics for the capture subsystem.
type AudioMetrics struct {
	registry *prometheus.Registry

	bufferUtilizationGauge prometheus.Gauge
	bufferLatencyGauge     prometheus.Gauge
	frameRateGauge         prometheus.Gauge
	audioLevelGauge        prometheus.Gauge
	callbackDuration       prometheus.Histogram
	overflowsTotal         prometheus.Counter
	deviceErrorsTotal      *prometheus.CounterVec

	mu            sync.Mutex
	lastOverflows uint64
}

// NewAudioMetrics creates and registers new capture metrics.
func NewAudioMetrics(registry *prometheus.Registry) (*AudioMetrics, error) {
	m := &AudioMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *AudioMetrics) initMetrics() {
	m.bufferUtilizationGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "audio_buffer_utilization_ratio",
			Help: "Capture ring buffer utilization ratio (0.0 to 1.0)",
		},
	)

	m.bufferLatencyGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "audio_buffer_latency_seconds",
			Help: "Unconsumed audio currently buffered, in seconds",
		},
	)

	m.frameRateGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "audio_capture_frame_rate",
			Help: "Effective frames per second delivered by the capture callback",
		},
	)

	m.audioLevelGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "audio_capture_level",
			Help: "Capture RMS level scaled 0-100",
		},
	)

	m.callbackDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "audio_capture_callback_duration_seconds",
			Help:    "Average capture callback execution time per monitor interval",
			Buckets: prometheus.ExponentialBuckets(0.000001, 4, 10), // 1us to ~260ms
		},
	)

	m.overflowsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "audio_buffer_overflows_total",
			Help: "Total ring buffer overflows (oldest frame evicted)",
		},
	)

	m.deviceErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audio_device_errors_total",
			Help: "Total audio device errors",
		},
		[]string{"error_type"},
	)
}

// Describe implements the Collector interface
func (m *AudioMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.bufferUtilizationGauge.Describe(ch)
	m.bufferLatencyGauge.Describe(ch)
	m.frameRateGauge.Describe(ch)
	m.audioLevelGauge.Describe(ch)
	m.callbackDuration.Describe(ch)
	m.overflowsTotal.Describe(ch)
	m.deviceErrorsTotal.Describe(ch)
}

// Collect implements the Collector interface
func (m *AudioMetrics) Collect(ch chan<- prometheus.Metric) {
	m.bufferUtilizationGauge.Collect(ch)
	m.bufferLatencyGauge.Collect(ch)
	m.frameRateGauge.Collect(ch)
	m.audioLevelGauge.Collect(ch)
	m.callbackDuration.Collect(ch)
	m.overflowsTotal.Collect(ch)
	m.deviceErrorsTotal.Collect(ch)
}

// UpdateBufferUtilization updates the ring buffer utilization ratio.
func (m *AudioMetrics) UpdateBufferUtilization(utilization float64) {
	m.bufferUtilizationGauge.Set(utilization)
}

// UpdateBufferLatency updates the buffered-audio latency gauge.
func (m *AudioMetrics) UpdateBufferLatency(seconds float64) {
	m.bufferLatencyGauge.Set(seconds)
}

// UpdateFrameRate updates the effective capture frame rate.
func (m *AudioMetrics) UpdateFrameRate(framesPerSecond float64) {
	m.frameRateGauge.Set(framesPerSecond)
}

// UpdateAudioLevel updates the capture level gauge.
func (m *AudioMetrics) UpdateAudioLevel(level int) {
	m.audioLevelGauge.Set(float64(level))
}

// ObserveCallbackDuration records the average callback execution time.
func (m *AudioMetrics) ObserveCallbackDuration(seconds float64) {
	m.callbackDuration.Observe(seconds)
}

// RecordOverflows advances the overflow counter to the given monotonic
// total observed on the ring buffer.
func (m *AudioMetrics) RecordOverflows(total uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if total > m.lastOverflows {
		m.overflowsTotal.Add(float64(total - m.lastOverflows))
		m.lastOverflows = total
	}
}

// RecordDeviceError counts one device error by type.
func (m *AudioMetrics) RecordDeviceError(errorType string) {
	m.deviceErrorsTotal.WithLabelValues(errorType).Inc()
}
