package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MQTTMetrics contains Prometheus metrics for transcript publishing.
type MQTTMetrics struct {
	registry *prometheus.Registry

	publishTotal     *prometheus.CounterVec
	publishDuration  prometheus.Histogram
	connectionStatus prometheus.Gauge
	errorsTotal      *prometheus.CounterVec
}

// NewMQTTMetrics creates and registers new MQTT metrics.
func NewMQTTMetrics(registry *prometheus.Registry) (*MQTTMetrics, error) {
	m := &MQTTMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *MQTTMetrics) initMetrics() {
	m.publishTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mqtt_publish_total",
			Help: "Total MQTT publish attempts",
		},
		[]string{"status"}, // success, error, timeout
	)

	m.publishDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mqtt_publish_duration_seconds",
			Help:    "Time taken for MQTT publishes",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
	)

	m.connectionStatus = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mqtt_connection_status",
			Help: "MQTT connection status (1 connected, 0 disconnected)",
		},
	)

	m.errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mqtt_errors_total",
			Help: "Total MQTT errors",
		},
		[]string{"error_type"},
	)
}

// Describe implements the Collector interface
func (m *MQTTMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.publishTotal.Describe(ch)
	m.publishDuration.Describe(ch)
	m.connectionStatus.Describe(ch)
	m.errorsTotal.Describe(ch)
}

// Collect implements the Collector interface
func (m *MQTTMetrics) Collect(ch chan<- prometheus.Metric) {
	m.publishTotal.Collect(ch)
	m.publishDuration.Collect(ch)
	m.connectionStatus.Collect(ch)
	m.errorsTotal.Collect(ch)
}

// RecordPublish counts one publish attempt by status.
func (m *MQTTMetrics) RecordPublish(status string) {
	m.publishTotal.WithLabelValues(status).Inc()
}

// ObservePublishDuration records the duration of one publish.
func (m *MQTTMetrics) ObservePublishDuration(seconds float64) {
	m.publishDuration.Observe(seconds)
}

// UpdateConnectionStatus sets the connection gauge.
func (m *MQTTMetrics) UpdateConnectionStatus(connected bool) {
	if connected {
		m.connectionStatus.Set(1)
	} else {
		m.connectionStatus.Set(0)
	}
}

// RecordError counts one error by type.
func (m *MQTTMetrics) RecordError(errorType string) {
	m.errorsTotal.WithLabelValues(errorType).Inc()
}
