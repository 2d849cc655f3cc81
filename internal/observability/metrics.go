// Package observability provides metrics and health monitoring for the
// pipeline.
package observability

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"

	"github.com/voicewire/voicewire-go/internal/observability/metrics"
)

// Metrics holds all the metric collectors for the application. It is
// constructed once at process start and shared by reference with every
// component that needs it.
type Metrics struct {
	registry *prometheus.Registry
	Pipeline *metrics.PipelineMetrics
	Audio    *metrics.AudioMetrics
	MQTT     *metrics.MQTTMetrics
}

// NewMetrics creates a new instance of Metrics, initializing all metric
// collectors on a private registry.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	pipelineMetrics, err := metrics.NewPipelineMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline metrics: %w", err)
	}

	audioMetrics, err := metrics.NewAudioMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create audio metrics: %w", err)
	}

	mqttMetrics, err := metrics.NewMQTTMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create MQTT metrics: %w", err)
	}

	return &Metrics{
		registry: registry,
		Pipeline: pipelineMetrics,
		Audio:    audioMetrics,
		MQTT:     mqttMetrics,
	}, nil
}

// Handler returns the HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog:      log.New(os.Stderr, "metrics handler: ", log.LstdFlags),
		ErrorHandling: promhttp.HTTPErrorOnError,
	})
}

// RegisterHandlers registers the metrics endpoint with the provided mux.
func (m *Metrics) RegisterHandlers(mux *http.ServeMux) {
	mux.Handle("/metrics", m.Handler())
}

// GatherText renders all registered metrics in a plain text exposition
// format for scrapers that bypass the HTTP endpoint.
func (m *Metrics) GatherText() (string, error) {
	families, err := m.registry.Gather()
	if err != nil {
		return "", fmt.Errorf("failed to gather metrics: %w", err)
	}

	var b strings.Builder
	for _, family := range families {
		fmt.Fprintf(&b, "# HELP %s %s\n", family.GetName(), family.GetHelp())
		fmt.Fprintf(&b, "# TYPE %s %s\n", family.GetName(), strings.ToLower(family.GetType().String()))
		for _, metric := range family.GetMetric() {
			labels := formatLabels(metric.GetLabel())
			switch family.GetType() {
			case dto.MetricType_COUNTER:
				fmt.Fprintf(&b, "%s%s %v\n", family.GetName(), labels, metric.GetCounter().GetValue())
			case dto.MetricType_GAUGE:
				fmt.Fprintf(&b, "%s%s %v\n", family.GetName(), labels, metric.GetGauge().GetValue())
			case dto.MetricType_HISTOGRAM:
				h := metric.GetHistogram()
				fmt.Fprintf(&b, "%s_count%s %d\n", family.GetName(), labels, h.GetSampleCount())
				fmt.Fprintf(&b, "%s_sum%s %v\n", family.GetName(), labels, h.GetSampleSum())
			default:
				// Summary and untyped metrics are not produced by this
				// application.
			}
		}
	}
	return b.String(), nil
}

func formatLabels(pairs []*dto.LabelPair) string {
	if len(pairs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		parts = append(parts, fmt.Sprintf("%s=%q", p.GetName(), p.GetValue()))
	}
	sort.Strings(parts)
	return "{" + strings.Join(parts, ",") + "}"
}
