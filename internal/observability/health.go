package observability

import (
	"fmt"
)

const (
	// maxErrorRatePerHour marks the pipeline unhealthy above this rate.
	maxErrorRatePerHour = 10.0

	// bufferUtilizationWarning flags (but does not fail) the health check.
	bufferUtilizationWarning = 0.9
)

// HealthStatus is the verdict returned by HealthCheck, usable by
// liveness/readiness probes.
type HealthStatus struct {
	Healthy          bool     `json:"healthy"`
	State            string   `json:"state"`
	ErrorRatePerHour float64  `json:"error_rate_per_hour"`
	Warnings         []string `json:"warnings,omitempty"`
	Reasons          []string `json:"reasons,omitempty"`
}

// HealthCheck derives a health verdict from pipeline telemetry: unhealthy
// when the pipeline sits in the Error state or the error rate exceeds the
// hourly limit; high buffer utilization is flagged without failing.
func (m *Metrics) HealthCheck() HealthStatus {
	status := HealthStatus{
		Healthy:          true,
		State:            m.Pipeline.CurrentState(),
		ErrorRatePerHour: m.Pipeline.ErrorRatePerHour(),
	}

	if status.State == "error" {
		status.Healthy = false
		status.Reasons = append(status.Reasons, "pipeline is in the error state")
	}

	if status.ErrorRatePerHour > maxErrorRatePerHour {
		status.Healthy = false
		status.Reasons = append(status.Reasons,
			fmt.Sprintf("error rate %.0f/hour exceeds limit of %.0f/hour",
				status.ErrorRatePerHour, maxErrorRatePerHour))
	}

	if utilization := m.Pipeline.BufferUtilization(); utilization > bufferUtilizationWarning {
		status.Warnings = append(status.Warnings,
			fmt.Sprintf("buffer utilization %.0f%% above %.0f%%",
				utilization*100, bufferUtilizationWarning*100))
	}

	return status
}
