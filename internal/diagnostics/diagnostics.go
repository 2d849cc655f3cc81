// Package diagnostics collects host system information for startup logs
// and the HTTP status surface.
package diagnostics

import (
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemInfo is a point-in-time snapshot of the host.
type SystemInfo struct {
	OS            string  `json:"os"`
	Platform      string  `json:"platform"`
	KernelVersion string  `json:"kernel_version"`
	Hostname      string  `json:"hostname"`
	UptimeSec     uint64  `json:"uptime_sec"`
	NumCPU        int     `json:"num_cpu"`
	CPUModel      string  `json:"cpu_model"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemTotalMB    uint64  `json:"mem_total_mb"`
	MemUsedMB     uint64  `json:"mem_used_mb"`
	MemPercent    float64 `json:"mem_percent"`
	GoVersion     string  `json:"go_version"`
	NumGoroutine  int     `json:"num_goroutine"`
}

// CaptureSystemInfo gathers a snapshot, tolerating partial failures so a
// broken probe never blocks startup reporting.
func CaptureSystemInfo() SystemInfo {
	info := SystemInfo{
		OS:           runtime.GOOS,
		NumCPU:       runtime.NumCPU(),
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
	}

	if hostInfo, err := host.Info(); err == nil {
		info.Platform = hostInfo.Platform
		info.KernelVersion = hostInfo.KernelVersion
		info.Hostname = hostInfo.Hostname
		info.UptimeSec = hostInfo.Uptime
	}

	if cpuInfo, err := cpu.Info(); err == nil && len(cpuInfo) > 0 {
		info.CPUModel = cpuInfo[0].ModelName
	}
	if percents, err := cpu.Percent(100*time.Millisecond, false); err == nil && len(percents) > 0 {
		info.CPUPercent = percents[0]
	}

	if memInfo, err := mem.VirtualMemory(); err == nil {
		info.MemTotalMB = memInfo.Total / 1024 / 1024
		info.MemUsedMB = memInfo.Used / 1024 / 1024
		info.MemPercent = memInfo.UsedPercent
	}

	return info
}
