package diagnostics

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCaptureSystemInfo(t *testing.T) {
	info := CaptureSystemInfo()

	assert.Equal(t, runtime.GOOS, info.OS)
	assert.Equal(t, runtime.NumCPU(), info.NumCPU)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Positive(t, info.NumGoroutine)
}
