package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/gen2brain/malgo"

	"github.com/voicewire/voicewire-go/internal/conf"
	"github.com/voicewire/voicewire-go/internal/errors"
	"github.com/voicewire/voicewire-go/internal/logging"
	"github.com/voicewire/voicewire-go/internal/observability/metrics"
)

const (
	monitorInterval = 10 * time.Second
	trialDuration   = 100 * time.Millisecond
	levelMeterEvery = 50 // frames between level meter samples
)

// captureSource holds information about a selected capture device.
type captureSource struct {
	Name    string
	ID      string
	Pointer unsafe.Pointer
	Default bool
}

// DeviceInfo describes an available audio capture device.
type DeviceInfo struct {
	Index   int
	Name    string
	Default bool
}

// Capture is the hardware capture stage. The malgo data callback runs on the
// audio driver's own thread and only touches the shared ring buffer plus a
// few atomic counters; everything else happens on the monitor goroutine.
type Capture struct {
	settings *conf.Settings
	buffer   *AudioBuffer
	metrics  *metrics.AudioMetrics
	log      *slog.Logger

	mu       sync.Mutex
	ctx      *malgo.AllocatedContext
	device   *malgo.Device
	source   captureSource
	warmedUp bool

	// hot-path counters, written from the driver thread
	framesDelivered atomic.Uint64
	framesRejected  atomic.Uint64
	writeErrors     atomic.Uint64
	callbackNanos   atomic.Uint64
	callbackPeak    atomic.Uint64
	lastLevel       atomic.Int64

	// scratch reused by the callback; safe because malgo invokes the data
	// callback from a single thread
	monoScratch []int16
}

// NewCapture creates the capture stage writing into buffer. metrics may be
// nil in tests.
func NewCapture(settings *conf.Settings, buffer *AudioBuffer, m *metrics.AudioMetrics) *Capture {
	return &Capture{
		settings:    settings,
		buffer:      buffer,
		metrics:     m,
		log:         logging.ForService("capture"),
		monoScratch: make([]int16, buffer.FrameSize()),
	}
}

// preferredBackends returns the platform native backend, leaving malgo to
// auto-select elsewhere.
func preferredBackends() []malgo.Backend {
	switch runtime.GOOS {
	case "linux":
		return []malgo.Backend{malgo.BackendAlsa}
	case "windows":
		return []malgo.Backend{malgo.BackendWasapi}
	case "darwin":
		return []malgo.Backend{malgo.BackendCoreaudio}
	default:
		return nil
	}
}

// ListDevices enumerates available capture devices.
func ListDevices() ([]DeviceInfo, error) {
	ctx, err := malgo.InitContext(preferredBackends(), malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, errors.New(err).Category(errors.CategoryAudioDevice).Build()
	}
	defer func() { _ = ctx.Uninit() }()

	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, errors.New(err).Category(errors.CategoryAudioDevice).Build()
	}

	devices := make([]DeviceInfo, 0, len(infos))
	for i, info := range infos {
		devices = append(devices, DeviceInfo{
			Index:   i,
			Name:    info.Name(),
			Default: info.IsDefault == 1,
		})
	}
	return devices, nil
}

// selectCaptureSource picks a device whose name contains the configured
// source as a case-insensitive substring, falling back to the default input
// device when no name matches.
func selectCaptureSource(infos []malgo.DeviceInfo, wanted string) (captureSource, error) {
	var fallback captureSource
	var haveFallback bool

	for _, info := range infos {
		src := captureSource{
			Name:    info.Name(),
			ID:      info.ID.String(),
			Pointer: info.ID.Pointer(),
			Default: info.IsDefault == 1,
		}
		if wanted != "" && strings.Contains(strings.ToLower(src.Name), strings.ToLower(wanted)) {
			return src, nil
		}
		if src.Default {
			fallback = src
			haveFallback = true
		}
	}

	if haveFallback {
		return fallback, nil
	}
	return captureSource{}, errors.Newf("no capture device matches %q and no default input device found", wanted).
		Category(errors.CategoryAudioDevice).
		Context("wanted", wanted).
		Build()
}

// deviceConfig builds the malgo device configuration for the configured
// audio parameters. Period size is set to one frame so the callback
// delivers exactly frame-sized chunks.
func (c *Capture) deviceConfig(deviceID unsafe.Pointer) malgo.DeviceConfig {
	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = uint32(c.settings.Audio.Channels)
	cfg.SampleRate = uint32(c.settings.Audio.SampleRate)
	cfg.PeriodSizeInMilliseconds = uint32(c.settings.Audio.FrameMs)
	cfg.Alsa.NoMMap = 1
	cfg.Capture.DeviceID = deviceID
	return cfg
}

// Warmup initializes the malgo context, selects the capture device, and
// validates the configuration with a short trial capture. It is idempotent.
func (c *Capture) Warmup(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.warmedUp {
		return nil
	}

	malgoCtx, err := malgo.InitContext(preferredBackends(), malgo.ContextConfig{}, func(message string) {
		if c.settings.Debug {
			c.log.Debug("malgo", "message", strings.TrimSpace(message))
		}
	})
	if err != nil {
		return errors.New(err).Category(errors.CategoryAudioDevice).Context("op", "init_context").Build()
	}
	c.ctx = malgoCtx

	infos, err := malgoCtx.Devices(malgo.Capture)
	if err != nil {
		return errors.New(err).Category(errors.CategoryAudioDevice).Context("op", "enumerate").Build()
	}

	source, err := selectCaptureSource(infos, c.settings.Audio.Source)
	if err != nil {
		if c.metrics != nil {
			c.metrics.RecordDeviceError("selection")
		}
		return err
	}
	c.source = source
	c.log.Info("selected capture device", "name", source.Name, "default", source.Default)

	if err := c.trialCapture(ctx); err != nil {
		if c.metrics != nil {
			c.metrics.RecordDeviceError("trial_capture")
		}
		return err
	}

	c.warmedUp = true
	return nil
}

// trialCapture opens the device briefly to confirm the configuration works
// before the real stream starts.
func (c *Capture) trialCapture(ctx context.Context) error {
	var trialFrames atomic.Uint64
	callbacks := malgo.DeviceCallbacks{
		Data: func(_, _ []byte, _ uint32) {
			trialFrames.Add(1)
		},
	}

	device, err := malgo.InitDevice(c.ctx.Context, c.deviceConfig(c.source.Pointer), callbacks)
	if err != nil {
		return errors.New(err).Category(errors.CategoryAudioDevice).Context("op", "trial_init").Build()
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		return errors.New(err).Category(errors.CategoryAudioDevice).Context("op", "trial_start").Build()
	}

	select {
	case <-time.After(trialDuration):
	case <-ctx.Done():
		_ = device.Stop()
		return ctx.Err()
	}
	if err := device.Stop(); err != nil {
		return errors.New(err).Category(errors.CategoryAudioDevice).Context("op", "trial_stop").Build()
	}

	c.log.Debug("trial capture complete", "callbacks", trialFrames.Load())
	return nil
}

// onReceiveFrames is the hardware data callback. It must stay O(1): length
// validation, mono downmix, one ring buffer write, atomic counters. Errors
// are counted, never raised back to the driver.
func (c *Capture) onReceiveFrames(_, pSamples []byte, frameCount uint32) {
	start := time.Now()
	_ = frameCount

	channels := c.settings.Audio.Channels
	samples := c.monoScratch
	wantBytes := len(samples) * channels * 2

	if len(pSamples) != wantBytes {
		c.framesRejected.Add(1)
		return
	}

	if channels == 1 {
		for i := range samples {
			samples[i] = int16(binary.LittleEndian.Uint16(pSamples[2*i:]))
		}
	} else {
		// Average stereo pairs down to mono.
		for i := range samples {
			l := int16(binary.LittleEndian.Uint16(pSamples[4*i:]))
			r := int16(binary.LittleEndian.Uint16(pSamples[4*i+2:]))
			samples[i] = int16((int32(l) + int32(r)) / 2)
		}
	}

	if err := c.buffer.Write(samples); err != nil {
		c.writeErrors.Add(1)
	} else {
		c.framesDelivered.Add(1)
	}

	// Meter roughly once per second; the frame is already in cache from the
	// downmix pass.
	if c.framesDelivered.Load()%levelMeterEvery == 0 {
		c.lastLevel.Store(int64(CalculateLevel(samples).Level))
	}

	elapsed := uint64(time.Since(start).Nanoseconds())
	c.callbackNanos.Add(elapsed)
	for {
		peak := c.callbackPeak.Load()
		if elapsed <= peak || c.callbackPeak.CompareAndSwap(peak, elapsed) {
			break
		}
	}
}

// Run starts the capture device and blocks until the context is cancelled,
// periodically forwarding callback and buffer statistics to telemetry.
func (c *Capture) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.ctx == nil {
		c.mu.Unlock()
		return errors.Newf("capture started without warmup").Category(errors.CategoryAudioCapture).Build()
	}

	callbacks := malgo.DeviceCallbacks{
		Data: c.onReceiveFrames,
	}
	device, err := malgo.InitDevice(c.ctx.Context, c.deviceConfig(c.source.Pointer), callbacks)
	if err != nil {
		c.mu.Unlock()
		return errors.New(err).Category(errors.CategoryAudioDevice).Context("op", "init_device").Build()
	}
	c.device = device
	c.mu.Unlock()

	if err := device.Start(); err != nil {
		return errors.New(err).Category(errors.CategoryAudioDevice).Context("op", "start_device").Build()
	}
	c.log.Info("listening on source", "name", c.source.Name)

	c.monitorLoop(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device != nil {
		if err := c.device.Stop(); err != nil {
			c.log.Warn("failed to stop capture device", "error", err)
		}
	}
	return nil
}

// monitorLoop periodically derives effective frame rate and callback timing
// from the accumulated counters and forwards buffer stats to telemetry.
func (c *Capture) monitorLoop(ctx context.Context) {
	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()

	var lastDelivered uint64
	var lastNanos uint64

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			delivered := c.framesDelivered.Load()
			nanos := c.callbackNanos.Load()
			intervalFrames := delivered - lastDelivered
			intervalNanos := nanos - lastNanos
			lastDelivered = delivered
			lastNanos = nanos

			frameRate := float64(intervalFrames) / monitorInterval.Seconds()
			var avgCallback time.Duration
			if intervalFrames > 0 {
				avgCallback = time.Duration(intervalNanos / intervalFrames)
			}
			peak := time.Duration(c.callbackPeak.Swap(0))

			stats := c.buffer.AudioStats()
			if c.metrics != nil {
				c.metrics.UpdateBufferUtilization(stats.Utilization)
				c.metrics.UpdateBufferLatency(float64(stats.BufferLatencyMs) / 1000.0)
				c.metrics.RecordOverflows(stats.Overflows)
				c.metrics.UpdateFrameRate(frameRate)
				c.metrics.ObserveCallbackDuration(avgCallback.Seconds())
				c.metrics.UpdateAudioLevel(int(c.lastLevel.Load()))
			}

			c.log.Debug("capture monitor",
				"frame_rate", frameRate,
				"avg_callback", avgCallback,
				"peak_callback", peak,
				"buffered_ms", stats.AudioDurationMs,
				"utilization", fmt.Sprintf("%.2f", stats.Utilization),
				"write_errors", c.writeErrors.Load(),
				"rejected", c.framesRejected.Load(),
			)
		}
	}
}

// Cleanup releases the device and context. Safe to call without Run.
func (c *Capture) Cleanup() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.device != nil {
		c.device.Uninit()
		c.device = nil
	}
	if c.ctx != nil {
		if err := c.ctx.Uninit(); err != nil {
			return errors.New(err).Category(errors.CategoryAudioDevice).Context("op", "uninit_context").Build()
		}
		c.ctx.Free()
		c.ctx = nil
	}
	c.warmedUp = false
	return nil
}

// CallbackStats reports hot-path counters for tests and diagnostics.
func (c *Capture) CallbackStats() (delivered, rejected, writeErrors uint64) {
	return c.framesDelivered.Load(), c.framesRejected.Load(), c.writeErrors.Load()
}
