package pipeline

import (
	"context"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/voicewire/voicewire-go/internal/audio"
	"github.com/voicewire/voicewire-go/internal/conf"
	"github.com/voicewire/voicewire-go/internal/logging"
	"github.com/voicewire/voicewire-go/internal/observability/metrics"
)

// utteranceDuration bounds how much audio is forwarded downstream after a
// wake-word detection before the utterance is considered complete.
const utteranceDuration = 2 * time.Second

const cooldownKey = "wake"

// WakeDetector scores a single mono frame. Real model integrations replace
// the stub by implementing this interface.
type WakeDetector interface {
	Detect(frame []int16) (detected bool, confidence float64)
}

// energyDetector is the shipped model stub: it triggers on frame RMS energy
// crossing a sensitivity-derived threshold and reports a randomized
// confidence, standing in for a real wake-word model.
type energyDetector struct {
	threshold float64
}

func newEnergyDetector(sensitivity float64) *energyDetector {
	// Higher sensitivity lowers the energy bar for a detection.
	return &energyDetector{threshold: 12000 * (1.0 - sensitivity*0.8)}
}

func (d *energyDetector) Detect(frame []int16) (bool, float64) {
	var sum float64
	for _, s := range frame {
		f := float64(s)
		sum += f * f
	}
	rms := math.Sqrt(sum / float64(len(frame)))
	if rms < d.threshold {
		return false, 0
	}
	return true, 0.5 + rand.Float64()*0.5
}

// WakeWordStage polls the shared audio ring buffer, runs the detector on
// each frame, and on a qualifying detection publishes a WakeEvent and then
// forwards the utterance frames to the preprocessing queue.
type WakeWordStage struct {
	settings *conf.Settings
	buffer   *audio.AudioBuffer
	detector WakeDetector
	metrics  *metrics.PipelineMetrics
	log      *slog.Logger

	wakeOut  chan<- WakeEvent
	frameOut chan<- FrameEvent

	cooldown *gocache.Cache
}

// NewWakeWordStage builds the wake-word stage with the shipped detector
// stub. Metrics may be nil in tests.
func NewWakeWordStage(settings *conf.Settings, buffer *audio.AudioBuffer, pm *metrics.PipelineMetrics,
	wakeOut chan<- WakeEvent, frameOut chan<- FrameEvent) *WakeWordStage {
	cooldown := time.Duration(settings.WakeWord.CooldownSec) * time.Second
	return &WakeWordStage{
		settings: settings,
		buffer:   buffer,
		detector: newEnergyDetector(settings.WakeWord.Sensitivity),
		metrics:  pm,
		log:      logging.ForService(StageWakeWord),
		wakeOut:  wakeOut,
		frameOut: frameOut,
		// No janitor goroutine; expiry is checked lazily on Get.
		cooldown: gocache.New(cooldown, 0),
	}
}

// SetDetector swaps in a real wake-word model implementation.
func (s *WakeWordStage) SetDetector(d WakeDetector) {
	s.detector = d
}

// Warmup would load the wake-word model; the stub only logs the configured
// model path so a missing model never blocks startup.
func (s *WakeWordStage) Warmup(ctx context.Context) error {
	if s.log != nil {
		s.log.Info("wake-word warmup", "model", s.settings.WakeWord.ModelPath,
			"sensitivity", s.settings.WakeWord.Sensitivity)
	}
	return nil
}

// Run polls the ring buffer with a bounded wait per iteration so the loop
// stays responsive to cancellation.
func (s *WakeWordStage) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		frame, ok := s.buffer.ReadFrame()
		if !ok {
			// Frame cadence is frameMs; a 1ms sleep keeps wakeups cheap
			// without adding meaningful detection delay.
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(queuePollTimeout):
			}
			continue
		}

		if s.metrics != nil {
			s.metrics.RecordFrameProcessed(StageWakeWord)
		}

		detected, confidence := s.detector.Detect(frame)
		if !detected {
			continue
		}
		if _, onCooldown := s.cooldown.Get(cooldownKey); onCooldown {
			continue
		}
		s.cooldown.SetDefault(cooldownKey, time.Now())

		event := WakeEvent{Detected: true, Confidence: confidence, Timestamp: time.Now()}
		if !sendTimeout(ctx, s.wakeOut, event, queuePollTimeout) {
			if s.metrics != nil {
				s.metrics.RecordError("queue_full", StageWakeWord)
			}
			continue
		}

		s.captureUtterance(ctx, frame)
	}
}

// captureUtterance forwards the wake frame plus subsequent frames until the
// utterance window closes, marking the final frame.
func (s *WakeWordStage) captureUtterance(ctx context.Context, wakeFrame []int16) {
	deadline := time.Now().Add(utteranceDuration)

	if !sendTimeout(ctx, s.frameOut, FrameEvent{PCM: wakeFrame}, queuePollTimeout) {
		if s.metrics != nil {
			s.metrics.RecordError("queue_full", StageWakeWord)
		}
	}

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return
		default:
		}

		frame, ok := s.buffer.ReadFrame()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-time.After(queuePollTimeout):
			}
			continue
		}

		last := !time.Now().Before(deadline)
		if !sendTimeout(ctx, s.frameOut, FrameEvent{PCM: frame, Last: last}, queuePollTimeout) {
			if s.metrics != nil {
				s.metrics.RecordError("queue_full", StageWakeWord)
			}
		}
		if last {
			return
		}
	}

	// Window closed without a frame marked last; send an explicit marker.
	sendTimeout(ctx, s.frameOut, FrameEvent{Last: true}, queuePollTimeout)
}

// Cleanup flushes the cooldown cache. Safe without a prior Run.
func (s *WakeWordStage) Cleanup() error {
	s.cooldown.Flush()
	return nil
}
