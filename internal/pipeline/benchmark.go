package pipeline

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/voicewire/voicewire-go/internal/audio"
	"github.com/voicewire/voicewire-go/internal/conf"
	"github.com/voicewire/voicewire-go/internal/observability/metrics"
)

// Benchmark drives the pipeline through the requested number of synthetic
// wake-to-transcript cycles without a capture device and returns the
// resulting telemetry snapshot.
func Benchmark(ctx context.Context, settings *conf.Settings, cycles int) (metrics.PipelineStats, error) {
	pm, err := metrics.NewPipelineMetrics(prometheus.NewRegistry())
	if err != nil {
		return metrics.PipelineStats{}, err
	}

	buffer, err := audio.NewAudioBuffer(
		settings.Audio.SampleRate, 1, settings.Audio.FrameMs, settings.Audio.RingBufferMs)
	if err != nil {
		return metrics.PipelineStats{}, err
	}

	p := NewAudioPipeline(settings, buffer, pm)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = p.Start(runCtx)
	}()

	// Utterances long enough to exercise assembly but short enough to keep
	// the run quick.
	utterance := make([]int16, settings.Audio.SampleRate/2)
	for i := range utterance {
		utterance[i] = int16(rand.IntN(20000) - 10000)
	}

	completed := 0
	for completed < cycles {
		select {
		case <-ctx.Done():
			cancel()
			<-done
			return pm.GetStats(), ctx.Err()
		default:
		}

		p.wakeCh <- WakeEvent{Detected: true, Confidence: 0.9, Timestamp: time.Now()}
		p.preCh <- AudioChunk{
			PCM:        utterance,
			SampleRate: settings.Audio.SampleRate,
			Start:      time.Now(),
		}

		select {
		case _, ok := <-p.OutputStream():
			if !ok {
				return pm.GetStats(), nil
			}
			completed++
		case <-time.After(5 * time.Second):
			cancel()
			<-done
			return pm.GetStats(), context.DeadlineExceeded
		}
	}

	cancel()
	<-done
	return pm.GetStats(), nil
}
