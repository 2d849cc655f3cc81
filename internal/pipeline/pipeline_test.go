package pipeline

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/voicewire/voicewire-go/internal/audio"
	"github.com/voicewire/voicewire-go/internal/conf"
	"github.com/voicewire/voicewire-go/internal/observability/metrics"
)

func testSettings() *conf.Settings {
	s := &conf.Settings{}
	s.Audio.SampleRate = 16000
	s.Audio.Channels = 1
	s.Audio.FrameMs = 20
	s.Audio.RingBufferMs = 4000
	s.WakeWord.Sensitivity = 0.5
	s.WakeWord.CooldownSec = 1
	s.STT.Language = "en"
	s.Language.Enabled = true
	s.Pipeline.QueueSize = 16
	s.Pipeline.OutputQueueSize = 64
	s.Pipeline.TickMs = 1
	s.Pipeline.ShutdownGraceSec = 5
	s.Pipeline.ErrorRecoveryTicks = 100
	s.Pipeline.ErrorRecoveryLimit = 5
	return s
}

func testMetrics(t *testing.T) *metrics.PipelineMetrics {
	t.Helper()
	pm, err := metrics.NewPipelineMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	return pm
}

func testBuffer(t *testing.T, s *conf.Settings) *audio.AudioBuffer {
	t.Helper()
	buf, err := audio.NewAudioBuffer(s.Audio.SampleRate, 1, s.Audio.FrameMs, s.Audio.RingBufferMs)
	require.NoError(t, err)
	return buf
}

func startPipeline(t *testing.T, p *AudioPipeline) (cancel context.CancelFunc, done chan struct{}) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done = make(chan struct{})
	go func() {
		defer close(done)
		_ = p.Start(ctx)
	}()
	return cancel, done
}

func waitForState(t *testing.T, p *AudioPipeline, want State) {
	t.Helper()
	require.Eventually(t, func() bool {
		return p.State() == want
	}, 2*time.Second, time.Millisecond, "pipeline never reached %s", want)
}

func TestFirstObservedStateIsListening(t *testing.T) {
	s := testSettings()
	pm := testMetrics(t)
	p := NewAudioPipeline(s, testBuffer(t, s), pm)

	cancel, done := startPipeline(t, p)
	defer func() { cancel(); <-done }()

	waitForState(t, p, StateListening)
}

func TestTransitionCounterOnlyOnChange(t *testing.T) {
	s := testSettings()
	pm := testMetrics(t)
	p := NewAudioPipeline(s, testBuffer(t, s), pm)

	p.transition(StateListening)
	p.transition(StateListening)
	p.transition(StateListening)
	p.transition(StateProcessing)

	stats := pm.GetStats()
	assert.Equal(t, uint64(2), stats.StateTransitions)
	assert.Equal(t, "processing", stats.CurrentState)
}

func TestFullCycleWithSyntheticEvents(t *testing.T) {
	s := testSettings()
	pm := testMetrics(t)
	p := NewAudioPipeline(s, testBuffer(t, s), pm)

	cancel, done := startPipeline(t, p)
	defer func() { cancel(); <-done }()

	waitForState(t, p, StateListening)

	// Synthetic detection followed by a synthetic utterance drives a full
	// Listening -> Processing -> Emit -> Listening cycle.
	p.wakeCh <- WakeEvent{Detected: true, Confidence: 0.9, Timestamp: time.Now()}
	p.preCh <- AudioChunk{
		PCM:        make([]int16, 3200),
		SampleRate: s.Audio.SampleRate,
		Start:      time.Now(),
	}

	var record OutputRecord
	select {
	case record = <-p.OutputStream():
	case <-time.After(2 * time.Second):
		t.Fatal("no output record produced")
	}

	assert.NotEmpty(t, record.ID)
	assert.NotEmpty(t, record.Transcript)
	assert.Equal(t, "en", record.Language)
	assert.NotEmpty(t, record.Sentiment)
	assert.Positive(t, record.ProcessingTimeMs)

	waitForState(t, p, StateListening)

	stats := pm.GetStats()
	assert.Equal(t, uint64(1), stats.TranscriptsCompleted)
	assert.Equal(t, uint64(1), stats.WakeDetections["high"])
}

func TestUndetectedWakeEventIgnored(t *testing.T) {
	s := testSettings()
	pm := testMetrics(t)
	p := NewAudioPipeline(s, testBuffer(t, s), pm)

	cancel, done := startPipeline(t, p)
	defer func() { cancel(); <-done }()

	waitForState(t, p, StateListening)
	p.wakeCh <- WakeEvent{Detected: false}

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, StateListening, p.State())
	assert.Equal(t, uint64(0), pm.GetStats().WakeDetections["high"])
}

func TestLanguageDisabledPassthrough(t *testing.T) {
	s := testSettings()
	s.Language.Enabled = false
	pm := testMetrics(t)
	p := NewAudioPipeline(s, testBuffer(t, s), pm)

	cancel, done := startPipeline(t, p)
	defer func() { cancel(); <-done }()

	waitForState(t, p, StateListening)
	p.wakeCh <- WakeEvent{Detected: true, Confidence: 0.7, Timestamp: time.Now()}
	p.preCh <- AudioChunk{PCM: make([]int16, 1600), SampleRate: s.Audio.SampleRate, Start: time.Now()}

	select {
	case record := <-p.OutputStream():
		assert.Equal(t, "unknown", record.Sentiment)
		assert.Equal(t, "en", record.Language)
	case <-time.After(2 * time.Second):
		t.Fatal("no output record produced")
	}
}

func TestErrorStateRecovery(t *testing.T) {
	s := testSettings()
	s.Pipeline.ErrorRecoveryTicks = 5
	pm := testMetrics(t)
	p := NewAudioPipeline(s, testBuffer(t, s), pm)

	cancel, done := startPipeline(t, p)
	defer func() { cancel(); <-done }()

	waitForState(t, p, StateListening)
	p.errCh <- assert.AnError

	// The machine enters Error, waits out the recovery ticks, then drains
	// queues and returns to Listening.
	waitForState(t, p, StateListening)
	stats := pm.GetStats()
	assert.GreaterOrEqual(t, stats.Errors, uint64(1))
}

func TestErrorRecoveryLimitShutsDown(t *testing.T) {
	s := testSettings()
	s.Pipeline.ErrorRecoveryTicks = 1
	s.Pipeline.ErrorRecoveryLimit = 2
	pm := testMetrics(t)
	p := NewAudioPipeline(s, testBuffer(t, s), pm)

	cancel, done := startPipeline(t, p)
	defer cancel()

	waitForState(t, p, StateListening)
	for i := 0; i < 5; i++ {
		select {
		case p.errCh <- assert.AnError:
		default:
		}
		time.Sleep(20 * time.Millisecond)
	}

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("pipeline did not shut down after exceeding recovery limit")
	}
	assert.Equal(t, StateShutdown, p.State())
}

func TestShutdownIdempotent(t *testing.T) {
	s := testSettings()
	pm := testMetrics(t)
	p := NewAudioPipeline(s, testBuffer(t, s), pm)

	cancel, done := startPipeline(t, p)
	waitForState(t, p, StateListening)

	cancel()
	<-done

	// A second shutdown must not panic or double-close the output stream.
	assert.NotPanics(t, func() {
		p.Shutdown()
		p.Shutdown()
	})
}

// An externally invoked Shutdown must wait for the state machine loop to
// exit before closing the output stream; closing it during an in-flight
// emit would panic the loop goroutine.
func TestShutdownWaitsForEmittingLoop(t *testing.T) {
	s := testSettings()
	s.Language.Enabled = false
	s.Pipeline.OutputQueueSize = 1
	pm := testMetrics(t)
	p := NewAudioPipeline(s, testBuffer(t, s), pm)

	// Queue enough work to keep the loop cycling through emissions against
	// a full output queue, so shutdown lands mid-emit.
	for i := 0; i < cap(p.wakeCh); i++ {
		p.wakeCh <- WakeEvent{Detected: true, Confidence: 0.9, Timestamp: time.Now()}
		p.transcriptCh <- Transcript{Text: "hello", Confidence: 0.8, Start: time.Now()}
	}
	p.outputCh <- OutputRecord{ID: "filler"}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.cancelRun = cancel
	p.wg.Add(1)
	go p.stateLoop(ctx)

	time.Sleep(10 * time.Millisecond)

	assert.NotPanics(t, p.Shutdown)
	assert.Equal(t, StateShutdown, p.state)

	for range p.OutputStream() {
	}
}

func TestNoGoroutineLeaksAfterShutdown(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := testSettings()
	pm := testMetrics(t)
	p := NewAudioPipeline(s, testBuffer(t, s), pm)

	cancel, done := startPipeline(t, p)
	waitForState(t, p, StateListening)
	cancel()
	<-done
}

// Latency acceptance: with stage costs drawn from realistic distributions
// the end-to-end distribution must stay inside the budget, p95 under 150ms
// and mean under 120ms.
func TestLatencyBudgetAcceptance(t *testing.T) {
	pm := testMetrics(t)

	jitter := func(mean float64) float64 {
		v := mean * (0.7 + rand.Float64()*0.6)
		return v
	}

	const cycles = 1000
	for i := 0; i < cycles; i++ {
		total := jitter(0.1) + // capture
			jitter(2.0) + // wake word
			jitter(1.0) + // preprocess
			jitter(20.0) + // speech to text
			jitter(3.0) + // language
			jitter(1.0) // publish
		pm.RecordEndToEndLatency(total / 1000.0)
	}

	stats := pm.GetStats()
	require.Equal(t, cycles, stats.LatencySamples)
	assert.Less(t, stats.LatencyP95Ms, 150.0, "p95 latency over budget")
	assert.Less(t, stats.LatencyMeanMs, 120.0, "mean latency over budget")
}
