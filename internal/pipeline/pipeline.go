package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/voicewire/voicewire-go/internal/audio"
	"github.com/voicewire/voicewire-go/internal/conf"
	"github.com/voicewire/voicewire-go/internal/errors"
	"github.com/voicewire/voicewire-go/internal/logging"
	"github.com/voicewire/voicewire-go/internal/observability/metrics"
)

// State is the pipeline state machine's closed state set.
type State int

const (
	StateIdle State = iota
	StateListening
	StateProcessing
	StateEmit
	StateShutdown
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateProcessing:
		return "processing"
	case StateEmit:
		return "emit"
	case StateShutdown:
		return "shutdown"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// recoveryWindow bounds how long past error recoveries count against the
// recovery limit before the pipeline gives up and shuts down.
const recoveryWindow = time.Hour

// stuckStateTimeout guards Processing and Emit against waiting forever on
// results that will never arrive, for example after a stage crash.
const stuckStateTimeout = 10 * time.Second

// gaugeUpdateInterval controls how often the loop refreshes queue and
// buffer gauges; every tick would be wasteful at a 1ms cadence.
const gaugeUpdateInterval = 100 * time.Millisecond

// AudioPipeline owns the audio ring buffer, the inter-stage queues and the
// stage instances, and drives them with a single state machine loop.
type AudioPipeline struct {
	settings *conf.Settings
	buffer   *audio.AudioBuffer
	metrics  *metrics.PipelineMetrics
	log      *slog.Logger
	closeLog func() error

	stages []namedStage

	wakeCh       chan WakeEvent
	frameCh      chan FrameEvent
	preCh        chan AudioChunk
	sttCh        chan AudioChunk
	transcriptCh chan Transcript
	langCh       chan Transcript
	analysisCh   chan Analysis
	outputCh     chan OutputRecord

	// errCh carries stage run-loop failures into the state machine; a
	// failure escalates via the Error state, never via process exit.
	errCh chan error

	state         State
	lastWake      WakeEvent
	stateEntered  time.Time
	pending       *Analysis
	errorTicks    int
	recoveryTimes []time.Time

	cancelRun    context.CancelFunc
	wg           sync.WaitGroup
	shuttingDown atomic.Bool
	shutdownOnce sync.Once
	warmedUp     bool
}

// NewAudioPipeline wires the processing stages together with bounded
// queues. The capture stage is attached separately because it needs a live
// audio device; tests drive the queues directly instead.
func NewAudioPipeline(settings *conf.Settings, buffer *audio.AudioBuffer, pm *metrics.PipelineMetrics) *AudioPipeline {
	qs := settings.Pipeline.QueueSize
	log, closeLog := logging.ForServiceFile("pipeline",
		settings.Main.Log.Path, settings.Main.Log.Enabled)
	p := &AudioPipeline{
		settings:     settings,
		buffer:       buffer,
		metrics:      pm,
		log:          log,
		closeLog:     closeLog,
		wakeCh:       make(chan WakeEvent, qs),
		frameCh:      make(chan FrameEvent, qs*4),
		preCh:        make(chan AudioChunk, qs),
		sttCh:        make(chan AudioChunk, qs),
		transcriptCh: make(chan Transcript, qs),
		langCh:       make(chan Transcript, qs),
		analysisCh:   make(chan Analysis, qs),
		outputCh:     make(chan OutputRecord, settings.Pipeline.OutputQueueSize),
		errCh:        make(chan error, 8),
		state:        StateIdle,
	}

	p.stages = []namedStage{
		{StageWakeWord, NewWakeWordStage(settings, buffer, pm, p.wakeCh, p.frameCh)},
		{StagePreprocess, NewPreprocessStage(settings, pm, p.frameCh, p.preCh)},
		{StageSTT, NewSTTStage(settings, pm, p.sttCh, p.transcriptCh)},
	}
	if settings.Language.Enabled {
		p.stages = append(p.stages,
			namedStage{StageLanguage, NewLanguageStage(settings, pm, p.langCh, p.analysisCh)})
	}

	if pm != nil {
		pm.SetCurrentState(p.state.String())
	}
	return p
}

// AttachCapture registers the hardware capture stage ahead of the
// processing stages so it warms up and starts first.
func (p *AudioPipeline) AttachCapture(stage Stage) {
	p.stages = append([]namedStage{{StageCapture, stage}}, p.stages...)
}

// OutputStream returns the bounded queue of completed records. The channel
// is closed during shutdown.
func (p *AudioPipeline) OutputStream() <-chan OutputRecord {
	return p.outputCh
}

// State returns the state machine's current state. Only safe to rely on
// for observation; transitions belong to the loop alone.
func (p *AudioPipeline) State() State {
	if p.metrics != nil {
		switch p.metrics.CurrentState() {
		case "idle":
			return StateIdle
		case "listening":
			return StateListening
		case "processing":
			return StateProcessing
		case "emit":
			return StateEmit
		case "shutdown":
			return StateShutdown
		case "error":
			return StateError
		}
	}
	return p.state
}

// Start warms up every stage, launches one goroutine per stage, then runs
// the state machine loop. It blocks until the loop exits and the pipeline
// has shut down.
func (p *AudioPipeline) Start(ctx context.Context) error {
	if len(p.stages) == 0 {
		return errors.New(fmt.Errorf("no stages registered")).
			Component("pipeline").
			Category(errors.CategoryStateMachine).
			Build()
	}

	if err := p.warmup(ctx); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancelRun = cancel

	for _, ns := range p.stages {
		p.wg.Add(1)
		go func(ns namedStage) {
			defer p.wg.Done()
			if err := ns.stage.Run(runCtx); err != nil && runCtx.Err() == nil {
				select {
				case p.errCh <- fmt.Errorf("%s: %w", ns.name, err):
				default:
				}
			}
		}(ns)
	}

	p.log.Info("pipeline started", "stages", len(p.stages),
		"tick_ms", p.settings.Pipeline.TickMs)

	// The loop joins the same wait group as the stages so Shutdown never
	// closes the output queue while an emit is still in flight.
	p.wg.Add(1)
	p.stateLoop(runCtx)
	p.Shutdown()
	return nil
}

// warmup initializes every stage sequentially, timing each one. Any
// warmup failure aborts startup.
func (p *AudioPipeline) warmup(ctx context.Context) error {
	if p.warmedUp {
		return nil
	}
	for _, ns := range p.stages {
		started := time.Now()
		if err := ns.stage.Warmup(ctx); err != nil {
			return errors.New(err).
				Component("pipeline").
				Category(errors.CategoryStage).
				Context("stage", ns.name).
				Build()
		}
		p.log.Info("stage warmed up", "stage", ns.name,
			"duration_ms", float64(time.Since(started).Microseconds())/1000.0)
	}
	p.warmedUp = true
	return nil
}

// stateLoop drives one transition attempt per tick and records its own
// iteration latency.
func (p *AudioPipeline) stateLoop(ctx context.Context) {
	defer p.wg.Done()

	tick := time.Duration(p.settings.Pipeline.TickMs) * time.Millisecond
	if tick <= 0 {
		tick = time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	gauges := time.NewTicker(gaugeUpdateInterval)
	defer gauges.Stop()

	p.stateEntered = time.Now()

	for {
		select {
		case <-ctx.Done():
			p.transition(StateShutdown)
			return
		case <-gauges.C:
			p.updateGauges()
		case <-ticker.C:
		}

		started := time.Now()

		if err, ok := tryRecv(p.errCh); ok {
			p.log.Error("stage failure, entering error state", "error", err)
			if p.metrics != nil {
				p.metrics.RecordError("stage_failure", "pipeline")
			}
			p.transition(StateError)
		}

		next := p.dispatch(ctx)
		p.transition(next)

		if p.metrics != nil {
			p.metrics.RecordLoopLatency(time.Since(started).Seconds())
		}

		if p.state == StateShutdown {
			return
		}
	}
}

// dispatch runs the handler for the current state. Every member of the
// state set has a case; an unknown value is itself an error.
func (p *AudioPipeline) dispatch(ctx context.Context) State {
	switch p.state {
	case StateIdle:
		return StateListening
	case StateListening:
		return p.handleListening(ctx)
	case StateProcessing:
		return p.handleProcessing(ctx)
	case StateEmit:
		return p.handleEmit(ctx)
	case StateError:
		return p.handleError()
	case StateShutdown:
		return StateShutdown
	default:
		if p.metrics != nil {
			p.metrics.RecordError("unknown_state", "pipeline")
		}
		return StateError
	}
}

// transition moves the machine to next, counting the change. Same-state
// transitions are no-ops and do not touch the counter.
func (p *AudioPipeline) transition(next State) {
	if next == p.state {
		return
	}
	prev := p.state
	p.state = next
	p.stateEntered = time.Now()
	if p.metrics != nil {
		p.metrics.RecordStateTransition(prev.String(), next.String())
	}
	p.log.Debug("state transition", "from", prev.String(), "to", next.String())
}

func (p *AudioPipeline) handleListening(ctx context.Context) State {
	event, ok := recvTimeout(ctx, p.wakeCh, queuePollTimeout)
	if !ok || !event.Detected {
		return StateListening
	}
	if p.metrics != nil {
		p.metrics.RecordWakeDetection(event.Confidence)
	}
	p.lastWake = event
	p.log.Debug("wake word detected", "confidence", event.Confidence)
	return StateProcessing
}

func (p *AudioPipeline) handleProcessing(ctx context.Context) State {
	// Release any assembled utterance to the speech-to-text stage,
	// stamping it with the triggering detection's confidence.
	if chunk, ok := tryRecv(p.preCh); ok {
		chunk.WakeConfidence = p.lastWake.Confidence
		if !sendTimeout(ctx, p.sttCh, chunk, queuePollTimeout) {
			if p.metrics != nil {
				p.metrics.RecordError("queue_full", "pipeline")
			}
		}
	}

	transcript, ok := tryRecv(p.transcriptCh)
	if !ok {
		if time.Since(p.stateEntered) > stuckStateTimeout {
			if p.metrics != nil {
				p.metrics.RecordError("processing_timeout", "pipeline")
			}
			return StateListening
		}
		return StateProcessing
	}
	if transcript.Text == "" {
		return StateProcessing
	}

	if p.settings.Language.Enabled {
		if !sendTimeout(ctx, p.langCh, transcript, queuePollTimeout) {
			if p.metrics != nil {
				p.metrics.RecordError("queue_full", "pipeline")
			}
		}
		p.pending = nil
	} else {
		p.pending = &Analysis{
			Transcript: transcript,
			Language:   p.settings.STT.Language,
			Sentiment:  "unknown",
			Confidence: transcript.Confidence,
		}
	}
	return StateEmit
}

func (p *AudioPipeline) handleEmit(ctx context.Context) State {
	analysis := p.pending
	if analysis == nil {
		got, ok := tryRecv(p.analysisCh)
		if !ok {
			if time.Since(p.stateEntered) > stuckStateTimeout {
				if p.metrics != nil {
					p.metrics.RecordError("emit_timeout", "pipeline")
				}
				return StateListening
			}
			return StateEmit
		}
		analysis = &got
	}
	p.pending = nil

	now := time.Now()
	elapsed := now.Sub(analysis.Transcript.Start)
	record := OutputRecord{
		ID:               uuid.NewString(),
		Timestamp:        now,
		Transcript:       analysis.Transcript.Text,
		Language:         analysis.Language,
		Sentiment:        analysis.Sentiment,
		Confidence:       analysis.Confidence,
		ProcessingTimeMs: float64(elapsed.Microseconds()) / 1000.0,
		PCM:              analysis.Transcript.PCM,
	}

	if !sendTimeout(ctx, p.outputCh, record, queuePollTimeout) {
		if p.metrics != nil {
			p.metrics.RecordError("output_queue_full", "pipeline")
		}
	}
	if p.metrics != nil {
		p.metrics.RecordTranscript()
		p.metrics.RecordEndToEndLatency(elapsed.Seconds())
	}
	p.log.Info("transcript published",
		"transcript", record.Transcript,
		"sentiment", record.Sentiment,
		"processing_time_ms", record.ProcessingTimeMs)
	return StateListening
}

// handleError implements bounded-retry recovery: after a run of
// consecutive error ticks the queues are drained and the machine returns
// to Listening; too many recoveries inside the window escalate to
// Shutdown.
func (p *AudioPipeline) handleError() State {
	p.errorTicks++
	if p.errorTicks < p.settings.Pipeline.ErrorRecoveryTicks {
		return StateError
	}
	p.errorTicks = 0

	now := time.Now()
	kept := p.recoveryTimes[:0]
	for _, t := range p.recoveryTimes {
		if now.Sub(t) < recoveryWindow {
			kept = append(kept, t)
		}
	}
	p.recoveryTimes = append(kept, now)

	if len(p.recoveryTimes) > p.settings.Pipeline.ErrorRecoveryLimit {
		p.log.Error("error recovery limit exceeded, shutting down",
			"recoveries", len(p.recoveryTimes))
		return StateShutdown
	}

	p.drainQueues()
	p.pending = nil
	p.log.Warn("recovered from error state", "recoveries", len(p.recoveryTimes))
	return StateListening
}

// drainQueues discards in-flight events so a recovered pipeline starts
// from a clean slate.
func (p *AudioPipeline) drainQueues() {
	drain(p.wakeCh)
	drain(p.frameCh)
	drain(p.preCh)
	drain(p.sttCh)
	drain(p.transcriptCh)
	drain(p.langCh)
	drain(p.analysisCh)
}

func (p *AudioPipeline) updateGauges() {
	if p.metrics == nil {
		return
	}
	p.metrics.UpdateQueueSize("wake", len(p.wakeCh))
	p.metrics.UpdateQueueSize("frames", len(p.frameCh))
	p.metrics.UpdateQueueSize("preprocess", len(p.preCh))
	p.metrics.UpdateQueueSize("stt", len(p.sttCh))
	p.metrics.UpdateQueueSize("transcripts", len(p.transcriptCh))
	p.metrics.UpdateQueueSize("language", len(p.langCh))
	p.metrics.UpdateQueueSize("analysis", len(p.analysisCh))
	p.metrics.UpdateQueueSize("output", len(p.outputCh))
	if p.buffer != nil {
		p.metrics.UpdateBufferUtilization(p.buffer.Stats().Utilization)
	}
}

// Shutdown cancels every stage, waits out the grace period, cleans up and
// emits final statistics. Safe to call more than once.
func (p *AudioPipeline) Shutdown() {
	p.shutdownOnce.Do(func() {
		p.shuttingDown.Store(true)
		p.log.Info("pipeline shutting down")

		if p.cancelRun != nil {
			p.cancelRun()
		}

		grace := time.Duration(p.settings.Pipeline.ShutdownGraceSec) * time.Second
		if grace <= 0 {
			grace = 5 * time.Second
		}
		done := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(grace):
			p.log.Warn("stages did not stop within grace period",
				"grace_sec", grace.Seconds())
		}

		for _, ns := range p.stages {
			if err := ns.stage.Cleanup(); err != nil {
				p.log.Error("stage cleanup failed", "stage", ns.name, "error", err)
			}
		}

		close(p.outputCh)

		if p.metrics != nil {
			stats := p.metrics.GetStats()
			p.log.Info("final pipeline statistics",
				"transcripts", stats.TranscriptsCompleted,
				"transitions", stats.StateTransitions,
				"errors", stats.Errors,
				"mean_latency_ms", stats.LatencyMeanMs,
				"p95_latency_ms", stats.LatencyP95Ms)
		}

		if p.closeLog != nil {
			if err := p.closeLog(); err != nil {
				slog.Warn("failed to close pipeline log writer", "error", err)
			}
		}
	})
}
