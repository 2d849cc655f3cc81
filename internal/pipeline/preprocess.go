package pipeline

import (
	"context"
	"encoding/binary"
	"log/slog"
	"time"

	"github.com/smallnest/ringbuffer"

	"github.com/voicewire/voicewire-go/internal/conf"
	"github.com/voicewire/voicewire-go/internal/logging"
	"github.com/voicewire/voicewire-go/internal/observability/metrics"
)

// normalizeTarget is the peak amplitude utterances are scaled to before
// speech-to-text, as a fraction of int16 full scale.
const normalizeTarget = 0.9

// PreprocessStage assembles the per-frame stream from the wake-word stage
// into complete utterances and normalizes them for the speech-to-text
// stage. Assembly goes through a byte ring buffer sized for one full
// utterance window plus slack.
type PreprocessStage struct {
	settings *conf.Settings
	metrics  *metrics.PipelineMetrics
	log      *slog.Logger

	frameIn  <-chan FrameEvent
	chunkOut chan<- AudioChunk

	assembler *ringbuffer.RingBuffer
	start     time.Time
	scratch   []byte
}

// NewPreprocessStage builds the preprocessing stage. Metrics may be nil in
// tests.
func NewPreprocessStage(settings *conf.Settings, pm *metrics.PipelineMetrics,
	frameIn <-chan FrameEvent, chunkOut chan<- AudioChunk) *PreprocessStage {
	capacity := settings.Audio.SampleRate * 2 * int(utteranceDuration/time.Second+1)
	return &PreprocessStage{
		settings:  settings,
		metrics:   pm,
		log:       logging.ForService(StagePreprocess),
		frameIn:   frameIn,
		chunkOut:  chunkOut,
		assembler: ringbuffer.New(capacity),
	}
}

func (s *PreprocessStage) Warmup(ctx context.Context) error {
	return nil
}

func (s *PreprocessStage) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		event, ok := recvTimeout(ctx, s.frameIn, queuePollTimeout)
		if !ok {
			continue
		}
		s.ingest(ctx, event)
	}
}

// ingest appends one frame to the assembler and flushes the utterance when
// the final frame arrives.
func (s *PreprocessStage) ingest(ctx context.Context, event FrameEvent) {
	if s.assembler.IsEmpty() && len(event.PCM) > 0 {
		s.start = time.Now()
	}

	if len(event.PCM) > 0 {
		if cap(s.scratch) < len(event.PCM)*2 {
			s.scratch = make([]byte, len(event.PCM)*2)
		}
		buf := s.scratch[:len(event.PCM)*2]
		for i, sample := range event.PCM {
			binary.LittleEndian.PutUint16(buf[i*2:], uint16(sample))
		}
		if _, err := s.assembler.Write(buf); err != nil {
			// Full assembler means the utterance exceeded the window; drop
			// the overflow rather than stall the frame queue.
			if s.metrics != nil {
				s.metrics.RecordError("assembler_full", StagePreprocess)
			}
		}
		if s.metrics != nil {
			s.metrics.RecordFrameProcessed(StagePreprocess)
		}
	}

	if !event.Last {
		return
	}
	s.flush(ctx)
}

// flush converts the assembled bytes back to samples, normalizes, and
// emits one AudioChunk.
func (s *PreprocessStage) flush(ctx context.Context) {
	started := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.RecordStageLatency(StagePreprocess, time.Since(started).Seconds())
		}
	}()

	n := s.assembler.Length()
	if n < 2 {
		s.assembler.Reset()
		return
	}

	raw := make([]byte, n)
	read, _ := s.assembler.Read(raw)
	s.assembler.Reset()
	raw = raw[:read-read%2]

	pcm := make([]int16, len(raw)/2)
	for i := range pcm {
		pcm[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
	}
	normalize(pcm)

	chunk := AudioChunk{
		PCM:        pcm,
		SampleRate: s.settings.Audio.SampleRate,
		Start:      s.start,
	}
	if !sendTimeout(ctx, s.chunkOut, chunk, queuePollTimeout) {
		if s.metrics != nil {
			s.metrics.RecordError("queue_full", StagePreprocess)
		}
		if s.log != nil {
			s.log.Warn("dropped utterance, downstream queue full",
				"samples", len(pcm))
		}
	}
}

// normalize scales the utterance so its peak reaches normalizeTarget of
// full scale. Near-silent audio is left untouched.
func normalize(pcm []int16) {
	var peak int32
	for _, s := range pcm {
		v := int32(s)
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}
	if peak < 256 {
		return
	}
	gain := normalizeTarget * 32767.0 / float64(peak)
	if gain <= 1.0 {
		return
	}
	for i, s := range pcm {
		v := float64(s) * gain
		switch {
		case v > 32767:
			pcm[i] = 32767
		case v < -32768:
			pcm[i] = -32768
		default:
			pcm[i] = int16(v)
		}
	}
}

// Cleanup releases the assembler.
func (s *PreprocessStage) Cleanup() error {
	s.assembler.Reset()
	return nil
}
