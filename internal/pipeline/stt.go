package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/voicewire/voicewire-go/internal/conf"
	"github.com/voicewire/voicewire-go/internal/logging"
	"github.com/voicewire/voicewire-go/internal/observability/metrics"
)

// Transcriber converts one assembled utterance into text. Real model
// integrations replace the stub by implementing this interface.
type Transcriber interface {
	Transcribe(ctx context.Context, chunk AudioChunk) (Transcript, error)
}

// stubTranscriber stands in for a real speech-to-text model. It spends a
// model-like amount of wall time and fabricates a transcript whose length
// tracks the utterance duration.
type stubTranscriber struct {
	language string
}

func (t *stubTranscriber) Transcribe(ctx context.Context, chunk AudioChunk) (Transcript, error) {
	// Roughly what a small on-device model costs per utterance.
	delay := 15*time.Millisecond + time.Duration(rand.IntN(10))*time.Millisecond
	select {
	case <-ctx.Done():
		return Transcript{}, ctx.Err()
	case <-time.After(delay):
	}

	durationSec := float64(len(chunk.PCM)) / float64(max(chunk.SampleRate, 1))
	return Transcript{
		Text:       fmt.Sprintf("transcribed utterance (%.1fs, %s)", durationSec, t.language),
		Confidence: 0.6 + rand.Float64()*0.4,
		Start:      chunk.Start,
		PCM:        chunk.PCM,
	}, nil
}

// STTStage runs speech-to-text over utterances released by the state
// machine and publishes transcripts downstream.
type STTStage struct {
	settings    *conf.Settings
	transcriber Transcriber
	metrics     *metrics.PipelineMetrics
	log         *slog.Logger

	chunkIn       <-chan AudioChunk
	transcriptOut chan<- Transcript
}

// NewSTTStage builds the speech-to-text stage with the shipped stub model.
// Metrics may be nil in tests.
func NewSTTStage(settings *conf.Settings, pm *metrics.PipelineMetrics,
	chunkIn <-chan AudioChunk, transcriptOut chan<- Transcript) *STTStage {
	return &STTStage{
		settings:      settings,
		transcriber:   &stubTranscriber{language: settings.STT.Language},
		metrics:       pm,
		log:           logging.ForService(StageSTT),
		chunkIn:       chunkIn,
		transcriptOut: transcriptOut,
	}
}

// SetTranscriber swaps in a real speech-to-text implementation.
func (s *STTStage) SetTranscriber(t Transcriber) {
	s.transcriber = t
}

// Warmup would load the speech-to-text model; the stub logs the configured
// path so a missing model never blocks startup.
func (s *STTStage) Warmup(ctx context.Context) error {
	if s.log != nil {
		s.log.Info("stt warmup", "model", s.settings.STT.ModelPath,
			"language", s.settings.STT.Language)
	}
	return nil
}

func (s *STTStage) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		chunk, ok := recvTimeout(ctx, s.chunkIn, queuePollTimeout)
		if !ok {
			continue
		}

		started := time.Now()
		transcript, err := s.transcriber.Transcribe(ctx, chunk)
		if s.metrics != nil {
			s.metrics.RecordStageLatency(StageSTT, time.Since(started).Seconds())
			s.metrics.RecordFrameProcessed(StageSTT)
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if s.metrics != nil {
				s.metrics.RecordError("transcribe", StageSTT)
			}
			if s.log != nil {
				s.log.Error("transcription failed", "error", err)
			}
			continue
		}

		if !sendTimeout(ctx, s.transcriptOut, transcript, queuePollTimeout) {
			if s.metrics != nil {
				s.metrics.RecordError("queue_full", StageSTT)
			}
		}
	}
}

func (s *STTStage) Cleanup() error {
	return nil
}
