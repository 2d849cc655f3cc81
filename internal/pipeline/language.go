package pipeline

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/voicewire/voicewire-go/internal/conf"
	"github.com/voicewire/voicewire-go/internal/logging"
	"github.com/voicewire/voicewire-go/internal/observability/metrics"
)

// Analyzer derives language metadata from one transcript. Real NLP
// integrations replace the stub by implementing this interface.
type Analyzer interface {
	Analyze(ctx context.Context, transcript Transcript) (Analysis, error)
}

// stubAnalyzer is a lexicon-free placeholder for a real language model: a
// couple of milliseconds of work, keyword sentiment, fixed language tag.
type stubAnalyzer struct {
	language string
}

func (a *stubAnalyzer) Analyze(ctx context.Context, transcript Transcript) (Analysis, error) {
	delay := 2*time.Millisecond + time.Duration(rand.IntN(2))*time.Millisecond
	select {
	case <-ctx.Done():
		return Analysis{}, ctx.Err()
	case <-time.After(delay):
	}

	sentiment := "neutral"
	lower := strings.ToLower(transcript.Text)
	switch {
	case strings.Contains(lower, "great"), strings.Contains(lower, "thanks"):
		sentiment = "positive"
	case strings.Contains(lower, "stop"), strings.Contains(lower, "wrong"):
		sentiment = "negative"
	}

	return Analysis{
		Transcript: transcript,
		Language:   a.language,
		Sentiment:  sentiment,
		Confidence: transcript.Confidence * (0.85 + rand.Float64()*0.15),
	}, nil
}

// LanguageStage enriches transcripts released by the state machine with
// language analysis. The stage is optional; when disabled in settings the
// state machine passes transcripts through unanalyzed.
type LanguageStage struct {
	settings *conf.Settings
	analyzer Analyzer
	metrics  *metrics.PipelineMetrics
	log      *slog.Logger

	transcriptIn <-chan Transcript
	analysisOut  chan<- Analysis
}

// NewLanguageStage builds the language-analysis stage with the shipped
// stub analyzer. Metrics may be nil in tests.
func NewLanguageStage(settings *conf.Settings, pm *metrics.PipelineMetrics,
	transcriptIn <-chan Transcript, analysisOut chan<- Analysis) *LanguageStage {
	return &LanguageStage{
		settings:     settings,
		analyzer:     &stubAnalyzer{language: settings.STT.Language},
		metrics:      pm,
		log:          logging.ForService(StageLanguage),
		transcriptIn: transcriptIn,
		analysisOut:  analysisOut,
	}
}

// SetAnalyzer swaps in a real language-analysis implementation.
func (s *LanguageStage) SetAnalyzer(a Analyzer) {
	s.analyzer = a
}

func (s *LanguageStage) Warmup(ctx context.Context) error {
	return nil
}

func (s *LanguageStage) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		transcript, ok := recvTimeout(ctx, s.transcriptIn, queuePollTimeout)
		if !ok {
			continue
		}

		started := time.Now()
		analysis, err := s.analyzer.Analyze(ctx, transcript)
		if s.metrics != nil {
			s.metrics.RecordStageLatency(StageLanguage, time.Since(started).Seconds())
			s.metrics.RecordFrameProcessed(StageLanguage)
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if s.metrics != nil {
				s.metrics.RecordError("analyze", StageLanguage)
			}
			if s.log != nil {
				s.log.Error("language analysis failed", "error", err)
			}
			continue
		}

		if !sendTimeout(ctx, s.analysisOut, analysis, queuePollTimeout) {
			if s.metrics != nil {
				s.metrics.RecordError("queue_full", StageLanguage)
			}
		}
	}
}

func (s *LanguageStage) Cleanup() error {
	return nil
}
