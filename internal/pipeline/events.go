// Package pipeline implements the staged audio processing pipeline and the
// state machine that drives it: wake-word detection, utterance assembly,
// speech-to-text and language analysis, connected by bounded queues.
package pipeline

import (
	"time"
)

// WakeEvent is published by the wake-word stage when a frame qualifies.
type WakeEvent struct {
	Detected   bool
	Confidence float64
	Timestamp  time.Time
}

// FrameEvent carries one mono frame from the wake-word stage to the
// preprocessing stage while an utterance is being captured. Last marks the
// end of the utterance.
type FrameEvent struct {
	PCM  []int16
	Last bool
}

// AudioChunk is an assembled, normalized utterance produced by the
// preprocessing stage.
type AudioChunk struct {
	PCM            []int16
	SampleRate     int
	Start          time.Time
	WakeConfidence float64
}

// Transcript is the speech-to-text result for one utterance.
type Transcript struct {
	Text       string
	Confidence float64
	Start      time.Time
	PCM        []int16 // retained for optional clip export
}

// Analysis is the language-analysis result for one transcript.
type Analysis struct {
	Transcript Transcript
	Language   string
	Sentiment  string
	Confidence float64
}

// OutputRecord is the final published record for one completed cycle.
type OutputRecord struct {
	ID               string    `json:"id"`
	Timestamp        time.Time `json:"timestamp"`
	Transcript       string    `json:"transcript"`
	Language         string    `json:"language"`
	Sentiment        string    `json:"sentiment"`
	Confidence       float64   `json:"confidence"`
	ProcessingTimeMs float64   `json:"processing_time_ms"`
	ClipPath         string    `json:"clip_path,omitempty"`

	// PCM carries the utterance audio for optional clip export; it is
	// never serialized.
	PCM []int16 `json:"-"`
}
