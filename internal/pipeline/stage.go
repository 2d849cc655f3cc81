package pipeline

import (
	"context"
)

// Stage names used for metrics labels and logs.
const (
	StageCapture    = "capture"
	StageWakeWord   = "wakeword"
	StagePreprocess = "preprocess"
	StageSTT        = "stt"
	StageLanguage   = "language"
)

// Stage is the capability every pipeline stage implements. Any concrete
// stage is replaceable as long as it upholds this contract and the event
// shapes on its input/output queues.
type Stage interface {
	// Warmup performs bounded-time, idempotent initialization. Non-critical
	// failures should be logged rather than returned so they do not prevent
	// pipeline startup.
	Warmup(ctx context.Context) error

	// Run is the stage's long-running loop. It must not block longer than a
	// small bounded interval on any single queue operation and terminates
	// only when ctx is cancelled.
	Run(ctx context.Context) error

	// Cleanup releases all resources. It must be safe to call even if Run
	// never started.
	Cleanup() error
}

// namedStage pairs a stage with its metrics/log label.
type namedStage struct {
	name  string
	stage Stage
}
