package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnergyDetectorThreshold(t *testing.T) {
	d := newEnergyDetector(0.5)

	silence := make([]int16, 320)
	detected, _ := d.Detect(silence)
	assert.False(t, detected, "silence must not trigger")

	loud := make([]int16, 320)
	for i := range loud {
		loud[i] = 20000
	}
	detected, confidence := d.Detect(loud)
	assert.True(t, detected, "loud frame must trigger")
	assert.GreaterOrEqual(t, confidence, 0.5)
	assert.LessOrEqual(t, confidence, 1.0)
}

func TestWakeWordCooldown(t *testing.T) {
	s := testSettings()
	stage := NewWakeWordStage(s, testBuffer(t, s), nil,
		make(chan WakeEvent, 1), make(chan FrameEvent, 16))

	_, onCooldown := stage.cooldown.Get(cooldownKey)
	assert.False(t, onCooldown)

	stage.cooldown.SetDefault(cooldownKey, time.Now())
	_, onCooldown = stage.cooldown.Get(cooldownKey)
	assert.True(t, onCooldown)

	require.NoError(t, stage.Cleanup())
	_, onCooldown = stage.cooldown.Get(cooldownKey)
	assert.False(t, onCooldown, "cleanup must flush the cooldown")
}

func TestPreprocessAssemblesUtterance(t *testing.T) {
	s := testSettings()
	chunkOut := make(chan AudioChunk, 1)
	stage := NewPreprocessStage(s, nil, make(chan FrameEvent), chunkOut)

	ctx := context.Background()
	frame := make([]int16, 320)
	for i := range frame {
		frame[i] = int16(i % 100)
	}

	stage.ingest(ctx, FrameEvent{PCM: frame})
	stage.ingest(ctx, FrameEvent{PCM: frame})
	stage.ingest(ctx, FrameEvent{Last: true})

	select {
	case chunk := <-chunkOut:
		assert.Len(t, chunk.PCM, 640)
		assert.Equal(t, s.Audio.SampleRate, chunk.SampleRate)
		assert.False(t, chunk.Start.IsZero())
	default:
		t.Fatal("no chunk emitted")
	}
}

func TestPreprocessEmptyUtteranceDiscarded(t *testing.T) {
	s := testSettings()
	chunkOut := make(chan AudioChunk, 1)
	stage := NewPreprocessStage(s, nil, make(chan FrameEvent), chunkOut)

	stage.ingest(context.Background(), FrameEvent{Last: true})
	assert.Empty(t, chunkOut)
}

func TestNormalizeScalesToTarget(t *testing.T) {
	pcm := []int16{1000, -2000, 500, -1500}
	normalize(pcm)

	var peak int16
	for _, v := range pcm {
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}
	target := float64(normalizeTarget)
	assert.InDelta(t, int16(target*32767), peak, 2)
}

func TestNormalizeLeavesSilenceAlone(t *testing.T) {
	pcm := []int16{3, -2, 1, 0}
	normalize(pcm)
	assert.Equal(t, []int16{3, -2, 1, 0}, pcm)
}

func TestStubTranscriber(t *testing.T) {
	tr := &stubTranscriber{language: "en"}
	chunk := AudioChunk{
		PCM:        make([]int16, 16000),
		SampleRate: 16000,
		Start:      time.Now(),
	}

	transcript, err := tr.Transcribe(context.Background(), chunk)
	require.NoError(t, err)
	assert.NotEmpty(t, transcript.Text)
	assert.GreaterOrEqual(t, transcript.Confidence, 0.6)
	assert.Equal(t, chunk.Start, transcript.Start)
	assert.Equal(t, chunk.PCM, transcript.PCM)
}

func TestStubTranscriberHonorsCancellation(t *testing.T) {
	tr := &stubTranscriber{language: "en"}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tr.Transcribe(ctx, AudioChunk{SampleRate: 16000})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStubAnalyzerSentiment(t *testing.T) {
	a := &stubAnalyzer{language: "en"}
	ctx := context.Background()

	cases := []struct {
		text string
		want string
	}{
		{"that was great", "positive"},
		{"stop doing that", "negative"},
		{"the weather today", "neutral"},
	}
	for _, tc := range cases {
		analysis, err := a.Analyze(ctx, Transcript{Text: tc.text, Confidence: 0.9})
		require.NoError(t, err)
		assert.Equal(t, tc.want, analysis.Sentiment, "text %q", tc.text)
		assert.Equal(t, "en", analysis.Language)
	}
}

func TestQueueHelpers(t *testing.T) {
	ctx := context.Background()
	ch := make(chan int, 1)

	ok := sendTimeout(ctx, ch, 1, queuePollTimeout)
	assert.True(t, ok)
	ok = sendTimeout(ctx, ch, 2, queuePollTimeout)
	assert.False(t, ok, "full queue must time out")

	v, ok := recvTimeout(ctx, ch, queuePollTimeout)
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	_, ok = recvTimeout(ctx, ch, queuePollTimeout)
	assert.False(t, ok, "empty queue must time out")

	ch <- 3
	ch2 := make(chan int, 4)
	ch2 <- 4
	ch2 <- 5
	drain(ch2)
	assert.Empty(t, ch2)

	v, ok = tryRecv(ch)
	assert.True(t, ok)
	assert.Equal(t, 3, v)
	_, ok = tryRecv(ch)
	assert.False(t, ok)
}
