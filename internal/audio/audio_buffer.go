package audio

import (
	"fmt"
)

// AudioStats extends BufferStats with time-domain measurements. The buffered
// audio duration is the buffering component of end-to-end latency, so it is
// reported as BufferLatencyMs.
type AudioStats struct {
	BufferStats
	AudioDurationMs int
	BufferLatencyMs int
}

// AudioBuffer is a time-domain wrapper around a frame ring buffer. Frame
// size and capacity are derived once from the audio parameters at
// construction and are immutable afterwards.
type AudioBuffer struct {
	rb *RingBuffer[int16]

	sampleRate int
	channels   int
	frameMs    int
	bufferMs   int
}

// NewAudioBuffer derives frameSize = sampleRate * frameMs / 1000 * channels
// and maxFrames = bufferMs / frameMs and allocates the backing ring buffer.
func NewAudioBuffer(sampleRate, channels, frameMs, bufferMs int) (*AudioBuffer, error) {
	if sampleRate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("invalid audio parameters: sample rate %d, channels %d", sampleRate, channels)
	}
	if frameMs <= 0 || bufferMs < frameMs {
		return nil, fmt.Errorf("invalid durations: frame %d ms, buffer %d ms", frameMs, bufferMs)
	}

	frameSize := sampleRate * frameMs / 1000 * channels
	maxFrames := bufferMs / frameMs

	rb, err := NewRingBuffer[int16](maxFrames, frameSize)
	if err != nil {
		return nil, err
	}

	return &AudioBuffer{
		rb:         rb,
		sampleRate: sampleRate,
		channels:   channels,
		frameMs:    frameMs,
		bufferMs:   bufferMs,
	}, nil
}

// Write appends one frame of samples.
func (ab *AudioBuffer) Write(frame []int16) error {
	return ab.rb.Write(frame)
}

// ReadFrame removes and returns the oldest frame.
func (ab *AudioBuffer) ReadFrame() ([]int16, bool) {
	return ab.rb.ReadFrame()
}

// ReadFrames drains up to n frames in FIFO order.
func (ab *AudioBuffer) ReadFrames(n int) [][]int16 {
	return ab.rb.ReadFrames(n)
}

// ReadAll drains every buffered frame.
func (ab *AudioBuffer) ReadAll() [][]int16 {
	return ab.rb.ReadAll()
}

// Clear discards all buffered frames.
func (ab *AudioBuffer) Clear() {
	ab.rb.Clear()
}

// IsEmpty reports whether the buffer holds no frames.
func (ab *AudioBuffer) IsEmpty() bool {
	return ab.rb.IsEmpty()
}

// Size returns the number of buffered frames.
func (ab *AudioBuffer) Size() int {
	return ab.rb.Size()
}

// FrameSize returns the derived per-frame sample count.
func (ab *AudioBuffer) FrameSize() int {
	return ab.rb.FrameSize()
}

// MaxFrames returns the derived capacity in frames.
func (ab *AudioBuffer) MaxFrames() int {
	return ab.rb.MaxFrames()
}

// SampleRate returns the configured sample rate in Hz.
func (ab *AudioBuffer) SampleRate() int {
	return ab.sampleRate
}

// Channels returns the configured channel count.
func (ab *AudioBuffer) Channels() int {
	return ab.channels
}

// FrameDurationMs returns the duration of one frame in milliseconds.
func (ab *AudioBuffer) FrameDurationMs() int {
	return ab.frameMs
}

// Stats returns the underlying ring buffer counters.
func (ab *AudioBuffer) Stats() BufferStats {
	return ab.rb.Stats()
}

// AudioStats returns buffer counters plus the buffered audio duration.
func (ab *AudioBuffer) AudioStats() AudioStats {
	stats := ab.rb.Stats()
	durationMs := stats.CurrentSize * ab.frameMs
	return AudioStats{
		BufferStats:     stats,
		AudioDurationMs: durationMs,
		BufferLatencyMs: durationMs,
	}
}
