// Package audio provides the frame ring buffers and the malgo capture stage
// that feeds them from the hardware callback.
package audio

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrFrameSize is returned when a written frame does not match the buffer's
// fixed frame size.
var ErrFrameSize = errors.New("frame size mismatch")

// Sample constrains the numeric sample types a ring buffer can hold.
type Sample interface {
	~int16 | ~int32 | ~float32 | ~float64
}

// BufferStats is a point-in-time snapshot of ring buffer usage.
type BufferStats struct {
	FramesWritten uint64
	FramesRead    uint64
	Overflows     uint64
	CurrentSize   int
	MaxFrames     int
	FrameSize     int
	Utilization   float64
	LastWrite     time.Time
	LastRead      time.Time
}

// RingBuffer is a bounded FIFO of fixed-size sample frames. When full, a
// write evicts the oldest frame and increments the overflow counter instead
// of failing. A single mutex guards all access because writes arrive from
// the hardware callback thread while reads happen on pipeline goroutines.
type RingBuffer[S Sample] struct {
	mu sync.Mutex

	storage   []S // maxFrames * frameSize, one contiguous allocation
	head      int // index of oldest frame
	size      int // number of valid frames
	frameSize int
	maxFrames int

	framesWritten uint64
	framesRead    uint64
	overflows     uint64
	lastWrite     time.Time
	lastRead      time.Time
}

// NewRingBuffer creates a ring buffer holding up to maxFrames frames of
// exactly frameSize samples each.
func NewRingBuffer[S Sample](maxFrames, frameSize int) (*RingBuffer[S], error) {
	if maxFrames <= 0 {
		return nil, fmt.Errorf("invalid max frames: %d, must be greater than 0", maxFrames)
	}
	if frameSize <= 0 {
		return nil, fmt.Errorf("invalid frame size: %d, must be greater than 0", frameSize)
	}
	return &RingBuffer[S]{
		storage:   make([]S, maxFrames*frameSize),
		frameSize: frameSize,
		maxFrames: maxFrames,
	}, nil
}

// slot returns the storage slice for frame index i (0 = oldest).
func (rb *RingBuffer[S]) slot(i int) []S {
	idx := ((rb.head + i) % rb.maxFrames) * rb.frameSize
	return rb.storage[idx : idx+rb.frameSize]
}

// Write appends a frame, evicting the oldest frame when full. The frame is
// copied into the buffer's own storage, so the caller may reuse the slice.
// It fails only when the frame length does not equal the fixed frame size.
func (rb *RingBuffer[S]) Write(frame []S) error {
	if len(frame) != rb.frameSize {
		return fmt.Errorf("%w: got %d samples, want %d", ErrFrameSize, len(frame), rb.frameSize)
	}

	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.size == rb.maxFrames {
		// Evict oldest: advance head, the slot is reused for the new frame.
		rb.head = (rb.head + 1) % rb.maxFrames
		rb.size--
		rb.overflows++
	}

	copy(rb.slot(rb.size), frame)
	rb.size++
	rb.framesWritten++
	rb.lastWrite = time.Now()
	return nil
}

// ReadFrame removes and returns the oldest frame in FIFO order. The second
// return value is false when the buffer is empty. The returned slice is a
// copy owned by the caller.
func (rb *RingBuffer[S]) ReadFrame() ([]S, bool) {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.readFrameLocked()
}

func (rb *RingBuffer[S]) readFrameLocked() ([]S, bool) {
	if rb.size == 0 {
		return nil, false
	}
	frame := make([]S, rb.frameSize)
	copy(frame, rb.slot(0))
	rb.head = (rb.head + 1) % rb.maxFrames
	rb.size--
	rb.framesRead++
	rb.lastRead = time.Now()
	return frame, true
}

// ReadFrames drains up to n frames preserving FIFO order.
func (rb *RingBuffer[S]) ReadFrames(n int) [][]S {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if n > rb.size {
		n = rb.size
	}
	if n <= 0 {
		return nil
	}
	frames := make([][]S, 0, n)
	for i := 0; i < n; i++ {
		frame, _ := rb.readFrameLocked()
		frames = append(frames, frame)
	}
	return frames
}

// ReadAll drains every buffered frame preserving FIFO order.
func (rb *RingBuffer[S]) ReadAll() [][]S {
	rb.mu.Lock()
	n := rb.size
	rb.mu.Unlock()
	return rb.ReadFrames(n)
}

// Clear discards all buffered frames. Counters are preserved.
func (rb *RingBuffer[S]) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.head = 0
	rb.size = 0
}

// IsEmpty reports whether the buffer holds no frames.
func (rb *RingBuffer[S]) IsEmpty() bool {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.size == 0
}

// IsFull reports whether the buffer is at capacity.
func (rb *RingBuffer[S]) IsFull() bool {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.size == rb.maxFrames
}

// Size returns the number of buffered frames.
func (rb *RingBuffer[S]) Size() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.size
}

// FrameSize returns the fixed per-frame sample count.
func (rb *RingBuffer[S]) FrameSize() int {
	return rb.frameSize
}

// MaxFrames returns the buffer capacity in frames.
func (rb *RingBuffer[S]) MaxFrames() int {
	return rb.maxFrames
}

// Stats returns a snapshot of the buffer counters.
func (rb *RingBuffer[S]) Stats() BufferStats {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return BufferStats{
		FramesWritten: rb.framesWritten,
		FramesRead:    rb.framesRead,
		Overflows:     rb.overflows,
		CurrentSize:   rb.size,
		MaxFrames:     rb.maxFrames,
		FrameSize:     rb.frameSize,
		Utilization:   float64(rb.size) / float64(rb.maxFrames),
		LastWrite:     rb.lastWrite,
		LastRead:      rb.lastRead,
	}
}
