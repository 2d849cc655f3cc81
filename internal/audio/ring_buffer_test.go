package audio

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingBufferFIFO(t *testing.T) {
	t.Parallel()

	rb, err := NewRingBuffer[int16](8, 2)
	require.NoError(t, err)

	for i := int16(0); i < 5; i++ {
		require.NoError(t, rb.Write([]int16{i, i}))
	}

	for i := int16(0); i < 5; i++ {
		frame, ok := rb.ReadFrame()
		require.True(t, ok)
		assert.Equal(t, []int16{i, i}, frame)
	}

	_, ok := rb.ReadFrame()
	assert.False(t, ok, "empty buffer must signal empty")
}

func TestRingBufferWraparound(t *testing.T) {
	t.Parallel()

	rb, err := NewRingBuffer[int16](3, 2)
	require.NoError(t, err)

	require.NoError(t, rb.Write([]int16{1, 1}))
	require.NoError(t, rb.Write([]int16{2, 2}))
	require.NoError(t, rb.Write([]int16{3, 3}))
	require.NoError(t, rb.Write([]int16{4, 4}))

	assert.Equal(t, 3, rb.Size())
	assert.Equal(t, uint64(1), rb.Stats().Overflows)

	want := [][]int16{{2, 2}, {3, 3}, {4, 4}}
	for _, expected := range want {
		frame, ok := rb.ReadFrame()
		require.True(t, ok)
		assert.Equal(t, expected, frame)
	}
}

func TestRingBufferSizeValidation(t *testing.T) {
	t.Parallel()

	rb, err := NewRingBuffer[int16](3, 2)
	require.NoError(t, err)

	err = rb.Write([]int16{1, 2, 3})
	require.ErrorIs(t, err, ErrFrameSize)

	assert.Equal(t, 0, rb.Size())
	assert.Equal(t, uint64(0), rb.Stats().FramesWritten)
}

func TestRingBufferOverflowAccounting(t *testing.T) {
	t.Parallel()

	const capacity = 10
	const extra = 7

	rb, err := NewRingBuffer[int16](capacity, 1)
	require.NoError(t, err)

	for i := 0; i < capacity+extra; i++ {
		require.NoError(t, rb.Write([]int16{int16(i)}))
	}

	stats := rb.Stats()
	assert.Equal(t, capacity, stats.CurrentSize)
	assert.Equal(t, uint64(extra), stats.Overflows)
	assert.Equal(t, uint64(capacity+extra), stats.FramesWritten)
	assert.True(t, rb.IsFull())
}

func TestRingBufferBatchReads(t *testing.T) {
	t.Parallel()

	rb, err := NewRingBuffer[int16](8, 1)
	require.NoError(t, err)

	for i := int16(0); i < 6; i++ {
		require.NoError(t, rb.Write([]int16{i}))
	}

	frames := rb.ReadFrames(4)
	require.Len(t, frames, 4)
	for i, frame := range frames {
		assert.Equal(t, int16(i), frame[0])
	}

	rest := rb.ReadAll()
	require.Len(t, rest, 2)
	assert.Equal(t, int16(4), rest[0][0])
	assert.Equal(t, int16(5), rest[1][0])
	assert.True(t, rb.IsEmpty())
}

func TestRingBufferClearKeepsCounters(t *testing.T) {
	t.Parallel()

	rb, err := NewRingBuffer[int16](4, 1)
	require.NoError(t, err)

	require.NoError(t, rb.Write([]int16{1}))
	require.NoError(t, rb.Write([]int16{2}))
	rb.Clear()

	assert.True(t, rb.IsEmpty())
	assert.Equal(t, uint64(2), rb.Stats().FramesWritten)
}

func TestRingBufferStatsUtilization(t *testing.T) {
	t.Parallel()

	rb, err := NewRingBuffer[int16](4, 1)
	require.NoError(t, err)

	require.NoError(t, rb.Write([]int16{1}))
	require.NoError(t, rb.Write([]int16{2}))

	stats := rb.Stats()
	assert.InDelta(t, 0.5, stats.Utilization, 1e-9)
	assert.Equal(t, 4, stats.MaxFrames)
	assert.Equal(t, 1, stats.FrameSize)
	assert.False(t, stats.LastWrite.IsZero())
}

// Writes from one goroutine with concurrent reads mimic the capture
// callback feeding pipeline consumers.
func TestRingBufferConcurrentAccess(t *testing.T) {
	t.Parallel()

	rb, err := NewRingBuffer[int16](64, 4)
	require.NoError(t, err)

	const writes = 5000
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		frame := []int16{1, 2, 3, 4}
		for i := 0; i < writes; i++ {
			_ = rb.Write(frame)
		}
	}()

	var read uint64
	go func() {
		defer wg.Done()
		for i := 0; i < writes; i++ {
			if _, ok := rb.ReadFrame(); ok {
				read++
			}
		}
	}()

	wg.Wait()

	stats := rb.Stats()
	assert.Equal(t, uint64(writes), stats.FramesWritten)
	assert.Equal(t, read, stats.FramesRead)
	assert.LessOrEqual(t, stats.CurrentSize, 64)
}

func TestAudioBufferDerivedSizing(t *testing.T) {
	t.Parallel()

	ab, err := NewAudioBuffer(16000, 1, 20, 4000)
	require.NoError(t, err)

	assert.Equal(t, 320, ab.FrameSize())
	assert.Equal(t, 200, ab.MaxFrames())
}

func TestAudioBufferAudioStats(t *testing.T) {
	t.Parallel()

	ab, err := NewAudioBuffer(16000, 1, 20, 200)
	require.NoError(t, err)

	frame := make([]int16, ab.FrameSize())
	require.NoError(t, ab.Write(frame))
	require.NoError(t, ab.Write(frame))
	require.NoError(t, ab.Write(frame))

	stats := ab.AudioStats()
	assert.Equal(t, 60, stats.AudioDurationMs)
	assert.Equal(t, 60, stats.BufferLatencyMs)
	assert.Equal(t, 3, stats.CurrentSize)
}

func TestAudioBufferRejectsBadParameters(t *testing.T) {
	t.Parallel()

	_, err := NewAudioBuffer(0, 1, 20, 4000)
	assert.Error(t, err)

	_, err = NewAudioBuffer(16000, 1, 0, 4000)
	assert.Error(t, err)

	_, err = NewAudioBuffer(16000, 1, 100, 50)
	assert.Error(t, err)
}

func TestCalculateLevel(t *testing.T) {
	t.Parallel()

	silence := make([]int16, 320)
	assert.Equal(t, 0, CalculateLevel(silence).Level)

	loud := make([]int16, 320)
	for i := range loud {
		loud[i] = 20000
	}
	level := CalculateLevel(loud)
	assert.Greater(t, level.Level, 50)
	assert.False(t, level.Clipping)

	clipping := make([]int16, 320)
	for i := range clipping {
		clipping[i] = 32767
	}
	level = CalculateLevel(clipping)
	assert.True(t, level.Clipping)
	assert.GreaterOrEqual(t, level.Level, 95)
}
