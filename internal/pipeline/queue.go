package pipeline

import (
	"context"
	"time"
)

// queuePollTimeout is the bounded wait used on every cross-stage queue
// operation so goroutines stay responsive to cancellation.
const queuePollTimeout = time.Millisecond

// recvTimeout receives from ch, giving up after d. The second return value
// is false on timeout or cancellation.
func recvTimeout[T any](ctx context.Context, ch <-chan T, d time.Duration) (T, bool) {
	var zero T
	select {
	case v, ok := <-ch:
		if !ok {
			return zero, false
		}
		return v, true
	default:
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case v, ok := <-ch:
		if !ok {
			return zero, false
		}
		return v, true
	case <-timer.C:
		return zero, false
	case <-ctx.Done():
		return zero, false
	}
}

// sendTimeout sends v to ch, giving up after d. It returns false when the
// queue stayed full or the context was cancelled.
func sendTimeout[T any](ctx context.Context, ch chan<- T, v T, d time.Duration) bool {
	select {
	case ch <- v:
		return true
	default:
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case ch <- v:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

// tryRecv performs a non-blocking receive.
func tryRecv[T any](ch <-chan T) (T, bool) {
	var zero T
	select {
	case v, ok := <-ch:
		if !ok {
			return zero, false
		}
		return v, true
	default:
		return zero, false
	}
}

// drain discards everything currently buffered on ch.
func drain[T any](ch <-chan T) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}
