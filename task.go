package tablegrid

import (
	"context"
	"time"
)

// Task is the result of an action started with Go. The action always runs to
// completion; Wait only controls how long the caller is prepared to block.
type Task[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// Go runs fn on its own goroutine after delay. The delay stands in for backend
// latency; a real call can replace fn without changing callers.
func Go[T any](delay time.Duration, fn func() (T, error)) *Task[T] {
	t := &Task[T]{done: make(chan struct{})}
	go func() {
		defer close(t.done)
		if delay > 0 {
			timer := time.NewTimer(delay)
			<-timer.C
		}
		t.value, t.err = fn()
	}()
	return t
}

// Done is closed once the action has finished.
func (t *Task[T]) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the action finishes or ctx ends. A cancelled wait leaves the
// action running.
func (t *Task[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-t.done:
		return t.value, t.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
