package asyncrt

import (
	"context"
	"errors"
	"fmt"

	"asynctimer/future"
)

// ErrCancelled is reported by a handle whose task was cancelled.
var ErrCancelled = errors.New("task cancelled")

// Handle observes a spawned task.
type Handle[T any] struct {
	exec      *Executor
	id        TaskID
	done      bool
	cancelled bool
	value     T
}

// Spawn schedules f on e. The task is polled once Run is called.
func Spawn[T any](e *Executor, name string, f future.Future[T]) *Handle[T] {
	h := &Handle[T]{exec: e}
	poll := func(cx *future.Context) bool {
		v, ok := f.Poll(cx).Value()
		if ok {
			h.value = v
			h.done = true
		}
		return ok
	}
	// A cancelled future that implements Close is closed so it can release
	// its timer.
	drop := func() {
		h.cancelled = true
		if c, ok := f.(interface{ Close() error }); ok {
			_ = c.Close()
		}
	}
	h.id = e.spawn(name, poll, drop)
	return h
}

// ID returns the task ID.
func (h *Handle[T]) ID() TaskID { return h.id }

// Done reports whether the task produced a value.
func (h *Handle[T]) Done() bool { return h.done }

// Result returns the task's value, ErrCancelled if it was cancelled, or an
// error if it has not finished.
func (h *Handle[T]) Result() (T, error) {
	if h.done {
		return h.value, nil
	}
	var zero T
	if h.cancelled {
		return zero, ErrCancelled
	}
	return zero, fmt.Errorf("task %d has not finished", h.id)
}

// Cancel cancels the task.
func (h *Handle[T]) Cancel() { h.exec.Cancel(h.id) }

// BlockOn runs f to completion on a fresh executor. If ctx ends first the
// future is cancelled and ctx.Err() is returned.
func BlockOn[T any](ctx context.Context, f future.Future[T], opts ...Config) (T, error) {
	var cfg Config
	if len(opts) > 0 {
		cfg = opts[0]
	}
	exec := NewExecutor(cfg)
	h := Spawn(exec, "block_on", f)
	if err := exec.Run(ctx); err != nil {
		h.Cancel()
		var zero T
		return zero, err
	}
	return h.Result()
}
