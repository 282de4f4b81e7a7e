// Package future defines the pull-based suspension model shared by the timer
// combinators and the executor.
//
// A Future is polled with a Context carrying the Waker of the task that owns
// it. Poll either returns a ready value or reports Pending, in which case the
// future must have arranged for the Waker to be called once progress is
// possible again.
package future

// Waker resumes a suspended task. Wake may be called from any goroutine and
// any number of times; extra calls are coalesced by the executor.
type Waker interface {
	Wake()
}

// WakerFunc adapts a plain function to Waker.
type WakerFunc func()

// Wake calls f.
func (f WakerFunc) Wake() {
	if f != nil {
		f()
	}
}

type noopWaker struct{}

func (noopWaker) Wake() {}

// Noop is a waker that does nothing.
var Noop Waker = noopWaker{}

// Context is passed to Poll.
type Context struct {
	waker Waker
}

// NewContext builds a context around w. A nil waker is replaced with Noop.
func NewContext(w Waker) *Context {
	if w == nil {
		w = Noop
	}
	return &Context{waker: w}
}

// Waker returns the waker of the task being polled.
func (cx *Context) Waker() Waker {
	if cx == nil || cx.waker == nil {
		return Noop
	}
	return cx.waker
}

// Poll is the outcome of a single poll.
type Poll[T any] struct {
	ready bool
	value T
}

// Ready wraps a completed value.
func Ready[T any](v T) Poll[T] {
	return Poll[T]{ready: true, value: v}
}

// Pending reports that the future has not completed yet.
func Pending[T any]() Poll[T] {
	return Poll[T]{}
}

// IsReady reports whether the poll produced a value.
func (p Poll[T]) IsReady() bool { return p.ready }

// Value returns the value and whether it is present.
func (p Poll[T]) Value() (T, bool) { return p.value, p.ready }

// Future is a computation that completes at some later poll.
type Future[T any] interface {
	Poll(cx *Context) Poll[T]
}

// Result is the output of a fallible future.
type Result[T any] struct {
	Value T
	Err   error
}

// Ok builds a successful result.
func Ok[T any](v T) Result[T] { return Result[T]{Value: v} }

// Fail builds a failed result.
func Fail[T any](err error) Result[T] { return Result[T]{Err: err} }

// Unwrap returns the value and the error.
func (r Result[T]) Unwrap() (T, error) { return r.Value, r.Err }
