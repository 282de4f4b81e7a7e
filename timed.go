package asynctimer

import (
	"fmt"
	"runtime"
	"time"

	"asynctimer/driver"
	"asynctimer/future"
	"asynctimer/trace"
)

type timedPhase uint8

const (
	timedRacing timedPhase = iota
	timedCompleted
	timedExpired
	timedClosed
)

// Timed races an inner future against a deadline. It resolves to the inner
// value, or to an *Expired[T] error once the deadline passes first. When
// both are ready in the same poll the inner value wins.
//
// A Timed that has resolved must not be polled again.
type Timed[T any] struct {
	inner   future.Future[T]
	drv     driver.Driver
	timeout time.Duration
	opts    *settings
	phase   timedPhase
	span    *trace.Span
	cleanup runtime.Cleanup
}

// NewTimed arms a timer for d and wraps inner. It fails with
// ErrInvalidDuration for d <= 0 and with ErrUnsupported when the selected
// backend is not available.
func NewTimed[T any](inner future.Future[T], d time.Duration, opts ...Option) (*Timed[T], error) {
	if inner == nil {
		return nil, fmt.Errorf("asynctimer: nil future")
	}
	if d <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDuration, d)
	}
	s := newSettings(opts)
	drv, err := s.newDriver()
	if err != nil {
		return nil, err
	}
	if err := drv.Arm(d); err != nil {
		_ = drv.Close()
		return nil, err
	}
	return newTimed(inner, drv, d, s), nil
}

// NewTimedUnchecked is NewTimed for callers that know the backend is
// available and d is valid. It panics on failure.
func NewTimedUnchecked[T any](inner future.Future[T], d time.Duration, opts ...Option) *Timed[T] {
	t, err := NewTimed(inner, d, opts...)
	if err != nil {
		panic(fmt.Sprintf("asynctimer: %v", err))
	}
	return t
}

// newTimed takes ownership of an armed driver.
func newTimed[T any](inner future.Future[T], drv driver.Driver, d time.Duration, s *settings) *Timed[T] {
	t := &Timed[T]{
		inner:   inner,
		drv:     drv,
		timeout: d,
		opts:    s,
	}
	t.span = trace.Begin(s.cfg.Tracer, trace.ScopeCombinator, "timed").
		WithExtra("timeout", d.String()).
		WithExtra("backend", drv.Kind().String())
	t.cleanup = guard(t, drv)
	return t
}

// Timeout returns the deadline duration of the current race.
func (t *Timed[T]) Timeout() time.Duration { return t.timeout }

// Poll advances the race. It polls the inner future first, then checks the
// timer and registers the caller's waker with it.
func (t *Timed[T]) Poll(cx *future.Context) future.Poll[future.Result[T]] {
	switch t.phase {
	case timedCompleted, timedExpired:
		panic("asynctimer: Timed polled after completion")
	case timedClosed:
		return future.Ready(future.Fail[T](ErrClosed))
	}

	if v, ok := t.inner.Poll(cx).Value(); ok {
		t.phase = timedCompleted
		t.span.End("completed")
		t.release()
		return future.Ready(future.Ok(v))
	}

	st := t.drv.State()
	if st.IsFired() || st.Register(cx.Waker()) {
		t.phase = timedExpired
		t.span.End("expired")
		return future.Ready(future.Fail[T](t.expire()))
	}
	return future.Pending[future.Result[T]]()
}

// expire hands the inner future and the driver over to an Expired.
func (t *Timed[T]) expire() *Expired[T] {
	t.cleanup.Stop()
	e := &Expired[T]{
		inner:   t.inner,
		drv:     t.drv,
		timeout: t.timeout,
		opts:    t.opts,
	}
	e.cleanup = guard(e, e.drv)
	t.inner = nil
	t.drv = nil
	return e
}

func (t *Timed[T]) release() {
	t.cleanup.Stop()
	if t.drv != nil {
		_ = t.drv.Close()
		t.drv = nil
	}
	t.inner = nil
}

// Close cancels the timer and releases it. Closing a resolved Timed is a
// no-op; an Expired it produced owns the timer from then on.
func (t *Timed[T]) Close() error {
	if t.phase != timedRacing {
		return nil
	}
	t.phase = timedClosed
	t.span.End("closed")
	err := t.drv.Close()
	t.cleanup.Stop()
	t.drv = nil
	t.inner = nil
	return err
}
