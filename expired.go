package asynctimer

import (
	"fmt"
	"runtime"
	"time"

	"asynctimer/driver"
	"asynctimer/future"
)

// Expired is the error a Timed resolves to when its deadline passes before
// the inner future completes. It keeps the inner future and the timer, so the
// race can be restarted without losing the computation's progress.
//
// Restart, Retry and Into consume the Expired; later calls return
// ErrConsumed.
type Expired[T any] struct {
	inner    future.Future[T]
	drv      driver.Driver
	timeout  time.Duration
	opts     *settings
	consumed bool
	cleanup  runtime.Cleanup
}

// Error reports the deadline that was missed.
func (e *Expired[T]) Error() string {
	return "future expired in " + formatTimeout(e.timeout)
}

func formatTimeout(d time.Duration) string {
	ms := d.Milliseconds()
	if ms < 1000 {
		return fmt.Sprintf("%d ms", ms)
	}
	return fmt.Sprintf("%d seconds and %d ms", ms/1000, ms%1000)
}

// Timeout returns the deadline that was missed.
func (e *Expired[T]) Timeout() time.Duration { return e.timeout }

// Consumed reports whether the inner future has been handed out.
func (e *Expired[T]) Consumed() bool { return e.consumed }

// Restart rearms the same timer for d and resumes racing the inner future.
// A failed restart leaves the Expired usable.
func (e *Expired[T]) Restart(d time.Duration) (*Timed[T], error) {
	if e.consumed {
		return nil, ErrConsumed
	}
	if d <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDuration, d)
	}
	if err := e.drv.Rearm(d); err != nil {
		return nil, err
	}
	inner, drv := e.take()
	return newTimed(inner, drv, d, e.opts), nil
}

// Retry restarts the race with the timeout that expired.
func (e *Expired[T]) Retry() (*Timed[T], error) {
	return e.Restart(e.timeout)
}

// Into releases the timer and returns the inner future.
func (e *Expired[T]) Into() (future.Future[T], error) {
	if e.consumed {
		return nil, ErrConsumed
	}
	inner, drv := e.take()
	if err := drv.Close(); err != nil {
		return inner, err
	}
	return inner, nil
}

// Close releases the timer and drops the inner future. It is a no-op on a
// consumed Expired.
func (e *Expired[T]) Close() error {
	if e.consumed {
		return nil
	}
	_, drv := e.take()
	return drv.Close()
}

func (e *Expired[T]) take() (future.Future[T], driver.Driver) {
	e.cleanup.Stop()
	e.consumed = true
	inner, drv := e.inner, e.drv
	e.inner = nil
	e.drv = nil
	return inner, drv
}
