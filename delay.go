package asynctimer

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"asynctimer/asyncrt"
	"asynctimer/driver"
	"asynctimer/future"
)

// Delay is a one-shot future that resolves once its duration has elapsed.
// Polling it after it resolved returns Ready again.
type Delay struct {
	drv     driver.Driver
	d       time.Duration
	done    bool
	cleanup runtime.Cleanup
}

// NewDelay arms a timer for d.
func NewDelay(d time.Duration, opts ...Option) (*Delay, error) {
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
	dl := &Delay{drv: drv, d: d}
	dl.cleanup = guard(dl, drv)
	return dl, nil
}

// Duration returns the configured delay.
func (dl *Delay) Duration() time.Duration { return dl.d }

func (dl *Delay) Poll(cx *future.Context) future.Poll[struct{}] {
	if dl.done {
		return future.Ready(struct{}{})
	}
	if dl.drv == nil {
		panic("asynctimer: Delay polled after Close")
	}
	st := dl.drv.State()
	if !st.IsFired() && !st.Register(cx.Waker()) {
		return future.Pending[struct{}]()
	}
	dl.done = true
	dl.release()
	return future.Ready(struct{}{})
}

// Close cancels the timer if the delay has not elapsed.
func (dl *Delay) Close() error {
	if dl.drv == nil {
		return nil
	}
	return dl.release()
}

func (dl *Delay) release() error {
	dl.cleanup.Stop()
	err := dl.drv.Close()
	dl.drv = nil
	return err
}

// Sleep blocks until d has elapsed on the selected backend or ctx ends.
func Sleep(ctx context.Context, d time.Duration, opts ...Option) error {
	dl, err := NewDelay(d, opts...)
	if err != nil {
		return err
	}
	_, err = asyncrt.BlockOn[struct{}](ctx, dl)
	if cerr := dl.Close(); err == nil {
		err = cerr
	}
	return err
}
