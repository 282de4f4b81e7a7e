package asynctimer

import (
	"context"
	"fmt"
	"iter"
	"runtime"
	"time"

	"asynctimer/asyncrt"
	"asynctimer/driver"
	"asynctimer/future"
	"asynctimer/trace"
	"asynctimer/wake"
)

// Tick is one observed interval expiration.
type Tick struct {
	// Seq counts ticks from 1.
	Seq uint64
	// At is when the tick was observed by the consumer.
	At time.Time
}

// Interval resolves once per period. In RearmLazy mode the next period is
// armed when a tick is observed; in RearmEager mode the timer runs freely and
// unobserved fires coalesce into one pending tick.
type Interval struct {
	drv     driver.Driver
	period  time.Duration
	mode    RearmMode
	tracer  trace.Tracer
	seq     uint64
	err     error
	closed  bool
	cleanup runtime.Cleanup
}

// NewInterval arms a timer that expires every period.
func NewInterval(period time.Duration, opts ...Option) (*Interval, error) {
	if period <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDuration, period)
	}
	s := newSettings(opts)
	drv, err := s.newDriver()
	if err != nil {
		return nil, err
	}
	if s.rearm == RearmEager {
		err = drv.ArmPeriodic(period)
	} else {
		err = drv.Arm(period)
	}
	if err != nil {
		_ = drv.Close()
		return nil, err
	}
	i := &Interval{
		drv:    drv,
		period: period,
		mode:   s.rearm,
		tracer: s.cfg.Tracer,
	}
	i.cleanup = guard(i, drv)
	trace.Point(i.tracer, trace.ScopeCombinator, "interval.new", fmt.Sprintf("%v %s %s", period, s.rearm, drv.Kind()))
	return i, nil
}

// NewIntervalUnchecked is NewInterval that panics on failure.
func NewIntervalUnchecked(period time.Duration, opts ...Option) *Interval {
	i, err := NewInterval(period, opts...)
	if err != nil {
		panic(fmt.Sprintf("asynctimer: %v", err))
	}
	return i
}

// Period returns the configured period.
func (i *Interval) Period() time.Duration { return i.period }

// Mode returns the rearm mode.
func (i *Interval) Mode() RearmMode { return i.mode }

// Generation returns the arm generation of the underlying timer. It
// advances on every lazy rearm.
func (i *Interval) Generation() wake.Gen {
	if i.closed {
		return 0
	}
	return i.drv.State().Generation()
}

// Poll resolves with the next tick. The Interval can be polled again after
// each tick. A failed rearm is reported on the following poll, after which
// the Interval is closed.
func (i *Interval) Poll(cx *future.Context) future.Poll[future.Result[Tick]] {
	if i.err != nil {
		err := i.err
		i.err = nil
		_ = i.Close()
		return future.Ready(future.Fail[Tick](err))
	}
	if i.closed {
		return future.Ready(future.Fail[Tick](ErrClosed))
	}

	st := i.drv.State()
	if !st.IsFired() && !st.Register(cx.Waker()) {
		return future.Pending[future.Result[Tick]]()
	}

	i.seq++
	tick := Tick{Seq: i.seq, At: time.Now()}
	if i.mode == RearmEager {
		st.Consume()
	} else if err := i.drv.Rearm(i.period); err != nil {
		i.err = err
		trace.Error(i.tracer, trace.ScopeCombinator, "interval.rearm", err)
	}
	trace.Point(i.tracer, trace.ScopeCombinator, "interval.tick", fmt.Sprintf("#%d", tick.Seq))
	return future.Ready(future.Ok(tick))
}

// Tick returns a future that resolves with the next tick only.
func (i *Interval) Tick() future.Future[future.Result[Tick]] {
	return &nextTick{iv: i}
}

type nextTick struct {
	iv   *Interval
	done bool
}

func (n *nextTick) Poll(cx *future.Context) future.Poll[future.Result[Tick]] {
	if n.done {
		panic("asynctimer: tick future polled after completion")
	}
	p := n.iv.Poll(cx)
	n.done = p.IsReady()
	return p
}

// Ticks blocks the calling goroutine between ticks and yields each one until
// ctx ends, the consumer stops, or the Interval fails. Ranging over it again
// continues with the next tick.
func (i *Interval) Ticks(ctx context.Context) iter.Seq[Tick] {
	return func(yield func(Tick) bool) {
		for {
			res, err := asyncrt.BlockOn(ctx, i.Tick())
			if err != nil || res.Err != nil {
				return
			}
			if !yield(res.Value) {
				return
			}
		}
	}
}

// Close cancels and releases the timer. Later polls resolve to ErrClosed.
func (i *Interval) Close() error {
	if i.closed {
		return nil
	}
	i.closed = true
	i.cleanup.Stop()
	trace.Point(i.tracer, trace.ScopeCombinator, "interval.close", fmt.Sprintf("ticks=%d", i.seq))
	return i.drv.Close()
}
