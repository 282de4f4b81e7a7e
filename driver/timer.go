package driver

import (
	"fmt"
	"time"

	"asynctimer/trace"
	"asynctimer/wake"
)

// backend is the OS-specific half of a driver. schedule must make the OS
// callback call State.Fire(gen); a zero period means one-shot.
type backend interface {
	schedule(gen wake.Gen, d, period time.Duration) error
	unschedule()
	release() error
}

// timer implements Driver on top of a backend. It is owned by one task and is
// not safe for concurrent use; only the backend callback touches the wake
// state from other goroutines.
type timer struct {
	kind   Kind
	state  *wake.State
	impl   backend
	tracer trace.Tracer
	status Status
	period time.Duration
}

func newTimer(kind Kind, st *wake.State, impl backend, tr trace.Tracer) *timer {
	return &timer{
		kind:   kind,
		state:  st,
		impl:   impl,
		tracer: trace.OrNop(tr),
	}
}

func (t *timer) Kind() Kind { return t.kind }

func (t *timer) State() *wake.State { return t.state }

func (t *timer) IsExpired() bool { return t.state.IsFired() }

func (t *timer) Status() Status {
	if t.status == StatusArmed && t.state.IsFired() {
		return StatusFired
	}
	return t.status
}

func (t *timer) Arm(d time.Duration) error {
	return t.arm("driver.arm", d, 0)
}

func (t *timer) ArmPeriodic(period time.Duration) error {
	return t.arm("driver.arm_periodic", period, period)
}

func (t *timer) Rearm(d time.Duration) error {
	if t.period > 0 {
		return t.arm("driver.rearm", d, d)
	}
	return t.arm("driver.rearm", d, 0)
}

func (t *timer) arm(op string, d, period time.Duration) error {
	if t.status == StatusClosed {
		return ErrClosed
	}
	if d <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidDuration, d)
	}
	if t.status == StatusArmed {
		t.impl.unschedule()
	}
	gen := t.state.Reset()
	if err := t.impl.schedule(gen, d, period); err != nil {
		t.state.Cancel()
		t.status = StatusIdle
		t.period = 0
		trace.Error(t.tracer, trace.ScopeDriver, op, err)
		return err
	}
	t.status = StatusArmed
	t.period = period
	trace.Point(t.tracer, trace.ScopeDriver, op, fmt.Sprintf("%s %v gen=%d", t.kind, d, gen))
	return nil
}

func (t *timer) Cancel() {
	if t.status != StatusArmed {
		return
	}
	t.impl.unschedule()
	t.state.Cancel()
	t.status = StatusCancelled
	t.period = 0
	trace.Point(t.tracer, trace.ScopeDriver, "driver.cancel", t.kind.String())
}

func (t *timer) Close() error {
	if t.status == StatusClosed {
		return nil
	}
	t.Cancel()
	t.status = StatusClosed
	err := t.impl.release()
	if err != nil {
		trace.Error(t.tracer, trace.ScopeDriver, "driver.close", err)
	}
	return err
}
