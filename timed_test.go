package asynctimer

import (
	"context"
	"errors"
	"testing"
	"time"

	"asynctimer/asyncrt"
	"asynctimer/driver"
	"asynctimer/future"
	"asynctimer/internal/testkit"
)

func newManualTimed(t *testing.T, d time.Duration) (*Timed[int], *future.Chan[int], *testkit.ManualDriver) {
	t.Helper()
	m := testkit.NewManual()
	inner := future.NewChan[int]()
	tm, err := NewTimed[int](inner, d, WithDriverFactory(m.Factory()))
	if err != nil {
		t.Fatalf("NewTimed: %v", err)
	}
	return tm, inner, m
}

func TestTimedCompletesBeforeDeadline(t *testing.T) {
	tm, inner, m := newManualTimed(t, 50*time.Millisecond)
	w := testkit.NewCountingWaker()
	cx := future.NewContext(w)

	if tm.Poll(cx).IsReady() {
		t.Fatalf("expected pending before anything happened")
	}
	inner.Complete(7)
	res, ok := tm.Poll(cx).Value()
	if !ok {
		t.Fatalf("expected ready after inner completed")
	}
	if v, err := res.Unwrap(); err != nil || v != 7 {
		t.Fatalf("unexpected result %v %v", v, err)
	}
	if !m.Closed() {
		t.Fatalf("driver not released on completion")
	}
	if m.Trip() {
		t.Fatalf("released driver must not fire")
	}
}

func TestTimedInnerWinsTie(t *testing.T) {
	tm, inner, m := newManualTimed(t, 10*time.Millisecond)
	inner.Complete(1)
	m.Trip()
	res, ok := tm.Poll(future.NewContext(future.Noop)).Value()
	if !ok || res.Err != nil || res.Value != 1 {
		t.Fatalf("expected inner value on tie, got %+v ready=%v", res, ok)
	}
}

func TestTimedFireWakesTask(t *testing.T) {
	tm, _, m := newManualTimed(t, 10*time.Millisecond)
	w := testkit.NewCountingWaker()
	cx := future.NewContext(w)
	if tm.Poll(cx).IsReady() {
		t.Fatalf("expected pending")
	}
	if !m.Trip() {
		t.Fatalf("trip failed")
	}
	if w.Count() != 1 {
		t.Fatalf("expected exactly one wake, got %d", w.Count())
	}
	res, ok := tm.Poll(cx).Value()
	if !ok {
		t.Fatalf("expected ready after fire")
	}
	var exp *Expired[int]
	if !errors.As(res.Err, &exp) {
		t.Fatalf("expected *Expired, got %v", res.Err)
	}
	if exp.Timeout() != 10*time.Millisecond {
		t.Fatalf("unexpected timeout %v", exp.Timeout())
	}
	if m.Closed() {
		t.Fatalf("expired must keep the driver for restart")
	}
}

func TestExpiredRestartTwice(t *testing.T) {
	tm, inner, m := newManualTimed(t, 10*time.Millisecond)
	cx := future.NewContext(future.Noop)

	for round := 0; round < 2; round++ {
		tm.Poll(cx)
		m.Trip()
		res, ok := tm.Poll(cx).Value()
		if !ok {
			t.Fatalf("round %d: expected timeout", round)
		}
		var exp *Expired[int]
		if !errors.As(res.Err, &exp) {
			t.Fatalf("round %d: expected *Expired, got %v", round, res.Err)
		}
		next, err := exp.Restart(20 * time.Millisecond)
		if err != nil {
			t.Fatalf("round %d: restart: %v", round, err)
		}
		if _, err := exp.Retry(); !errors.Is(err, ErrConsumed) {
			t.Fatalf("round %d: expected ErrConsumed, got %v", round, err)
		}
		tm = next
	}

	arms := m.Arms()
	if len(arms) != 3 {
		t.Fatalf("expected 3 arms on one driver, got %d", len(arms))
	}
	if arms[2].D != 20*time.Millisecond || arms[2].Periodic {
		t.Fatalf("unexpected rearm record %+v", arms[2])
	}

	inner.Complete(5)
	res, ok := tm.Poll(cx).Value()
	if !ok || res.Err != nil || res.Value != 5 {
		t.Fatalf("expected completion after restarts, got %+v ready=%v", res, ok)
	}
	if !m.Closed() {
		t.Fatalf("driver not released")
	}
}

func TestExpiredIntoReleasesTimer(t *testing.T) {
	tm, inner, m := newManualTimed(t, 10*time.Millisecond)
	m.Trip()
	res, _ := tm.Poll(future.NewContext(future.Noop)).Value()
	var exp *Expired[int]
	if !errors.As(res.Err, &exp) {
		t.Fatalf("expected *Expired, got %v", res.Err)
	}
	f, err := exp.Into()
	if err != nil {
		t.Fatalf("into: %v", err)
	}
	if !m.Closed() {
		t.Fatalf("Into must release the timer")
	}
	if !exp.Consumed() {
		t.Fatalf("expected consumed")
	}
	if _, err := exp.Restart(time.Millisecond); !errors.Is(err, ErrConsumed) {
		t.Fatalf("expected ErrConsumed, got %v", err)
	}
	inner.Complete(3)
	if v, ok := f.Poll(future.NewContext(future.Noop)).Value(); !ok || v != 3 {
		t.Fatalf("inner future lost: %v %v", v, ok)
	}
}

func TestExpiredRestartInvalidKeepsExpired(t *testing.T) {
	tm, _, m := newManualTimed(t, 10*time.Millisecond)
	m.Trip()
	res, _ := tm.Poll(future.NewContext(future.Noop)).Value()
	var exp *Expired[int]
	if !errors.As(res.Err, &exp) {
		t.Fatalf("expected *Expired, got %v", res.Err)
	}
	if _, err := exp.Restart(0); !errors.Is(err, ErrInvalidDuration) {
		t.Fatalf("expected ErrInvalidDuration, got %v", err)
	}
	if exp.Consumed() {
		t.Fatalf("failed restart consumed the expired")
	}
	if _, err := exp.Retry(); err != nil {
		t.Fatalf("retry: %v", err)
	}
}

func TestExpiredErrorMessage(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{10 * time.Millisecond, "future expired in 10 ms"},
		{999 * time.Millisecond, "future expired in 999 ms"},
		{1500 * time.Millisecond, "future expired in 1 seconds and 500 ms"},
		{2 * time.Second, "future expired in 2 seconds and 0 ms"},
	}
	for _, tc := range cases {
		e := &Expired[int]{timeout: tc.d}
		if got := e.Error(); got != tc.want {
			t.Fatalf("%v: want %q, got %q", tc.d, tc.want, got)
		}
	}
}

func TestTimedPollAfterCompletionPanics(t *testing.T) {
	tm, inner, _ := newManualTimed(t, 10*time.Millisecond)
	inner.Complete(1)
	cx := future.NewContext(future.Noop)
	tm.Poll(cx)
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on second poll")
		}
	}()
	tm.Poll(cx)
}

func TestTimedClose(t *testing.T) {
	tm, _, m := newManualTimed(t, 10*time.Millisecond)
	if err := tm.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !m.Closed() {
		t.Fatalf("driver not closed")
	}
	if m.Trip() {
		t.Fatalf("closed driver fired")
	}
	res, ok := tm.Poll(future.NewContext(future.Noop)).Value()
	if !ok || !errors.Is(res.Err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %+v", res)
	}
	if err := tm.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestNewTimedRejectsInvalidDuration(t *testing.T) {
	m := testkit.NewManual()
	for _, d := range []time.Duration{0, -time.Second} {
		if _, err := NewTimed[int](future.NewChan[int](), d, WithDriverFactory(m.Factory())); !errors.Is(err, ErrInvalidDuration) {
			t.Fatalf("%v: expected ErrInvalidDuration, got %v", d, err)
		}
	}
	if len(m.Arms()) != 0 {
		t.Fatalf("invalid duration must not arm")
	}
}

func TestNewTimedUnsupportedBackend(t *testing.T) {
	var missing driver.Kind
	found := false
	for _, k := range []driver.Kind{driver.KindPosix, driver.KindKqueue, driver.KindThreadpool, driver.KindHost} {
		if !driver.Supported(k) {
			missing, found = k, true
			break
		}
	}
	if !found {
		t.Skip("every backend is supported in this build")
	}
	_, err := NewTimed[int](future.NewChan[int](), time.Second, WithBackend(missing))
	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported for %s, got %v", missing, err)
	}
	defer func() {
		if recover() == nil {
			t.Fatalf("expected unchecked constructor to panic")
		}
	}()
	NewTimedUnchecked[int](future.NewChan[int](), time.Second, WithBackend(missing))
}

func TestTimedRealDeadlines(t *testing.T) {
	if testing.Short() {
		t.Skip("real-time test")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	opts := []Option{WithBackend(driver.KindReactor)}

	t.Run("completes", func(t *testing.T) {
		work, err := NewDelay(10*time.Millisecond, opts...)
		if err != nil {
			t.Fatalf("delay: %v", err)
		}
		tm, err := NewTimed[struct{}](work, 50*time.Millisecond, opts...)
		if err != nil {
			t.Fatalf("timed: %v", err)
		}
		res, err := asyncrt.BlockOn[future.Result[struct{}]](ctx, tm)
		if err != nil || res.Err != nil {
			t.Fatalf("expected completion, got %v %v", err, res.Err)
		}
	})

	t.Run("expires then restarts", func(t *testing.T) {
		work, err := NewDelay(50*time.Millisecond, opts...)
		if err != nil {
			t.Fatalf("delay: %v", err)
		}
		start := time.Now()
		tm, err := NewTimed[struct{}](work, 10*time.Millisecond, opts...)
		if err != nil {
			t.Fatalf("timed: %v", err)
		}
		res, err := asyncrt.BlockOn[future.Result[struct{}]](ctx, tm)
		if err != nil {
			t.Fatalf("block: %v", err)
		}
		var exp *Expired[struct{}]
		if !errors.As(res.Err, &exp) {
			t.Fatalf("expected timeout, got %v", res.Err)
		}
		if elapsed := time.Since(start); elapsed < 10*time.Millisecond {
			t.Fatalf("timed out early after %v", elapsed)
		}
		restarts := 0
		for {
			next, err := exp.Restart(10 * time.Millisecond)
			if err != nil {
				t.Fatalf("restart: %v", err)
			}
			restarts++
			res, err = asyncrt.BlockOn[future.Result[struct{}]](ctx, next)
			if err != nil {
				t.Fatalf("block: %v", err)
			}
			if res.Err == nil {
				break
			}
			if !errors.As(res.Err, &exp) {
				t.Fatalf("unexpected error %v", res.Err)
			}
			if restarts > 100 {
				t.Fatalf("inner never completed")
			}
		}
		if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
			t.Fatalf("inner completed early after %v", elapsed)
		}
	})
}

func TestTimedPlatformBackend(t *testing.T) {
	if testing.Short() {
		t.Skip("real-time test")
	}
	if !driver.Supported(driver.KindAuto) {
		t.Skip("no platform timer backend")
	}
	tm, err := NewTimed[int](future.NewChan[int](), 15*time.Millisecond)
	if err != nil {
		t.Fatalf("timed: %v", err)
	}
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := asyncrt.BlockOn[future.Result[int]](ctx, tm)
	if err != nil {
		t.Fatalf("block: %v", err)
	}
	var exp *Expired[int]
	if !errors.As(res.Err, &exp) {
		t.Fatalf("expected timeout, got %v", res.Err)
	}
	if elapsed := time.Since(start); elapsed < 15*time.Millisecond {
		t.Fatalf("expired early after %v", elapsed)
	}
	if err := exp.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
