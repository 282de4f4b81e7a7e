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

func TestIntervalLazyRearmsOnObservation(t *testing.T) {
	m := testkit.NewManual()
	iv, err := NewInterval(20*time.Millisecond, WithDriverFactory(m.Factory()))
	if err != nil {
		t.Fatalf("interval: %v", err)
	}
	defer iv.Close()
	w := testkit.NewCountingWaker()
	cx := future.NewContext(w)

	if iv.Poll(cx).IsReady() {
		t.Fatalf("expected pending before the first fire")
	}
	gen := iv.Generation()
	if !m.Trip() {
		t.Fatalf("trip failed")
	}
	if m.Trip() {
		t.Fatalf("second fire in one cycle must be absorbed")
	}
	if w.Count() != 1 {
		t.Fatalf("expected one wake, got %d", w.Count())
	}
	res, ok := iv.Poll(cx).Value()
	if !ok || res.Err != nil || res.Value.Seq != 1 {
		t.Fatalf("expected tick 1, got %+v ready=%v", res, ok)
	}
	if iv.Generation() == gen {
		t.Fatalf("lazy tick must start a new generation")
	}
	if iv.Poll(cx).IsReady() {
		t.Fatalf("no tick is buffered in lazy mode")
	}
	if m.TripStale(gen) {
		t.Fatalf("stale generation must not fire")
	}

	arms := m.Arms()
	if len(arms) != 2 || arms[0].Periodic || arms[1].Periodic {
		t.Fatalf("unexpected arm records %+v", arms)
	}
}

func TestIntervalEagerCoalesces(t *testing.T) {
	m := testkit.NewManual()
	iv, err := NewInterval(20*time.Millisecond, WithDriverFactory(m.Factory()), WithRearm(RearmEager))
	if err != nil {
		t.Fatalf("interval: %v", err)
	}
	defer iv.Close()
	cx := future.NewContext(future.Noop)

	m.Trip()
	m.Trip()
	res, ok := iv.Poll(cx).Value()
	if !ok || res.Value.Seq != 1 {
		t.Fatalf("expected tick 1, got %+v ready=%v", res, ok)
	}
	if iv.Poll(cx).IsReady() {
		t.Fatalf("unobserved fires must coalesce into one tick")
	}
	if !m.Trip() {
		t.Fatalf("periodic cycle must fire again after consumption")
	}
	res, ok = iv.Poll(cx).Value()
	if !ok || res.Value.Seq != 2 {
		t.Fatalf("expected tick 2, got %+v ready=%v", res, ok)
	}

	arms := m.Arms()
	if len(arms) != 1 || !arms[0].Periodic {
		t.Fatalf("eager mode arms once periodically, got %+v", arms)
	}
}

func TestIntervalTickFutureIsSingleShot(t *testing.T) {
	m := testkit.NewManual()
	iv := NewIntervalUnchecked(time.Second, WithDriverFactory(m.Factory()))
	defer iv.Close()
	f := iv.Tick()
	cx := future.NewContext(future.Noop)
	m.Trip()
	if !f.Poll(cx).IsReady() {
		t.Fatalf("expected tick")
	}
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on reuse")
		}
	}()
	f.Poll(cx)
}

func TestIntervalClose(t *testing.T) {
	m := testkit.NewManual()
	iv := NewIntervalUnchecked(time.Second, WithDriverFactory(m.Factory()))
	if err := iv.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !m.Closed() {
		t.Fatalf("driver not released")
	}
	res, ok := iv.Poll(future.NewContext(future.Noop)).Value()
	if !ok || !errors.Is(res.Err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %+v", res)
	}
	if iv.Generation() != 0 {
		t.Fatalf("closed interval reports generation %d", iv.Generation())
	}
}

func TestIntervalRejectsInvalidPeriod(t *testing.T) {
	if _, err := NewInterval(0); !errors.Is(err, ErrInvalidDuration) {
		t.Fatalf("expected ErrInvalidDuration, got %v", err)
	}
}

func TestIntervalTicksRealTime(t *testing.T) {
	if testing.Short() {
		t.Skip("real-time test")
	}
	for _, mode := range []RearmMode{RearmLazy, RearmEager} {
		t.Run(mode.String(), func(t *testing.T) {
			iv, err := NewInterval(20*time.Millisecond, WithBackend(driver.KindReactor), WithRearm(mode))
			if err != nil {
				t.Fatalf("interval: %v", err)
			}
			defer iv.Close()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			start := time.Now()
			var seqs []uint64
			for tick := range iv.Ticks(ctx) {
				seqs = append(seqs, tick.Seq)
				if len(seqs) == 5 {
					break
				}
			}
			elapsed := time.Since(start)
			if len(seqs) != 5 {
				t.Fatalf("expected 5 ticks, got %v", seqs)
			}
			for i, s := range seqs {
				if s != uint64(i+1) {
					t.Fatalf("ticks out of order: %v", seqs)
				}
			}
			if elapsed < 80*time.Millisecond {
				t.Fatalf("5 ticks of 20ms took only %v", elapsed)
			}

			// Ranging again continues the sequence.
			for tick := range iv.Ticks(ctx) {
				if tick.Seq != 6 {
					t.Fatalf("expected tick 6, got %d", tick.Seq)
				}
				break
			}
		})
	}
}

func TestIntervalSlowConsumerLazy(t *testing.T) {
	if testing.Short() {
		t.Skip("real-time test")
	}
	iv, err := NewInterval(5*time.Millisecond, WithBackend(driver.KindReactor))
	if err != nil {
		t.Fatalf("interval: %v", err)
	}
	defer iv.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	first, err := asyncrt.BlockOn(ctx, iv.Tick())
	if err != nil || first.Err != nil {
		t.Fatalf("first tick: %v %v", err, first.Err)
	}
	time.Sleep(30 * time.Millisecond)
	second, err := asyncrt.BlockOn(ctx, iv.Tick())
	if err != nil || second.Err != nil {
		t.Fatalf("second tick: %v %v", err, second.Err)
	}
	if gap := second.Value.At.Sub(first.Value.At); gap < 30*time.Millisecond {
		t.Fatalf("lazy interval must measure the period from observation, gap %v", gap)
	}
	if second.Value.Seq != 2 {
		t.Fatalf("ticks were lost or buffered: seq %d", second.Value.Seq)
	}
}
