package driver

import (
	"errors"
	"testing"
	"time"

	"asynctimer/future"
	"asynctimer/reactor"
)

func waitFired(t *testing.T, d Driver, within time.Duration) {
	t.Helper()
	fired := make(chan struct{}, 1)
	d.State().Register(future.WakerFunc(func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	}))
	select {
	case <-fired:
	case <-time.After(within):
		t.Fatalf("%s driver did not fire within %v (status %s)", d.Kind(), within, d.Status())
	}
}

func TestParseKind(t *testing.T) {
	for _, name := range AllKindNames() {
		k, err := ParseKind(name)
		if err != nil {
			t.Fatalf("ParseKind(%q): %v", name, err)
		}
		if k.String() != name {
			t.Fatalf("round trip mismatch: %q -> %v", name, k)
		}
	}
	if _, err := ParseKind("hpet"); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
	if k, err := ParseKind(""); err != nil || k != KindAuto {
		t.Fatalf("empty backend must mean auto, got %v %v", k, err)
	}
}

func TestReactorAlwaysSupported(t *testing.T) {
	if !Supported(KindReactor) {
		t.Fatalf("reactor backend must be compiled into every build")
	}
	if Supported(KindNone) {
		t.Fatalf("none must never be constructible")
	}
}

func TestUnsupportedKindRejected(t *testing.T) {
	var missing Kind
	found := false
	for _, k := range []Kind{KindKqueue, KindThreadpool, KindHost, KindPosixThread, KindPosix} {
		if !Supported(k) {
			missing, found = k, true
			break
		}
	}
	if !found {
		t.Skip("every backend is available in this build")
	}
	_, err := New(Config{Kind: missing})
	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported for %s, got %v", missing, err)
	}
}

func TestNewUncheckedPanicsOnUnsupported(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for an unsupported backend")
		}
	}()
	NewUnchecked(Config{Kind: KindNone})
}

func TestInvalidDuration(t *testing.T) {
	r := reactor.NewHeap()
	defer r.Close()
	d, err := New(Config{Kind: KindReactor, Reactor: r})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer d.Close()
	for _, dur := range []time.Duration{0, -time.Second} {
		if err := d.Arm(dur); !errors.Is(err, ErrInvalidDuration) {
			t.Fatalf("Arm(%v): expected ErrInvalidDuration, got %v", dur, err)
		}
	}
	if d.Status() != StatusIdle {
		t.Fatalf("rejected arm changed status to %s", d.Status())
	}
}

func TestReactorDriverOneShot(t *testing.T) {
	r := reactor.NewHeap()
	defer r.Close()
	d, err := New(Config{Kind: KindReactor, Reactor: r})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer d.Close()

	start := time.Now()
	if err := d.Arm(10 * time.Millisecond); err != nil {
		t.Fatalf("arm: %v", err)
	}
	if d.Status() != StatusArmed {
		t.Fatalf("expected armed, got %s", d.Status())
	}
	waitFired(t, d, 2*time.Second)
	if elapsed := time.Since(start); elapsed < 10*time.Millisecond {
		t.Fatalf("fired early after %v", elapsed)
	}
	if !d.IsExpired() || d.Status() != StatusFired {
		t.Fatalf("expected fired, got expired=%v status=%s", d.IsExpired(), d.Status())
	}
}

func TestReactorDriverCancel(t *testing.T) {
	r := reactor.NewHeap()
	defer r.Close()
	d, err := New(Config{Kind: KindReactor, Reactor: r})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer d.Close()

	if err := d.Arm(time.Hour); err != nil {
		t.Fatalf("arm: %v", err)
	}
	d.Cancel()
	if d.IsExpired() {
		t.Fatalf("cancelled driver reports expired")
	}
	if d.Status() != StatusCancelled {
		t.Fatalf("expected cancelled, got %s", d.Status())
	}
	if r.Pending() != 0 {
		t.Fatalf("cancel left %d reactor registrations", r.Pending())
	}
}

func TestReactorDriverRearmClearsFired(t *testing.T) {
	r := reactor.NewHeap()
	defer r.Close()
	d, err := New(Config{Kind: KindReactor, Reactor: r})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer d.Close()

	if err := d.Arm(time.Millisecond); err != nil {
		t.Fatalf("arm: %v", err)
	}
	waitFired(t, d, 2*time.Second)
	if err := d.Rearm(time.Hour); err != nil {
		t.Fatalf("rearm: %v", err)
	}
	if d.IsExpired() {
		t.Fatalf("rearm kept stale fired state")
	}
}

func TestReactorDriverPeriodic(t *testing.T) {
	if testing.Short() {
		t.Skip("real-time periodic test")
	}
	r := reactor.NewHeap()
	defer r.Close()
	d, err := New(Config{Kind: KindReactor, Reactor: r})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer d.Close()

	if err := d.ArmPeriodic(5 * time.Millisecond); err != nil {
		t.Fatalf("arm periodic: %v", err)
	}
	for i := 0; i < 3; i++ {
		waitFired(t, d, 2*time.Second)
		if !d.State().Consume() {
			t.Fatalf("tick %d: no pending fire to consume", i)
		}
	}
}

func TestClosedDriverRejectsArm(t *testing.T) {
	d, err := New(Config{Kind: KindReactor})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := d.Arm(time.Second); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if d.Status() != StatusClosed {
		t.Fatalf("expected closed, got %s", d.Status())
	}
}

func TestOSErrorUnwrap(t *testing.T) {
	inner := errors.New("EAGAIN")
	err := osError(KindPosix, "timer_create", inner)
	if !errors.Is(err, inner) {
		t.Fatalf("OSError must unwrap to the OS error")
	}
	var osErr *OSError
	if !errors.As(err, &osErr) || osErr.Op != "timer_create" {
		t.Fatalf("expected *OSError, got %T", err)
	}
	if osError(KindPosix, "x", nil) != nil {
		t.Fatalf("nil error must stay nil")
	}
}
