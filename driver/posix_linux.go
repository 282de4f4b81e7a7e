//go:build linux

package driver

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"asynctimer/wake"
)

const (
	sigevSignal = 0
	sigRTMin    = 34
	sigRTMax    = 64
)

func init() {
	register(KindPosix, newPosixBackend)
	setPlatformDefault(KindPosix)
}

// sigDispatcher receives the timer signal through os/signal and finds the
// timers that are due. A signal carries no usable payload here, so every
// delivery scans the armed set; one-shot timers are confirmed with
// timer_gettime.
type sigDispatcher struct {
	signo  int
	ch     chan os.Signal
	mu     sync.Mutex
	timers map[*posixBackend]struct{}
}

var (
	dispatchersMu sync.Mutex
	dispatchers   = map[int]*sigDispatcher{}
)

func dispatcherFor(signo int) *sigDispatcher {
	dispatchersMu.Lock()
	defer dispatchersMu.Unlock()
	if d := dispatchers[signo]; d != nil {
		return d
	}
	d := &sigDispatcher{
		signo:  signo,
		ch:     make(chan os.Signal, 64),
		timers: make(map[*posixBackend]struct{}),
	}
	signal.Notify(d.ch, syscall.Signal(signo))
	dispatchers[signo] = d
	go d.run()
	return d
}

type pendingFire struct {
	state *wake.State
	gen   wake.Gen
}

func (d *sigDispatcher) run() {
	var fires []pendingFire
	for range d.ch {
		fires = d.scan(time.Now(), fires[:0])
		for _, f := range fires {
			f.state.Fire(f.gen)
		}
	}
}

func (d *sigDispatcher) scan(now time.Time, fires []pendingFire) []pendingFire {
	d.mu.Lock()
	defer d.mu.Unlock()
	for b := range d.timers {
		if now.Before(b.due) {
			continue
		}
		if b.period == 0 {
			var cur unix.ItimerSpec
			if err := b.gettime(&cur); err == nil && (cur.Value.Sec != 0 || cur.Value.Nsec != 0) {
				continue
			}
			delete(d.timers, b)
		} else {
			for !b.due.After(now) {
				b.due = b.due.Add(b.period)
			}
		}
		fires = append(fires, pendingFire{state: b.state, gen: b.gen})
	}
	return fires
}

// posixBackend is a kernel POSIX timer on CLOCK_MONOTONIC that notifies by
// signal. Fields below disp are guarded by disp.mu.
type posixBackend struct {
	state *wake.State
	id    int32
	disp  *sigDispatcher

	gen    wake.Gen
	due    time.Time
	period time.Duration
}

func newPosixBackend(cfg Config, st *wake.State) (backend, error) {
	signo := cfg.Signal
	if signo == 0 {
		signo = DefaultSignal
	}
	if signo < sigRTMin || signo > sigRTMax {
		return nil, fmt.Errorf("posix timer: signal %d outside the real-time range %d..%d", signo, sigRTMin, sigRTMax)
	}
	disp := dispatcherFor(signo)

	sev := sigevent{signo: int32(signo), notify: sigevSignal} //nolint:gosec // range checked above
	var id int32
	_, _, errno := unix.Syscall(unix.SYS_TIMER_CREATE,
		uintptr(unix.CLOCK_MONOTONIC),
		uintptr(unsafe.Pointer(&sev)),
		uintptr(unsafe.Pointer(&id)))
	if errno != 0 {
		return nil, osError(KindPosix, "timer_create", errno)
	}
	return &posixBackend{state: st, id: id, disp: disp}, nil
}

func (b *posixBackend) settime(spec *unix.ItimerSpec) error {
	_, _, errno := unix.Syscall6(unix.SYS_TIMER_SETTIME,
		uintptr(b.id), 0, uintptr(unsafe.Pointer(spec)), 0, 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

func (b *posixBackend) gettime(cur *unix.ItimerSpec) error {
	_, _, errno := unix.Syscall(unix.SYS_TIMER_GETTIME, uintptr(b.id), uintptr(unsafe.Pointer(cur)), 0)
	if errno != 0 {
		return errno
	}
	return nil
}

func (b *posixBackend) schedule(gen wake.Gen, d, period time.Duration) error {
	spec := unix.ItimerSpec{
		Value:    unix.NsecToTimespec(d.Nanoseconds()),
		Interval: unix.NsecToTimespec(period.Nanoseconds()),
	}
	b.disp.mu.Lock()
	b.gen = gen
	b.due = time.Now().Add(d)
	b.period = period
	b.disp.timers[b] = struct{}{}
	b.disp.mu.Unlock()

	if err := b.settime(&spec); err != nil {
		b.forget()
		return osError(KindPosix, "timer_settime", err)
	}
	return nil
}

func (b *posixBackend) forget() {
	b.disp.mu.Lock()
	delete(b.disp.timers, b)
	b.disp.mu.Unlock()
}

func (b *posixBackend) unschedule() {
	b.forget()
	var zero unix.ItimerSpec
	_ = b.settime(&zero)
}

func (b *posixBackend) release() error {
	b.forget()
	_, _, errno := unix.Syscall(unix.SYS_TIMER_DELETE, uintptr(b.id), 0, 0)
	if errno != 0 {
		return osError(KindPosix, "timer_delete", errno)
	}
	return nil
}
