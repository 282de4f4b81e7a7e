//go:build darwin || dragonfly || freebsd || netbsd || openbsd

package driver

import (
	"fmt"
	"sync"
	"time"

	"fortio.org/safecast"
	"golang.org/x/sys/unix"

	"asynctimer/wake"
)

func init() {
	register(KindKqueue, newKqueueBackend)
	setPlatformDefault(KindKqueue)
}

type kqReg struct {
	state    *wake.State
	gen      wake.Gen
	periodic bool
}

// kqueue is the one queue shared by every kqueue driver in the process.
// Each arm registers an EVFILT_TIMER under a fresh identifier, so an event
// for an identifier that is no longer registered is stale and dropped. The
// drain goroutine is the only place that blocks on the queue.
type kqueue struct {
	fd   int
	mu   sync.Mutex
	regs map[uint64]kqReg
	next uint64
}

var (
	sharedKQOnce sync.Once
	sharedKQ     *kqueue
	sharedKQErr  error
)

func sharedQueue() (*kqueue, error) {
	sharedKQOnce.Do(func() {
		fd, err := unix.Kqueue()
		if err != nil {
			sharedKQErr = osError(KindKqueue, "kqueue", err)
			return
		}
		unix.CloseOnExec(fd)
		sharedKQ = &kqueue{fd: fd, regs: make(map[uint64]kqReg), next: 1}
		go sharedKQ.drain()
	})
	return sharedKQ, sharedKQErr
}

func setKeventData[T ~int | ~int32 | ~int64](p *T, v int32) { *p = T(v) }

// timerMillis rounds d up to whole milliseconds, the default EVFILT_TIMER
// unit on every BSD. The value must fit the narrowest data field.
func timerMillis(d time.Duration) (int32, error) {
	ms := (d + time.Millisecond - 1) / time.Millisecond
	v, err := safecast.Conv[int32](int64(ms))
	if err != nil {
		return 0, fmt.Errorf("%w: %v exceeds the kqueue timer range", ErrInvalidDuration, d)
	}
	return v, nil
}

func (q *kqueue) change(ev *unix.Kevent_t) error {
	for {
		_, err := unix.Kevent(q.fd, []unix.Kevent_t{*ev}, nil, nil)
		if err == unix.EINTR {
			continue
		}
		return err
	}
}

func (q *kqueue) add(st *wake.State, gen wake.Gen, d, period time.Duration) (uint64, error) {
	ms, err := timerMillis(d)
	if err != nil {
		return 0, err
	}
	q.mu.Lock()
	ident := q.next
	q.next++
	q.regs[ident] = kqReg{state: st, gen: gen, periodic: period > 0}
	q.mu.Unlock()

	identInt, err := safecast.Conv[int](ident)
	if err != nil {
		q.forget(ident)
		return 0, osError(KindKqueue, "kevent", err)
	}
	flags := unix.EV_ADD | unix.EV_ENABLE
	if period == 0 {
		flags |= unix.EV_ONESHOT
	}
	var ev unix.Kevent_t
	unix.SetKevent(&ev, identInt, unix.EVFILT_TIMER, flags)
	setKeventData(&ev.Data, ms)
	if err := q.change(&ev); err != nil {
		q.forget(ident)
		return 0, osError(KindKqueue, "kevent", err)
	}
	return ident, nil
}

func (q *kqueue) forget(ident uint64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.regs[ident]
	delete(q.regs, ident)
	return ok
}

func (q *kqueue) remove(ident uint64) {
	if !q.forget(ident) {
		return
	}
	identInt, err := safecast.Conv[int](ident)
	if err != nil {
		return
	}
	var ev unix.Kevent_t
	unix.SetKevent(&ev, identInt, unix.EVFILT_TIMER, unix.EV_DELETE)
	// ENOENT: a one-shot already fired and was removed by the kernel
	_ = q.change(&ev)
}

func (q *kqueue) drain() {
	events := make([]unix.Kevent_t, 64)
	var fires []pendingKQFire
	for {
		n, err := unix.Kevent(q.fd, nil, events, nil)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return
		}
		fires = fires[:0]
		q.mu.Lock()
		for i := 0; i < n; i++ {
			ident := uint64(events[i].Ident)
			reg, ok := q.regs[ident]
			if !ok {
				continue
			}
			if !reg.periodic {
				delete(q.regs, ident)
			}
			fires = append(fires, pendingKQFire{state: reg.state, gen: reg.gen})
		}
		q.mu.Unlock()
		for _, f := range fires {
			f.state.Fire(f.gen)
		}
	}
}

type pendingKQFire struct {
	state *wake.State
	gen   wake.Gen
}

type kqueueBackend struct {
	q     *kqueue
	state *wake.State
	ident uint64
}

func newKqueueBackend(_ Config, st *wake.State) (backend, error) {
	q, err := sharedQueue()
	if err != nil {
		return nil, err
	}
	return &kqueueBackend{q: q, state: st}, nil
}

func (b *kqueueBackend) schedule(gen wake.Gen, d, period time.Duration) error {
	ident, err := b.q.add(b.state, gen, d, period)
	if err != nil {
		return err
	}
	b.ident = ident
	return nil
}

func (b *kqueueBackend) unschedule() {
	if b.ident != 0 {
		b.q.remove(b.ident)
		b.ident = 0
	}
}

func (b *kqueueBackend) release() error {
	b.unschedule()
	return nil
}
