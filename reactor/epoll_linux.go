//go:build linux

package reactor

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"fortio.org/safecast"
	"golang.org/x/sys/unix"
)

type epollReg struct {
	token    Token
	fd       int
	notifier Notifier
}

// EpollReactor backs every registration with its own CLOCK_MONOTONIC timerfd
// and waits on all of them with a single epoll instance. An eventfd
// interrupts the wait on Close.
type EpollReactor struct {
	mu      sync.Mutex
	epfd    int
	closeFD int
	byFD    map[int]*epollReg
	byToken map[Token]*epollReg
	next    Token
	closed  bool
	wg      sync.WaitGroup
}

// NewEpoll creates the epoll instance and starts the wait loop.
func NewEpoll() (*EpollReactor, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}
	efd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		_ = unix.Close(epfd)
		return nil, fmt.Errorf("eventfd: %w", err)
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(efd)} //nolint:gosec // fds are small non-negative ints
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, efd, &ev); err != nil {
		_ = unix.Close(efd)
		_ = unix.Close(epfd)
		return nil, fmt.Errorf("epoll_ctl: %w", err)
	}
	r := &EpollReactor{
		epfd:    epfd,
		closeFD: efd,
		byFD:    make(map[int]*epollReg),
		byToken: make(map[Token]*epollReg),
		next:    1,
	}
	r.wg.Add(1)
	go r.loop()
	return r, nil
}

// Schedule implements Reactor.
func (r *EpollReactor) Schedule(deadline time.Time, n Notifier) (Token, error) {
	if r == nil {
		return 0, ErrClosed
	}
	fd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_NONBLOCK|unix.TFD_CLOEXEC)
	if err != nil {
		return 0, fmt.Errorf("timerfd_create: %w", err)
	}
	delay := time.Until(deadline)
	if delay <= 0 {
		// a zero it_value disarms a timerfd
		delay = time.Nanosecond
	}
	spec := unix.ItimerSpec{Value: unix.NsecToTimespec(int64(delay))}
	if err := unix.TimerfdSettime(fd, 0, &spec, nil); err != nil {
		_ = unix.Close(fd)
		return 0, fmt.Errorf("timerfd_settime: %w", err)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		_ = unix.Close(fd)
		return 0, ErrClosed
	}
	fd32, err := safecast.Conv[int32](fd)
	if err != nil {
		r.mu.Unlock()
		_ = unix.Close(fd)
		return 0, err
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: fd32}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		r.mu.Unlock()
		_ = unix.Close(fd)
		return 0, fmt.Errorf("epoll_ctl: %w", err)
	}
	reg := &epollReg{token: r.next, fd: fd, notifier: n}
	r.next++
	r.byFD[fd] = reg
	r.byToken[reg.token] = reg
	r.mu.Unlock()
	return reg.token, nil
}

// Cancel implements Reactor.
func (r *EpollReactor) Cancel(tok Token) bool {
	if r == nil || tok == 0 {
		return false
	}
	r.mu.Lock()
	reg, ok := r.byToken[tok]
	if ok {
		r.forgetLocked(reg)
	}
	r.mu.Unlock()
	return ok
}

// Close stops the wait loop and releases every timerfd.
func (r *EpollReactor) Close() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	for _, reg := range r.byToken {
		r.forgetLocked(reg)
	}
	r.mu.Unlock()

	var one [8]byte
	one[0] = 1
	if _, err := unix.Write(r.closeFD, one[:]); err != nil && !errors.Is(err, unix.EAGAIN) {
		return fmt.Errorf("eventfd write: %w", err)
	}
	r.wg.Wait()
	_ = unix.Close(r.closeFD)
	return unix.Close(r.epfd)
}

// forgetLocked removes reg from both indexes and closes its timerfd. Whoever
// removes a registration owns the close.
func (r *EpollReactor) forgetLocked(reg *epollReg) {
	delete(r.byToken, reg.token)
	delete(r.byFD, reg.fd)
	_ = unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, reg.fd, nil)
	_ = unix.Close(reg.fd)
}

func (r *EpollReactor) loop() {
	defer r.wg.Done()
	events := make([]unix.EpollEvent, 64)
	var buf [8]byte
	for {
		n, err := unix.EpollWait(r.epfd, events, -1)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return
		}
		var due []Notifier
		r.mu.Lock()
		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			if fd == r.closeFD {
				r.mu.Unlock()
				return
			}
			reg, ok := r.byFD[fd]
			if !ok {
				continue
			}
			// The fd number may have been recycled by a newer registration
			// between the wait and the lock; only an expired timerfd counts.
			if _, err := unix.Read(fd, buf[:]); err != nil {
				continue
			}
			r.forgetLocked(reg)
			due = append(due, reg.notifier)
		}
		r.mu.Unlock()
		for _, nt := range due {
			if nt != nil {
				nt.Notify()
			}
		}
	}
}
