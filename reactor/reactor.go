// Package reactor defines the narrow contract an external event loop must
// satisfy to drive timers: deliver one notification once a monotonic deadline
// has passed, and allow a pending registration to be revoked.
package reactor

import (
	"errors"
	"sync"
	"time"
)

// ErrClosed is returned by Schedule after the reactor has been closed.
var ErrClosed = errors.New("reactor: closed")

// Notifier receives the notification for an elapsed registration. Notify is
// called on the reactor's goroutine and must not block.
type Notifier interface {
	Notify()
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func()

// Notify calls f.
func (f NotifierFunc) Notify() {
	if f != nil {
		f()
	}
}

// Token identifies a registration. The zero Token is never issued.
type Token uint64

// Reactor schedules one notification per registration.
type Reactor interface {
	// Schedule delivers exactly one Notify after deadline, unless the
	// registration is cancelled first.
	Schedule(deadline time.Time, n Notifier) (Token, error)
	// Cancel revokes a pending registration. It reports whether the
	// registration was still pending; false means it already fired, was
	// cancelled before, or never existed.
	Cancel(tok Token) bool
	Close() error
}

var (
	defaultOnce    sync.Once
	defaultReactor *HeapReactor
)

// Default returns the process-wide heap reactor, starting it on first use.
func Default() Reactor {
	defaultOnce.Do(func() {
		defaultReactor = NewHeap()
	})
	return defaultReactor
}
