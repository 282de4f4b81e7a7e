package testkit

import (
	"sync/atomic"
	"time"
)

// CountingWaker counts wakes and signals a buffered channel on each one.
type CountingWaker struct {
	n  atomic.Int64
	ch chan struct{}
}

func NewCountingWaker() *CountingWaker {
	return &CountingWaker{ch: make(chan struct{}, 1)}
}

func (w *CountingWaker) Wake() {
	w.n.Add(1)
	select {
	case w.ch <- struct{}{}:
	default:
	}
}

// Count returns the number of wakes so far.
func (w *CountingWaker) Count() int64 { return w.n.Load() }

// Wait blocks until a wake arrives or d passes.
func (w *CountingWaker) Wait(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-w.ch:
		return true
	case <-t.C:
		return false
	}
}
