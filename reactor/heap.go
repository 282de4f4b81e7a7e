package reactor

import (
	"container/heap"
	"sync"
	"time"
)

type entry struct {
	token    Token
	deadline time.Time
	notifier Notifier
	index    int
}

type entryHeap []*entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].token < h[j].token
	}
	return h[i].deadline.Before(h[j].deadline)
}

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap) Push(x any) {
	e, ok := x.(*entry)
	if !ok || e == nil {
		return
	}
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	if n == 0 {
		return (*entry)(nil)
	}
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

// HeapReactor is a portable reactor: registrations live in a min-heap ordered
// by deadline, and one goroutine sleeps on a time.Timer armed for the
// earliest of them.
type HeapReactor struct {
	mu      sync.Mutex
	entries entryHeap
	byToken map[Token]*entry
	next    Token
	closed  bool
	kick    chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewHeap starts a heap reactor.
func NewHeap() *HeapReactor {
	r := &HeapReactor{
		byToken: make(map[Token]*entry),
		next:    1,
		kick:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	r.wg.Add(1)
	go r.loop()
	return r
}

// Schedule implements Reactor.
func (r *HeapReactor) Schedule(deadline time.Time, n Notifier) (Token, error) {
	if r == nil {
		return 0, ErrClosed
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return 0, ErrClosed
	}
	tok := r.next
	r.next++
	e := &entry{token: tok, deadline: deadline, notifier: n}
	heap.Push(&r.entries, e)
	r.byToken[tok] = e
	earliest := r.entries[0] == e
	r.mu.Unlock()
	if earliest {
		r.wakeLoop()
	}
	return tok, nil
}

// Cancel implements Reactor.
func (r *HeapReactor) Cancel(tok Token) bool {
	if r == nil || tok == 0 {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byToken[tok]
	if !ok {
		return false
	}
	delete(r.byToken, tok)
	if e.index >= 0 {
		heap.Remove(&r.entries, e.index)
	}
	return true
}

// Pending returns the number of registrations that have not fired.
func (r *HeapReactor) Pending() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byToken)
}

// Close stops the reactor goroutine. Pending registrations never fire.
func (r *HeapReactor) Close() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.entries = nil
	clear(r.byToken)
	r.mu.Unlock()
	close(r.done)
	r.wg.Wait()
	return nil
}

func (r *HeapReactor) wakeLoop() {
	select {
	case r.kick <- struct{}{}:
	default:
	}
}

func (r *HeapReactor) loop() {
	defer r.wg.Done()
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	var due []Notifier
	for {
		due = due[:0]
		r.mu.Lock()
		now := time.Now()
		for len(r.entries) > 0 && !r.entries[0].deadline.After(now) {
			e, ok := heap.Pop(&r.entries).(*entry)
			if !ok || e == nil {
				continue
			}
			delete(r.byToken, e.token)
			due = append(due, e.notifier)
		}
		wait := time.Duration(-1)
		if len(r.entries) > 0 {
			wait = r.entries[0].deadline.Sub(now)
		}
		r.mu.Unlock()

		for _, n := range due {
			if n != nil {
				n.Notify()
			}
		}
		if len(due) > 0 {
			continue
		}

		if wait >= 0 {
			timer.Reset(wait)
		}
		select {
		case <-timer.C:
		case <-r.kick:
			timer.Stop()
		case <-r.done:
			return
		}
	}
}
