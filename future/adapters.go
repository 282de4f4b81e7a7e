package future

import "sync"

// Func turns a poll function into a Future.
type Func[T any] func(cx *Context) Poll[T]

// Poll calls f.
func (f Func[T]) Poll(cx *Context) Poll[T] { return f(cx) }

type readyFuture[T any] struct {
	value T
}

func (r readyFuture[T]) Poll(*Context) Poll[T] { return Ready(r.value) }

// ReadyFuture returns a future that completes on its first poll.
func ReadyFuture[T any](v T) Future[T] { return readyFuture[T]{value: v} }

type mapFuture[T, U any] struct {
	inner Future[T]
	fn    func(T) U
}

func (m *mapFuture[T, U]) Poll(cx *Context) Poll[U] {
	v, ok := m.inner.Poll(cx).Value()
	if !ok {
		return Pending[U]()
	}
	return Ready(m.fn(v))
}

// Map transforms the output of inner with fn.
func Map[T, U any](inner Future[T], fn func(T) U) Future[U] {
	return &mapFuture[T, U]{inner: inner, fn: fn}
}

// Chan is a future that completes with the first value passed to Complete,
// which may be called from any goroutine.
type Chan[T any] struct {
	mu    sync.Mutex
	done  bool
	value T
	waker Waker
	polls int
}

// NewChan returns an incomplete Chan.
func NewChan[T any]() *Chan[T] {
	return &Chan[T]{}
}

// Complete stores v and wakes the last registered waker. Only the first call
// has an effect.
func (c *Chan[T]) Complete(v T) bool {
	c.mu.Lock()
	if c.done {
		c.mu.Unlock()
		return false
	}
	c.done = true
	c.value = v
	w := c.waker
	c.waker = nil
	c.mu.Unlock()
	if w != nil {
		w.Wake()
	}
	return true
}

// Polls returns how many times the future has been polled.
func (c *Chan[T]) Polls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.polls
}

// Poll implements Future.
func (c *Chan[T]) Poll(cx *Context) Poll[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.polls++
	if c.done {
		return Ready(c.value)
	}
	c.waker = cx.Waker()
	return Pending[T]()
}
