package trace

import (
	"io"
	"sync"
)

// RingTracer keeps the most recent events in memory. The CLI dumps it on
// exit, which is how a hung timer is diagnosed without a live stream.
type RingTracer struct {
	gate

	mu     sync.Mutex
	buf    []Event
	stored uint64 // events ever stored; buf[stored%len(buf)] is the next slot
}

func NewRingTracer(capacity int, level Level) *RingTracer {
	if capacity <= 0 {
		capacity = DefaultRingSize
	}
	return &RingTracer{gate: gate{level}, buf: make([]Event, capacity)}
}

func (t *RingTracer) Emit(ev *Event) {
	if !t.level.allows(ev) {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	slot := &t.buf[t.stored%uint64(len(t.buf))]
	*slot = *ev
	slot.Seq = nextSeq()
	t.stored++
}

// Snapshot returns the retained events, oldest first.
func (t *RingTracer) Snapshot() []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := uint64(len(t.buf))
	if t.stored <= n {
		return append([]Event(nil), t.buf[:t.stored]...)
	}
	start := t.stored % n
	out := make([]Event, 0, n)
	out = append(out, t.buf[start:]...)
	return append(out, t.buf[:start]...)
}

// Dump writes the retained events to w.
func (t *RingTracer) Dump(w io.Writer, format Format) error {
	for _, ev := range t.Snapshot() {
		if _, err := w.Write(FormatEvent(&ev, format)); err != nil {
			return err
		}
	}
	return nil
}

func (t *RingTracer) Flush() error { return nil }
func (t *RingTracer) Close() error { return nil }
