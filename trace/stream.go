package trace

import (
	"io"
	"os"
	"sync"
)

// StreamTracer formats each event and writes it as soon as it is emitted.
type StreamTracer struct {
	gate
	format Format

	mu sync.Mutex
	w  io.Writer
}

func NewStreamTracer(w io.Writer, level Level, format Format) *StreamTracer {
	return &StreamTracer{gate: gate{level}, w: w, format: format}
}

func (t *StreamTracer) Emit(ev *Event) {
	if !t.level.allows(ev) {
		return
	}
	ev.Seq = nextSeq()
	line := FormatEvent(ev, t.format)

	t.mu.Lock()
	_, _ = t.w.Write(line) //nolint:errcheck // a broken trace sink must not fail the timer
	t.mu.Unlock()
}

func (t *StreamTracer) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if f, ok := t.w.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

// Close flushes and closes a file output. stdout and stderr stay open.
func (t *StreamTracer) Close() error {
	if err := t.Flush(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.w == io.Writer(os.Stderr) || t.w == io.Writer(os.Stdout) {
		return nil
	}
	if c, ok := t.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
