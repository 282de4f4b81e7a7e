package trace

import (
	"sync/atomic"
	"time"
)

var seqs, spanIDs atomic.Uint64

func nextSeq() uint64 { return seqs.Add(1) }

// Span brackets one timer lifetime or executor run. A Span from a disabled
// tracer is inert.
type Span struct {
	tracer  Tracer
	id      uint64
	scope   Scope
	name    string
	started time.Time
	extra   map[string]string
}

// Begin emits a begin event and returns the open span.
func Begin(t Tracer, scope Scope, name string) *Span {
	if t == nil || !t.Enabled() || !t.Level().ShouldEmit(scope) {
		return &Span{tracer: Nop}
	}
	s := &Span{tracer: t, id: spanIDs.Add(1), scope: scope, name: name, started: time.Now()}
	t.Emit(&Event{Time: s.started, Kind: KindSpanBegin, Scope: scope, SpanID: s.id, Name: name})
	return s
}

// End emits the end event with any extras and reports how long the span was
// open. Only the first call emits.
func (s *Span) End(detail string) time.Duration {
	if s == nil || !s.tracer.Enabled() {
		return 0
	}
	took := time.Since(s.started)
	s.tracer.Emit(&Event{
		Time:   time.Now(),
		Kind:   KindSpanEnd,
		Scope:  s.scope,
		SpanID: s.id,
		Name:   s.name,
		Detail: detail,
		Extra:  s.extra,
	})
	s.tracer = Nop
	return took
}

// Point emits an instant event under the span.
func (s *Span) Point(scope Scope, name, detail string) {
	if s == nil || !s.tracer.Enabled() || !s.tracer.Level().ShouldEmit(scope) {
		return
	}
	s.tracer.Emit(&Event{
		Time:     time.Now(),
		Kind:     KindPoint,
		Scope:    scope,
		ParentID: s.id,
		Name:     name,
		Detail:   detail,
	})
}

// WithExtra attaches key=value to the end event.
func (s *Span) WithExtra(key, value string) *Span {
	if s == nil || !s.tracer.Enabled() {
		return s
	}
	if s.extra == nil {
		s.extra = make(map[string]string, 2)
	}
	s.extra[key] = value
	return s
}
