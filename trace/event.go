package trace

import "time"

// Kind says what an event marks.
type Kind uint8

const (
	KindSpanBegin Kind = iota + 1
	KindSpanEnd
	KindPoint
	KindError // passes every level but off
	KindHeartbeat
)

var kindNames = [...]string{KindSpanBegin: "begin", KindSpanEnd: "end", KindPoint: "point", KindError: "error", KindHeartbeat: "heartbeat"}

func (k Kind) String() string {
	if k > 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Scope is the layer an event comes from. Lower scopes are coarser and are
// kept at lower levels.
type Scope uint8

const (
	ScopeRuntime    Scope = iota + 1 // executor runs
	ScopeCombinator                  // Timed, Interval and Delay lifetimes
	ScopeDriver                      // arm, rearm and cancel of platform timers
	ScopePoll                        // single polls
)

var scopeNames = [...]string{ScopeRuntime: "runtime", ScopeCombinator: "combinator", ScopeDriver: "driver", ScopePoll: "poll"}

func (s Scope) String() string {
	if s > 0 && int(s) < len(scopeNames) {
		return scopeNames[s]
	}
	return "unknown"
}

// Event is one trace record. Seq is stamped by the sink that stores it.
type Event struct {
	Time     time.Time
	Seq      uint64
	Kind     Kind
	Scope    Scope
	SpanID   uint64
	ParentID uint64 // enclosing span for points, 0 otherwise
	Name     string // "timed", "driver.arm", "interval.tick"
	Detail   string
	Extra    map[string]string
}

// Point records an instant event when t keeps scope.
func Point(t Tracer, scope Scope, name, detail string) {
	if t == nil || !t.Enabled() || !t.Level().ShouldEmit(scope) {
		return
	}
	t.Emit(&Event{Time: time.Now(), Kind: KindPoint, Scope: scope, Name: name, Detail: detail})
}

// Error records err under name at any level above off. A nil err is ignored.
func Error(t Tracer, scope Scope, name string, err error) {
	if t == nil || !t.Enabled() || err == nil {
		return
	}
	t.Emit(&Event{Time: time.Now(), Kind: KindError, Scope: scope, Name: name, Detail: err.Error()})
}
