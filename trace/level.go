package trace

import (
	"fmt"
	"strings"
)

// Level sets how much is traced. Each level includes the ones below it.
type Level uint8

const (
	LevelOff    Level = iota
	LevelError        // failed arms and rearms only
	LevelInfo         // executor runs and combinator lifetimes
	LevelDetail       // plus driver arm, rearm and cancel
	LevelDebug        // plus every poll
)

var levelNames = [...]string{"off", "error", "info", "detail", "debug"}

func (l Level) String() string {
	if int(l) < len(levelNames) {
		return levelNames[l]
	}
	return "unknown"
}

// ParseLevel accepts a level name in any case; empty means off.
func ParseLevel(s string) (Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return LevelOff, nil
	}
	for i, name := range levelNames {
		if name == s {
			return Level(i), nil
		}
	}
	return LevelOff, fmt.Errorf("trace level %q is not one of %s", s, strings.Join(levelNames[:], "|"))
}

// ShouldEmit reports whether ordinary events of scope are recorded at l.
func (l Level) ShouldEmit(scope Scope) bool {
	switch l {
	case LevelInfo:
		return scope <= ScopeCombinator
	case LevelDetail:
		return scope <= ScopeDriver
	case LevelDebug:
		return true
	default:
		return false
	}
}

// allows applies ShouldEmit, except that errors and heartbeats pass at every
// level above off.
func (l Level) allows(ev *Event) bool {
	switch {
	case ev == nil:
		return false
	case ev.Kind == KindError, ev.Kind == KindHeartbeat:
		return l > LevelOff
	default:
		return l.ShouldEmit(ev.Scope)
	}
}
