// Package driver provides platform timer drivers behind one capability set:
// arm, arm periodically, rearm, cancel and check expiry.
//
// Each driver owns one OS timer resource and one wake.State. The OS
// completion callback only calls wake.State.Fire with the generation that was
// current when the timer was armed, so late callbacks after a cancel or rearm
// are ignored.
//
// Backends are compiled in by build constraints. Every build has at most one
// platform default (see Platform); the reactor backend is available
// everywhere.
package driver

import (
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"asynctimer/reactor"
	"asynctimer/trace"
	"asynctimer/wake"
)

// Driver is the capability set shared by every backend.
type Driver interface {
	// Kind reports which backend implements the driver.
	Kind() Kind
	// Arm schedules a one-shot expiration d from now, replacing any pending
	// schedule and clearing a previous fire.
	Arm(d time.Duration) error
	// ArmPeriodic schedules an expiration every period. Fires that the
	// owner has not consumed yet are coalesced into one.
	ArmPeriodic(period time.Duration) error
	// Rearm reschedules with a new duration, keeping one-shot or periodic
	// mode. An idle driver is armed one-shot.
	Rearm(d time.Duration) error
	// Cancel stops the timer. A callback already in flight is absorbed.
	Cancel()
	// IsExpired reports whether the current arm cycle has fired.
	IsExpired() bool
	Status() Status
	State() *wake.State
	// Close cancels and releases the OS resource. The driver cannot be
	// armed again.
	Close() error
}

// Status is the driver lifecycle state.
type Status uint8

const (
	StatusIdle Status = iota
	StatusArmed
	StatusFired
	StatusCancelled
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusArmed:
		return "armed"
	case StatusFired:
		return "fired"
	case StatusCancelled:
		return "cancelled"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Kind selects a backend.
type Kind uint8

const (
	// KindAuto resolves to the platform default.
	KindAuto Kind = iota
	// KindNone is the platform default where no backend exists.
	KindNone
	// KindPosix is timer_create with signal delivery (linux).
	KindPosix
	// KindPosixThread is timer_create with thread delivery through the C
	// shim (linux, cgo, asynctimer_cshim tag).
	KindPosixThread
	// KindKqueue is an EVFILT_TIMER filter on a shared kqueue (BSD family).
	KindKqueue
	// KindThreadpool is a threadpool timer object (windows).
	KindThreadpool
	// KindHost is the host's setTimeout (js/wasm).
	KindHost
	// KindReactor delegates to a reactor.Reactor.
	KindReactor
)

var kindNames = map[Kind]string{
	KindAuto:        "auto",
	KindNone:        "none",
	KindPosix:       "posix",
	KindPosixThread: "posix-thread",
	KindKqueue:      "kqueue",
	KindThreadpool:  "threadpool",
	KindHost:        "host",
	KindReactor:     "reactor",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseKind converts a backend name to Kind.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return KindAuto, nil
	}
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return KindAuto, fmt.Errorf("unknown timer backend %q (expected one of: %s)", s, strings.Join(AllKindNames(), "|"))
}

// AllKindNames lists every backend name in declaration order.
func AllKindNames() []string {
	names := make([]string, 0, len(kindNames))
	for k := KindAuto; k <= KindReactor; k++ {
		names = append(names, kindNames[k])
	}
	return names
}

// DefaultSignal is the real-time signal used by the posix backend.
const DefaultSignal = 40

// Config selects and parameterizes a backend.
type Config struct {
	Kind Kind
	// Reactor drives KindReactor. Nil uses reactor.Default().
	Reactor reactor.Reactor
	// Signal is the notification signal for KindPosix. Zero uses
	// DefaultSignal.
	Signal int
	Tracer trace.Tracer
}

var (
	// ErrUnsupported is returned when the requested backend is not compiled
	// into this build.
	ErrUnsupported = errors.New("timer backend not supported on this platform")
	// ErrInvalidDuration is returned for durations that are not positive or
	// exceed what the backend can represent.
	ErrInvalidDuration = errors.New("invalid timer duration")
	// ErrClosed is returned when arming a closed driver.
	ErrClosed = errors.New("timer driver closed")
)

// OSError reports a failed OS timer call.
type OSError struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *OSError) Error() string {
	return fmt.Sprintf("%s timer: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *OSError) Unwrap() error { return e.Err }

func osError(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &OSError{Kind: kind, Op: op, Err: err}
}

// factory builds the OS side of a driver around its wake state.
type factory func(cfg Config, st *wake.State) (backend, error)

var (
	registryMu      sync.RWMutex
	registry        = map[Kind]factory{}
	platformDefault = KindNone
)

func register(kind Kind, f factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[kind] = f
}

func setPlatformDefault(kind Kind) {
	registryMu.Lock()
	defer registryMu.Unlock()
	platformDefault = kind
}

// Platform returns the default backend of this build.
func Platform() Kind {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return platformDefault
}

// Supported reports whether kind can be constructed in this build.
func Supported(kind Kind) bool {
	if kind == KindAuto {
		kind = Platform()
	}
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[kind]
	return ok
}

// Kinds returns every constructible backend, sorted.
func Kinds() []Kind {
	registryMu.RLock()
	defer registryMu.RUnlock()
	kinds := make([]Kind, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// New constructs an idle driver of the configured kind. A kind that is not
// compiled into this build fails with ErrUnsupported; there is no fallback
// to another backend.
func New(cfg Config) (Driver, error) {
	kind := cfg.Kind
	if kind == KindAuto {
		kind = Platform()
	}
	registryMu.RLock()
	f, ok := registry[kind]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s on %s/%s", ErrUnsupported, kind, runtime.GOOS, runtime.GOARCH)
	}
	cfg.Kind = kind
	cfg.Tracer = trace.OrNop(cfg.Tracer)
	st := wake.New()
	b, err := f(cfg, st)
	if err != nil {
		trace.Error(cfg.Tracer, trace.ScopeDriver, "driver.new", err)
		return nil, err
	}
	return newTimer(kind, st, b, cfg.Tracer), nil
}

// NewUnchecked is New for callers that have already established the backend
// is available. It panics on failure.
func NewUnchecked(cfg Config) Driver {
	d, err := New(cfg)
	if err != nil {
		panic(fmt.Sprintf("driver: %v", err))
	}
	return d
}
