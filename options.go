package asynctimer

import (
	"runtime"

	"asynctimer/config"
	"asynctimer/driver"
	"asynctimer/reactor"
	"asynctimer/trace"
)

// RearmMode selects how an Interval schedules the period after a tick.
type RearmMode uint8

const (
	// RearmLazy arms the next period when the tick is observed, so the
	// period is measured from consumer readiness. A slow consumer delays
	// later ticks; ticks are never lost or buffered.
	RearmLazy RearmMode = iota
	// RearmEager arms a free-running periodic timer. Fires the consumer has
	// not observed yet are coalesced into one buffered tick.
	RearmEager
)

func (m RearmMode) String() string {
	if m == RearmEager {
		return "eager"
	}
	return "lazy"
}

// Option configures a Timed, Interval or Delay.
type Option func(*settings)

type settings struct {
	cfg     driver.Config
	factory func() (driver.Driver, error)
	rearm   RearmMode
	err     error
}

func newSettings(opts []Option) *settings {
	s := &settings{}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.cfg.Tracer = trace.OrNop(s.cfg.Tracer)
	return s
}

func (s *settings) newDriver() (driver.Driver, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.factory != nil {
		return s.factory()
	}
	return driver.New(s.cfg)
}

// WithBackend selects the timer backend. The default is driver.KindAuto.
func WithBackend(kind driver.Kind) Option {
	return func(s *settings) { s.cfg.Kind = kind }
}

// WithReactor drives the timer from r. It implies the reactor backend.
func WithReactor(r reactor.Reactor) Option {
	return func(s *settings) {
		s.cfg.Kind = driver.KindReactor
		s.cfg.Reactor = r
	}
}

// WithSignal sets the real-time signal used by the posix backend.
func WithSignal(signo int) Option {
	return func(s *settings) { s.cfg.Signal = signo }
}

// WithTracer records combinator and driver events to tr.
func WithTracer(tr trace.Tracer) Option {
	return func(s *settings) { s.cfg.Tracer = tr }
}

// WithDriverFactory replaces backend selection with a caller-supplied driver
// constructor. The returned driver must be idle and exclusively owned.
func WithDriverFactory(f func() (driver.Driver, error)) Option {
	return func(s *settings) { s.factory = f }
}

// WithRearm sets the Interval rearm mode. Other combinators ignore it.
func WithRearm(mode RearmMode) Option {
	return func(s *settings) { s.rearm = mode }
}

// WithConfig applies the [timer] and [interval] sections of a loaded
// configuration. Invalid values surface as an error from the constructor.
func WithConfig(c config.Config) Option {
	return func(s *settings) {
		kind, err := driver.ParseKind(c.Timer.Backend)
		if err != nil {
			s.err = err
			return
		}
		s.cfg.Kind = kind
		s.cfg.Signal = c.Timer.Signal
		if kind == driver.KindReactor {
			switch c.Timer.Reactor {
			case "", config.ReactorHeap:
				s.cfg.Reactor = reactor.Default()
			case config.ReactorEpoll:
				r, err := sharedEpoll()
				if err != nil {
					s.err = err
					return
				}
				s.cfg.Reactor = r
			}
		}
		if c.Interval.Rearm == config.RearmEager {
			s.rearm = RearmEager
		} else {
			s.rearm = RearmLazy
		}
	}
}

// guard closes drv if owner is collected while still holding it.
func guard[P any](owner *P, drv driver.Driver) runtime.Cleanup {
	return runtime.AddCleanup(owner, func(d driver.Driver) { _ = d.Close() }, drv)
}
