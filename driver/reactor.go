package driver

import (
	"sync"
	"time"

	"asynctimer/reactor"
	"asynctimer/wake"
)

func init() {
	register(KindReactor, newReactorBackend)
}

// reactorBackend performs no OS timer calls: it asks the reactor for a
// notification at a monotonic instant and turns it into a fire. Periodic
// timers schedule the next deadline from the previous one, not from the
// moment of delivery, so they do not drift.
type reactorBackend struct {
	r     reactor.Reactor
	state *wake.State

	mu       sync.Mutex
	tok      reactor.Token
	gen      wake.Gen
	active   bool
	deadline time.Time
	period   time.Duration
}

func newReactorBackend(cfg Config, st *wake.State) (backend, error) {
	r := cfg.Reactor
	if r == nil {
		r = reactor.Default()
	}
	return &reactorBackend{r: r, state: st}, nil
}

func (b *reactorBackend) schedule(gen wake.Gen, d, period time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gen = gen
	b.period = period
	b.deadline = time.Now().Add(d)
	b.active = true
	if err := b.submitLocked(); err != nil {
		b.active = false
		return osError(KindReactor, "schedule", err)
	}
	return nil
}

func (b *reactorBackend) submitLocked() error {
	gen := b.gen
	tok, err := b.r.Schedule(b.deadline, reactor.NotifierFunc(func() { b.notify(gen) }))
	if err != nil {
		return err
	}
	b.tok = tok
	return nil
}

func (b *reactorBackend) notify(gen wake.Gen) {
	b.state.Fire(gen)

	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.active || b.gen != gen {
		return
	}
	if b.period <= 0 {
		b.active = false
		b.tok = 0
		return
	}
	now := time.Now()
	for !b.deadline.After(now) {
		b.deadline = b.deadline.Add(b.period)
	}
	if err := b.submitLocked(); err != nil {
		// the reactor is gone; the interval simply stops ticking
		b.active = false
	}
}

func (b *reactorBackend) unschedule() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.active {
		b.r.Cancel(b.tok)
	}
	b.active = false
	b.tok = 0
}

func (b *reactorBackend) release() error {
	b.unschedule()
	return nil
}
