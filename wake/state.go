// Package wake implements the crossing point between timer completion
// callbacks, which may run on any goroutine or OS thread, and the task that
// waits for them.
//
// A State records whether the current arm cycle has fired and which waker to
// resume. Each arm cycle has a generation; fires that carry an older
// generation are ignored, which is how late callbacks after cancel or rearm
// are absorbed.
package wake

import (
	"sync/atomic"

	"asynctimer/future"
)

// Gen identifies one arm cycle of a State.
type Gen uint64

const firedBit = 1

// State is safe for concurrent use. Fire may be called from any context;
// Register, Reset, Consume and Cancel belong to the owning task.
type State struct {
	word  atomic.Uint64 // gen<<1 | fired
	waker atomicWaker
}

// New returns a State in generation 0, not fired.
func New() *State {
	return &State{}
}

// Generation returns the current arm cycle.
func (s *State) Generation() Gen {
	return Gen(s.word.Load() >> 1)
}

// IsFired reports whether the current arm cycle has fired.
func (s *State) IsFired() bool {
	return s.word.Load()&firedBit != 0
}

// Reset starts a new arm cycle: fired is cleared and any registered waker is
// dropped without being woken. It returns the new generation, which the
// timer callback must pass to Fire.
func (s *State) Reset() Gen {
	for {
		cur := s.word.Load()
		gen := Gen(cur>>1) + 1
		if s.word.CompareAndSwap(cur, uint64(gen)<<1) {
			s.waker.take()
			return gen
		}
	}
}

// Cancel invalidates the current arm cycle. Fires issued for it become no-ops
// and the registered waker is never resumed.
func (s *State) Cancel() {
	s.Reset()
}

// Fire marks generation gen as fired and resumes the registered waker, if
// any. It returns false when gen is stale or already fired.
func (s *State) Fire(gen Gen) bool {
	for {
		cur := s.word.Load()
		if Gen(cur>>1) != gen || cur&firedBit != 0 {
			return false
		}
		if s.word.CompareAndSwap(cur, cur|firedBit) {
			s.waker.wake()
			return true
		}
	}
}

// Consume clears fired without changing the generation, so a periodic timer
// can deliver its next tick through the same cycle. It reports whether a fire
// was pending.
func (s *State) Consume() bool {
	for {
		cur := s.word.Load()
		if cur&firedBit == 0 {
			return false
		}
		if s.word.CompareAndSwap(cur, cur&^firedBit) {
			return true
		}
	}
}

// Register installs w to be resumed by the next Fire. If the cycle has
// already fired, w is woken immediately, nothing is installed and Register
// returns true.
func (s *State) Register(w future.Waker) bool {
	if w == nil {
		w = future.Noop
	}
	if s.IsFired() {
		w.Wake()
		return true
	}
	s.waker.register(w)
	if s.IsFired() {
		// Fire may have run before the waker was installed; the slot is
		// drained here so the wake is delivered exactly once.
		s.waker.wake()
		return true
	}
	return false
}
