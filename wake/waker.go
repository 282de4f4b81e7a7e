package wake

import (
	"sync/atomic"

	"asynctimer/future"
)

const (
	waiting     uint32 = 0
	registering uint32 = 0b01
	waking      uint32 = 0b10
)

// atomicWaker holds at most one waker. The slot is guarded by the state bits:
// register owns it while REGISTERING is set, take owns it while WAKING is set.
type atomicWaker struct {
	state atomic.Uint32
	waker future.Waker
}

func (a *atomicWaker) register(w future.Waker) {
	for {
		switch a.state.Load() {
		case waiting:
			if !a.state.CompareAndSwap(waiting, registering) {
				continue
			}
			a.waker = w
			if a.state.CompareAndSwap(registering, waiting) {
				return
			}
			// take ran while we held the slot: state is REGISTERING|WAKING.
			pending := a.waker
			a.waker = nil
			a.state.Store(waiting)
			if pending != nil {
				pending.Wake()
			}
			return
		case waking:
			w.Wake()
			return
		default:
			// concurrent register; the caller is misusing the cell
			return
		}
	}
}

func (a *atomicWaker) take() future.Waker {
	if a.state.Or(waking) != waiting {
		return nil
	}
	w := a.waker
	a.waker = nil
	a.state.And(^waking)
	return w
}

func (a *atomicWaker) wake() bool {
	w := a.take()
	if w == nil {
		return false
	}
	w.Wake()
	return true
}
