//go:build js && wasm

package driver

import (
	"fmt"
	"math"
	"syscall/js"
	"time"

	"asynctimer/wake"
)

func init() {
	register(KindHost, newHostBackend)
	setPlatformDefault(KindHost)
}

// hostBackend schedules through the host's setTimeout/setInterval. The
// callback runs on the host event loop and only fires the wake state.
type hostBackend struct {
	state    *wake.State
	handle   js.Value
	periodic bool
	cb       js.Func
	armed    bool
}

func newHostBackend(_ Config, st *wake.State) (backend, error) {
	if js.Global().Get("setTimeout").Type() != js.TypeFunction {
		return nil, fmt.Errorf("%w: host has no setTimeout", ErrUnsupported)
	}
	return &hostBackend{state: st}, nil
}

func (b *hostBackend) schedule(gen wake.Gen, d, period time.Duration) error {
	ms := math.Ceil(float64(d) / float64(time.Millisecond))
	if ms > math.MaxInt32 {
		return fmt.Errorf("%w: %v exceeds the host timer range", ErrInvalidDuration, d)
	}
	b.cb = js.FuncOf(func(js.Value, []js.Value) any {
		b.state.Fire(gen)
		return nil
	})
	b.periodic = period > 0
	if b.periodic {
		b.handle = js.Global().Call("setInterval", b.cb, ms)
	} else {
		b.handle = js.Global().Call("setTimeout", b.cb, ms)
	}
	b.armed = true
	return nil
}

func (b *hostBackend) unschedule() {
	if !b.armed {
		return
	}
	if b.periodic {
		js.Global().Call("clearInterval", b.handle)
	} else {
		js.Global().Call("clearTimeout", b.handle)
	}
	b.cb.Release()
	b.armed = false
}

func (b *hostBackend) release() error {
	b.unschedule()
	return nil
}
