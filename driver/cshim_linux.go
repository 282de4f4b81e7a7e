//go:build cgo && linux && asynctimer_cshim

package driver

/*
#cgo LDFLAGS: -lrt
#include <stdint.h>
#include <time.h>

timer_t asynctimer_posix_timer(uintptr_t ctx);
int asynctimer_posix_set(timer_t id, int64_t value_ns, int64_t period_ns);
void asynctimer_posix_delete(timer_t id);
*/
import "C"

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"asynctimer/wake"
)

func init() {
	register(KindPosixThread, newCShimBackend)
}

// The C side only ever sees an integer context; it is resolved here so no Go
// pointer crosses into C. Every arm cycle gets a fresh context, so a callback
// already dispatched for a previous cycle finds nothing to fire.
var (
	cshimNext    atomic.Uint64
	cshimArms    sync.Map // uint64 -> cshimArm
	errCShimInit = errors.New("posix_timer returned no timer")
)

type cshimArm struct {
	state *wake.State
	gen   wake.Gen
}

//export asynctimerFire
func asynctimerFire(ctx C.uintptr_t) {
	cshimDeliver(uint64(ctx))
}

func cshimDeliver(ctx uint64) {
	v, ok := cshimArms.Load(ctx)
	if !ok {
		return
	}
	if a, ok := v.(cshimArm); ok {
		a.state.Fire(a.gen)
	}
}

// cshimBackend is a POSIX timer whose expirations run on a notification
// thread created by the C library. The timer object is created per arm
// because its notification value is fixed at timer_create.
type cshimBackend struct {
	state *wake.State
	ctx   uint64
	id    C.timer_t
}

func newCShimBackend(_ Config, st *wake.State) (backend, error) {
	return &cshimBackend{state: st}, nil
}

func (b *cshimBackend) schedule(gen wake.Gen, d, period time.Duration) error {
	b.unschedule()
	ctx := cshimNext.Add(1)
	cshimArms.Store(ctx, cshimArm{state: b.state, gen: gen})
	id := C.asynctimer_posix_timer(C.uintptr_t(ctx))
	if id == nil {
		cshimArms.Delete(ctx)
		return osError(KindPosixThread, "timer_create", errCShimInit)
	}
	b.ctx, b.id = ctx, id
	if rc, err := C.asynctimer_posix_set(id, C.int64_t(d.Nanoseconds()), C.int64_t(period.Nanoseconds())); rc != 0 {
		b.unschedule()
		return osError(KindPosixThread, "timer_settime", err)
	}
	return nil
}

func (b *cshimBackend) unschedule() {
	if b.ctx == 0 {
		return
	}
	cshimArms.Delete(b.ctx)
	C.asynctimer_posix_delete(b.id)
	b.ctx, b.id = 0, nil
}

func (b *cshimBackend) release() error {
	b.unschedule()
	return nil
}
