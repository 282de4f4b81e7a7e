//go:build windows

package driver

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"fortio.org/safecast"
	"golang.org/x/sys/windows"

	"asynctimer/wake"
)

func init() {
	register(KindThreadpool, newThreadpoolBackend)
	setPlatformDefault(KindThreadpool)
}

var (
	modkernel32 = windows.NewLazySystemDLL("kernel32.dll")

	procCreateThreadpoolTimer           = modkernel32.NewProc("CreateThreadpoolTimer")
	procSetThreadpoolTimerEx            = modkernel32.NewProc("SetThreadpoolTimerEx")
	procWaitForThreadpoolTimerCallbacks = modkernel32.NewProc("WaitForThreadpoolTimerCallbacks")
	procCloseThreadpoolTimer            = modkernel32.NewProc("CloseThreadpoolTimer")
)

// One callback serves every timer; the context argument is an integer key
// into tpTimers. windows.NewCallback slots are a finite process resource.
var (
	tpCallbackOnce sync.Once
	tpCallback     uintptr
	tpNext         atomic.Uint64
	tpTimers       sync.Map // uintptr -> *threadpoolBackend
)

func threadpoolCallback() uintptr {
	tpCallbackOnce.Do(func() {
		tpCallback = windows.NewCallback(func(_, context, _ uintptr) uintptr {
			if v, ok := tpTimers.Load(context); ok {
				if b, ok := v.(*threadpoolBackend); ok {
					b.state.Fire(wake.Gen(b.gen.Load()))
				}
			}
			return 0
		})
	})
	return tpCallback
}

type threadpoolBackend struct {
	state *wake.State
	key   uintptr
	timer uintptr
	gen   atomic.Uint64
}

func newThreadpoolBackend(_ Config, st *wake.State) (backend, error) {
	if err := procCreateThreadpoolTimer.Find(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	b := &threadpoolBackend{state: st, key: uintptr(tpNext.Add(1))}
	tpTimers.Store(b.key, b)
	r, _, err := procCreateThreadpoolTimer.Call(threadpoolCallback(), b.key, 0)
	if r == 0 {
		tpTimers.Delete(b.key)
		return nil, osError(KindThreadpool, "CreateThreadpoolTimer", err)
	}
	b.timer = r
	return b, nil
}

// relativeDue encodes d as a negative FILETIME, which the threadpool reads as
// a relative due time in 100ns units.
func relativeDue(d time.Duration) windows.Filetime {
	ticks := -int64((d + 99) / 100)
	return windows.Filetime{
		LowDateTime:  uint32(uint64(ticks)),       //nolint:gosec // bit split of a 64-bit FILETIME
		HighDateTime: uint32(uint64(ticks) >> 32), //nolint:gosec // bit split of a 64-bit FILETIME
	}
}

func (b *threadpoolBackend) schedule(gen wake.Gen, d, period time.Duration) error {
	msPeriod, err := safecast.Conv[uint32](period.Milliseconds())
	if err != nil {
		return fmt.Errorf("%w: period %v exceeds the threadpool range", ErrInvalidDuration, period)
	}
	if period > 0 && msPeriod == 0 {
		msPeriod = 1
	}
	b.gen.Store(uint64(gen))
	due := relativeDue(d)
	// the return value reports whether a previous schedule was pending
	_, _, _ = procSetThreadpoolTimerEx.Call(b.timer, uintptr(unsafe.Pointer(&due)), uintptr(msPeriod), 0)
	return nil
}

func (b *threadpoolBackend) unschedule() {
	_, _, _ = procSetThreadpoolTimerEx.Call(b.timer, 0, 0, 0)
	// cancel queued callbacks and wait for running ones
	_, _, _ = procWaitForThreadpoolTimerCallbacks.Call(b.timer, 1)
}

func (b *threadpoolBackend) release() error {
	b.unschedule()
	_, _, _ = procCloseThreadpoolTimer.Call(b.timer)
	tpTimers.Delete(b.key)
	return nil
}
