package trace

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// Heartbeat emits a numbered liveness event every interval. A trace that
// keeps showing heartbeats but no span ends points at a timer that never
// fired.
type Heartbeat struct {
	stop context.CancelFunc
	wg   sync.WaitGroup
}

// StartHeartbeat returns nil when tracing is off or interval is not positive.
func StartHeartbeat(t Tracer, interval time.Duration) *Heartbeat {
	if t == nil || !t.Enabled() || interval <= 0 {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &Heartbeat{stop: cancel}
	h.wg.Go(func() {
		tick := time.NewTicker(interval)
		defer tick.Stop()
		for n := 1; ; n++ {
			select {
			case <-ctx.Done():
				return
			case now := <-tick.C:
				t.Emit(&Event{
					Time:   now,
					Kind:   KindHeartbeat,
					Scope:  ScopeRuntime,
					Name:   "heartbeat",
					Detail: "#" + strconv.Itoa(n),
				})
			}
		}
	})
	return h
}

// Stop ends the heartbeat and waits for its goroutine. It is safe on nil and
// safe to call twice.
func (h *Heartbeat) Stop() {
	if h == nil {
		return
	}
	h.stop()
	h.wg.Wait()
}
