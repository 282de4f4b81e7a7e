// Package trace provides structured tracing for timers and the executor.
//
// Combinators, drivers and the executor emit span and point events through a
// Tracer. Tracing is off unless a tracer is supplied; the default is Nop.
// Timer completion callbacks never emit events.
//
// # Usage
//
// From the diagnostic CLI:
//
//	asynctimer probe --trace=- --trace-level=detail
//
// From code:
//
//	tr, _ := trace.New(trace.Config{Level: trace.LevelDetail, Mode: trace.ModeStream})
//	t, _ := asynctimer.NewTimed(work, time.Second, asynctimer.WithTracer(tr))
//
// # Levels
//
//   - LevelOff: nothing
//   - LevelError: only error points
//   - LevelInfo: executor and combinator boundaries
//   - LevelDetail: driver arm/cancel/rearm
//   - LevelDebug: everything, including per-poll events
//
// # Scopes
//
//   - ScopeRuntime: executor runs
//   - ScopeCombinator: Timed races, intervals, delays
//   - ScopeDriver: platform driver operations
//   - ScopePoll: individual polls
package trace
