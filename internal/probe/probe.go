// Package probe measures how late timers are observed on each backend.
package probe

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"asynctimer"
	"asynctimer/asyncrt"
	"asynctimer/driver"
	"asynctimer/future"
	"asynctimer/internal/observ"
	"asynctimer/trace"
)

// Options configures a probe run.
type Options struct {
	Backends []driver.Kind
	// Count is the number of one-shot timers per backend.
	Count int
	Delay time.Duration
	// Jobs bounds the executors running at once; 0 uses GOMAXPROCS.
	Jobs int
	// Timer is applied to every timer before the backend is selected.
	Timer  []asynctimer.Option
	Fuzz   bool
	Seed   uint64
	Tracer trace.Tracer
	// Events receives progress. It may be nil.
	Events chan<- Event
}

// Event reports probe progress for one backend.
type Event struct {
	Backend  string
	Done     int
	Total    int
	Finished bool
	Err      error
}

// Result holds one report per backend in Options.Backends order.
type Result struct {
	Reports []observ.Report
	Phases  *observ.Phases
}

// Run arms Count timers of Delay on every backend concurrently and collects
// their slack.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Count <= 0 {
		return nil, fmt.Errorf("probe: count must be positive")
	}
	if opts.Delay <= 0 {
		return nil, fmt.Errorf("probe: %w: %v", asynctimer.ErrInvalidDuration, opts.Delay)
	}
	jobs := opts.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}
	tracer := trace.OrNop(opts.Tracer)
	res := &Result{Phases: observ.NewPhases()}

	for _, kind := range opts.Backends {
		idx := res.Phases.Begin(kind.String())
		samples, err := runBackend(ctx, kind, jobs, opts, tracer)
		if err != nil {
			res.Phases.End(idx, "failed")
			emit(ctx, opts.Events, Event{Backend: kind.String(), Total: opts.Count, Finished: true, Err: err})
			return res, fmt.Errorf("probe %s: %w", kind, err)
		}
		res.Phases.End(idx, fmt.Sprintf("%d timers", len(samples)))
		res.Reports = append(res.Reports, observ.Summarize(kind.String(), samples))
		emit(ctx, opts.Events, Event{Backend: kind.String(), Done: len(samples), Total: opts.Count, Finished: true})
	}
	return res, nil
}

func runBackend(ctx context.Context, kind driver.Kind, jobs int, opts Options, tracer trace.Tracer) ([]observ.Sample, error) {
	samples := make([]observ.Sample, opts.Count)
	batches := splitBatches(opts.Count, jobs)
	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(jobs, len(batches)))

	for _, b := range batches {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}

			timerOpts := append(append([]asynctimer.Option(nil), opts.Timer...),
				asynctimer.WithBackend(kind), asynctimer.WithTracer(tracer))
			exec := asyncrt.NewExecutor(asyncrt.Config{Fuzz: opts.Fuzz, Seed: opts.Seed, Tracer: tracer})
			var handles []*asyncrt.Handle[struct{}]
			for i := b.lo; i < b.hi; i++ {
				start := time.Now()
				dl, err := asynctimer.NewDelay(opts.Delay, timerOpts...)
				if err != nil {
					for _, h := range handles {
						h.Cancel()
					}
					return err
				}
				m := &measured{
					dl:    dl,
					start: start,
					out:   &samples[i],
					want:  opts.Delay,
					onDone: func() {
						n := done.Add(1)
						emit(gctx, opts.Events, Event{Backend: kind.String(), Done: int(n), Total: opts.Count})
					},
				}
				handles = append(handles, asyncrt.Spawn[struct{}](exec, fmt.Sprintf("%s#%d", kind, i), m))
			}
			return exec.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return samples, nil
}

type batch struct{ lo, hi int }

// splitBatches divides n timers into at most jobs contiguous ranges.
func splitBatches(n, jobs int) []batch {
	jobs = max(1, min(jobs, n))
	out := make([]batch, 0, jobs)
	size, rem := n/jobs, n%jobs
	lo := 0
	for i := 0; i < jobs; i++ {
		hi := lo + size
		if i < rem {
			hi++
		}
		out = append(out, batch{lo: lo, hi: hi})
		lo = hi
	}
	return out
}

// measured records when its delay is observed by the executor.
type measured struct {
	dl     *asynctimer.Delay
	start  time.Time
	want   time.Duration
	out    *observ.Sample
	onDone func()
}

func (m *measured) Poll(cx *future.Context) future.Poll[struct{}] {
	if !m.dl.Poll(cx).IsReady() {
		return future.Pending[struct{}]()
	}
	*m.out = observ.Sample{Want: m.want, Got: time.Since(m.start)}
	if m.onDone != nil {
		m.onDone()
	}
	return future.Ready(struct{}{})
}

func (m *measured) Close() error { return m.dl.Close() }

func emit(ctx context.Context, ch chan<- Event, ev Event) {
	if ch == nil {
		return
	}
	select {
	case ch <- ev:
	case <-ctx.Done():
	}
}
