package probe

import (
	"context"
	"fmt"
	"time"

	"asynctimer"
	"asynctimer/internal/observ"
)

// TickFunc observes one interval tick and the gap since the previous one.
type TickFunc func(tick asynctimer.Tick, gap time.Duration)

// SampleInterval collects n ticks of an interval with the given period and
// returns the gap between consecutive ticks as samples. onTick may be nil.
func SampleInterval(ctx context.Context, period time.Duration, n int, onTick TickFunc, opts ...asynctimer.Option) ([]observ.Sample, error) {
	if n <= 0 {
		return nil, fmt.Errorf("probe: tick count must be positive")
	}
	prev := time.Now()
	iv, err := asynctimer.NewInterval(period, opts...)
	if err != nil {
		return nil, err
	}
	defer iv.Close()

	samples := make([]observ.Sample, 0, n)
	for tick := range iv.Ticks(ctx) {
		gap := tick.At.Sub(prev)
		prev = tick.At
		samples = append(samples, observ.Sample{Want: period, Got: gap})
		if onTick != nil {
			onTick(tick, gap)
		}
		if len(samples) == n {
			return samples, nil
		}
	}
	if err := ctx.Err(); err != nil {
		return samples, err
	}
	return samples, fmt.Errorf("probe: interval stopped after %d ticks", len(samples))
}
