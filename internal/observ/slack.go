// Package observ summarizes timer probe measurements and persists them as
// baselines for later comparison.
package observ

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"time"
)

// Sample is one timer measurement: the requested delay and how long it took
// to be observed.
type Sample struct {
	Want time.Duration
	Got  time.Duration
}

// Slack is how late the timer was observed. It is negative for an early
// fire.
func (s Sample) Slack() time.Duration { return s.Got - s.Want }

// Report aggregates the slack of one probe run.
type Report struct {
	Backend string  `msgpack:"backend" json:"backend"`
	Count   int     `msgpack:"count" json:"count"`
	Early   int     `msgpack:"early" json:"early"`
	WantMS  float64 `msgpack:"want_ms" json:"want_ms"`
	MinMS   float64 `msgpack:"min_ms" json:"min_ms"`
	MeanMS  float64 `msgpack:"mean_ms" json:"mean_ms"`
	P50MS   float64 `msgpack:"p50_ms" json:"p50_ms"`
	P99MS   float64 `msgpack:"p99_ms" json:"p99_ms"`
	MaxMS   float64 `msgpack:"max_ms" json:"max_ms"`
}

// Summarize computes slack statistics over samples.
func Summarize(backend string, samples []Sample) Report {
	r := Report{Backend: backend, Count: len(samples)}
	if len(samples) == 0 {
		return r
	}
	slack := make([]float64, len(samples))
	var sum, want float64
	for i, s := range samples {
		slack[i] = millis(s.Slack())
		sum += slack[i]
		want += millis(s.Want)
		if s.Got < s.Want {
			r.Early++
		}
	}
	slices.Sort(slack)
	n := float64(len(slack))
	r.WantMS = want / n
	r.MinMS = slack[0]
	r.MaxMS = slack[len(slack)-1]
	r.MeanMS = sum / n
	r.P50MS = percentile(slack, 0.50)
	r.P99MS = percentile(slack, 0.99)
	return r
}

// percentile uses nearest-rank on sorted values.
func percentile(sorted []float64, q float64) float64 {
	rank := int(math.Ceil(q*float64(len(sorted)))) - 1
	rank = max(0, min(rank, len(sorted)-1))
	return sorted[rank]
}

// Line renders r as one table row.
func (r Report) Line() string {
	return fmt.Sprintf("%-12s n=%-5d early=%-3d min=%7.3f p50=%7.3f p99=%7.3f max=%7.3f mean=%7.3f ms",
		r.Backend, r.Count, r.Early, r.MinMS, r.P50MS, r.P99MS, r.MaxMS, r.MeanMS)
}

// Summary renders several reports as a block.
func Summary(reports []Report) string {
	var sb strings.Builder
	sb.WriteString("slack:\n")
	for _, r := range reports {
		sb.WriteString("  ")
		sb.WriteString(r.Line())
		sb.WriteByte('\n')
	}
	return sb.String()
}
