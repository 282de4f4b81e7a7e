package observ

import (
	"fmt"
	"strings"
	"time"
)

// Phase records one timed stage of a probe run.
type Phase struct {
	Name  string
	Start time.Time
	Dur   time.Duration
	Note  string
}

// Phases tracks the stages of a probe run in order.
type Phases struct {
	list []Phase
}

func NewPhases() *Phases { return &Phases{list: make([]Phase, 0, 4)} }

// Begin starts a stage and returns its index.
func (p *Phases) Begin(name string) int {
	p.list = append(p.list, Phase{Name: name, Start: time.Now()})
	return len(p.list) - 1
}

// End finishes the stage at idx.
func (p *Phases) End(idx int, note string) {
	if idx < 0 || idx >= len(p.list) {
		return
	}
	ph := &p.list[idx]
	ph.Dur = time.Since(ph.Start)
	ph.Note = note
}

// PhaseReport is the serialized form of a Phase.
type PhaseReport struct {
	Name       string  `msgpack:"name" json:"name"`
	DurationMS float64 `msgpack:"duration_ms" json:"duration_ms"`
	Note       string  `msgpack:"note,omitempty" json:"note,omitempty"`
}

// Report returns the stages with durations in milliseconds.
func (p *Phases) Report() []PhaseReport {
	out := make([]PhaseReport, len(p.list))
	for i, ph := range p.list {
		out[i] = PhaseReport{Name: ph.Name, DurationMS: millis(ph.Dur), Note: ph.Note}
	}
	return out
}

// Summary renders the stages as an aligned block.
func (p *Phases) Summary() string {
	var sb strings.Builder
	sb.WriteString("phases:\n")
	var total time.Duration
	for _, ph := range p.list {
		total += ph.Dur
		fmt.Fprintf(&sb, "  %-12s %8.2f ms", ph.Name, millis(ph.Dur))
		if ph.Note != "" {
			sb.WriteString("  // " + ph.Note)
		}
		sb.WriteByte('\n')
	}
	fmt.Fprintf(&sb, "  %-12s %8.2f ms\n", "total", millis(total))
	return sb.String()
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
