package ui

import (
	"errors"
	"strings"
	"testing"

	"asynctimer/internal/probe"
)

func TestProbeModelAppliesEvents(t *testing.T) {
	m := NewProbeModel("probe", []string{"posix", "reactor"}, 10, nil).(*probeModel)

	m.applyEvent(probe.Event{Backend: "posix", Done: 5, Total: 10})
	if m.rows[0].status != "running" || m.rows[0].done != 5 {
		t.Fatalf("unexpected row %+v", m.rows[0])
	}
	if got := m.fraction(); got != 0.25 {
		t.Fatalf("unexpected fraction %v", got)
	}

	m.applyEvent(probe.Event{Backend: "posix", Done: 10, Total: 10, Finished: true})
	m.applyEvent(probe.Event{Backend: "reactor", Err: errors.New("boom"), Finished: true})
	if m.rows[0].status != "done" || m.rows[1].status != "error" {
		t.Fatalf("unexpected rows %+v", m.rows)
	}
	if got := m.fraction(); got != 1 {
		t.Fatalf("unexpected fraction %v", got)
	}

	m.applyEvent(probe.Event{Backend: "kqueue", Done: 1})
	view := m.View()
	if !strings.Contains(view, "posix") || !strings.Contains(view, "reactor") || strings.Contains(view, "kqueue") {
		t.Fatalf("unexpected view:\n%s", view)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("reactor", 20); got != "reactor" {
		t.Fatalf("unexpected %q", got)
	}
	if got := truncate("posix-thread", 8); got != "posix..." {
		t.Fatalf("unexpected %q", got)
	}
}
