package trace

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want Level
		err  bool
	}{
		{"off", LevelOff, false},
		{"ERROR", LevelError, false},
		{"info", LevelInfo, false},
		{"detail", LevelDetail, false},
		{"Debug", LevelDebug, false},
		{"phase", LevelOff, true},
	}
	for _, tc := range cases {
		got, err := ParseLevel(tc.in)
		if tc.err != (err != nil) {
			t.Fatalf("ParseLevel(%q) err = %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestLevelScopeFilter(t *testing.T) {
	if !LevelInfo.ShouldEmit(ScopeCombinator) {
		t.Fatalf("info must emit combinator events")
	}
	if LevelInfo.ShouldEmit(ScopeDriver) {
		t.Fatalf("info must not emit driver events")
	}
	if !LevelDetail.ShouldEmit(ScopeDriver) || LevelDetail.ShouldEmit(ScopePoll) {
		t.Fatalf("detail must stop at driver scope")
	}
	if !LevelDebug.ShouldEmit(ScopePoll) {
		t.Fatalf("debug must emit everything")
	}
}

func TestStreamTracerText(t *testing.T) {
	var buf bytes.Buffer
	tr := NewStreamTracer(&buf, LevelDetail, FormatText)

	span := Begin(tr, ScopeCombinator, "timed")
	span.Point(ScopeDriver, "driver.arm", "10ms")
	span.Point(ScopePoll, "poll", "")
	span.WithExtra("outcome", "completed").End("done")

	out := buf.String()
	for _, want := range []string{"→ timed", "• driver.arm (10ms)", "← timed (done) {outcome=completed}"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in output:\n%s", want, out)
		}
	}
	if strings.Contains(out, "poll") {
		t.Fatalf("poll scope leaked at detail level:\n%s", out)
	}
}

func TestErrorEventsPassAtErrorLevel(t *testing.T) {
	ring := NewRingTracer(8, LevelError)
	Point(ring, ScopeCombinator, "ignored", "")
	Error(ring, ScopeDriver, "driver.arm", errors.New("EAGAIN"))

	events := ring.Snapshot()
	if len(events) != 1 || events[0].Kind != KindError || events[0].Detail != "EAGAIN" {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestRingTracerWraps(t *testing.T) {
	ring := NewRingTracer(3, LevelDebug)
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		Point(ring, ScopeRuntime, name, "")
	}
	events := ring.Snapshot()
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	for i, want := range []string{"c", "d", "e"} {
		if events[i].Name != want {
			t.Fatalf("event %d: want %q, got %q", i, want, events[i].Name)
		}
	}
}

func TestNDJSONRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	tr := NewStreamTracer(&buf, LevelDebug, FormatNDJSON)
	Point(tr, ScopeDriver, "driver.cancel", "posix")

	var decoded map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &decoded); err != nil {
		t.Fatalf("invalid ndjson %q: %v", buf.String(), err)
	}
	if decoded["name"] != "driver.cancel" || decoded["scope"] != "driver" {
		t.Fatalf("unexpected payload: %v", decoded)
	}
}

func TestMultiTracerFansOut(t *testing.T) {
	a := NewRingTracer(4, LevelDebug)
	b := NewRingTracer(4, LevelDebug)
	m := NewMultiTracer(LevelDebug, a, b)
	Point(m, ScopeRuntime, "run", "")
	if len(a.Snapshot()) != 1 || len(b.Snapshot()) != 1 {
		t.Fatalf("multi tracer did not reach every sink")
	}
}

func TestNewOffIsNop(t *testing.T) {
	tr, err := New(Config{Level: LevelOff})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if tr.Enabled() {
		t.Fatalf("off tracer must be disabled")
	}
	span := Begin(tr, ScopeRuntime, "x")
	if span.End("") != 0 {
		t.Fatalf("nop span must be inert")
	}
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]StorageMode{"stream": ModeStream, " RING": ModeRing, "both": ModeBoth} {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Fatalf("ParseMode(%q) = %v, %v", in, got, err)
		}
		if got.String() != strings.ToLower(strings.TrimSpace(in)) {
			t.Fatalf("String() = %q for %q", got.String(), in)
		}
	}
	if _, err := ParseMode("tape"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestRingSnapshotBeforeWrap(t *testing.T) {
	ring := NewRingTracer(4, LevelDebug)
	Point(ring, ScopeRuntime, "a", "")
	Point(ring, ScopeRuntime, "b", "")
	events := ring.Snapshot()
	if len(events) != 2 || events[0].Name != "a" || events[1].Seq <= events[0].Seq {
		t.Fatalf("unexpected snapshot %+v", events)
	}
}

func TestHeartbeatEmitsUntilStopped(t *testing.T) {
	ring := NewRingTracer(64, LevelInfo)
	h := StartHeartbeat(ring, 2*time.Millisecond)
	deadline := time.Now().Add(2 * time.Second)
	for len(ring.Snapshot()) < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	h.Stop()
	h.Stop()
	n := len(ring.Snapshot())
	if n < 2 {
		t.Fatalf("expected heartbeats, got %d", n)
	}
	time.Sleep(10 * time.Millisecond)
	if len(ring.Snapshot()) != n {
		t.Fatalf("heartbeat kept emitting after Stop")
	}
	if StartHeartbeat(Nop, time.Millisecond) != nil {
		t.Fatalf("heartbeat on a disabled tracer must be nil")
	}
}
