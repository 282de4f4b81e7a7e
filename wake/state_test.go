package wake

import (
	"sync"
	"sync/atomic"
	"testing"

	"asynctimer/future"
)

type countingWaker struct {
	n atomic.Int32
}

func (c *countingWaker) Wake() { c.n.Add(1) }

func TestFireBeforeRegisterWakesImmediately(t *testing.T) {
	s := New()
	gen := s.Reset()
	if !s.Fire(gen) {
		t.Fatalf("fire rejected for current generation")
	}
	w := &countingWaker{}
	if !s.Register(w) {
		t.Fatalf("register must report an already fired cycle")
	}
	if w.n.Load() != 1 {
		t.Fatalf("expected immediate wake, got %d", w.n.Load())
	}
}

func TestRegisterThenFireWakesOnce(t *testing.T) {
	s := New()
	gen := s.Reset()
	w := &countingWaker{}
	if s.Register(w) {
		t.Fatalf("register reported fired on a fresh cycle")
	}
	s.Fire(gen)
	s.Fire(gen)
	if w.n.Load() != 1 {
		t.Fatalf("expected exactly one wake, got %d", w.n.Load())
	}
	if !s.IsFired() {
		t.Fatalf("state not fired")
	}
}

func TestStaleGenerationIgnored(t *testing.T) {
	s := New()
	old := s.Reset()
	w := &countingWaker{}
	s.Register(w)
	s.Reset()
	if s.Fire(old) {
		t.Fatalf("stale fire accepted")
	}
	if s.IsFired() || w.n.Load() != 0 {
		t.Fatalf("stale fire leaked: fired=%v wakes=%d", s.IsFired(), w.n.Load())
	}
}

func TestCancelDropsWaker(t *testing.T) {
	s := New()
	gen := s.Reset()
	w := &countingWaker{}
	s.Register(w)
	s.Cancel()
	s.Fire(gen)
	if w.n.Load() != 0 {
		t.Fatalf("cancelled cycle woke the task")
	}
}

func TestConsumeKeepsGeneration(t *testing.T) {
	s := New()
	gen := s.Reset()
	s.Fire(gen)
	if !s.Consume() {
		t.Fatalf("consume missed a pending fire")
	}
	if s.Consume() {
		t.Fatalf("consume reported a second fire")
	}
	if s.Generation() != gen {
		t.Fatalf("consume changed generation")
	}
	if !s.Fire(gen) {
		t.Fatalf("periodic fire rejected after consume")
	}
}

func TestConcurrentFireRegisterExactlyOnce(t *testing.T) {
	for i := 0; i < 2000; i++ {
		s := New()
		gen := s.Reset()
		w := &countingWaker{}
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.Fire(gen)
		}()
		go func() {
			defer wg.Done()
			s.Register(w)
		}()
		wg.Wait()
		if got := w.n.Load(); got != 1 {
			t.Fatalf("iteration %d: expected one wake, got %d", i, got)
		}
	}
}

func TestRegisterReplacesWaker(t *testing.T) {
	s := New()
	gen := s.Reset()
	first := &countingWaker{}
	second := &countingWaker{}
	s.Register(first)
	s.Register(second)
	s.Fire(gen)
	if first.n.Load() != 0 || second.n.Load() != 1 {
		t.Fatalf("expected only the latest waker, got first=%d second=%d", first.n.Load(), second.n.Load())
	}
}

func TestRegisterNilWaker(t *testing.T) {
	s := New()
	gen := s.Reset()
	s.Register(nil)
	s.Fire(gen)
	s.Register(future.Noop)
}
