//go:build linux

package reactor

import (
	"errors"
	"testing"
	"time"
)

func TestEpollReactorDeliversOnce(t *testing.T) {
	r, err := NewEpoll()
	if err != nil {
		t.Fatalf("new epoll reactor: %v", err)
	}
	defer r.Close()

	fired := make(chan time.Time, 2)
	start := time.Now()
	if _, err := r.Schedule(start.Add(15*time.Millisecond), NotifierFunc(func() { fired <- time.Now() })); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	select {
	case at := <-fired:
		if at.Sub(start) < 15*time.Millisecond {
			t.Fatalf("fired early after %v", at.Sub(start))
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timerfd registration never fired")
	}
	select {
	case <-fired:
		t.Fatalf("registration fired twice")
	case <-time.After(40 * time.Millisecond):
	}
}

func TestEpollReactorCancel(t *testing.T) {
	r, err := NewEpoll()
	if err != nil {
		t.Fatalf("new epoll reactor: %v", err)
	}
	defer r.Close()

	fired := make(chan struct{}, 1)
	tok, err := r.Schedule(time.Now().Add(20*time.Millisecond), NotifierFunc(func() { fired <- struct{}{} }))
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if !r.Cancel(tok) {
		t.Fatalf("cancel returned false for pending registration")
	}
	select {
	case <-fired:
		t.Fatalf("cancelled registration fired")
	case <-time.After(60 * time.Millisecond):
	}
}

func TestEpollReactorClose(t *testing.T) {
	r, err := NewEpoll()
	if err != nil {
		t.Fatalf("new epoll reactor: %v", err)
	}
	if _, err := r.Schedule(time.Now().Add(time.Hour), NotifierFunc(nil)); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := r.Schedule(time.Now(), NotifierFunc(nil)); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
