// Package asyncrt runs futures on a single goroutine.
//
// The executor polls ready tasks one at a time in FIFO order, or in a seeded
// pseudo-random order when Fuzz is set, which gives reproducible
// interleavings. Wakers may be called from any goroutine; they post the task
// to an inbox that the run loop drains before picking the next task. When
// nothing is ready the loop blocks until a wake arrives or the context ends.
package asyncrt

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"asynctimer/future"
	"asynctimer/trace"
)

// TaskID identifies a spawned task.
type TaskID uint64

// TaskStatus describes task scheduling state.
type TaskStatus uint8

const (
	TaskReady TaskStatus = iota
	TaskRunning
	TaskWaiting
	TaskDone
)

func (s TaskStatus) String() string {
	switch s {
	case TaskReady:
		return "ready"
	case TaskRunning:
		return "running"
	case TaskWaiting:
		return "waiting"
	case TaskDone:
		return "done"
	default:
		return "unknown"
	}
}

// Config configures executor scheduling behavior.
type Config struct {
	// Fuzz picks the next ready task pseudo-randomly from Seed instead of
	// FIFO.
	Fuzz   bool
	Seed   uint64
	Tracer trace.Tracer
}

type task struct {
	id     TaskID
	name   string
	poll   func(cx *future.Context) bool
	drop   func()
	status TaskStatus
	cx     *future.Context
}

// Executor runs tasks on the goroutine that calls Run. Spawn, Cancel and
// Status must be called from that goroutine or before Run starts.
type Executor struct {
	cfg      Config
	tracer   trace.Tracer
	nextID   TaskID
	ready    []TaskID
	readySet map[TaskID]struct{}
	tasks    map[TaskID]*task
	live     int
	current  TaskID
	rng      *rand.Rand
	polls    uint64

	inboxMu sync.Mutex
	inbox   []TaskID
	notify  chan struct{}
}

// NewExecutor constructs an executor with the provided configuration.
func NewExecutor(cfg Config) *Executor {
	exec := &Executor{
		cfg:      cfg,
		tracer:   trace.OrNop(cfg.Tracer),
		nextID:   1,
		readySet: make(map[TaskID]struct{}),
		tasks:    make(map[TaskID]*task),
		notify:   make(chan struct{}, 1),
	}
	if cfg.Fuzz {
		seed := cfg.Seed
		if seed == 0 {
			seed = 1
		}
		exec.rng = rand.New(rand.NewSource(int64(seed))) //nolint:gosec // deterministic scheduler seed
	}
	return exec
}

// Current returns the ID of the task being polled.
func (e *Executor) Current() TaskID {
	if e == nil {
		return 0
	}
	return e.current
}

// Polls returns the number of polls performed so far.
func (e *Executor) Polls() uint64 {
	if e == nil {
		return 0
	}
	return e.polls
}

// Status returns the scheduling state of a live task. A task is forgotten
// once it finishes or is cancelled, so its ID then reports false; its Handle
// keeps the outcome.
func (e *Executor) Status(id TaskID) (TaskStatus, bool) {
	if e == nil {
		return TaskDone, false
	}
	t := e.tasks[id]
	if t == nil {
		return TaskDone, false
	}
	return t.status, true
}

func (e *Executor) spawn(name string, poll func(cx *future.Context) bool, drop func()) TaskID {
	id := e.nextID
	e.nextID++
	t := &task{
		id:     id,
		name:   name,
		poll:   poll,
		drop:   drop,
		status: TaskReady,
	}
	t.cx = future.NewContext(&taskWaker{exec: e, id: id})
	e.tasks[id] = t
	e.live++
	e.enqueue(id)
	trace.Point(e.tracer, trace.ScopePoll, "task.spawn", fmt.Sprintf("#%d %s", id, name))
	return id
}

// Cancel marks a task done without polling it again and runs its drop hook.
func (e *Executor) Cancel(id TaskID) {
	if e == nil {
		return
	}
	t := e.tasks[id]
	if t == nil || t.status == TaskDone {
		return
	}
	e.markDone(t)
	if t.drop != nil {
		t.drop()
	}
}

// Wake enqueues a task if it is not done. It must be called on the executor
// goroutine; other goroutines go through the task's waker.
func (e *Executor) Wake(id TaskID) {
	if e == nil {
		return
	}
	t := e.tasks[id]
	if t == nil || t.status == TaskDone {
		return
	}
	e.enqueue(id)
}

// NextReady returns the next ready task according to scheduler policy.
func (e *Executor) NextReady() (TaskID, bool) {
	if e == nil {
		return 0, false
	}
	for len(e.ready) > 0 {
		idx := 0
		if e.rng != nil {
			idx = e.rng.Intn(len(e.ready))
		}
		id := e.ready[idx]
		copy(e.ready[idx:], e.ready[idx+1:])
		e.ready = e.ready[:len(e.ready)-1]
		delete(e.readySet, id)
		t := e.tasks[id]
		if t == nil || t.status == TaskDone {
			continue
		}
		return id, true
	}
	return 0, false
}

// Run polls tasks until every spawned task is done or ctx ends.
func (e *Executor) Run(ctx context.Context) error {
	if e == nil {
		return nil
	}
	span := trace.Begin(e.tracer, trace.ScopeRuntime, "executor.run")
	start := e.polls
	defer func() {
		span.WithExtra("polls", fmt.Sprint(e.polls-start)).End("")
	}()

	for {
		e.drainInbox()
		id, ok := e.NextReady()
		if !ok {
			if e.live == 0 {
				return nil
			}
			select {
			case <-e.notify:
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		e.pollTask(e.tasks[id])
	}
}

func (e *Executor) pollTask(t *task) {
	e.current = t.id
	t.status = TaskRunning
	e.polls++
	trace.Point(e.tracer, trace.ScopePoll, "task.poll", fmt.Sprintf("#%d %s", t.id, t.name))
	done := t.poll(t.cx)
	e.current = 0
	if done {
		e.markDone(t)
		return
	}
	if t.status == TaskRunning {
		t.status = TaskWaiting
	}
}

func (e *Executor) markDone(t *task) {
	if t.status == TaskDone {
		return
	}
	t.status = TaskDone
	e.live--
	delete(e.readySet, t.id)
	delete(e.tasks, t.id)
}

func (e *Executor) enqueue(id TaskID) {
	if _, ok := e.readySet[id]; ok {
		return
	}
	e.ready = append(e.ready, id)
	e.readySet[id] = struct{}{}
	if t := e.tasks[id]; t != nil && t.status != TaskDone {
		t.status = TaskReady
	}
}

func (e *Executor) post(id TaskID) {
	e.inboxMu.Lock()
	e.inbox = append(e.inbox, id)
	e.inboxMu.Unlock()
	select {
	case e.notify <- struct{}{}:
	default:
	}
}

func (e *Executor) drainInbox() {
	e.inboxMu.Lock()
	ids := e.inbox
	e.inbox = nil
	e.inboxMu.Unlock()
	for _, id := range ids {
		e.Wake(id)
	}
}

type taskWaker struct {
	exec *Executor
	id   TaskID
}

func (w *taskWaker) Wake() {
	w.exec.post(w.id)
}
