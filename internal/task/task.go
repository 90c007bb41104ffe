package task

import (
	"context"
	"sync"

	"github.com/roach88/synccore/internal/ir"
	"github.com/roach88/synccore/internal/threadq"
)

// SignalHandler is a task's asynchronous signal routine.
type SignalHandler func(set ir.SignalSet)

// Task is the control block of one task.
type Task struct {
	thread *threadq.Thread
	global bool

	mu        sync.Mutex
	started   bool
	suspended bool
	resumed   chan struct{}
	handler   SignalHandler
	pending   ir.SignalSet
}

func newTask(thread *threadq.Thread, global bool) *Task {
	t := &Task{thread: thread, global: global}
	thread.SetUserData(t)
	return t
}

// ID returns the task id.
func (t *Task) ID() ir.ObjectID {
	return t.thread.ID
}

// Name returns the task name.
func (t *Task) Name() ir.Name {
	return t.thread.Name
}

// Thread returns the control block the task passes to blocking
// directives.
func (t *Task) Thread() *threadq.Thread {
	return t.thread
}

// Global reports whether the task was announced to the other nodes.
func (t *Task) Global() bool {
	return t.global
}

// Started reports whether Start was called.
func (t *Task) Started() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.started
}

// Suspended reports whether the task is suspended.
func (t *Task) Suspended() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.suspended
}

// Pending returns the signals sent but not yet processed.
func (t *Task) Pending() ir.SignalSet {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending
}

// Park blocks while the task is suspended. Entry functions call it at the
// points where a suspension may take effect.
func (t *Task) Park(ctx context.Context) error {
	for {
		t.mu.Lock()
		if !t.suspended {
			t.mu.Unlock()
			return nil
		}
		ch := t.resumed
		t.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (t *Task) suspend() ir.Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.suspended {
		return ir.StatusAlreadySuspended
	}
	t.suspended = true
	t.resumed = make(chan struct{})
	return ir.StatusSuccessful
}

func (t *Task) resume() ir.Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.suspended {
		return ir.StatusIncorrectState
	}
	t.suspended = false
	close(t.resumed)
	return ir.StatusSuccessful
}

func (t *Task) catch(h SignalHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = h
	if h == nil {
		t.pending = 0
	}
}

func (t *Task) post(set ir.SignalSet) ir.Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.handler == nil {
		return ir.StatusNotDefined
	}
	t.pending |= set
	return ir.StatusSuccessful
}

// take clears and returns the pending signals and the handler to run them.
func (t *Task) take() (ir.SignalSet, SignalHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	set := t.pending
	t.pending = 0
	return set, t.handler
}
