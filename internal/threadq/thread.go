package threadq

import (
	"sync"
	"sync/atomic"

	"github.com/roach88/synccore/internal/ir"
	"github.com/roach88/synccore/internal/watchdog"
)

// State is the blocking state of a thread.
type State int32

const (
	StateReady State = iota
	StateBlocked
	StateReadyAfterTimeout
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateBlocked:
		return "blocked"
	case StateReadyAfterTimeout:
		return "ready_after_timeout"
	default:
		return "unknown"
	}
}

// Wait is the wait slot of a thread. Directives fill in the inputs before
// blocking; the thread that unblocks it writes the outputs before the
// wakeup, so the woken thread reads them without further locking.
type Wait struct {
	// ID is the object the thread waits on.
	ID ir.ObjectID

	Option ir.Option
	Count  uint32

	// Buffer receives a message handed over by a sender. Size is the
	// number of bytes delivered and MessagePriority its priority.
	Buffer          []byte
	Size            int
	MessagePriority uint32

	// ReturnArgument carries a directive specific output, e.g. the old
	// priority of a remote set priority request.
	ReturnArgument any

	// Packet is the in-flight MP request the thread waits on.
	Packet *ir.Packet

	// Queued, if set, is called once the thread sits on the queue and the
	// queue lock is released, just before the thread parks.
	Queued func()
}

// Thread is the control block of one schedulable context.
type Thread struct {
	ID        ir.ObjectID
	Name      ir.Name
	Processor int

	// Wait is owned by the thread while it runs and by the unblocking
	// thread while it is blocked.
	Wait Wait

	mu       sync.Mutex
	real     ir.Priority
	sources  map[any]ir.Priority
	current  atomic.Uint32
	state    atomic.Int32
	isProxy  bool
	userData any

	// Queue membership; written with the queue's lock held.
	queue   atomic.Pointer[Queue]
	key     ir.Priority
	waitGen atomic.Uint64
	timer   *watchdog.Timer

	wake chan ir.Status
}

// NewThread creates a ready thread.
func NewThread(id ir.ObjectID, name ir.Name, priority ir.Priority, processor int) *Thread {
	t := &Thread{
		ID:        id,
		Name:      name,
		Processor: processor,
		real:      priority,
		wake:      make(chan ir.Status, 1),
	}
	t.current.Store(uint32(priority))
	return t
}

// NewProxy creates a thread that stands in for a remote thread blocked on
// a local object.
func NewProxy(remote ir.ObjectID, priority ir.Priority) *Thread {
	t := NewThread(remote, 0, priority, 0)
	t.isProxy = true
	return t
}

// IsProxy reports whether the thread stands in for a remote thread.
func (t *Thread) IsProxy() bool {
	return t.isProxy
}

// SetUserData attaches an owner defined value, e.g. the task record.
func (t *Thread) SetUserData(v any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.userData = v
}

// UserData returns the value set with SetUserData.
func (t *Thread) UserData() any {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.userData
}

// CurrentPriority returns the effective priority.
func (t *Thread) CurrentPriority() ir.Priority {
	return ir.Priority(t.current.Load())
}

// RealPriority returns the base priority, unaffected by any protocol.
func (t *Thread) RealPriority() ir.Priority {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.real
}

// State returns the blocking state.
func (t *Thread) State() State {
	return State(t.state.Load())
}

// IsBlocked reports whether the thread waits on a queue.
func (t *Thread) IsBlocked() bool {
	return t.queue.Load() != nil
}

// WaitQueue returns the queue the thread is blocked on, or nil.
func (t *Thread) WaitQueue() *Queue {
	return t.queue.Load()
}

// Unblock wakes a thread the caller removed from a queue. The caller
// must have filled in any wait outputs first.
func (t *Thread) Unblock(status ir.Status) {
	t.release(status, StateReady)
}

func (t *Thread) release(status ir.Status, state State) {
	if t.timer != nil {
		t.timer.Cancel()
		t.timer = nil
	}
	t.state.Store(int32(state))
	select {
	case t.wake <- status:
	default:
		// A thread is removed from its queue exactly once per wait, so
		// the slot is always free.
		panic("threadq: thread unblocked twice")
	}
}

// recompute derives the effective priority from the real priority and the
// priority sources. Must be called with t.mu held. Reports whether the
// effective priority changed.
func (t *Thread) recompute() bool {
	p := t.real
	for _, s := range t.sources {
		p = ir.Highest(p, s)
	}
	old := ir.Priority(t.current.Swap(uint32(p)))
	return old != p
}

func (t *Thread) setSource(key any, p ir.Priority) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sources == nil {
		t.sources = make(map[any]ir.Priority)
	}
	t.sources[key] = p
	return t.recompute()
}

func (t *Thread) clearSource(key any) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.sources[key]; !ok {
		return false
	}
	delete(t.sources, key)
	return t.recompute()
}

// HoldsSources reports whether any protocol currently raises the thread.
func (t *Thread) HoldsSources() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sources) > 0
}

// SetRealPriority changes the base priority and returns the previous
// effective priority. A blocked thread is repositioned in its queue and the
// change is propagated along the inheritance chain. The caller must not
// hold any object lock.
func (t *Thread) SetRealPriority(p ir.Priority) ir.Priority {
	t.mu.Lock()
	old := t.CurrentPriority()
	t.real = p
	changed := t.recompute()
	t.mu.Unlock()

	if changed {
		propagate(t)
	}
	return old
}
