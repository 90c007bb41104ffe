package threadq

import (
	"sort"
	"sync/atomic"

	"github.com/gammazero/deque"

	"github.com/roach88/synccore/internal/ir"
	"github.com/roach88/synccore/internal/watchdog"
)

// Discipline selects the wait order of a queue.
type Discipline int

const (
	// FIFO wakes threads in blocking order.
	FIFO Discipline = iota
	// Priority wakes the most urgent thread first, FIFO among equals.
	Priority
)

func (d Discipline) String() string {
	if d == Priority {
		return "priority"
	}
	return "fifo"
}

// level holds the waiters that share one ordering key.
type level struct {
	key     ir.Priority
	waiters deque.Deque[*Thread]
}

// Queue is an ordered set of blocked threads.
type Queue struct {
	lock       *Lock
	discipline Discipline
	clock      *watchdog.Clock

	// inherit makes the owner's effective priority follow the top waiter.
	inherit bool
	owner   atomic.Pointer[Thread]

	levels []*level
	count  int
}

// New creates a queue guarded by lock. Timeouts are armed on clock; a nil
// clock makes every wait unbounded.
func New(lock *Lock, discipline Discipline, clock *watchdog.Clock) *Queue {
	return &Queue{
		lock:       lock,
		discipline: discipline,
		clock:      clock,
	}
}

// Lock returns the lock guarding the queue.
func (q *Queue) Lock() *Lock {
	return q.lock
}

// Discipline returns the wait order of the queue.
func (q *Queue) Discipline() Discipline {
	return q.discipline
}

// SetInherit enables priority inheritance from waiters to the owner.
func (q *Queue) SetInherit(on bool) {
	q.inherit = on
}

// Len returns the number of blocked threads.
func (q *Queue) Len() int {
	return q.count
}

// Owner returns the thread that owns the object the queue belongs to.
func (q *Queue) Owner() *Thread {
	return q.owner.Load()
}

// SetOwner records the owner of the object. With inheritance enabled the
// previous owner loses the boost from this queue and the new owner gains
// the priority of the current top waiter.
func (q *Queue) SetOwner(t *Thread) {
	old := q.owner.Swap(t)
	if !q.inherit {
		return
	}
	if old != nil && old.clearSource(q) {
		q.lock.deferUpdate(old)
	}
	q.updateOwner()
}

// updateOwner refreshes the inherited priority of the owner.
func (q *Queue) updateOwner() {
	if !q.inherit {
		return
	}
	o := q.owner.Load()
	if o == nil {
		return
	}
	var changed bool
	if top := q.First(); top != nil {
		changed = o.setSource(q, top.CurrentPriority())
	} else {
		changed = o.clearSource(q)
	}
	if changed {
		q.lock.deferUpdate(o)
	}
}

// Boost raises t to at least p while key is held. Used by the ceiling
// protocols; the change is applied when the lock is released.
func (q *Queue) Boost(t *Thread, key any, p ir.Priority) {
	if t.setSource(key, p) {
		q.lock.deferUpdate(t)
	}
}

// Unboost removes the priority source key from t.
func (q *Queue) Unboost(t *Thread, key any) {
	if t.clearSource(key) {
		q.lock.deferUpdate(t)
	}
}

// EnqueueContext describes one wait.
type EnqueueContext struct {
	// Timeout in ticks; ir.NoTimeout waits forever.
	Timeout ir.Interval

	// DetectDeadlock rejects the wait if the ownership chain of the queue
	// leads back to the waiting thread.
	DetectDeadlock bool
}

// Enqueue blocks t on the queue. The caller holds the lock; Enqueue
// releases it before parking and does not reacquire it. The returned status
// is chosen by whoever unblocks the thread: ir.StatusTimeout when the
// timeout expired, ir.StatusDeadlock when the wait was rejected.
func (q *Queue) Enqueue(t *Thread, ctx EnqueueContext) ir.Status {
	if ctx.DetectDeadlock && q.wouldDeadlock(t) {
		q.lock.Unlock()
		return ir.StatusDeadlock
	}

	gen := t.waitGen.Add(1)
	t.state.Store(int32(StateBlocked))
	q.insert(t)
	if ctx.Timeout != ir.NoTimeout && q.clock != nil {
		t.timer = q.clock.Insert(ctx.Timeout, func() { q.expire(t, gen) })
	}
	q.updateOwner()
	q.lock.Unlock()

	if t.Wait.Queued != nil {
		t.Wait.Queued()
	}
	return <-t.wake
}

// expire resolves a timeout. If the thread was already removed by a
// surrender, flush or extraction, or is waiting in a later wait, nothing
// happens.
func (q *Queue) expire(t *Thread, gen uint64) {
	q.lock.Lock()
	if t.queue.Load() == q && t.waitGen.Load() == gen {
		t.timer = nil
		q.extract(t)
		t.release(ir.StatusTimeout, StateReadyAfterTimeout)
	}
	q.lock.Unlock()
}

// First returns the thread Dequeue would remove, without removing it.
func (q *Queue) First() *Thread {
	if len(q.levels) == 0 {
		return nil
	}
	return q.levels[0].waiters.Front()
}

// Dequeue removes the most urgent thread and returns it, or nil. The
// caller fills in its wait outputs and calls Unblock.
func (q *Queue) Dequeue() *Thread {
	t := q.First()
	if t == nil {
		return nil
	}
	q.extract(t)
	return t
}

// Extract removes t from the queue. Returns false if t is not on it.
func (q *Queue) Extract(t *Thread) bool {
	if t.queue.Load() != q {
		return false
	}
	q.extract(t)
	return true
}

// Find returns the first waiter, in wake order, that matches fn.
func (q *Queue) Find(fn func(*Thread) bool) *Thread {
	for _, lv := range q.levels {
		if i := lv.waiters.Index(fn); i >= 0 {
			return lv.waiters.At(i)
		}
	}
	return nil
}

// Each calls fn for every waiter in wake order.
func (q *Queue) Each(fn func(*Thread)) {
	for _, lv := range q.levels {
		for i := 0; i < lv.waiters.Len(); i++ {
			fn(lv.waiters.At(i))
		}
	}
}

// Flush removes every waiter and unblocks it with status. Returns the
// number of threads woken.
func (q *Queue) Flush(status ir.Status) int {
	n := 0
	for t := q.Dequeue(); t != nil; t = q.Dequeue() {
		t.Unblock(status)
		n++
	}
	return n
}

// ExtractThread removes t from whatever queue it waits on and unblocks it
// with status. Takes the queue lock itself; the caller must not hold any
// object lock. Returns false if t was not blocked.
func ExtractThread(t *Thread, status ir.Status) bool {
	for {
		q := t.queue.Load()
		if q == nil {
			return false
		}
		q.lock.Lock()
		if t.queue.Load() != q {
			// Moved between the load and the lock; retry.
			q.lock.Unlock()
			continue
		}
		q.extract(t)
		t.Unblock(status)
		q.lock.Unlock()
		return true
	}
}

// insert places t behind every waiter with the same key.
func (q *Queue) insert(t *Thread) {
	key := ir.Priority(0)
	if q.discipline == Priority {
		key = t.CurrentPriority()
	}
	i := sort.Search(len(q.levels), func(i int) bool { return q.levels[i].key >= key })
	if i == len(q.levels) || q.levels[i].key != key {
		q.levels = append(q.levels, nil)
		copy(q.levels[i+1:], q.levels[i:])
		q.levels[i] = &level{key: key}
	}
	t.key = key
	q.levels[i].waiters.PushBack(t)
	q.count++
	t.queue.Store(q)
}

// remove drops t from its level without touching owner state.
func (q *Queue) remove(t *Thread) {
	i := sort.Search(len(q.levels), func(i int) bool { return q.levels[i].key >= t.key })
	if i == len(q.levels) || q.levels[i].key != t.key {
		panic("threadq: thread not found in its priority level")
	}
	lv := q.levels[i]
	j := lv.waiters.Index(func(w *Thread) bool { return w == t })
	if j < 0 {
		panic("threadq: thread not found in its priority level")
	}
	lv.waiters.Remove(j)
	if lv.waiters.Len() == 0 {
		q.levels = append(q.levels[:i], q.levels[i+1:]...)
	}
	q.count--
	t.queue.Store(nil)
}

// extract removes t and refreshes the owner's inherited priority.
func (q *Queue) extract(t *Thread) {
	q.remove(t)
	q.updateOwner()
}

// reposition moves t to the tail of the level matching its current
// priority.
func (q *Queue) reposition(t *Thread) {
	if q.discipline != Priority {
		return
	}
	q.remove(t)
	q.insert(t)
}
