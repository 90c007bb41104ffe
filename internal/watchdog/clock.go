package watchdog

import (
	"container/heap"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/synccore/internal/ir"
)

// Timer is one armed timeout.
type Timer struct {
	deadline uint64
	seq      uint64
	fn       func()
	index    int // position in the heap, -1 once fired or cancelled
	clock    *Clock
}

// Clock is the tick counter and timer set of one node.
//
// Thread-safety: all methods are safe for concurrent use.
type Clock struct {
	now atomic.Uint64

	mu     sync.Mutex
	timers timerHeap
	seq    uint64
}

// New creates a clock at tick 0 with no timers.
func New() *Clock {
	return &Clock{}
}

// Now returns the number of ticks since the clock was created.
func (c *Clock) Now() uint64 {
	return c.now.Load()
}

// Insert arms a timer that calls fn after ticks have elapsed.
// A zero interval fires on the next tick.
func (c *Clock) Insert(ticks ir.Interval, fn func()) *Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ticks == 0 {
		ticks = 1
	}
	c.seq++
	t := &Timer{
		deadline: c.now.Load() + uint64(ticks),
		seq:      c.seq,
		fn:       fn,
		clock:    c,
	}
	heap.Push(&c.timers, t)
	return t
}

// Cancel disarms the timer. It returns false if the timer already fired
// or was cancelled before.
func (t *Timer) Cancel() bool {
	if t == nil {
		return false
	}
	c := t.clock
	c.mu.Lock()
	defer c.mu.Unlock()

	if t.index < 0 {
		return false
	}
	heap.Remove(&c.timers, t.index)
	return true
}

// Deadline returns the tick at which the timer fires.
func (t *Timer) Deadline() uint64 {
	return t.deadline
}

// Tick advances the clock by one tick and fires every timer that is due.
// Returns the number of timers fired.
func (c *Clock) Tick() int {
	c.mu.Lock()
	now := c.now.Add(1)
	var due []*Timer
	for c.timers.Len() > 0 && c.timers[0].deadline <= now {
		due = append(due, heap.Pop(&c.timers).(*Timer))
	}
	c.mu.Unlock()

	for _, t := range due {
		t.fn()
	}
	return len(due)
}

// Advance calls Tick n times.
func (c *Clock) Advance(n uint64) int {
	fired := 0
	for i := uint64(0); i < n; i++ {
		fired += c.Tick()
	}
	return fired
}

// Pending returns the number of armed timers.
func (c *Clock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timers.Len()
}

// Run ticks the clock ticksPerSecond times per second until ctx is done.
func (c *Clock) Run(ctx context.Context, ticksPerSecond int) error {
	if ticksPerSecond <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}
	ticker := time.NewTicker(time.Second / time.Duration(ticksPerSecond))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.Tick()
		}
	}
}

// timerHeap orders timers by deadline, then by arming order.
type timerHeap []*Timer

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].deadline != h[j].deadline {
		return h[i].deadline < h[j].deadline
	}
	return h[i].seq < h[j].seq
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*Timer)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}
