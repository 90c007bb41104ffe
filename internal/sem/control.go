package sem

import (
	"github.com/roach88/synccore/internal/ir"
	"github.com/roach88/synccore/internal/threadq"
	"github.com/roach88/synccore/internal/watchdog"
)

// Variant selects the semaphore algorithm.
type Variant int

const (
	SimpleBinary Variant = iota
	Counting
	MutexInherit
	MutexCeiling
	MutexNoProtocol
	MrsP
)

var variantNames = [...]string{
	SimpleBinary:    "simple_binary",
	Counting:        "counting",
	MutexInherit:    "mutex_inherit",
	MutexCeiling:    "mutex_ceiling",
	MutexNoProtocol: "mutex_no_protocol",
	MrsP:            "mrsp",
}

func (v Variant) String() string {
	if int(v) < len(variantNames) {
		return variantNames[v]
	}
	return "unknown"
}

// IsMutex reports whether the variant has an owner.
func (v Variant) IsMutex() bool {
	switch v {
	case MutexInherit, MutexCeiling, MutexNoProtocol, MrsP:
		return true
	}
	return false
}

// HasCeiling reports whether the variant raises its owner to a ceiling.
func (v Variant) HasCeiling() bool {
	return v == MutexCeiling || v == MrsP
}

// MaximumCount is the default maximum of a counting semaphore.
const MaximumCount = ^uint32(0)

// Config describes a control block at creation.
type Config struct {
	Variant    Variant
	Discipline threadq.Discipline

	// Count is the initial count. For mutex variants a zero count creates
	// the mutex owned by InitialOwner.
	Count   uint32
	Maximum uint32

	// Ceiling is the priority ceiling of MutexCeiling. Ceilings holds one
	// ceiling per processor for MrsP.
	Ceiling  ir.Priority
	Ceilings []ir.Priority

	InitialOwner *threadq.Thread
	Clock        *watchdog.Clock
}

// Control is one semaphore control block.
type Control struct {
	ID   ir.ObjectID
	Name ir.Name

	variant Variant
	lock    threadq.Lock
	queue   *threadq.Queue

	count   uint32
	maximum uint32

	nest     uint32
	ceilings []ir.Priority

	deleted bool
}

// waitKey is the priority source of an MrsP waiter.
type waitKey struct{ c *Control }

// New creates a control block. Returns ir.StatusInvalidPriority if the
// initial owner of a ceiling mutex is less urgent than the ceiling.
func New(id ir.ObjectID, name ir.Name, cfg Config) (*Control, ir.Status) {
	c := &Control{
		ID:      id,
		Name:    name,
		variant: cfg.Variant,
		count:   cfg.Count,
		maximum: cfg.Maximum,
	}
	if c.maximum == 0 {
		c.maximum = MaximumCount
	}
	discipline := cfg.Discipline
	switch cfg.Variant {
	case SimpleBinary:
		if c.count > 1 {
			c.count = 1
		}
		c.maximum = 1
	case MutexInherit:
		discipline = threadq.Priority
	case MutexCeiling:
		discipline = threadq.Priority
		c.ceilings = []ir.Priority{cfg.Ceiling}
	case MrsP:
		discipline = threadq.Priority
		c.ceilings = append([]ir.Priority(nil), cfg.Ceilings...)
		if len(c.ceilings) == 0 {
			c.ceilings = []ir.Priority{cfg.Ceiling}
		}
	}
	c.queue = threadq.New(&c.lock, discipline, cfg.Clock)
	c.queue.SetInherit(cfg.Variant == MutexInherit)

	if cfg.Variant.IsMutex() && cfg.Count == 0 && cfg.InitialOwner != nil {
		owner := cfg.InitialOwner
		c.lock.Lock()
		defer c.lock.Unlock()
		if cfg.Variant.HasCeiling() {
			ceiling, status := c.ceilingFor(owner)
			if status != ir.StatusSuccessful {
				return nil, status
			}
			if violates(owner, ceiling) {
				return nil, ir.StatusInvalidPriority
			}
			c.queue.Boost(owner, c, ceiling)
		}
		c.queue.SetOwner(owner)
		c.nest = 1
	}
	return c, ir.StatusSuccessful
}

// Variant returns the algorithm of the control block.
func (c *Control) Variant() Variant {
	return c.variant
}

// Count returns the current count of a counting or binary semaphore; for
// mutexes it is 1 when free and 0 when owned.
func (c *Control) Count() uint32 {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.variant.IsMutex() {
		if c.queue.Owner() == nil {
			return 1
		}
		return 0
	}
	return c.count
}

// Owner returns the owning thread of a mutex, or nil.
func (c *Control) Owner() *threadq.Thread {
	return c.queue.Owner()
}

// NestLevel returns how many times the owner has seized the mutex.
func (c *Control) NestLevel() uint32 {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.nest
}

// Waiters returns the number of blocked threads.
func (c *Control) Waiters() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.queue.Len()
}

// Ceiling returns the ceiling configured for processor.
func (c *Control) Ceiling(processor int) (ir.Priority, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if !c.variant.HasCeiling() || processor < 0 || processor >= len(c.ceilings) {
		return 0, false
	}
	return c.ceilings[processor], true
}

// ceilingFor returns the ceiling that applies to t. The lock is held.
func (c *Control) ceilingFor(t *threadq.Thread) (ir.Priority, ir.Status) {
	if c.variant == MutexCeiling {
		return c.ceilings[0], ir.StatusSuccessful
	}
	if t.Processor < 0 || t.Processor >= len(c.ceilings) {
		return 0, ir.StatusInvalidNumber
	}
	return c.ceilings[t.Processor], ir.StatusSuccessful
}

// violates reports a ceiling violation: the thread is less urgent than
// the ceiling.
func violates(t *threadq.Thread, ceiling ir.Priority) bool {
	return ceiling.MoreUrgent(t.CurrentPriority())
}
