package sem

import (
	"github.com/roach88/synccore/internal/ir"
	"github.com/roach88/synccore/internal/threadq"
)

// Surrender releases one unit or one nesting level of c.
//
// A counting semaphore hands the unit directly to the most urgent waiter;
// the count only grows when nobody waits, and growing it past the maximum
// yields ir.StatusUnsatisfied. A simple binary semaphore saturates at one.
// A mutex may only be surrendered by its owner; ownership passes to the
// most urgent waiter once the nesting level drops to zero.
func (c *Control) Surrender(executing *threadq.Thread) ir.Status {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.deleted {
		return ir.StatusInvalidID
	}

	switch c.variant {
	case Counting, SimpleBinary:
		if t := c.queue.Dequeue(); t != nil {
			t.Unblock(ir.StatusSuccessful)
			return ir.StatusSuccessful
		}
		if c.count >= c.maximum {
			if c.variant == SimpleBinary {
				return ir.StatusSuccessful
			}
			return ir.StatusUnsatisfied
		}
		c.count++
		return ir.StatusSuccessful
	}

	if c.queue.Owner() != executing {
		return ir.StatusNotOwnerOfResource
	}
	c.nest--
	if c.nest > 0 {
		return ir.StatusSuccessful
	}

	if c.variant.HasCeiling() {
		c.queue.Unboost(executing, c)
	}
	c.queue.SetOwner(nil)

	next := c.queue.Dequeue()
	if next == nil {
		return ir.StatusSuccessful
	}
	c.transfer(next)
	next.Unblock(ir.StatusSuccessful)
	return ir.StatusSuccessful
}

// transfer makes t, just removed from the queue, the owner. The lock is
// held.
func (c *Control) transfer(t *threadq.Thread) {
	if c.variant.HasCeiling() {
		ceiling, status := c.ceilingFor(t)
		if status == ir.StatusSuccessful {
			c.queue.Boost(t, c, ceiling)
		}
	}
	c.queue.SetOwner(t)
	c.nest = 1
}

// Flush unblocks every waiter with status. Flushing a mutex that uses a
// locking protocol is not defined.
func (c *Control) Flush(status ir.Status) (int, ir.Status) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.deleted {
		return 0, ir.StatusInvalidID
	}
	if c.variant != Counting && c.variant != SimpleBinary && c.variant != MutexNoProtocol {
		return 0, ir.StatusNotDefined
	}
	return c.queue.Flush(status), ir.StatusSuccessful
}

// Delete marks the control block deleted and wakes every waiter with
// ir.StatusObjectWasDeleted. An owned mutex cannot be deleted.
func (c *Control) Delete() (int, ir.Status) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.deleted {
		return 0, ir.StatusInvalidID
	}
	if c.variant.IsMutex() && c.queue.Owner() != nil {
		return 0, ir.StatusResourceInUse
	}
	c.deleted = true
	return c.queue.Flush(ir.StatusObjectWasDeleted), ir.StatusSuccessful
}

// SetPriority changes the ceiling used on processor and returns the
// previous one. ir.CurrentPriority only queries. The owner of a held mutex
// is raised to a more urgent new ceiling immediately.
func (c *Control) SetPriority(processor int, priority ir.Priority) (ir.Priority, ir.Status) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.deleted {
		return 0, ir.StatusInvalidID
	}
	if !c.variant.HasCeiling() {
		return 0, ir.StatusNotDefined
	}
	if processor < 0 || processor >= len(c.ceilings) {
		return 0, ir.StatusInvalidNumber
	}
	old := c.ceilings[processor]
	if priority == ir.CurrentPriority {
		return old, ir.StatusSuccessful
	}
	c.ceilings[processor] = priority

	if owner := c.queue.Owner(); owner != nil {
		if ceiling, status := c.ceilingFor(owner); status == ir.StatusSuccessful {
			c.queue.Boost(owner, c, ceiling)
		}
	}
	return old, ir.StatusSuccessful
}

// Extract removes a specific waiter, e.g. the proxy of a remote thread
// whose request timed out on its own node. Reports whether t was waiting.
func (c *Control) Extract(t *threadq.Thread, status ir.Status) bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	if !c.queue.Extract(t) {
		return false
	}
	t.Unblock(status)
	return true
}
