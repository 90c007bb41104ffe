package sem

import (
	"github.com/roach88/synccore/internal/ir"
	"github.com/roach88/synccore/internal/threadq"
)

// Seize acquires one unit or the ownership of c for executing. With wait
// false an unavailable semaphore yields ir.StatusUnsatisfied; otherwise the
// thread blocks for at most timeout ticks (ir.NoTimeout blocks forever).
func (c *Control) Seize(executing *threadq.Thread, wait bool, timeout ir.Interval) ir.Status {
	c.lock.Lock()
	if c.deleted {
		c.lock.Unlock()
		return ir.StatusInvalidID
	}

	switch c.variant {
	case Counting, SimpleBinary:
		return c.seizeCounting(executing, wait, timeout)
	case MutexNoProtocol, MutexInherit:
		return c.seizeMutex(executing, wait, timeout)
	case MutexCeiling:
		return c.seizeCeiling(executing, wait, timeout)
	case MrsP:
		return c.seizeMrsP(executing, wait, timeout)
	}
	c.lock.Unlock()
	return ir.StatusInternalError
}

func (c *Control) seizeCounting(executing *threadq.Thread, wait bool, timeout ir.Interval) ir.Status {
	if c.count > 0 {
		c.count--
		c.lock.Unlock()
		return ir.StatusSuccessful
	}
	if !wait {
		c.lock.Unlock()
		return ir.StatusUnsatisfied
	}
	executing.Wait.ID = c.ID
	return c.queue.Enqueue(executing, threadq.EnqueueContext{Timeout: timeout})
}

func (c *Control) seizeMutex(executing *threadq.Thread, wait bool, timeout ir.Interval) ir.Status {
	switch c.queue.Owner() {
	case nil:
		c.queue.SetOwner(executing)
		c.nest = 1
		c.lock.Unlock()
		return ir.StatusSuccessful
	case executing:
		c.nest++
		c.lock.Unlock()
		return ir.StatusSuccessful
	}
	if !wait {
		c.lock.Unlock()
		return ir.StatusUnsatisfied
	}
	executing.Wait.ID = c.ID
	return c.queue.Enqueue(executing, threadq.EnqueueContext{
		Timeout:        timeout,
		DetectDeadlock: true,
	})
}

func (c *Control) seizeCeiling(executing *threadq.Thread, wait bool, timeout ir.Interval) ir.Status {
	owner := c.queue.Owner()
	if owner == executing {
		c.nest++
		c.lock.Unlock()
		return ir.StatusSuccessful
	}
	ceiling := c.ceilings[0]
	if violates(executing, ceiling) {
		c.lock.Unlock()
		return ir.StatusNotAllowed
	}
	if owner == nil {
		c.queue.Boost(executing, c, ceiling)
		c.queue.SetOwner(executing)
		c.nest = 1
		c.lock.Unlock()
		return ir.StatusSuccessful
	}
	if !wait {
		c.lock.Unlock()
		return ir.StatusUnsatisfied
	}
	executing.Wait.ID = c.ID
	return c.queue.Enqueue(executing, threadq.EnqueueContext{
		Timeout:        timeout,
		DetectDeadlock: true,
	})
}

// seizeMrsP differs from the ceiling mutex in three ways: the ceiling
// depends on the processor of the thread, nested seizes are rejected, and
// a waiter is raised to the ceiling while it waits.
func (c *Control) seizeMrsP(executing *threadq.Thread, wait bool, timeout ir.Interval) ir.Status {
	ceiling, status := c.ceilingFor(executing)
	if status != ir.StatusSuccessful {
		c.lock.Unlock()
		return status
	}
	if violates(executing, ceiling) {
		c.lock.Unlock()
		return ir.StatusNotAllowed
	}

	switch c.queue.Owner() {
	case nil:
		c.queue.Boost(executing, c, ceiling)
		c.queue.SetOwner(executing)
		c.nest = 1
		c.lock.Unlock()
		return ir.StatusSuccessful
	case executing:
		c.lock.Unlock()
		return ir.StatusUnsatisfied
	}
	if !wait {
		c.lock.Unlock()
		return ir.StatusUnsatisfied
	}

	executing.Wait.ID = c.ID
	c.queue.Boost(executing, waitKey{c}, ceiling)
	status = c.queue.Enqueue(executing, threadq.EnqueueContext{
		Timeout:        timeout,
		DetectDeadlock: true,
	})

	c.lock.Lock()
	c.queue.Unboost(executing, waitKey{c})
	c.lock.Unlock()
	return status
}
