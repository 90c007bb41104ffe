package threadq

// MaxChainDepth bounds the inheritance chain walk. Chains deeper than this
// are left partially updated; the missing boosts are applied the next time
// a thread in the tail of the chain changes priority.
const MaxChainDepth = 64

// propagate applies a priority change of t: if t is blocked it is moved to
// its new position, and if the queue passes priority to its owner the
// owner is updated in turn. Each step holds exactly one queue lock.
func propagate(t *Thread) {
	for depth := 0; t != nil && depth < MaxChainDepth; depth++ {
		q := t.queue.Load()
		if q == nil {
			return
		}
		q.lock.mu.Lock()
		if t.queue.Load() != q {
			// Woken or moved meanwhile; its new queue saw the current
			// priority on insert.
			q.lock.mu.Unlock()
			return
		}
		q.reposition(t)

		var next *Thread
		if o := q.owner.Load(); o != nil && q.inherit {
			top := q.First()
			if o.setSource(q, top.CurrentPriority()) {
				next = o
			}
		}
		q.lock.mu.Unlock()
		t = next
	}
}

// wouldDeadlock reports whether t blocking on q closes an ownership cycle.
// The walk reads owners and wait queues without locks; a chain that changes
// during the walk can only produce a stale answer for a wait that would
// have been resolved by the change anyway.
func (q *Queue) wouldDeadlock(t *Thread) bool {
	owner := q.owner.Load()
	for depth := 0; owner != nil && depth < MaxChainDepth; depth++ {
		if owner == t {
			return true
		}
		next := owner.queue.Load()
		if next == nil {
			return false
		}
		owner = next.owner.Load()
	}
	return false
}
