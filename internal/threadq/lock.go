package threadq

import "sync"

// Lock guards one kernel object and the queues embedded in it.
//
// Priority changes made while the lock is held are deferred and applied
// to the affected blocked threads by Unlock, after the lock is released.
type Lock struct {
	mu       sync.Mutex
	deferred []*Thread
}

// Lock acquires the object lock.
func (l *Lock) Lock() {
	l.mu.Lock()
}

// Unlock releases the object lock and then propagates every deferred
// priority change. The caller must not hold any other object lock.
func (l *Lock) Unlock() {
	pending := l.deferred
	l.deferred = nil
	l.mu.Unlock()

	for _, t := range pending {
		propagate(t)
	}
}

// deferUpdate schedules t for repositioning after Unlock.
func (l *Lock) deferUpdate(t *Thread) {
	for _, d := range l.deferred {
		if d == t {
			return
		}
	}
	l.deferred = append(l.deferred, t)
}
