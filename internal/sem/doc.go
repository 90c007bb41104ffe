// Package sem implements the semaphore variants that share one object id
// space: counting, simple binary, and the no protocol, priority
// inheritance, priority ceiling and MrsP mutexes.
//
// Control is a tagged union: the variant field selects the algorithm, and
// Seize and Surrender switch on it. All state of a control block is guarded
// by its threadq.Lock; every directive either completes inside one critical
// section or blocks through threadq.Queue.Enqueue, which releases the lock.
package sem
