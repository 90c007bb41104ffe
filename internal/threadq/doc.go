// Package threadq implements the blocking thread queue every kernel object
// is built on.
//
// A Thread is the control block of one execution context. The goroutine
// that runs a thread passes its *Thread explicitly to every directive; a
// blocked goroutine parks on its thread's wake channel until another
// thread, a watchdog timeout or a remote response unblocks it.
//
// A Queue orders blocked threads FIFO or by effective priority (lower
// value first, FIFO among equals). Each Queue is guarded by the Lock of
// the object that embeds it, and every queue method requires that lock to
// be held unless documented otherwise.
//
// # Priority
//
// A thread's effective priority is the most urgent of its real priority
// and its priority sources: the top waiter of each inheritance mutex it
// owns, the ceiling of each ceiling mutex it holds, and the ceiling it is
// raised to while waiting for an MrsP resource. When an effective priority
// changes under a queue lock the thread is recorded on the Lock, and
// Lock.Unlock repositions it in the queue it waits on and walks the
// inheritance chain with a bounded iterative walk. No two object locks are
// ever held at the same time; the lock order inside one critical section is
// object lock, then thread lock.
package threadq
