// Package task implements the task manager: the control blocks of the
// threads that call into the kernel, plus the directives other nodes reach
// through MP task and signal packets.
//
// A task is a threadq.Thread plus manager state (started, suspended,
// signal handler and pending signals). The kernel does not schedule: each
// started task runs its entry function on its own goroutine and passes
// Task.Thread as the executing thread to blocking directives. Suspension is
// cooperative; a suspended task stops at its next Park call.
package task
