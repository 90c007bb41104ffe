// Package posix is the POSIX surface over the semaphore and message queue
// cores: named semaphores (sem_*) and message queues (mq_*).
//
// Calls follow the POSIX convention of a sentinel result plus an errno:
// functions return nil or -1 together with an Errno error. Core statuses
// are translated to errno values in exactly one place (errnoOf).
//
// Names are NFC normalized before lookup, so canonically equivalent names
// open the same object.
package posix
