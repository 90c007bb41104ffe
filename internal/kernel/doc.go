// Package kernel composes the managers of a node and runs nodes together.
//
// A Node owns one watchdog clock, one global object table and the task,
// semaphore and POSIX managers, all sharing the node's MPCI when the
// system has more than one node. Node.Run drives the MPCI receive server
// and the tick clock until its context ends.
//
// A Cluster builds every node of a configuration in one process, connected
// by an in-memory mp.Network. Separate processes use NewNode with the TCP
// transport instead.
package kernel
