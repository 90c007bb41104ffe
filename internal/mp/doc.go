// Package mp implements the multiprocessing communications interface
// (MPCI) that carries remote object operations between nodes.
//
// # Roles
//
// Requester: SendRequest stamps a packet with the calling thread's id and
// priority, sends it to the owning node and blocks the thread on the
// remote-wait queue until the response arrives, the MPCI timeout expires or
// the thread is extracted.
//
// Responder: every node runs a receive server (MPCI.Run) that decodes
// arriving frames in order and hands each packet to the handler registered
// for its class. A handler performs the local directive, writes ReturnCode
// and any outputs, and answers with SendResponse. Directives that may block
// run on proxy threads so the receive server never waits.
//
// Process packets (announce create, announce delete, extract proxy) are
// one-way and are never answered.
//
// # Wire format
//
// Packets travel as fixed layouts of 32-bit words, one layout per class.
// The first ToConvert bytes are big-endian words; bytes after that are
// carried as-is (object names, whose four characters read the same on
// every node). Every layout fits in MinimumPacketSize, which is checked at
// compile time.
package mp
