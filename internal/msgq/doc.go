// Package msgq implements the bounded message queue engine.
//
// A Queue owns maxPending buffers of maxSize bytes. Pending messages are
// kept in priority order: a higher message priority is delivered first and
// equal priorities are delivered in send order. A sender that finds a
// receiver already blocked copies the message straight into the receiver's
// buffer; a sender that finds the queue full blocks on the senders queue
// until a receive frees a buffer.
package msgq
