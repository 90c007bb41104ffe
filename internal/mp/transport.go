package mp

import (
	"errors"
	"fmt"
	"sync"
)

// Transport moves encoded frames between nodes. Send must not block on the
// receiver: frames are queued in the destination's inbox.
type Transport interface {
	Send(node uint32, frame []byte) error
	Close() error
}

// TransportError reports a frame that could not be delivered.
type TransportError struct {
	// Node is the destination node.
	Node uint32

	// Op is the transport operation, e.g. "send" or "dial".
	Op string

	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("mp %s node %d: %v", e.Op, e.Node, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransportError returns true if err is a delivery failure.
// Uses errors.As to handle wrapped errors.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// ErrUnknownNode is wrapped by TransportError when no route to the
// destination exists.
var ErrUnknownNode = errors.New("unknown node")

// ErrClosed is returned by a transport after Close.
var ErrClosed = errors.New("transport closed")

// Network is an in-process interconnect. Every attached node gets a
// Transport that delivers into the inboxes of the other nodes.
type Network struct {
	mu      sync.RWMutex
	inboxes map[uint32]*Inbox

	// Drop, if set, is consulted for every frame; returning true discards
	// it silently. Used to simulate lost packets.
	Drop func(from, to uint32, frame []byte) bool
}

// NewNetwork creates an empty network.
func NewNetwork() *Network {
	return &Network{inboxes: make(map[uint32]*Inbox)}
}

// Attach registers node's inbox and returns the node's transport.
func (n *Network) Attach(node uint32, inbox *Inbox) Transport {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.inboxes[node] = inbox
	return &memoryTransport{net: n, node: node}
}

// Detach removes node from the network; frames sent to it fail.
func (n *Network) Detach(node uint32) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.inboxes, node)
}

func (n *Network) deliver(from, to uint32, frame []byte) error {
	n.mu.RLock()
	in, ok := n.inboxes[to]
	drop := n.Drop
	n.mu.RUnlock()

	if !ok {
		return &TransportError{Node: to, Op: "send", Err: ErrUnknownNode}
	}
	if drop != nil && drop(from, to, frame) {
		return nil
	}
	// The sender may reuse its buffer once Send returns.
	buf := make([]byte, len(frame))
	copy(buf, frame)
	if !in.Enqueue(buf) {
		return &TransportError{Node: to, Op: "send", Err: ErrClosed}
	}
	return nil
}

type memoryTransport struct {
	net    *Network
	node   uint32
	mu     sync.Mutex
	closed bool
}

func (t *memoryTransport) Send(node uint32, frame []byte) error {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return &TransportError{Node: node, Op: "send", Err: ErrClosed}
	}
	return t.net.deliver(t.node, node, frame)
}

func (t *memoryTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	t.net.Detach(t.node)
	return nil
}
