package mp

import (
	"sync"

	"github.com/gammazero/deque"
)

// Inbox is the FIFO of frames waiting for a node's receive server.
//
// Transports enqueue from their own goroutines; the receive server drains
// it with TryDequeue and waits on Wait. The signal channel has a buffer of
// one, so bursts of arrivals coalesce into one wakeup.
type Inbox struct {
	mu     sync.Mutex
	frames deque.Deque[[]byte]
	closed bool
	signal chan struct{}
}

// NewInbox creates an empty inbox.
func NewInbox() *Inbox {
	return &Inbox{signal: make(chan struct{}, 1)}
}

// Enqueue appends a frame. Returns false if the inbox is closed.
func (in *Inbox) Enqueue(frame []byte) bool {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.closed {
		return false
	}
	in.frames.PushBack(frame)

	select {
	case in.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the oldest frame without blocking.
func (in *Inbox) TryDequeue() ([]byte, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.frames.Len() == 0 {
		return nil, false
	}
	return in.frames.PopFront(), true
}

// Wait returns a channel that signals when frames may be available. It is
// closed by Close.
func (in *Inbox) Wait() <-chan struct{} {
	return in.signal
}

// Len returns the number of queued frames.
func (in *Inbox) Len() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.frames.Len()
}

// Close rejects further frames and wakes the receive server.
func (in *Inbox) Close() {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.closed {
		return
	}
	in.closed = true
	close(in.signal)
}

// Closed reports whether Close was called.
func (in *Inbox) Closed() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.closed
}
