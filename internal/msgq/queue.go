package msgq

import (
	"sort"

	"github.com/gammazero/deque"

	"github.com/roach88/synccore/internal/ir"
	"github.com/roach88/synccore/internal/threadq"
	"github.com/roach88/synccore/internal/watchdog"
)

type message struct {
	buf      []byte
	size     int
	priority uint32
}

// Config describes a queue at creation.
type Config struct {
	MaxPending int
	MaxSize    int

	// Discipline orders blocked senders and receivers.
	Discipline threadq.Discipline
	Clock      *watchdog.Clock
}

// Queue is one message queue control block.
type Queue struct {
	ID ir.ObjectID

	lock      threadq.Lock
	receivers *threadq.Queue
	senders   *threadq.Queue

	maxPending int
	maxSize    int

	pending []*message
	free    deque.Deque[*message]
	closed  bool
}

// New allocates all buffers of the queue up front.
func New(id ir.ObjectID, cfg Config) (*Queue, ir.Status) {
	if cfg.MaxPending <= 0 {
		return nil, ir.StatusInvalidNumber
	}
	if cfg.MaxSize <= 0 {
		return nil, ir.StatusInvalidSize
	}
	q := &Queue{
		ID:         id,
		maxPending: cfg.MaxPending,
		maxSize:    cfg.MaxSize,
		pending:    make([]*message, 0, cfg.MaxPending),
	}
	q.receivers = threadq.New(&q.lock, cfg.Discipline, cfg.Clock)
	q.senders = threadq.New(&q.lock, cfg.Discipline, cfg.Clock)
	for i := 0; i < cfg.MaxPending; i++ {
		q.free.PushBack(&message{buf: make([]byte, cfg.MaxSize)})
	}
	return q, ir.StatusSuccessful
}

// MaxPending returns the capacity in messages.
func (q *Queue) MaxPending() int {
	return q.maxPending
}

// MaxSize returns the largest message the queue accepts.
func (q *Queue) MaxSize() int {
	return q.maxSize
}

// Pending returns the number of queued messages.
func (q *Queue) Pending() int {
	q.lock.Lock()
	defer q.lock.Unlock()
	return len(q.pending)
}

// WaitingReceivers returns the number of blocked receivers.
func (q *Queue) WaitingReceivers() int {
	q.lock.Lock()
	defer q.lock.Unlock()
	return q.receivers.Len()
}

// WaitingSenders returns the number of blocked senders.
func (q *Queue) WaitingSenders() int {
	q.lock.Lock()
	defer q.lock.Unlock()
	return q.senders.Len()
}

// Submit sends buf with priority. The message goes straight to a blocked
// receiver if there is one; otherwise it is queued, or with a full queue
// the sender blocks (wait) or gets ir.StatusUnsatisfied.
func (q *Queue) Submit(executing *threadq.Thread, buf []byte, priority uint32, wait bool, timeout ir.Interval) ir.Status {
	if len(buf) > q.maxSize {
		return ir.StatusInvalidSize
	}

	q.lock.Lock()
	if q.closed {
		q.lock.Unlock()
		return ir.StatusInvalidID
	}

	if r := q.receivers.Dequeue(); r != nil {
		r.Wait.Size = copy(r.Wait.Buffer, buf)
		r.Wait.MessagePriority = priority
		r.Unblock(ir.StatusSuccessful)
		q.lock.Unlock()
		return ir.StatusSuccessful
	}

	if q.free.Len() > 0 {
		q.store(buf, priority)
		q.lock.Unlock()
		return ir.StatusSuccessful
	}

	if !wait {
		q.lock.Unlock()
		return ir.StatusUnsatisfied
	}
	executing.Wait.ID = q.ID
	executing.Wait.Buffer = buf
	executing.Wait.Size = len(buf)
	executing.Wait.MessagePriority = priority
	return q.senders.Enqueue(executing, threadq.EnqueueContext{Timeout: timeout})
}

// Seize receives the most urgent message into buf, which must hold
// MaxSize bytes. Returns the message size and priority.
func (q *Queue) Seize(executing *threadq.Thread, buf []byte, wait bool, timeout ir.Interval) (int, uint32, ir.Status) {
	if len(buf) < q.maxSize {
		return 0, 0, ir.StatusInvalidSize
	}

	q.lock.Lock()
	if q.closed {
		q.lock.Unlock()
		return 0, 0, ir.StatusInvalidID
	}

	if len(q.pending) > 0 {
		m := q.pending[0]
		copy(q.pending, q.pending[1:])
		q.pending[len(q.pending)-1] = nil
		q.pending = q.pending[:len(q.pending)-1]

		n := copy(buf, m.buf[:m.size])
		prio := m.priority
		q.free.PushBack(m)

		// A buffer is free again: admit the first blocked sender.
		if s := q.senders.Dequeue(); s != nil {
			q.store(s.Wait.Buffer, s.Wait.MessagePriority)
			s.Unblock(ir.StatusSuccessful)
		}
		q.lock.Unlock()
		return n, prio, ir.StatusSuccessful
	}

	if !wait {
		q.lock.Unlock()
		return 0, 0, ir.StatusUnsatisfied
	}
	executing.Wait.ID = q.ID
	executing.Wait.Buffer = buf
	executing.Wait.Size = 0
	status := q.receivers.Enqueue(executing, threadq.EnqueueContext{Timeout: timeout})
	if status != ir.StatusSuccessful {
		return 0, 0, status
	}
	return executing.Wait.Size, executing.Wait.MessagePriority, status
}

// store copies a message into a free buffer and inserts it behind every
// pending message of equal or higher priority. The lock is held and a free
// buffer exists.
func (q *Queue) store(buf []byte, priority uint32) {
	m := q.free.PopFront()
	m.size = copy(m.buf, buf)
	m.priority = priority

	i := sort.Search(len(q.pending), func(i int) bool { return q.pending[i].priority < priority })
	q.pending = append(q.pending, nil)
	copy(q.pending[i+1:], q.pending[i:])
	q.pending[i] = m
}

// Flush discards every pending message and returns how many there were.
// Blocked senders are admitted into the freed buffers.
func (q *Queue) Flush() int {
	q.lock.Lock()
	defer q.lock.Unlock()

	n := len(q.pending)
	for _, m := range q.pending {
		q.free.PushBack(m)
	}
	q.pending = q.pending[:0]

	for q.free.Len() > 0 {
		s := q.senders.Dequeue()
		if s == nil {
			break
		}
		q.store(s.Wait.Buffer, s.Wait.MessagePriority)
		s.Unblock(ir.StatusSuccessful)
	}
	return n
}

// Close destroys the queue: every blocked sender and receiver wakes with
// status and later directives fail with ir.StatusInvalidID.
func (q *Queue) Close(status ir.Status) int {
	q.lock.Lock()
	defer q.lock.Unlock()

	if q.closed {
		return 0
	}
	q.closed = true
	q.pending = nil
	return q.receivers.Flush(status) + q.senders.Flush(status)
}
