package posix

import (
	"github.com/roach88/synccore/internal/ir"
	"github.com/roach88/synccore/internal/msgq"
	"github.com/roach88/synccore/internal/threadq"
)

// MQD is a message queue descriptor. -1 is the failure sentinel.
type MQD int

// MQAttr mirrors struct mq_attr.
type MQAttr struct {
	Flags   int
	MaxMsg  int
	MsgSize int
	CurMsgs int
}

// MessageQueue is a named queue. Several descriptors may refer to it.
type MessageQueue struct {
	ID   ir.ObjectID
	Name string

	core *msgq.Queue

	// Guarded by Manager.mu.
	openCount int
	linked    bool
}

type descriptor struct {
	mq    *MessageQueue
	oflag int
}

// MqOpen opens or creates the queue called name and returns a new
// descriptor. attr sizes a new queue; nil selects the defaults.
func (m *Manager) MqOpen(name string, oflag int, mode uint32, attr *MQAttr) (MQD, error) {
	key, err := lookupName(name)
	if err != nil {
		return -1, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	mq, ok := m.mqs[key]
	switch {
	case ok && oflag&(O_CREAT|O_EXCL) == O_CREAT|O_EXCL:
		return -1, EEXIST
	case !ok && oflag&O_CREAT == 0:
		return -1, ENOENT
	case !ok:
		mq, err = m.createQueue(key, attr)
		if err != nil {
			return -1, err
		}
	default:
		mq.openCount++
	}

	m.nextMQD++
	d := m.nextMQD
	m.mqds[d] = &descriptor{mq: mq, oflag: oflag &^ (O_CREAT | O_EXCL)}
	m.record(ir.Event{Kind: ir.EventOpen, Object: mq.ID, Detail: map[string]any{
		"name": key, "mqd": int64(d),
	}})
	return d, nil
}

// createQueue allocates a queue with one open reference. m.mu is held.
func (m *Manager) createQueue(key string, attr *MQAttr) (*MessageQueue, error) {
	maxMsg, msgSize := DefaultMaxMsg, DefaultMsgSize
	if attr != nil {
		if attr.MaxMsg <= 0 || attr.MsgSize <= 0 {
			return nil, EINVAL
		}
		maxMsg, msgSize = attr.MaxMsg, attr.MsgSize
	}

	id, status := m.mqTable.Reserve(0)
	if status != ir.StatusSuccessful {
		return nil, ENFILE
	}
	core, status := msgq.New(id, msgq.Config{
		MaxPending: maxMsg,
		MaxSize:    msgSize,
		Discipline: threadq.Priority,
		Clock:      m.cfg.Clock,
	})
	if status != ir.StatusSuccessful {
		m.mqTable.Free(id)
		return nil, EINVAL
	}
	mq := &MessageQueue{ID: id, Name: key, core: core, openCount: 1, linked: true}
	m.mqTable.Install(id, mq)
	m.mqs[key] = mq
	return mq, nil
}

// MqClose closes a descriptor. An unlinked queue is destroyed with its last
// descriptor.
func (m *Manager) MqClose(mqd MQD) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.mqds[mqd]
	if !ok {
		return EBADF
	}
	delete(m.mqds, mqd)
	d.mq.openCount--
	m.record(ir.Event{Kind: ir.EventClose, Object: d.mq.ID, Detail: map[string]any{"mqd": int64(mqd)}})
	if d.mq.openCount == 0 && !d.mq.linked {
		m.destroyQueue(d.mq)
	}
	return nil
}

// MqUnlink removes name. The queue lives on until its last descriptor is
// closed.
func (m *Manager) MqUnlink(name string) error {
	key, err := lookupName(name)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	mq, ok := m.mqs[key]
	if !ok {
		return ENOENT
	}
	delete(m.mqs, key)
	mq.linked = false
	m.record(ir.Event{Kind: ir.EventUnlink, Object: mq.ID})
	if mq.openCount == 0 {
		m.destroyQueue(mq)
	}
	return nil
}

// destroyQueue removes mq and wakes its blocked threads. m.mu is held.
func (m *Manager) destroyQueue(mq *MessageQueue) {
	m.mqTable.Remove(mq.ID)
	mq.core.Close(ir.StatusObjectWasDeleted)
}

func (m *Manager) descriptor(mqd MQD) (descriptor, int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.mqds[mqd]
	if !ok {
		return descriptor{}, 0, false
	}
	return *d, d.mq.openCount, true
}

// MqSend queues msg with prio, blocking on a full queue unless the
// descriptor is non-blocking.
func (m *Manager) MqSend(executing *threadq.Thread, mqd MQD, msg []byte, prio uint32) error {
	return m.send(executing, mqd, msg, prio, ir.NoTimeout, false)
}

// MqTimedSend is MqSend bounded by timeout ticks.
func (m *Manager) MqTimedSend(executing *threadq.Thread, mqd MQD, msg []byte, prio uint32, timeout ir.Interval) error {
	return m.send(executing, mqd, msg, prio, timeout, true)
}

func (m *Manager) send(executing *threadq.Thread, mqd MQD, msg []byte, prio uint32, timeout ir.Interval, timed bool) error {
	d, _, ok := m.descriptor(mqd)
	if !ok || d.oflag&O_ACCMODE == O_RDONLY {
		return EBADF
	}
	if len(msg) > d.mq.core.MaxSize() {
		return EMSGSIZE
	}
	if prio >= MQPrioMax {
		return EINVAL
	}
	if executing == nil {
		return EINVAL
	}
	wait := d.oflag&O_NONBLOCK == 0
	if timed && timeout == 0 {
		wait = false
	}
	status := d.mq.core.Submit(executing, msg, prio, wait, timeout)
	if timed && timeout == 0 && status == ir.StatusUnsatisfied && d.oflag&O_NONBLOCK == 0 {
		status = ir.StatusTimeout
	}
	m.record(ir.Event{Kind: ir.EventSend, Object: d.mq.ID, Thread: executing.ID, Status: status,
		Detail: map[string]any{"size": int64(len(msg)), "priority": int64(prio)}})
	return errnoOf(callSend, status)
}

// MqReceive takes the most urgent message into buf and returns its length
// and priority.
func (m *Manager) MqReceive(executing *threadq.Thread, mqd MQD, buf []byte) (int, uint32, error) {
	return m.receive(executing, mqd, buf, ir.NoTimeout, false)
}

// MqTimedReceive is MqReceive bounded by timeout ticks.
func (m *Manager) MqTimedReceive(executing *threadq.Thread, mqd MQD, buf []byte, timeout ir.Interval) (int, uint32, error) {
	return m.receive(executing, mqd, buf, timeout, true)
}

// receive checks, in order: the descriptor, its access mode, the buffer
// size and the open count. Only then does the core seize run.
func (m *Manager) receive(executing *threadq.Thread, mqd MQD, buf []byte, timeout ir.Interval, timed bool) (int, uint32, error) {
	d, openCount, ok := m.descriptor(mqd)
	if !ok {
		return -1, 0, EBADF
	}
	if d.oflag&O_ACCMODE == O_WRONLY {
		return -1, 0, EBADF
	}
	if len(buf) < d.mq.core.MaxSize() {
		return -1, 0, EMSGSIZE
	}
	if openCount == 0 {
		return -1, 0, EBADF
	}
	if executing == nil {
		return -1, 0, EINVAL
	}

	wait := d.oflag&O_NONBLOCK == 0
	if timed && timeout == 0 {
		wait = false
	}
	n, prio, status := d.mq.core.Seize(executing, buf, wait, timeout)
	if timed && timeout == 0 && status == ir.StatusUnsatisfied && d.oflag&O_NONBLOCK == 0 {
		status = ir.StatusTimeout
	}
	m.record(ir.Event{Kind: ir.EventReceive, Object: d.mq.ID, Thread: executing.ID, Status: status,
		Detail: map[string]any{"size": int64(n), "priority": int64(prio)}})
	if err := errnoOf(callReceive, status); err != nil {
		return -1, 0, err
	}
	return n, prio, nil
}

// MqGetAttr returns the attributes of the queue behind mqd.
func (m *Manager) MqGetAttr(mqd MQD) (MQAttr, error) {
	d, _, ok := m.descriptor(mqd)
	if !ok {
		return MQAttr{}, EBADF
	}
	return MQAttr{
		Flags:   d.oflag & O_NONBLOCK,
		MaxMsg:  d.mq.core.MaxPending(),
		MsgSize: d.mq.core.MaxSize(),
		CurMsgs: d.mq.core.Pending(),
	}, nil
}

// MqSetAttr changes the O_NONBLOCK flag of mqd and returns the previous
// attributes. Every other field of attr is ignored.
func (m *Manager) MqSetAttr(mqd MQD, attr MQAttr) (MQAttr, error) {
	old, err := m.MqGetAttr(mqd)
	if err != nil {
		return MQAttr{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.mqds[mqd]
	if !ok {
		return MQAttr{}, EBADF
	}
	d.oflag = d.oflag&^O_NONBLOCK | attr.Flags&O_NONBLOCK
	return old, nil
}
