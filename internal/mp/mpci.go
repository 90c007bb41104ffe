package mp

import (
	"context"
	"log/slog"
	"sync"

	"github.com/roach88/synccore/internal/ir"
	"github.com/roach88/synccore/internal/threadq"
	"github.com/roach88/synccore/internal/watchdog"
)

// AllNodes addresses a process packet to every other node.
const AllNodes uint32 = 0

// DefaultTimeout is the MPCI timeout in ticks used when Config.Timeout is
// zero.
const DefaultTimeout ir.Interval = 100

// Direction tells a Tracer which way a packet travelled.
type Direction string

const (
	DirectionSend    Direction = "send"
	DirectionReceive Direction = "receive"
)

// Tracer observes every packet that leaves or enters the node. Outgoing
// packets are traced before they are handed to the transport.
type Tracer interface {
	TracePacket(dir Direction, peer uint32, p *ir.Packet, frame []byte)
}

// Handlers are the per-class callbacks of a node.
type Handlers struct {
	// Process handles a request or process packet. It owns p and must
	// either answer with SendResponse or return it with FreePacket.
	Process func(p *ir.Packet)

	// Abandon is called on the requesting node when a request of this
	// class ends without a response (MPCI timeout or extraction). p is the
	// request packet; it is freed after Abandon returns.
	Abandon func(executing *threadq.Thread, p *ir.Packet, status ir.Status)
}

// Config describes one node's MPCI.
type Config struct {
	// Node is the local node number, 1..Nodes.
	Node uint32

	// Nodes is the number of nodes in the system.
	Nodes uint32

	// MaximumPackets sizes the packet pool.
	MaximumPackets int

	// Timeout bounds how long a requester waits for a response.
	Timeout ir.Interval

	Clock  *watchdog.Clock
	Logger *slog.Logger
	Tracer Tracer
}

// MPCI is the per-node endpoint of the multiprocessing protocol.
type MPCI struct {
	cfg       Config
	logger    *slog.Logger
	transport Transport
	inbox     *Inbox
	pool      *Pool

	// remote holds threads waiting for a response. FIFO; responses are
	// matched by thread id, not position.
	lock   threadq.Lock
	remote *threadq.Queue

	// sending holds requesters whose frame is being handed to the
	// transport, so a response may arrive before they are queued. Guarded
	// by lock.
	sending map[ir.ObjectID]*inflight

	server *threadq.Thread

	mu       sync.Mutex
	handlers map[ir.PacketClass]Handlers
	proxies  map[ir.ObjectID]*proxy
}

// inflight is a request whose requester is not on the remote-wait queue
// yet. A response that arrives meanwhile is recorded in it.
type inflight struct {
	thread   *threadq.Thread
	answered bool
	status   ir.Status
}

// New creates the MPCI of a node. Frames for this node arrive in inbox;
// transport carries frames to other nodes.
func New(cfg Config, transport Transport, inbox *Inbox) *MPCI {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaximumPackets <= 0 {
		cfg.MaximumPackets = 16
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := &MPCI{
		cfg:       cfg,
		logger:    logger.With("node", cfg.Node),
		transport: transport,
		inbox:     inbox,
		pool:      NewPool(cfg.MaximumPackets),
		handlers:  make(map[ir.PacketClass]Handlers),
		proxies:   make(map[ir.ObjectID]*proxy),
		sending:   make(map[ir.ObjectID]*inflight),
	}
	m.remote = threadq.New(&m.lock, threadq.FIFO, cfg.Clock)
	m.server = threadq.NewThread(
		ir.BuildID(ir.APIInternal, ir.ClassInternalThreads, cfg.Node, 1),
		ir.MustName("MPsv"), ir.MinimumPriority, 0)
	return m
}

// Node returns the local node number.
func (m *MPCI) Node() uint32 {
	return m.cfg.Node
}

// Nodes returns the number of nodes in the system.
func (m *MPCI) Nodes() uint32 {
	return m.cfg.Nodes
}

// ServerThread returns the control block of the receive server. Handlers
// that perform non-blocking directives on behalf of a remote thread use it
// as the executing thread.
func (m *MPCI) ServerThread() *threadq.Thread {
	return m.server
}

// Register installs the handlers of a packet class, replacing any earlier
// registration.
func (m *MPCI) Register(class ir.PacketClass, h Handlers) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[class] = h
}

func (m *MPCI) handlersFor(class ir.PacketClass) (Handlers, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.handlers[class]
	return h, ok
}

// GetPacket takes a cleared packet from the pool. Returns
// ir.StatusNoMemory when the pool is exhausted.
func (m *MPCI) GetPacket() (*ir.Packet, ir.Status) {
	p, status := m.pool.Get()
	if status != ir.StatusSuccessful {
		m.logger.Warn("mp packet pool exhausted", "size", m.pool.Size())
	}
	return p, status
}

// FreePacket returns p to the pool.
func (m *MPCI) FreePacket(p *ir.Packet) {
	m.pool.Put(p)
}

// PoolAvailable returns the number of free packets.
func (m *MPCI) PoolAvailable() int {
	return m.pool.Available()
}

// Waiting returns the number of threads waiting for a response.
func (m *MPCI) Waiting() int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.remote.Len()
}

// waitInterval returns how long the requester of p waits. A blocking
// obtain waits as long as the remote wait plus the MPCI timeout.
func (m *MPCI) waitInterval(p *ir.Packet) ir.Interval {
	if p.Class == ir.PacketSemaphores && p.Operation == ir.OpSemaphoreObtainRequest && p.Option.Blocking() {
		if p.Timeout == ir.NoTimeout {
			return ir.NoTimeout
		}
		if p.Timeout > ir.MaxInterval-m.cfg.Timeout {
			return ir.MaxInterval
		}
		return p.Timeout + m.cfg.Timeout
	}
	return m.cfg.Timeout
}

// SendRequest sends p to node and blocks executing until the response
// arrives. On return p holds the response fields; the caller reads the
// outputs and frees p. The returned status is the remote return code,
// ir.StatusTimeout if no response arrived in time, or the status of
// whoever extracted the thread.
func (m *MPCI) SendRequest(executing *threadq.Thread, node uint32, p *ir.Packet) ir.Status {
	p.SourceTID = executing.ID
	p.SourcePriority = executing.CurrentPriority()
	p.ReturnCode = ir.StatusSuccessful

	frame, err := Encode(p)
	if err != nil {
		m.logger.Error("mp encode request failed", "class", p.Class, "error", err)
		return ir.StatusInternalError
	}

	executing.Wait.ID = p.ID
	executing.Wait.Packet = p

	// The frame goes out without the lock so a slow peer does not hold up
	// responses to other threads. Until the requester is queued it is
	// registered in sending, where ProcessResponse finds it.
	req := &inflight{thread: executing}
	m.lock.Lock()
	m.sending[executing.ID] = req
	m.trace(DirectionSend, node, p, frame)
	m.lock.Unlock()

	err = m.transport.Send(node, frame)

	m.lock.Lock()
	delete(m.sending, executing.ID)
	if err != nil {
		m.lock.Unlock()
		executing.Wait.Packet = nil
		m.logger.Warn("mp send request failed", "to", node, "class", p.Class, "error", err)
		return ir.StatusIOError
	}
	m.logger.Debug("mp request sent",
		"to", node, "class", p.Class, "operation", p.Operation,
		"id", p.ID, "source_tid", p.SourceTID)
	if req.answered {
		m.lock.Unlock()
		return req.status
	}

	status := m.remote.Enqueue(executing, threadq.EnqueueContext{Timeout: m.waitInterval(p)})

	if executing.Wait.Packet != nil {
		// No response arrived.
		executing.Wait.Packet = nil
		m.logger.Warn("mp request abandoned",
			"to", node, "class", p.Class, "operation", p.Operation,
			"id", p.ID, "status", status)
		if h, ok := m.handlersFor(p.Class); ok && h.Abandon != nil {
			h.Abandon(executing, p, status)
		}
	}
	return status
}

// SendResponse answers a request: the operation is switched to its
// response tag, ID is set to the requester's thread id and the packet is
// sent to the requester's node. p is freed.
func (m *MPCI) SendResponse(p *ir.Packet) {
	defer m.pool.Put(p)

	if op, ok := responseOf(p.Class, p.Operation); ok {
		p.Operation = op
	}
	p.ID = p.SourceTID
	node := p.SourceTID.Node()

	frame, err := Encode(p)
	if err != nil {
		m.logger.Error("mp encode response failed", "class", p.Class, "error", err)
		return
	}
	m.trace(DirectionSend, node, p, frame)
	if err := m.transport.Send(node, frame); err != nil {
		m.logger.Warn("mp send response failed", "to", node, "class", p.Class, "error", err)
	}
}

// SendProcess sends a one-way packet to node, or to every other node when
// node is AllNodes. A packet without a source thread is sent on behalf of
// the receive server. p is freed.
func (m *MPCI) SendProcess(node uint32, p *ir.Packet) {
	defer m.pool.Put(p)

	if p.SourceTID == 0 {
		p.SourceTID = m.server.ID
	}

	frame, err := Encode(p)
	if err != nil {
		m.logger.Error("mp encode process packet failed", "class", p.Class, "error", err)
		return
	}

	targets := []uint32{node}
	if node == AllNodes {
		targets = targets[:0]
		for n := uint32(1); n <= m.cfg.Nodes; n++ {
			if n != m.cfg.Node {
				targets = append(targets, n)
			}
		}
	}
	for _, n := range targets {
		m.trace(DirectionSend, n, p, frame)
		if err := m.transport.Send(n, frame); err != nil {
			m.logger.Warn("mp send process packet failed", "to", n, "class", p.Class, "error", err)
		}
	}
}

// ProcessResponse resumes the thread a response is addressed to. The
// response fields are copied into the thread's request packet and the
// thread is woken with the return code. A response for a thread that no
// longer waits is dropped. resp is freed.
func (m *MPCI) ProcessResponse(resp *ir.Packet) {
	defer m.pool.Put(resp)

	m.lock.Lock()
	t, req := m.waiter(resp)
	if t == nil {
		m.lock.Unlock()
		m.logger.Warn("mp response dropped: no waiting thread",
			"class", resp.Class, "operation", resp.Operation, "id", resp.ID)
		return
	}
	*t.Wait.Packet = *resp
	t.Wait.Packet = nil
	if req != nil {
		req.answered = true
		req.status = resp.ReturnCode
		m.lock.Unlock()
		return
	}
	m.remote.Extract(t)
	t.Unblock(resp.ReturnCode)
	m.lock.Unlock()
}

// waiter finds the requester resp answers: on the remote-wait queue, or
// still sending, in which case its inflight record is returned too. The
// caller holds lock.
func (m *MPCI) waiter(resp *ir.Packet) (*threadq.Thread, *inflight) {
	matches := func(t *threadq.Thread) bool {
		req := t.Wait.Packet
		return t.ID == resp.ID && req != nil && req.Class == resp.Class
	}
	if req, ok := m.sending[resp.ID]; ok && matches(req.thread) {
		return req.thread, req
	}
	return m.remote.Find(matches), nil
}

// responder returns the node a response comes from: the node of the object
// its waiting requester asked about, or 0 when nobody waits for it.
func (m *MPCI) responder(resp *ir.Packet) uint32 {
	m.lock.Lock()
	defer m.lock.Unlock()
	t, _ := m.waiter(resp)
	if t == nil {
		return 0
	}
	return t.Wait.ID.Node()
}

// Run is the receive server. It decodes arriving frames in order and
// dispatches them until ctx is cancelled or the inbox is closed.
func (m *MPCI) Run(ctx context.Context) error {
	m.logger.Info("mp receive server starting")

	for {
		if frame, ok := m.inbox.TryDequeue(); ok {
			m.receive(frame)
			continue
		}

		select {
		case <-ctx.Done():
			m.logger.Info("mp receive server stopping: context cancelled")
			return ctx.Err()

		case <-m.inbox.Wait():
			if m.inbox.Closed() && m.inbox.Len() == 0 {
				m.logger.Info("mp receive server stopping: inbox closed")
				return nil
			}
		}
	}
}

// Poll processes every frame currently in the inbox and returns how many
// were handled. Used when the caller drives the node step by step.
func (m *MPCI) Poll() int {
	n := 0
	for {
		frame, ok := m.inbox.TryDequeue()
		if !ok {
			return n
		}
		m.receive(frame)
		n++
	}
}

func (m *MPCI) receive(frame []byte) {
	decoded, err := Decode(frame)
	if err != nil {
		m.logger.Warn("mp frame dropped", "error", err)
		return
	}
	p, status := m.GetPacket()
	if status != ir.StatusSuccessful {
		m.logger.Error("mp frame dropped: no packet",
			"class", decoded.Class, "operation", decoded.Operation, "source_tid", decoded.SourceTID)
		return
	}
	*p = decoded

	if isResponse(p.Class, p.Operation) {
		m.trace(DirectionReceive, m.responder(p), p, frame)
		m.ProcessResponse(p)
		return
	}
	m.trace(DirectionReceive, p.SourceTID.Node(), p, frame)

	h, ok := m.handlersFor(p.Class)
	if !ok || h.Process == nil {
		m.logger.Warn("mp packet dropped: class not configured",
			"class", p.Class, "operation", p.Operation)
		if isRequest(p.Class, p.Operation) {
			p.ReturnCode = ir.StatusNotConfigured
			m.SendResponse(p)
			return
		}
		m.pool.Put(p)
		return
	}
	m.logger.Debug("mp packet received",
		"class", p.Class, "operation", p.Operation, "id", p.ID, "source_tid", p.SourceTID)
	h.Process(p)
}

// Close closes the transport and the inbox, which stops Run.
func (m *MPCI) Close() error {
	m.inbox.Close()
	return m.transport.Close()
}

func (m *MPCI) trace(dir Direction, peer uint32, p *ir.Packet, frame []byte) {
	if m.cfg.Tracer != nil {
		m.cfg.Tracer.TracePacket(dir, peer, p, frame)
	}
}
