package mp

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/synccore/internal/ir"
	"github.com/roach88/synccore/internal/threadq"
	"github.com/roach88/synccore/internal/watchdog"
)

type recordingTracer struct {
	mu      sync.Mutex
	entries []string
}

func (r *recordingTracer) TracePacket(dir Direction, peer uint32, p *ir.Packet, _ []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, fmt.Sprintf("%s:%d:%s", dir, peer, OperationName(p.Class, p.Operation)))
}

func (r *recordingTracer) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.entries...)
}

type cluster struct {
	net   *Network
	clock *watchdog.Clock
	nodes []*MPCI
}

// newCluster creates n nodes on one network, each with its receive
// server running until the test ends.
func newCluster(t *testing.T, n int, tracer Tracer) *cluster {
	t.Helper()
	c := &cluster{net: NewNetwork(), clock: watchdog.New()}
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	for i := 1; i <= n; i++ {
		in := NewInbox()
		m := New(Config{
			Node:           uint32(i),
			Nodes:          uint32(n),
			MaximumPackets: 4,
			Clock:          c.clock,
			Tracer:         tracer,
		}, c.net.Attach(uint32(i), in), in)
		c.nodes = append(c.nodes, m)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.Run(ctx)
		}()
	}
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})
	return c
}

func (c *cluster) node(n uint32) *MPCI {
	return c.nodes[n-1]
}

func task(node, index uint32, prio ir.Priority) *threadq.Thread {
	return threadq.NewThread(ir.BuildID(ir.APIClassic, ir.ClassTasks, node, index), 0, prio, 0)
}

func TestSendRequest_SetPriorityRoundTrip(t *testing.T) {
	tracer := &recordingTracer{}
	c := newCluster(t, 2, tracer)
	responder := c.node(2)

	target := task(2, 1, 20)
	responder.Register(ir.PacketTasks, Handlers{
		Process: func(p *ir.Packet) {
			assert.Equal(t, target.ID, p.ID)
			p.Priority = target.SetRealPriority(p.Priority)
			p.ReturnCode = ir.StatusSuccessful
			responder.SendResponse(p)
		},
	})

	requester := c.node(1)
	caller := task(1, 1, 5)
	p, status := requester.GetPacket()
	require.Equal(t, ir.StatusSuccessful, status)
	p.Class = ir.PacketTasks
	p.Operation = ir.OpTaskSetPriorityRequest
	p.ID = target.ID
	p.Priority = 10

	status = requester.SendRequest(caller, 2, p)
	assert.Equal(t, ir.StatusSuccessful, status)
	assert.Equal(t, ir.Priority(20), p.Priority, "old priority")
	assert.Equal(t, ir.OpTaskSetPriorityResponse, p.Operation)
	assert.Equal(t, caller.ID, p.ID)
	assert.Equal(t, ir.Priority(10), target.CurrentPriority())
	requester.FreePacket(p)

	assert.Eventually(t, func() bool {
		return requester.PoolAvailable() == 4 && responder.PoolAvailable() == 4
	}, time.Second, time.Millisecond)
	assert.Equal(t, []string{
		"send:2:set_priority_request",
		"receive:1:set_priority_request",
		"send:1:set_priority_response",
		"receive:2:set_priority_response",
	}, tracer.snapshot())
}

func TestSendRequest_TimeoutAbandons(t *testing.T) {
	c := newCluster(t, 2, nil)
	c.net.Drop = func(from, to uint32, _ []byte) bool { return to == 2 }

	requester := c.node(1)
	abandoned := make(chan ir.Status, 1)
	requester.Register(ir.PacketTasks, Handlers{
		Abandon: func(_ *threadq.Thread, _ *ir.Packet, status ir.Status) {
			abandoned <- status
		},
	})

	caller := task(1, 1, 5)
	p, _ := requester.GetPacket()
	p.Class = ir.PacketTasks
	p.Operation = ir.OpTaskSuspendRequest
	p.ID = ir.BuildID(ir.APIClassic, ir.ClassTasks, 2, 1)

	done := make(chan ir.Status, 1)
	go func() { done <- requester.SendRequest(caller, 2, p) }()
	require.Eventually(t, func() bool { return requester.Waiting() == 1 }, time.Second, time.Millisecond)

	c.clock.Advance(uint64(DefaultTimeout))

	select {
	case status := <-done:
		assert.Equal(t, ir.StatusTimeout, status)
	case <-time.After(time.Second):
		t.Fatal("request did not time out")
	}
	assert.Equal(t, ir.StatusTimeout, <-abandoned)
	assert.Equal(t, threadq.StateReadyAfterTimeout, caller.State())
	requester.FreePacket(p)
}

func TestProcessResponse_LateResponseDropped(t *testing.T) {
	c := newCluster(t, 2, nil)
	requester := c.node(1)

	resp, _ := requester.GetPacket()
	resp.Class = ir.PacketTasks
	resp.Operation = ir.OpTaskResumeResponse
	resp.ID = ir.BuildID(ir.APIClassic, ir.ClassTasks, 1, 7)

	requester.ProcessResponse(resp)
	assert.Equal(t, 4, requester.PoolAvailable())
	assert.Equal(t, 0, requester.Waiting())
}

func TestReceive_UnconfiguredClassAnswersNotConfigured(t *testing.T) {
	c := newCluster(t, 2, nil)
	requester := c.node(1)

	caller := task(1, 1, 5)
	p, _ := requester.GetPacket()
	p.Class = ir.PacketSignal
	p.Operation = ir.OpSignalSendRequest
	p.ID = ir.BuildID(ir.APIClassic, ir.ClassTasks, 2, 1)
	p.SignalSet = 1

	assert.Equal(t, ir.StatusNotConfigured, requester.SendRequest(caller, 2, p))
	requester.FreePacket(p)
}

func TestSendProcess_Broadcast(t *testing.T) {
	c := newCluster(t, 3, nil)

	var mu sync.Mutex
	seen := map[uint32]ir.Name{}
	sources := map[uint32]ir.ObjectID{}
	for _, n := range []uint32{2, 3} {
		m := c.node(n)
		m.Register(ir.PacketSemaphores, Handlers{
			Process: func(p *ir.Packet) {
				mu.Lock()
				seen[m.Node()] = p.Name
				sources[m.Node()] = p.SourceTID
				mu.Unlock()
				m.FreePacket(p)
			},
		})
	}

	p, _ := c.node(1).GetPacket()
	p.Class = ir.PacketSemaphores
	p.Operation = ir.OpSemaphoreAnnounceCreate
	p.Name = ir.MustName("SEM1")
	c.node(1).SendProcess(AllNodes, p)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 2
	}, time.Second, time.Millisecond)
	assert.Equal(t, ir.MustName("SEM1"), seen[2])
	assert.Equal(t, ir.MustName("SEM1"), seen[3])
	assert.Equal(t, c.node(1).ServerThread().ID, sources[2], "process packets come from the receive server")
	assert.Equal(t, 4, c.node(1).PoolAvailable())
}

func TestSendRequest_TransportFailure(t *testing.T) {
	c := newCluster(t, 2, nil)
	c.net.Detach(2)

	p, _ := c.node(1).GetPacket()
	p.Class = ir.PacketTasks
	p.Operation = ir.OpTaskSuspendRequest

	caller := task(1, 1, 5)
	assert.Equal(t, ir.StatusIOError, c.node(1).SendRequest(caller, 2, p))
	assert.Nil(t, caller.Wait.Packet)
	c.node(1).FreePacket(p)
}

func TestTransportError(t *testing.T) {
	net := NewNetwork()
	tr := net.Attach(1, NewInbox())
	err := tr.Send(9, []byte{1})
	assert.True(t, IsTransportError(err))
	assert.ErrorIs(t, err, ErrUnknownNode)

	require.NoError(t, tr.Close())
	assert.ErrorIs(t, tr.Send(9, []byte{1}), ErrClosed)
}

// slowTransport holds every frame for node slow until gate is closed.
type slowTransport struct {
	Transport
	slow    uint32
	entered chan struct{}
	gate    chan struct{}
}

func (s *slowTransport) Send(node uint32, frame []byte) error {
	if node == s.slow {
		s.entered <- struct{}{}
		<-s.gate
	}
	return s.Transport.Send(node, frame)
}

func responseFor(t *testing.T, m *MPCI, to *threadq.Thread) *ir.Packet {
	t.Helper()
	resp, status := m.GetPacket()
	require.Equal(t, ir.StatusSuccessful, status)
	resp.Class = ir.PacketTasks
	resp.Operation = ir.OpTaskSuspendResponse
	resp.ID = to.ID
	resp.ReturnCode = ir.StatusSuccessful
	return resp
}

func TestSendRequest_SlowPeerDoesNotBlockResponses(t *testing.T) {
	net := NewNetwork()
	net.Attach(2, NewInbox())
	net.Attach(3, NewInbox())
	in := NewInbox()
	slow := &slowTransport{
		Transport: net.Attach(1, in),
		slow:      3,
		entered:   make(chan struct{}, 1),
		gate:      make(chan struct{}),
	}
	m := New(Config{Node: 1, Nodes: 3, MaximumPackets: 4, Clock: watchdog.New()}, slow, in)

	request := func(caller *threadq.Thread, node uint32) (*ir.Packet, chan ir.Status) {
		p, status := m.GetPacket()
		require.Equal(t, ir.StatusSuccessful, status)
		p.Class = ir.PacketTasks
		p.Operation = ir.OpTaskSuspendRequest
		p.ID = ir.BuildID(ir.APIClassic, ir.ClassTasks, node, 1)
		done := make(chan ir.Status, 1)
		go func() { done <- m.SendRequest(caller, node, p) }()
		return p, done
	}

	fast := task(1, 1, 5)
	fastPacket, fastDone := request(fast, 2)
	require.Eventually(t, func() bool { return m.Waiting() == 1 }, time.Second, time.Millisecond)

	stuck := task(1, 2, 5)
	stuckPacket, stuckDone := request(stuck, 3)
	<-slow.entered

	// The response to the queued requester is processed while the other
	// request is still inside the transport.
	resp := responseFor(t, m, fast)
	answered := make(chan struct{})
	go func() {
		m.ProcessResponse(resp)
		close(answered)
	}()
	select {
	case <-answered:
	case <-time.After(time.Second):
		t.Fatal("response processing waited for a slow send")
	}
	assert.Equal(t, ir.StatusSuccessful, <-fastDone)
	assert.Equal(t, ir.OpTaskSuspendResponse, fastPacket.Operation)

	// A response that overtakes its own send is kept for the requester.
	m.ProcessResponse(responseFor(t, m, stuck))
	close(slow.gate)
	select {
	case status := <-stuckDone:
		assert.Equal(t, ir.StatusSuccessful, status)
	case <-time.After(time.Second):
		t.Fatal("early response was lost")
	}
	assert.Equal(t, ir.OpTaskSuspendResponse, stuckPacket.Operation)
	assert.Nil(t, stuck.Wait.Packet)
	assert.Equal(t, 0, m.Waiting())

	m.FreePacket(fastPacket)
	m.FreePacket(stuckPacket)
	assert.Equal(t, 4, m.PoolAvailable())
}

func TestWaitInterval_Saturates(t *testing.T) {
	m := New(Config{Node: 1, Nodes: 2, Timeout: 100}, NewNetwork().Attach(1, NewInbox()), NewInbox())
	obtain := &ir.Packet{Class: ir.PacketSemaphores, Operation: ir.OpSemaphoreObtainRequest, Option: ir.Wait}

	obtain.Timeout = 50
	assert.Equal(t, ir.Interval(150), m.waitInterval(obtain))

	obtain.Timeout = ir.MaxInterval - 10
	assert.Equal(t, ir.MaxInterval, m.waitInterval(obtain), "no wrap to a short wait")

	obtain.Timeout = ir.NoTimeout
	assert.Equal(t, ir.NoTimeout, m.waitInterval(obtain))

	obtain.Option = ir.NoWait
	obtain.Timeout = ir.MaxInterval
	assert.Equal(t, ir.Interval(100), m.waitInterval(obtain))
}
