package mp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/synccore/internal/ir"
	"github.com/roach88/synccore/internal/threadq"
)

func newMPCI() *MPCI {
	in := NewInbox()
	return New(Config{Node: 1, Nodes: 2}, NewNetwork().Attach(1, in), in)
}

func TestProxy_PersistentPerRemoteThread(t *testing.T) {
	m := newMPCI()
	tid := ir.BuildID(ir.APIClassic, ir.ClassTasks, 2, 1)

	a := m.Proxy(tid, 10)
	b := m.Proxy(tid, 12)
	assert.Same(t, a, b)
	assert.True(t, a.IsProxy())
	assert.Equal(t, ir.Priority(12), a.RealPriority())
	assert.Equal(t, 1, m.Proxies())

	got, ok := m.LookupProxy(tid)
	assert.True(t, ok)
	assert.Same(t, a, got)

	assert.True(t, m.DropProxy(tid))
	assert.Equal(t, 0, m.Proxies())
}

func TestBlock_ReturnsOnceQueued(t *testing.T) {
	m := newMPCI()
	tid := ir.BuildID(ir.APIClassic, ir.ClassTasks, 2, 1)
	px := m.Proxy(tid, 10)

	var lock threadq.Lock
	q := threadq.New(&lock, threadq.Priority, nil)

	result := make(chan [2]any, 1)
	m.Block(px,
		func() ir.Status {
			lock.Lock()
			return q.Enqueue(px, threadq.EnqueueContext{})
		},
		func(status ir.Status, abandoned bool) {
			result <- [2]any{status, abandoned}
		})

	// Block returned, so the proxy is already parked.
	assert.True(t, px.IsBlocked())
	assert.False(t, m.DropProxy(tid), "busy proxies are kept")

	assert.True(t, m.ExtractProxy(tid))
	select {
	case r := <-result:
		assert.Equal(t, ir.StatusProxyBlocking, r[0])
		assert.Equal(t, true, r[1])
	case <-time.After(time.Second):
		t.Fatal("proxy was not extracted")
	}
	assert.False(t, m.ExtractProxy(tid))
}

func TestBlock_ImmediateCompletion(t *testing.T) {
	m := newMPCI()
	px := m.Proxy(ir.BuildID(ir.APIClassic, ir.ClassTasks, 2, 1), 10)

	var got ir.Status
	var wasAbandoned bool
	m.Block(px,
		func() ir.Status { return ir.StatusSuccessful },
		func(status ir.Status, abandoned bool) {
			got, wasAbandoned = status, abandoned
		})
	assert.Equal(t, ir.StatusSuccessful, got)
	assert.False(t, wasAbandoned)
}

func TestSettled(t *testing.T) {
	in := NewInbox()
	m := New(Config{Node: 1, Nodes: 2}, NewNetwork().Attach(1, in), in)
	assert.True(t, m.Settled())

	in.Enqueue([]byte{0})
	assert.False(t, m.Settled(), "a queued frame is in flight")
	in.TryDequeue()

	tid := ir.BuildID(ir.APIClassic, ir.ClassTasks, 2, 1)
	px := m.Proxy(tid, 10)
	var lock threadq.Lock
	q := threadq.New(&lock, threadq.Priority, nil)

	release := make(chan struct{})
	finished := make(chan struct{})
	m.Block(px,
		func() ir.Status {
			lock.Lock()
			return q.Enqueue(px, threadq.EnqueueContext{})
		},
		func(ir.Status, bool) {
			<-release
			close(finished)
		})
	assert.True(t, m.Settled(), "a parked proxy is settled")

	assert.True(t, m.ExtractProxy(tid))
	assert.Eventually(t, func() bool { return !px.IsBlocked() }, time.Second, time.Millisecond)
	assert.False(t, m.Settled(), "the response is not sent yet")

	close(release)
	<-finished
	assert.Eventually(t, m.Settled, time.Second, time.Millisecond)
}

func TestBlock_OverlappingRequestKeepsProxyBusy(t *testing.T) {
	m := newMPCI()
	tid := ir.BuildID(ir.APIClassic, ir.ClassTasks, 2, 1)
	px := m.Proxy(tid, 10)

	var lock threadq.Lock
	q := threadq.New(&lock, threadq.Priority, nil)
	seize := func() ir.Status {
		lock.Lock()
		return q.Enqueue(px, threadq.EnqueueContext{})
	}

	// Request 1 parks, is granted, and its goroutine stalls right after
	// the response went out.
	sent := make(chan struct{})
	release := make(chan struct{})
	first := make(chan struct{})
	m.Block(px, seize, func(ir.Status, bool) {
		close(sent)
		<-release
		close(first)
	})
	lock.Lock()
	woken := q.Dequeue()
	woken.Unblock(ir.StatusSuccessful)
	lock.Unlock()
	<-sent

	// The remote thread's next obtain parks the proxy again.
	second := make(chan [2]any, 1)
	m.Block(px, seize, func(status ir.Status, abandoned bool) {
		second <- [2]any{status, abandoned}
	})
	assert.True(t, px.IsBlocked())

	close(release)
	<-first
	// let request 1's goroutine finish its bookkeeping
	time.Sleep(20 * time.Millisecond)

	assert.False(t, m.DropProxy(tid), "request 2 still owns the proxy")
	assert.True(t, m.ExtractProxy(tid), "an abandoned request 2 must be extractable")
	select {
	case r := <-second:
		assert.Equal(t, ir.StatusProxyBlocking, r[0])
		assert.Equal(t, true, r[1])
	case <-time.After(time.Second):
		t.Fatal("proxy was not extracted")
	}
	assert.Equal(t, 0, q.Len())
}
