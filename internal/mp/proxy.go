package mp

import (
	"sync"

	"github.com/roach88/synccore/internal/ir"
	"github.com/roach88/synccore/internal/threadq"
)

// proxy stands in for one remote thread on this node. A proxy lives as
// long as its remote thread: it may own local objects between requests.
type proxy struct {
	thread    *threadq.Thread
	busy      bool
	abandoned bool

	// gen counts requests. Only the goroutine of the current request may
	// read abandoned or clear busy.
	gen uint64
}

// Proxy returns the proxy of a remote thread, creating it if needed, and
// sets its priority to the priority the request was sent with.
func (m *MPCI) Proxy(tid ir.ObjectID, priority ir.Priority) *threadq.Thread {
	m.mu.Lock()
	px, ok := m.proxies[tid]
	if !ok {
		px = &proxy{thread: threadq.NewProxy(tid, priority)}
		m.proxies[tid] = px
	}
	m.mu.Unlock()

	if priority != 0 && px.thread.RealPriority() != priority {
		px.thread.SetRealPriority(priority)
	}
	return px.thread
}

// LookupProxy returns the existing proxy of a remote thread.
func (m *MPCI) LookupProxy(tid ir.ObjectID) (*threadq.Thread, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	px, ok := m.proxies[tid]
	if !ok {
		return nil, false
	}
	return px.thread, true
}

// Proxies returns the number of proxies on this node.
func (m *MPCI) Proxies() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.proxies)
}

// DropProxy forgets the proxy of a remote thread that no longer exists.
// A proxy that is blocked or still holds priority sources is kept.
func (m *MPCI) DropProxy(tid ir.ObjectID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	px, ok := m.proxies[tid]
	if !ok || px.busy || px.thread.HoldsSources() {
		return false
	}
	delete(m.proxies, tid)
	return true
}

// Block runs fn, a directive that may block proxy, on its own goroutine.
// It returns once proxy is parked on a wait queue or fn has finished, so
// packets are still applied in arrival order. done is called on the
// proxy's goroutine with the result of fn and whether the remote thread
// abandoned the request meanwhile.
func (m *MPCI) Block(proxyThread *threadq.Thread, fn func() ir.Status, done func(status ir.Status, abandoned bool)) {
	var gen uint64
	m.mu.Lock()
	px, ok := m.proxies[proxyThread.ID]
	if ok {
		px.gen++
		gen = px.gen
		px.busy = true
		px.abandoned = false
	}
	m.mu.Unlock()

	ready := make(chan struct{})
	var once sync.Once
	signal := func() { once.Do(func() { close(ready) }) }
	proxyThread.Wait.Queued = signal

	go func() {
		defer signal()
		status := fn()

		m.mu.Lock()
		abandoned := px != nil && px.gen == gen && px.abandoned
		m.mu.Unlock()

		done(status, abandoned)

		// busy until the response is on its way, see Settled. A newer
		// request may own the proxy by now.
		if px != nil {
			m.mu.Lock()
			if px.gen == gen {
				px.busy = false
				px.abandoned = false
			}
			m.mu.Unlock()
		}
	}()
	<-ready
}

// Settled reports whether nothing is in flight on this node: the inbox is
// empty and every proxy serving a request is parked on a wait queue.
func (m *MPCI) Settled() bool {
	if m.inbox.Len() > 0 {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, px := range m.proxies {
		if px.busy && !px.thread.IsBlocked() {
			return false
		}
	}
	return true
}

// ExtractProxy ends the wait of a remote thread's proxy with
// ir.StatusProxyBlocking. Called when the remote thread gave up on its
// request. Returns false if the proxy was not blocked.
func (m *MPCI) ExtractProxy(tid ir.ObjectID) bool {
	m.mu.Lock()
	px, ok := m.proxies[tid]
	if !ok || !px.busy {
		m.mu.Unlock()
		return false
	}
	px.abandoned = true
	m.mu.Unlock()

	return threadq.ExtractThread(px.thread, ir.StatusProxyBlocking)
}
