package mp

import (
	"sync"

	"github.com/roach88/synccore/internal/ir"
)

// Pool is a fixed set of packets. Packets live in one arena; free slots
// are tracked by index.
//
// Thread-safety: Get and Put are safe for concurrent use. The pool has its
// own lock, independent of every object lock.
type Pool struct {
	mu    sync.Mutex
	arena []ir.Packet
	free  []int32
	index map[*ir.Packet]int32
	inUse []bool
}

// NewPool creates a pool of size packets.
func NewPool(size int) *Pool {
	p := &Pool{
		arena: make([]ir.Packet, size),
		free:  make([]int32, 0, size),
		index: make(map[*ir.Packet]int32, size),
		inUse: make([]bool, size),
	}
	for i := size - 1; i >= 0; i-- {
		p.free = append(p.free, int32(i))
		p.index[&p.arena[i]] = int32(i)
	}
	return p
}

// Get takes a cleared packet. Returns ir.StatusNoMemory when the pool is
// exhausted.
func (p *Pool) Get() (*ir.Packet, ir.Status) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.free) == 0 {
		return nil, ir.StatusNoMemory
	}
	i := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	p.inUse[i] = true
	pkt := &p.arena[i]
	pkt.Reset()
	return pkt, ir.StatusSuccessful
}

// Put returns a packet to the pool. Packets that do not belong to the pool
// or are already free are ignored.
func (p *Pool) Put(pkt *ir.Packet) {
	if pkt == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	i, ok := p.index[pkt]
	if !ok || !p.inUse[i] {
		return
	}
	p.inUse[i] = false
	p.free = append(p.free, i)
}

// Available returns the number of free packets.
func (p *Pool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// Size returns the capacity of the pool.
func (p *Pool) Size() int {
	return len(p.arena)
}
