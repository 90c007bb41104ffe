package object

import (
	"sync"

	"github.com/roach88/synccore/internal/ir"
)

// GlobalEntry describes an object that another node announced.
type GlobalEntry struct {
	ID   ir.ObjectID
	Name ir.Name
}

// Global is the table of global objects known to a node, filled by
// announce create and announce delete packets.
type Global struct {
	mu      sync.RWMutex
	maximum int
	entries map[ir.ObjectID]GlobalEntry
	order   []ir.ObjectID
}

// NewGlobal creates a table with room for maximum entries.
func NewGlobal(maximum int) *Global {
	return &Global{
		maximum: maximum,
		entries: make(map[ir.ObjectID]GlobalEntry),
	}
}

// Add records a global object. Returns ir.StatusTooMany when full.
func (g *Global) Add(name ir.Name, id ir.ObjectID) ir.Status {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.entries[id]; ok {
		g.entries[id] = GlobalEntry{ID: id, Name: name}
		return ir.StatusSuccessful
	}
	if len(g.entries) >= g.maximum {
		return ir.StatusTooMany
	}
	g.entries[id] = GlobalEntry{ID: id, Name: name}
	g.order = append(g.order, id)
	return ir.StatusSuccessful
}

// Remove forgets a global object.
func (g *Global) Remove(id ir.ObjectID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.entries[id]; !ok {
		return false
	}
	delete(g.entries, id)
	for i, o := range g.order {
		if o == id {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
	return true
}

// Lookup finds the oldest announced object of class called name. A node of
// ir.SearchAllNodes matches any node.
func (g *Global) Lookup(api ir.API, class ir.Class, name ir.Name, node uint32) (ir.ObjectID, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, id := range g.order {
		e := g.entries[id]
		if e.Name != name || id.API() != api || id.Class() != class {
			continue
		}
		if node != ir.SearchAllNodes && id.Node() != node {
			continue
		}
		return id, true
	}
	return 0, false
}

// Contains reports whether id was announced.
func (g *Global) Contains(id ir.ObjectID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.entries[id]
	return ok
}

// Len returns the number of entries.
func (g *Global) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.entries)
}
