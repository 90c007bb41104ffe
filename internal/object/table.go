package object

import (
	"sync"

	"github.com/gammazero/deque"

	"github.com/roach88/synccore/internal/ir"
)

type slot[T any] struct {
	name ir.Name
	obj  T
	used bool
	live bool
}

// Table maps the ids of one object class on one node to control blocks.
//
// Allocation is two phase: Reserve hands out an id, Install makes the
// object visible to lookups. Freed indices are reused oldest first, so a
// stale id is unlikely to name a new object soon after a delete.
//
// Thread-safety: all methods are safe for concurrent use.
type Table[T any] struct {
	api   ir.API
	class ir.Class
	node  uint32

	mu    sync.RWMutex
	slots []slot[T] // slots[0] is unused; index 0 is never valid
	free  deque.Deque[uint32]
}

// NewTable creates a table with room for maximum objects.
func NewTable[T any](api ir.API, class ir.Class, node uint32, maximum int) *Table[T] {
	if maximum > ir.MaximumIndex {
		maximum = ir.MaximumIndex
	}
	t := &Table[T]{
		api:   api,
		class: class,
		node:  node,
		slots: make([]slot[T], maximum+1),
	}
	for i := 1; i <= maximum; i++ {
		t.free.PushBack(uint32(i))
	}
	return t
}

// Maximum returns the capacity of the table.
func (t *Table[T]) Maximum() int {
	return len(t.slots) - 1
}

// Reserve allocates an id. Returns ir.StatusTooMany when the table is full.
func (t *Table[T]) Reserve(name ir.Name) (ir.ObjectID, ir.Status) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.free.Len() == 0 {
		return 0, ir.StatusTooMany
	}
	index := t.free.PopFront()
	t.slots[index] = slot[T]{name: name, used: true}
	return ir.BuildID(t.api, t.class, t.node, index), ir.StatusSuccessful
}

// Install publishes obj under a reserved id.
func (t *Table[T]) Install(id ir.ObjectID, obj T) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s, ok := t.slotOf(id); ok && s.used {
		s.obj = obj
		s.live = true
	}
}

// Free returns the id to the table.
func (t *Table[T]) Free(id ir.ObjectID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s, ok := t.slotOf(id); ok && s.used {
		*s = slot[T]{}
		t.free.PushBack(id.Index())
	}
}

// Get returns the object named by id.
func (t *Table[T]) Get(id ir.ObjectID) (T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if s, ok := t.slotOf(id); ok && s.live {
		return s.obj, true
	}
	var zero T
	return zero, false
}

// Remove hides the object from lookups and frees its id.
func (t *Table[T]) Remove(id ir.ObjectID) (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var zero T
	s, ok := t.slotOf(id)
	if !ok || !s.live {
		return zero, false
	}
	obj := s.obj
	*s = slot[T]{}
	t.free.PushBack(id.Index())
	return obj, true
}

// NameToID returns the id of the first live object called name.
func (t *Table[T]) NameToID(name ir.Name) (ir.ObjectID, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for i := 1; i < len(t.slots); i++ {
		if t.slots[i].live && t.slots[i].name == name {
			return ir.BuildID(t.api, t.class, t.node, uint32(i)), true
		}
	}
	return 0, false
}

// Len returns the number of live objects.
func (t *Table[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := 0
	for i := 1; i < len(t.slots); i++ {
		if t.slots[i].live {
			n++
		}
	}
	return n
}

// Each calls fn for every live object in index order. fn must not call
// back into the table.
func (t *Table[T]) Each(fn func(ir.ObjectID, T)) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for i := 1; i < len(t.slots); i++ {
		if t.slots[i].live {
			fn(ir.BuildID(t.api, t.class, t.node, uint32(i)), t.slots[i].obj)
		}
	}
}

// slotOf validates every field of id against the table. The lock is held.
func (t *Table[T]) slotOf(id ir.ObjectID) (*slot[T], bool) {
	if id.API() != t.api || id.Class() != t.class || id.Node() != t.node {
		return nil, false
	}
	index := id.Index()
	if index == 0 || int(index) >= len(t.slots) {
		return nil, false
	}
	return &t.slots[index], true
}
