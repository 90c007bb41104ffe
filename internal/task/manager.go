package task

import (
	"log/slog"
	"sync"

	"github.com/roach88/synccore/internal/ir"
	"github.com/roach88/synccore/internal/mp"
	"github.com/roach88/synccore/internal/object"
	"github.com/roach88/synccore/internal/threadq"
)

// Attributes select task creation options.
type Attributes uint32

const (
	// Local tasks are visible on the creating node only.
	Local Attributes = 0
	// Global tasks are announced to every node.
	Global Attributes = 1 << 1
)

// Config sizes and wires a task manager.
type Config struct {
	Node  uint32
	Nodes uint32

	// Maximum is the number of tasks the node can hold.
	Maximum int

	// MaximumPriority is the least urgent valid priority.
	MaximumPriority ir.Priority

	// Processors is the number of processors tasks can be placed on.
	Processors int

	// GlobalTable receives announced tasks. Required when Nodes > 1.
	GlobalTable *object.Global

	// MPCI carries directives on remote tasks. Nil on single-node systems.
	MPCI *mp.MPCI

	Logger   *slog.Logger
	Recorder ir.Recorder
}

// Manager owns the tasks of one node.
type Manager struct {
	cfg    Config
	logger *slog.Logger
	table  *object.Table[*Task]
	wg     sync.WaitGroup
}

// NewManager creates a task manager and, when MP is configured, registers
// its task and signal packet handlers.
func NewManager(cfg Config) *Manager {
	if cfg.Node == 0 {
		cfg.Node = 1
	}
	if cfg.Nodes == 0 {
		cfg.Nodes = 1
	}
	if cfg.MaximumPriority == 0 {
		cfg.MaximumPriority = ir.DefaultMaximumPriority
	}
	if cfg.Processors <= 0 {
		cfg.Processors = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		cfg:    cfg,
		logger: logger.With("manager", "task", "node", cfg.Node),
		table:  object.NewTable[*Task](ir.APIClassic, ir.ClassTasks, cfg.Node, cfg.Maximum),
	}
	if cfg.MPCI != nil {
		m.registerMP(cfg.MPCI)
	}
	return m
}

// Create allocates a dormant task.
func (m *Manager) Create(name ir.Name, priority ir.Priority, processor int, attrs Attributes) (ir.ObjectID, error) {
	if !name.Valid() {
		return 0, ir.StatusInvalidName
	}
	if priority < ir.MinimumPriority || priority > m.cfg.MaximumPriority {
		return 0, ir.StatusInvalidPriority
	}
	if processor < 0 || processor >= m.cfg.Processors {
		return 0, ir.StatusInvalidNumber
	}
	global := attrs&Global != 0
	if global && m.cfg.Nodes > 1 && m.cfg.MPCI == nil {
		return 0, ir.StatusMPNotConfigured
	}

	id, status := m.table.Reserve(name)
	if status != ir.StatusSuccessful {
		return 0, status
	}
	if global && m.cfg.GlobalTable != nil {
		if status := m.cfg.GlobalTable.Add(name, id); status != ir.StatusSuccessful {
			m.table.Free(id)
			return 0, status
		}
	}

	t := newTask(threadq.NewThread(id, name, priority, processor), global)
	m.table.Install(id, t)

	if global && m.cfg.MPCI != nil {
		m.announce(ir.OpTaskAnnounceCreate, id, name)
	}
	m.logger.Debug("task created", "id", id, "name", name, "priority", priority)
	m.record(ir.Event{Kind: ir.EventCreate, Object: id, Detail: map[string]any{
		"name": name.String(), "priority": int64(priority),
	}})
	return id, nil
}

// Start makes a dormant task ready and runs entry on its own goroutine.
func (m *Manager) Start(id ir.ObjectID, entry func(*Task)) error {
	if entry == nil {
		return ir.StatusInvalidAddress
	}
	t, status := m.local(id)
	if status != ir.StatusSuccessful {
		return status
	}

	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return ir.StatusIncorrectState
	}
	t.started = true
	t.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		entry(t)
	}()
	return nil
}

// Wait blocks until every started entry function has returned.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Delete removes a local task. A task blocked on an object is woken with
// ir.StatusObjectWasDeleted; a task that still holds a priority raising
// resource cannot be deleted.
func (m *Manager) Delete(id ir.ObjectID) error {
	if m.remote(id) {
		return ir.StatusIllegalOnRemoteObject
	}
	t, status := m.local(id)
	if status != ir.StatusSuccessful {
		return status
	}
	if t.thread.HoldsSources() {
		return ir.StatusResourceInUse
	}
	if _, ok := m.table.Remove(id); !ok {
		return ir.StatusInvalidID
	}
	threadq.ExtractThread(t.thread, ir.StatusObjectWasDeleted)

	// Unblock a suspended entry function so it can observe the deletion.
	t.resume()

	if t.global {
		if m.cfg.GlobalTable != nil {
			m.cfg.GlobalTable.Remove(id)
		}
		if m.cfg.MPCI != nil {
			m.announce(ir.OpTaskAnnounceDelete, id, t.Name())
		}
	}
	m.logger.Debug("task deleted", "id", id)
	m.record(ir.Event{Kind: ir.EventDelete, Object: id})
	return nil
}

// Ident resolves a task name. See object.Resolver for the node rules.
func (m *Manager) Ident(name ir.Name, node uint32) (ir.ObjectID, error) {
	r := object.Resolver[*Task]{
		Local:  m.table,
		Global: m.cfg.GlobalTable,
		Node:   m.cfg.Node,
		Nodes:  m.cfg.Nodes,
	}
	id, status := r.Ident(name, node)
	return id, status.Err()
}

// Get returns a local task.
func (m *Manager) Get(id ir.ObjectID) (*Task, error) {
	t, status := m.local(id)
	return t, status.Err()
}

// Len returns the number of local tasks.
func (m *Manager) Len() int {
	return m.table.Len()
}

// Each calls fn for every local task in id order.
func (m *Manager) Each(fn func(*Task)) {
	m.table.Each(func(_ ir.ObjectID, t *Task) { fn(t) })
}

// Suspend suspends a task. Returns ir.StatusAlreadySuspended if it is.
func (m *Manager) Suspend(executing *threadq.Thread, id ir.ObjectID) error {
	id = self(executing, id)
	if m.remote(id) {
		return m.sendTask(executing, id, ir.OpTaskSuspendRequest, 0, nil)
	}
	status := m.suspend(id)
	m.record(ir.Event{Kind: ir.EventSuspend, Object: id, Thread: threadID(executing), Status: status})
	return status.Err()
}

// Resume resumes a suspended task. Returns ir.StatusIncorrectState if it
// is not suspended.
func (m *Manager) Resume(executing *threadq.Thread, id ir.ObjectID) error {
	id = self(executing, id)
	if m.remote(id) {
		return m.sendTask(executing, id, ir.OpTaskResumeRequest, 0, nil)
	}
	status := m.resume(id)
	m.record(ir.Event{Kind: ir.EventResume, Object: id, Thread: threadID(executing), Status: status})
	return status.Err()
}

// IsSuspended returns nil for a task that runs and
// ir.StatusAlreadySuspended for a suspended one.
func (m *Manager) IsSuspended(executing *threadq.Thread, id ir.ObjectID) error {
	id = self(executing, id)
	if m.remote(id) {
		return ir.StatusIllegalOnRemoteObject
	}
	t, status := m.local(id)
	if status != ir.StatusSuccessful {
		return status
	}
	if t.Suspended() {
		return ir.StatusAlreadySuspended
	}
	return nil
}

// SetPriority changes the real priority of a task and returns its previous
// current priority. ir.CurrentPriority only queries. A blocked task is
// repositioned in its wait queue and the change is passed on to the owner
// of the object it waits for.
func (m *Manager) SetPriority(executing *threadq.Thread, id ir.ObjectID, priority ir.Priority) (ir.Priority, error) {
	if priority != ir.CurrentPriority && priority > m.cfg.MaximumPriority {
		return 0, ir.StatusInvalidPriority
	}
	id = self(executing, id)
	if m.remote(id) {
		var old ir.Priority
		err := m.sendTask(executing, id, ir.OpTaskSetPriorityRequest, priority, func(p *ir.Packet) {
			old = p.Priority
		})
		return old, err
	}
	old, status := m.setPriority(id, priority)
	if priority != ir.CurrentPriority {
		m.record(ir.Event{Kind: ir.EventSetPriority, Object: id, Thread: threadID(executing), Status: status,
			Detail: map[string]any{"old": int64(old), "new": int64(priority)}})
	}
	return old, status.Err()
}

func (m *Manager) suspend(id ir.ObjectID) ir.Status {
	t, status := m.local(id)
	if status != ir.StatusSuccessful {
		return status
	}
	return t.suspend()
}

func (m *Manager) resume(id ir.ObjectID) ir.Status {
	t, status := m.local(id)
	if status != ir.StatusSuccessful {
		return status
	}
	return t.resume()
}

func (m *Manager) setPriority(id ir.ObjectID, priority ir.Priority) (ir.Priority, ir.Status) {
	t, status := m.local(id)
	if status != ir.StatusSuccessful {
		return 0, status
	}
	if priority == ir.CurrentPriority {
		return t.thread.CurrentPriority(), ir.StatusSuccessful
	}
	return t.thread.SetRealPriority(priority), ir.StatusSuccessful
}

// local resolves a local id.
func (m *Manager) local(id ir.ObjectID) (*Task, ir.Status) {
	t, ok := m.table.Get(id)
	if !ok {
		return nil, ir.StatusInvalidID
	}
	return t, ir.StatusSuccessful
}

// remote reports whether id names a task on another node.
func (m *Manager) remote(id ir.ObjectID) bool {
	n := id.Node()
	return n != m.cfg.Node && n >= 1 && n <= m.cfg.Nodes
}

func (m *Manager) record(e ir.Event) {
	if m.cfg.Recorder == nil {
		return
	}
	e.Node = m.cfg.Node
	m.cfg.Recorder.Record(e)
}

// self maps ir.WhoAmI to the executing thread.
func self(executing *threadq.Thread, id ir.ObjectID) ir.ObjectID {
	if id == ir.WhoAmI && executing != nil {
		return executing.ID
	}
	return id
}

func threadID(t *threadq.Thread) ir.ObjectID {
	if t == nil {
		return 0
	}
	return t.ID
}
