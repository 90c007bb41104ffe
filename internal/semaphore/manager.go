package semaphore

import (
	"log/slog"

	"github.com/roach88/synccore/internal/ir"
	"github.com/roach88/synccore/internal/mp"
	"github.com/roach88/synccore/internal/object"
	"github.com/roach88/synccore/internal/sem"
	"github.com/roach88/synccore/internal/threadq"
	"github.com/roach88/synccore/internal/watchdog"
)

// Config sizes and wires a semaphore manager.
type Config struct {
	Node  uint32
	Nodes uint32

	// Maximum is the number of semaphores the node can hold.
	Maximum int

	// MaximumPriority is the least urgent valid priority.
	MaximumPriority ir.Priority

	// Processors sizes the per-processor ceilings of MrsP semaphores.
	Processors int

	Clock       *watchdog.Clock
	GlobalTable *object.Global
	MPCI        *mp.MPCI

	Logger   *slog.Logger
	Recorder ir.Recorder
}

type entry struct {
	ctrl   *sem.Control
	global bool
}

// Manager owns the semaphores of one node.
type Manager struct {
	cfg    Config
	logger *slog.Logger
	table  *object.Table[*entry]
}

// NewManager creates a semaphore manager and, when MP is configured,
// registers its packet handlers.
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
		logger: logger.With("manager", "semaphore", "node", cfg.Node),
		table:  object.NewTable[*entry](ir.APIClassic, ir.ClassSemaphores, cfg.Node, cfg.Maximum),
	}
	if cfg.MPCI != nil {
		cfg.MPCI.Register(ir.PacketSemaphores, mp.Handlers{
			Process: m.processPacket,
			Abandon: m.abandon,
		})
	}
	return m
}

// Create allocates a semaphore. A binary semaphore created with count 0 is
// owned by executing. ceiling is the priority ceiling of ceiling and MrsP
// mutexes (the initial ceiling of every processor for MrsP).
func (m *Manager) Create(executing *threadq.Thread, name ir.Name, count uint32, attrs Attributes, ceiling ir.Priority) (ir.ObjectID, error) {
	if !name.Valid() {
		return 0, ir.StatusInvalidName
	}
	variant, status := attrs.Variant()
	if status != ir.StatusSuccessful {
		return 0, status
	}
	if (variant.IsMutex() || variant == sem.SimpleBinary) && count > 1 {
		return 0, ir.StatusInvalidNumber
	}
	if variant.HasCeiling() && (ceiling < ir.MinimumPriority || ceiling > m.cfg.MaximumPriority) {
		return 0, ir.StatusInvalidPriority
	}
	if variant.IsMutex() && count == 0 && executing == nil {
		return 0, ir.StatusInvalidAddress
	}
	global := attrs.IsGlobal()
	if global && m.cfg.Nodes > 1 && m.cfg.MPCI == nil {
		return 0, ir.StatusMPNotConfigured
	}

	id, status := m.table.Reserve(name)
	if status != ir.StatusSuccessful {
		return 0, status
	}

	cfg := sem.Config{
		Variant:    variant,
		Discipline: attrs.Discipline(),
		Count:      count,
		Ceiling:    ceiling,
		Clock:      m.cfg.Clock,
	}
	if variant == sem.MrsP {
		cfg.Ceilings = make([]ir.Priority, m.cfg.Processors)
		for i := range cfg.Ceilings {
			cfg.Ceilings[i] = ceiling
		}
	}
	if variant.IsMutex() && count == 0 {
		cfg.InitialOwner = executing
	}
	ctrl, status := sem.New(id, name, cfg)
	if status != ir.StatusSuccessful {
		m.table.Free(id)
		return 0, status
	}

	if global && m.cfg.GlobalTable != nil {
		if status := m.cfg.GlobalTable.Add(name, id); status != ir.StatusSuccessful {
			m.table.Free(id)
			return 0, status
		}
	}
	m.table.Install(id, &entry{ctrl: ctrl, global: global})

	if global && m.cfg.MPCI != nil {
		m.announce(ir.OpSemaphoreAnnounceCreate, id, name)
	}
	m.logger.Debug("semaphore created", "id", id, "name", name, "variant", variant)
	m.record(ir.Event{Kind: ir.EventCreate, Object: id, Thread: threadID(executing), Detail: map[string]any{
		"name": name.String(), "variant": variant.String(), "count": int64(count),
	}})
	return id, nil
}

// Delete removes a local semaphore and wakes every waiter with
// ir.StatusObjectWasDeleted. An owned mutex returns ir.StatusResourceInUse.
func (m *Manager) Delete(id ir.ObjectID) error {
	if m.remote(id) {
		return ir.StatusIllegalOnRemoteObject
	}
	e, status := m.local(id)
	if status != ir.StatusSuccessful {
		return status
	}
	woken, status := e.ctrl.Delete()
	if status != ir.StatusSuccessful {
		return status
	}
	m.table.Remove(id)

	if e.global {
		if m.cfg.GlobalTable != nil {
			m.cfg.GlobalTable.Remove(id)
		}
		if m.cfg.MPCI != nil {
			m.announce(ir.OpSemaphoreAnnounceDelete, id, e.ctrl.Name)
		}
	}
	m.logger.Debug("semaphore deleted", "id", id, "woken", woken)
	m.record(ir.Event{Kind: ir.EventDelete, Object: id, Detail: map[string]any{"woken": int64(woken)}})
	return nil
}

// Ident resolves a semaphore name. See object.Resolver for the node rules.
func (m *Manager) Ident(name ir.Name, node uint32) (ir.ObjectID, error) {
	r := object.Resolver[*entry]{
		Local:  m.table,
		Global: m.cfg.GlobalTable,
		Node:   m.cfg.Node,
		Nodes:  m.cfg.Nodes,
	}
	id, status := r.Ident(name, node)
	return id, status.Err()
}

// Obtain acquires the semaphore for executing. option selects waiting;
// timeout bounds the wait in ticks.
func (m *Manager) Obtain(executing *threadq.Thread, id ir.ObjectID, option ir.Option, timeout ir.Interval) error {
	if executing == nil {
		return ir.StatusInvalidAddress
	}
	if m.remote(id) {
		return m.sendRequest(executing, id, ir.OpSemaphoreObtainRequest, option, timeout)
	}
	e, status := m.local(id)
	if status != ir.StatusSuccessful {
		return status
	}
	status = e.ctrl.Seize(executing, option.Blocking(), timeout)
	m.record(ir.Event{Kind: ir.EventObtain, Object: id, Thread: executing.ID, Status: status})
	return status.Err()
}

// Release releases the semaphore on behalf of executing.
func (m *Manager) Release(executing *threadq.Thread, id ir.ObjectID) error {
	if executing == nil {
		return ir.StatusInvalidAddress
	}
	if m.remote(id) {
		return m.sendRequest(executing, id, ir.OpSemaphoreReleaseRequest, 0, 0)
	}
	e, status := m.local(id)
	if status != ir.StatusSuccessful {
		return status
	}
	status = e.ctrl.Surrender(executing)
	m.record(ir.Event{Kind: ir.EventRelease, Object: id, Thread: executing.ID, Status: status})
	return status.Err()
}

// Flush wakes every waiter of a local semaphore with ir.StatusUnsatisfied.
func (m *Manager) Flush(id ir.ObjectID) error {
	if m.remote(id) {
		return ir.StatusIllegalOnRemoteObject
	}
	e, status := m.local(id)
	if status != ir.StatusSuccessful {
		return status
	}
	woken, status := e.ctrl.Flush(ir.StatusUnsatisfied)
	m.record(ir.Event{Kind: ir.EventFlush, Object: id, Status: status, Detail: map[string]any{"woken": int64(woken)}})
	return status.Err()
}

// SetPriority changes the ceiling of a ceiling or MrsP mutex on processor
// and returns the previous ceiling. ir.CurrentPriority only queries.
func (m *Manager) SetPriority(id ir.ObjectID, processor int, priority ir.Priority) (ir.Priority, error) {
	if priority != ir.CurrentPriority && priority > m.cfg.MaximumPriority {
		return 0, ir.StatusInvalidPriority
	}
	if m.remote(id) {
		return 0, ir.StatusIllegalOnRemoteObject
	}
	e, status := m.local(id)
	if status != ir.StatusSuccessful {
		return 0, status
	}
	old, status := e.ctrl.SetPriority(processor, priority)
	if priority != ir.CurrentPriority {
		m.record(ir.Event{Kind: ir.EventSetPriority, Object: id, Status: status, Detail: map[string]any{
			"processor": int64(processor), "old": int64(old), "new": int64(priority),
		}})
	}
	return old, status.Err()
}

// Control returns the variant core of a local semaphore.
func (m *Manager) Control(id ir.ObjectID) (*sem.Control, error) {
	e, status := m.local(id)
	if status != ir.StatusSuccessful {
		return nil, status
	}
	return e.ctrl, nil
}

// Len returns the number of local semaphores.
func (m *Manager) Len() int {
	return m.table.Len()
}

// Each calls fn for every local semaphore in id order.
func (m *Manager) Each(fn func(*sem.Control)) {
	m.table.Each(func(_ ir.ObjectID, e *entry) { fn(e.ctrl) })
}

func (m *Manager) local(id ir.ObjectID) (*entry, ir.Status) {
	e, ok := m.table.Get(id)
	if !ok {
		return nil, ir.StatusInvalidID
	}
	return e, ir.StatusSuccessful
}

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

func threadID(t *threadq.Thread) ir.ObjectID {
	if t == nil {
		return 0
	}
	return t.ID
}
