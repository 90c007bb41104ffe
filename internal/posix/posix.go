package posix

import (
	"log/slog"
	"sync"

	"github.com/roach88/synccore/internal/ir"
	"github.com/roach88/synccore/internal/object"
	"github.com/roach88/synccore/internal/watchdog"
)

// Config sizes a POSIX object manager.
type Config struct {
	Node                 uint32
	MaximumSemaphores    int
	MaximumMessageQueues int
	Clock                *watchdog.Clock
	Logger               *slog.Logger
	Recorder             ir.Recorder
}

// Manager owns the named POSIX objects of one node.
//
// Thread-safety: all methods are safe for concurrent use. The name tables
// are guarded by mu, which is never held while a call blocks.
type Manager struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	semTable *object.Table[*Sem]
	sems     map[string]*Sem
	mqTable  *object.Table[*MessageQueue]
	mqs      map[string]*MessageQueue
	mqds     map[MQD]*descriptor
	nextMQD  MQD
}

// NewManager creates an empty manager.
func NewManager(cfg Config) *Manager {
	if cfg.Node == 0 {
		cfg.Node = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:      cfg,
		logger:   logger.With("manager", "posix", "node", cfg.Node),
		semTable: object.NewTable[*Sem](ir.APIPOSIX, ir.ClassPOSIXSemaphores, cfg.Node, cfg.MaximumSemaphores),
		sems:     make(map[string]*Sem),
		mqTable:  object.NewTable[*MessageQueue](ir.APIPOSIX, ir.ClassPOSIXMessageQueues, cfg.Node, cfg.MaximumMessageQueues),
		mqs:      make(map[string]*MessageQueue),
		mqds:     make(map[MQD]*descriptor),
	}
}

// lookupName validates and normalizes a name.
func lookupName(name string) (string, error) {
	if name == "" {
		return "", EINVAL
	}
	if len(name) > ir.MaximumPOSIXNameLength {
		return "", ENAMETOOLONG
	}
	return ir.NormalizePOSIXName(name), nil
}

func (m *Manager) record(e ir.Event) {
	if m.cfg.Recorder == nil {
		return
	}
	e.Node = m.cfg.Node
	m.cfg.Recorder.Record(e)
}
