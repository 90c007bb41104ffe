package kernel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/synccore/internal/config"
	"github.com/roach88/synccore/internal/ir"
	"github.com/roach88/synccore/internal/mp"
	"github.com/roach88/synccore/internal/object"
	"github.com/roach88/synccore/internal/posix"
	"github.com/roach88/synccore/internal/semaphore"
	"github.com/roach88/synccore/internal/task"
	"github.com/roach88/synccore/internal/watchdog"
)

// Journal receives the events and packets of a node. *store.Journal
// implements it.
type Journal interface {
	ir.Recorder
	Tracer(node uint32) mp.Tracer
}

// Options wire a node to its environment.
type Options struct {
	// Transport and Inbox connect the node to the others. When both are
	// nil on a multi-node system, NewNode listens with the TCP transport
	// on the node's peer address.
	Transport mp.Transport
	Inbox     *mp.Inbox

	// Journal is optional.
	Journal Journal

	// ManualClock leaves ticking to the caller (Node.Clock.Tick/Advance).
	ManualClock bool

	Logger *slog.Logger
}

// Node is one configured node.
type Node struct {
	cfg    *config.Config
	logger *slog.Logger
	manual bool

	Clock      *watchdog.Clock
	Globals    *object.Global
	MPCI       *mp.MPCI
	Tasks      *task.Manager
	Semaphores *semaphore.Manager
	POSIX      *posix.Manager
}

// NewNode builds the node cfg.Node of the system cfg describes.
func NewNode(cfg *config.Config, opts Options) (*Node, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	n := &Node{
		cfg:     cfg,
		logger:  logger.With("node", cfg.Node),
		manual:  opts.ManualClock,
		Clock:   watchdog.New(),
		Globals: object.NewGlobal(cfg.MaximumGlobalObjects),
	}

	var recorder ir.Recorder
	var tracer mp.Tracer
	if opts.Journal != nil {
		recorder = opts.Journal
		tracer = opts.Journal.Tracer(cfg.Node)
	}

	if cfg.Nodes > 1 {
		transport, inbox, err := n.connect(opts)
		if err != nil {
			return nil, err
		}
		n.MPCI = mp.New(mp.Config{
			Node:           cfg.Node,
			Nodes:          cfg.Nodes,
			MaximumPackets: cfg.MaximumPackets,
			Timeout:        cfg.MPCITimeout,
			Clock:          n.Clock,
			Logger:         logger,
			Tracer:         tracer,
		}, transport, inbox)
	}

	n.Tasks = task.NewManager(task.Config{
		Node:            cfg.Node,
		Nodes:           cfg.Nodes,
		Maximum:         cfg.MaximumTasks,
		MaximumPriority: cfg.MaximumPriority,
		Processors:      cfg.Processors,
		GlobalTable:     n.Globals,
		MPCI:            n.MPCI,
		Logger:          logger,
		Recorder:        recorder,
	})
	n.Semaphores = semaphore.NewManager(semaphore.Config{
		Node:            cfg.Node,
		Nodes:           cfg.Nodes,
		Maximum:         cfg.MaximumSemaphores,
		MaximumPriority: cfg.MaximumPriority,
		Processors:      cfg.Processors,
		Clock:           n.Clock,
		GlobalTable:     n.Globals,
		MPCI:            n.MPCI,
		Logger:          logger,
		Recorder:        recorder,
	})
	n.POSIX = posix.NewManager(posix.Config{
		Node:                 cfg.Node,
		MaximumSemaphores:    cfg.MaximumPOSIXSemaphores,
		MaximumMessageQueues: cfg.MaximumMessageQueues,
		Clock:                n.Clock,
		Logger:               logger,
		Recorder:             recorder,
	})

	n.logger.Info("node configured",
		"nodes", cfg.Nodes,
		"tasks", cfg.MaximumTasks,
		"semaphores", cfg.MaximumSemaphores,
		"mp", n.MPCI != nil)
	return n, nil
}

func (n *Node) connect(opts Options) (mp.Transport, *mp.Inbox, error) {
	if opts.Transport != nil && opts.Inbox != nil {
		return opts.Transport, opts.Inbox, nil
	}
	if opts.Transport != nil || opts.Inbox != nil {
		return nil, nil, errors.New("node: transport and inbox must be given together")
	}
	if n.cfg.Transport != config.TransportTCP {
		return nil, nil, fmt.Errorf("node %d: %s transport needs a cluster", n.cfg.Node, n.cfg.Transport)
	}
	inbox := mp.NewInbox()
	tcp, err := mp.ListenTCP(n.cfg.Node, n.cfg.Peers[n.cfg.Node], n.cfg.Peers, inbox, n.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("node %d: %w", n.cfg.Node, err)
	}
	return tcp, inbox, nil
}

// ID returns the node number.
func (n *Node) ID() uint32 {
	return n.cfg.Node
}

// Config returns the node's configuration.
func (n *Node) Config() *config.Config {
	return n.cfg
}

// Run serves the node until ctx ends: the MPCI receive server and, unless
// the clock is manual, the tick driver. Cancellation is not an error.
func (n *Node) Run(ctx context.Context) error {
	g, gctx := newSafeGroup(ctx, n.logger)
	if n.MPCI != nil {
		g.Go("mpci", func() error { return n.MPCI.Run(gctx) })
	}
	if !n.manual {
		g.Go("clock", func() error { return n.Clock.Run(gctx, n.cfg.TicksPerSecond) })
	}
	g.Go("wait", func() error {
		<-gctx.Done()
		return gctx.Err()
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// Close stops MP traffic. Task entry functions are not waited for; use
// Tasks.Wait.
func (n *Node) Close() error {
	var err error
	if n.MPCI != nil {
		err = n.MPCI.Close()
	}
	n.logger.Info("node closed")
	return err
}

// ConfigJSON renders a configuration for the journal's runs table.
func ConfigJSON(cfg *config.Config) string {
	data, err := json.Marshal(cfg)
	if err != nil {
		return "{}"
	}
	return string(data)
}
