package kernel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/synccore/internal/config"
	"github.com/roach88/synccore/internal/mp"
)

// Cluster runs every node of a system in one process over an in-memory
// network.
type Cluster struct {
	network *mp.Network
	nodes   []*Node
	logger  *slog.Logger
}

// NewCluster builds nodes 1..cfg.Nodes. cfg.Node and cfg.Transport are
// ignored; opts.Transport and opts.Inbox must be nil.
func NewCluster(cfg *config.Config, opts Options) (*Cluster, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if opts.Transport != nil || opts.Inbox != nil {
		return nil, errors.New("cluster: nodes are connected by the cluster network")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &Cluster{
		network: mp.NewNetwork(),
		logger:  logger,
	}
	for id := uint32(1); id <= cfg.Nodes; id++ {
		nodeOpts := opts
		if cfg.Nodes > 1 {
			nodeOpts.Inbox = mp.NewInbox()
			nodeOpts.Transport = c.network.Attach(id, nodeOpts.Inbox)
		}
		n, err := NewNode(cfg.ForNode(id), nodeOpts)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("cluster: %w", err)
		}
		c.nodes = append(c.nodes, n)
	}
	return c, nil
}

// Node returns node id, or nil when id is not in the cluster.
func (c *Cluster) Node(id uint32) *Node {
	if id == 0 || int(id) > len(c.nodes) {
		return nil
	}
	return c.nodes[id-1]
}

// Nodes returns the nodes in node order.
func (c *Cluster) Nodes() []*Node {
	return append([]*Node(nil), c.nodes...)
}

// Network returns the network connecting the nodes. Tests use its Drop
// hook to lose frames.
func (c *Cluster) Network() *mp.Network {
	return c.network
}

// Run runs every node until ctx ends or one of them fails.
func (c *Cluster) Run(ctx context.Context) error {
	g, gctx := newSafeGroup(ctx, c.logger)
	for _, n := range c.nodes {
		g.Go(fmt.Sprintf("node-%d", n.ID()), func() error { return n.Run(gctx) })
	}
	c.logger.Info("cluster running", "nodes", len(c.nodes))
	return g.Wait()
}

// Advance ticks every node clock n times, node by node.
func (c *Cluster) Advance(n uint64) int {
	fired := 0
	for _, node := range c.nodes {
		fired += node.Clock.Advance(n)
	}
	return fired
}

// Close closes every node and returns the first error.
func (c *Cluster) Close() error {
	var first error
	for _, n := range c.nodes {
		if err := n.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
