package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/synccore/internal/config"
	"github.com/roach88/synccore/internal/kernel"
	"github.com/roach88/synccore/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Config   string
	Database string
	For      time.Duration
	Node     uint32

	// IDs overrides the journal's run id generator (for testing).
	IDs store.RunIDGenerator
}

// RunSummary is printed when the run ends.
type RunSummary struct {
	RunID string       `json:"run_id,omitempty"`
	Nodes []NodeStatus `json:"nodes"`
}

// NodeStatus is the state of one node when the run ended.
type NodeStatus struct {
	Node       uint32 `json:"node"`
	Ticks      uint64 `json:"ticks"`
	Tasks      int    `json:"tasks"`
	Semaphores int    `json:"semaphores"`
	Proxies    int    `json:"proxies"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Boot the nodes of a configuration",
		Long: `Boot the nodes of a system configuration and drive their clocks.

Without --node every node runs in this process, connected by the memory
transport. With --node N only node N runs and reaches its peers over the
tcp transport; start one process per node.

Kernel events and MP packets are journalled to --db, or to the journal
named in the configuration.

Example:
  synccore run --config ./system.cue --db ./journal.db
  synccore run --config ./two_nodes.cue --node 2
  synccore run --for 5s --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKernel(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Config, "config", "", "system configuration (.cue or .yaml); defaults apply when empty")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (overrides the configuration)")
	cmd.Flags().DurationVar(&opts.For, "for", 0, "stop after this long (0 runs until interrupted)")
	cmd.Flags().Uint32Var(&opts.Node, "node", 0, "run only this node over the tcp transport")

	return cmd
}

func runKernel(opts *RunOptions, cmd *cobra.Command) error {
	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose)
	slog.SetDefault(logger)

	cfg := config.Default()
	if opts.Config != "" {
		loaded, err := config.Load(opts.Config)
		if err != nil {
			return WrapExitError(configExitCode(err), "failed to load configuration", err)
		}
		cfg = loaded
	}
	if opts.Node > cfg.Nodes {
		return NewExitError(ExitCommandError, fmt.Sprintf("node %d is not in 1..%d", opts.Node, cfg.Nodes))
	}

	journalPath := cfg.Journal
	if opts.Database != "" {
		journalPath = opts.Database
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()
	if opts.For > 0 {
		ctx, cancel = context.WithTimeout(ctx, opts.For)
		defer cancel()
	}

	var journal *store.Journal
	if journalPath != "" {
		logger.Info("opening journal", "path", journalPath)
		st, err := store.Open(journalPath)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open journal", err)
		}
		defer func() {
			if err := st.Close(); err != nil {
				logger.Error("error closing journal", "error", err)
			}
		}()
		journal, err = st.Begin(ctx, opts.Node, kernel.ConfigJSON(cfg), store.JournalOptions{
			IDs:    opts.IDs,
			Logger: logger,
		})
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to begin run", err)
		}
		logger.Info("run started", "run_id", journal.RunID())
	}

	kopts := kernel.Options{Logger: logger}
	if journal != nil {
		kopts.Journal = journal
	}

	var (
		nodes []*kernel.Node
		serve func(context.Context) error
	)
	if opts.Node > 0 {
		node, err := kernel.NewNode(cfg.ForNode(opts.Node), kopts)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to boot node", err)
		}
		defer node.Close()
		nodes = []*kernel.Node{node}
		serve = node.Run
	} else {
		cluster, err := kernel.NewCluster(cfg, kopts)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to boot cluster", err)
		}
		defer cluster.Close()
		nodes = cluster.Nodes()
		serve = cluster.Run
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	if opts.Format != "json" {
		fmt.Fprintf(cmd.OutOrStdout(), "Kernel started: %d node(s), %d ticks/s.\n", len(nodes), cfg.TicksPerSecond)
		if opts.For == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")
		}
	}

	if err := serve(ctx); err != nil {
		return WrapExitError(ExitFailure, "kernel error", err)
	}
	logger.Info("kernel stopped gracefully")

	summary := RunSummary{Nodes: make([]NodeStatus, 0, len(nodes))}
	if journal != nil {
		summary.RunID = journal.RunID()
	}
	for _, n := range nodes {
		status := NodeStatus{
			Node:       n.ID(),
			Ticks:      n.Clock.Now(),
			Tasks:      n.Tasks.Len(),
			Semaphores: n.Semaphores.Len(),
		}
		if n.MPCI != nil {
			status.Proxies = n.MPCI.Proxies()
		}
		summary.Nodes = append(summary.Nodes, status)
	}

	if err := outputRunSummary(cmd, opts, summary); err != nil {
		return err
	}
	if journal != nil {
		if err := journal.Err(); err != nil {
			return WrapExitError(ExitFailure, "journal writes failed", err)
		}
	}
	return nil
}

// configExitCode separates unreadable configuration files from invalid
// ones, the way validate does.
func configExitCode(err error) int {
	var cfgErr *config.Error
	if errors.As(err, &cfgErr) && cfgErr.Code != config.ErrCodeNotFound && cfgErr.Code != config.ErrCodeFormat {
		return ExitFailure
	}
	return ExitCommandError
}

func outputRunSummary(cmd *cobra.Command, opts *RunOptions, summary RunSummary) error {
	w := cmd.OutOrStdout()
	if opts.Format == "json" {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(CLIResponse{Status: "ok", Data: summary, RunID: summary.RunID})
	}

	if summary.RunID != "" {
		fmt.Fprintf(w, "Run %s\n", summary.RunID)
	}
	for _, n := range summary.Nodes {
		fmt.Fprintf(w, "  node %d: %d ticks, %d tasks, %d semaphores, %d proxies\n",
			n.Node, n.Ticks, n.Tasks, n.Semaphores, n.Proxies)
	}
	return nil
}
