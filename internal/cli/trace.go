package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/synccore/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	RunID    string
	Kind     string // optional - filter to one event kind
	Packets  bool
}

// TraceEvent is one journaled directive outcome.
type TraceEvent struct {
	Seq    int64          `json:"seq"`
	ID     string         `json:"id"`
	Node   uint32         `json:"node"`
	Kind   string         `json:"kind"`
	Object string         `json:"object"`
	Thread string         `json:"thread"`
	Status string         `json:"status"`
	Detail map[string]any `json:"detail,omitempty"`
}

// TracePacket is one journaled MP packet.
type TracePacket struct {
	Seq        int64  `json:"seq"`
	Node       uint32 `json:"node"`
	Direction  string `json:"direction"`
	Peer       uint32 `json:"peer"`
	Class      string `json:"class"`
	Operation  string `json:"operation"`
	Object     string `json:"object"`
	SourceTID  string `json:"source_tid"`
	ReturnCode string `json:"return_code"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	RunID   string        `json:"run_id"`
	Node    uint32        `json:"node"`
	Events  []TraceEvent  `json:"events"`
	Packets []TracePacket `json:"packets,omitempty"`
	Stats   TraceStats    `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	Events   int            `json:"events"`
	Packets  int            `json:"packets"`
	ByStatus map[string]int `json:"by_status"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show the journal of a run",
		Long: `Show the directive outcomes journalled during a run, in seq order.

Each event names the node, the directive kind, the object and executing
thread ids, and the completion status. With --packets the MP packets the
nodes exchanged are listed as well.

The latest run is shown unless --run names another.

Examples:
  synccore trace --db ./journal.db
  synccore trace --db ./journal.db --run 01925f3c-... --packets
  synccore trace --db ./journal.db --kind obtain --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run id to show (default: latest run)")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "filter to one event kind, e.g. obtain")
	cmd.Flags().BoolVar(&opts.Packets, "packets", false, "include MP packets")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	// Opening a missing path would create an empty journal.
	if _, err := os.Stat(opts.Database); err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer st.Close()

	run, err := selectRun(ctx, st, opts.RunID)
	if errors.Is(err, store.ErrNoRuns) {
		if opts.Format == "json" {
			return outputTraceJSON(cmd, TraceResult{
				Events: []TraceEvent{},
				Stats:  TraceStats{ByStatus: map[string]int{}},
			})
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Journal has no runs.")
		return nil
	}
	if err != nil {
		return err
	}

	events, err := st.ReadEvents(ctx, run.ID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read events", err)
	}

	result := TraceResult{
		RunID:  run.ID,
		Node:   run.Node,
		Events: buildTimeline(events, opts.Kind),
		Stats:  TraceStats{ByStatus: map[string]int{}},
	}
	for _, e := range result.Events {
		result.Stats.ByStatus[e.Status]++
	}
	result.Stats.Events = len(result.Events)

	if opts.Packets {
		packets, err := st.ReadPackets(ctx, run.ID)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read packets", err)
		}
		result.Packets = buildPackets(packets)
		result.Stats.Packets = len(result.Packets)
	}

	if opts.Format == "json" {
		return outputTraceJSON(cmd, result)
	}
	return outputTraceText(cmd, result, opts.Verbose)
}

// selectRun returns the run named id, or the latest run when id is empty.
func selectRun(ctx context.Context, st *store.Store, id string) (store.Run, error) {
	if id == "" {
		run, err := st.LatestRun(ctx)
		if err != nil && !errors.Is(err, store.ErrNoRuns) {
			return store.Run{}, WrapExitError(ExitCommandError, "failed to read runs", err)
		}
		return run, err
	}

	runs, err := st.ReadRuns(ctx)
	if err != nil {
		return store.Run{}, WrapExitError(ExitCommandError, "failed to read runs", err)
	}
	for _, r := range runs {
		if r.ID == id {
			return r, nil
		}
	}
	return store.Run{}, NewExitError(ExitCommandError, fmt.Sprintf("run not found: %s", id))
}

// buildTimeline converts journaled events to trace events, keeping only
// kindFilter when it is set.
func buildTimeline(events []store.EventRecord, kindFilter string) []TraceEvent {
	timeline := make([]TraceEvent, 0, len(events))
	for _, e := range events {
		if kindFilter != "" && e.Kind != kindFilter {
			continue
		}
		timeline = append(timeline, TraceEvent{
			Seq:    e.Seq,
			ID:     e.ID,
			Node:   e.Node,
			Kind:   e.Kind,
			Object: e.Object.String(),
			Thread: e.Thread.String(),
			Status: e.Status,
			Detail: e.Detail,
		})
	}
	return timeline
}

func buildPackets(packets []store.PacketRecord) []TracePacket {
	out := make([]TracePacket, 0, len(packets))
	for _, p := range packets {
		out = append(out, TracePacket{
			Seq:        p.Seq,
			Node:       p.Node,
			Direction:  p.Direction,
			Peer:       p.Peer,
			Class:      p.Class,
			Operation:  p.Operation,
			Object:     p.Object.String(),
			SourceTID:  p.SourceTID.String(),
			ReturnCode: p.ReturnCode,
		})
	}
	return out
}

// outputTraceJSON outputs the trace result as JSON.
func outputTraceJSON(cmd *cobra.Command, result TraceResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
		RunID:  result.RunID,
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(response)
}

// outputTraceText outputs the trace result as text.
func outputTraceText(cmd *cobra.Command, result TraceResult, verbose bool) error {
	w := cmd.OutOrStdout()

	scope := "all nodes"
	if result.Node != 0 {
		scope = fmt.Sprintf("node %d", result.Node)
	}
	fmt.Fprintf(w, "Trace for Run: %s (%s)\n", result.RunID, scope)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Events ===")
	if len(result.Events) == 0 {
		fmt.Fprintln(w, "  (no events)")
	}
	for _, event := range result.Events {
		formatTimelineEvent(w, event, verbose)
	}
	fmt.Fprintln(w)

	if result.Packets != nil {
		fmt.Fprintln(w, "=== Packets ===")
		if len(result.Packets) == 0 {
			fmt.Fprintln(w, "  (no packets)")
		}
		for _, p := range result.Packets {
			fmt.Fprintf(w, "  [%d] node %d %s peer %d %s %s %s\n",
				p.Seq, p.Node, p.Direction, p.Peer, p.Class, p.Operation, p.ReturnCode)
			if verbose {
				fmt.Fprintf(w, "       Object: %s  Source: %s\n", p.Object, p.SourceTID)
			}
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Events:  %d\n", result.Stats.Events)
	if result.Packets != nil {
		fmt.Fprintf(w, "  Packets: %d\n", result.Stats.Packets)
	}
	statuses := make([]string, 0, len(result.Stats.ByStatus))
	for s := range result.Stats.ByStatus {
		statuses = append(statuses, s)
	}
	sort.Strings(statuses)
	for _, s := range statuses {
		fmt.Fprintf(w, "  %-20s %d\n", s, result.Stats.ByStatus[s])
	}

	return nil
}

// formatTimelineEvent formats a single event for text output.
func formatTimelineEvent(w io.Writer, event TraceEvent, verbose bool) {
	fmt.Fprintf(w, "  [%d] node %d %s %s thread %s %s\n",
		event.Seq, event.Node, event.Kind, event.Object, event.Thread, colorStatus(event.Status))
	if len(event.Detail) > 0 {
		fmt.Fprintf(w, "       %s\n", formatArgs(event.Detail))
	}
	if verbose {
		fmt.Fprintf(w, "       ID: %s\n", truncateID(event.ID))
	}
}

// formatArgs formats a detail map for display.
// Uses sorted keys to ensure deterministic output.
func formatArgs(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}

	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, formatValue(args[k])))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// formatValue formats a single value for display, handling nested structures deterministically.
func formatValue(v any) string {
	switch val := v.(type) {
	case map[string]any:
		return formatArgs(val)
	case []any:
		parts := make([]string, len(val))
		for i, elem := range val {
			parts[i] = formatValue(elem)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case string:
		return val
	default:
		return fmt.Sprintf("%v", v)
	}
}

// truncateID truncates a long ID for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}
