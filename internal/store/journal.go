package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/roach88/synccore/internal/ir"
	"github.com/roach88/synccore/internal/mp"
)

// Sequencer stamps journal rows with a strictly increasing logical seq.
type Sequencer interface {
	Next() int64
}

// Seq is the production Sequencer.
//
// Thread-safety: safe for concurrent use.
type Seq struct {
	n atomic.Int64
}

// NewSeqAt returns a Seq whose first Next is start+1. Used to continue
// after the last row of an existing journal.
func NewSeqAt(start int64) *Seq {
	s := &Seq{}
	s.n.Store(start)
	return s
}

// Next returns the next seq.
func (s *Seq) Next() int64 {
	return s.n.Add(1)
}

// Current returns the last seq handed out.
func (s *Seq) Current() int64 {
	return s.n.Load()
}

// RunIDGenerator names runs.
type RunIDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 run ids.
type UUIDv7Generator struct{}

// Generate returns a new hyphenated UUIDv7. Panics if the system random
// source fails.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Journal records the events and packets of one run. It implements
// ir.Recorder; Tracer adapts it to mp.Tracer for one node.
//
// Rows are written synchronously under mu, so seq order is insertion order.
// Write failures are logged and counted, never returned to the kernel.
type Journal struct {
	store  *Store
	runID  string
	seq    Sequencer
	logger *slog.Logger

	mu       sync.Mutex
	failures int
	firstErr error
}

// JournalOptions configure Begin. Zero values select UUIDv7 run ids, a
// fresh Seq continuing after the journal's last row, and slog.Default().
type JournalOptions struct {
	IDs    RunIDGenerator
	Seq    Sequencer
	Logger *slog.Logger
}

// Begin starts a run. node is 0 for a run that spans every node of an
// in-process cluster. config is the resolved configuration as JSON.
func (s *Store) Begin(ctx context.Context, node uint32, config string, opts JournalOptions) (*Journal, error) {
	if opts.IDs == nil {
		opts.IDs = UUIDv7Generator{}
	}
	if opts.Seq == nil {
		last, err := s.lastSeq(ctx)
		if err != nil {
			return nil, err
		}
		opts.Seq = NewSeqAt(last)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	j := &Journal{
		store:  s,
		runID:  opts.IDs.Generate(),
		seq:    opts.Seq,
		logger: opts.Logger,
	}
	run := Run{ID: j.runID, Node: node, StartedSeq: j.seq.Next(), Config: config}
	if err := s.WriteRun(ctx, run); err != nil {
		return nil, err
	}
	return j, nil
}

// lastSeq returns the highest seq in the journal.
func (s *Store) lastSeq(ctx context.Context) (int64, error) {
	var last int64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(m) FROM (
			SELECT COALESCE(MAX(started_seq), 0) AS m FROM runs
			UNION ALL SELECT COALESCE(MAX(seq), 0) FROM events
			UNION ALL SELECT COALESCE(MAX(seq), 0) FROM packets
		)
	`).Scan(&last)
	if err != nil {
		return 0, fmt.Errorf("query last seq: %w", err)
	}
	return last, nil
}

// RunID returns the id of the run.
func (j *Journal) RunID() string {
	return j.runID
}

// Record journals a directive outcome.
func (j *Journal) Record(e ir.Event) {
	j.mu.Lock()
	defer j.mu.Unlock()

	seq := j.seq.Next()
	detail := e.Detail
	if detail == nil {
		detail = map[string]any{}
	}
	id, err := ir.EventID(j.runID, seq, e.Kind, detail)
	if err != nil {
		j.fail(err)
		return
	}
	err = j.store.WriteEvent(context.Background(), EventRecord{
		ID:     id,
		Seq:    seq,
		RunID:  j.runID,
		Node:   e.Node,
		Kind:   e.Kind,
		Object: e.Object,
		Thread: e.Thread,
		Status: e.Status.String(),
		Detail: detail,
	})
	if err != nil {
		j.fail(err)
	}
}

func (j *Journal) tracePacket(node uint32, dir mp.Direction, peer uint32, p *ir.Packet, frame []byte) {
	j.mu.Lock()
	defer j.mu.Unlock()

	seq := j.seq.Next()
	raw := append([]byte(nil), frame...)
	err := j.store.WritePacket(context.Background(), PacketRecord{
		ID:         ir.PacketDigest(j.runID, seq, raw),
		Seq:        seq,
		RunID:      j.runID,
		Node:       node,
		Direction:  string(dir),
		Peer:       peer,
		Class:      p.Class.String(),
		Operation:  mp.OperationName(p.Class, p.Operation),
		Object:     p.ID,
		SourceTID:  p.SourceTID,
		ReturnCode: p.ReturnCode.String(),
		Raw:        raw,
	})
	if err != nil {
		j.fail(err)
	}
}

// fail is called with mu held.
func (j *Journal) fail(err error) {
	j.failures++
	if j.firstErr == nil {
		j.firstErr = err
	}
	j.logger.Warn("journal write failed", "run", j.runID, "error", err)
}

// Err returns the first write failure, or nil.
func (j *Journal) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.firstErr == nil {
		return nil
	}
	return fmt.Errorf("%d journal writes failed, first: %w", j.failures, j.firstErr)
}

// Tracer returns an mp.Tracer that journals the packets of node.
func (j *Journal) Tracer(node uint32) mp.Tracer {
	return nodeTracer{j: j, node: node}
}

type nodeTracer struct {
	j    *Journal
	node uint32
}

func (t nodeTracer) TracePacket(dir mp.Direction, peer uint32, p *ir.Packet, frame []byte) {
	t.j.tracePacket(t.node, dir, peer, p, frame)
}
