package store

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/synccore/internal/ir"
	"github.com/roach88/synccore/internal/mp"
	"github.com/roach88/synccore/internal/testutil"
)

func beginTestJournal(t *testing.T, s *Store, runID string) *Journal {
	t.Helper()
	j, err := s.Begin(context.Background(), 0, `{"nodes":2}`, JournalOptions{
		IDs: testutil.NewFixedRunIDGenerator(runID),
		Seq: testutil.NewDeterministicClock(),
	})
	require.NoError(t, err)
	return j
}

func TestJournal_RecordEvents(t *testing.T) {
	s := openTestStore(t)
	j := beginTestJournal(t, s, "run-1")
	ctx := context.Background()

	sid := ir.BuildID(ir.APIClassic, ir.ClassSemaphores, 1, 1)
	tid := ir.BuildID(ir.APIClassic, ir.ClassTasks, 1, 1)
	j.Record(ir.Event{Kind: ir.EventCreate, Node: 1, Object: sid, Detail: map[string]any{"count": int64(1)}})
	j.Record(ir.Event{Kind: ir.EventObtain, Node: 1, Object: sid, Thread: tid, Status: ir.StatusUnsatisfied})
	require.NoError(t, j.Err())

	events, err := s.ReadEvents(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, int64(2), events[0].Seq, "seq 1 is the run row")
	assert.Equal(t, ir.EventCreate, events[0].Kind)
	assert.Equal(t, sid, events[0].Object)
	assert.Equal(t, "SUCCESSFUL", events[0].Status)
	assert.Equal(t, json.Number("1"), events[0].Detail["count"])

	assert.Equal(t, int64(3), events[1].Seq)
	assert.Equal(t, tid, events[1].Thread)
	assert.Equal(t, "UNSATISFIED", events[1].Status)
	assert.Empty(t, events[1].Detail)
}

func TestJournal_TracePackets(t *testing.T) {
	s := openTestStore(t)
	j := beginTestJournal(t, s, "run-2")

	p := &ir.Packet{
		Class:     ir.PacketTasks,
		Operation: ir.OpTaskSetPriorityRequest,
		ID:        ir.BuildID(ir.APIClassic, ir.ClassTasks, 2, 1),
		SourceTID: ir.BuildID(ir.APIClassic, ir.ClassTasks, 1, 1),
		Priority:  10,
	}
	require.NoError(t, mp.Stamp(p))
	frame, err := mp.Encode(p)
	require.NoError(t, err)

	j.Tracer(1).TracePacket(mp.DirectionSend, 2, p, frame)
	j.Tracer(2).TracePacket(mp.DirectionReceive, 1, p, frame)
	require.NoError(t, j.Err())

	packets, err := s.ReadPackets(context.Background(), "run-2")
	require.NoError(t, err)
	require.Len(t, packets, 2)

	assert.Equal(t, uint32(1), packets[0].Node)
	assert.Equal(t, "send", packets[0].Direction)
	assert.Equal(t, uint32(2), packets[0].Peer)
	assert.Equal(t, "tasks", packets[0].Class)
	assert.Equal(t, "set_priority_request", packets[0].Operation)
	assert.Equal(t, frame, packets[0].Raw)

	assert.Equal(t, "receive", packets[1].Direction)
	assert.NotEqual(t, packets[0].ID, packets[1].ID)
}

func TestJournal_RunsAndLatest(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.LatestRun(ctx)
	assert.ErrorIs(t, err, ErrNoRuns)

	first, err := s.Begin(ctx, 1, "", JournalOptions{})
	require.NoError(t, err)
	first.Record(ir.Event{Kind: ir.EventCreate, Node: 1})

	second, err := s.Begin(ctx, 1, "", JournalOptions{})
	require.NoError(t, err)

	runs, err := s.ReadRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, first.RunID(), runs[0].ID)
	assert.Equal(t, "{}", runs[0].Config)

	latest, err := s.LatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.RunID(), latest.ID)
	assert.Greater(t, latest.StartedSeq, runs[0].StartedSeq, "seq continues after the journal's last row")
}

func TestJournal_WriteFailureIsReported(t *testing.T) {
	s := openTestStore(t)
	j := beginTestJournal(t, s, "run-3")

	j.Record(ir.Event{Kind: ir.EventCreate, Detail: map[string]any{"bad": 1.5}})

	err := j.Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 journal writes failed")
}

func TestJournal_SameRunIDIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		j := beginTestJournal(t, s, "replayed")
		j.Record(ir.Event{Kind: ir.EventRelease, Node: 1})
	}

	runs, err := s.ReadRuns(ctx)
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	events, err := s.ReadEvents(ctx, "replayed")
	require.NoError(t, err)
	assert.Len(t, events, 1, "identical events share a content-addressed id")
}
