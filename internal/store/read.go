package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/synccore/internal/ir"
)

// ErrNoRuns is returned by LatestRun on an empty journal.
var ErrNoRuns = errors.New("journal has no runs")

// ReadRuns returns every run ordered by started_seq, then id.
func (s *Store) ReadRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, node, started_seq, config
		FROM runs
		ORDER BY started_seq ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Node, &r.StartedSeq, &r.Config); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// LatestRun returns the run with the highest started_seq.
func (s *Store) LatestRun(ctx context.Context) (Run, error) {
	var r Run
	err := s.db.QueryRowContext(ctx, `
		SELECT id, node, started_seq, config
		FROM runs
		ORDER BY started_seq DESC, id COLLATE BINARY DESC
		LIMIT 1
	`).Scan(&r.ID, &r.Node, &r.StartedSeq, &r.Config)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNoRuns
	}
	if err != nil {
		return Run{}, fmt.Errorf("query latest run: %w", err)
	}
	return r, nil
}

// ReadEvents returns the events of a run in seq order.
func (s *Store) ReadEvents(ctx context.Context, runID string) ([]EventRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, seq, run_id, node, kind, object_id, thread_id, status, detail
		FROM events
		WHERE run_id = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []EventRecord{}
	for rows.Next() {
		var (
			e              EventRecord
			object, thread uint32
			detail         string
		)
		if err := rows.Scan(&e.ID, &e.Seq, &e.RunID, &e.Node, &e.Kind, &object, &thread, &e.Status, &detail); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Object = ir.ObjectID(object)
		e.Thread = ir.ObjectID(thread)
		if e.Detail, err = unmarshalDetail(detail); err != nil {
			return nil, fmt.Errorf("event %s: %w", e.ID, err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// ReadPackets returns the packets of a run in seq order.
func (s *Store) ReadPackets(ctx context.Context, runID string) ([]PacketRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, seq, run_id, node, direction, peer, class, operation, object_id, source_tid, return_code, raw
		FROM packets
		WHERE run_id = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query packets: %w", err)
	}
	defer rows.Close()

	packets := []PacketRecord{}
	for rows.Next() {
		var (
			p                 PacketRecord
			object, sourceTID uint32
		)
		if err := rows.Scan(&p.ID, &p.Seq, &p.RunID, &p.Node, &p.Direction, &p.Peer, &p.Class,
			&p.Operation, &object, &sourceTID, &p.ReturnCode, &p.Raw); err != nil {
			return nil, fmt.Errorf("scan packet: %w", err)
		}
		p.Object = ir.ObjectID(object)
		p.SourceTID = ir.ObjectID(sourceTID)
		packets = append(packets, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate packets: %w", err)
	}
	return packets, nil
}
