package store

import (
	"context"
	"fmt"
)

// WriteRun inserts a run. Duplicate run ids are ignored.
func (s *Store) WriteRun(ctx context.Context, run Run) error {
	config := run.Config
	if config == "" {
		config = "{}"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, node, started_seq, config)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, run.ID, run.Node, run.StartedSeq, config)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	return nil
}

// WriteEvent inserts an event. The run must exist.
func (s *Store) WriteEvent(ctx context.Context, e EventRecord) error {
	detail, err := marshalDetail(e.Detail)
	if err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events
		(id, seq, run_id, node, kind, object_id, thread_id, status, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		e.ID,
		e.Seq,
		e.RunID,
		e.Node,
		e.Kind,
		uint32(e.Object),
		uint32(e.Thread),
		e.Status,
		detail,
	)
	if err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

// WritePacket inserts a packet. The run must exist.
func (s *Store) WritePacket(ctx context.Context, p PacketRecord) error {
	raw := p.Raw
	if raw == nil {
		raw = []byte{}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO packets
		(id, seq, run_id, node, direction, peer, class, operation, object_id, source_tid, return_code, raw)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		p.ID,
		p.Seq,
		p.RunID,
		p.Node,
		p.Direction,
		p.Peer,
		p.Class,
		p.Operation,
		uint32(p.Object),
		uint32(p.SourceTID),
		p.ReturnCode,
		raw,
	)
	if err != nil {
		return fmt.Errorf("write packet: %w", err)
	}
	return nil
}
