package store

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/roach88/synccore/internal/ir"
)

// Run is one boot of one node.
type Run struct {
	ID         string
	Node       uint32
	StartedSeq int64
	Config     string
}

// EventRecord is a journaled directive outcome.
type EventRecord struct {
	ID     string
	Seq    int64
	RunID  string
	Node   uint32
	Kind   string
	Object ir.ObjectID
	Thread ir.ObjectID
	Status string
	Detail map[string]any
}

// PacketRecord is a journaled MP packet.
type PacketRecord struct {
	ID         string
	Seq        int64
	RunID      string
	Node       uint32
	Direction  string
	Peer       uint32
	Class      string
	Operation  string
	Object     ir.ObjectID
	SourceTID  ir.ObjectID
	ReturnCode string
	Raw        []byte
}

// marshalDetail converts an event detail to canonical JSON TEXT.
func marshalDetail(detail map[string]any) (string, error) {
	if detail == nil {
		return "{}", nil
	}
	data, err := ir.MarshalCanonical(detail)
	if err != nil {
		return "", fmt.Errorf("marshal detail: %w", err)
	}
	return string(data), nil
}

// unmarshalDetail parses detail TEXT. Numbers stay json.Number so ids
// above 2^53 survive.
func unmarshalDetail(data string) (map[string]any, error) {
	detail := map[string]any{}
	if data == "" || data == "{}" {
		return detail, nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(data)))
	dec.UseNumber()
	if err := dec.Decode(&detail); err != nil {
		return nil, fmt.Errorf("unmarshal detail: %w", err)
	}
	return detail, nil
}
