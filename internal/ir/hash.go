package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed journal identity.
const (
	DomainEvent  = "synccore/event/v1"
	DomainPacket = "synccore/packet/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// EventID computes the content-addressed id of a journal event. Writing
// the same event twice yields the same id, so journal inserts are
// idempotent.
func EventID(runID string, seq int64, kind string, detail map[string]any) (string, error) {
	obj := map[string]any{
		"run_id": runID,
		"seq":    seq,
		"kind":   kind,
		"detail": detail,
	}
	if detail == nil {
		obj["detail"] = map[string]any{}
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("EventID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainEvent, canonical), nil
}

// PacketDigest identifies an encoded packet image in the journal.
func PacketDigest(runID string, seq int64, raw []byte) string {
	data := make([]byte, 0, len(runID)+len(raw)+9)
	data = append(data, runID...)
	data = append(data, 0)
	data = fmt.Appendf(data, "%d", seq)
	data = append(data, 0)
	data = append(data, raw...)
	return hashWithDomain(DomainPacket, data)
}
