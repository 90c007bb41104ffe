package mp

import (
	"encoding/binary"
	"fmt"

	"github.com/roach88/synccore/internal/ir"
)

// MinimumPacketSize is the size every node must be able to receive.
const MinimumPacketSize = 64

const wordSize = 4

// Prefix layout shared by all classes.
const (
	prefixWords = 8
	prefixSize  = prefixWords * wordSize
)

// Per-class layouts.
const (
	// operation, priority | name
	TaskPacketSize      = prefixSize + 3*wordSize
	taskPacketToConvert = prefixSize + 2*wordSize

	// operation, signal set
	SignalPacketSize      = prefixSize + 2*wordSize
	signalPacketToConvert = SignalPacketSize

	// operation, option | name
	SemaphorePacketSize      = prefixSize + 3*wordSize
	semaphorePacketToConvert = prefixSize + 2*wordSize
)

// Every class layout must fit the minimum packet size.
var (
	_ [MinimumPacketSize - TaskPacketSize]struct{}
	_ [MinimumPacketSize - SignalPacketSize]struct{}
	_ [MinimumPacketSize - SemaphorePacketSize]struct{}
)

// layout returns the size and conversion range of a class.
func layout(class ir.PacketClass) (size, toConvert uint32, ok bool) {
	switch class {
	case ir.PacketTasks:
		return TaskPacketSize, taskPacketToConvert, true
	case ir.PacketSignal:
		return SignalPacketSize, signalPacketToConvert, true
	case ir.PacketSemaphores:
		return SemaphorePacketSize, semaphorePacketToConvert, true
	}
	return 0, 0, false
}

// Stamp fills in Length and ToConvert for the packet's class.
func Stamp(p *ir.Packet) error {
	size, toConvert, ok := layout(p.Class)
	if !ok {
		return fmt.Errorf("stamp packet: unknown class %d", p.Class)
	}
	p.Length = size
	p.ToConvert = toConvert
	return nil
}

// Encode serializes p using its class layout.
func Encode(p *ir.Packet) ([]byte, error) {
	if err := Stamp(p); err != nil {
		return nil, err
	}
	b := make([]byte, p.Length)
	w := wordWriter{buf: b}
	w.put(uint32(p.Class))
	w.put(p.Length)
	w.put(p.ToConvert)
	w.put(uint32(p.ID))
	w.put(uint32(p.SourceTID))
	w.put(uint32(p.SourcePriority))
	w.put(uint32(p.ReturnCode))
	w.put(uint32(p.Timeout))
	w.put(uint32(p.Operation))

	switch p.Class {
	case ir.PacketTasks:
		w.put(uint32(p.Priority))
		w.putName(p.Name)
	case ir.PacketSignal:
		w.put(uint32(p.SignalSet))
	case ir.PacketSemaphores:
		w.put(uint32(p.Option))
		w.putName(p.Name)
	}
	return b, nil
}

// Decode parses a frame produced by Encode.
func Decode(b []byte) (ir.Packet, error) {
	var p ir.Packet
	if len(b) < prefixSize+wordSize {
		return p, fmt.Errorf("decode packet: short frame (%d bytes)", len(b))
	}
	r := wordReader{buf: b}
	p.Class = ir.PacketClass(r.get())
	p.Length = r.get()
	p.ToConvert = r.get()

	size, toConvert, ok := layout(p.Class)
	if !ok {
		return p, fmt.Errorf("decode packet: unknown class %d", p.Class)
	}
	if p.Length != size || uint32(len(b)) < size {
		return p, fmt.Errorf("decode packet: class %s length %d, frame %d, want %d",
			p.Class, p.Length, len(b), size)
	}
	if p.ToConvert != toConvert {
		return p, fmt.Errorf("decode packet: class %s converts %d bytes, want %d",
			p.Class, p.ToConvert, toConvert)
	}

	p.ID = ir.ObjectID(r.get())
	p.SourceTID = ir.ObjectID(r.get())
	p.SourcePriority = ir.Priority(r.get())
	p.ReturnCode = ir.Status(r.get())
	p.Timeout = ir.Interval(r.get())
	p.Operation = ir.Operation(r.get())

	switch p.Class {
	case ir.PacketTasks:
		p.Priority = ir.Priority(r.get())
		p.Name = r.getName()
	case ir.PacketSignal:
		p.SignalSet = ir.SignalSet(r.get())
	case ir.PacketSemaphores:
		p.Option = ir.Option(r.get())
		p.Name = r.getName()
	}
	if !p.ReturnCode.Valid() {
		return p, fmt.Errorf("decode packet: invalid return code %d", uint32(p.ReturnCode))
	}
	return p, nil
}

type wordWriter struct {
	buf []byte
	off int
}

func (w *wordWriter) put(v uint32) {
	binary.BigEndian.PutUint32(w.buf[w.off:], v)
	w.off += wordSize
}

// putName copies the four name characters without conversion.
func (w *wordWriter) putName(n ir.Name) {
	w.buf[w.off] = byte(n >> 24)
	w.buf[w.off+1] = byte(n >> 16)
	w.buf[w.off+2] = byte(n >> 8)
	w.buf[w.off+3] = byte(n)
	w.off += wordSize
}

type wordReader struct {
	buf []byte
	off int
}

func (r *wordReader) get() uint32 {
	v := binary.BigEndian.Uint32(r.buf[r.off:])
	r.off += wordSize
	return v
}

func (r *wordReader) getName() ir.Name {
	b := r.buf[r.off : r.off+wordSize]
	r.off += wordSize
	return ir.BuildName(b[0], b[1], b[2], b[3])
}
