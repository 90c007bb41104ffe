package mp

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"
)

// maxFrame bounds a frame read from the network.
const maxFrame = 4 * MinimumPacketSize

// TCPTransport carries frames over TCP, one connection per peer. Each frame
// is preceded by its length as a big-endian 32-bit word.
type TCPTransport struct {
	node   uint32
	peers  map[uint32]string
	inbox  *Inbox
	logger *slog.Logger

	ln net.Listener

	mu       sync.Mutex
	conns    map[uint32]net.Conn
	accepted map[net.Conn]struct{}
	closed   bool
	wg       sync.WaitGroup
}

// ListenTCP listens on addr and delivers received frames into inbox. peers
// maps node numbers to dial addresses.
func ListenTCP(node uint32, addr string, peers map[uint32]string, inbox *Inbox, logger *slog.Logger) (*TCPTransport, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, &TransportError{Node: node, Op: "listen", Err: err}
	}
	t := &TCPTransport{
		node:   node,
		peers:  peers,
		inbox:  inbox,
		logger: logger,
		ln:     ln,
		conns:  make(map[uint32]net.Conn),

		accepted: make(map[net.Conn]struct{}),
	}
	t.wg.Add(1)
	go t.accept()
	return t, nil
}

// Addr returns the listening address.
func (t *TCPTransport) Addr() net.Addr {
	return t.ln.Addr()
}

// SetPeer sets or replaces the dial address of node.
func (t *TCPTransport) SetPeer(node uint32, addr string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.peers == nil {
		t.peers = make(map[uint32]string)
	}
	t.peers[node] = addr
	if c, ok := t.conns[node]; ok {
		c.Close()
		delete(t.conns, node)
	}
}

func (t *TCPTransport) accept() {
	defer t.wg.Done()
	for {
		c, err := t.ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				t.logger.Warn("mp accept failed", "node", t.node, "error", err)
			}
			return
		}
		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			c.Close()
			return
		}
		t.accepted[c] = struct{}{}
		t.wg.Add(1)
		t.mu.Unlock()
		go t.serve(c)
	}
}

func (t *TCPTransport) serve(c net.Conn) {
	defer t.wg.Done()
	defer func() {
		c.Close()
		t.mu.Lock()
		delete(t.accepted, c)
		t.mu.Unlock()
	}()

	r := bufio.NewReader(c)
	var hdr [4]byte
	for {
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				t.logger.Warn("mp read failed", "node", t.node, "remote", c.RemoteAddr().String(), "error", err)
			}
			return
		}
		n := binary.BigEndian.Uint32(hdr[:])
		if n == 0 || n > maxFrame {
			t.logger.Warn("mp frame rejected", "node", t.node, "length", n)
			return
		}
		frame := make([]byte, n)
		if _, err := io.ReadFull(r, frame); err != nil {
			t.logger.Warn("mp read failed", "node", t.node, "error", err)
			return
		}
		if !t.inbox.Enqueue(frame) {
			return
		}
	}
}

// Send writes frame to node, dialing on first use. A failed write drops
// the connection so the next send redials.
func (t *TCPTransport) Send(node uint32, frame []byte) error {
	c, err := t.conn(node)
	if err != nil {
		return err
	}
	buf := make([]byte, 4+len(frame))
	binary.BigEndian.PutUint32(buf, uint32(len(frame)))
	copy(buf[4:], frame)

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := c.Write(buf); err != nil {
		c.Close()
		if t.conns[node] == c {
			delete(t.conns, node)
		}
		return &TransportError{Node: node, Op: "send", Err: err}
	}
	return nil
}

func (t *TCPTransport) conn(node uint32) (net.Conn, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, &TransportError{Node: node, Op: "send", Err: ErrClosed}
	}
	if c, ok := t.conns[node]; ok {
		t.mu.Unlock()
		return c, nil
	}
	addr, ok := t.peers[node]
	t.mu.Unlock()
	if !ok {
		return nil, &TransportError{Node: node, Op: "dial", Err: ErrUnknownNode}
	}

	c, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return nil, &TransportError{Node: node, Op: "dial", Err: err}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.conns[node]; ok {
		c.Close()
		return existing, nil
	}
	t.conns[node] = c
	return c, nil
}

// Close stops accepting, closes every connection and waits for the reader
// goroutines to exit.
func (t *TCPTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	for n, c := range t.conns {
		c.Close()
		delete(t.conns, n)
	}
	for c := range t.accepted {
		c.Close()
	}
	t.mu.Unlock()

	err := t.ln.Close()
	t.wg.Wait()
	if err != nil {
		return fmt.Errorf("close mp listener: %w", err)
	}
	return nil
}
