// Package transport implements the buffered, interruptible byte stream that
// underlies a POP3 connection (spec §4.1). It is TLS-agnostic: the TLS
// engine (internal/tlstrust) negotiates a tls.Conn and hands it back here
// via Connection.UpgradeTo, which replaces the ops vector wholesale — the
// idiomatic Go analogue of spec §4.2.1's "overrides the Connection's
// read/write/close vectors so that all subsequent byte I/O goes through the
// TLS record layer."
package transport

import (
	"bufio"
	"errors"
	"net"
	"strings"
	"sync"
	"time"
)

// ErrInterrupted is returned by Read/Write when the process Interrupter was
// raised mid-call. It is distinguishable from network failure so callers can
// decide whether to retry or abort (spec §5).
var ErrInterrupted = errors.New("transport: interrupted")

// PollResult is the outcome of Poll.
type PollResult int

const (
	// PollEmpty means the timeout elapsed with nothing to read.
	PollEmpty PollResult = iota
	// PollReady means data is available to read without blocking.
	PollReady
	// PollUnsupported means the underlying connection cannot be polled;
	// callers should treat this as "assume readable" (spec §4.1).
	PollUnsupported
)

// Ops is the read/write/close vector a Connection delegates to. Negotiating
// TLS replaces it wholesale; it never mutates in place.
type Ops interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
	SetReadDeadline(t time.Time) error
}

// netConnOps adapts a net.Conn to Ops.
type netConnOps struct{ net.Conn }

// Connection owns a socket, a buffered receive window, and a mutable ops
// vector. It is single-threaded and non-reentrant per spec §5.
type Connection struct {
	mu          sync.Mutex
	ops         Ops
	reader      *bufio.Reader
	interrupter *Interrupter
	refs        int
	closed      bool
}

// New wraps an established net.Conn. The Interrupter defaults to
// transport.Global when nil.
func New(conn net.Conn, interrupter *Interrupter) *Connection {
	if interrupter == nil {
		interrupter = Global
	}
	c := &Connection{
		ops:         netConnOps{conn},
		interrupter: interrupter,
		refs:        1,
	}
	c.reader = bufio.NewReaderSize(connReader{c}, 8192)
	return c
}

// connReader adapts Connection.read to io.Reader so bufio can sit in front
// of whatever ops vector is current at call time.
type connReader struct{ c *Connection }

func (r connReader) Read(p []byte) (int, error) { return r.c.read(p) }

func (c *Connection) currentOps() Ops {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ops
}

func (c *Connection) read(p []byte) (int, error) {
	if c.interrupter.Raised() {
		return 0, ErrInterrupted
	}
	n, err := c.currentOps().Read(p)
	if err != nil && c.interrupter.Raised() {
		return n, ErrInterrupted
	}
	return n, err
}

// Write writes to the connection, honoring the process Interrupter.
func (c *Connection) Write(p []byte) (int, error) {
	if c.interrupter.Raised() {
		return 0, ErrInterrupted
	}
	n, err := c.currentOps().Write(p)
	if err != nil && c.interrupter.Raised() {
		return n, ErrInterrupted
	}
	return n, err
}

// WriteString is a convenience wrapper used by the POP3 protocol engine to
// send command lines.
func (c *Connection) WriteString(s string) (int, error) {
	return c.Write([]byte(s))
}

// ReadLine returns one logical line with a trailing "\r\n" or "\n" stripped,
// per spec §4.1's readln contract.
func (c *Connection) ReadLine() (string, error) {
	line, err := c.reader.ReadString('\n')
	if err != nil {
		return strings.TrimRight(line, "\r\n"), err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// ReadByte reads a single byte from the buffered window.
func (c *Connection) ReadByte() (byte, error) {
	return c.reader.ReadByte()
}

// Peek returns the next n bytes from the buffered window without consuming
// them, reading from the connection if fewer than n are buffered.
func (c *Connection) Peek(n int) ([]byte, error) {
	return c.reader.Peek(n)
}

// Poll reports whether a read would block, per spec §4.1.
func (c *Connection) Poll(timeout time.Duration) PollResult {
	if c.reader.Buffered() > 0 {
		return PollReady
	}
	ops := c.currentOps()
	if err := ops.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return PollUnsupported
	}
	defer ops.SetReadDeadline(time.Time{})

	_, err := c.reader.Peek(1)
	if err == nil {
		return PollReady
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return PollEmpty
	}
	return PollReady // closed/error: let the next real read surface it
}

// RawConn returns the underlying net.Conn, if the current ops vector is
// still the plain net.Conn adapter (i.e. no TLS has been layered on yet).
// The TLS engine needs this to drive a handshake over the socket; once
// UpgradeTo has run, the second return is false.
func (c *Connection) RawConn() (net.Conn, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	nc, ok := c.ops.(netConnOps)
	if !ok {
		return nil, false
	}
	return nc.Conn, true
}

// UpgradeTo replaces the ops vector, e.g. after a successful TLS handshake.
// Any bytes already buffered in the plaintext reader are discarded, since a
// TLS upgrade (initial dial or STARTTLS) always begins a fresh record
// stream.
func (c *Connection) UpgradeTo(ops Ops) {
	c.mu.Lock()
	c.ops = ops
	c.mu.Unlock()
	c.reader = bufio.NewReaderSize(connReader{c}, 8192)
}

// Acquire increments the reference count. Resolves the source's ambiguous
// "only freed if no other subsystem holds it" rule (spec §9) with explicit
// counting: callers that share a Connection must Acquire before handing it
// off and Release when done.
func (c *Connection) Acquire() {
	c.mu.Lock()
	c.refs++
	c.mu.Unlock()
}

// Release decrements the reference count, closing the underlying ops vector
// once it reaches zero.
func (c *Connection) Release() error {
	c.mu.Lock()
	c.refs--
	closeNow := c.refs <= 0 && !c.closed
	if closeNow {
		c.closed = true
	}
	ops := c.ops
	c.mu.Unlock()
	if closeNow {
		return ops.Close()
	}
	return nil
}

// Closed reports whether the connection has been fully released.
func (c *Connection) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
