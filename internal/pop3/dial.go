package pop3

import (
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/infodancer/popfetch/internal/tlstrust"
	"github.com/infodancer/popfetch/internal/transport"
)

// Mode is the account's TLS mode of spec §3 ("tls-mode ∈ {none, starttls,
// tls}").
type Mode int

const (
	// ModeNone never negotiates TLS.
	ModeNone Mode = iota
	// ModeSTARTTLS dials plaintext, then upgrades via STLS before auth.
	ModeSTARTTLS
	// ModeTLS dials with TLS active from the first byte (port 995).
	ModeTLS
)

// DialOptions groups what Dial needs beyond the bare address.
type DialOptions struct {
	Hostname       string
	Mode           Mode
	ConnectTimeout time.Duration
	TLS            tlstrust.Config
	TLSEngine      *tlstrust.Engine
	Prompter       tlstrust.Prompter
}

// Dial opens a TCP connection to addr (host:port), optionally negotiating
// TLS immediately (ModeTLS) or after STLS (ModeSTARTTLS), and returns a
// ready-to-use Protocol. The "connect-timeout arms an alarm around
// socket-level connect only" rule of spec §5 is implemented with
// net.DialTimeout; once the stream is established, reads do not self-timeout.
func Dial(addr string, opts DialOptions, logger *slog.Logger) (*Protocol, error) {
	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	raw, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, newError(KindTransport, err)
	}

	conn := transport.New(raw, nil)

	if opts.Mode == ModeTLS {
		if err := negotiateTLS(conn, opts); err != nil {
			conn.Release()
			return nil, err
		}
	}

	return NewProtocol(conn, logger), nil
}

// StartTLS performs the STLS command and TLS negotiation on an
// already-connected, plaintext Protocol (spec §4.2.1 "STARTTLS reuses the
// same path on a connection that already transported plaintext").
func (p *Protocol) StartTLS(opts DialOptions) error {
	if opts.TLSEngine == nil {
		return newError(KindTrust, ErrTLSNotAvailable)
	}
	ok, rest, err := p.Query(nil, "STLS")
	if err != nil {
		return err
	}
	if !ok {
		return newError(KindProtocol, fmt.Errorf("STLS rejected: %s", rest))
	}
	return negotiateTLS(p.conn, opts)
}

// negotiateTLS hands conn to the TLS engine and, on success, upgrades
// conn's ops vector to the resulting tls.Conn (spec §4.2.1). *tls.Conn
// already implements transport.Ops (Read/Write/Close/SetReadDeadline), so
// no adapter type is needed.
func negotiateTLS(conn *transport.Connection, opts DialOptions) error {
	if opts.TLSEngine == nil {
		return newError(KindTrust, ErrTLSNotAvailable)
	}
	raw, ok := conn.RawConn()
	if !ok {
		return newError(KindTrust, ErrAlreadyTLS)
	}
	tlsConn, err := opts.TLSEngine.Negotiate(raw, opts.Hostname, opts.TLS, opts.Prompter)
	if err != nil {
		return newError(KindTrust, err)
	}
	conn.UpgradeTo(tlsConn)
	return nil
}
