package pop3

import (
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/infodancer/popfetch/internal/transport"
)

// Protocol owns the wire connection for one PopSession and implements the
// command/response framing of spec §4.3.1: single-line commands, a status
// line beginning "+OK"/"-ERR", and dot-unstuffed multi-line data for TOP,
// RETR, LIST and UIDL without arguments.
type Protocol struct {
	conn   *transport.Connection
	logger *slog.Logger
}

// NewProtocol wraps an already-connected transport.Connection. Dialing is
// Dial's job (dial.go) and the initial greeting is Open's (open.go);
// Protocol itself is
// transport-agnostic about how conn came to exist, plaintext or
// TLS-wrapped.
func NewProtocol(conn *transport.Connection, logger *slog.Logger) *Protocol {
	if logger == nil {
		logger = slog.Default()
	}
	return &Protocol{conn: conn, logger: logger}
}

// Conn returns the underlying transport connection, e.g. for the TLS
// engine to UpgradeTo after STARTTLS.
func (p *Protocol) Conn() *transport.Connection { return p.conn }

// sendCommand writes a single command line terminated by CRLF.
func (p *Protocol) sendCommand(cmd string) error {
	_, err := p.conn.WriteString(cmd + "\r\n")
	if err != nil {
		return newError(KindTransport, err)
	}
	return nil
}

// readStatusLine reads one line and splits it into the +OK/-ERR marker and
// the remainder of the line.
func (p *Protocol) readStatusLine() (ok bool, rest string, err error) {
	line, rerr := p.conn.ReadLine()
	if rerr != nil && line == "" {
		return false, "", newError(KindTransport, rerr)
	}
	switch {
	case strings.HasPrefix(line, "+OK"):
		return true, strings.TrimSpace(strings.TrimPrefix(line, "+OK")), nil
	case strings.HasPrefix(line, "-ERR"):
		return false, strings.TrimSpace(strings.TrimPrefix(line, "-ERR")), nil
	default:
		return false, "", newError(KindProtocol, fmt.Errorf("unexpected response: %q", line))
	}
}

// Query sends cmd and consumes a single-line response, per spec §4.3.1
// "query(cmd) returns 0 on +OK, -2 on -ERR ..., -1 on transport failure."
// The Go form replaces the three integer codes with a typed *Error whose
// Kind distinguishes KindProtocol from KindTransport; nil means +OK.
func (p *Protocol) Query(sess *PopSession, cmd string) (ok bool, message string, err error) {
	if err := p.sendCommand(cmd); err != nil {
		return false, "", err
	}
	ok, rest, err := p.readStatusLine()
	if err != nil {
		return false, "", err
	}
	if !ok {
		if sess != nil {
			sess.ErrMsg = rest
		}
		return false, rest, newError(KindProtocol, fmt.Errorf("%s", rest))
	}
	return true, rest, nil
}

// LineFunc processes one dot-unstuffed data line of a multi-line response.
// A non-nil return aborts the stream and is reported as a KindIntegrity
// error ("error writing tempfile" in spec §4.3.1's fetch_data).
type LineFunc func(line string) error

// FetchData sends cmd, expects a multi-line response, and invokes fn for
// each dot-unstuffed data line (spec §4.3.1's fetch_data). It returns the
// +OK status-line remainder on success.
func (p *Protocol) FetchData(sess *PopSession, cmd string, fn LineFunc) (string, error) {
	ok, rest, err := p.Query(sess, cmd)
	if err != nil {
		return "", err
	}
	if !ok {
		return rest, nil
	}
	if err := p.readMultiline(fn); err != nil {
		return rest, err
	}
	return rest, nil
}

// readMultiline reads data lines until a lone "." terminator, dot-unstuffing
// any leading ".." into ".".
func (p *Protocol) readMultiline(fn LineFunc) error {
	for {
		line, err := p.conn.ReadLine()
		if err != nil {
			return newError(KindTransport, err)
		}
		if line == "." {
			return nil
		}
		if strings.HasPrefix(line, "..") {
			line = line[1:]
		}
		if fn != nil {
			if cberr := fn(line); cberr != nil {
				return newError(KindIntegrity, cberr)
			}
		}
	}
}

// STAT issues the STAT command and returns the message count and total size
// in octets.
func (p *Protocol) STAT(sess *PopSession) (count int, size int64, err error) {
	ok, rest, err := p.Query(sess, "STAT")
	if err != nil {
		return 0, 0, err
	}
	if !ok {
		return 0, 0, newError(KindProtocol, fmt.Errorf("%s", rest))
	}
	fields := strings.Fields(rest)
	if len(fields) < 2 {
		return 0, 0, newError(KindProtocol, fmt.Errorf("malformed STAT response: %q", rest))
	}
	count, cerr := strconv.Atoi(fields[0])
	if cerr != nil {
		return 0, 0, newError(KindProtocol, fmt.Errorf("malformed STAT count: %w", cerr))
	}
	size, serr := strconv.ParseInt(fields[1], 10, 64)
	if serr != nil {
		return 0, 0, newError(KindProtocol, fmt.Errorf("malformed STAT size: %w", serr))
	}
	return count, size, nil
}

// UIDLEntry is one line of a bare UIDL response.
type UIDLEntry struct {
	Refno int
	UIDL  string
}

// UIDLAll issues UIDL with no argument and parses every "<refno> <uidl>"
// line. An empty response with no error is reported distinctly so the
// caller can apply the boundary rule of spec §8 ("empty UIDL response with
// nonzero STAT count is treated as UIDL unsupported").
func (p *Protocol) UIDLAll(sess *PopSession) ([]UIDLEntry, error) {
	var entries []UIDLEntry
	_, err := p.FetchData(sess, "UIDL", func(line string) error {
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return fmt.Errorf("malformed UIDL line: %q", line)
		}
		refno, err := strconv.Atoi(fields[0])
		if err != nil {
			return fmt.Errorf("malformed UIDL refno: %w", err)
		}
		entries = append(entries, UIDLEntry{Refno: refno, UIDL: fields[1]})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// TOP issues "TOP <refno> <lines>" and streams the header block (plus the
// requested body lines, if any) to w.
func (p *Protocol) TOP(sess *PopSession, refno, lines int, w io.Writer) error {
	_, err := p.FetchData(sess, fmt.Sprintf("TOP %d %d", refno, lines), func(line string) error {
		_, werr := io.WriteString(w, line+"\r\n")
		return werr
	})
	return err
}

// RETR issues "RETR <refno>" and streams the full message to w.
func (p *Protocol) RETR(sess *PopSession, refno int, w io.Writer) error {
	_, err := p.FetchData(sess, fmt.Sprintf("RETR %d", refno), func(line string) error {
		_, werr := io.WriteString(w, line+"\r\n")
		return werr
	})
	return err
}

// LAST issues the (obsolete but still widely supported) LAST command,
// returning the highest refno the server considers already retrieved. Used
// by drain-to-spool's pop_last option to skip messages a prior client
// session already pulled, independent of this session's own UIDL cache.
func (p *Protocol) LAST(sess *PopSession) (int, error) {
	ok, rest, err := p.Query(sess, "LAST")
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, newError(KindProtocol, fmt.Errorf("%s", rest))
	}
	n, cerr := strconv.Atoi(strings.TrimSpace(rest))
	if cerr != nil {
		return 0, newError(KindProtocol, fmt.Errorf("malformed LAST response: %q", rest))
	}
	return n, nil
}

// DELE issues "DELE <refno>".
func (p *Protocol) DELE(sess *PopSession, refno int) error {
	ok, rest, err := p.Query(sess, fmt.Sprintf("DELE %d", refno))
	if err != nil {
		return err
	}
	if !ok {
		return newError(KindProtocol, fmt.Errorf("%s", rest))
	}
	return nil
}

// QUIT issues QUIT and reports whether the server acknowledged with +OK.
func (p *Protocol) QUIT(sess *PopSession) error {
	ok, rest, err := p.Query(sess, "QUIT")
	if err != nil {
		return err
	}
	if !ok {
		return newError(KindProtocol, fmt.Errorf("%s", rest))
	}
	return nil
}

// readGreeting reads the server's initial response line and returns it
// whole, so Open can inspect it for an APOP challenge (spec §4.3.2).
func (p *Protocol) readGreeting() (string, error) {
	line, err := p.conn.ReadLine()
	if err != nil {
		return "", newError(KindTransport, err)
	}
	if !strings.HasPrefix(line, "+OK") {
		return "", newError(KindProtocol, fmt.Errorf("bad greeting: %q", line))
	}
	return line, nil
}
