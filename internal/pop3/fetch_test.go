package pop3_test

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"testing"

	"github.com/infodancer/popfetch/internal/pop3"
	"github.com/infodancer/popfetch/internal/transport"
)

// fakeServer is a minimal scripted POP3 server driven over net.Pipe,
// mirroring the teacher's pop3Pipe/singleconn_test.go style of exercising
// a handler over a real connection rather than mocking the wire — here
// run in reverse, since this package is the client.
type fakeServer struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func newFakeServer(t *testing.T, conn net.Conn) *fakeServer {
	return &fakeServer{t: t, conn: conn, r: bufio.NewReader(conn)}
}

func (s *fakeServer) send(line string) {
	if _, err := fmt.Fprintf(s.conn, "%s\r\n", line); err != nil {
		s.t.Fatalf("server send: %v", err)
	}
}

func (s *fakeServer) sendRaw(data string) {
	if _, err := s.conn.Write([]byte(data)); err != nil {
		s.t.Fatalf("server sendRaw: %v", err)
	}
}

func (s *fakeServer) expect(prefix string) string {
	s.t.Helper()
	line, err := s.r.ReadString('\n')
	if err != nil {
		s.t.Fatalf("server read: %v", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, prefix) {
		s.t.Fatalf("expected command %q, got %q", prefix, line)
	}
	return line
}

// cold-open two-message scenario (spec §8 S1): greeting, USER/PASS, STAT,
// UIDL, TOP x2.
func TestFetchHeaders_ColdOpenTwoMessages(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	go func() {
		s := newFakeServer(t, serverConn)
		s.send("+OK ready")
		s.expect("USER u")
		s.send("+OK")
		s.expect("PASS p")
		s.send("+OK")
		s.expect("STAT")
		s.send("+OK 2 512")
		s.expect("UIDL")
		s.sendRaw("+OK\r\n1 AAA\r\n2 BBB\r\n.\r\n")
		s.expect("TOP 1 0")
		s.sendRaw("+OK\r\nSubject: one\r\n\r\n.\r\n")
		s.expect("TOP 2 0")
		s.sendRaw("+OK\r\nSubject: two\r\n\r\n.\r\n")
	}()

	conn := transport.New(clientConn, nil)
	p := pop3.NewProtocol(conn, nil)
	sess := pop3.NewPopSession("mail.example.com", nil)

	if err := pop3.Open(p, sess, pop3.OpenOptions{Username: "u", Password: "p"}); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if sess.Status != pop3.StatusAuthenticated {
		t.Fatalf("expected authenticated, got %v", sess.Status)
	}

	result, err := p.FetchHeaders(sess, false, false)
	if err != nil {
		t.Fatalf("FetchHeaders: %v", err)
	}
	if result.New != 2 {
		t.Fatalf("expected 2 new records, got %d", result.New)
	}
	if sess.UIDL != pop3.CapPresent || sess.TOP != pop3.CapPresent {
		t.Fatalf("expected UIDL/TOP present, got %v/%v", sess.UIDL, sess.TOP)
	}
	if len(sess.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(sess.Records))
	}
	aaa, ok := sess.Lookup("AAA")
	if !ok || aaa.Index != 0 {
		t.Fatalf("expected AAA at index 0, got %+v (ok=%v)", aaa, ok)
	}
	bbb, ok := sess.Lookup("BBB")
	if !ok || bbb.Index != 1 {
		t.Fatalf("expected BBB at index 1, got %+v (ok=%v)", bbb, ok)
	}
}

// reconnect with reordering (spec §8 S2).
func TestFetchHeaders_ReconnectReordering(t *testing.T) {
	sess := pop3.NewPopSession("mail.example.com", nil)
	sess.UIDL = pop3.CapPresent
	sess.AddRecord(&pop3.HeaderRecord{UIDL: "AAA", Index: 0})
	sess.AddRecord(&pop3.HeaderRecord{UIDL: "BBB", Index: 1})

	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()
	go func() {
		s := newFakeServer(t, serverConn)
		s.expect("STAT")
		s.send("+OK 2 512")
		s.expect("UIDL")
		s.sendRaw("+OK\r\n1 BBB\r\n2 AAA\r\n.\r\n")
	}()

	conn := transport.New(clientConn, nil)
	p := pop3.NewProtocol(conn, nil)

	if _, err := p.FetchHeaders(sess, false, false); err != nil {
		t.Fatalf("FetchHeaders: %v", err)
	}

	bbb, _ := sess.Lookup("BBB")
	aaa, _ := sess.Lookup("AAA")
	if bbb.Refno != 1 {
		t.Fatalf("expected BBB.refno=1, got %d", bbb.Refno)
	}
	if aaa.Refno != 2 {
		t.Fatalf("expected AAA.refno=2, got %d", aaa.Refno)
	}
	if !sess.ClearCache {
		t.Fatal("expected ClearCache set after index reordering")
	}
}

// server-side deletion (spec §8 S3).
func TestFetchHeaders_ServerSideDeletion(t *testing.T) {
	sess := pop3.NewPopSession("mail.example.com", nil)
	sess.UIDL = pop3.CapPresent
	sess.AddRecord(&pop3.HeaderRecord{UIDL: "AAA", Index: 0})
	sess.AddRecord(&pop3.HeaderRecord{UIDL: "BBB", Index: 1})
	sess.AddRecord(&pop3.HeaderRecord{UIDL: "CCC", Index: 2})

	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()
	go func() {
		s := newFakeServer(t, serverConn)
		s.expect("STAT")
		s.send("+OK 2 256")
		s.expect("UIDL")
		s.sendRaw("+OK\r\n1 AAA\r\n2 CCC\r\n.\r\n")
	}()

	conn := transport.New(clientConn, nil)
	p := pop3.NewProtocol(conn, nil)

	result, err := p.FetchHeaders(sess, false, false)
	if err != nil {
		t.Fatalf("FetchHeaders: %v", err)
	}
	if result.Lost != 1 {
		t.Fatalf("expected 1 lost message, got %d", result.Lost)
	}

	bbb, _ := sess.Lookup("BBB")
	if !bbb.Deleted || bbb.Refno != -1 {
		t.Fatalf("expected BBB deleted with refno=-1, got %+v", bbb)
	}
	aaa, _ := sess.Lookup("AAA")
	if aaa.Refno != 1 {
		t.Fatalf("expected AAA.refno=1, got %d", aaa.Refno)
	}
	ccc, _ := sess.Lookup("CCC")
	if ccc.Refno != 2 {
		t.Fatalf("expected CCC.refno=2, got %d", ccc.Refno)
	}
}

// TOP absent forces header fetch via RETR and still yields a valid
// HeaderRecord (spec §8 boundary test).
func TestFetchHeaders_TOPAbsentFallsBackToRETR(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	go func() {
		s := newFakeServer(t, serverConn)
		s.send("+OK ready")
		s.expect("USER u")
		s.send("+OK")
		s.expect("PASS p")
		s.send("+OK")
		s.expect("STAT")
		s.send("+OK 1 256")
		s.expect("UIDL")
		s.sendRaw("+OK\r\n1 AAA\r\n.\r\n")
		s.expect("TOP 1 0")
		s.send("-ERR unknown command")
		s.expect("RETR 1")
		s.sendRaw("+OK\r\nSubject: one\r\n\r\nbody line\r\n.\r\n")
	}()

	conn := transport.New(clientConn, nil)
	p := pop3.NewProtocol(conn, nil)
	sess := pop3.NewPopSession("mail.example.com", nil)

	if err := pop3.Open(p, sess, pop3.OpenOptions{Username: "u", Password: "p"}); err != nil {
		t.Fatalf("Open: %v", err)
	}

	result, err := p.FetchHeaders(sess, false, false)
	if err != nil {
		t.Fatalf("FetchHeaders: %v", err)
	}
	if result.New != 1 {
		t.Fatalf("expected 1 new record, got %d", result.New)
	}
	if sess.TOP != pop3.CapAbsent {
		t.Fatalf("expected TOP absent, got %v", sess.TOP)
	}

	aaa, ok := sess.Lookup("AAA")
	if !ok {
		t.Fatalf("expected AAA record")
	}
	if aaa.Envelope == nil || aaa.Envelope.Subject != "one" {
		t.Fatalf("expected a valid envelope from the RETR fallback, got %+v", aaa.Envelope)
	}
}
