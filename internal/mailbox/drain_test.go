package mailbox_test

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"testing"

	"github.com/infodancer/msgstore"

	"github.com/infodancer/popfetch/internal/mailbox"
	"github.com/infodancer/popfetch/internal/pop3"
	"github.com/infodancer/popfetch/internal/transport"
)

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

type fakeDeliveryAgent struct {
	delivered []string
}

func (a *fakeDeliveryAgent) Deliver(_ context.Context, _ msgstore.Envelope, message io.Reader) error {
	data, err := io.ReadAll(message)
	if err != nil {
		return err
	}
	a.delivered = append(a.delivered, string(data))
	return nil
}

type autoYes struct{}

func (autoYes) Confirm(string, bool) bool { return true }

func TestDrainToSpoolDeliversAndDeletes(t *testing.T) {
	sess := pop3.NewPopSession("mail.example.com", nil)
	sess.AddRecord(&pop3.HeaderRecord{UIDL: "AAA", Refno: 1, Index: 0})
	sess.AddRecord(&pop3.HeaderRecord{UIDL: "BBB", Refno: 2, Index: 1, Read: true})

	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()
	go func() {
		s := newFakeServer(t, serverConn)
		s.expect("RETR 1")
		s.sendRaw("+OK\r\nSubject: one\r\n\r\nbody one\r\n.\r\n")
		s.expect("DELE 1")
		s.send("+OK")
	}()

	conn := transport.New(clientConn, nil)
	p := pop3.NewProtocol(conn, nil)
	agent := &fakeDeliveryAgent{}

	result, err := mailbox.DrainToSpool(context.Background(), p, sess, agent, mailbox.DrainOptions{
		Recipient: "user@example.com",
		Delete:    mailbox.QuadYes,
	})
	if err != nil {
		t.Fatalf("DrainToSpool: %v", err)
	}
	if result.Delivered != 1 {
		t.Fatalf("expected 1 delivered, got %d", result.Delivered)
	}
	if result.Deleted != 1 {
		t.Fatalf("expected 1 deleted, got %d", result.Deleted)
	}
	if len(agent.delivered) != 1 || !strings.Contains(agent.delivered[0], "Subject: one") {
		t.Fatalf("unexpected delivered payload: %+v", agent.delivered)
	}

	aaa, _ := sess.Lookup("AAA")
	if !aaa.Deleted {
		t.Fatal("expected AAA marked deleted")
	}
	bbb, _ := sess.Lookup("BBB")
	if bbb.Deleted {
		t.Fatal("expected BBB (already read) to be skipped entirely")
	}
}

func TestQuadOptionResolve(t *testing.T) {
	if mailbox.QuadNo.Resolve("x", autoYes{}) {
		t.Fatal("QuadNo must never ask")
	}
	if !mailbox.QuadYes.Resolve("x", nil) {
		t.Fatal("QuadYes must always be true without asking")
	}
	if !mailbox.QuadAskYes.Resolve("x", autoYes{}) {
		t.Fatal("QuadAskYes should defer to the confirmer")
	}
}
