package cache

import (
	"bytes"
	"io"
	"testing"

	"github.com/infodancer/popfetch/internal/pop3"
)

// memHeaderStore and memBodyStore are in-memory fakes for the two cache
// interfaces, in the teacher's adapter-test style (mockFolderStore):
// enough behavior to drive the Coordinator, nothing more.
type memHeaderStore struct {
	data map[string][]byte
}

func newMemHeaderStore() *memHeaderStore {
	return &memHeaderStore{data: make(map[string][]byte)}
}

func (m *memHeaderStore) Fetch(uidl string) ([]byte, bool, error) {
	v, ok := m.data[uidl]
	return v, ok, nil
}

func (m *memHeaderStore) Store(uidl string, data []byte) error {
	m.data[uidl] = data
	return nil
}

func (m *memHeaderStore) Delete(uidl string) error {
	delete(m.data, uidl)
	return nil
}

func (m *memHeaderStore) List(visit func(uidl string) error) error {
	for k := range m.data {
		if err := visit(k); err != nil {
			return err
		}
	}
	return nil
}

func (m *memHeaderStore) Close() error { return nil }

type memBodyStore struct {
	committed map[string][]byte
	staged    map[string]*bytes.Buffer
}

func newMemBodyStore() *memBodyStore {
	return &memBodyStore{committed: make(map[string][]byte), staged: make(map[string]*bytes.Buffer)}
}

func (m *memBodyStore) Get(uidl string) (io.ReadCloser, bool, error) {
	v, ok := m.committed[uidl]
	if !ok {
		return nil, false, nil
	}
	return io.NopCloser(bytes.NewReader(v)), true, nil
}

func (m *memBodyStore) Put(uidl string) (io.WriteCloser, error) {
	buf := &bytes.Buffer{}
	m.staged[uidl] = buf
	return nopWriteCloser{buf}, nil
}

func (m *memBodyStore) Commit(uidl string) error {
	buf, ok := m.staged[uidl]
	if !ok {
		return nil
	}
	m.committed[uidl] = buf.Bytes()
	delete(m.staged, uidl)
	return nil
}

func (m *memBodyStore) Discard(uidl string) error {
	delete(m.staged, uidl)
	return nil
}

func (m *memBodyStore) Exists(uidl string) bool {
	_, ok := m.committed[uidl]
	return ok
}

func (m *memBodyStore) Del(uidl string) error {
	delete(m.committed, uidl)
	return nil
}

func (m *memBodyStore) List(visit func(uidl string) error) error {
	for k := range m.committed {
		if err := visit(k); err != nil {
			return err
		}
	}
	return nil
}

type nopWriteCloser struct{ *bytes.Buffer }

func (nopWriteCloser) Close() error { return nil }

func TestCoordinatorStoreAndLookupHeader(t *testing.T) {
	c := NewCoordinator(newMemHeaderStore(), newMemBodyStore())

	rec := &pop3.HeaderRecord{
		UIDL:          "AAA",
		ContentLength: 42,
		Envelope:      &pop3.Envelope{Subject: "hi", From: "a@b.com"},
	}
	if err := c.StoreHeader(rec); err != nil {
		t.Fatalf("StoreHeader: %v", err)
	}

	got, ok, err := c.LookupHeader("AAA")
	if err != nil || !ok {
		t.Fatalf("LookupHeader: ok=%v err=%v", ok, err)
	}
	if got.ContentLength != 42 || got.Envelope.Subject != "hi" {
		t.Fatalf("round-trip mismatch: %+v", got)
	}
	// refno/index are re-derived, never round-tripped (spec's cache
	// round-trip law).
	if got.Refno != -1 || got.Index != 0 {
		t.Fatalf("expected refno=-1, index=0 on restore, got refno=%d index=%d", got.Refno, got.Index)
	}
}

func TestCoordinatorBodyRoundTrip(t *testing.T) {
	c := NewCoordinator(newMemHeaderStore(), newMemBodyStore())

	w, err := c.BodyPut("AAA")
	if err != nil {
		t.Fatalf("BodyPut: %v", err)
	}
	io.WriteString(w, "hello world")
	w.Close()

	if err := c.BodyCommit("AAA"); err != nil {
		t.Fatalf("BodyCommit: %v", err)
	}

	r, ok, err := c.BodyGet("AAA")
	if err != nil || !ok {
		t.Fatalf("BodyGet: ok=%v err=%v", ok, err)
	}
	data, _ := io.ReadAll(r)
	if string(data) != "hello world" {
		t.Fatalf("expected %q, got %q", "hello world", data)
	}
}

func TestCoordinatorSweepEvictsOrphans(t *testing.T) {
	headers := newMemHeaderStore()
	bodies := newMemBodyStore()
	c := NewCoordinator(headers, bodies)

	c.StoreHeader(&pop3.HeaderRecord{UIDL: "AAA"})
	c.StoreHeader(&pop3.HeaderRecord{UIDL: "BBB"})
	w, _ := c.BodyPut("BBB")
	w.Close()
	c.BodyCommit("BBB")

	if err := c.Sweep(map[string]bool{"AAA": true}); err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	if _, ok, _ := c.LookupHeader("AAA"); !ok {
		t.Fatal("expected AAA to survive the sweep")
	}
	if _, ok, _ := c.LookupHeader("BBB"); ok {
		t.Fatal("expected BBB to be evicted by the sweep")
	}
	if bodies.Exists("BBB") {
		t.Fatal("expected BBB's body to be evicted alongside its header")
	}
}

func TestCoordinatorBodyClear(t *testing.T) {
	c := NewCoordinator(newMemHeaderStore(), newMemBodyStore())

	w, _ := c.BodyPut("AAA")
	w.Close()
	c.BodyCommit("AAA")

	if err := c.BodyClear(); err != nil {
		t.Fatalf("BodyClear: %v", err)
	}
	if _, ok, _ := c.BodyGet("AAA"); ok {
		t.Fatal("expected body cache to be empty after BodyClear")
	}
}
