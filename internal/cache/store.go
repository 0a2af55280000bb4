// Package cache implements the two-tier cache coherency layer of spec
// §4.4: a UIDL-keyed header cache and a UIDL-keyed body cache, each opaque
// to the Coordinator, plus the orphan-eviction and refno/index
// re-mapping logic that ties them to a pop3.PopSession.
package cache

import "io"

// HeaderStore is the header cache of spec §4.4: key = UIDL, value = a
// serialized HeaderRecord. The coordinator never interprets the bytes; see
// codec.go for the one place that does.
type HeaderStore interface {
	Fetch(uidl string) ([]byte, bool, error)
	Store(uidl string, data []byte) error
	Delete(uidl string) error
	// List iterates every key currently in the store, for orphan sweeps
	// that need to walk the header side too (the body cache's filename
	// "lives alongside" the header cache entry, per spec §4.3.4 step 6).
	List(visit func(uidl string) error) error
	Close() error
}

// BodyStore is the body cache of spec §4.4: key = UIDL, value = message
// bytes.
type BodyStore interface {
	// Get opens the cached body for uidl, if present.
	Get(uidl string) (io.ReadCloser, bool, error)
	// Put opens a writer to cache the body for uidl. The write is not
	// visible to Get until Commit.
	Put(uidl string) (io.WriteCloser, error)
	// Commit finalizes the most recent Put for uidl.
	Commit(uidl string) error
	// Discard abandons the most recent Put for uidl without committing.
	Discard(uidl string) error
	// Exists reports whether uidl has a committed body.
	Exists(uidl string) bool
	// Del removes uidl's committed body, if any.
	Del(uidl string) error
	// List iterates every id currently in the store, passing each to a
	// visitor, per spec §4.4 "list (iterates all ids, passing each to a
	// visitor)".
	List(visit func(uidl string) error) error
}
