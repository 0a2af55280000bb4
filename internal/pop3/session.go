package pop3

import (
	"io"
	"time"
)

// Capability tracks the Unknown/Absent/Present lifecycle of an optionally
// supported POP3 extension (spec §3, §4.3.3). It never returns to
// CapUnknown: Absent stays Absent for the life of the PopSession, and
// Present drops to Absent if the server later rejects the command (or, for
// UIDL, returns an empty listing alongside a nonzero STAT count).
type Capability int

const (
	// CapUnknown is the initial probe state, before the capability has
	// been exercised on the wire.
	CapUnknown Capability = iota
	// CapAbsent means the server rejected the command on first use.
	CapAbsent
	// CapPresent means the server accepted the command on first use.
	CapPresent
)

func (c Capability) String() string {
	switch c {
	case CapAbsent:
		return "absent"
	case CapPresent:
		return "present"
	default:
		return "unknown"
	}
}

// Status is the per-mailbox connection status of spec §3.
type Status int

const (
	// StatusNone is the state before Open has succeeded, and after Close.
	StatusNone Status = iota
	// StatusAuthenticated means greeting + auth have both succeeded.
	StatusAuthenticated
	// StatusDisconnected means the transport dropped or QUIT completed
	// without the caller having released the PopSession yet.
	StatusDisconnected
	// StatusByeSent means QUIT was sent and a response is pending.
	StatusByeSent
)

func (s Status) String() string {
	switch s {
	case StatusAuthenticated:
		return "authenticated"
	case StatusDisconnected:
		return "disconnected"
	case StatusByeSent:
		return "bye-sent"
	default:
		return "none"
	}
}

// tempRingSize bounds the fallback (index, temp-path) ring used by
// FetchMessage when no body cache is configured (spec §3 "bounded ring;
// size is an implementation constant").
const tempRingSize = 8

// HeaderRecord is the per-message state of spec §3: UIDL is the persistent
// identity, refno is ephemeral and recomputed on every reconnect, index is
// the stable ordinal within the current mailbox view.
type HeaderRecord struct {
	UIDL  string
	Refno int // 1-based for the current connection; -1 = not seen this session
	Index int // stable 0-based ordinal within the mailbox view

	Envelope      *Envelope
	ContentLength int64
	ContentOffset int64

	Deleted bool
	Changed bool
	Read    bool
	Old     bool
}

// Envelope is the parsed RFC 822 header set of a message, owned by the
// HeaderRecord. Parsing itself is an out-of-scope collaborator (spec §1);
// net/mail.ReadMessage is the stdlib implementation of that collaborator,
// so nothing in this package hand-rolls header folding or field parsing.
type Envelope struct {
	Subject string
	From    string
	To      string
	Date    time.Time
	Raw     map[string][]string
}

// Cache is the subset of the cache coordinator's contract the protocol
// engine needs to drive fetch-headers, fetch-message and sync (spec
// §4.3.4-§4.3.6). internal/cache.Coordinator implements this; the
// interface lives here, not there, so the dependency runs one way
// (cache imports pop3 for HeaderRecord, not the reverse).
type Cache interface {
	// LookupHeader returns the cached record for uidl, if any. The caller
	// is responsible for overwriting Refno/Index with the freshly
	// assigned values on a hit (spec §4.3.4 step 4).
	LookupHeader(uidl string) (*HeaderRecord, bool, error)
	// StoreHeader persists rec's envelope and content metadata.
	StoreHeader(rec *HeaderRecord) error
	// DeleteHeader removes uidl from the header cache.
	DeleteHeader(uidl string) error
	// Sweep evicts any header/body cache entry whose UIDL is not in live
	// (spec §4.3.4 step 6).
	Sweep(live map[string]bool) error

	// BodyGet opens the cached body for uidl, if present.
	BodyGet(uidl string) (io.ReadCloser, bool, error)
	// BodyPut opens a writer to cache the body for uidl.
	BodyPut(uidl string) (io.WriteCloser, error)
	// BodyCommit finalizes a prior BodyPut.
	BodyCommit(uidl string) error
	// BodyDiscard abandons a prior BodyPut without committing it.
	BodyDiscard(uidl string) error
	// BodyDelete removes uidl from the body cache.
	BodyDelete(uidl string) error
	// BodyClear empties the body cache (spec §4.3.6 "wipe the in-memory
	// body cache" after a successful QUIT).
	BodyClear() error
}

// tempSlot is one entry of the fallback temp-file ring used when no body
// cache is configured.
type tempSlot struct {
	index int
	path  string
}

// PopSession is the per-mailbox protocol state of spec §3.
type PopSession struct {
	UIDL Capability
	TOP  Capability

	Status    Status
	Size      int64 // total octets reported by STAT
	CheckTime time.Time
	ErrMsg    string // last human-readable server error line
	ClearCache bool  // one-shot dirty bit

	Records []*HeaderRecord
	byUIDL  map[string]*HeaderRecord

	Hostname string
	Cache    Cache

	tempRing [tempRingSize]tempSlot
	tempNext int
}

// NewPopSession creates an empty PopSession recording hostname in its
// Hostname field (TLS hostname verification takes its hostname from
// DialOptions, not from here) and an optional cache (nil is valid: every
// record falls back to the temp ring and the mailbox cannot offer WRITE,
// per spec §4.5).
func NewPopSession(hostname string, c Cache) *PopSession {
	return &PopSession{
		Status:   StatusNone,
		Hostname: hostname,
		Cache:    c,
		byUIDL:   make(map[string]*HeaderRecord),
	}
}

// Lookup returns the HeaderRecord for uidl within this session, if any.
func (s *PopSession) Lookup(uidl string) (*HeaderRecord, bool) {
	r, ok := s.byUIDL[uidl]
	return r, ok
}

// AddRecord appends a newly discovered HeaderRecord and indexes it by
// UIDL. It is an error (caller bug, not a runtime condition) to add a
// second record with a UIDL already present; spec §8 lists this as an
// invariant, so callers must check Lookup first.
func (s *PopSession) AddRecord(rec *HeaderRecord) {
	s.Records = append(s.Records, rec)
	s.byUIDL[rec.UIDL] = rec
}

// RecordByRefno returns the live (non-deleted) record with the given
// 1-based refno, or nil.
func (s *PopSession) RecordByRefno(refno int) *HeaderRecord {
	for _, r := range s.Records {
		if r.Refno == refno && !r.Deleted {
			return r
		}
	}
	return nil
}

// MessageCount returns the count of live (non-deleted) records.
func (s *PopSession) MessageCount() int {
	n := 0
	for _, r := range s.Records {
		if !r.Deleted {
			n++
		}
	}
	return n
}

// tempSlotFor returns the ring slot for index, per spec §4.3.5 "a
// process-local temp file ring indexed by (index mod ring-size)".
func (s *PopSession) tempSlotFor(index int) *tempSlot {
	return &s.tempRing[index%tempRingSize]
}
