// Package mailbox binds the POP3 protocol engine, TLS trust engine and
// cache coordinator into the vtable contract a mail client's "mailbox
// operations" collaborator expects: open, close, check, sync,
// open_message, close_message, driven over a Context that carries the
// path, the header array, the message count and an ACL bitset (spec §4.5).
package mailbox

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/infodancer/popfetch/internal/pop3"
)

func secondsToDuration(s int64) time.Duration {
	return time.Duration(s) * time.Second
}

// ACL is the bitset a driver reports back to its caller. The driver always
// grants Seen and Delete; Write (flag durability across sessions) requires
// a configured header cache.
type ACL uint8

const (
	ACLSeen ACL = 1 << iota
	ACLDelete
	ACLWrite
)

func (a ACL) String() string {
	var s string
	if a&ACLSeen != 0 {
		s += "r"
	}
	if a&ACLDelete != 0 {
		s += "d"
	}
	if a&ACLWrite != 0 {
		s += "w"
	}
	if s == "" {
		return "-"
	}
	return s
}

// Context is the per-mailbox handle the vtable operations take and
// mutate: path, header array, message count and ACL, plus the session
// state a driver needs across calls (spec §4.5's "opaque driver-state
// pointer").
type Context struct {
	Path         string
	Headers      []*pop3.HeaderRecord
	MessageCount int
	ACL          ACL
	Fetch        pop3.FetchResult

	sess  *pop3.PopSession
	proto *pop3.Protocol
}

// Session returns the underlying protocol session, for callers (such as
// DrainToSpool) that need to drive the protocol engine directly alongside
// the vtable operations above.
func (c *Context) Session() *pop3.PopSession { return c.sess }

// Protocol returns the underlying protocol connection. See Session.
func (c *Context) Protocol() *pop3.Protocol { return c.proto }

// OpenFunc dials a fresh *pop3.Protocol to the account's server; Driver
// calls it on open and on any reconnect and then runs pop3.Open on the
// result to read the greeting and authenticate.
type OpenFunc func(ctx context.Context) (*pop3.Protocol, error)

// Driver implements the mailbox-operations vtable for one remote POP3
// mailbox.
type Driver struct {
	Path              string
	Session           *pop3.PopSession
	Open              OpenFunc
	OpenOptions       pop3.OpenOptions
	MarkOld           bool
	MessageCacheClean bool
}

// OpenMailbox implements spec §4.5 "open": dial, authenticate, probe
// capabilities, run fetch-headers, and report the ACL.
func (d *Driver) OpenMailbox(ctx context.Context) (*Context, error) {
	p, err := d.Open(ctx)
	if err != nil {
		return nil, err
	}
	if err := pop3.Open(p, d.Session, d.OpenOptions); err != nil {
		return nil, err
	}
	fetchResult, err := p.FetchHeaders(d.Session, d.MarkOld, d.MessageCacheClean)
	if err != nil {
		return nil, err
	}

	acl := ACLSeen | ACLDelete
	if d.Session.Cache != nil {
		acl |= ACLWrite
	}

	return &Context{
		Path:         d.Path,
		Headers:      d.Session.Records,
		MessageCount: d.Session.MessageCount(),
		ACL:          acl,
		Fetch:        fetchResult,
		sess:         d.Session,
		proto:        p,
	}, nil
}

// Close implements spec §4.5 "close": runs Sync to commit deletions and
// flag changes, then releases the connection (transport.Connection's
// explicit refcount, not an implicit field peek — see
// internal/transport/conn.go).
func (d *Driver) Close(mctx *Context) error {
	if mctx.proto == nil {
		return nil
	}
	if err := mctx.proto.Sync(mctx.sess, d.reconnect); err != nil {
		return err
	}
	return mctx.proto.Conn().Release()
}

// Check implements spec §4.5 "check": delegates to the protocol's
// rate-limited re-check (spec §4.3.7).
func (d *Driver) Check(ctx context.Context, mctx *Context, interval int64) (pop3.CheckResult, error) {
	result, p, err := mctx.proto.Check(mctx.sess, secondsToDuration(interval), d.MarkOld, d.MessageCacheClean, func(old *pop3.Protocol) (*pop3.Protocol, error) {
		old.Conn().Release()
		np, err := d.Open(ctx)
		if err != nil {
			return nil, err
		}
		if err := pop3.Open(np, mctx.sess, d.OpenOptions); err != nil {
			return nil, err
		}
		return np, nil
	})
	mctx.proto = p
	mctx.Headers = mctx.sess.Records
	mctx.MessageCount = mctx.sess.MessageCount()
	return result, err
}

// Sync implements spec §4.5 "sync": commit pending deletions/flag changes
// without closing the mailbox, by driving QUIT-then-reconnect.
func (d *Driver) Sync(mctx *Context) error {
	if err := mctx.proto.Sync(mctx.sess, d.reconnect); err != nil {
		return err
	}
	p, err := d.reconnectProto()
	if err != nil {
		return err
	}
	mctx.proto = p
	return nil
}

// OpenMessage implements spec §4.5 "open_message": fetch-message by
// 1-based message index into the header array, returning the cached or
// freshly-RETR'd body.
func (d *Driver) OpenMessage(mctx *Context, index int) (io.ReadCloser, error) {
	if index < 1 || index > len(mctx.Headers) {
		return nil, fmt.Errorf("mailbox: message index %d out of range (have %d)", index, len(mctx.Headers))
	}
	rec := mctx.Headers[index-1]
	return mctx.proto.FetchMessage(mctx.sess, rec, d.reconnect)
}

// CloseMessage implements spec §4.5 "close_message": a no-op beyond
// closing the reader itself, since FetchMessage already finalized any
// cache writes before returning it.
func (d *Driver) CloseMessage(r io.ReadCloser) error {
	return r.Close()
}

func (d *Driver) reconnect() error {
	_, err := d.reconnectProto()
	return err
}

func (d *Driver) reconnectProto() (*pop3.Protocol, error) {
	return pop3.Reconnect(d.Session, func() (*pop3.Protocol, error) {
		return d.Open(context.Background())
	}, d.OpenOptions, d.MarkOld, d.MessageCacheClean)
}
