package pop3

import (
	"bytes"
	"fmt"
	"io"
	"net/mail"
	"os"
)

// FetchResult summarizes a FetchHeaders run for the caller (spec §4.3.4
// step 3 "report the count to the user").
type FetchResult struct {
	New     int
	Lost    int // server-side deletions discovered this pass
	Changed bool
}

// FetchHeaders implements spec §4.3.4 end to end: mark-then-sweep refno
// reconciliation against the UIDL listing, header-cache lookups for new
// records, and the message-cache-clean orphan sweep.
func (p *Protocol) FetchHeaders(sess *PopSession, markOld, messageCacheClean bool) (FetchResult, error) {
	var result FetchResult

	// Step 1: mark every in-memory record as not-seen-this-session.
	for _, r := range sess.Records {
		r.Refno = -1
	}

	statCount, size, err := p.STAT(sess)
	if err != nil {
		return result, err
	}
	sess.Size = size

	entries, err := p.probeUIDL(sess)
	if err != nil {
		return result, err
	}
	if len(entries) == 0 && statCount > 0 && sess.UIDL != CapAbsent {
		// Boundary rule (spec §8): an empty UIDL response alongside a
		// nonzero STAT count means the server doesn't really support
		// UIDL even though it answered +OK.
		sess.UIDL = CapAbsent
	}
	if sess.UIDL == CapAbsent {
		// Mailbox becomes read-only: identity cannot be established
		// across sessions (spec §4.3.3). Nothing more to reconcile.
		return result, nil
	}

	live := make(map[string]bool, len(entries))
	var newRecords []*HeaderRecord

	// Step 2: reconcile against the listing, re-deriving the stable index
	// from listing order. A previously-known record whose index changes
	// trips ClearCache (spec §4.3.4 step 2); a brand-new record has no
	// "previous index" to compare against, so it never does.
	for i, e := range entries {
		live[e.UIDL] = true
		if rec, ok := sess.Lookup(e.UIDL); ok {
			rec.Refno = e.Refno
			if rec.Index != i {
				rec.Index = i
				sess.ClearCache = true
			}
			continue
		}
		rec := &HeaderRecord{UIDL: e.UIDL, Refno: e.Refno, Index: i}
		sess.AddRecord(rec)
		newRecords = append(newRecords, rec)
		result.New++
	}

	// Step 3: anything still at refno -1 is a server-side deletion.
	for _, r := range sess.Records {
		if r.Refno == -1 && !r.Deleted {
			r.Deleted = true
			result.Lost++
		}
	}

	// Step 4-5: resolve each new record via the header cache, or TOP.
	for _, rec := range newRecords {
		if err := p.resolveNewRecord(sess, rec, markOld); err != nil {
			return result, err
		}
	}

	// Step 6: orphan sweep.
	if messageCacheClean && sess.Cache != nil {
		if err := sess.Cache.Sweep(live); err != nil {
			return result, newError(KindIntegrity, err)
		}
	}

	result.Changed = sess.ClearCache
	return result, nil
}

// resolveNewRecord implements spec §4.3.4 steps 4-5 for a single record.
func (p *Protocol) resolveNewRecord(sess *PopSession, rec *HeaderRecord, markOld bool) error {
	if sess.Cache != nil {
		cached, hit, err := sess.Cache.LookupHeader(rec.UIDL)
		if err != nil {
			return newError(KindIntegrity, err)
		}
		if hit {
			refno, index := rec.Refno, rec.Index
			*rec = *cached
			rec.Refno, rec.Index = refno, index
			if bodyExists(sess, rec.UIDL) {
				rec.Read = true
			} else if markOld {
				rec.Old = true
			}
			return nil
		}
	}

	var buf bytes.Buffer
	present, err := p.probeTOP(sess, rec.Refno, &buf)
	if err != nil {
		return err
	}
	if !present {
		// TOP unsupported (spec §4.3.3): degrade to a full RETR so the
		// record still gets a valid envelope, at the cost of pulling the
		// whole message instead of only its headers.
		buf.Reset()
		if err := p.RETR(sess, rec.Refno, &buf); err != nil {
			return err
		}
	}

	env, length, err := parseEnvelope(&buf)
	if err != nil {
		return newError(KindIntegrity, err)
	}
	rec.Envelope = env
	rec.ContentLength = length
	rec.ContentOffset = 0

	if sess.Cache != nil {
		if err := sess.Cache.StoreHeader(rec); err != nil {
			return newError(KindIntegrity, err)
		}
	}
	return nil
}

func bodyExists(sess *PopSession, uidl string) bool {
	if sess.Cache == nil {
		return false
	}
	r, ok, err := sess.Cache.BodyGet(uidl)
	if err != nil || !ok {
		return false
	}
	r.Close()
	return true
}

// parseEnvelope parses the RFC 822 header block via net/mail, the
// out-of-scope collaborator spec §1 calls out ("RFC 822 header parsing").
// r may carry only the header block (the TOP path) or a full message (the
// RETR fallback); either way the returned length covers only the header
// portion, so ContentLength means the same thing regardless of which
// command produced it.
func parseEnvelope(r io.Reader) (*Envelope, int64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, 0, err
	}
	msg, err := mail.ReadMessage(bytes.NewReader(data))
	if err != nil {
		return nil, 0, err
	}
	body, err := io.ReadAll(msg.Body)
	if err != nil {
		return nil, 0, err
	}
	raw := map[string][]string(msg.Header)
	env := &Envelope{
		Subject: msg.Header.Get("Subject"),
		From:    msg.Header.Get("From"),
		To:      msg.Header.Get("To"),
		Raw:     raw,
	}
	if t, err := msg.Header.Date(); err == nil {
		env.Date = t
	}
	return env, int64(len(data) - len(body)), nil
}

// FetchMessage implements spec §4.3.5: body cache first, then RETR into
// the cache (or the temp-file ring on cache miss/absence), with
// reconnect-and-retry on transport failure.
func (p *Protocol) FetchMessage(sess *PopSession, rec *HeaderRecord, reconnect func() error) (io.ReadCloser, error) {
	if rec.Refno == -1 {
		return nil, newError(KindStale, ErrStaleIndex)
	}

	if sess.Cache != nil {
		if rc, hit, err := sess.Cache.BodyGet(rec.UIDL); err != nil {
			return nil, newError(KindIntegrity, err)
		} else if hit {
			return rc, nil
		}
	}

	return p.retrieveAndCache(sess, rec, reconnect)
}

func (p *Protocol) retrieveAndCache(sess *PopSession, rec *HeaderRecord, reconnect func() error) (io.ReadCloser, error) {
	if sess.Cache != nil {
		w, err := sess.Cache.BodyPut(rec.UIDL)
		if err == nil {
			if ferr := p.RETR(sess, rec.Refno, w); ferr != nil {
				sess.Cache.BodyDiscard(rec.UIDL)
				return p.retryAfterReconnect(sess, rec, reconnect)
			}
			if cerr := sess.Cache.BodyCommit(rec.UIDL); cerr != nil {
				return nil, newError(KindIntegrity, cerr)
			}
			rc, _, gerr := sess.Cache.BodyGet(rec.UIDL)
			if gerr != nil {
				return nil, newError(KindIntegrity, gerr)
			}
			return rc, nil
		}
	}

	return p.retrieveIntoTempRing(sess, rec, reconnect)
}

func (p *Protocol) retrieveIntoTempRing(sess *PopSession, rec *HeaderRecord, reconnect func() error) (io.ReadCloser, error) {
	slot := sess.tempSlotFor(rec.Index)
	f, err := os.CreateTemp("", "popfetch-*.msg")
	if err != nil {
		return nil, newError(KindIntegrity, err)
	}
	if ferr := p.RETR(sess, rec.Refno, f); ferr != nil {
		f.Close()
		os.Remove(f.Name())
		return p.retryAfterReconnect(sess, rec, reconnect)
	}
	if slot.path != "" {
		os.Remove(slot.path)
	}
	slot.index = rec.Index
	slot.path = f.Name()
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, newError(KindIntegrity, err)
	}
	return f, nil
}

func (p *Protocol) retryAfterReconnect(sess *PopSession, rec *HeaderRecord, reconnect func() error) (io.ReadCloser, error) {
	if reconnect == nil {
		return nil, newError(KindTransport, fmt.Errorf("fetch failed and no reconnect hook configured"))
	}
	if err := reconnect(); err != nil {
		return nil, err
	}
	return p.FetchMessage(sess, rec, nil) // single retry, no further recursion
}
