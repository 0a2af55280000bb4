package cache

import (
	"bytes"
	"encoding/gob"
	"time"

	"github.com/infodancer/popfetch/internal/pop3"
)

// persistedRecord is the subset of pop3.HeaderRecord that round-trips
// through the header cache: envelope and content metadata. refno, index,
// and the deleted/changed/read/old flags are re-derived on every restore
// (spec §8's round-trip law), so they are deliberately not part of the
// encoded form.
type persistedRecord struct {
	UIDL          string
	Subject       string
	From          string
	To            string
	DateUnix      int64
	Raw           map[string][]string
	ContentLength int64
	ContentOffset int64
}

// encodeRecord serializes the cacheable subset of rec. gob is used because
// this is the one place in the repository that owns a private on-disk
// format with no analogue in the retrieval pack (every example's
// persistence library serializes someone else's wire format — TOML
// config, a key/value blob handed to it by a caller — never its own
// ad hoc record shape), so there is nothing to adopt here; see DESIGN.md.
func encodeRecord(rec *pop3.HeaderRecord) ([]byte, error) {
	p := persistedRecord{
		UIDL:          rec.UIDL,
		ContentLength: rec.ContentLength,
		ContentOffset: rec.ContentOffset,
	}
	if rec.Envelope != nil {
		p.Subject = rec.Envelope.Subject
		p.From = rec.Envelope.From
		p.To = rec.Envelope.To
		p.DateUnix = rec.Envelope.Date.Unix()
		p.Raw = rec.Envelope.Raw
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(p); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeRecord restores a pop3.HeaderRecord from its cached form. Refno is
// set to -1 (not seen this session) and Index is left zero; the caller
// overwrites both with the freshly probed values, exactly as spec §4.3.4
// step 4 requires.
func decodeRecord(data []byte) (*pop3.HeaderRecord, error) {
	var p persistedRecord
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&p); err != nil {
		return nil, err
	}
	rec := &pop3.HeaderRecord{
		UIDL:          p.UIDL,
		Refno:         -1,
		ContentLength: p.ContentLength,
		ContentOffset: p.ContentOffset,
	}
	if p.Subject != "" || p.From != "" || p.To != "" || p.DateUnix != 0 || len(p.Raw) > 0 {
		rec.Envelope = &pop3.Envelope{
			Subject: p.Subject,
			From:    p.From,
			To:      p.To,
			Raw:     p.Raw,
		}
		if p.DateUnix != 0 {
			rec.Envelope.Date = time.Unix(p.DateUnix, 0)
		}
	}
	return rec, nil
}
