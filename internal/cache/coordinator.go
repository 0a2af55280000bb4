package cache

import (
	"errors"
	"io"

	"github.com/infodancer/popfetch/internal/pop3"
)

var errNoBodyStore = errors.New("cache: no body store configured")

// Coordinator composes a HeaderStore and a BodyStore into the pop3.Cache
// contract. It never interprets the bytes either store hands back beyond
// the codec.go encode/decode pair; UIDL/refno reconciliation itself lives
// in internal/pop3's FetchHeaders, per spec §4.3.4 — the coordinator only
// needs to answer lookups, stores and the orphan sweep.
type Coordinator struct {
	Headers HeaderStore
	Bodies  BodyStore
}

// NewCoordinator builds a Coordinator from the two default backends.
func NewCoordinator(headers HeaderStore, bodies BodyStore) *Coordinator {
	return &Coordinator{Headers: headers, Bodies: bodies}
}

var _ pop3.Cache = (*Coordinator)(nil)

func (c *Coordinator) LookupHeader(uidl string) (*pop3.HeaderRecord, bool, error) {
	data, ok, err := c.Headers.Fetch(uidl)
	if err != nil || !ok {
		return nil, false, err
	}
	rec, err := decodeRecord(data)
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

func (c *Coordinator) StoreHeader(rec *pop3.HeaderRecord) error {
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	return c.Headers.Store(rec.UIDL, data)
}

func (c *Coordinator) DeleteHeader(uidl string) error {
	return c.Headers.Delete(uidl)
}

// Sweep implements spec §4.3.4 step 6: any header-cache entry whose UIDL is
// not in live is an orphan left behind by a message that vanished from the
// server between sessions without ever going through Sync's DeleteHeader
// path (e.g. the cache survived a crash mid-session); its body, if any, is
// evicted too. Body-cache entries whose UIDL is not in live are evicted even
// when they have no header-cache entry.
func (c *Coordinator) Sweep(live map[string]bool) error {
	var orphans []string
	if err := c.Headers.List(func(uidl string) error {
		if !live[uidl] {
			orphans = append(orphans, uidl)
		}
		return nil
	}); err != nil {
		return err
	}
	for _, uidl := range orphans {
		if err := c.Headers.Delete(uidl); err != nil {
			return err
		}
		if c.Bodies != nil && c.Bodies.Exists(uidl) {
			if err := c.Bodies.Del(uidl); err != nil {
				return err
			}
		}
	}
	if c.Bodies == nil {
		return nil
	}
	var bodyOrphans []string
	if err := c.Bodies.List(func(uidl string) error {
		if !live[uidl] {
			bodyOrphans = append(bodyOrphans, uidl)
		}
		return nil
	}); err != nil {
		return err
	}
	for _, uidl := range bodyOrphans {
		if err := c.Bodies.Del(uidl); err != nil {
			return err
		}
	}
	return nil
}

func (c *Coordinator) BodyGet(uidl string) (io.ReadCloser, bool, error) {
	if c.Bodies == nil {
		return nil, false, nil
	}
	return c.Bodies.Get(uidl)
}

func (c *Coordinator) BodyPut(uidl string) (io.WriteCloser, error) {
	if c.Bodies == nil {
		return nil, errNoBodyStore
	}
	return c.Bodies.Put(uidl)
}

func (c *Coordinator) BodyCommit(uidl string) error {
	if c.Bodies == nil {
		return nil
	}
	return c.Bodies.Commit(uidl)
}

func (c *Coordinator) BodyDiscard(uidl string) error {
	if c.Bodies == nil {
		return nil
	}
	return c.Bodies.Discard(uidl)
}

func (c *Coordinator) BodyDelete(uidl string) error {
	if c.Bodies == nil {
		return nil
	}
	return c.Bodies.Del(uidl)
}

// BodyClear implements spec §4.3.6's "wipe the in-memory body cache" after
// a clean QUIT: every committed body is dropped, the header cache is left
// alone since it is the durable side of the two tiers.
func (c *Coordinator) BodyClear() error {
	if c.Bodies == nil {
		return nil
	}
	var uidls []string
	if err := c.Bodies.List(func(uidl string) error {
		uidls = append(uidls, uidl)
		return nil
	}); err != nil {
		return err
	}
	for _, uidl := range uidls {
		if err := c.Bodies.Del(uidl); err != nil {
			return err
		}
	}
	return nil
}
