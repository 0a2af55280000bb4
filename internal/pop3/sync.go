package pop3

import "time"

// CheckResult is the outcome of Check (spec §4.3.7).
type CheckResult int

const (
	// CheckNoChange means the rate limit suppressed the check, or a
	// check ran and found nothing new.
	CheckNoChange CheckResult = iota
	// CheckNewMail means fetch-headers discovered at least one new
	// message since the last check.
	CheckNewMail
	// CheckError means the check itself failed; the caller inspects the
	// returned error.
	CheckError
)

// Sync implements spec §4.3.6: apply deletions, re-store changed records,
// then QUIT. QUIT failure triggers reconnect-and-retry from the top,
// which is safe because DELE on an already-deleted refno errors
// harmlessly and deletions only become effective at QUIT.
func (p *Protocol) Sync(sess *PopSession, reconnect func() error) error {
	for {
		if err := p.applyDeletions(sess); err != nil {
			return err
		}
		if err := p.restoreChanged(sess); err != nil {
			return err
		}

		if err := p.QUIT(sess); err != nil {
			if reconnect == nil {
				return err
			}
			if rerr := reconnect(); rerr != nil {
				return rerr
			}
			continue
		}

		sess.Status = StatusDisconnected
		if sess.Cache != nil {
			if err := sess.Cache.BodyClear(); err != nil {
				return newError(KindIntegrity, err)
			}
		}
		return nil
	}
}

func (p *Protocol) applyDeletions(sess *PopSession) error {
	for _, rec := range sess.Records {
		if !rec.Deleted || rec.Refno == -1 {
			continue
		}
		if err := p.DELE(sess, rec.Refno); err != nil {
			// A -ERR (e.g. the refno was already deleted this session) is
			// harmless; only a transport failure aborts the sync.
			if perr, ok := err.(*Error); !ok || perr.Kind != KindProtocol {
				return err
			}
		}
		if sess.Cache != nil {
			if err := sess.Cache.BodyDelete(rec.UIDL); err != nil {
				return newError(KindIntegrity, err)
			}
			if err := sess.Cache.DeleteHeader(rec.UIDL); err != nil {
				return newError(KindIntegrity, err)
			}
		}
	}
	return nil
}

func (p *Protocol) restoreChanged(sess *PopSession) error {
	if sess.Cache == nil {
		return nil
	}
	for _, rec := range sess.Records {
		if !rec.Changed {
			continue
		}
		if err := sess.Cache.StoreHeader(rec); err != nil {
			return newError(KindIntegrity, err)
		}
	}
	return nil
}

// Check implements spec §4.3.7: rate-limited re-check. interval is
// pop_check_interval; reopen fully closes and re-establishes the
// connection before re-probing capabilities and rerunning fetch-headers.
func (p *Protocol) Check(sess *PopSession, interval time.Duration, markOld, messageCacheClean bool, reopen func(*Protocol) (*Protocol, error)) (CheckResult, *Protocol, error) {
	if !sess.CheckTime.IsZero() && time.Now().Before(sess.CheckTime.Add(interval)) {
		return CheckNoChange, p, nil
	}

	newP := p
	if reopen != nil {
		reopened, err := reopen(p)
		if err != nil {
			return CheckError, p, err
		}
		newP = reopened
	}

	result, err := newP.FetchHeaders(sess, markOld, messageCacheClean)
	if err != nil {
		return CheckError, newP, err
	}
	sess.CheckTime = time.Now()

	if result.New > 0 {
		return CheckNewMail, newP, nil
	}
	return CheckNoChange, newP, nil
}

// Reconnect implements spec §4.3.8: called at the top of every mutating
// operation. If sess is already authenticated, it is a no-op; otherwise it
// reopens, re-authenticates, re-enumerates UIDLs (mandatory refno
// recovery), and flushes the body cache if ClearCache was set.
func Reconnect(sess *PopSession, dial func() (*Protocol, error), opts OpenOptions, markOld, messageCacheClean bool) (*Protocol, error) {
	if sess.Status == StatusAuthenticated {
		return nil, nil
	}

	p, err := dial()
	if err != nil {
		return nil, err
	}
	if err := Open(p, sess, opts); err != nil {
		return nil, err
	}
	if _, err := p.FetchHeaders(sess, markOld, messageCacheClean); err != nil {
		return p, err
	}
	if sess.ClearCache {
		if sess.Cache != nil {
			if err := sess.Cache.BodyClear(); err != nil {
				return p, newError(KindIntegrity, err)
			}
		}
		sess.ClearCache = false
	}
	return p, nil
}
