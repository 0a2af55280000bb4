package pop3

import "io"

// probeUIDL issues UIDL (no args) and records Present on +OK or Absent on
// -ERR (spec §4.3.3). Once the capability is Absent, UIDL is never issued
// again.
func (p *Protocol) probeUIDL(sess *PopSession) ([]UIDLEntry, error) {
	if sess.UIDL == CapAbsent {
		return nil, nil
	}
	entries, err := p.UIDLAll(sess)
	if err != nil {
		var perr *Error
		if as, ok := err.(*Error); ok {
			perr = as
		}
		if perr != nil && perr.Kind == KindProtocol {
			sess.UIDL = CapAbsent
			return nil, nil
		}
		return nil, err
	}
	sess.UIDL = CapPresent
	return entries, nil
}

// probeTOP reports whether TOP is usable, issuing it once to settle
// Unknown into Present/Absent (spec §4.3.3). The caller supplies refno of
// a message known to exist so the probe doubles as the first real fetch.
func (p *Protocol) probeTOP(sess *PopSession, refno int, buf io.Writer) (bool, error) {
	if sess.TOP == CapAbsent {
		return false, nil
	}
	err := p.TOP(sess, refno, 0, buf)
	if err != nil {
		var perr *Error
		if as, ok := err.(*Error); ok {
			perr = as
		}
		if perr != nil && perr.Kind == KindProtocol {
			sess.TOP = CapAbsent
			return false, nil
		}
		return false, err
	}
	sess.TOP = CapPresent
	return true, nil
}
