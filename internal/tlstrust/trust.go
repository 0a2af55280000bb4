// Package tlstrust implements the TLS verification engine of spec §4.2: a
// process-wide, append-only session trust sequence, a user trust file, and
// interactive fall-back for certificates that neither accepts.
package tlstrust

import (
	"crypto/sha256"
	"crypto/x509"
	"sync"
)

// TrustedCert is one entry in the session trust sequence or the trust file.
type TrustedCert struct {
	Issuer  string
	Subject string
	SHA256  [32]byte
	Raw     []byte
}

func newTrustedCert(cert *x509.Certificate) TrustedCert {
	return TrustedCert{
		Issuer:  cert.Issuer.String(),
		Subject: cert.Subject.String(),
		SHA256:  sha256.Sum256(cert.Raw),
		Raw:     append([]byte(nil), cert.Raw...),
	}
}

func (t TrustedCert) equals(cert *x509.Certificate) bool {
	if t.Issuer != cert.Issuer.String() || t.Subject != cert.Subject.String() {
		return false
	}
	return t.SHA256 == sha256.Sum256(cert.Raw)
}

// TrustState is the process-wide, single-threaded-but-shared trust sequence
// of spec §3: additive within a process lifetime, entries never evicted.
type TrustState struct {
	mu       sync.Mutex
	accepted []TrustedCert

	// lastDepth/lastDigest remember the (depth, digest) of the last
	// certificate examined, whatever the decision on it, so verifyChain can
	// short-circuit a duplicate invocation for the same certificate while a
	// skip is in effect, per spec §4.2.2 "duplicate-callback suppression".
	lastDepth  int
	lastDigest [32]byte
	hasLast    bool
}

// NewTrustState creates an empty, process-scoped trust sequence.
func NewTrustState() *TrustState {
	return &TrustState{}
}

// Contains reports whether cert is already in the session trust sequence.
func (s *TrustState) Contains(cert *x509.Certificate) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.accepted {
		if t.equals(cert) {
			return true
		}
	}
	return false
}

// Accept appends cert to the session trust sequence. Accepting once makes it
// silently trusted for the remainder of the process (spec §8, S4/S5).
func (s *TrustState) Accept(cert *x509.Certificate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accepted = append(s.accepted, newTrustedCert(cert))
}

// suppressDuplicate reports whether (depth, cert) matches the last
// certificate examined, and records the current one for the next call.
func (s *TrustState) suppressDuplicate(depth int, cert *x509.Certificate) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	digest := sha256.Sum256(cert.Raw)
	dup := s.hasLast && s.lastDepth == depth && s.lastDigest == digest
	s.lastDepth, s.lastDigest, s.hasLast = depth, digest, true
	return dup
}

// addTo adds every previously-accepted certificate to pool, so a chain
// verification can treat an intermediate or root accepted earlier in this
// process as a trust anchor without asking again.
func (s *TrustState) addTo(pool *x509.CertPool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.accepted {
		if cert, err := x509.ParseCertificate(t.Raw); err == nil {
			pool.AddCert(cert)
		}
	}
}
