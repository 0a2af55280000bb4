package tlstrust

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"
)

func makeCert(t *testing.T, cn string, notBefore, notAfter time.Time, dnsNames ...string) *x509.Certificate {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: cn},
		DNSNames:     dnsNames,
		NotBefore:    notBefore,
		NotAfter:     notAfter,
	}
	raw, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("creating certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(raw)
	if err != nil {
		t.Fatalf("parsing certificate: %v", err)
	}
	return cert
}

type scriptedPrompter struct {
	decisions []Decision
	requests  []PromptRequest
	i         int
}

func (p *scriptedPrompter) Decide(req PromptRequest) Decision {
	p.requests = append(p.requests, req)
	d := p.decisions[p.i]
	p.i++
	return d
}

func TestVerifyChainAcceptOnceThenSilent(t *testing.T) {
	now := time.Now()
	leaf := makeCert(t, "", now.Add(-time.Hour), now.Add(time.Hour), "mail.example.com")

	e := NewEngine(nil)
	trustFile, _ := LoadTrustFile("")
	prompter := &scriptedPrompter{decisions: []Decision{DecisionAcceptOnce}}
	cfg := Config{VerifyHost: true, VerifyDates: true}

	skip := false
	if err := e.verifyChain([]*x509.Certificate{leaf}, "mail.example.com", cfg, trustFile, prompter, &skip); err != nil {
		t.Fatalf("first verify: %v", err)
	}
	if len(prompter.requests) != 1 {
		t.Fatalf("expected exactly one prompt on first verification, got %d", len(prompter.requests))
	}

	// A second handshake within the same process must not prompt again.
	skip = false
	if err := e.verifyChain([]*x509.Certificate{leaf}, "mail.example.com", cfg, trustFile, prompter, &skip); err != nil {
		t.Fatalf("second verify: %v", err)
	}
	if len(prompter.requests) != 1 {
		t.Fatalf("expected no additional prompt on second verification, got %d total", len(prompter.requests))
	}
}

func TestVerifyChainHostnameMismatchRejectsWithoutAlwaysOption(t *testing.T) {
	now := time.Now()
	leaf := makeCert(t, "mail.example.net", now.Add(-time.Hour), now.Add(time.Hour))

	e := NewEngine(nil)
	trustFile, _ := LoadTrustFile("")
	prompter := &scriptedPrompter{decisions: []Decision{DecisionReject}}
	cfg := Config{VerifyHost: true, VerifyDates: true}

	skip := false
	err := e.verifyChain([]*x509.Certificate{leaf}, "mail.example.com", cfg, trustFile, prompter, &skip)
	if err != ErrRejected {
		t.Fatalf("got %v, want ErrRejected", err)
	}
	if len(prompter.requests) != 1 {
		t.Fatalf("expected one prompt, got %d", len(prompter.requests))
	}
	if prompter.requests[0].AllowAlways {
		t.Fatal("accept-always must not be offered on hostname mismatch")
	}
}

func TestVerifyChainPartialChainSkip(t *testing.T) {
	now := time.Now()
	root := makeCert(t, "root", now.Add(-time.Hour), now.Add(time.Hour))
	intermediate := makeCert(t, "intermediate", now.Add(-time.Hour), now.Add(time.Hour))
	leaf := makeCert(t, "", now.Add(-time.Hour), now.Add(time.Hour), "mail.example.com")

	e := NewEngine(nil)
	trustFile, _ := LoadTrustFile("")
	// depth 2 (root): skip. depth 1 (intermediate): accept once. depth 0
	// (leaf): hostname matches, no prompt expected.
	prompter := &scriptedPrompter{decisions: []Decision{DecisionSkip, DecisionAcceptOnce}}
	cfg := Config{VerifyHost: true, VerifyDates: true, VerifyPartialChains: true}

	skip := false
	certs := []*x509.Certificate{leaf, intermediate, root} // wire order: leaf first
	if err := e.verifyChain(certs, "mail.example.com", cfg, trustFile, prompter, &skip); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if len(prompter.requests) != 2 {
		t.Fatalf("expected 2 prompts (root, intermediate), got %d", len(prompter.requests))
	}
	if !prompter.requests[0].AllowSkip {
		t.Fatal("root prompt should allow skip under partial-chain acceptance")
	}
	if skip {
		t.Fatal("skip marker should be cleared after the intermediate is accepted")
	}
	if !e.trust.Contains(intermediate) {
		t.Fatal("intermediate should be trusted for the remainder of the process")
	}
}

// A chain that genuinely verifies against a trusted root (here, one loaded
// from the trust file) must be accepted silently, with no interactive
// decision at all (spec §4.2.2 step 4).
func TestVerifyChainCryptographicallyValidNeverPrompts(t *testing.T) {
	now := time.Now()

	rootKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generating root key: %v", err)
	}
	rootTmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "root"},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign,
	}
	rootRaw, err := x509.CreateCertificate(rand.Reader, rootTmpl, rootTmpl, &rootKey.PublicKey, rootKey)
	if err != nil {
		t.Fatalf("creating root certificate: %v", err)
	}
	root, err := x509.ParseCertificate(rootRaw)
	if err != nil {
		t.Fatalf("parsing root certificate: %v", err)
	}

	leafKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generating leaf key: %v", err)
	}
	leafTmpl := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		DNSNames:     []string{"mail.example.com"},
		NotBefore:    now.Add(-time.Hour),
		NotAfter:     now.Add(time.Hour),
	}
	leafRaw, err := x509.CreateCertificate(rand.Reader, leafTmpl, root, &leafKey.PublicKey, rootKey)
	if err != nil {
		t.Fatalf("creating leaf certificate: %v", err)
	}
	leaf, err := x509.ParseCertificate(leafRaw)
	if err != nil {
		t.Fatalf("parsing leaf certificate: %v", err)
	}

	e := NewEngine(nil)
	trustFile := &TrustFile{certs: []*x509.Certificate{root}}
	prompter := &scriptedPrompter{} // no decisions queued: any Decide call fails the test
	cfg := Config{VerifyHost: true, VerifyDates: true}

	skip := false
	if err := e.verifyChain([]*x509.Certificate{leaf}, "mail.example.com", cfg, trustFile, prompter, &skip); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if len(prompter.requests) != 0 {
		t.Fatalf("expected no prompts for a cryptographically valid chain, got %d", len(prompter.requests))
	}
}
