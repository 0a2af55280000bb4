package tlstrust

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"
)

// ProtocolVersions toggles individual SSL/TLS versions, mirroring the
// ssl_use_sslv2/sslv3/tlsv1/tlsv11/tlsv12 configuration options of spec §6.
// SSLv2 and SSLv3 are accepted for config-format parity but are never
// actually negotiable: crypto/tls has not supported them for a decade, so
// enabling either is a silent no-op rather than a dial-time error.
type ProtocolVersions struct {
	SSLv2  bool
	SSLv3  bool
	TLSv10 bool
	TLSv11 bool
	TLSv12 bool
	TLSv13 bool
}

func (v ProtocolVersions) minVersion() uint16 {
	switch {
	case v.TLSv10:
		return tls.VersionTLS10
	case v.TLSv11:
		return tls.VersionTLS11
	case v.TLSv12:
		return tls.VersionTLS12
	default:
		return tls.VersionTLS13
	}
}

func (v ProtocolVersions) maxVersion() uint16 {
	if v.TLSv13 {
		return tls.VersionTLS13
	}
	if v.TLSv12 {
		return tls.VersionTLS12
	}
	if v.TLSv11 {
		return tls.VersionTLS11
	}
	if v.TLSv10 {
		return tls.VersionTLS10
	}
	return tls.VersionTLS13
}

// Config groups the per-dial TLS options from spec §6.
type Config struct {
	Versions            ProtocolVersions
	VerifyHost          bool // ssl_verify_host
	VerifyDates         bool // ssl_verify_dates
	VerifyPartialChains bool // ssl_verify_partial_chains
	Ciphers             []uint16
	ClientCert          *tls.Certificate
	UseSystemCerts      bool
	TrustFilePath       string
}

// Engine is the process-scoped TLS verification engine: one TrustState
// shared across every PopSession, grouping the global process state spec §9
// calls out (entropy init, session trust sequence) under a single owner.
type Engine struct {
	trust    *TrustState
	logger   *slog.Logger
	entropy  sync.Once
}

// NewEngine creates a TLS engine with a fresh, empty session trust
// sequence.
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{trust: NewTrustState(), logger: logger}
}

// SeedEntropyFile is the documented hook for the legacy "seed entropy from
// known files" step of spec §4.2.1. crypto/rand guarantees a CSPRNG on every
// platform this module targets, so this is a one-shot no-op: a non-empty
// path is only logged at debug level and the file is never opened (there is
// nothing in crypto/rand to feed it into — Go does not expose a reseed hook
// — so this exists for configuration parity with entropy_file/EGDSOCKET
// rather than to change runtime behavior).
func (e *Engine) SeedEntropyFile(path string) {
	e.entropy.Do(func() {
		if path != "" {
			e.logger.Debug("entropy file configured; crypto/rand already seeded by the runtime", "path", path)
		}
	})
}

// Negotiate performs the TLS handshake over conn (spec §4.2.1), used both
// for an initial implicit-TLS dial and for STARTTLS on an
// already-plaintext connection. hostname drives SNI and the leaf hostname
// check.
func (e *Engine) Negotiate(conn net.Conn, hostname string, cfg Config, prompter Prompter) (*tls.Conn, error) {
	trustFile, err := LoadTrustFile(cfg.TrustFilePath)
	if err != nil {
		return nil, fmt.Errorf("tlstrust: %w", err)
	}

	tlsCfg := &tls.Config{
		ServerName:         hostname,
		MinVersion:         cfg.Versions.minVersion(),
		MaxVersion:         cfg.Versions.maxVersion(),
		CipherSuites:       cfg.Ciphers,
		InsecureSkipVerify: true, // verification is fully replaced by VerifyPeerCertificate below
	}
	if cfg.ClientCert != nil {
		tlsCfg.Certificates = []tls.Certificate{*cfg.ClientCert}
	}

	skip := false // per-handshake "skip-from-here" marker, replacing the
	// source's per-connection extension slot (spec §9 design note).

	tlsCfg.VerifyPeerCertificate = func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		certs := make([]*x509.Certificate, len(rawCerts))
		for i, raw := range rawCerts {
			cert, err := x509.ParseCertificate(raw)
			if err != nil {
				return fmt.Errorf("tlstrust: parsing certificate %d: %w", i, err)
			}
			certs[i] = cert
		}
		return e.verifyChain(certs, hostname, cfg, trustFile, prompter, &skip)
	}

	tlsConn := tls.Client(conn, tlsCfg)
	if err := tlsConn.HandshakeContext(context.Background()); err != nil {
		return nil, err
	}
	return tlsConn, nil
}

// verifyChain implements spec §4.2.2's per-certificate decision procedure.
// certs is in wire order (certs[0] is the leaf); depth for certs[i] is i.
// Certificates are walked from the deepest (closest to a root) to the leaf,
// which is processed last, matching "per chain certificate, leaf last".
//
// resolved tracks whether a certificate closer to the root has already been
// established as trusted (by a genuine cryptographic chain verification
// against the root pool, the session trust sequence, the trust file, or an
// interactive accept) during this walk. Once resolved, a clean certificate
// further down the chain needs no further prompt; this mirrors the source's
// practice of clearing the verify-context error after an override so the
// next, shallower certificate's pre-verification succeeds. resolved starts
// true when certs already chains cryptographically to a trusted root, so a
// publicly-valid certificate never needs an interactive decision (spec
// §4.2.2 step 4).
// skip is the caller-owned "skip marker" of spec §4.2.3: it only records the
// most recent explicit skip decision, kept for parity with the source's
// per-connection extension slot and for callers that inspect it between
// certificates.
func (e *Engine) verifyChain(certs []*x509.Certificate, hostname string, cfg Config, trustFile *TrustFile, prompter Prompter, skip *bool) error {
	n := len(certs)
	resolved := e.chainVerifies(certs, cfg, trustFile)
	for i := n - 1; i >= 0; i-- {
		cert := certs[i]
		depth := i
		isLeaf := depth == 0

		// A repeat of the last examined (depth, certificate) is only
		// short-circuited while a skip is in effect.
		if dup := e.trust.suppressDuplicate(depth, cert); dup && *skip {
			resolved = true
			continue
		}

		if e.trust.Contains(cert) {
			*skip = false
			resolved = true
			continue
		}

		if isLeaf && cfg.VerifyHost {
			if !MatchHostname(cert, hostname) {
				decision := e.ask(PromptRequest{
					Cert:           cert,
					Depth:          depth,
					ChainLength:    n,
					AllowSkip:      false,
					AllowAlways:    false,
					HostnameReason: fmt.Sprintf("certificate does not match hostname %q", hostname),
				}, prompter)
				if err := e.apply(decision, cert, trustFile); err != nil {
					return err
				}
				*skip = false
				resolved = true
				continue
			}
		}

		preverifyFailed := !resolved || (cfg.VerifyDates && certExpired(cert))
		if preverifyFailed {
			if trustFile.Contains(cert) {
				*skip = false
				e.trust.Accept(cert)
				resolved = true
				continue
			}
			allowAlways := trustFile.Exists() && !certExpired(cert)
			allowSkip := cfg.VerifyPartialChains && !isLeaf
			decision := e.ask(PromptRequest{
				Cert:        cert,
				Depth:       depth,
				ChainLength: n,
				AllowSkip:   allowSkip,
				AllowAlways: allowAlways,
			}, prompter)
			if decision == DecisionSkip {
				*skip = true
				continue
			}
			if err := e.apply(decision, cert, trustFile); err != nil {
				return err
			}
			*skip = false
			resolved = true
			continue
		}

		// Otherwise accept: the chain entry verified cleanly and nothing
		// upstream of it was skipped.
		*skip = false
		resolved = true
	}
	return nil
}

// chainVerifies performs real cryptographic chain verification: certs[0]
// (the leaf) is checked against a root pool built from the system trust
// store (if cfg.UseSystemCerts), the user trust file, and this process's
// session trust sequence, with the remaining certs offered as intermediates.
// A true result means the chain is already trustworthy on its own merits,
// with no bearing yet on hostname or validity-window checks, which the
// per-certificate walk in verifyChain still applies afterward.
func (e *Engine) chainVerifies(certs []*x509.Certificate, cfg Config, trustFile *TrustFile) bool {
	if len(certs) == 0 {
		return false
	}

	roots := x509.NewCertPool()
	if cfg.UseSystemCerts {
		if sys, err := x509.SystemCertPool(); err == nil {
			roots = sys.Clone()
		}
	}
	trustFile.addTo(roots)
	e.trust.addTo(roots)

	intermediates := x509.NewCertPool()
	for _, c := range certs[1:] {
		intermediates.AddCert(c)
	}

	_, err := certs[0].Verify(x509.VerifyOptions{
		Roots:         roots,
		Intermediates: intermediates,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	return err == nil
}

func (e *Engine) ask(req PromptRequest, prompter Prompter) Decision {
	if prompter == nil {
		return DecisionReject
	}
	return prompter.Decide(req)
}

func (e *Engine) apply(decision Decision, cert *x509.Certificate, trustFile *TrustFile) error {
	switch decision {
	case DecisionAcceptOnce:
		e.trust.Accept(cert)
		return nil
	case DecisionAcceptAlways:
		if err := trustFile.Append(cert); err != nil {
			return fmt.Errorf("tlstrust: %w", err)
		}
		e.trust.Accept(cert)
		return nil
	default:
		return ErrRejected
	}
}

func certExpired(cert *x509.Certificate) bool {
	now := time.Now()
	return now.Before(cert.NotBefore) || now.After(cert.NotAfter)
}
