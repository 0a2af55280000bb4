package tlstrust

import (
	"bufio"
	"crypto/md5"
	"crypto/sha1"
	"crypto/x509"
	"fmt"
	"io"
	"strings"
)

// Decision is the user's answer to a certificate trust prompt (spec §4.2.4).
type Decision int

const (
	// DecisionReject aborts the handshake.
	DecisionReject Decision = iota
	// DecisionAcceptOnce appends the certificate to the session trust
	// sequence for the remainder of the process.
	DecisionAcceptOnce
	// DecisionAcceptAlways additionally persists the certificate to the
	// trust file.
	DecisionAcceptAlways
	// DecisionSkip defers the decision to the next-deeper certificate
	// (only offered for a non-leaf certificate when partial-chain
	// acceptance is enabled).
	DecisionSkip
)

// PromptRequest carries everything the out-of-scope terminal UI needs to
// render the subject/issuer DN parts, validity window, and fingerprints of
// spec §4.2.4.
type PromptRequest struct {
	Cert           *x509.Certificate
	Depth          int
	ChainLength    int
	AllowSkip      bool // only true when partial chains enabled and depth > 0
	AllowAlways    bool // only true when unexpired and a trust file exists
	HostnameReason string // non-empty when the prompt is due to a hostname mismatch
}

// CertificateNumber returns "N of M" per spec §4.2.4: N = M - depth.
func (r PromptRequest) CertificateNumber() int {
	return r.ChainLength - r.Depth
}

// Prompter is the out-of-scope terminal UI collaborator: it owns
// message/error/prompt primitives and an interactive menu. The TLS engine
// only needs the one decision point described here.
type Prompter interface {
	Decide(req PromptRequest) Decision
}

// StdioPrompter is a minimal default Prompter for a standalone CLI; it
// prints the certificate details to w and reads a single-character answer
// from r.
type StdioPrompter struct {
	R io.Reader
	W io.Writer
}

func (p *StdioPrompter) Decide(req PromptRequest) Decision {
	cert := req.Cert
	fmt.Fprintf(p.W, "certificate %d of %d in chain\n", req.CertificateNumber(), req.ChainLength)
	fmt.Fprintf(p.W, "subject: %s\n", dnParts(cert.Subject.String()))
	fmt.Fprintf(p.W, "issuer:  %s\n", dnParts(cert.Issuer.String()))
	fmt.Fprintf(p.W, "valid:   %s - %s\n", cert.NotBefore, cert.NotAfter)
	fmt.Fprintf(p.W, "SHA1:    %x\n", sha1.Sum(cert.Raw))
	fmt.Fprintf(p.W, "MD5:     %x\n", md5.Sum(cert.Raw))
	if req.HostnameReason != "" {
		fmt.Fprintf(p.W, "warning: %s\n", req.HostnameReason)
	}

	choices := "(r)eject, accept (o)nce"
	if req.AllowAlways {
		choices += ", (a)ccept always"
	}
	if req.AllowSkip {
		choices += ", (s)kip"
	}
	fmt.Fprintf(p.W, "%s? ", choices)

	reader := bufio.NewReader(p.R)
	for {
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return DecisionReject
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "o":
			return DecisionAcceptOnce
		case "a":
			if req.AllowAlways {
				return DecisionAcceptAlways
			}
		case "s":
			if req.AllowSkip {
				return DecisionSkip
			}
		case "r", "":
			return DecisionReject
		}
		fmt.Fprintf(p.W, "%s? ", choices)
	}
}

// dnParts renders a DN string for display: it returns x509's String() form
// unchanged (every RDN, comma-separated, not only CN/emailAddress/O/OU/L/
// ST/C), or "(none)" for an empty DN.
func dnParts(dn string) string {
	if dn == "" {
		return "(none)"
	}
	return dn
}
