package tlstrust

import (
	"crypto/x509"
	"strings"

	"golang.org/x/net/idna"
)

// MatchHostname implements spec §4.2.2 step 2: match against each
// subjectAltName:dNSName, then the subject Common Name, with the `*.`
// wildcard rule (matches exactly one label) and case-insensitive ASCII
// comparison in IDNA/ASCII form.
func MatchHostname(cert *x509.Certificate, hostname string) bool {
	target, err := toASCII(hostname)
	if err != nil {
		target = strings.ToLower(hostname)
	}

	for _, name := range cert.DNSNames {
		if matchName(name, target) {
			return true
		}
	}
	if cert.Subject.CommonName != "" {
		return matchName(cert.Subject.CommonName, target)
	}
	return false
}

func toASCII(hostname string) (string, error) {
	ascii, err := idna.Lookup.ToASCII(hostname)
	if err != nil {
		return "", err
	}
	return strings.ToLower(ascii), nil
}

// matchName compares a certificate name pattern against a target hostname,
// both already lowercased/ASCII where possible.
func matchName(pattern, target string) bool {
	patternASCII, err := toASCII(pattern)
	if err != nil {
		patternASCII = strings.ToLower(pattern)
	}

	if !strings.HasPrefix(patternASCII, "*.") {
		return patternASCII == target
	}

	// `*.A.B` matches `X.A.B` iff X contains no additional dot: exactly one
	// label substitutes for the wildcard (spec §8 boundary behaviour).
	suffix := patternASCII[1:] // ".A.B"
	if !strings.HasSuffix(target, suffix) {
		return false
	}
	label := strings.TrimSuffix(target, suffix)
	if label == "" {
		return false
	}
	return !strings.Contains(label, ".")
}
