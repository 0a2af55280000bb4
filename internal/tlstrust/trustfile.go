package tlstrust

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"time"
)

// TrustFile is a PEM concatenation of user-accepted certificates (spec
// §4.2.5). It is loaded fully into memory; entries past their not-after or
// before their not-before are silently filtered out on load, since an
// expired entry would otherwise poison the verifier.
type TrustFile struct {
	path  string
	certs []*x509.Certificate
}

// LoadTrustFile reads path and filters expired entries. A missing file is
// not an error: it simply yields an empty trust file (no certificate_file
// configured is a supported mode).
func LoadTrustFile(path string) (*TrustFile, error) {
	tf := &TrustFile{path: path}
	if path == "" {
		return tf, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return tf, nil
		}
		return nil, fmt.Errorf("reading trust file: %w", err)
	}

	now := time.Now()
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			continue
		}
		if now.Before(cert.NotBefore) || now.After(cert.NotAfter) {
			continue
		}
		tf.certs = append(tf.certs, cert)
	}
	return tf, nil
}

// Contains reports whether cert is byte-equal to one present in the file and
// currently within its validity window (spec §4.2.2 step 3).
func (tf *TrustFile) Contains(cert *x509.Certificate) bool {
	now := time.Now()
	if now.Before(cert.NotBefore) || now.After(cert.NotAfter) {
		return false
	}
	for _, c := range tf.certs {
		if c.Equal(cert) {
			return true
		}
	}
	return false
}

// Exists reports whether a trust file path is configured, controlling
// whether "(a)ccept always" is offered at all (spec §4.2.4).
func (tf *TrustFile) Exists() bool {
	return tf.path != ""
}

// addTo adds every certificate loaded from the trust file to pool, so it can
// serve as a root anchor during chain verification.
func (tf *TrustFile) addTo(pool *x509.CertPool) {
	for _, c := range tf.certs {
		pool.AddCert(c)
	}
}

// Append writes cert to the trust file in PEM form (append-only, spec
// §4.2.5 "no index").
func (tf *TrustFile) Append(cert *x509.Certificate) error {
	if tf.path == "" {
		return fmt.Errorf("no trust file configured")
	}
	f, err := os.OpenFile(tf.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("opening trust file: %w", err)
	}
	defer f.Close()

	block := &pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw}
	if err := pem.Encode(f, block); err != nil {
		return fmt.Errorf("writing trust file: %w", err)
	}
	tf.certs = append(tf.certs, cert)
	return nil
}
