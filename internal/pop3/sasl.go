package pop3

import (
	"encoding/base64"

	"github.com/emersion/go-sasl"
)

// SupportedSASLMechanisms lists the mechanism names a SASLStrategy may
// advertise; PLAIN is the only one this package implements directly, via
// PlainSASL, but a caller-supplied strategy is free to use another.
func SupportedSASLMechanisms() []string {
	return []string{sasl.Plain}
}

// decodeSASLChallenge decodes a server continuation's base64 payload.
func decodeSASLChallenge(encoded string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(encoded)
}

// encodeSASLResponse encodes a client response for the wire.
func encodeSASLResponse(response []byte) string {
	return base64.StdEncoding.EncodeToString(response)
}
