package pop3

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/emersion/go-sasl"
)

// SASLStrategy is the pluggable authentication collaborator of spec §4.3.2
// ("SASL details are a pluggable strategy; the core only requires
// 'produces Authenticated or fails'"). go-sasl's PLAIN client is the
// default implementation; others can be registered without the protocol
// engine knowing their mechanism name.
type SASLStrategy interface {
	// Mechanism returns the SASL mechanism name advertised in AUTH.
	Mechanism() string
	// Start returns the initial response, if any (nil for a mechanism
	// that waits for a server challenge first).
	Start() (initial []byte, err error)
	// Next responds to a server challenge.
	Next(challenge []byte) (response []byte, err error)
}

// PlainSASL authenticates with the PLAIN mechanism via go-sasl.
type PlainSASL struct {
	client sasl.Client
}

// NewPlainSASL builds a PLAIN strategy for username/password with no
// separate authorization identity.
func NewPlainSASL(username, password string) *PlainSASL {
	return &PlainSASL{client: sasl.NewPlainClient("", username, password)}
}

func (p *PlainSASL) Mechanism() string { return sasl.Plain }

func (p *PlainSASL) Start() ([]byte, error) {
	_, ir, err := p.client.Start()
	return ir, err
}

func (p *PlainSASL) Next(challenge []byte) ([]byte, error) {
	return p.client.Next(challenge)
}

// OpenOptions carries the credentials and strategy choice for Open.
type OpenOptions struct {
	Username string
	Password string

	// UseAPOP enables APOP when the greeting carries a challenge
	// (spec §4.3.2). Ignored if the greeting has none.
	UseAPOP bool

	// SASL, if non-nil, is tried when APOP is unavailable/disabled and
	// USER/PASS is not preferred.
	SASL SASLStrategy

	// PreferUserPass, when true, skips SASL even if configured and goes
	// straight to USER/PASS after APOP is ruled out.
	PreferUserPass bool
}

// apopChallenge extracts the "<...>" challenge token from a greeting line,
// or "" if none is present.
func apopChallenge(greeting string) string {
	start := strings.IndexByte(greeting, '<')
	end := strings.IndexByte(greeting, '>')
	if start < 0 || end < 0 || end < start {
		return ""
	}
	return greeting[start : end+1]
}

// Open drives the sequence of spec §4.3.2: the caller has already dialed
// and handed Open a connected Protocol. Open reads the greeting,
// authenticates, and sets sess.Status to StatusAuthenticated on success.
func Open(p *Protocol, sess *PopSession, opts OpenOptions) error {
	greeting, err := p.readGreeting()
	if err != nil {
		return err
	}

	challenge := apopChallenge(greeting)
	switch {
	case challenge != "" && opts.UseAPOP:
		if err := apopAuth(p, sess, challenge, opts.Username, opts.Password); err != nil {
			return err
		}
	case !opts.PreferUserPass && opts.SASL != nil:
		if err := saslAuth(p, sess, opts.SASL); err != nil {
			return err
		}
	default:
		if err := userPassAuth(p, sess, opts.Username, opts.Password); err != nil {
			return err
		}
	}

	sess.Status = StatusAuthenticated
	return nil
}

func apopAuth(p *Protocol, sess *PopSession, challenge, username, password string) error {
	if username == "" {
		return newError(KindUser, ErrNoUsername)
	}
	digest := md5.Sum([]byte(challenge + password))
	ok, rest, err := p.Query(sess, fmt.Sprintf("APOP %s %s", username, hex.EncodeToString(digest[:])))
	if err != nil {
		return wrapAuthFailure(err)
	}
	if !ok {
		return newError(KindProtocol, fmt.Errorf("APOP rejected: %s: %w", rest, ErrAuthFailed))
	}
	return nil
}

func userPassAuth(p *Protocol, sess *PopSession, username, password string) error {
	if username == "" {
		return newError(KindUser, ErrNoUsername)
	}
	if ok, rest, err := p.Query(sess, "USER "+username); err != nil {
		return wrapAuthFailure(err)
	} else if !ok {
		return newError(KindProtocol, fmt.Errorf("USER rejected: %s: %w", rest, ErrAuthFailed))
	}
	if ok, rest, err := p.Query(sess, "PASS "+password); err != nil {
		return wrapAuthFailure(err)
	} else if !ok {
		return newError(KindProtocol, fmt.Errorf("PASS rejected: %s: %w", rest, ErrAuthFailed))
	}
	return nil
}

func saslAuth(p *Protocol, sess *PopSession, strategy SASLStrategy) error {
	ir, err := strategy.Start()
	if err != nil {
		return newError(KindUser, err)
	}

	cmd := "AUTH " + strategy.Mechanism()
	if ir != nil {
		cmd += " " + encodeSASLResponse(ir)
	}
	if err := p.sendCommand(cmd); err != nil {
		return err
	}

	for {
		line, rerr := p.conn.ReadLine()
		if rerr != nil {
			return wrapAuthFailure(newError(KindTransport, rerr))
		}
		switch {
		case strings.HasPrefix(line, "+OK"):
			return nil
		case strings.HasPrefix(line, "-ERR"):
			rest := strings.TrimSpace(strings.TrimPrefix(line, "-ERR"))
			sess.ErrMsg = rest
			return newError(KindProtocol, fmt.Errorf("AUTH rejected: %s: %w", rest, ErrAuthFailed))
		case strings.HasPrefix(line, "+ "):
			challenge, derr := decodeSASLChallenge(strings.TrimPrefix(line, "+ "))
			if derr != nil {
				return newError(KindProtocol, fmt.Errorf("malformed SASL challenge: %w", derr))
			}
			response, nerr := strategy.Next(challenge)
			if nerr != nil {
				return newError(KindUser, nerr)
			}
			if err := p.sendCommand(encodeSASLResponse(response)); err != nil {
				return err
			}
		default:
			return newError(KindProtocol, fmt.Errorf("unexpected AUTH response: %q", line))
		}
	}
}

func wrapAuthFailure(err error) error {
	var perr *Error
	if as, ok := err.(*Error); ok {
		perr = as
	}
	if perr != nil {
		return perr
	}
	return newError(KindTransport, err)
}
