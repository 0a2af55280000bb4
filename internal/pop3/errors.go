package pop3

import "errors"

// Kind classifies a protocol-engine error into the taxonomy of spec §7.
// Callers switch on Kind rather than comparing sentinel error values, since
// several operations wrap a server error line or an underlying transport
// error alongside it.
type Kind int

const (
	// KindTransport covers socket/read/write failure and unexpected close.
	KindTransport Kind = iota
	// KindProtocol covers a "-ERR" response from the server.
	KindProtocol
	// KindIntegrity covers tempfile or cache write failure.
	KindIntegrity
	// KindTrust covers handshake failure, hostname mismatch, or user reject.
	KindTrust
	// KindUser covers SIGINT during blocking I/O or an interactive reject.
	KindUser
	// KindStale covers a refno of -1 at fetch time.
	KindStale
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindProtocol:
		return "protocol"
	case KindIntegrity:
		return "integrity"
	case KindTrust:
		return "trust"
	case KindUser:
		return "user"
	case KindStale:
		return "stale"
	default:
		return "unknown"
	}
}

// Error is the protocol engine's wrapped error: a Kind plus the underlying
// cause, so errors.Is/As work both against the cause and against a Kind.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// newError wraps err (which may be nil) with kind.
func newError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// Sentinel errors for conditions that are not tied to a specific server
// error line or transport failure.
var (
	// ErrNoUsername is returned when authentication is attempted without a
	// configured username.
	ErrNoUsername = errors.New("pop3: username not configured")

	// ErrAuthFailed is returned when no authentication strategy succeeds.
	ErrAuthFailed = errors.New("pop3: authentication failed")

	// ErrInvalidState is returned when an operation is not valid given the
	// session's current status.
	ErrInvalidState = errors.New("pop3: operation not valid in current state")

	// ErrStaleIndex is returned when a fetch is attempted against a
	// HeaderRecord whose refno is -1 (spec §4.3.5 "index is incorrect").
	ErrStaleIndex = errors.New("pop3: index is incorrect; reopen mailbox")

	// ErrAborted is returned when the user rejects an interactive prompt or
	// a SIGINT is observed mid-operation; never retried silently.
	ErrAborted = errors.New("pop3: aborted")

	// ErrTLSNotAvailable is returned when STLS is requested but the session
	// has no TLS engine configured.
	ErrTLSNotAvailable = errors.New("pop3: TLS not available")

	// ErrAlreadyTLS is returned when STLS is requested on an
	// already-encrypted connection.
	ErrAlreadyTLS = errors.New("pop3: already using TLS")
)
