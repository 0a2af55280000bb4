package tlstrust

import "errors"

// ErrRejected is returned when the handshake is aborted: the user chose
// (r)eject at the trust prompt, or no Prompter was configured to ask.
// It maps to the "Trust" error kind of spec §7: abort, no retry.
var ErrRejected = errors.New("tlstrust: certificate rejected")
