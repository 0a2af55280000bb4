package transport

import "sync/atomic"

// Interrupter is a process-wide cooperative cancellation flag. Blocking
// Transport reads/writes observe it and abort with ErrInterrupted rather
// than being forcibly unblocked, mirroring spec §5's "process-level SIGINT
// flag" suspension model.
type Interrupter struct {
	raised atomic.Bool
}

// Raise marks the process as interrupted. Idempotent.
func (i *Interrupter) Raise() {
	i.raised.Store(true)
}

// Clear resets the interrupt flag, e.g. once the caller has handled it.
func (i *Interrupter) Clear() {
	i.raised.Store(false)
}

// Raised reports whether an interrupt is currently pending.
func (i *Interrupter) Raised() bool {
	return i.raised.Load()
}

// Global is the process-wide Interrupter shared by every Connection,
// matching spec §5's single process-level SIGINT flag.
var Global = &Interrupter{}
