package mailbox

import (
	"context"
	"fmt"

	"github.com/infodancer/msgstore"

	"github.com/infodancer/popfetch/internal/pop3"
)

// DrainOptions configures DrainToSpool (spec's supplemented
// fetchmail-style drain-to-spool workflow, distinct from the interactive
// mailbox-driver contract above).
type DrainOptions struct {
	// Recipient is the envelope recipient handed to DeliveryAgent.Deliver.
	Recipient string
	// UseLast, if true, additionally consults the LAST command and skips
	// any record at or below it (pop_last).
	UseLast bool
	// Delete controls server-side deletion of drained messages
	// (pop_delete's quad-option).
	Delete  QuadOption
	Confirm Confirmer
}

// DrainResult reports what DrainToSpool did.
type DrainResult struct {
	Delivered int
	Deleted   int
}

// DrainToSpool implements the fetchmail-style workflow neomutt's POP3
// client is most commonly run in: fetch every unseen message, deliver each
// to agent, then optionally DELE it before Sync. Unseen is "not already
// Read/Old in this session's records" (the cache already distinguishes
// those per spec §4.3.4 steps 4-5), further narrowed by LAST when
// UseLast is set.
func DrainToSpool(ctx context.Context, p *pop3.Protocol, sess *pop3.PopSession, agent msgstore.DeliveryAgent, opts DrainOptions) (DrainResult, error) {
	var result DrainResult

	lastSeen := 0
	if opts.UseLast {
		n, err := p.LAST(sess)
		if err != nil {
			return result, err
		}
		lastSeen = n
	}

	envelope := msgstore.Envelope{Recipients: []string{opts.Recipient}}

	for _, rec := range sess.Records {
		if rec.Deleted || rec.Refno == -1 {
			continue
		}
		if rec.Read || rec.Old {
			continue
		}
		if opts.UseLast && rec.Refno <= lastSeen {
			continue
		}

		body, err := p.FetchMessage(sess, rec, nil)
		if err != nil {
			return result, err
		}
		derr := agent.Deliver(ctx, envelope, body)
		body.Close()
		if derr != nil {
			return result, fmt.Errorf("mailbox: deliver %s: %w", rec.UIDL, derr)
		}
		rec.Read = true
		result.Delivered++

		if opts.Delete.Resolve(fmt.Sprintf("delete message %q from server?", rec.UIDL), opts.Confirm) {
			if err := p.DELE(sess, rec.Refno); err != nil {
				return result, err
			}
			rec.Deleted = true
			result.Deleted++
		}
	}

	return result, nil
}
