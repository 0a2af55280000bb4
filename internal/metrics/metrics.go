// Package metrics provides interfaces and implementations for collecting
// POP3 client metrics: per-account fetch/sync activity, cache hit rates
// and TLS trust decisions.
package metrics

// Collector defines the interface for recording client-side metrics.
type Collector interface {
	// FetchStarted marks the beginning of a fetch-headers pass for an
	// account.
	FetchStarted(account string)
	// FetchCompleted records the outcome of a fetch-headers pass.
	FetchCompleted(account string, newMessages, lostMessages int)

	// MessageRetrieved records a successful RETR/body delivery.
	MessageRetrieved(account string, sizeBytes int64)
	// MessageDeleted records a DELE applied during Sync.
	MessageDeleted(account string)

	// CacheHit/CacheMiss record header-cache lookup outcomes during
	// fetch-headers.
	CacheHit(account string)
	CacheMiss(account string)

	// TLSHandshake records whether an account's connection negotiated
	// TLS.
	TLSHandshake(account string)
	// TrustDecision records a tlstrust.Decision reached for an account's
	// certificate chain.
	TrustDecision(account string, decision string)

	// AuthAttempt records the outcome of Open's authentication step.
	AuthAttempt(account string, success bool)

	// SyncCompleted records a completed Sync (QUIT) for an account.
	SyncCompleted(account string)
}
