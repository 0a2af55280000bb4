package metrics

// NoopCollector is a no-op implementation of the Collector interface.
// All methods are empty stubs that do nothing.
type NoopCollector struct{}

// FetchStarted is a no-op.
func (n *NoopCollector) FetchStarted(account string) {}

// FetchCompleted is a no-op.
func (n *NoopCollector) FetchCompleted(account string, newMessages, lostMessages int) {}

// MessageRetrieved is a no-op.
func (n *NoopCollector) MessageRetrieved(account string, sizeBytes int64) {}

// MessageDeleted is a no-op.
func (n *NoopCollector) MessageDeleted(account string) {}

// CacheHit is a no-op.
func (n *NoopCollector) CacheHit(account string) {}

// CacheMiss is a no-op.
func (n *NoopCollector) CacheMiss(account string) {}

// TLSHandshake is a no-op.
func (n *NoopCollector) TLSHandshake(account string) {}

// TrustDecision is a no-op.
func (n *NoopCollector) TrustDecision(account string, decision string) {}

// AuthAttempt is a no-op.
func (n *NoopCollector) AuthAttempt(account string, success bool) {}

// SyncCompleted is a no-op.
func (n *NoopCollector) SyncCompleted(account string) {}
