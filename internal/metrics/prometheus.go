package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements the Collector interface using Prometheus
// metrics, one label per account so a multi-account config still yields a
// readable dashboard.
type PrometheusCollector struct {
	fetchesTotal   *prometheus.CounterVec
	newMessages    *prometheus.CounterVec
	lostMessages   *prometheus.CounterVec
	messagesSize   prometheus.Histogram
	messagesRetr   *prometheus.CounterVec
	messagesDel    *prometheus.CounterVec
	cacheHits      *prometheus.CounterVec
	cacheMisses    *prometheus.CounterVec
	tlsHandshakes  *prometheus.CounterVec
	trustDecisions *prometheus.CounterVec
	authAttempts   *prometheus.CounterVec
	syncsTotal     *prometheus.CounterVec
}

// NewPrometheusCollector creates a new PrometheusCollector with all metrics registered.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	c := &PrometheusCollector{
		fetchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "popfetch_fetches_total",
			Help: "Total number of fetch-headers passes started.",
		}, []string{"account"}),
		newMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "popfetch_new_messages_total",
			Help: "Total number of new messages discovered by fetch-headers.",
		}, []string{"account"}),
		lostMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "popfetch_lost_messages_total",
			Help: "Total number of server-side deletions discovered by fetch-headers.",
		}, []string{"account"}),
		messagesSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "popfetch_message_size_bytes",
			Help:    "Size of retrieved messages in bytes.",
			Buckets: []float64{1024, 10240, 102400, 1048576, 10485760, 26214400, 52428800},
		}),
		messagesRetr: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "popfetch_messages_retrieved_total",
			Help: "Total number of messages retrieved.",
		}, []string{"account"}),
		messagesDel: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "popfetch_messages_deleted_total",
			Help: "Total number of messages deleted during sync.",
		}, []string{"account"}),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "popfetch_header_cache_hits_total",
			Help: "Total number of header-cache hits.",
		}, []string{"account"}),
		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "popfetch_header_cache_misses_total",
			Help: "Total number of header-cache misses.",
		}, []string{"account"}),
		tlsHandshakes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "popfetch_tls_handshakes_total",
			Help: "Total number of TLS handshakes completed.",
		}, []string{"account"}),
		trustDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "popfetch_trust_decisions_total",
			Help: "Total number of TLS trust decisions, by outcome.",
		}, []string{"account", "decision"}),
		authAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "popfetch_auth_attempts_total",
			Help: "Total number of authentication attempts.",
		}, []string{"account", "result"}),
		syncsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "popfetch_syncs_total",
			Help: "Total number of completed sync (QUIT) operations.",
		}, []string{"account"}),
	}

	reg.MustRegister(
		c.fetchesTotal,
		c.newMessages,
		c.lostMessages,
		c.messagesSize,
		c.messagesRetr,
		c.messagesDel,
		c.cacheHits,
		c.cacheMisses,
		c.tlsHandshakes,
		c.trustDecisions,
		c.authAttempts,
		c.syncsTotal,
	)

	return c
}

func (c *PrometheusCollector) FetchStarted(account string) {
	c.fetchesTotal.WithLabelValues(account).Inc()
}

func (c *PrometheusCollector) FetchCompleted(account string, newMessages, lostMessages int) {
	c.newMessages.WithLabelValues(account).Add(float64(newMessages))
	c.lostMessages.WithLabelValues(account).Add(float64(lostMessages))
}

func (c *PrometheusCollector) MessageRetrieved(account string, sizeBytes int64) {
	c.messagesRetr.WithLabelValues(account).Inc()
	c.messagesSize.Observe(float64(sizeBytes))
}

func (c *PrometheusCollector) MessageDeleted(account string) {
	c.messagesDel.WithLabelValues(account).Inc()
}

func (c *PrometheusCollector) CacheHit(account string) {
	c.cacheHits.WithLabelValues(account).Inc()
}

func (c *PrometheusCollector) CacheMiss(account string) {
	c.cacheMisses.WithLabelValues(account).Inc()
}

func (c *PrometheusCollector) TLSHandshake(account string) {
	c.tlsHandshakes.WithLabelValues(account).Inc()
}

func (c *PrometheusCollector) TrustDecision(account string, decision string) {
	c.trustDecisions.WithLabelValues(account, decision).Inc()
}

func (c *PrometheusCollector) AuthAttempt(account string, success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	c.authAttempts.WithLabelValues(account, result).Inc()
}

func (c *PrometheusCollector) SyncCompleted(account string) {
	c.syncsTotal.WithLabelValues(account).Inc()
}
