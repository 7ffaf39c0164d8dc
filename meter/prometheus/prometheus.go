package prommetrics

import (
	"time"

	"github.com/krlsedu/aicore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics implements aicore.Meter using Prometheus.
type Metrics struct {
	acquireTotal     *prometheus.CounterVec
	exhaustedTotal   prometheus.Counter
	scannedCount     prometheus.Histogram
	attemptsTotal    *prometheus.CounterVec
	attemptDuration  *prometheus.HistogramVec
	tokensTotal      *prometheus.CounterVec
	suspensionsTotal *prometheus.CounterVec
}

var _ aicore.Meter = (*Metrics)(nil)

// NewMetrics creates a new Prometheus meter registered on reg.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		acquireTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "acquire_total",
			Help:      "Total number of successful slot acquisitions.",
		}, []string{"tier", "model"}),

		exhaustedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "acquire_exhausted_total",
			Help:      "Total number of scans that found no eligible pair.",
		}),

		scannedCount: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "acquire_scanned_candidates",
			Help:      "Candidates inspected per acquisition.",
			Buckets:   []float64{1, 2, 4, 8, 16, 32, 64},
		}),

		attemptsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_total",
			Help:      "Total number of transport attempts by outcome.",
		}, []string{"tier", "model", "outcome"}),

		attemptDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "attempt_duration_seconds",
			Help:      "Latency of transport attempts.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tier", "model"}),

		tokensTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_total",
			Help:      "Tokens consumed by successful attempts.",
		}, []string{"tier", "model", "kind"}),

		suspensionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "suspensions_total",
			Help:      "Total number of pair suspensions after quota rejections.",
		}, []string{"tier", "model"}),
	}
}

func (m *Metrics) OnAcquire(e aicore.AcquireEvent) {
	m.scannedCount.Observe(float64(e.Scanned))
	if e.Exhausted {
		m.exhaustedTotal.Inc()
		return
	}
	m.acquireTotal.WithLabelValues(e.Tier.String(), e.Model).Inc()
}

func (m *Metrics) OnResult(e aicore.ResultEvent) {
	tier := e.Tier.String()
	m.attemptsTotal.WithLabelValues(tier, e.Model, string(e.Outcome)).Inc()
	m.attemptDuration.WithLabelValues(tier, e.Model).Observe(e.Duration.Seconds())
	if e.Outcome == aicore.OutcomeSuccess {
		m.tokensTotal.WithLabelValues(tier, e.Model, "input").Add(float64(e.Usage.InputTokens))
		m.tokensTotal.WithLabelValues(tier, e.Model, "output").Add(float64(e.Usage.OutputTokens))
		m.tokensTotal.WithLabelValues(tier, e.Model, "image").Add(float64(e.Usage.ImageTokens))
	}
}

func (m *Metrics) OnSuspend(e aicore.SuspendEvent) {
	m.suspensionsTotal.WithLabelValues(e.Tier.String(), e.Model).Inc()
}

// Snapshotter is satisfied by *aicore.QuotaLedger.
type Snapshotter interface {
	Snapshot() []aicore.PairState
}

// LedgerCollector exports the live ledger state as gauges on every scrape.
type LedgerCollector struct {
	ledger Snapshotter
	now    func() time.Time

	inFlight  *prometheus.Desc
	limit     *prometheus.Desc
	suspended *prometheus.Desc
	disabled  *prometheus.Desc
}

var _ prometheus.Collector = (*LedgerCollector)(nil)

// NewLedgerCollector creates a collector over ledger. Register it with
// reg.MustRegister.
func NewLedgerCollector(ledger Snapshotter, namespace string) *LedgerCollector {
	labels := []string{"credential", "tier", "model"}
	return &LedgerCollector{
		ledger:    ledger,
		now:       time.Now,
		inFlight:  prometheus.NewDesc(prometheus.BuildFQName(namespace, "ledger", "in_flight"), "Outstanding leases per pair.", labels, nil),
		limit:     prometheus.NewDesc(prometheus.BuildFQName(namespace, "ledger", "limit"), "Concurrency limit per pair.", labels, nil),
		suspended: prometheus.NewDesc(prometheus.BuildFQName(namespace, "ledger", "suspended"), "1 while the pair is suspended.", labels, nil),
		disabled:  prometheus.NewDesc(prometheus.BuildFQName(namespace, "ledger", "disabled"), "1 when the credential was disabled after an auth failure.", labels, nil),
	}
}

func (c *LedgerCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.inFlight
	ch <- c.limit
	ch <- c.suspended
	ch <- c.disabled
}

func (c *LedgerCollector) Collect(ch chan<- prometheus.Metric) {
	now := c.now()
	for _, p := range c.ledger.Snapshot() {
		lv := []string{p.CredentialID, p.Tier.String(), p.Model}
		ch <- prometheus.MustNewConstMetric(c.inFlight, prometheus.GaugeValue, float64(p.InFlight), lv...)
		ch <- prometheus.MustNewConstMetric(c.limit, prometheus.GaugeValue, float64(p.Limit), lv...)
		ch <- prometheus.MustNewConstMetric(c.suspended, prometheus.GaugeValue, boolValue(p.SuspendedUntil.After(now)), lv...)
		ch <- prometheus.MustNewConstMetric(c.disabled, prometheus.GaugeValue, boolValue(p.Disabled), lv...)
	}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
