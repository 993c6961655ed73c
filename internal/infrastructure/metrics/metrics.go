package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"UpdatesDigest/internal/ports"
)

var _ ports.Telemetry = (*Metrics)(nil)

// Metrics groups the collectors exported by fetch and pipeline code.
// All methods are safe on a nil receiver so components can run unobserved.
type Metrics struct {
	registry *prometheus.Registry

	fetchAttempts   *prometheus.CounterVec
	fetchResults    *prometheus.CounterVec
	sourceChecks    *prometheus.CounterVec
	itemsDetected   *prometheus.CounterVec
	itemsStored     prometheus.Counter
	digests         *prometheus.CounterVec
	publishedChunks *prometheus.CounterVec
	runDuration     *prometheus.HistogramVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		fetchAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "updates_digest",
			Name:      "fetch_attempts_total",
			Help:      "HTTP attempts issued by the fetcher, including retries.",
		}, []string{"host"}),
		fetchResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "updates_digest",
			Name:      "fetch_results_total",
			Help:      "Final fetch outcomes by reason.",
		}, []string{"host", "outcome"}),
		sourceChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "updates_digest",
			Name:      "source_checks_total",
			Help:      "Change detection passes by strategy and outcome.",
		}, []string{"strategy", "outcome"}),
		itemsDetected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "updates_digest",
			Name:      "items_detected_total",
			Help:      "New items reported by the change detector.",
		}, []string{"source"}),
		itemsStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "updates_digest",
			Name:      "items_stored_total",
			Help:      "Items inserted after fingerprint dedup.",
		}),
		digests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "updates_digest",
			Name:      "digests_total",
			Help:      "Digest outcomes (generated, cached, empty, failed).",
		}, []string{"mode", "outcome"}),
		publishedChunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "updates_digest",
			Name:      "published_chunks_total",
			Help:      "Publish channel sends by outcome.",
		}, []string{"outcome"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "updates_digest",
			Name:      "run_duration_seconds",
			Help:      "Wall time of pipeline invocations.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}, []string{"mode"}),
	}

	m.registry.MustRegister(
		m.fetchAttempts,
		m.fetchResults,
		m.sourceChecks,
		m.itemsDetected,
		m.itemsStored,
		m.digests,
		m.publishedChunks,
		m.runDuration,
		prometheus.NewGoCollector(),
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry (nil when m is nil).
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) FetchAttempt(host string) {
	if m == nil {
		return
	}
	m.fetchAttempts.WithLabelValues(host).Inc()
}

func (m *Metrics) FetchResult(host, outcome string) {
	if m == nil {
		return
	}
	m.fetchResults.WithLabelValues(host, outcome).Inc()
}

func (m *Metrics) SourceCheck(strategy, outcome string) {
	if m == nil {
		return
	}
	m.sourceChecks.WithLabelValues(strategy, outcome).Inc()
}

func (m *Metrics) ItemsDetected(source string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.itemsDetected.WithLabelValues(source).Add(float64(n))
}

func (m *Metrics) ItemsStored(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.itemsStored.Add(float64(n))
}

func (m *Metrics) Digest(mode, outcome string) {
	if m == nil {
		return
	}
	m.digests.WithLabelValues(mode, outcome).Inc()
}

func (m *Metrics) PublishedChunk(outcome string) {
	if m == nil {
		return
	}
	m.publishedChunks.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RunDuration(mode string, seconds float64) {
	if m == nil {
		return
	}
	m.runDuration.WithLabelValues(mode).Observe(seconds)
}
