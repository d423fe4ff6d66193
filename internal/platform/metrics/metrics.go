package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters, gauges and histograms for the digest service.
type Metrics struct {
	registry         *prometheus.Registry
	requestsTotal    prometheus.Counter
	errorsTotal      prometheus.Counter
	summariesTotal   *prometheus.CounterVec
	chunksTotal      *prometheus.CounterVec
	attemptsTotal    prometheus.Counter
	pipelineDuration prometheus.Histogram
	cachedResults    prometheus.Gauge
}

// New creates and registers Prometheus metrics for the digest service.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "digest_requests_total",
		Help: "Total number of HTTP requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "digest_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	summariesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "digest_summaries_total",
		Help: "Summaries returned, by source (cache or pipeline)",
	}, []string{"source"})
	chunksTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "digest_chunks_total",
		Help: "Chunks summarized, by outcome (generated or fallback)",
	}, []string{"outcome"})
	attemptsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "digest_generation_attempts_total",
		Help: "Total number of calls made to the text-generation backend",
	})
	pipelineDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "digest_pipeline_duration_seconds",
		Help:    "Wall-clock duration of uncached summarization runs",
		Buckets: []float64{1, 2.5, 5, 10, 20, 30, 45, 60, 90, 120},
	})
	cachedResults := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "digest_cached_results",
		Help: "Number of unexpired summaries held in the result cache",
	})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		summariesTotal,
		chunksTotal,
		attemptsTotal,
		pipelineDuration,
		cachedResults,
	)

	return &Metrics{
		registry:         registry,
		requestsTotal:    requestsTotal,
		errorsTotal:      errorsTotal,
		summariesTotal:   summariesTotal,
		chunksTotal:      chunksTotal,
		attemptsTotal:    attemptsTotal,
		pipelineDuration: pipelineDuration,
		cachedResults:    cachedResults,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// IncSummaries counts a returned summary; source is "cache" or "pipeline".
func (m *Metrics) IncSummaries(source string) {
	m.summariesTotal.WithLabelValues(source).Inc()
}

// AddChunks records chunk outcomes for one pipeline run.
func (m *Metrics) AddChunks(generated, fallback int) {
	m.chunksTotal.WithLabelValues("generated").Add(float64(generated))
	m.chunksTotal.WithLabelValues("fallback").Add(float64(fallback))
}

// AddAttempts records calls made to the text-generation backend.
func (m *Metrics) AddAttempts(n int) {
	m.attemptsTotal.Add(float64(n))
}

// ObservePipeline records the duration of one uncached run.
func (m *Metrics) ObservePipeline(d time.Duration) {
	m.pipelineDuration.Observe(d.Seconds())
}

// SetCachedResults sets the cached results gauge.
func (m *Metrics) SetCachedResults(n int) {
	m.cachedResults.Set(float64(n))
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values (e.g. cached results).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
