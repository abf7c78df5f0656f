// Package metrics exposes Prometheus instrumentation for the HTTP server,
// the cache, provider adapters, fallback pipelines and the refresh loop.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "marketlens"

// Registry is a private Prometheus registry plus every collector the
// service reports. It satisfies the Recorder interfaces of the packages
// that report into it.
type Registry struct {
	*prometheus.Registry

	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	cacheLookups     *prometheus.CounterVec
	providerRequests *prometheus.CounterVec
	providerLatency  *prometheus.HistogramVec
	fallbackStages   *prometheus.CounterVec
	llmRequests      *prometheus.CounterVec
	llmTokens        *prometheus.CounterVec

	signalsGenerated  *prometheus.CounterVec
	signalsRouted     *prometheus.CounterVec
	refreshCycles     prometheus.Counter
	refreshDuration   prometheus.Histogram
	consensusDuration prometheus.Histogram
	jobsActive        *prometheus.GaugeVec
	watchlistSymbols  prometheus.Gauge
}

// builder registers collectors as it creates them. HTTP metrics stay
// unprefixed so stock dashboards work; the rest live under namespace.
type builder struct{ reg *prometheus.Registry }

func (b builder) counters(name, help string, labels ...string) *prometheus.CounterVec {
	c := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help}, labels)
	b.reg.MustRegister(c)
	return c
}

func (b builder) counter(name, help string) prometheus.Counter {
	c := prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help})
	b.reg.MustRegister(c)
	return c
}

func (b builder) gauge(name, help string) prometheus.Gauge {
	g := prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help})
	b.reg.MustRegister(g)
	return g
}

func (b builder) histogram(name, help string, buckets []float64) prometheus.Histogram {
	h := prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: name, Help: help, Buckets: buckets})
	b.reg.MustRegister(h)
	return h
}

// NewRegistry creates a registry with Go runtime, process and service
// collectors registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	b := builder{reg: reg}

	r := &Registry{
		Registry: reg,
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by method, route pattern and status class",
		}, []string{"method", "path", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		httpRequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "HTTP requests currently being served",
		}),
	}
	reg.MustRegister(r.httpRequestsTotal, r.httpRequestDuration, r.httpRequestsInFlight)

	r.cacheLookups = b.counters("cache_lookups_total",
		"Cache lookups by payload class and outcome (hit, miss, expired, stale)", "class", "outcome")
	r.providerRequests = b.counters("provider_requests_total",
		"Upstream provider requests by outcome", "provider", "outcome")
	r.providerLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "provider_request_duration_seconds",
		Help:      "Upstream provider request latency in seconds",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"provider"})
	reg.MustRegister(r.providerLatency)
	r.fallbackStages = b.counters("fallback_stage_total",
		"Fallback pipeline runs by the stage that answered", "pipeline", "stage")
	r.llmRequests = b.counters("llm_requests_total",
		"Narrative requests by LLM provider and outcome", "provider", "outcome")
	r.llmTokens = b.counters("llm_tokens_total",
		"Tokens consumed by narratives", "provider", "direction")

	r.signalsGenerated = b.counters("signals_generated_total",
		"Signals derived from refresh cycles", "strategy", "action")
	r.signalsRouted = b.counters("signals_routed_total",
		"Signal deliveries by notifier and status", "notifier", "status")
	r.refreshCycles = b.counter("refresh_cycles_total", "Completed watchlist refresh cycles")
	r.refreshDuration = b.histogram("refresh_duration_seconds",
		"Watchlist refresh cycle duration in seconds", prometheus.DefBuckets)
	r.consensusDuration = b.histogram("consensus_duration_seconds",
		"Consensus ranking duration in seconds", []float64{1, 5, 10, 30, 60, 120, 300})
	r.jobsActive = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "jobs_active",
		Help:      "Pending or running background jobs by type",
	}, []string{"type"})
	reg.MustRegister(r.jobsActive)
	r.watchlistSymbols = b.gauge("watchlist_symbols", "Symbols on the refresh watchlist")

	return r
}

// RecordRequest records metrics for an HTTP request.
func (r *Registry) RecordRequest(method, path string, status int, duration float64) {
	statusStr := statusToString(status)
	r.httpRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	r.httpRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// InFlightInc increments in-flight requests.
func (r *Registry) InFlightInc() {
	r.httpRequestsInFlight.Inc()
}

// InFlightDec decrements in-flight requests.
func (r *Registry) InFlightDec() {
	r.httpRequestsInFlight.Dec()
}

// RecordCache implements cache.Recorder.
func (r *Registry) RecordCache(class, outcome string) {
	r.cacheLookups.WithLabelValues(class, outcome).Inc()
}

// RecordProvider implements collector.Recorder.
func (r *Registry) RecordProvider(provider, outcome string, d time.Duration) {
	r.providerRequests.WithLabelValues(provider, outcome).Inc()
	r.providerLatency.WithLabelValues(provider).Observe(d.Seconds())
}

// RecordFallback implements fusion.Recorder.
func (r *Registry) RecordFallback(pipeline, stage string) {
	r.fallbackStages.WithLabelValues(pipeline, stage).Inc()
}

// RecordLLM implements insight.Recorder.
func (r *Registry) RecordLLM(provider, outcome string, inputTokens, outputTokens int) {
	r.llmRequests.WithLabelValues(provider, outcome).Inc()
	if inputTokens > 0 {
		r.llmTokens.WithLabelValues(provider, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		r.llmTokens.WithLabelValues(provider, "output").Add(float64(outputTokens))
	}
}

// RecordSignal records a generated signal.
func (r *Registry) RecordSignal(strategy, action string) {
	r.signalsGenerated.WithLabelValues(strategy, action).Inc()
}

// RecordSignalRouted records a routed signal.
func (r *Registry) RecordSignalRouted(notifier, status string) {
	r.signalsRouted.WithLabelValues(notifier, status).Inc()
}

// RecordRefreshCycle records a completed watchlist refresh.
func (r *Registry) RecordRefreshCycle(duration float64) {
	r.refreshCycles.Inc()
	r.refreshDuration.Observe(duration)
}

// RecordConsensus records how long a consensus ranking took.
func (r *Registry) RecordConsensus(duration float64) {
	r.consensusDuration.Observe(duration)
}

// SetJobsActive sets the number of active jobs of a type.
func (r *Registry) SetJobsActive(jobType string, count int) {
	r.jobsActive.WithLabelValues(jobType).Set(float64(count))
}

// SetWatchlistSize sets the watchlist size.
func (r *Registry) SetWatchlistSize(size int) {
	r.watchlistSymbols.Set(float64(size))
}

func statusToString(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}
