// Package metrics exposes Prometheus collectors for the harvester.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pagesTotal                 *prometheus.CounterVec
	discoveredURLsTotal        prometheus.Counter
	classifierCallsTotal       *prometheus.CounterVec
	classifierRetriesTotal     prometheus.Counter
	recordsClassifiedTotal     prometheus.Counter
	throttleWaitSeconds        prometheus.Histogram
	politenessWaitSeconds      *prometheus.HistogramVec
	activeWorkers              prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		pagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_pages_total",
				Help: "Total number of detail pages processed, labeled by outcome status and error kind.",
			},
			[]string{"status", "kind"},
		)

		discoveredURLsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "harvester_discovered_urls_total",
				Help: "Total number of detail-page URLs collected from listing pages.",
			},
		)

		classifierCallsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_classifier_calls_total",
				Help: "Total outbound classifier calls, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		classifierRetriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "harvester_classifier_retries_total",
				Help: "Total classifier backoff waits taken after retryable failures.",
			},
		)

		recordsClassifiedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "harvester_records_classified_total",
				Help: "Total records whose domains were written by the classifier.",
			},
		)

		throttleWaitSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "harvester_throttle_wait_seconds",
				Help:    "Histogram of time spent blocked in the classifier throttle gate.",
				Buckets: []float64{0.1, 0.5, 1, 2, 4, 6, 10, 30},
			},
		)

		politenessWaitSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvester_politeness_wait_seconds",
				Help:    "Histogram of per-host rate limit wait durations before page loads.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"host"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "harvester_active_workers",
				Help: "Number of scrape workers currently holding a browser session.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePage increments the page counter for one scrape outcome.
func ObservePage(status, kind string) {
	Init()
	if kind == "" {
		kind = "none"
	}
	pagesTotal.WithLabelValues(status, kind).Inc()
}

// AddDiscovered adds n discovered URLs.
func AddDiscovered(n int) {
	Init()
	if n > 0 {
		discoveredURLsTotal.Add(float64(n))
	}
}

// ObserveClassifierCall increments the classifier call counter.
func ObserveClassifierCall(outcome string) {
	Init()
	classifierCallsTotal.WithLabelValues(outcome).Inc()
}

// IncClassifierRetries counts one backoff wait.
func IncClassifierRetries() {
	Init()
	classifierRetriesTotal.Inc()
}

// AddRecordsClassified adds n classified records.
func AddRecordsClassified(n int) {
	Init()
	if n > 0 {
		recordsClassifiedTotal.Add(float64(n))
	}
}

// ObserveThrottleWait records time blocked in the classifier gate.
func ObserveThrottleWait(d time.Duration) {
	Init()
	throttleWaitSeconds.Observe(d.Seconds())
}

// ObservePolitenessWait records a per-host limiter wait.
func ObservePolitenessWait(host string, d time.Duration) {
	Init()
	politenessWaitSeconds.WithLabelValues(host).Observe(d.Seconds())
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	activeWorkers.Dec()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
