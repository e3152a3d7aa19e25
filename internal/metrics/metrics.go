package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Extraction metrics
	extractionRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ocrengine",
			Name:      "extraction_requests_total",
			Help:      "Total number of extraction requests by final provider and outcome",
		},
		[]string{"provider", "outcome"}, // outcome: success, degraded, cached
	)

	extractionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ocrengine",
			Name:      "extraction_duration_seconds",
			Help:      "End-to-end extraction duration in seconds",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 25, 50, 100},
		},
		[]string{"provider"},
	)

	extractionConfidence = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ocrengine",
			Name:      "extraction_confidence",
			Help:      "Final confidence of extraction results",
			Buckets:   []float64{.1, .2, .3, .4, .5, .6, .7, .8, .9, 1},
		},
		[]string{"provider"},
	)

	// Provider metrics
	providerAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ocrengine",
			Name:      "provider_attempts_total",
			Help:      "Total number of provider attempts by result code",
		},
		[]string{"provider", "code"}, // code: ok or an error code
	)

	providerSkipsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ocrengine",
			Name:      "provider_skips_total",
			Help:      "Providers skipped in the fallback chain",
		},
		[]string{"provider", "reason"}, // reason: unavailable, rate_limited
	)

	// Cache metrics
	cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ocrengine",
			Name:      "cache_hits_total",
			Help:      "Result cache hits",
		},
		[]string{"level"}, // level: memory, redis
	)

	cacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ocrengine",
			Name:      "cache_misses_total",
			Help:      "Result cache misses",
		},
	)

	// Scheduler metrics
	queueWaitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ocrengine",
			Name:      "scheduler_wait_seconds",
			Help:      "Time a request waited in a provider queue before dispatch",
			Buckets:   []float64{0, .05, .1, .5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider"},
	)

	queueTimedOutTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ocrengine",
			Name:      "scheduler_timeouts_total",
			Help:      "Requests rejected because their timeout elapsed while queued",
		},
		[]string{"provider"},
	)

	// Async job metrics
	jobsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ocrengine",
			Name:      "jobs_processed_total",
			Help:      "Async extraction jobs by final status",
		},
		[]string{"status"},
	)
)

// RecordExtraction records a completed extraction
func RecordExtraction(provider, outcome string, seconds, confidence float64) {
	extractionRequestsTotal.WithLabelValues(provider, outcome).Inc()
	extractionDuration.WithLabelValues(provider).Observe(seconds)
	extractionConfidence.WithLabelValues(provider).Observe(confidence)
}

// RecordProviderAttempt records one attempt against a provider; code is "ok" on success
func RecordProviderAttempt(provider, code string) {
	providerAttemptsTotal.WithLabelValues(provider, code).Inc()
}

// RecordProviderSkip records a provider skipped by the fallback chain
func RecordProviderSkip(provider, reason string) {
	providerSkipsTotal.WithLabelValues(provider, reason).Inc()
}

// RecordCacheHit increments the cache hit counter
func RecordCacheHit(level string) {
	cacheHits.WithLabelValues(level).Inc()
}

// RecordCacheMiss increments the cache miss counter
func RecordCacheMiss() {
	cacheMisses.Inc()
}

// RecordQueueWaitTime records how long a request waited in a provider queue
func RecordQueueWaitTime(provider string, seconds float64) {
	queueWaitDuration.WithLabelValues(provider).Observe(seconds)
}

// RecordQueueTimeout increments the queued-timeout counter
func RecordQueueTimeout(provider string) {
	queueTimedOutTotal.WithLabelValues(provider).Inc()
}

// RecordJob records an async job outcome
func RecordJob(status string) {
	jobsProcessedTotal.WithLabelValues(status).Inc()
}
