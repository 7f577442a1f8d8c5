package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	DocumentsIngested    = prometheus.NewCounter(prometheus.CounterOpts{Name: "extractor_documents_ingested_total", Help: "Source documents upserted"})
	JobsEnqueued         = prometheus.NewCounter(prometheus.CounterOpts{Name: "extractor_jobs_enqueued_total", Help: "Extraction jobs enqueued or re-queued"})
	ExtractionsDone      = prometheus.NewCounter(prometheus.CounterOpts{Name: "extractor_done_total", Help: "Jobs that produced a stored workflow"})
	ExtractionsDiscarded = prometheus.NewCounter(prometheus.CounterOpts{Name: "extractor_discarded_total", Help: "Jobs whose content was judged unusable"})
	ExtractionRetries    = prometheus.NewCounter(prometheus.CounterOpts{Name: "extractor_retries_total", Help: "Jobs re-queued with backoff after a transient failure"})
	ExtractionsExhausted = prometheus.NewCounter(prometheus.CounterOpts{Name: "extractor_failed_total", Help: "Jobs that exhausted their attempts"})
	RateLimitRejects     = prometheus.NewCounter(prometheus.CounterOpts{Name: "extractor_rate_limit_rejects_total", Help: "Drain attempts deferred by the model rate limiter"})
	EligibleJobsGauge    = prometheus.NewGauge(prometheus.GaugeOpts{Name: "extractor_jobs_eligible", Help: "Pending jobs currently eligible to claim"})
	ExtractionDuration   = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "extractor_duration_seconds",
		Help:    "End-to-end duration of one job attempt",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
	})
)

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			DocumentsIngested,
			JobsEnqueued,
			ExtractionsDone,
			ExtractionsDiscarded,
			ExtractionRetries,
			ExtractionsExhausted,
			RateLimitRejects,
			EligibleJobsGauge,
			ExtractionDuration,
		)
	})
	return promhttp.Handler()
}
