package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce       sync.Once
	apiRequestsTotal   *prometheus.CounterVec
	apiLatencySeconds  *prometheus.HistogramVec
	apiErrorsTotal     *prometheus.CounterVec
	submissionsGraded  *prometheus.CounterVec
	batchItemsInFlight prometheus.Gauge
)

// RegisterMetrics initialises the Prometheus collectors used by the API and
// the grading pipeline.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "papergrade",
			Name:      "api_requests_total",
			Help:      "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "papergrade",
			Name:      "api_latency_seconds",
			Help:      "Latency distribution for API requests.",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 10.0, 30.0, 120.0},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "papergrade",
			Name:      "api_errors_total",
			Help:      "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		submissionsGraded = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "papergrade",
			Name:      "submissions_graded_total",
			Help:      "Submissions that reached a terminal pipeline state.",
		}, []string{"status"})

		batchItemsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "papergrade",
			Name:      "batch_items_in_flight",
			Help:      "Batch submissions currently being processed.",
		})

		prometheus.MustRegister(apiRequestsTotal, apiLatencySeconds, apiErrorsTotal, submissionsGraded, batchItemsInFlight)
	})
}

// APIRequests exposes the counter for API requests.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram for API requests.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// APIErrors exposes the counter for API error responses.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return apiErrorsTotal
}

// SubmissionsGraded exposes the counter for terminal pipeline outcomes,
// labelled by final submission status.
func SubmissionsGraded() *prometheus.CounterVec {
	RegisterMetrics()
	return submissionsGraded
}

// BatchItemsInFlight exposes the gauge tracking active batch work.
func BatchItemsInFlight() prometheus.Gauge {
	RegisterMetrics()
	return batchItemsInFlight
}
