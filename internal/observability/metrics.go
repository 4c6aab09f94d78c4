package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce              sync.Once
	apiRequestsTotal          *prometheus.CounterVec
	apiLatencySeconds         *prometheus.HistogramVec
	apiErrorsTotal            *prometheus.CounterVec
	executionsDispatchedTotal *prometheus.CounterVec
	dispatchFailuresTotal     *prometheus.CounterVec
	executionResultsTotal     *prometheus.CounterVec
	staleResponsesTotal       prometheus.Counter
	resultStreamClients       prometheus.Gauge
	resultFeedEventsTotal     *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the exam API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exam_api_requests_total",
			Help: "Total number of exam API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "exam_api_latency_seconds",
			Help:    "Latency distribution for exam API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exam_api_errors_total",
			Help: "Total number of error responses returned by exam API endpoints.",
		}, []string{"method", "route", "status"})

		executionsDispatchedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "executions_dispatched_total",
			Help: "Execution requests handed to the execution channel.",
		}, []string{"language"})

		dispatchFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "execution_dispatch_failures_total",
			Help: "Execution requests that could not be handed to the execution channel.",
		}, []string{"language"})

		executionResultsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "execution_results_total",
			Help: "Result rows marked, grouped by outcome.",
		}, []string{"result"})

		staleResponsesTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "execution_stale_responses_total",
			Help: "Execution responses dropped because a retry superseded them.",
		})

		resultStreamClients = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "result_stream_clients",
			Help: "Websocket clients currently following solution results.",
		})

		resultFeedEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "result_feed_events_total",
			Help: "Result events fanned out to stream clients, grouped by origin.",
		}, []string{"origin"})

		prometheus.MustRegister(
			apiRequestsTotal,
			apiLatencySeconds,
			apiErrorsTotal,
			executionsDispatchedTotal,
			dispatchFailuresTotal,
			executionResultsTotal,
			staleResponsesTotal,
			resultStreamClients,
			resultFeedEventsTotal,
		)
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

// ExecutionsDispatched counts requests sent to the execution channel.
func ExecutionsDispatched() *prometheus.CounterVec {
	RegisterMetrics()
	return executionsDispatchedTotal
}

// DispatchFailures counts requests the execution channel refused.
func DispatchFailures() *prometheus.CounterVec {
	RegisterMetrics()
	return dispatchFailuresTotal
}

// ExecutionResults counts marked result rows by outcome.
func ExecutionResults() *prometheus.CounterVec {
	RegisterMetrics()
	return executionResultsTotal
}

// StaleResponses counts superseded execution responses.
func StaleResponses() prometheus.Counter {
	RegisterMetrics()
	return staleResponsesTotal
}

// ResultStreamClients tracks connected result stream websockets.
func ResultStreamClients() prometheus.Gauge {
	RegisterMetrics()
	return resultStreamClients
}

// ResultFeedEvents counts result events delivered to the feed.
func ResultFeedEvents() *prometheus.CounterVec {
	RegisterMetrics()
	return resultFeedEventsTotal
}
