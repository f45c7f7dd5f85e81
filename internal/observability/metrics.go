package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce           sync.Once
	webhookDeliveriesTotal *prometheus.CounterVec
	pipelineRoundsTotal    *prometheus.CounterVec
	pipelineDurationSecs   *prometheus.HistogramVec
	httpRequestsTotal      *prometheus.CounterVec
	httpLatencySecs        *prometheus.HistogramVec
)

// RegisterMetrics initialises the Prometheus collectors used by the review
// pipeline.
func RegisterMetrics() {
	registerOnce.Do(func() {
		webhookDeliveriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webhook_deliveries_total",
			Help: "Inbound webhook deliveries by provider and disposition.",
		}, []string{"provider", "disposition"})

		pipelineRoundsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_rounds_total",
			Help: "Analysis rounds by outcome.",
		}, []string{"outcome"})

		pipelineDurationSecs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pipeline_round_duration_seconds",
			Help:    "Wall-clock duration of analysis rounds by outcome.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"outcome"})

		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "API requests by method, route template and status.",
		}, []string{"method", "route", "status"})

		httpLatencySecs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "API request latency by method and route template.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"})

		prometheus.MustRegister(webhookDeliveriesTotal, pipelineRoundsTotal, pipelineDurationSecs, httpRequestsTotal, httpLatencySecs)
	})
}

// WebhookDeliveries exposes the delivery counter.
func WebhookDeliveries() *prometheus.CounterVec {
	RegisterMetrics()
	return webhookDeliveriesTotal
}

// PipelineRounds exposes the round outcome counter.
func PipelineRounds() *prometheus.CounterVec {
	RegisterMetrics()
	return pipelineRoundsTotal
}

// PipelineDuration exposes the round duration histogram.
func PipelineDuration() *prometheus.HistogramVec {
	RegisterMetrics()
	return pipelineDurationSecs
}

// HTTPRequests exposes the API request counter.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the API latency histogram.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySecs
}
