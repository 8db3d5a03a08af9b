package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "genie_router"

var Registry = prometheus.NewRegistry()

var (
	RetryAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retry_attempts_total",
			Help:      "Failed attempts seen by the retry engine, by operation and error class.",
		},
		[]string{"operation", "class"},
	)

	RetryCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retry_calls_total",
			Help:      "Completed retry-wrapped calls, by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analytics_query_duration_seconds",
			Help:      "Latency of analytics backend questions including retries.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
		},
		[]string{"space_id", "outcome"},
	)

	TurnDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "coordinator_turn_duration_seconds",
			Help:      "Latency of a full coordinator turn.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		},
		[]string{"mode", "outcome"},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		RetryAttempts,
		RetryCalls,
		QueryDuration,
		TurnDuration,
	)
}

// Handler serves the package registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
