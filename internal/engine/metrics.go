package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// WeirEventsIngested tracks events accepted by the engine.
	WeirEventsIngested = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "weir_events_ingested_total",
			Help: "Total number of events accepted by the aggregation engine",
		},
	)

	// WeirEventsUnmatched tracks events matching zero definitions.
	WeirEventsUnmatched = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "weir_events_unmatched_total",
			Help: "Total number of events that matched no aggregation definition",
		},
	)

	// WeirWindowsClosed tracks emitted windows per aggregation and cause.
	WeirWindowsClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weir_windows_closed_total",
			Help: "Total number of aggregation windows closed and emitted",
		},
		[]string{"aggregation", "cause"},
	)

	// WeirComputeErrors tracks per-event skips during metric computation.
	WeirComputeErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "weir_compute_errors_total",
			Help: "Total number of events skipped during metric computation",
		},
	)

	// WeirPublishFailures tracks failed publish attempts (including retries).
	WeirPublishFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "weir_publish_failures_total",
			Help: "Total number of failed result publish attempts",
		},
	)

	// WeirResultsDropped tracks results lost after the retry was exhausted.
	WeirResultsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "weir_results_dropped_total",
			Help: "Total number of aggregation results dropped after publish retry",
		},
	)

	// WeirOpenBuffers tracks currently open window buffers.
	WeirOpenBuffers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "weir_open_buffers",
			Help: "Number of currently open window buffers",
		},
	)
)

func init() {
	// Register metrics with the default registry
	prometheus.MustRegister(WeirEventsIngested)
	prometheus.MustRegister(WeirEventsUnmatched)
	prometheus.MustRegister(WeirWindowsClosed)
	prometheus.MustRegister(WeirComputeErrors)
	prometheus.MustRegister(WeirPublishFailures)
	prometheus.MustRegister(WeirResultsDropped)
	prometheus.MustRegister(WeirOpenBuffers)
}
