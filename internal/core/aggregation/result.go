package aggregation

import (
	"time"

	"github.com/shopspring/decimal"
)

// Close causes recorded on emitted results.
const (
	CauseDuration   = "duration"    // tumbling window elapsed
	CauseMaxEvents  = "max_events"  // hard event cap reached
	CauseSlide      = "slide"       // sliding window slide tick
	CauseSessionGap = "session_gap" // idle gap ended a session
	CauseSweep      = "sweep"       // idle sweep force-closed the window
	CauseForceClose = "force_close" // administrative flush
	CauseUnregister = "unregister"  // definition removal flushed the buffer
	CauseShutdown   = "shutdown"    // engine shutdown drained the buffer
)

// GroupResult is the per-group breakdown of one metric.
type GroupResult struct {
	Value      decimal.Decimal `json:"value"`
	EventCount int64           `json:"event_count"`
}

// MetricResult is the computed value of one metric spec over a closed
// window: the overall value plus, when group_by was set, the per-group
// breakdown keyed by the joined group-key tuple.
type MetricResult struct {
	Operation  string                 `json:"operation"`
	Value      decimal.Decimal        `json:"value"`
	EventCount int64                  `json:"event_count"`
	Groups     map[string]GroupResult `json:"groups,omitempty"`
}

// Result is one emitted aggregation window. Produced exactly once per
// window closure (once per slide tick for sliding windows), handed to the
// publisher, then discarded; the engine keeps no result history.
type Result struct {
	AggregationName string                  `json:"aggregation_name"`
	PartitionKey    string                  `json:"partition_key"`
	WindowKind      string                  `json:"window_kind"`
	WindowStart     time.Time               `json:"window_start"`
	WindowEnd       time.Time               `json:"window_end"`
	EventCount      int64                   `json:"event_count"`
	Cause           string                  `json:"cause"`
	Metrics         map[string]MetricResult `json:"metrics"`
}
