package engine

import (
	"math"
	"sync/atomic"
	"time"
)

// emaAlpha is the smoothing factor of the rolling ingest-latency average.
const emaAlpha = 0.1

// Tracker counts throughput, error rate, and latency for the engine.
// Only the engine writes to it; all reads are external observability
// consumers. Counters are atomics; no buffer-level locking involved.
// Every write is mirrored into the prometheus collectors so /metrics and
// the snapshot API stay consistent.
type Tracker struct {
	startedAt time.Time

	eventsIngested  atomic.Int64
	eventsUnmatched atomic.Int64
	eventsRejected  atomic.Int64
	windowsClosed   atomic.Int64
	computeErrors   atomic.Int64
	publishFailures atomic.Int64
	resultsDropped  atomic.Int64

	// latencyEMA holds the float64 bits of the exponential moving average
	// of per-ingest processing latency, in nanoseconds.
	latencyEMA atomic.Uint64
}

// Snapshot is a point-in-time read of all tracker counters plus derived
// throughput.
type Snapshot struct {
	EventsIngested  int64         `json:"events_ingested"`
	EventsUnmatched int64         `json:"events_unmatched"`
	EventsRejected  int64         `json:"events_rejected"`
	WindowsClosed   int64         `json:"windows_closed"`
	ComputeErrors   int64         `json:"compute_errors"`
	PublishFailures int64         `json:"publish_failures"`
	ResultsDropped  int64         `json:"results_dropped"`
	IngestLatency   time.Duration `json:"ingest_latency_ema"`
	Uptime          time.Duration `json:"uptime"`
	Throughput      float64       `json:"throughput_per_sec"`
}

func NewTracker() *Tracker {
	return &Tracker{startedAt: time.Now()}
}

func (t *Tracker) ObserveIngest() {
	t.eventsIngested.Add(1)
	WeirEventsIngested.Inc()
}

func (t *Tracker) ObserveUnmatched() {
	t.eventsUnmatched.Add(1)
	WeirEventsUnmatched.Inc()
}

func (t *Tracker) ObserveRejected() {
	t.eventsRejected.Add(1)
}

func (t *Tracker) ObserveWindowClosed(aggregation, cause string) {
	t.windowsClosed.Add(1)
	WeirWindowsClosed.WithLabelValues(aggregation, cause).Inc()
}

func (t *Tracker) ObserveComputeErrors(n int) {
	if n <= 0 {
		return
	}
	t.computeErrors.Add(int64(n))
	WeirComputeErrors.Add(float64(n))
}

func (t *Tracker) ObservePublishFailure() {
	t.publishFailures.Add(1)
	WeirPublishFailures.Inc()
}

func (t *Tracker) ObserveResultDropped() {
	t.resultsDropped.Add(1)
	WeirResultsDropped.Inc()
}

// ObserveLatency folds one per-ingest processing duration into the rolling
// exponential moving average. CAS loop keeps it lock-free under concurrent
// workers.
func (t *Tracker) ObserveLatency(d time.Duration) {
	sample := float64(d.Nanoseconds())
	for {
		oldBits := t.latencyEMA.Load()
		old := math.Float64frombits(oldBits)
		var next float64
		if oldBits == 0 {
			next = sample
		} else {
			next = old + emaAlpha*(sample-old)
		}
		if t.latencyEMA.CompareAndSwap(oldBits, math.Float64bits(next)) {
			return
		}
	}
}

// Snapshot returns all counters plus derived throughput.
func (t *Tracker) Snapshot() Snapshot {
	uptime := time.Since(t.startedAt)
	ingested := t.eventsIngested.Load()

	var throughput float64
	if secs := uptime.Seconds(); secs > 0 {
		throughput = float64(ingested) / secs
	}

	return Snapshot{
		EventsIngested:  ingested,
		EventsUnmatched: t.eventsUnmatched.Load(),
		EventsRejected:  t.eventsRejected.Load(),
		WindowsClosed:   t.windowsClosed.Load(),
		ComputeErrors:   t.computeErrors.Load(),
		PublishFailures: t.publishFailures.Load(),
		ResultsDropped:  t.resultsDropped.Load(),
		IngestLatency:   time.Duration(math.Float64frombits(t.latencyEMA.Load())),
		Uptime:          uptime,
		Throughput:      throughput,
	}
}
