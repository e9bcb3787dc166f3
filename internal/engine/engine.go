package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/weir-lab/project-weir/internal/core/aggregation"
	"github.com/weir-lab/project-weir/internal/core/event"
	"github.com/weir-lab/project-weir/internal/publish"
)

const (
	defaultQueueSize     = 1024
	defaultSweepInterval = 5 * time.Second
	shutdownGracePeriod  = 30 * time.Second
)

// Options configures an Engine.
type Options struct {
	// QueueSize bounds each per-key task queue. Ingest blocks when a key's
	// queue is full (explicit backpressure).
	QueueSize int

	// SweepInterval is how often the idle sweep scans open buffers. The
	// sweep is the correctness backstop for lazily-evaluated closures:
	// without it a key that stops receiving events would stay open forever.
	SweepInterval time.Duration

	// Now overrides the engine clock. Test hook; defaults to time.Now.
	// Ingest-path closure checks use event timestamps, the sweep uses this.
	Now func() time.Time

	// Publisher receives closed windows. Defaults to the log publisher.
	Publisher publish.Publisher
}

// Engine is the core orchestrator: it fans incoming events out to every
// matching definition, owns all window buffers through per-key workers,
// computes metric results at closure, and hands them to the publisher.
//
// Concurrency discipline: one worker goroutine per partition key, fed by a
// bounded queue. The shared workers map is locked only on the
// create-if-absent path; once a key's worker exists, events route to its
// queue without contending with unrelated keys.
type Engine struct {
	registry  *Registry
	tracker   *Tracker
	publisher publish.Publisher

	now           func() time.Time
	queueSize     int
	sweepInterval time.Duration

	accepting atomic.Bool

	workersMu sync.RWMutex
	workers   map[string]*keyWorker
	workerWG  sync.WaitGroup

	shutdownOnce sync.Once
	shutdownErr  error
}

func New(opts Options) *Engine {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = defaultSweepInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Publisher == nil {
		opts.Publisher = publish.NewLogPublisher()
	}

	e := &Engine{
		registry:      NewRegistry(),
		tracker:       NewTracker(),
		publisher:     opts.Publisher,
		now:           opts.Now,
		queueSize:     opts.QueueSize,
		sweepInterval: opts.SweepInterval,
		workers:       make(map[string]*keyWorker),
	}
	e.accepting.Store(true)
	return e
}

// Register validates and registers an aggregation definition.
func (e *Engine) Register(def *aggregation.Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	if err := e.registry.Register(def); err != nil {
		return err
	}
	slog.Info("[Engine] Registered aggregation definition",
		"name", def.Name,
		"window_kind", def.Window.Kind,
		"metrics", len(def.Metrics),
	)
	return nil
}

// Unregister removes a definition. Buffers still open under that name are
// force-closed first, flushed as final (possibly partial) results, so no
// buffered event is silently dropped. Removal from the registry happens
// before the flush so no new buffer can open under the name mid-flush.
func (e *Engine) Unregister(name string) error {
	def, err := e.registry.Remove(name)
	if err != nil {
		return err
	}

	e.flushAll(name, def, aggregation.CauseUnregister)

	slog.Info("[Engine] Unregistered aggregation definition", "name", def.Name)
	return nil
}

// Definitions lists all registered definitions.
func (e *Engine) Definitions() []*aggregation.Definition {
	return e.registry.List()
}

// Definition returns one registered definition by name.
func (e *Engine) Definition(name string) (*aggregation.Definition, error) {
	return e.registry.Get(name)
}

// Snapshot returns the current metrics tracker counters.
func (e *Engine) Snapshot() Snapshot {
	return e.tracker.Snapshot()
}

// Accepting reports whether the engine still accepts events.
func (e *Engine) Accepting() bool {
	return e.accepting.Load()
}

// Ingest routes one event record into every matching definition's window
// buffer. Fire-and-forget: streaming-path failures surface only through
// the metrics tracker, never synchronously to the caller. May block
// briefly when the key's queue is full.
func (e *Engine) Ingest(rec *event.Record) {
	if !e.accepting.Load() {
		e.tracker.ObserveRejected()
		return
	}

	e.tracker.ObserveIngest()

	defs := e.matching(rec)
	if len(defs) == 0 {
		e.tracker.ObserveUnmatched()
		return
	}

	w := e.workerFor(rec.PartitionKey)
	if w == nil || !w.enqueue(task{kind: taskIngest, rec: rec, defs: defs}) {
		e.tracker.ObserveRejected()
	}
}

// matching evaluates every definition's predicate against rec with
// per-definition isolation: one predicate failing cannot abort matching
// against its siblings.
func (e *Engine) matching(rec *event.Record) []*aggregation.Definition {
	var out []*aggregation.Definition
	for _, def := range e.registry.List() {
		if e.safeMatch(def, rec) {
			out = append(out, def)
		}
	}
	return out
}

func (e *Engine) safeMatch(def *aggregation.Definition, rec *event.Record) (matched bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("[Engine] Match predicate failed",
				"aggregation", def.Name,
				"event_id", rec.ID,
				"panic", r,
			)
			e.tracker.ObserveComputeErrors(1)
			matched = false
		}
	}()
	return def.Matches(rec)
}

// workerFor returns the key's worker, creating it on first use. The shared
// lock is held only on the create-if-absent path. Returns nil once the
// engine is draining: Shutdown flips the accepting flag before it snapshots
// the workers map under this same lock, so a false flag here means a worker
// created now would never be closed and its events never flushed.
func (e *Engine) workerFor(key string) *keyWorker {
	e.workersMu.RLock()
	w, ok := e.workers[key]
	e.workersMu.RUnlock()
	if ok {
		return w
	}

	e.workersMu.Lock()
	defer e.workersMu.Unlock()
	if w, ok = e.workers[key]; ok {
		return w
	}
	if !e.accepting.Load() {
		return nil
	}

	w = newKeyWorker(key, e, e.queueSize)
	e.workers[key] = w
	e.workerWG.Add(1)
	go func() {
		defer e.workerWG.Done()
		w.run()
	}()
	return w
}

// ForceClose flushes the open window for one (aggregation, partition key),
// emitting a partial result. Administrative surface: used for testing and
// draining. A key with no open buffer is a no-op.
func (e *Engine) ForceClose(name, partitionKey string) error {
	def, err := e.registry.Get(name)
	if err != nil {
		return err
	}

	e.workersMu.RLock()
	w, ok := e.workers[partitionKey]
	e.workersMu.RUnlock()
	if !ok {
		return nil
	}

	var wg sync.WaitGroup
	wg.Add(1)
	if !w.enqueue(task{kind: taskFlush, name: name, def: def, cause: aggregation.CauseForceClose, wg: &wg}) {
		return nil // worker already shut down; its buffers were flushed
	}
	wg.Wait()
	return nil
}

// flushAll force-closes matching buffers on every worker and waits until
// each worker has processed the flush.
func (e *Engine) flushAll(name string, def *aggregation.Definition, cause string) {
	e.workersMu.RLock()
	workers := make([]*keyWorker, 0, len(e.workers))
	for _, w := range e.workers {
		workers = append(workers, w)
	}
	e.workersMu.RUnlock()

	var wg sync.WaitGroup
	for _, w := range workers {
		wg.Add(1)
		if !w.enqueue(task{kind: taskFlush, name: name, def: def, cause: cause, wg: &wg}) {
			wg.Done()
		}
	}
	wg.Wait()
}

// Run starts the idle sweep and blocks until ctx is cancelled, then shuts
// the engine down gracefully.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.sweepInterval)
	defer ticker.Stop()

	slog.Info("[Engine] Starting idle sweep", "interval", e.sweepInterval)

	for {
		select {
		case <-ticker.C:
			e.sweep()
		case <-ctx.Done():
			slog.Info("[Engine] Stopping (context cancelled)")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
			defer cancel()
			return e.Shutdown(shutdownCtx)
		}
	}
}

// sweep scans all open buffers and force-closes any whose elapsed/gap
// condition is already satisfied without a triggering event. Each worker
// processes its sweep on its own goroutine, the same discipline as normal
// ingestion, so a concurrent arrival for the same key cannot race it.
func (e *Engine) sweep() {
	now := e.now()

	e.workersMu.RLock()
	workers := make([]*keyWorker, 0, len(e.workers))
	for _, w := range e.workers {
		workers = append(workers, w)
	}
	e.workersMu.RUnlock()

	for _, w := range workers {
		// Non-blocking: a key busy enough to fill its queue closes its
		// windows on ingest anyway; the next tick catches stragglers.
		w.tryEnqueue(task{kind: taskSweep, now: now})
	}
}

// Shutdown gracefully stops the engine: no new events are accepted, every
// open buffer is force-closed (tumbling/session as partial windows, sliding
// as a final snapshot), emission drains to the publisher, and only then
// does it return. No buffered event is silently dropped.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.shutdownOnce.Do(func() {
		e.accepting.Store(false)

		e.workersMu.Lock()
		workers := make([]*keyWorker, 0, len(e.workers))
		for _, w := range e.workers {
			workers = append(workers, w)
		}
		e.workersMu.Unlock()

		slog.Info("[Engine] Draining workers", "workers", len(workers))

		for _, w := range workers {
			w.close()
		}

		done := make(chan struct{})
		go func() {
			e.workerWG.Wait()
			close(done)
		}()

		select {
		case <-done:
			slog.Info("[Engine] Shutdown complete")
		case <-ctx.Done():
			slog.Error("[Engine] Shutdown timed out before all workers drained")
			e.shutdownErr = ctx.Err()
		}
	})
	return e.shutdownErr
}

// emit computes the metric results for a finalized event set and publishes
// them. Called from worker goroutines after buffer state has been released.
// A publish failure gets one immediate retry; a second failure drops the
// result (documented data-loss boundary).
func (e *Engine) emit(def *aggregation.Definition, partitionKey string, events []*event.Record, start, end time.Time, cause string) {
	metrics, skipped := aggregation.ComputeMetrics(def, events)
	if skipped > 0 {
		e.tracker.ObserveComputeErrors(skipped)
		slog.Warn("[Engine] Skipped events during metric computation",
			"aggregation", def.Name,
			"partition_key", partitionKey,
			"skipped", skipped,
		)
	}

	res := &aggregation.Result{
		AggregationName: def.Name,
		PartitionKey:    partitionKey,
		WindowKind:      def.Window.Kind,
		WindowStart:     start,
		WindowEnd:       end,
		EventCount:      int64(len(events)),
		Cause:           cause,
		Metrics:         metrics,
	}

	e.tracker.ObserveWindowClosed(def.Name, cause)

	ctx := context.Background()
	err := e.publisher.Publish(ctx, res)
	if err == nil {
		return
	}
	e.tracker.ObservePublishFailure()
	slog.Warn("[Engine] Publish failed, retrying once",
		"aggregation", def.Name,
		"partition_key", partitionKey,
		"error", err,
	)

	if err := e.publisher.Publish(ctx, res); err != nil {
		e.tracker.ObservePublishFailure()
		e.tracker.ObserveResultDropped()
		slog.Error("[Engine] Publish retry failed, dropping result",
			"aggregation", def.Name,
			"partition_key", partitionKey,
			"window_start", start,
			"window_end", end,
			"event_count", res.EventCount,
			"error", err,
		)
	}
}
