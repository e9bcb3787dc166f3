package engine

import (
	"log/slog"
	"sync"
	"time"

	"github.com/weir-lab/project-weir/internal/core/aggregation"
	"github.com/weir-lab/project-weir/internal/core/event"
)

type taskKind int

const (
	taskIngest taskKind = iota
	taskSweep
	taskFlush
)

// task is one unit of work on a key worker's queue. Ingest, sweep,
// force-close, unregister-flush and shutdown all travel the same queue, so
// every buffer mutation for a partition key happens on its worker
// goroutine, in arrival order.
type task struct {
	kind taskKind

	// ingest
	rec  *event.Record
	defs []*aggregation.Definition

	// sweep
	now time.Time

	// flush
	name  string                  // definition filter; empty flushes every buffer
	def   *aggregation.Definition // the filter's definition, when the caller still holds it
	cause string
	wg    *sync.WaitGroup // signalled when the flush has been processed
}

// keyWorker is the single mutator for all window buffers of one partition
// key. It owns a bounded task queue (enqueue blocks when full, which is the
// backpressure mechanism) and a private map from aggregation name to open
// buffer.
type keyWorker struct {
	key    string
	engine *Engine

	mu     sync.RWMutex // guards closed against concurrent enqueue
	closed bool
	tasks  chan task

	buffers map[string]*windowBuffer
}

func newKeyWorker(key string, e *Engine, queueSize int) *keyWorker {
	return &keyWorker{
		key:     key,
		engine:  e,
		tasks:   make(chan task, queueSize),
		buffers: make(map[string]*windowBuffer),
	}
}

// enqueue queues a task, blocking when the queue is full. Reports false
// once the worker has been closed for shutdown.
func (w *keyWorker) enqueue(t task) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return false
	}
	w.tasks <- t
	return true
}

// tryEnqueue is the non-blocking variant used by the sweeper: a key busy
// enough to have a full queue will close its windows on ingest anyway.
func (w *keyWorker) tryEnqueue(t task) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return false
	}
	select {
	case w.tasks <- t:
		return true
	default:
		return false
	}
}

// close stops the queue. Remaining tasks are drained by run before the
// final shutdown flush.
func (w *keyWorker) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	close(w.tasks)
}

func (w *keyWorker) run() {
	for t := range w.tasks {
		switch t.kind {
		case taskIngest:
			w.handleIngest(t.rec, t.defs)
		case taskSweep:
			w.handleSweep(t.now)
		case taskFlush:
			w.handleFlush(t.name, t.def, t.cause)
			if t.wg != nil {
				t.wg.Done()
			}
		}
	}

	// Queue closed: shutdown. Every open buffer is flushed as a completed,
	// possibly partial, window; no buffered event is silently dropped.
	w.handleFlush("", nil, aggregation.CauseShutdown)
}

// handleIngest routes one event into every matched definition's buffer.
// Definition pipelines are isolated: a failure for one never aborts the
// remaining definitions.
func (w *keyWorker) handleIngest(rec *event.Record, defs []*aggregation.Definition) {
	start := time.Now()
	for _, def := range defs {
		w.ingestOne(def, rec)
	}
	w.engine.tracker.ObserveLatency(time.Since(start))
}

func (w *keyWorker) ingestOne(def *aggregation.Definition, rec *event.Record) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("[Engine] Definition pipeline failed for event",
				"aggregation", def.Name,
				"partition_key", w.key,
				"event_id", rec.ID,
				"panic", r,
			)
			w.engine.tracker.ObserveComputeErrors(1)
		}
	}()

	buf := w.checkedBuffer(def.Name)
	now := rec.ReceivedAt

	// Session gap is detected at ingest time of the new event, before it is
	// appended: the previous buffer is emitted as a completed session and a
	// fresh buffer starts with just the arrived event.
	if buf != nil && def.Window.Kind == aggregation.KindSession &&
		now.Sub(buf.lastEventAt) > def.Window.SessionGap {
		w.emitAndDelete(def, buf, buf.lastEventAt, aggregation.CauseSessionGap)
		buf = nil
	}

	if buf == nil {
		buf = newWindowBuffer(def.Name, w.key, rec)
		w.buffers[def.Name] = buf
		WeirOpenBuffers.Inc()
	} else {
		buf.append(rec)
	}

	// Max-events is a hard ceiling: checked before any time-based rule,
	// for every window kind. A cap close takes the emit-and-delete path;
	// window_end is the timestamp of the event that hit the cap.
	if def.Window.MaxEvents > 0 && buf.len() >= def.Window.MaxEvents {
		w.emitAndDelete(def, buf, now, aggregation.CauseMaxEvents)
		return
	}

	switch def.Window.Kind {
	case aggregation.KindTumbling:
		if now.Sub(buf.firstEventAt) >= def.Window.Duration {
			w.emitAndDelete(def, buf, now, aggregation.CauseDuration)
		}
	case aggregation.KindSliding:
		// Sliding windows model "trailing N seconds": on each slide tick,
		// prefix-trim events that fell out of the window, then emit a
		// snapshot. The buffer persists across emits. Slide clocks are per
		// partition key.
		if buf.lastEmittedAt.IsZero() || now.Sub(buf.lastEmittedAt) >= def.Window.SlideInterval {
			buf.pruneBefore(now.Add(-def.Window.Duration))
			w.engine.emit(def, w.key, buf.snapshot(), buf.firstEventAt, now, aggregation.CauseSlide)
			buf.lastEmittedAt = now
		}
	}
}

// checkedBuffer returns the open buffer for an aggregation name, discarding
// it first if its identity does not match the owning key. Corruption is
// fatal for that buffer only.
func (w *keyWorker) checkedBuffer(name string) *windowBuffer {
	buf, ok := w.buffers[name]
	if !ok {
		return nil
	}
	if buf.aggregationName != name || buf.partitionKey != w.key {
		corr := &aggregation.BufferCorruptionError{
			Expected:     name,
			Found:        buf.aggregationName,
			PartitionKey: w.key,
		}
		slog.Error("[Engine] Discarding corrupted window buffer", "error", corr)
		w.engine.tracker.ObserveComputeErrors(1)
		delete(w.buffers, name)
		WeirOpenBuffers.Dec()
		return nil
	}
	return buf
}

// handleSweep force-closes any buffer whose elapsed/gap condition is
// already satisfied without a triggering event. Sliding buffers are left
// alone: they emit on ingest and stay trailing.
func (w *keyWorker) handleSweep(now time.Time) {
	for name, buf := range w.buffers {
		def, err := w.engine.registry.Get(name)
		if err != nil {
			// Definition removed while the buffer was open: flush it out
			// rather than leak it.
			w.emitAndDelete(nil, buf, buf.lastEventAt, aggregation.CauseUnregister)
			continue
		}

		switch def.Window.Kind {
		case aggregation.KindTumbling:
			if now.Sub(buf.firstEventAt) >= def.Window.Duration {
				w.emitAndDelete(def, buf, now, aggregation.CauseSweep)
			}
		case aggregation.KindSession:
			if now.Sub(buf.lastEventAt) > def.Window.SessionGap {
				w.emitAndDelete(def, buf, buf.lastEventAt, aggregation.CauseSweep)
			}
		}
	}
}

// handleFlush force-closes buffers: one aggregation's buffer when name is
// set, every open buffer otherwise. Tumbling and session buffers flush as
// partial windows, sliding buffers as a final snapshot; all are destroyed.
// flushDef carries the definition when the caller still holds it (an
// unregister flush runs after the registry entry is gone).
func (w *keyWorker) handleFlush(name string, flushDef *aggregation.Definition, cause string) {
	for bufName, buf := range w.buffers {
		if name != "" && bufName != name {
			continue
		}

		if buf.len() == 0 {
			// Fully pruned sliding buffer: nothing to emit or drop.
			delete(w.buffers, bufName)
			WeirOpenBuffers.Dec()
			continue
		}

		def := flushDef
		if def == nil || def.Name != bufName {
			if reg, err := w.engine.registry.Get(bufName); err == nil {
				def = reg
			} else {
				def = nil
			}
		}

		end := w.engine.now()
		if def != nil && def.Window.Kind == aggregation.KindSession {
			end = buf.lastEventAt
		}
		w.emitAndDelete(def, buf, end, cause)
	}
}

// emitAndDelete finalizes a buffer and emits it. The event set is copied
// out and the buffer removed from the store before the publisher runs, so
// a slow sink never holds buffer state.
func (w *keyWorker) emitAndDelete(def *aggregation.Definition, buf *windowBuffer, end time.Time, cause string) {
	events := buf.snapshot()
	delete(w.buffers, buf.aggregationName)
	WeirOpenBuffers.Dec()

	if def == nil {
		// Emitting without a definition (removed mid-flight): no metric
		// specs remain, publish counts only.
		w.engine.emit(&aggregation.Definition{Name: buf.aggregationName}, w.key, events, buf.firstEventAt, end, cause)
		return
	}
	w.engine.emit(def, w.key, events, buf.firstEventAt, end, cause)
}
