package engine

import (
	"time"

	"github.com/weir-lab/project-weir/internal/core/event"
)

// windowBuffer holds the events of one open window for one
// (aggregation-name × partition-key) pair. All mutation happens on the
// owning key worker's goroutine; no locking here.
type windowBuffer struct {
	// Identity carried for corruption detection: must always match the
	// owning map key.
	aggregationName string
	partitionKey    string

	// events are time-ordered by construction: the worker appends in
	// arrival order.
	events []*event.Record

	firstEventAt time.Time
	lastEventAt  time.Time

	// lastEmittedAt is the per-partition-key slide clock of a sliding
	// window. Zero until the first slide emit.
	lastEmittedAt time.Time
}

func newWindowBuffer(aggregationName, partitionKey string, first *event.Record) *windowBuffer {
	return &windowBuffer{
		aggregationName: aggregationName,
		partitionKey:    partitionKey,
		events:          []*event.Record{first},
		firstEventAt:    first.ReceivedAt,
		lastEventAt:     first.ReceivedAt,
	}
}

func (b *windowBuffer) append(rec *event.Record) {
	if len(b.events) == 0 {
		// A sliding buffer can be fully pruned between slides.
		b.firstEventAt = rec.ReceivedAt
	}
	b.events = append(b.events, rec)
	b.lastEventAt = rec.ReceivedAt
}

func (b *windowBuffer) len() int { return len(b.events) }

// snapshot copies out the current event set so the publisher can be called
// without holding buffer state.
func (b *windowBuffer) snapshot() []*event.Record {
	out := make([]*event.Record, len(b.events))
	copy(out, b.events)
	return out
}

// pruneBefore drops events received before cutoff. Events are time-ordered,
// so this is a prefix trim. firstEventAt follows the new head.
func (b *windowBuffer) pruneBefore(cutoff time.Time) {
	idx := 0
	for idx < len(b.events) && b.events[idx].ReceivedAt.Before(cutoff) {
		idx++
	}
	if idx == 0 {
		return
	}
	// Re-slice into a fresh backing array so pruned records become
	// collectable instead of pinned by the old array.
	remaining := make([]*event.Record, len(b.events)-idx)
	copy(remaining, b.events[idx:])
	b.events = remaining
	if len(b.events) > 0 {
		b.firstEventAt = b.events[0].ReceivedAt
	}
}
