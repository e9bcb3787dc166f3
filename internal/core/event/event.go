package event

import "time"

// GlobalPartition is the sentinel partition key assigned to records whose
// payload carries no partitioning field.
const GlobalPartition = "global"

// Record is the decoded representation of one inbound business event.
// It separates the "Envelope" (system attributes) from the "Letter" (payload).
// Records are treated as immutable after construction: the engine enqueues
// them into window buffers but never mutates them, and no component retains
// a reference beyond the window the record belongs to.
type Record struct {
	// ID is a unique identifier assigned by the event-source adapter.
	// Used for logging and tracing only; the engine does not deduplicate.
	ID string `json:"id"`

	// Type is the domain-specific event name (e.g., "order.created").
	// Aggregation definitions match on it.
	Type string `json:"event_type"`

	// PartitionKey is the dimension that keeps separate window buffers per
	// otherwise-identical aggregation (e.g., an organization identifier).
	// Derived from the payload by the adapter; GlobalPartition when absent.
	PartitionKey string `json:"partition_key"`

	// ReceivedAt is when the adapter handed the record to the engine
	// (server-side clock). Never trusted from the payload.
	ReceivedAt time.Time `json:"received_at"`

	// Payload is the domain-specific field map. Values are scalars:
	// numeric, string, bool, or nil.
	Payload map[string]interface{} `json:"payload"`
}

// Field returns the named payload value. A nil value is reported as absent:
// metric computation treats missing and null identically.
func (r *Record) Field(name string) (interface{}, bool) {
	v, ok := r.Payload[name]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// HasField reports whether the payload carries a non-null value for name.
func (r *Record) HasField(name string) bool {
	_, ok := r.Field(name)
	return ok
}
