package aggregation

import "fmt"

// DuplicateDefinitionError is returned when registering a definition whose
// name is already taken. Not retryable without unregistering first.
type DuplicateDefinitionError struct {
	Name string
}

func (e *DuplicateDefinitionError) Error() string {
	return fmt.Sprintf("aggregation definition %q already registered", e.Name)
}

// UnknownDefinitionError is returned when operating on a definition name
// that was never registered.
type UnknownDefinitionError struct {
	Name string
}

func (e *UnknownDefinitionError) Error() string {
	return fmt.Sprintf("aggregation definition %q not found", e.Name)
}

// BufferCorruptionError reports an internal invariant violation: a window
// buffer found holding state for the wrong aggregation or partition key.
// Fatal for that buffer only: it is discarded and logged, never allowed to
// take down unrelated partitions.
type BufferCorruptionError struct {
	Expected     string
	Found        string
	PartitionKey string
}

func (e *BufferCorruptionError) Error() string {
	return fmt.Sprintf("window buffer for partition %q expected aggregation %q, found %q",
		e.PartitionKey, e.Expected, e.Found)
}
