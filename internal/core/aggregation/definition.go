package aggregation

import (
	"fmt"

	"github.com/weir-lab/project-weir/internal/core/event"
)

// MatchSpec is the declarative filter deciding which event records feed a
// definition. An empty spec matches every record.
type MatchSpec struct {
	// EventTypes restricts matching to the listed event types.
	// Empty means any type.
	EventTypes []string

	// RequireFields lists payload fields that must be present and non-null
	// for the record to match.
	RequireFields []string
}

// Matches reports whether rec passes the filter. Pure: no side effects,
// no retained references.
func (m MatchSpec) Matches(rec *event.Record) bool {
	if len(m.EventTypes) > 0 {
		found := false
		for _, t := range m.EventTypes {
			if rec.Type == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, f := range m.RequireFields {
		if !rec.HasField(f) {
			return false
		}
	}
	return true
}

// MetricSpec is the declarative description of one statistic to compute over
// a window.
type MetricSpec struct {
	// SourceField is the payload field to aggregate.
	SourceField string

	// Operation is one of count, sum, avg, min, max, distinct.
	Operation string

	// GroupBy optionally partitions contributing events by the tuple of the
	// named payload fields. The same operation is applied per group on top
	// of the overall (ungrouped) result.
	GroupBy []string
}

// Definition is one named aggregation configuration: which events it
// consumes, how they are windowed, and which metrics are computed per
// window. Definitions are immutable after registration.
type Definition struct {
	Name    string
	Match   MatchSpec
	Window  WindowSpec
	Metrics []MetricSpec
}

// Validate checks the definition before registration.
func (d *Definition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("definition name must not be empty")
	}
	if err := d.Window.Validate(); err != nil {
		return fmt.Errorf("definition %q: %w", d.Name, err)
	}
	if len(d.Metrics) == 0 {
		return fmt.Errorf("definition %q: at least one metric is required", d.Name)
	}
	seen := make(map[string]struct{}, len(d.Metrics))
	for i, m := range d.Metrics {
		if m.SourceField == "" {
			return fmt.Errorf("definition %q: metric %d: source field must not be empty", d.Name, i)
		}
		if !ValidOperation(m.Operation) {
			return fmt.Errorf("definition %q: metric %q: unsupported operation %q", d.Name, m.SourceField, m.Operation)
		}
		// Results are keyed by source field, so two metrics on the same
		// field would collide.
		if _, dup := seen[m.SourceField]; dup {
			return fmt.Errorf("definition %q: duplicate metric source field %q", d.Name, m.SourceField)
		}
		seen[m.SourceField] = struct{}{}
		for _, g := range m.GroupBy {
			if g == "" {
				return fmt.Errorf("definition %q: metric %q: group_by field must not be empty", d.Name, m.SourceField)
			}
		}
	}
	return nil
}

// Matches reports whether rec should be routed into this definition's
// buffers.
func (d *Definition) Matches(rec *event.Record) bool {
	return d.Match.Matches(rec)
}
