package aggregation

import (
	"strings"

	"github.com/weir-lab/project-weir/internal/core/event"
)

// MissingGroupValue substitutes for an absent group-by field so grouping
// never fails on sparse payloads.
const MissingGroupValue = "(missing)"

// groupKeySeparator joins the values of a group-by tuple into one map key.
const groupKeySeparator = ","

// ComputeMetrics evaluates every metric spec of def over the finalized
// event set of one window. Events whose source field is absent or null are
// skipped (they do not count toward count either); events whose value a
// numeric operation rejects are skipped and tallied in the returned skip
// count. Computation never fails: a window with zero contributing events
// yields zero-valued metrics.
func ComputeMetrics(def *Definition, events []*event.Record) (map[string]MetricResult, int) {
	results := make(map[string]MetricResult, len(def.Metrics))
	skipped := 0

	for _, spec := range def.Metrics {
		op := Operations[spec.Operation] // validated at registration
		overall := op.NewState()

		var groups map[string]State
		if len(spec.GroupBy) > 0 {
			groups = make(map[string]State)
		}

		for _, rec := range events {
			v, ok := rec.Field(spec.SourceField)
			if !ok {
				continue // missing or null: not a contributing event
			}
			if !overall.Observe(v) {
				skipped++
				continue
			}
			if groups != nil {
				key := groupKey(rec, spec.GroupBy)
				st, exists := groups[key]
				if !exists {
					st = op.NewState()
					groups[key] = st
				}
				st.Observe(v)
			}
		}

		value, count := overall.Result()
		mr := MetricResult{
			Operation:  spec.Operation,
			Value:      value,
			EventCount: count,
		}
		if groups != nil {
			mr.Groups = make(map[string]GroupResult, len(groups))
			for key, st := range groups {
				gv, gn := st.Result()
				mr.Groups[key] = GroupResult{Value: gv, EventCount: gn}
			}
		}
		results[spec.SourceField] = mr
	}

	return results, skipped
}

// groupKey builds the joined group-by tuple for one record. Missing fields
// are substituted with MissingGroupValue. Non-string group values are
// stringified with their decimal form when numeric. Multi-field tuples
// escape the separator inside each element so ["a,b","c"] and ["a","b,c"]
// never collide.
func groupKey(rec *event.Record, fields []string) string {
	if len(fields) == 1 {
		return groupPart(rec, fields[0])
	}
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = escapeGroupPart(groupPart(rec, f))
	}
	return strings.Join(parts, groupKeySeparator)
}

func groupPart(rec *event.Record, field string) string {
	v, ok := rec.Field(field)
	if !ok {
		return MissingGroupValue
	}
	switch val := v.(type) {
	case string:
		return val
	default:
		if d, numeric := ToDecimal(v); numeric {
			return d.String()
		}
		return stringify(val)
	}
}

func escapeGroupPart(s string) string {
	if !strings.ContainsAny(s, `,\`) {
		return s
	}
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, groupKeySeparator, `\`+groupKeySeparator)
}

func stringify(v interface{}) string {
	switch val := v.(type) {
	case bool:
		if val {
			return "true"
		}
		return "false"
	default:
		return MissingGroupValue
	}
}
