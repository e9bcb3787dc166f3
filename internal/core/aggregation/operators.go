package aggregation

import (
	"github.com/shopspring/decimal"
)

// Supported metric operations.
const (
	OpCount    = "count"
	OpSum      = "sum"
	OpAvg      = "avg"
	OpMin      = "min"
	OpMax      = "max"
	OpDistinct = "distinct"
)

// Operation defines the fold semantics of one metric operation. Windows are
// computed at closure over the finalized event set, so each operation mints
// a fresh State per window (and per group). The compute loop becomes a
// single map lookup, no switch.
type Operation interface {
	// NewState returns a fresh fold state.
	NewState() State
}

// State accumulates contributing values for one window or group.
type State interface {
	// Observe folds one non-null payload value in. It reports whether the
	// value contributed; numeric operations reject non-numeric values here.
	Observe(v interface{}) bool

	// Result returns the final value and the number of contributing events.
	// A state that observed nothing yields (0, 0), never an error.
	Result() (decimal.Decimal, int64)
}

// Operations is the registry of all supported metric operations.
// To add an operation: implement Operation/State and add an entry here.
var Operations = map[string]Operation{
	OpCount:    countOp{},
	OpSum:      sumOp{},
	OpAvg:      avgOp{},
	OpMin:      minOp{},
	OpMax:      maxOp{},
	OpDistinct: distinctOp{},
}

// ValidOperation reports whether op is a registered metric operation.
func ValidOperation(op string) bool {
	_, ok := Operations[op]
	return ok
}

// countOp counts non-null occurrences of the source field. The value type
// is ignored.
type countOp struct{}

func (countOp) NewState() State { return &countState{} }

type countState struct{ n int64 }

func (s *countState) Observe(_ interface{}) bool { s.n++; return true }
func (s *countState) Result() (decimal.Decimal, int64) {
	return decimal.NewFromInt(s.n), s.n
}

// sumOp accumulates the sum of numeric values.
type sumOp struct{}

func (sumOp) NewState() State { return &sumState{sum: decimal.Zero} }

type sumState struct {
	sum decimal.Decimal
	n   int64
}

func (s *sumState) Observe(v interface{}) bool {
	d, ok := ToDecimal(v)
	if !ok {
		return false
	}
	s.sum = s.sum.Add(d)
	s.n++
	return true
}
func (s *sumState) Result() (decimal.Decimal, int64) { return s.sum, s.n }

// avgOp computes the arithmetic mean of numeric values. Zero contributing
// events yield zero, never a division by zero.
type avgOp struct{}

func (avgOp) NewState() State { return &avgState{sum: decimal.Zero} }

type avgState struct {
	sum decimal.Decimal
	n   int64
}

func (s *avgState) Observe(v interface{}) bool {
	d, ok := ToDecimal(v)
	if !ok {
		return false
	}
	s.sum = s.sum.Add(d)
	s.n++
	return true
}

func (s *avgState) Result() (decimal.Decimal, int64) {
	if s.n == 0 {
		return decimal.Zero, 0
	}
	return s.sum.Div(decimal.NewFromInt(s.n)), s.n
}

// minOp tracks the minimum numeric value seen.
type minOp struct{}

func (minOp) NewState() State { return &minState{} }

type minState struct {
	min decimal.Decimal
	n   int64
}

func (s *minState) Observe(v interface{}) bool {
	d, ok := ToDecimal(v)
	if !ok {
		return false
	}
	if s.n == 0 || d.LessThan(s.min) {
		s.min = d
	}
	s.n++
	return true
}

func (s *minState) Result() (decimal.Decimal, int64) {
	if s.n == 0 {
		return decimal.Zero, 0
	}
	return s.min, s.n
}

// maxOp tracks the maximum numeric value seen.
type maxOp struct{}

func (maxOp) NewState() State { return &maxState{} }

type maxState struct {
	max decimal.Decimal
	n   int64
}

func (s *maxState) Observe(v interface{}) bool {
	d, ok := ToDecimal(v)
	if !ok {
		return false
	}
	if s.n == 0 || d.GreaterThan(s.max) {
		s.max = d
	}
	s.n++
	return true
}

func (s *maxState) Result() (decimal.Decimal, int64) {
	if s.n == 0 {
		return decimal.Zero, 0
	}
	return s.max, s.n
}

// distinctOp counts unique values by value equality. Accepts any scalar;
// non-hashable values (slices, maps) are skipped.
type distinctOp struct{}

func (distinctOp) NewState() State { return &distinctState{seen: make(map[interface{}]struct{})} }

type distinctState struct {
	seen map[interface{}]struct{}
	n    int64
}

func (s *distinctState) Observe(v interface{}) bool {
	k, ok := distinctKey(v)
	if !ok {
		return false
	}
	s.seen[k] = struct{}{}
	s.n++
	return true
}

func (s *distinctState) Result() (decimal.Decimal, int64) {
	return decimal.NewFromInt(int64(len(s.seen))), s.n
}

// distinctNumber keeps normalized numerics distinguishable from payload
// strings in the seen map: float64(1) never collides with the string "1".
type distinctNumber string

// distinctKey normalizes a payload scalar into a map-key-safe value.
// Decoded JSON payloads only carry string, bool, and float64 scalars, but
// adapter-constructed records may carry native integer types too; numerics
// collapse to their canonical decimal form so int64(1) and float64(1)
// count as one value.
func distinctKey(v interface{}) (interface{}, bool) {
	switch val := v.(type) {
	case string, bool:
		return val, true
	case float64, float32, int, int32, int64, uint, uint32, uint64:
		d, ok := ToDecimal(val)
		if !ok {
			return nil, false
		}
		return distinctNumber(d.String()), true
	default:
		return nil, false
	}
}
