package aggregation

import "github.com/shopspring/decimal"

// ToDecimal coerces a payload value to a decimal.
// JSON numbers unmarshal to float64 in Go, which is the common path;
// NewFromFloat converts it to an exact decimal representation. Numeric
// strings are accepted too (clients that serialize amounts as strings to
// avoid float truncation). Reports false for anything non-numeric.
func ToDecimal(v interface{}) (decimal.Decimal, bool) {
	switch val := v.(type) {
	case float64:
		return decimal.NewFromFloat(val), true
	case float32:
		return decimal.NewFromFloat(float64(val)), true
	case int:
		return decimal.NewFromInt(int64(val)), true
	case int64:
		return decimal.NewFromInt(val), true
	case int32:
		return decimal.NewFromInt(int64(val)), true
	case uint:
		return decimal.NewFromUint64(uint64(val)), true
	case uint32:
		return decimal.NewFromUint64(uint64(val)), true
	case uint64:
		return decimal.NewFromUint64(val), true
	case string:
		d, err := decimal.NewFromString(val)
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	}
	return decimal.Zero, false
}
