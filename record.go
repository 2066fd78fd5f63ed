package tablegrid

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// IDField is the record key holding the stable integer identifier.
const IDField = "id"

// Record is one row of a grid: field name to scalar value (string, number or bool).
type Record map[string]interface{}

// ID returns the record identifier and whether it is present and integral.
func (r Record) ID() (int, bool) {
	v, ok := r[IDField]
	if !ok || v == nil {
		return 0, false
	}
	f, ok := toFloat(v)
	if !ok || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}

// Clone returns a shallow copy; values are scalars so this is a full copy.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Text renders a field the way the search box sees it.
func (r Record) Text(field string) string {
	return formatValue(r[field])
}

func cloneRecords(in []Record) []Record {
	out := make([]Record, len(in))
	for i, rec := range in {
		out[i] = rec.Clone()
	}
	return out
}

// toFloat extracts a numeric value. Strings are parsed; booleans are not numbers.
func toFloat(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int8:
		return float64(val), true
	case int16:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint:
		return float64(val), true
	case uint8:
		return float64(val), true
	case uint16:
		return float64(val), true
	case uint32:
		return float64(val), true
	case uint64:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// isNumber reports whether v is stored as a number (not a numeric string).
func isNumber(v interface{}) bool {
	switch v.(type) {
	case float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, json.Number:
		return true
	}
	return false
}

func toBool(v interface{}) (bool, bool) {
	switch val := v.(type) {
	case bool:
		return val, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(val))
		return b, err == nil
	}
	return false, false
}

// formatValue renders a scalar as text: integral numbers without decimals,
// other numbers in their shortest form, nil as "".
func formatValue(v interface{}) string {
	if v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	}
	if f, ok := toFloat(v); ok && isNumber(v) {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return fmt.Sprintf("%v", v)
}
