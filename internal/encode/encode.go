package encode

import (
	"encoding/base64"
	"math"
	"strconv"
)

// Value converts a driver value into a JSON-safe value. Binary payloads
// become standard base64 text; non-finite floats become strings because
// JSON cannot represent them. Everything else is returned unchanged.
func Value(v any) any {
	switch val := v.(type) {
	case []byte:
		if val == nil {
			return nil
		}
		return base64.StdEncoding.EncodeToString(val)
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return strconv.FormatFloat(val, 'g', -1, 64)
		}
		return val
	case float32:
		f := float64(val)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return strconv.FormatFloat(f, 'g', -1, 32)
		}
		return val
	default:
		return v
	}
}

// Rows applies Value to every cell of every row, in place.
func Rows(rows [][]any) [][]any {
	for _, row := range rows {
		for i, v := range row {
			row[i] = Value(v)
		}
	}
	return rows
}
