package bureau

import (
	"math"
	"strconv"
	"strings"

	"github.com/opensource-finance/creditlens/internal/normalize"
)

// str returns the first non-empty value among keys rendered as a string.
func str(m map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			return strconv.FormatBool(v)
		}
	}
	return ""
}

// amount reads a money value that may be a JSON number or a string.
func amount(m map[string]any, keys ...string) float64 {
	for _, k := range keys {
		switch v := m[k].(type) {
		case float64:
			if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
				return 0
			}
			return v
		case string:
			if strings.TrimSpace(v) != "" {
				return normalize.Amount(v)
			}
		}
	}
	return 0
}

func integer(m map[string]any, key string) (int, bool) {
	switch v := m[key].(type) {
	case float64:
		return int(v), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		return n, err == nil
	}
	return 0, false
}

// list returns the object elements of an array field, skipping non-objects.
func list(m map[string]any, key string) []map[string]any {
	arr, _ := m[key].([]any)
	out := make([]map[string]any, 0, len(arr))
	for _, v := range arr {
		if obj, ok := v.(map[string]any); ok {
			out = append(out, obj)
		}
	}
	return out
}
