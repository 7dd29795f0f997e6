package datastore

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// The reader hands back decoded JSON, so numbers arrive as float64 while
// handler code and tests build models with plain ints. These helpers
// coerce either representation.

// Int converts a JSON value to an int. nil yields 0.
func Int(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case json.Number:
		i, _ := n.Int64()
		return int(i)
	default:
		return 0
	}
}

// IntList converts a JSON array value to a list of ints. nil yields nil.
func IntList(v any) []int {
	switch l := v.(type) {
	case nil:
		return nil
	case []int:
		out := make([]int, len(l))
		copy(out, l)
		return out
	case []any:
		out := make([]int, 0, len(l))
		for _, e := range l {
			out = append(out, Int(e))
		}
		return out
	default:
		return nil
	}
}

// String converts a JSON value to a string. nil yields "".
func String(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", s)
	}
}

// Bool converts a JSON value to a bool. nil yields false.
func Bool(v any) bool {
	b, _ := v.(bool)
	return b
}

// StringList converts a JSON array value to a list of strings.
func StringList(v any) []string {
	switch l := v.(type) {
	case nil:
		return nil
	case []string:
		out := make([]string, len(l))
		copy(out, l)
		return out
	case []any:
		out := make([]string, 0, len(l))
		for _, e := range l {
			out = append(out, String(e))
		}
		return out
	default:
		return nil
	}
}
