// Package payload canonicalizes decoded request payloads before schema
// validation. Handlers and tests build payloads with native Go
// containers; the validator only accepts the shapes a JSON decode
// produces, so both dispatchers normalize through here.
package payload

// Normalize rebuilds v with generic container types: maps and slices
// are copied element-wise, integers become float64.
func Normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = Normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = Normalize(val)
		}
		return out
	case []int:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = float64(val)
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = val
		}
		return out
	case int:
		return float64(t)
	case int64:
		return float64(t)
	default:
		return v
	}
}

// NormalizeMap is Normalize for a payload object; nil becomes an empty
// map so handlers never see a nil payload.
func NormalizeMap(data map[string]any) map[string]any {
	if data == nil {
		return map[string]any{}
	}
	return Normalize(data).(map[string]any)
}
