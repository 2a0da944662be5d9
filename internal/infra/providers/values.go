package providers

import "encoding/json"

func objectAt(m map[string]any, path ...string) (map[string]any, bool) {
	cur := m
	for _, k := range path {
		next, ok := cur[k].(map[string]any)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, cur != nil
}

// count reads a JSON number as int64, 0 when missing or not numeric.
func count(m map[string]any, key string) int64 {
	switch n := m[key].(type) {
	case float64:
		return int64(n)
	case int:
		return int64(n)
	case int64:
		return n
	case json.Number:
		i, _ := n.Int64()
		return i
	default:
		return 0
	}
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch t := v.(type) {
		case map[string]any:
			out[k] = cloneMap(t)
		case []any:
			l := make([]any, len(t))
			for i, it := range t {
				if im, ok := it.(map[string]any); ok {
					l[i] = cloneMap(im)
				} else {
					l[i] = it
				}
			}
			out[k] = l
		default:
			out[k] = v
		}
	}
	return out
}
