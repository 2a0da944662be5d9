package scans

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Helpers for walking decoded provider JSON (map[string]any / []any).
// All of them tolerate nil and wrong types.

func mapAt(m map[string]any, path ...string) map[string]any {
	cur := m
	for _, k := range path {
		if cur == nil {
			return nil
		}
		next, ok := cur[k].(map[string]any)
		if !ok {
			return nil
		}
		cur = next
	}
	return cur
}

func valueAt(m map[string]any, path ...string) any {
	if len(path) == 0 {
		return nil
	}
	parent := mapAt(m, path[:len(path)-1]...)
	if parent == nil {
		return nil
	}
	return parent[path[len(path)-1]]
}

func listOf(v any) []any {
	if l, ok := v.([]any); ok {
		return l
	}
	return nil
}

// sizeOf returns the length of a list or map, 0 otherwise.
func sizeOf(v any) int {
	switch t := v.(type) {
	case []any:
		return len(t)
	case map[string]any:
		return len(t)
	case []string:
		return len(t)
	default:
		return 0
	}
}

func numberFromAny(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func intFromAny(v any) int64 {
	if f, ok := numberFromAny(v); ok {
		return int64(f)
	}
	return 0
}

// truthy mirrors "is this worth showing": nil, "", 0, false and empty
// collections are all false.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case bool:
		return t
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	}
	if f, ok := numberFromAny(v); ok {
		return f != 0
	}
	return true
}

// stringOf renders a scalar or a small structure as one flat line.
func stringOf(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+"="+stringOf(t[k]))
		}
		return strings.Join(parts, ", ")
	case []any:
		parts := make([]string, 0, len(t))
		for _, it := range t {
			parts = append(parts, stringOf(it))
		}
		return strings.Join(parts, ", ")
	}
	if f, ok := numberFromAny(v); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

// uniqueSorted dedups non-empty strings, sorts them and keeps at most limit.
func uniqueSorted(values []string, limit int) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// uniqueOrdered dedups while keeping first-seen order.
func uniqueOrdered(values []string, limit int) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func stringsOf(v any) []string {
	l := listOf(v)
	out := make([]string, 0, len(l))
	for _, it := range l {
		if truthy(it) {
			out = append(out, stringOf(it))
		}
	}
	return out
}
