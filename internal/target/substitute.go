package target

import "github.com/daryltucker/workload-bench/internal/model"

// NeedsTarget reports whether any argument, at any depth, is the placeholder.
func NeedsTarget(args map[string]any) bool {
	return containsPlaceholder(args)
}

func containsPlaceholder(v any) bool {
	switch t := v.(type) {
	case string:
		return t == model.Placeholder
	case map[string]any:
		for _, val := range t {
			if containsPlaceholder(val) {
				return true
			}
		}
	case []any:
		for _, val := range t {
			if containsPlaceholder(val) {
				return true
			}
		}
	case []string:
		for _, val := range t {
			if val == model.Placeholder {
				return true
			}
		}
	}
	return false
}

// Substitute returns a deep copy of args with every placeholder string
// replaced by value. args itself is never modified.
func Substitute(args map[string]any, value string) map[string]any {
	if args == nil {
		return nil
	}
	return substitute(args, value).(map[string]any)
}

func substitute(v any, value string) any {
	switch t := v.(type) {
	case string:
		if t == model.Placeholder {
			return value
		}
		return t
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = substitute(val, value)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = substitute(val, value)
		}
		return out
	case []string:
		out := make([]string, len(t))
		for i, val := range t {
			if val == model.Placeholder {
				val = value
			}
			out[i] = val
		}
		return out
	}
	return v
}
