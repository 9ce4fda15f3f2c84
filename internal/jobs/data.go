package jobs

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

func stringField(data map[string]any, key string) (string, error) {
	v, ok := data[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("data.%s: want string, got %T", key, v)
	}
	return strings.TrimSpace(s), nil
}

func requiredString(data map[string]any, key string) (string, error) {
	s, err := stringField(data, key)
	if err != nil {
		return "", err
	}
	if s == "" {
		return "", fmt.Errorf("data.%s: required", key)
	}
	return s, nil
}

// stringList accepts a list of strings or a single whitespace-separated
// string.
func stringList(data map[string]any, key string) ([]string, error) {
	switch v := data[key].(type) {
	case nil:
		return nil, nil
	case string:
		return strings.Fields(v), nil
	case []string:
		return append([]string(nil), v...), nil
	case []any:
		out := make([]string, 0, len(v))
		for i, e := range v {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("data.%s[%d]: want string, got %T", key, i, e)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("data.%s: want list of strings, got %T", key, v)
	}
}

// stringMap renders scalar values with %v and returns the keys sorted.
func stringMap(data map[string]any, key string) (map[string]string, []string, error) {
	raw, ok := data[key]
	if !ok || raw == nil {
		return nil, nil, nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, nil, fmt.Errorf("data.%s: want map, got %T", key, raw)
	}
	out := make(map[string]string, len(m))
	keys := make([]string, 0, len(m))
	for k, v := range m {
		switch v.(type) {
		case map[string]any, []any:
			return nil, nil, fmt.Errorf("data.%s.%s: want scalar, got %T", key, k, v)
		}
		out[k] = fmt.Sprint(v)
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return out, keys, nil
}

// intField accepts whole numbers decoded from JSON or YAML, or a numeric
// string.
func intField(data map[string]any, key string) (int64, bool, error) {
	switch v := data[key].(type) {
	case nil:
		return 0, false, nil
	case int:
		return int64(v), true, nil
	case int64:
		return v, true, nil
	case float64:
		if v != math.Trunc(v) {
			return 0, false, fmt.Errorf("data.%s: want integer, got %v", key, v)
		}
		return int64(v), true, nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, false, fmt.Errorf("data.%s: want integer, got %q", key, v)
		}
		return n, true, nil
	default:
		return 0, false, fmt.Errorf("data.%s: want integer, got %T", key, v)
	}
}
