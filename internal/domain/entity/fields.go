package entity

import (
	"fmt"
	"time"
)

// Decoding helpers for documents returned by the store adapters. Firestore
// yields []interface{}, map[string]interface{}, int64 and time.Time; the
// in-memory adapter may hand back the typed forms directly.

func fieldError(field string, err error) error {
	return fmt.Errorf("field %q: %w", field, err)
}

func str(v interface{}) string {
	s, _ := v.(string)
	return s
}

func timestamp(v interface{}) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case *time.Time:
		if t != nil {
			return *t
		}
	}
	return time.Time{}
}

func stringSlice(v interface{}) ([]string, error) {
	switch s := v.(type) {
	case nil:
		return nil, nil
	case []string:
		return append([]string(nil), s...), nil
	case []interface{}:
		out := make([]string, 0, len(s))
		for _, item := range s {
			str, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("unexpected element type %T", item)
			}
			out = append(out, str)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unexpected type %T", v)
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

func intMap(v interface{}) (map[string]int, error) {
	out := make(map[string]int)
	switch m := v.(type) {
	case nil:
		return out, nil
	case map[string]int:
		for k, n := range m {
			out[k] = n
		}
		return out, nil
	case map[string]interface{}:
		for k, raw := range m {
			n, ok := toInt(raw)
			if !ok {
				return nil, fmt.Errorf("unexpected value type %T for %q", raw, k)
			}
			out[k] = n
		}
		return out, nil
	}
	return nil, fmt.Errorf("unexpected type %T", v)
}

func timeMap(v interface{}) (map[string]time.Time, error) {
	out := make(map[string]time.Time)
	switch m := v.(type) {
	case nil:
		return out, nil
	case map[string]time.Time:
		for k, t := range m {
			out[k] = t
		}
		return out, nil
	case map[string]interface{}:
		for k, raw := range m {
			t, ok := raw.(time.Time)
			if !ok {
				return nil, fmt.Errorf("unexpected value type %T for %q", raw, k)
			}
			out[k] = t
		}
		return out, nil
	}
	return nil, fmt.Errorf("unexpected type %T", v)
}
