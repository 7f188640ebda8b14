package repository

import (
	"fmt"
	"strings"
	"time"
)

// Stored values use the shapes the Firestore SDK decodes into:
// int64, float64, string, bool, time.Time, []interface{} and
// map[string]interface{}.
func normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case float32:
		return float64(t)
	case *time.Time:
		if t == nil {
			return nil
		}
		return *t
	case []string:
		out := make([]interface{}, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = normalize(item)
		}
		return out
	case map[string]string:
		out := make(map[string]interface{}, len(t))
		for k, s := range t {
			out[k] = s
		}
		return out
	case map[string]int:
		out := make(map[string]interface{}, len(t))
		for k, n := range t {
			out[k] = int64(n)
		}
		return out
	case map[string]time.Time:
		out := make(map[string]interface{}, len(t))
		for k, ts := range t {
			out[k] = ts
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, item := range t {
			out[k] = normalize(item)
		}
		return out
	}
	return v
}

func resolve(v interface{}, now time.Time) interface{} {
	switch t := v.(type) {
	case serverTimestampSentinel:
		return now
	case incrementSentinel:
		return t.n
	case map[string]interface{}:
		return resolveMap(t, now)
	}
	return normalize(v)
}

func resolveMap(data map[string]interface{}, now time.Time) map[string]interface{} {
	out := make(map[string]interface{}, len(data))
	for k, v := range data {
		out[k] = resolve(v, now)
	}
	return out
}

func applyUpdate(data map[string]interface{}, path []string, value interface{}, now time.Time) {
	if len(path) == 0 {
		return
	}

	current := data
	for _, segment := range path[:len(path)-1] {
		next, ok := current[segment].(map[string]interface{})
		if !ok {
			next = make(map[string]interface{})
			current[segment] = next
		}
		current = next
	}

	last := path[len(path)-1]
	if inc, ok := value.(incrementSentinel); ok {
		switch existing := current[last].(type) {
		case int64:
			current[last] = existing + inc.n
		case float64:
			current[last] = existing + float64(inc.n)
		default:
			current[last] = inc.n
		}
		return
	}
	current[last] = resolve(value, now)
}

func copyValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return copyMap(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = copyValue(item)
		}
		return out
	}
	return v
}

func copyMap(data map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(data))
	for k, v := range data {
		out[k] = copyValue(v)
	}
	return out
}

// typeRank orders values of different types the way Firestore does:
// null < bool < number < timestamp < string.
func typeRank(v interface{}) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case int64, float64:
		return 2
	case time.Time:
		return 3
	case string:
		return 4
	}
	return 5
}

func compareValues(a, b interface{}) int {
	a, b = normalize(a), normalize(b)
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}

	switch av := a.(type) {
	case nil:
		return 0
	case bool:
		bv := b.(bool)
		switch {
		case av == bv:
			return 0
		case !av:
			return -1
		}
		return 1
	case int64, float64:
		af, bf := toFloat(a), toFloat(b)
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		}
		return 0
	case time.Time:
		bv := b.(time.Time)
		switch {
		case av.Before(bv):
			return -1
		case av.After(bv):
			return 1
		}
		return 0
	case string:
		return strings.Compare(av, b.(string))
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func toFloat(v interface{}) float64 {
	switch n := v.(type) {
	case int64:
		return float64(n)
	case float64:
		return n
	}
	return 0
}
