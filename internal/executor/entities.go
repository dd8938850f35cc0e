package executor

import (
	"encoding/json"
	"strconv"
	"strings"
)

// String returns the first non-empty value among keys as a trimmed string.
// Numbers are formatted without a fractional part when they are integral.
func String(entities map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := entities[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case int:
			return strconv.Itoa(v)
		case int64:
			return strconv.FormatInt(v, 10)
		case json.Number:
			return v.String()
		case bool:
			return strconv.FormatBool(v)
		}
	}
	return ""
}

// ID returns the first positive integer identifier among keys. Spoken forms
// such as "#42", "ticket 42" or "WEB-42" yield 42.
func ID(entities map[string]any, keys ...string) (int64, bool) {
	for _, k := range keys {
		switch v := entities[k].(type) {
		case float64:
			if v > 0 && v == float64(int64(v)) {
				return int64(v), true
			}
		case int:
			if v > 0 {
				return int64(v), true
			}
		case int64:
			if v > 0 {
				return v, true
			}
		case json.Number:
			if n, err := v.Int64(); err == nil && n > 0 {
				return n, true
			}
		case string:
			if n, ok := trailingNumber(v); ok {
				return n, true
			}
		}
	}
	return 0, false
}

// Int returns the first integer among keys, or def.
func Int(entities map[string]any, def int, keys ...string) int {
	if n, ok := ID(entities, keys...); ok {
		return int(n)
	}
	return def
}

func trailingNumber(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	end := len(s)
	start := end
	for start > 0 && s[start-1] >= '0' && s[start-1] <= '9' {
		start--
	}
	if start == end {
		return 0, false
	}
	n, err := strconv.ParseInt(s[start:end], 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
