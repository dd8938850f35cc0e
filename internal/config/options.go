package config

import (
	"fmt"
	"time"
)

// OptString extracts a string value from the entry's Options.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func (e ProviderEntry) OptString(key string) string {
	s, _ := e.Options[key].(string)
	return s
}

// OptDuration extracts a duration from the entry's Options. It accepts Go
// duration strings ("20s") and integer seconds. Returns 0 when unset or
// unparsable.
func (e ProviderEntry) OptDuration(key string) time.Duration {
	switch v := e.Options[key].(type) {
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0
		}
		return d
	case int:
		return time.Duration(v) * time.Second
	default:
		return 0
	}
}

// OptInt extracts an integer from the entry's Options. YAML integers decode
// as int; the second result is false when the key is absent or not an integer.
func (e ProviderEntry) OptInt(key string) (int, bool) {
	n, ok := e.Options[key].(int)
	return n, ok
}

func optString(v any) string {
	return fmt.Sprint(v)
}
