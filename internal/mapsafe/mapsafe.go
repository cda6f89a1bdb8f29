// Package mapsafe reads typed values out of free-form map[string]any
// parameter bags.
package mapsafe

import "time"

// Get retrieves a typed value from a map[string]any.
// If the key is missing or the type cannot be converted, it returns the default value.
func Get[T any](m map[string]any, key string, defaultValue T) T {
	if val, ok := m[key]; ok {
		switch any(defaultValue).(type) {
		case int:
			switch x := val.(type) {
			case int:
				return any(x).(T)
			case float64:
				return any(int(x)).(T)
			}
		case float64:
			switch x := val.(type) {
			case float64:
				return any(x).(T)
			case int:
				return any(float64(x)).(T)
			}
		case string:
			if s, ok := val.(string); ok {
				return any(s).(T)
			}
		case bool:
			if b, ok := val.(bool); ok {
				return any(b).(T)
			}
		default:
			// fallback: if type matches exactly
			if v2, ok := val.(T); ok {
				return v2
			}
		}
	}
	return defaultValue
}

// Minutes reads an integer minute count under key and converts it to a
// Duration. YAML decodes whole numbers as int, so Get's int path covers
// both spellings.
func Minutes(m map[string]any, key string, defaultValue time.Duration) time.Duration {
	minutes := Get(m, key, int(defaultValue/time.Minute))
	if minutes < 0 {
		return defaultValue
	}
	return time.Duration(minutes) * time.Minute
}
