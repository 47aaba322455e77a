package engine

import "fmt"

// requireString extracts a non-empty string from args by key.
func requireString(args map[string]any, key string) (string, error) {
	v, _ := args[key].(string)
	if v == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return v, nil
}

// requireStringAny extracts a non-empty string from args under any of the
// given keys, for parameters with a legacy alias.
func requireStringAny(args map[string]any, keys ...string) (string, error) {
	for _, key := range keys {
		if v, _ := args[key].(string); v != "" {
			return v, nil
		}
	}
	return "", fmt.Errorf("%s is required", keys[0])
}

// requireTaskID extracts a positive task ID from args by key. Returns a clear
// error distinguishing "missing" from "wrong type" — safe against nil values.
func requireTaskID(args map[string]any, key string) (int, error) {
	v, exists := args[key]
	if !exists || v == nil {
		return 0, fmt.Errorf("%s is required", key)
	}
	f, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("%s must be a number, got %T", key, v)
	}
	id := int(f)
	if id <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return id, nil
}

// optionalInt extracts an int from args by key, returning the fallback if not
// present. JSON numbers arrive as float64.
func optionalInt(args map[string]any, key string, fallback int) int {
	if v, ok := args[key].(float64); ok {
		return int(v)
	}
	return fallback
}
