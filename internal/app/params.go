package app

import (
	"fmt"
	"strings"
)

// Loosely-typed parameter readers. JSON-decoded maps carry numbers as
// float64 and arrays as []any; these helpers normalize both, so MCP tool
// arguments and HTTP request bodies read identically.

func argString(params map[string]any, key, fallback string) string {
	if v, ok := params[key].(string); ok {
		return v
	}
	return fallback
}

func requireStringParam(params map[string]any, key string) (string, error) {
	v, ok := params[key].(string)
	if !ok || strings.TrimSpace(v) == "" {
		return "", fmt.Errorf("missing required parameter %q", key)
	}
	return v, nil
}

// firstString returns the first key that is present as a non-empty string.
// Several actions accept a legacy alias alongside the canonical name.
func firstString(params map[string]any, keys ...string) (string, bool) {
	for _, key := range keys {
		if v, ok := params[key].(string); ok && strings.TrimSpace(v) != "" {
			return v, true
		}
	}
	return "", false
}

func requireStringAny(params map[string]any, keys ...string) (string, error) {
	if v, ok := firstString(params, keys...); ok {
		return v, nil
	}
	return "", fmt.Errorf("missing required parameter %q", keys[0])
}

func argFloat(params map[string]any, key string, fallback float64) float64 {
	switch v := params[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return fallback
}

func argInt(params map[string]any, key string, fallback int) int {
	switch v := params[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return fallback
}

// argIntOK reads an int-valued key and reports whether it was present.
func argIntOK(params map[string]any, key string) (int, bool) {
	switch v := params[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	}
	return 0, false
}

func requireIntParam(params map[string]any, key string) (int, error) {
	switch v := params[key].(type) {
	case float64:
		return int(v), nil
	case int:
		return v, nil
	}
	return 0, fmt.Errorf("missing required parameter %q", key)
}

func argBool(params map[string]any, key string, fallback bool) bool {
	if v, ok := params[key].(bool); ok {
		return v
	}
	return fallback
}

func argStringSlice(params map[string]any, key string) []string {
	switch v := params[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return nil
}
