package tools

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/vango-go/nova-live/pkg/core"
)

// String returns a string argument. A missing or blank required value is a validation error.
func String(args map[string]any, key string, required bool) (string, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		if required {
			return "", core.NewValidationError(key+" is required", key)
		}
		return "", nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", core.NewValidationError(key+" must be a string", key)
	}
	if required && strings.TrimSpace(s) == "" {
		return "", core.NewValidationError(key+" must be non-empty", key)
	}
	return s, nil
}

// Enum returns a string argument constrained to allowed values.
func Enum(args map[string]any, key string, required bool, allowed ...string) (string, error) {
	s, err := String(args, key, required)
	if err != nil || s == "" {
		return s, err
	}
	for _, a := range allowed {
		if s == a {
			return s, nil
		}
	}
	return "", core.NewValidationError(fmt.Sprintf("%s must be one of %s", key, strings.Join(allowed, ", ")), key)
}

// Number returns a numeric argument. JSON numbers decode as float64; numeric
// strings are accepted too.
func Number(args map[string]any, key string, required bool, def float64) (float64, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		if required {
			return 0, core.NewValidationError(key+" is required", key)
		}
		return def, nil
	}
	switch v := raw.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err == nil {
			return f, nil
		}
	}
	return 0, core.NewValidationError(key+" must be a number", key)
}

// Int returns an integral numeric argument.
func Int(args map[string]any, key string, required bool, def int) (int, error) {
	f, err := Number(args, key, required, float64(def))
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, core.NewValidationError(key+" must be an integer", key)
	}
	return int(f), nil
}

// Bool returns a boolean argument.
func Bool(args map[string]any, key string, def bool) (bool, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return def, nil
	}
	switch v := raw.(type) {
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b, nil
		}
	}
	return false, core.NewValidationError(key+" must be a boolean", key)
}

// Strings returns a list of strings.
func Strings(args map[string]any, key string, required bool) ([]string, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		if required {
			return nil, core.NewValidationError(key+" is required", key)
		}
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		if ss, ok := raw.([]string); ok {
			return ss, nil
		}
		return nil, core.NewValidationError(key+" must be an array of strings", key)
	}
	out := make([]string, 0, len(list))
	for i, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, core.NewValidationError(fmt.Sprintf("%s[%d] must be a string", key, i), fmt.Sprintf("%s[%d]", key, i))
		}
		out = append(out, s)
	}
	return out, nil
}

// Object returns a nested object argument.
func Object(args map[string]any, key string, required bool) (map[string]any, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		if required {
			return nil, core.NewValidationError(key+" is required", key)
		}
		return nil, nil
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, core.NewValidationError(key+" must be an object", key)
	}
	return obj, nil
}
