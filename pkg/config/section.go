package config

import (
	"fmt"
	"time"
)

// Section is one named block of the configuration file.
type Section interface {
	// ID is the key the section is stored under
	ID() string

	// Title is a short human-readable name
	Title() string

	// Description explains what the section controls
	Description() string

	// Data returns the section as plain values suitable for persistence
	Data() map[string]any

	// SetData applies persisted values; unknown keys are ignored
	SetData(data map[string]any) error

	// Validate checks the current values
	Validate() error

	// Reset restores defaults
	Reset()
}

// asInt accepts the integer shapes YAML and JSON decoders produce.
func asInt(key string, v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case uint64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("%s: expected integer, got %v", key, n)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("%s: expected integer, got %T", key, v)
	}
}

func asFloat(key string, v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("%s: expected number, got %T", key, v)
	}
}

// asDuration accepts duration strings ("30s") or a number of milliseconds.
func asDuration(key string, v any) (time.Duration, error) {
	if s, ok := v.(string); ok {
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", key, err)
		}
		return d, nil
	}
	ms, err := asInt(key, v)
	if err != nil {
		return 0, fmt.Errorf("%s: expected duration, got %T", key, v)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func asBool(key string, v any) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%s: expected bool, got %T", key, v)
	}
	return b, nil
}

func asStrings(key string, v any) ([]string, error) {
	switch list := v.(type) {
	case []string:
		return append([]string(nil), list...), nil
	case []any:
		out := make([]string, 0, len(list))
		for i, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s[%d]: expected string, got %T", key, i, item)
			}
			out = append(out, s)
		}
		return out, nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("%s: expected list of strings, got %T", key, v)
	}
}
