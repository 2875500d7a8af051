package runctl

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseKeyValues parses KEY=VALUE pairs into a map. Later pairs override
// earlier ones. Keys must be non-empty and free of whitespace; values may
// be empty and may contain '='. Errors wrap [ErrUsage].
func ParseKeyValues(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		if strings.Contains(p, "\x00") {
			return nil, fmt.Errorf("%w: %q contains null bytes", ErrUsage, p)
		}
		k, v, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("%w: %q is not KEY=VALUE", ErrUsage, p)
		}
		if k == "" || strings.ContainsAny(k, " \t\r\n") {
			return nil, fmt.Errorf("%w: invalid key in %q", ErrUsage, p)
		}
		out[k] = v
	}
	return out, nil
}

// ParsePositiveIntOption returns the integer value for key in opts.
// If the key is absent or empty, it returns (0, false, nil).
// If the value is present but not a valid positive integer, or contains
// null bytes, it returns an error.
func ParsePositiveIntOption(opts map[string]string, key string) (int, bool, error) {
	v := opts[key]
	if v == "" {
		return 0, false, nil
	}
	if strings.Contains(v, "\x00") {
		return 0, false, fmt.Errorf("option %s: value contains null bytes", key)
	}
	v = strings.TrimSpace(v)
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false, fmt.Errorf("option %s: %q is not a valid integer", key, v)
	}
	if n <= 0 {
		return 0, false, fmt.Errorf("option %s: %q must be a positive integer", key, v)
	}
	return n, true, nil
}

// ParseBoolOption returns the boolean value for key in opts.
// If the key is absent or empty, it returns (false, false, nil).
// Truthy values: "true", "on", "1", "yes" (case-insensitive).
// Falsy values: "false", "off", "0", "no" (case-insensitive).
// Unrecognized values return an error.
func ParseBoolOption(opts map[string]string, key string) (bool, bool, error) {
	v := opts[key]
	if v == "" {
		return false, false, nil
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "on", "1", "yes":
		return true, true, nil
	case "false", "off", "0", "no":
		return false, true, nil
	default:
		return false, false, fmt.Errorf("option %s: %q is not a recognized boolean value", key, v)
	}
}
