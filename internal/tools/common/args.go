package common

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/teemow/calpilot/internal/timeutil"
)

// MissingArgError reports a required argument that was absent or empty.
type MissingArgError struct {
	Name string
}

func (e *MissingArgError) Error() string {
	return e.Name + " is required"
}

// ArgTypeError reports an argument of the wrong JSON type.
type ArgTypeError struct {
	Name string
	Want string
}

func (e *ArgTypeError) Error() string {
	return fmt.Sprintf("%s must be %s", e.Name, e.Want)
}

// RequiredString returns a non-empty string argument.
func RequiredString(args map[string]any, name string) (string, error) {
	v, ok := args[name].(string)
	if !ok || strings.TrimSpace(v) == "" {
		return "", &MissingArgError{Name: name}
	}
	return v, nil
}

// OptionalString returns the string argument, or def when it is absent.
func OptionalString(args map[string]any, name, def string) string {
	if v, ok := args[name].(string); ok && v != "" {
		return v
	}
	return def
}

// StringPtr returns a pointer to the string argument when it is present,
// even if empty, so callers can tell "clear" from "leave alone".
func StringPtr(args map[string]any, name string) (*string, error) {
	raw, ok := args[name]
	if !ok || raw == nil {
		return nil, nil
	}
	v, ok := raw.(string)
	if !ok {
		return nil, &ArgTypeError{Name: name, Want: "a string"}
	}
	return &v, nil
}

func toInt(name string, raw any) (int, error) {
	switch v := raw.(type) {
	case float64:
		if v != math.Trunc(v) {
			return 0, &ArgTypeError{Name: name, Want: "an integer"}
		}
		return int(v), nil
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, &ArgTypeError{Name: name, Want: "an integer"}
		}
		return int(n), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, &ArgTypeError{Name: name, Want: "an integer"}
		}
		return n, nil
	}
	return 0, &ArgTypeError{Name: name, Want: "an integer"}
}

// OptionalInt returns the integer argument, or def when it is absent. JSON
// numbers arrive as float64; numeric strings are accepted too.
func OptionalInt(args map[string]any, name string, def int) (int, error) {
	raw, ok := args[name]
	if !ok || raw == nil {
		return def, nil
	}
	return toInt(name, raw)
}

// RequiredInt returns an integer argument that must be present.
func RequiredInt(args map[string]any, name string) (int, error) {
	raw, ok := args[name]
	if !ok || raw == nil {
		return 0, &MissingArgError{Name: name}
	}
	return toInt(name, raw)
}

// IntPtr returns a pointer to the integer argument when present.
func IntPtr(args map[string]any, name string) (*int, error) {
	raw, ok := args[name]
	if !ok || raw == nil {
		return nil, nil
	}
	n, err := toInt(name, raw)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// BoolPtr returns a pointer to the boolean argument when present.
func BoolPtr(args map[string]any, name string) (*bool, error) {
	raw, ok := args[name]
	if !ok || raw == nil {
		return nil, nil
	}
	switch v := raw.(type) {
	case bool:
		return &v, nil
	case string:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, &ArgTypeError{Name: name, Want: "a boolean"}
		}
		return &b, nil
	}
	return nil, &ArgTypeError{Name: name, Want: "a boolean"}
}

// StringList accepts an array of strings or a comma-separated string. The
// second result is false when the argument is absent.
func StringList(args map[string]any, name string) ([]string, bool, error) {
	raw, ok := args[name]
	if !ok || raw == nil {
		return nil, false, nil
	}
	var out []string
	switch v := raw.(type) {
	case string:
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	case []string:
		out = append(out, v...)
	case []any:
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, true, &ArgTypeError{Name: fmt.Sprintf("%s[%d]", name, i), Want: "a string"}
			}
			out = append(out, s)
		}
	default:
		return nil, true, &ArgTypeError{Name: name, Want: "a string or array of strings"}
	}
	if out == nil {
		out = []string{}
	}
	return out, true, nil
}

// IntList accepts an array of integers. The second result is false when the
// argument is absent.
func IntList(args map[string]any, name string) ([]int, bool, error) {
	raw, ok := args[name]
	if !ok || raw == nil {
		return nil, false, nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, true, &ArgTypeError{Name: name, Want: "an array of integers"}
	}
	out := make([]int, 0, len(items))
	for i, item := range items {
		n, err := toInt(fmt.Sprintf("%s[%d]", name, i), item)
		if err != nil {
			return nil, true, err
		}
		out = append(out, n)
	}
	return out, true, nil
}

// RequiredTime parses a required date or local datetime argument. Parse
// failures are *timeutil.FormatError.
func RequiredTime(args map[string]any, name string) (time.Time, error) {
	s, err := RequiredString(args, name)
	if err != nil {
		return time.Time{}, err
	}
	return timeutil.ParseDate(s)
}

// OptionalTime parses a date or local datetime argument when present.
func OptionalTime(args map[string]any, name string) (*time.Time, error) {
	s, ok := args[name].(string)
	if !ok || s == "" {
		return nil, nil
	}
	t, err := timeutil.ParseDate(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
