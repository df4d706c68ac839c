package handlers

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// ArgumentError is a tool argument that is missing or has the wrong shape.
type ArgumentError struct {
	Arg    string
	Reason string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("invalid argument %q: %s", e.Arg, e.Reason)
}

func requireModel(args map[string]interface{}) (string, error) {
	model, err := optionalString(args, "model")
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(model) == "" {
		return "", &ArgumentError{Arg: "model", Reason: "is required"}
	}
	return model, nil
}

func optionalString(args map[string]interface{}, name string) (string, error) {
	v, ok := args[name]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", &ArgumentError{Arg: name, Reason: fmt.Sprintf("expected string, got %T", v)}
	}
	return s, nil
}

func optionalInt(args map[string]interface{}, name string, def int) (int, error) {
	v, ok := args[name]
	if !ok || v == nil {
		return def, nil
	}
	n, ok := wholeNumber(v)
	if !ok || n < 0 {
		return 0, &ArgumentError{Arg: name, Reason: "expected a non-negative integer"}
	}
	return n, nil
}

// optionalList returns a normalized JSON array, or an empty one when absent.
func optionalList(args map[string]interface{}, name string) ([]interface{}, error) {
	v, ok := args[name]
	if !ok || v == nil {
		return []interface{}{}, nil
	}
	list, ok := v.([]interface{})
	if !ok {
		return nil, &ArgumentError{Arg: name, Reason: fmt.Sprintf("expected array, got %T", v)}
	}
	return normalize(list).([]interface{}), nil
}

func optionalStrings(args map[string]interface{}, name string) ([]string, error) {
	v, ok := args[name]
	if !ok || v == nil {
		return nil, nil
	}
	switch list := v.(type) {
	case []string:
		return list, nil
	case []interface{}:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, &ArgumentError{Arg: name, Reason: "expected an array of strings"}
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, &ArgumentError{Arg: name, Reason: fmt.Sprintf("expected array, got %T", v)}
}

func requireIDs(args map[string]interface{}, name string) ([]int, error) {
	v, ok := args[name]
	if !ok || v == nil {
		return nil, &ArgumentError{Arg: name, Reason: "is required"}
	}
	var items []interface{}
	switch list := v.(type) {
	case []int:
		return list, nil
	case []interface{}:
		items = list
	default:
		return nil, &ArgumentError{Arg: name, Reason: fmt.Sprintf("expected array of integers, got %T", v)}
	}
	ids := make([]int, 0, len(items))
	for _, item := range items {
		id, ok := wholeNumber(item)
		if !ok {
			return nil, &ArgumentError{Arg: name, Reason: fmt.Sprintf("expected integer id, got %v", item)}
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func requireValues(args map[string]interface{}) (map[string]interface{}, error) {
	v, ok := args["values"]
	if !ok || v == nil {
		return nil, &ArgumentError{Arg: "values", Reason: "is required"}
	}
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil, &ArgumentError{Arg: "values", Reason: fmt.Sprintf("expected object, got %T", v)}
	}
	return normalize(m).(map[string]interface{}), nil
}

func wholeNumber(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n == math.Trunc(n) && !math.IsInf(n, 0) {
			return int(n), true
		}
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i), true
		}
	}
	return 0, false
}

// normalize prepares decoded JSON for XML-RPC: whole floats become ints and
// null becomes false, since the protocol has no nil.
func normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case nil:
		return false
	case float64:
		if n, ok := wholeNumber(t); ok {
			return n
		}
		return t
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = normalize(item)
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
