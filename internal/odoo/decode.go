package odoo

import (
	"fmt"
	"math"
)

// Record is one row returned by read or search_read.
type Record map[string]interface{}

func asInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		if n == math.Trunc(n) {
			return int(n), true
		}
	}
	return 0, false
}

func decodeIDs(reply interface{}) ([]int, error) {
	items, ok := reply.([]interface{})
	if !ok {
		if reply == nil {
			return []int{}, nil
		}
		return nil, fmt.Errorf("expected list of ids, got %T", reply)
	}
	ids := make([]int, 0, len(items))
	for _, item := range items {
		id, ok := asInt(item)
		if !ok {
			return nil, fmt.Errorf("expected integer id, got %T", item)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func decodeRecords(reply interface{}) ([]Record, error) {
	items, ok := reply.([]interface{})
	if !ok {
		if reply == nil {
			return []Record{}, nil
		}
		return nil, fmt.Errorf("expected list of records, got %T", reply)
	}
	records := make([]Record, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("expected record struct, got %T", item)
		}
		records = append(records, Record(m))
	}
	return records, nil
}

func decodeBool(reply interface{}) (bool, error) {
	b, ok := reply.(bool)
	if !ok {
		return false, fmt.Errorf("expected boolean, got %T", reply)
	}
	return b, nil
}

func decodeStruct(reply interface{}) (map[string]interface{}, error) {
	m, ok := reply.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("expected struct, got %T", reply)
	}
	return m, nil
}

func errUnexpected(want string, got interface{}) error {
	return fmt.Errorf("expected %s, got %T", want, got)
}
