package schema

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Variable is one key/value pair of task input or output data.
type Variable struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Variables is an ordered key -> string mapping.
type Variables []Variable

// VariablesFromMap builds Variables from a map. Map iteration order is
// random, so callers that care about order should use Set directly.
func VariablesFromMap(m map[string]string, keys ...string) Variables {
	var vars Variables
	if len(keys) > 0 {
		for _, k := range keys {
			if v, ok := m[k]; ok {
				vars = vars.Set(k, v)
			}
		}
		return vars
	}
	for k, v := range m {
		vars = vars.Set(k, v)
	}
	return vars
}

// Get returns the value stored under key.
func (v Variables) Get(key string) (string, bool) {
	for _, kv := range v {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return "", false
}

// Set replaces the value of an existing key in place or appends a new pair.
func (v Variables) Set(key, value string) Variables {
	for i := range v {
		if v[i].Key == key {
			v[i].Value = value
			return v
		}
	}
	return append(v, Variable{Key: key, Value: value})
}

// Equal reports whether both mappings hold the same pairs in the same order.
// A nil and an empty mapping are equal.
func (v Variables) Equal(other Variables) bool {
	if len(v) != len(other) {
		return false
	}
	for i := range v {
		if v[i] != other[i] {
			return false
		}
	}
	return true
}

// Map returns an unordered copy.
func (v Variables) Map() map[string]string {
	m := make(map[string]string, len(v))
	for _, kv := range v {
		m[kv.Key] = kv.Value
	}
	return m
}

// Clone returns a copy that does not share backing storage.
func (v Variables) Clone() Variables {
	if v == nil {
		return nil
	}
	out := make(Variables, len(v))
	copy(out, v)
	return out
}

// Value implements driver.Valuer so Variables can be bound directly.
func (v Variables) Value() (driver.Value, error) {
	if v == nil {
		return "[]", nil
	}
	data, err := json.Marshal([]Variable(v))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal variables: %w", err)
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (v *Variables) Scan(src any) error {
	var data []byte
	switch s := src.(type) {
	case nil:
		*v = nil
		return nil
	case string:
		data = []byte(s)
	case []byte:
		data = s
	default:
		return fmt.Errorf("cannot scan %T into Variables", src)
	}
	if len(data) == 0 || string(data) == "null" {
		*v = nil
		return nil
	}
	var pairs []Variable
	if err := json.Unmarshal(data, &pairs); err != nil {
		return fmt.Errorf("failed to unmarshal variables: %w", err)
	}
	if len(pairs) == 0 {
		*v = nil
		return nil
	}
	*v = pairs
	return nil
}
