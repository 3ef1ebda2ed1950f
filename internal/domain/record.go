package domain

import (
	"fmt"
	"sort"
)

// Record is a decoded daemon response: a nested key-value dictionary.
type Record map[string]any

// ErrorKey is the key launchd uses for an embedded failure.
const ErrorKey = "error"

// Get walks the given key path.
func (r Record) Get(path ...string) (any, bool) {
	var cur any = r
	for _, key := range path {
		dict, ok := asRecord(cur)
		if !ok {
			return nil, false
		}
		cur, ok = dict[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Dict returns the nested dictionary at path.
func (r Record) Dict(path ...string) (Record, bool) {
	v, ok := r.Get(path...)
	if !ok {
		return nil, false
	}
	return asRecord(v)
}

// Int64 returns the integer at path. Any other wire type is a miss.
func (r Record) Int64(path ...string) (int64, bool) {
	v, ok := r.Get(path...)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case uint64:
		return int64(n), true
	}
	return 0, false
}

// String returns the string at path. Any other wire type is a miss.
func (r Record) String(path ...string) (string, bool) {
	v, ok := r.Get(path...)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Keys returns the sorted keys at the top level.
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Err returns the embedded daemon error, if any.
func (r Record) Err() error {
	v, ok := r[ErrorKey]
	if !ok {
		return nil
	}
	return fmt.Errorf("daemon error: %v", v)
}

func asRecord(v any) (Record, bool) {
	switch d := v.(type) {
	case Record:
		return d, true
	case map[string]any:
		return Record(d), true
	}
	return nil, false
}
