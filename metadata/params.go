// Package metadata implements the point/relation arena:
// Point, PointRelation, Params, addressed by stable integer Handles rather
// than owning references, so the graph's back-pointers (child -> parent,
// behavior -> relation) never need a cyclic Go data structure.
package metadata

import (
	"strconv"

	"github.com/xapiens/rvpf/value"
)

// Params is a frozen multimap of string keys to value.Value, built once at
// metadata freeze.
type Params struct {
	entries map[string][]value.Value
}

// NewParams builds a Params from the given entries, copying each key's
// value slice so the Params shares no storage with entries.
func NewParams(entries map[string][]value.Value) Params {
	frozen := make(map[string][]value.Value, len(entries))
	for k, v := range entries {
		cp := make([]value.Value, len(v))
		copy(cp, v)
		frozen[k] = cp
	}
	return Params{entries: frozen}
}

// Get returns the first value for key, if any.
func (p Params) Get(key string) (value.Value, bool) {
	vs, ok := p.entries[key]
	if !ok || len(vs) == 0 {
		return value.Value{}, false
	}
	return vs[0], true
}

// GetAll returns every value for key, in insertion order.
func (p Params) GetAll(key string) []value.Value {
	return p.entries[key]
}

// GetString returns the first string value for key, if any.
func (p Params) GetString(key string) (string, bool) {
	v, ok := p.Get(key)
	if !ok {
		return "", false
	}
	return v.StringValue()
}

// GetBool returns the first bool value for key, if any.
func (p Params) GetBool(key string) (bool, bool) {
	v, ok := p.Get(key)
	if !ok {
		return false, false
	}
	return v.Bool()
}

// GetInt64 returns the first int64 value for key, if any. A String value
// that parses as an integer counts, since metadata loaded from a generic
// TOML params multimap (metadata/load.go) stores every scalar as a string.
func (p Params) GetInt64(key string) (int64, bool) {
	v, ok := p.Get(key)
	if !ok {
		return 0, false
	}
	if n, ok := v.Int64(); ok {
		return n, true
	}
	if s, ok := v.StringValue(); ok {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}

// GetFloat64 returns the first value for key as a float64, if any,
// accepting Int64, Double, Decimal and numeric-looking String kinds (see
// GetInt64's note on why String must be accepted here too).
func (p Params) GetFloat64(key string) (float64, bool) {
	v, ok := p.Get(key)
	if !ok {
		return 0, false
	}
	if f, ok := value.Numeric(v); ok {
		return f, true
	}
	if s, ok := v.StringValue(); ok {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}
