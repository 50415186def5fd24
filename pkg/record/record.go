// Package record defines the engine-agnostic representation of stored data.
//
// A Record is one stored document or row; a Filter is an equality match over
// record fields. Both are schema-less by design: the gateway stores and serves
// any entity of any shape, so values are carried as untyped JSON-compatible
// scalars, nested maps and lists. Adapters translate between this generic
// representation and their engine-native one; the reserved PrimaryKey field is
// the only key with defined semantics at this layer.
package record

// PrimaryKey is the generic primary identifier field. Adapters must translate
// it to the engine-native key on the way in and re-expose it under this name
// on the way out.
const PrimaryKey = "id"

// Record represents one stored document/row as field name -> value.
type Record map[string]interface{}

// Filter is an equality-only match over record fields. The reserved key "id"
// denotes the primary identifier and is translated per engine.
type Filter map[string]interface{}

// ID returns the primary identifier carried by the record, if any.
func (r Record) ID() (string, bool) {
	v, ok := r[PrimaryKey]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// WithID returns a copy of the record with the primary key set to id.
func (r Record) WithID(id string) Record {
	out := r.Clone()
	out[PrimaryKey] = id
	return out
}

// Clone returns a copy of the record. Nested maps and lists are copied one
// level deep, which is enough to keep callers from aliasing adapter-owned
// state.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = cloneValue(v)
	}
	return out
}

// Merge applies partial on top of r: fields present in partial overwrite,
// absent fields are untouched. The primary key is never overwritten by a
// merge. Returns the merged record; r is not modified.
func (r Record) Merge(partial Record) Record {
	out := r.Clone()
	for k, v := range partial {
		if k == PrimaryKey {
			continue
		}
		out[k] = cloneValue(v)
	}
	return out
}

// Clone returns a copy of the filter.
func (f Filter) Clone() Filter {
	if f == nil {
		return nil
	}
	out := make(Filter, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// ID returns the value of the reserved id key as a string, if present.
func (f Filter) ID() (string, bool) {
	v, ok := f[PrimaryKey]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// WithoutID returns a copy of the filter with the reserved id key removed.
func (f Filter) WithoutID() Filter {
	out := f.Clone()
	delete(out, PrimaryKey)
	return out
}

func cloneValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, nested := range val {
			out[k] = nested
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		copy(out, val)
		return out
	default:
		return v
	}
}
