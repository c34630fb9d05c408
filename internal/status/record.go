package status

import (
	"bytes"
	"encoding/json"
	"math"
)

// Field is a single named status value: bool, float64, int or string.
type Field struct {
	Key   string
	Value any
}

// F is shorthand for building a Field.
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// Record is an ordered mapping from field name to value.
// Keys keep the order in which they were first merged.
// The zero value is an empty record ready to use.
type Record struct {
	keys []string
	vals map[string]any
}

// Merge sets each field, appending unseen keys in order. Existing keys keep their position.
func (r *Record) Merge(fields []Field) {
	if r.vals == nil {
		r.vals = make(map[string]any, len(fields))
	}
	for _, f := range fields {
		if _, ok := r.vals[f.Key]; !ok {
			r.keys = append(r.keys, f.Key)
		}
		r.vals[f.Key] = f.Value
	}
}

// Clone returns a deep copy safe to hand to other goroutines.
func (r Record) Clone() Record {
	c := Record{
		keys: append([]string(nil), r.keys...),
		vals: make(map[string]any, len(r.vals)),
	}
	for k, v := range r.vals {
		c.vals[k] = v
	}
	return c
}

// Len returns the number of fields.
func (r Record) Len() int { return len(r.keys) }

// Keys returns the field names in order.
func (r Record) Keys() []string { return append([]string(nil), r.keys...) }

// Fields returns the record as an ordered slice.
func (r Record) Fields() []Field {
	out := make([]Field, len(r.keys))
	for i, k := range r.keys {
		out[i] = Field{Key: k, Value: r.vals[k]}
	}
	return out
}

// Get returns the raw value for key.
func (r Record) Get(key string) (any, bool) {
	v, ok := r.vals[key]
	return v, ok
}

// Float returns a numeric field as float64.
func (r Record) Float(key string) (float64, bool) {
	switch v := r.vals[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// Bool returns a boolean field.
func (r Record) Bool(key string) (bool, bool) {
	v, ok := r.vals[key].(bool)
	return v, ok
}

// String returns a string field.
func (r Record) String(key string) (string, bool) {
	v, ok := r.vals[key].(string)
	return v, ok
}

// MarshalJSON encodes the record as an object in key order.
// NaN and infinities are encoded as null since JSON has no representation for them.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')

		vb, err := marshalValue(r.vals[k])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func marshalValue(v any) ([]byte, error) {
	switch f := v.(type) {
	case float64:
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return []byte("null"), nil
		}
	case float32:
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return []byte("null"), nil
		}
	}
	return json.Marshal(v)
}
