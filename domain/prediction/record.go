package prediction

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Record is one patient's prediction output. Field order is the order in which
// fields were first set, which for decoded records is the order of the JSON object.
type Record struct {
	fields []string
	values map[string]any
}

// NewRecord builds a record from alternating name/value pairs.
func NewRecord(pairs ...any) Record {
	var r Record
	for i := 0; i+1 < len(pairs); i += 2 {
		name, ok := pairs[i].(string)
		if !ok {
			panic(fmt.Sprintf("prediction.NewRecord: field name at position %d is %T, not string", i, pairs[i]))
		}
		r.Set(name, pairs[i+1])
	}
	return r
}

// RecordFromMap builds a record from a map; fields are ordered by name since maps carry no order.
func RecordFromMap(m map[string]any) Record {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	var r Record
	for _, name := range names {
		r.Set(name, m[name])
	}
	return r
}

// Set assigns a value, appending the field if it is new.
func (r *Record) Set(name string, value any) {
	if r.values == nil {
		r.values = make(map[string]any)
	}
	if _, exists := r.values[name]; !exists {
		r.fields = append(r.fields, name)
	}
	r.values[name] = value
}

// Get returns the value of a field and whether the field is present.
func (r Record) Get(name string) (any, bool) {
	v, ok := r.values[name]
	return v, ok
}

// Fields returns the field names in first-seen order.
func (r Record) Fields() []string {
	out := make([]string, len(r.fields))
	copy(out, r.fields)
	return out
}

// Len returns the number of fields.
func (r Record) Len() int {
	return len(r.fields)
}

// Clone returns a copy whose field list and top-level map can be changed independently.
func (r Record) Clone() Record {
	c := Record{fields: r.Fields()}
	if r.values != nil {
		c.values = make(map[string]any, len(r.values))
		for k, v := range r.values {
			c.values[k] = v
		}
	}
	return c
}

// MarshalJSON writes the fields in order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range r.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(r.values[name])
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object, keeping its key order.
func (r *Record) UnmarshalJSON(data []byte) error {
	*r = Record{}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("result record must be a JSON object, got %v", tok)
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected key token %v", tok)
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("field %q: %w", name, err)
		}
		r.Set(name, value)
	}

	_, err = dec.Token()
	return err
}
