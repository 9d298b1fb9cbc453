package router

import (
	"encoding/json"
	"strings"
)

// Document is a JSON object that keeps insertion order, so generated OpenAPI
// documents are stable.
type Document struct {
	keys   []string
	values map[string]any
}

func NewDocument() *Document {
	return &Document{values: make(map[string]any)}
}

func (d *Document) Set(key string, value any) {
	if _, exists := d.values[key]; !exists {
		d.keys = append(d.keys, key)
	}
	d.values[key] = value
}

func (d *Document) Get(key string) (any, bool) {
	v, ok := d.values[key]
	return v, ok
}

func (d *Document) Keys() []string { return append([]string(nil), d.keys...) }

// Copy is shallow: nested values are shared.
func (d *Document) Copy() *Document {
	out := &Document{keys: append([]string(nil), d.keys...), values: make(map[string]any, len(d.values))}
	for k, v := range d.values {
		out.values[k] = v
	}
	return out
}

func (d *Document) MarshalJSON() ([]byte, error) {
	var buf strings.Builder
	buf.WriteString("{")
	for i, key := range d.keys {
		if i > 0 {
			buf.WriteString(",")
		}
		keyJSON, _ := json.Marshal(key)
		buf.Write(keyJSON)
		buf.WriteString(":")
		valJSON, err := json.Marshal(d.values[key])
		if err != nil {
			return nil, err
		}
		buf.Write(valJSON)
	}
	buf.WriteString("}")
	return []byte(buf.String()), nil
}
