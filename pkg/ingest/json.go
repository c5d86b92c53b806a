package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// orderedObject preserves JSON object key order, which the stdlib map
// decoding loses. Record text must keep the author's field order.
type orderedObject struct {
	fields []orderedField
}

type orderedField struct {
	key   string
	value any
}

func (o *orderedObject) get(key string) (any, bool) {
	for _, f := range o.fields {
		if f.key == key {
			return f.value, true
		}
	}
	return nil, false
}

// listKeys are the wrapper keys checked, in order, when the top-level
// JSON value is an object rather than an array.
var listKeys = []string{"data", "items", "records", "entries"}

// decodeJSONItems returns the list of items a JSON document holds:
// the elements of a top-level array, the list under a known wrapper
// key, or the object itself as a single item.
func decodeJSONItems(data []byte) ([]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	top, err := decodeValue(dec)
	if err != nil {
		return nil, err
	}

	switch v := top.(type) {
	case []any:
		return v, nil
	case *orderedObject:
		for _, key := range listKeys {
			if inner, ok := v.get(key); ok {
				if list, ok := inner.([]any); ok {
					return list, nil
				}
			}
		}
		return []any{v}, nil
	default:
		return nil, fmt.Errorf("top-level value must be an object or array")
	}
}

func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			obj := &orderedObject{}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("object key is not a string")
				}
				val, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				obj.fields = append(obj.fields, orderedField{key: key, value: val})
			}
			if _, err := dec.Token(); err != nil { // consume '}'
				return nil, err
			}
			return obj, nil
		case '[':
			var arr []any
			for dec.More() {
				val, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				arr = append(arr, val)
			}
			if _, err := dec.Token(); err != nil { // consume ']'
				return nil, err
			}
			return arr, nil
		}
		return nil, fmt.Errorf("unexpected delimiter %v", t)
	default:
		return tok, nil
	}
}

// recordFromValue flattens one JSON item into an ordered record.
// Null and empty values are skipped; non-object items become a single
// unnamed field.
func recordFromValue(v any) Record {
	rec := Record{}
	obj, ok := v.(*orderedObject)
	if !ok {
		if s := renderValue(v); s != "" {
			rec.Fields = append(rec.Fields, Field{Value: s})
		}
		return rec
	}
	for _, f := range obj.fields {
		s := renderValue(f.value)
		if s == "" {
			continue
		}
		rec.Fields = append(rec.Fields, Field{Key: f.key, Value: s})
	}
	return rec
}

// renderValue renders a decoded JSON value as record text. Nested
// containers render as compact JSON.
func renderValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "true"
		}
		return "false"
	case *orderedObject:
		parts := make([]string, 0, len(t.fields))
		for _, f := range t.fields {
			parts = append(parts, fmt.Sprintf("%q: %s", f.key, renderScalarJSON(f.value)))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			parts = append(parts, renderScalarJSON(item))
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return fmt.Sprintf("%v", t)
	}
}

func renderScalarJSON(v any) string {
	switch t := v.(type) {
	case string:
		return fmt.Sprintf("%q", t)
	case *orderedObject, []any:
		return renderValue(t)
	default:
		return renderValue(t)
	}
}
