// internal/domain/models/attributes.go
package models

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// Kind tags the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindMap
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindMap:
		return "map"
	case KindList:
		return "list"
	default:
		return "unknown"
	}
}

// Value is one attribute value from a provider payload.
// Numbers keep their JSON literal so large ids survive without rounding.
type Value struct {
	kind Kind
	str  string // string value, or number literal
	b    bool
	m    Attributes
	list []Value
}

// StringValue wraps a string.
func StringValue(s string) Value { return Value{kind: KindString, str: s} }

// NumberValue wraps a JSON number literal such as "12345" or "1.5e3".
func NumberValue(literal string) Value { return Value{kind: KindNumber, str: literal} }

// BoolValue wraps a boolean.
func BoolValue(b bool) Value { return Value{kind: KindBool, b: b} }

// MapValue wraps a nested attribute map.
func MapValue(m Attributes) Value { return Value{kind: KindMap, m: m} }

// ListValue wraps an ordered list of values.
func ListValue(items ...Value) Value { return Value{kind: KindList, list: items} }

// NullValue is the explicit JSON null.
func NullValue() Value { return Value{kind: KindNull} }

// Kind reports which variant v holds.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is JSON null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsString returns the string variant.
func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.str, true
}

// AsNumber returns the number literal.
func (v Value) AsNumber() (json.Number, bool) {
	if v.kind != KindNumber {
		return "", false
	}
	return json.Number(v.str), true
}

// AsBool returns the boolean variant.
func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

// AsMap returns the nested map variant.
func (v Value) AsMap() (Attributes, bool) {
	if v.kind != KindMap {
		return Attributes{}, false
	}
	return v.m, true
}

// AsList returns a copy of the list variant.
func (v Value) AsList() ([]Value, bool) {
	if v.kind != KindList {
		return nil, false
	}
	out := make([]Value, len(v.list))
	copy(out, v.list)
	return out, true
}

// Equal reports deep equality, including key order of nested maps.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString, KindNumber:
		return v.str == o.str
	case KindBool:
		return v.b == o.b
	case KindMap:
		return v.m.Equal(o.m)
	case KindList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
	}
	return true
}

// MarshalJSON encodes v as its JSON form.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		return []byte(v.str), nil
	case KindBool:
		return json.Marshal(v.b)
	case KindMap:
		return v.m.MarshalJSON()
	case KindList:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, item := range v.list {
			if i > 0 {
				buf.WriteByte(',')
			}
			b, err := item.MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(b)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("attributes: unknown value kind %d", v.kind)
}

// Attr is one key/value pair, used to build Attributes in order.
type Attr struct {
	Key   string
	Value Value
}

// Attributes is an ordered, read-only mapping from keys to Values.
// The zero value is an empty map.
type Attributes struct {
	keys []string
	vals map[string]Value
}

// NewAttributes builds Attributes from pairs in order. A repeated key keeps
// its first position and its last value.
func NewAttributes(pairs ...Attr) Attributes {
	var a Attributes
	for _, p := range pairs {
		a.set(p.Key, p.Value)
	}
	return a
}

func (a *Attributes) set(key string, v Value) {
	if a.vals == nil {
		a.vals = make(map[string]Value)
	}
	if _, exists := a.vals[key]; !exists {
		a.keys = append(a.keys, key)
	}
	a.vals[key] = v
}

// Len returns the number of keys.
func (a Attributes) Len() int { return len(a.keys) }

// Keys returns the keys in original order.
func (a Attributes) Keys() []string {
	out := make([]string, len(a.keys))
	copy(out, a.keys)
	return out
}

// Get returns the value stored under key.
func (a Attributes) Get(key string) (Value, bool) {
	v, ok := a.vals[key]
	return v, ok
}

// Lookup walks nested maps. It reports false when any step is missing or
// is not a map.
func (a Attributes) Lookup(path ...string) (Value, bool) {
	if len(path) == 0 {
		return Value{}, false
	}
	cur := a
	for i, key := range path {
		v, ok := cur.Get(key)
		if !ok {
			return Value{}, false
		}
		if i == len(path)-1 {
			return v, true
		}
		if cur, ok = v.AsMap(); !ok {
			return Value{}, false
		}
	}
	return Value{}, false
}

// Each calls fn for every pair in order.
func (a Attributes) Each(fn func(key string, v Value)) {
	for _, k := range a.keys {
		fn(k, a.vals[k])
	}
}

// Equal reports whether both maps hold equal values under the same keys in the same order.
func (a Attributes) Equal(o Attributes) bool {
	if len(a.keys) != len(o.keys) {
		return false
	}
	for i, k := range a.keys {
		if o.keys[i] != k || !a.vals[k].Equal(o.vals[k]) {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the map as a JSON object in original key order.
func (a Attributes) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range a.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := a.vals[k].MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object, keeping key order.
func (a *Attributes) UnmarshalJSON(data []byte) error {
	parsed, err := ParseAttributes(data)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ErrNotJSONObject is returned when a payload is valid JSON but not an object.
var ErrNotJSONObject = errors.New("attributes: payload is not a JSON object")

// maxAttributeDepth bounds nesting of provider payloads.
const maxAttributeDepth = 32

// ParseAttributes decodes a user-info document into ordered Attributes.
func ParseAttributes(data []byte) (Attributes, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return Attributes{}, fmt.Errorf("attributes: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return Attributes{}, ErrNotJSONObject
	}
	attrs, err := decodeObject(dec, 1)
	if err != nil {
		return Attributes{}, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return Attributes{}, errors.New("attributes: trailing data after object")
	}
	return attrs, nil
}

func decodeObject(dec *json.Decoder, depth int) (Attributes, error) {
	if depth > maxAttributeDepth {
		return Attributes{}, errors.New("attributes: nesting too deep")
	}
	var a Attributes
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return Attributes{}, fmt.Errorf("attributes: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return Attributes{}, fmt.Errorf("attributes: expected object key, got %v", tok)
		}
		v, err := decodeValue(dec, depth)
		if err != nil {
			return Attributes{}, err
		}
		a.set(key, v)
	}
	if err := expectDelim(dec, '}'); err != nil {
		return Attributes{}, err
	}
	return a, nil
}

func decodeValue(dec *json.Decoder, depth int) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, fmt.Errorf("attributes: %w", err)
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			m, err := decodeObject(dec, depth+1)
			if err != nil {
				return Value{}, err
			}
			return MapValue(m), nil
		case '[':
			if depth+1 > maxAttributeDepth {
				return Value{}, errors.New("attributes: nesting too deep")
			}
			var items []Value
			for dec.More() {
				item, err := decodeValue(dec, depth+1)
				if err != nil {
					return Value{}, err
				}
				items = append(items, item)
			}
			if err := expectDelim(dec, ']'); err != nil {
				return Value{}, err
			}
			return ListValue(items...), nil
		}
		return Value{}, fmt.Errorf("attributes: unexpected delimiter %q", t)
	case string:
		return StringValue(t), nil
	case json.Number:
		// The decoder may alias its read buffer; keep a private copy.
		return NumberValue(strings.Clone(t.String())), nil
	case float64:
		return NumberValue(strconv.FormatFloat(t, 'f', -1, 64)), nil
	case bool:
		return BoolValue(t), nil
	case nil:
		return NullValue(), nil
	}
	return Value{}, fmt.Errorf("attributes: unexpected token %v", tok)
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("attributes: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("attributes: expected %q, got %v", want, tok)
	}
	return nil
}
