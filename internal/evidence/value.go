package evidence

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Kind identifies the type held by a Value.
type Kind int

const (
	KindInvalid Kind = iota
	KindBool
	KindString
	KindNumber
	KindList
	KindRecord
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindList:
		return "list"
	case KindRecord:
		return "record"
	default:
		return "invalid"
	}
}

// Value is an immutable typed attribute value. The zero Value is invalid.
type Value struct {
	kind Kind
	b    bool
	s    string
	n    float64
	list []Value
	rec  map[string]Value
}

// Bool returns a boolean Value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// String returns a string Value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Number returns a numeric Value.
func Number(n float64) Value { return Value{kind: KindNumber, n: n} }

// List returns a list Value holding a copy of vs.
func List(vs ...Value) Value {
	cp := make([]Value, len(vs))
	copy(cp, vs)
	return Value{kind: KindList, list: cp}
}

// Strings is a convenience for a list of string Values.
func Strings(ss ...string) Value {
	vs := make([]Value, len(ss))
	for i, s := range ss {
		vs[i] = String(s)
	}
	return Value{kind: KindList, list: vs}
}

// Record returns a record Value holding a copy of fields.
func Record(fields map[string]Value) Value {
	cp := make(map[string]Value, len(fields))
	for k, v := range fields {
		cp[k] = v
	}
	return Value{kind: KindRecord, rec: cp}
}

func (v Value) Kind() Kind { return v.kind }

// Valid reports whether v holds a value.
func (v Value) Valid() bool { return v.kind != KindInvalid }

func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

func (v Value) AsNumber() (float64, bool) { return v.n, v.kind == KindNumber }

// AsList returns a copy of the list elements.
func (v Value) AsList() ([]Value, bool) {
	if v.kind != KindList {
		return nil, false
	}
	cp := make([]Value, len(v.list))
	copy(cp, v.list)
	return cp, true
}

// AsStrings returns the string elements of a list. Non-string elements are
// skipped.
func (v Value) AsStrings() ([]string, bool) {
	if v.kind != KindList {
		return nil, false
	}
	out := make([]string, 0, len(v.list))
	for _, e := range v.list {
		if s, ok := e.AsString(); ok {
			out = append(out, s)
		}
	}
	return out, true
}

// Field returns the named field of a record Value.
func (v Value) Field(name string) (Value, bool) {
	if v.kind != KindRecord {
		return Value{}, false
	}
	f, ok := v.rec[name]
	return f, ok
}

// Len returns the number of list elements or record fields.
func (v Value) Len() int {
	switch v.kind {
	case KindList:
		return len(v.list)
	case KindRecord:
		return len(v.rec)
	}
	return 0
}

func (v Value) String() string {
	data, err := json.Marshal(v)
	if err != nil {
		return "<invalid>"
	}
	return string(data)
}

// MarshalJSON encodes v as its natural JSON form. Record keys are written in
// sorted order.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindBool:
		return json.Marshal(v.b)
	case KindString:
		return json.Marshal(v.s)
	case KindNumber:
		return json.Marshal(v.n)
	case KindList:
		return json.Marshal(v.list)
	case KindRecord:
		keys := make([]string, 0, len(v.rec))
		for k := range v.rec {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, _ := json.Marshal(k)
			buf.Write(kb)
			buf.WriteByte(':')
			vb, err := v.rec[k].MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(vb)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("marshal invalid evidence value")
}

// UnmarshalJSON infers the kind from the JSON token. null is rejected.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty evidence value")
	}
	switch data[0] {
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = Bool(b)
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = String(s)
	case '[':
		var list []Value
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*v = Value{kind: KindList, list: list}
	case '{':
		var rec map[string]Value
		if err := json.Unmarshal(data, &rec); err != nil {
			return err
		}
		*v = Value{kind: KindRecord, rec: rec}
	case 'n':
		return fmt.Errorf("evidence value must not be null")
	default:
		var n float64
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*v = Number(n)
	}
	return nil
}
