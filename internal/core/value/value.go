// Package value defines Value, the tagged union carried on node ports and
// produced by transforms. A Value is immutable once built: constructors copy
// their arguments and accessors hand out read-only views.
package value

import (
	"fmt"
	"sort"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindText
	KindList
	KindRecord
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindText:
		return "text"
	case KindList:
		return "list"
	case KindRecord:
		return "record"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Field is one key/value pair of a record. Records keep fields in insertion
// order.
type Field struct {
	Key   string
	Value Value
}

// Value is a null, bool, number, text, ordered list or ordered record.
// The zero Value is null.
type Value struct {
	kind   Kind
	b      bool
	n      float64
	s      string
	items  []Value
	fields []Field
}

// Null returns the null value.
func Null() Value { return Value{} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number wraps a float64.
func Number(n float64) Value { return Value{kind: KindNumber, n: n} }

// Text wraps a string.
func Text(s string) Value { return Value{kind: KindText, s: s} }

// List builds a list from the given items.
func List(items ...Value) Value {
	cp := make([]Value, len(items))
	copy(cp, items)
	return Value{kind: KindList, items: cp}
}

// Record builds a record. A repeated key keeps its first position and takes
// the last value, matching JSON object semantics.
func Record(fields ...Field) Value {
	out := Value{kind: KindRecord, fields: make([]Field, 0, len(fields))}
	for _, f := range fields {
		out.fields = setField(out.fields, f.Key, f.Value)
	}
	return out
}

// Matrix builds a list of number lists.
func Matrix(rows [][]float64) Value {
	items := make([]Value, len(rows))
	for i, row := range rows {
		cells := make([]Value, len(row))
		for j, n := range row {
			cells[j] = Number(n)
		}
		items[i] = Value{kind: KindList, items: cells}
	}
	return Value{kind: KindList, items: items}
}

func setField(fields []Field, key string, v Value) []Field {
	for i := range fields {
		if fields[i].Key == key {
			fields[i].Value = v
			return fields
		}
	}
	return append(fields, Field{Key: key, Value: v})
}

// Kind reports the variant.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the boolean and true when v is a bool.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsNumber returns the number and true when v is a number.
func (v Value) AsNumber() (float64, bool) { return v.n, v.kind == KindNumber }

// AsText returns the string and true when v is text.
func (v Value) AsText() (string, bool) { return v.s, v.kind == KindText }

// Len returns the number of list items or record fields, zero otherwise.
func (v Value) Len() int {
	switch v.kind {
	case KindList:
		return len(v.items)
	case KindRecord:
		return len(v.fields)
	default:
		return 0
	}
}

// Items returns the list items. The slice must not be modified.
func (v Value) Items() []Value {
	if v.kind != KindList {
		return nil
	}
	return v.items
}

// Index returns the i-th list item.
func (v Value) Index(i int) (Value, bool) {
	if v.kind != KindList || i < 0 || i >= len(v.items) {
		return Value{}, false
	}
	return v.items[i], true
}

// Fields returns the record fields in order. The slice must not be modified.
func (v Value) Fields() []Field {
	if v.kind != KindRecord {
		return nil
	}
	return v.fields
}

// Get returns the record field named key.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindRecord {
		return Value{}, false
	}
	for _, f := range v.fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return Value{}, false
}

// Keys returns the record keys in order.
func (v Value) Keys() []string {
	keys := make([]string, 0, len(v.fields))
	for _, f := range v.Fields() {
		keys = append(keys, f.Key)
	}
	return keys
}

// Merge returns a record holding v's fields overlaid with other's fields.
// Both operands must be records; otherwise v is returned unchanged.
func (v Value) Merge(other Value) Value {
	if v.kind != KindRecord || other.kind != KindRecord {
		return v
	}
	fields := make([]Field, len(v.fields), len(v.fields)+len(other.fields))
	copy(fields, v.fields)
	for _, f := range other.fields {
		fields = setField(fields, f.Key, f.Value)
	}
	return Value{kind: KindRecord, fields: fields}
}

// Equal reports deep equality. Record field order is not significant.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == other.b
	case KindNumber:
		return v.n == other.n
	case KindText:
		return v.s == other.s
	case KindList:
		if len(v.items) != len(other.items) {
			return false
		}
		for i := range v.items {
			if !v.items[i].Equal(other.items[i]) {
				return false
			}
		}
		return true
	case KindRecord:
		if len(v.fields) != len(other.fields) {
			return false
		}
		for _, f := range v.fields {
			o, ok := other.Get(f.Key)
			if !ok || !f.Value.Equal(o) {
				return false
			}
		}
		return true
	}
	return false
}

// String renders v as compact JSON.
func (v Value) String() string { return v.JSON() }

// FromAny converts plain Go data (as produced by encoding/json or msgpack
// decoding into interface{}) into a Value. Map keys are sorted because Go maps
// carry no order.
func FromAny(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case bool:
		return Bool(t), nil
	case string:
		return Text(t), nil
	case float64:
		return Number(t), nil
	case float32:
		return Number(float64(t)), nil
	case int:
		return Number(float64(t)), nil
	case int8:
		return Number(float64(t)), nil
	case int16:
		return Number(float64(t)), nil
	case int32:
		return Number(float64(t)), nil
	case int64:
		return Number(float64(t)), nil
	case uint:
		return Number(float64(t)), nil
	case uint8:
		return Number(float64(t)), nil
	case uint16:
		return Number(float64(t)), nil
	case uint32:
		return Number(float64(t)), nil
	case uint64:
		return Number(float64(t)), nil
	case []any:
		items := make([]Value, len(t))
		for i, item := range t {
			iv, err := FromAny(item)
			if err != nil {
				return Value{}, fmt.Errorf("index %d: %w", i, err)
			}
			items[i] = iv
		}
		return Value{kind: KindList, items: items}, nil
	case []float64:
		items := make([]Value, len(t))
		for i, n := range t {
			items[i] = Number(n)
		}
		return Value{kind: KindList, items: items}, nil
	case []string:
		items := make([]Value, len(t))
		for i, s := range t {
			items[i] = Text(s)
		}
		return Value{kind: KindList, items: items}, nil
	case [][]float64:
		return Matrix(t), nil
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fields := make([]Field, 0, len(keys))
		for _, k := range keys {
			fv, err := FromAny(t[k])
			if err != nil {
				return Value{}, fmt.Errorf("key %q: %w", k, err)
			}
			fields = append(fields, Field{Key: k, Value: fv})
		}
		return Value{kind: KindRecord, fields: fields}, nil
	default:
		return Value{}, fmt.Errorf("value: unsupported type %T", x)
	}
}

// MustFromAny is FromAny for literals in tests and static tables.
func MustFromAny(x any) Value {
	v, err := FromAny(x)
	if err != nil {
		panic(err)
	}
	return v
}

// ToAny converts v back into plain Go data. Records become map[string]any and
// lose their order.
func (v Value) ToAny() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.n
	case KindText:
		return v.s
	case KindList:
		out := make([]any, len(v.items))
		for i, item := range v.items {
			out[i] = item.ToAny()
		}
		return out
	case KindRecord:
		out := make(map[string]any, len(v.fields))
		for _, f := range v.fields {
			out[f.Key] = f.Value.ToAny()
		}
		return out
	default:
		return nil
	}
}
