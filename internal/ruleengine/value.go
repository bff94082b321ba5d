package ruleengine

import (
	"fmt"
	"strconv"
)

// Kind enumerates the closed set of shapes a Value can take.
// The zero value (KindInvalid) marks an empty or unset Value.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindString
	KindInteger
	KindDouble
	KindBoolean
	KindSemver
	KindArray
	KindObject
)

var kindNames = [...]string{
	KindInvalid: "invalid",
	KindString:  "string",
	KindInteger: "integer",
	KindDouble:  "double",
	KindBoolean: "boolean",
	KindSemver:  "semver",
	KindArray:   "array",
	KindObject:  "object",
}

// String returns the lowercase wire name of the kind.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Valid reports whether k is one of the concrete kinds.
func (k Kind) Valid() bool {
	return k > KindInvalid && k <= KindObject
}

// scalar reports whether k can appear as an array element.
func (k Kind) scalar() bool {
	switch k {
	case KindString, KindInteger, KindDouble, KindBoolean, KindSemver:
		return true
	default:
		return false
	}
}

// ParseKind converts a wire name ("string", "integer", ...) into a Kind.
// A few common aliases are accepted ("int", "bool", "float", "number", "json").
func ParseKind(s string) (Kind, error) {
	switch s {
	case "string":
		return KindString, nil
	case "integer", "int":
		return KindInteger, nil
	case "double", "float", "number":
		return KindDouble, nil
	case "boolean", "bool":
		return KindBoolean, nil
	case "semver", "version":
		return KindSemver, nil
	case "array":
		return KindArray, nil
	case "object", "json":
		return KindObject, nil
	}
	return KindInvalid, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Value is a tagged variant over the closed set of Kinds.
// It is immutable once constructed; the zero Value has KindInvalid.
type Value struct {
	kind Kind
	str  string
	num  int64
	dbl  float64
	bln  bool
	arr  []Value
	obj  map[string]any
}

// StringValue wraps a plain string.
func StringValue(s string) Value { return Value{kind: KindString, str: s} }

// IntValue wraps a 64-bit integer.
func IntValue(i int64) Value { return Value{kind: KindInteger, num: i} }

// DoubleValue wraps a float64.
func DoubleValue(f float64) Value { return Value{kind: KindDouble, dbl: f} }

// BoolValue wraps a boolean.
func BoolValue(b bool) Value { return Value{kind: KindBoolean, bln: b} }

// SemverValue wraps a string that is declared to hold a semantic version.
// The string is not validated here; comparisons fail closed on unparsable input.
func SemverValue(s string) Value { return Value{kind: KindSemver, str: s} }

// ObjectValue wraps an opaque structured payload. The map is deep-copied:
// nested maps and slices are never shared with the caller.
func ObjectValue(m map[string]any) Value {
	if m == nil {
		return Value{kind: KindObject, obj: map[string]any{}}
	}
	return Value{kind: KindObject, obj: cloneObject(m)}
}

// ArrayValue builds a homogeneous array of scalar values.
// An empty array is valid and has no element kind.
func ArrayValue(elems ...Value) (Value, error) {
	var elemKind Kind
	for i, e := range elems {
		if !e.kind.scalar() {
			return Value{}, fmt.Errorf("%w: element %d has kind %s", ErrHeterogeneousArray, i, e.kind)
		}
		if i == 0 {
			elemKind = e.kind
			continue
		}
		if e.kind != elemKind {
			return Value{}, fmt.Errorf("%w: element %d is %s, expected %s", ErrHeterogeneousArray, i, e.kind, elemKind)
		}
	}

	arr := make([]Value, len(elems))
	copy(arr, elems)
	return Value{kind: KindArray, arr: arr}, nil
}

// MustArray is like ArrayValue but panics on error. Intended for tests and literals.
func MustArray(elems ...Value) Value {
	v, err := ArrayValue(elems...)
	if err != nil {
		panic(err)
	}
	return v
}

// Kind returns the shape of the value.
func (v Value) Kind() Kind { return v.kind }

// IsZero reports whether v is the empty Value.
func (v Value) IsZero() bool { return v.kind == KindInvalid }

// AsString returns the string payload of a string or semver value.
func (v Value) AsString() (string, bool) {
	if v.kind == KindString || v.kind == KindSemver {
		return v.str, true
	}
	return "", false
}

// AsInt returns the payload of an integer value.
func (v Value) AsInt() (int64, bool) {
	if v.kind == KindInteger {
		return v.num, true
	}
	return 0, false
}

// AsDouble returns the payload of a double value.
func (v Value) AsDouble() (float64, bool) {
	if v.kind == KindDouble {
		return v.dbl, true
	}
	return 0, false
}

// AsNumber returns integer and double values as float64.
func (v Value) AsNumber() (float64, bool) {
	switch v.kind {
	case KindInteger:
		return float64(v.num), true
	case KindDouble:
		return v.dbl, true
	default:
		return 0, false
	}
}

// AsBool returns the payload of a boolean value.
func (v Value) AsBool() (bool, bool) {
	if v.kind == KindBoolean {
		return v.bln, true
	}
	return false, false
}

// AsArray returns the elements of an array value. Callers must not modify the slice.
func (v Value) AsArray() ([]Value, bool) {
	if v.kind == KindArray {
		return v.arr, true
	}
	return nil, false
}

// ElemKind returns the element kind of a non-empty array, or KindInvalid.
func (v Value) ElemKind() Kind {
	if v.kind != KindArray || len(v.arr) == 0 {
		return KindInvalid
	}
	return v.arr[0].kind
}

// AsObject returns a deep copy of an object payload.
func (v Value) AsObject() (map[string]any, bool) {
	if v.kind == KindObject {
		return cloneObject(v.obj), true
	}
	return nil, false
}

// Interface converts the value into plain Go types suitable for encoding/json.
func (v Value) Interface() any {
	switch v.kind {
	case KindString, KindSemver:
		return v.str
	case KindInteger:
		return v.num
	case KindDouble:
		return v.dbl
	case KindBoolean:
		return v.bln
	case KindArray:
		out := make([]any, len(v.arr))
		for i, e := range v.arr {
			out[i] = e.Interface()
		}
		return out
	case KindObject:
		return cloneObject(v.obj)
	default:
		return nil
	}
}

func cloneObject(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneAny(v)
	}
	return out
}

// cloneAny copies the containers produced by JSON and YAML decoding.
// Scalars are immutable and returned as is.
func cloneAny(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneObject(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneAny(e)
		}
		return out
	default:
		return v
	}
}

// String renders the value for logs and diagnostics.
func (v Value) String() string {
	switch v.kind {
	case KindInvalid:
		return "<invalid>"
	case KindString, KindSemver:
		return strconv.Quote(v.str)
	default:
		return fmt.Sprintf("%v", v.Interface())
	}
}
