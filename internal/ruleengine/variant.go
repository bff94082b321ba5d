package ruleengine

import (
	"encoding/json"
	"errors"
)

var errNotJSONObject = errors.New("string does not hold a JSON object")

// ResolveVariant looks up a variant by key and coerces it to the requested kind.
//
// Coercion is limited to shape-preserving cases:
//   - a double request accepts an integer variant (widened to float64);
//   - a string request accepts a semver variant (a version is a string);
//   - an object request accepts a string holding a serialized JSON object,
//     parsed here once.
//
// Everything else that does not match exactly is a *TypeMismatchError.
func ResolveVariant(variants []Variant, key string, want Kind) (Value, error) {
	var (
		found bool
		value Value
	)
	for _, v := range variants {
		if v.Key == key {
			found, value = true, v.Value
			break
		}
	}
	if !found {
		return Value{}, &TypeMismatchError{Variant: key, Want: want, Missing: true}
	}

	mismatch := &TypeMismatchError{Variant: key, Want: want, Got: value.Kind()}

	switch want {
	case KindBoolean, KindInteger, KindArray:
		if value.Kind() == want {
			return value, nil
		}

	case KindDouble:
		if f, ok := value.AsNumber(); ok {
			return DoubleValue(f), nil
		}

	case KindString:
		if s, ok := value.AsString(); ok {
			return StringValue(s), nil
		}

	case KindSemver:
		if s, ok := value.AsString(); ok {
			if _, valid := parseVersion(s); valid {
				return SemverValue(s), nil
			}
		}

	case KindObject:
		switch value.Kind() {
		case KindObject:
			return value, nil
		case KindString:
			raw, _ := value.AsString()
			obj, err := parseObject(raw)
			if err != nil {
				mismatch.Cause = err
				return Value{}, mismatch
			}
			return ObjectValue(obj), nil
		}

	default:
		return Value{}, ErrUnknownKind
	}

	return Value{}, mismatch
}

func parseObject(raw string) (map[string]any, error) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil, err
	}
	if obj == nil {
		// "null" unmarshals without error but is not an object.
		return nil, errNotJSONObject
	}
	return obj, nil
}
