package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rafaeljc/heimdall-go/internal/ruleengine"
)

// decodeValue classifies a raw JSON value into a ruleengine.Value.
// declared is the kind announced by the document (KindInvalid when none):
// it turns strings into semver values and integer literals into doubles,
// and is applied element-wise to arrays.
func decodeValue(raw json.RawMessage, declared ruleengine.Kind) (ruleengine.Value, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var node any
	if err := dec.Decode(&node); err != nil {
		return ruleengine.Value{}, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	return toValue(node, declared)
}

// FromInterface types a generic decoded value (as produced by encoding/json
// with UseNumber, or by plain Go literals). It is used for request payloads
// such as evaluation contexts.
func FromInterface(node any, declared ruleengine.Kind) (ruleengine.Value, error) {
	return toValue(node, declared)
}

func toValue(node any, declared ruleengine.Kind) (ruleengine.Value, error) {
	switch v := node.(type) {
	case nil:
		return ruleengine.Value{}, fmt.Errorf("%w: null", ErrInvalidValue)

	case bool:
		return ruleengine.BoolValue(v), nil

	case string:
		if declared == ruleengine.KindSemver {
			return ruleengine.SemverValue(v), nil
		}
		return ruleengine.StringValue(v), nil

	case json.Number:
		return numberValue(v, declared)

	case int:
		return intOrDouble(int64(v), declared), nil
	case int64:
		return intOrDouble(v, declared), nil
	case float64:
		return ruleengine.DoubleValue(v), nil

	case []any:
		elemHint := declared
		if declared == ruleengine.KindArray {
			elemHint = ruleengine.KindInvalid
		}
		elems := make([]ruleengine.Value, len(v))
		for i, e := range v {
			ev, err := toValue(e, elemHint)
			if err != nil {
				return ruleengine.Value{}, fmt.Errorf("element %d: %w", i, err)
			}
			elems[i] = ev
		}
		arr, err := ruleengine.ArrayValue(elems...)
		if err != nil {
			return ruleengine.Value{}, fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
		return arr, nil

	case map[string]any:
		return ruleengine.ObjectValue(plain(v).(map[string]any)), nil

	default:
		return ruleengine.Value{}, fmt.Errorf("%w: unsupported type %T", ErrInvalidValue, node)
	}
}

// numberValue keeps integer literals as integers unless the document declares
// a double. Literals with a fraction or exponent are doubles.
func numberValue(n json.Number, declared ruleengine.Kind) (ruleengine.Value, error) {
	s := n.String()
	if !strings.ContainsAny(s, ".eE") {
		if i, err := n.Int64(); err == nil {
			return intOrDouble(i, declared), nil
		}
	}

	f, err := n.Float64()
	if err != nil {
		return ruleengine.Value{}, fmt.Errorf("%w: number %s: %v", ErrInvalidValue, s, err)
	}
	return ruleengine.DoubleValue(f), nil
}

func intOrDouble(i int64, declared ruleengine.Kind) ruleengine.Value {
	if declared == ruleengine.KindDouble {
		return ruleengine.DoubleValue(float64(i))
	}
	return ruleengine.IntValue(i)
}

// plain converts json.Number leaves of an object payload into int64 or
// float64 so host code never sees decoder-specific types.
func plain(node any) any {
	switch v := node.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, child := range v {
			out[k] = plain(child)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, child := range v {
			out[i] = plain(child)
		}
		return out
	case json.Number:
		if i, err := v.Int64(); err == nil && !strings.ContainsAny(v.String(), ".eE") {
			return i
		}
		f, _ := v.Float64()
		return f
	default:
		return v
	}
}
