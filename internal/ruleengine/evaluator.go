package ruleengine

// Typed entry points. Each wraps the caller default in a Value of the matching
// kind and unwraps the result through an explicit accessor.

// EvaluateBool resolves a boolean flag.
func (e *Engine) EvaluateBool(flagKey string, def bool, set *FlagSet, ctx Context) EvaluationResult[bool] {
	return Typed(e.Evaluate(flagKey, BoolValue(def), set, ctx), def, Value.AsBool)
}

// EvaluateString resolves a string flag.
func (e *Engine) EvaluateString(flagKey string, def string, set *FlagSet, ctx Context) EvaluationResult[string] {
	return Typed(e.Evaluate(flagKey, StringValue(def), set, ctx), def, Value.AsString)
}

// EvaluateInt resolves an integer flag.
func (e *Engine) EvaluateInt(flagKey string, def int64, set *FlagSet, ctx Context) EvaluationResult[int64] {
	return Typed(e.Evaluate(flagKey, IntValue(def), set, ctx), def, Value.AsInt)
}

// EvaluateFloat resolves a double flag.
func (e *Engine) EvaluateFloat(flagKey string, def float64, set *FlagSet, ctx Context) EvaluationResult[float64] {
	return Typed(e.Evaluate(flagKey, DoubleValue(def), set, ctx), def, Value.AsDouble)
}

// EvaluateObject resolves a structured (JSON object) flag.
func (e *Engine) EvaluateObject(flagKey string, def map[string]any, set *FlagSet, ctx Context) EvaluationResult[map[string]any] {
	return Typed(e.Evaluate(flagKey, ObjectValue(def), set, ctx), def, Value.AsObject)
}

// Typed converts an untyped Result. It is exported for facades that run
// EvaluateAt themselves.
func Typed[T any](res Result, def T, get func(Value) (T, bool)) EvaluationResult[T] {
	// A result without a variant is a fallback: hand back the caller's own
	// default rather than its wrapped copy (nil stays nil).
	v := def
	if res.Variant != "" {
		if got, ok := get(res.Value); ok {
			v = got
		}
	}
	return EvaluationResult[T]{
		Value:    v,
		Variant:  res.Variant,
		Reason:   res.Reason,
		Metadata: res.Metadata,
	}
}
