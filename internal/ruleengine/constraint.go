package ruleengine

import "cmp"

// operatorFunc is the strategy implementing one Operator.
// versioned is true when string operands must be compared as semantic versions.
type operatorFunc func(contextValue, constraintValue Value, versioned bool) bool

// operators is the dispatch table for constraint evaluation.
// Unknown operators are absent and evaluate to false.
var operators = map[Operator]operatorFunc{
	OpEq: func(c, v Value, versioned bool) bool {
		eq, ok := equal(c, v, versioned)
		return ok && eq
	},
	OpNeq: func(c, v Value, versioned bool) bool {
		eq, ok := equal(c, v, versioned)
		return ok && !eq
	},
	OpGt:       ordered(func(order int) bool { return order > 0 }),
	OpGte:      ordered(func(order int) bool { return order >= 0 }),
	OpLt:       ordered(func(order int) bool { return order < 0 }),
	OpLte:      ordered(func(order int) bool { return order <= 0 }),
	OpIn:       in,
	OpContains: contains,
}

// EvaluateConstraint checks one constraint against the context.
// A missing field, an unknown operator, or operands of incompatible types
// evaluate to false; the function never panics.
func EvaluateConstraint(c Constraint, ctx Context, types FieldTypes) bool {
	op, ok := operators[c.Operator]
	if !ok {
		return false
	}

	contextValue, present := ctx.Attribute(c.ContextField)
	if !present || contextValue.IsZero() {
		return false
	}

	return op(contextValue, c.Value, types.Lookup(c.ContextField) == KindSemver)
}

// usesVersions decides whether a comparison is a semantic-version comparison:
// either the field is declared semver in the registry, or an operand was
// already tagged as a version by the schema parser.
func usesVersions(versioned bool, values ...Value) bool {
	if versioned {
		return true
	}
	for _, v := range values {
		if v.Kind() == KindSemver {
			return true
		}
	}
	return false
}

// equal compares two scalars. The second result is false when the pair is
// not comparable (different shapes, invalid versions, arrays, objects).
func equal(a, b Value, versioned bool) (bool, bool) {
	if usesVersions(versioned, a, b) {
		order, ok := compareVersions(a, b)
		return order == 0, ok
	}

	switch {
	case a.Kind() == KindBoolean && b.Kind() == KindBoolean:
		ab, _ := a.AsBool()
		bb, _ := b.AsBool()
		return ab == bb, true

	case a.Kind() == KindInteger && b.Kind() == KindInteger:
		ai, _ := a.AsInt()
		bi, _ := b.AsInt()
		return ai == bi, true

	case isNumber(a) && isNumber(b):
		af, _ := a.AsNumber()
		bf, _ := b.AsNumber()
		return af == bf, true

	case a.Kind() == KindString && b.Kind() == KindString:
		as, _ := a.AsString()
		bs, _ := b.AsString()
		return as == bs, true
	}
	return false, false
}

// compare orders two numbers or two versions.
func compare(a, b Value, versioned bool) (int, bool) {
	if usesVersions(versioned, a, b) {
		return compareVersions(a, b)
	}

	if a.Kind() == KindInteger && b.Kind() == KindInteger {
		ai, _ := a.AsInt()
		bi, _ := b.AsInt()
		return cmp.Compare(ai, bi), true
	}

	if isNumber(a) && isNumber(b) {
		af, _ := a.AsNumber()
		bf, _ := b.AsNumber()
		return cmp.Compare(af, bf), true
	}
	return 0, false
}

func ordered(accept func(order int) bool) operatorFunc {
	return func(c, v Value, versioned bool) bool {
		order, ok := compare(c, v, versioned)
		return ok && accept(order)
	}
}

// in tests a context scalar against an array of strings, integers or versions.
func in(c, v Value, versioned bool) bool {
	elems, ok := v.AsArray()
	if !ok || len(elems) == 0 {
		return false
	}

	elemKind := v.ElemKind()
	switch elemKind {
	case KindString, KindInteger, KindSemver:
	default:
		return false
	}

	if usesVersions(versioned, c, elems[0]) {
		// Versions travel as strings on both sides.
		if _, ok := c.AsString(); !ok || elemKind == KindInteger {
			return false
		}
		for _, e := range elems {
			if order, ok := compareVersions(c, e); ok && order == 0 {
				return true
			}
		}
		return false
	}

	if c.Kind() != elemKind {
		return false
	}
	for _, e := range elems {
		if eq, ok := equal(c, e, false); ok && eq {
			return true
		}
	}
	return false
}

// contains tests whether a context array holds the scalar constraint value.
func contains(c, v Value, versioned bool) bool {
	elems, ok := c.AsArray()
	if !ok {
		return false
	}
	if !v.Kind().scalar() {
		return false
	}

	for _, e := range elems {
		if eq, ok := equal(e, v, versioned); ok && eq {
			return true
		}
	}
	return false
}

func isNumber(v Value) bool {
	return v.Kind() == KindInteger || v.Kind() == KindDouble
}
