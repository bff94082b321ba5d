package ruleengine

// MatchRule reports whether every constraint of the rule holds for the context.
// A rule without constraints never matches.
func MatchRule(rule *Rule, ctx Context, types FieldTypes) bool {
	if rule == nil || len(rule.Constraints) == 0 {
		return false
	}

	for _, c := range rule.Constraints {
		if !EvaluateConstraint(c, ctx, types) {
			return false
		}
	}
	return true
}
