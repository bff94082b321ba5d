package ruleengine

// FieldTypes is the context-field type registry: it declares the semantic
// type of a context attribute (e.g., "appVersion" is a semantic version).
// The constraint evaluator only applies version ordering to string fields
// declared here as KindSemver.
type FieldTypes map[string]Kind

// Lookup returns the declared kind of a field, or KindInvalid when undeclared.
func (t FieldTypes) Lookup(field string) Kind {
	return t[field]
}

// Merge returns a new registry where entries in override replace those in t.
func (t FieldTypes) Merge(override FieldTypes) FieldTypes {
	out := make(FieldTypes, len(t)+len(override))
	for k, v := range t {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}
