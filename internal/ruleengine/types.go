// Package ruleengine provides the core logic for feature flag evaluation.
// It resolves which variant of a flag a given targeting key receives, using a
// deterministic bucketing hash, a typed constraint language and percentage
// allocations. Every function in this package is synchronous and never panics
// into the caller: failures are downgraded into a Result carrying the caller's
// default value and a Reason.
package ruleengine

import (
	"maps"
	"time"
)

// Operator is the comparison applied by a Constraint.
type Operator string

const (
	OpEq       Operator = "eq"
	OpNeq      Operator = "neq"
	OpGt       Operator = "gt"
	OpGte      Operator = "gte"
	OpLt       Operator = "lt"
	OpLte      Operator = "lte"
	OpIn       Operator = "in"
	OpContains Operator = "ct"
)

// Context represents the input data regarding the entity requesting the flag.
type Context struct {
	// TargetingKey is the stable identifier (user, session, device) used for bucketing.
	// An empty key means the flag cannot be evaluated and the default is returned.
	TargetingKey string

	// Attributes holds typed targeting data (e.g., "country", "appVersion").
	Attributes map[string]Value
}

// NewContext builds a Context, copying the attribute map so later caller
// mutations cannot leak into evaluations.
func NewContext(targetingKey string, attributes map[string]Value) Context {
	return Context{TargetingKey: targetingKey, Attributes: maps.Clone(attributes)}
}

// Attribute returns the value of a context field.
func (c Context) Attribute(field string) (Value, bool) {
	v, ok := c.Attributes[field]
	return v, ok
}

// Constraint is a single predicate over one context field.
type Constraint struct {
	ContextField string
	Operator     Operator
	Value        Value
}

// Allocation assigns a percentage share of traffic to a variant.
// Allocations within one rule must sum to exactly 100.
type Allocation struct {
	Variant    string
	Percentage int
}

// Rule is a targeting rule. Its constraints are ANDed; a rule without
// constraints is never selected (it is not a catch-all).
type Rule struct {
	// Name salts the allocation hash so bucket choice is independent per rule.
	Name        string
	Constraints []Constraint
	Allocations []Allocation
}

// DefaultRule is the fallback allocation used when no Rule matched.
type DefaultRule struct {
	Name        string
	Allocations []Allocation
}

// Variant is one named possible output of a flag.
type Variant struct {
	Key   string
	Value Value
}

// Feature is a single flag definition. Once part of a published FlagSet it
// must not be mutated.
type Feature struct {
	Key     string
	Enabled bool

	// RolloutPercentage admits this share of targeting keys to rule evaluation.
	// Nil means 100.
	RolloutPercentage *int

	// Type declares the semantic type of the variant values.
	Type Kind

	Rules       []Rule
	DefaultRule *DefaultRule
	Variants    []Variant
	UpdatedAt   time.Time
}

// Rollout returns the effective rollout percentage.
func (f *Feature) Rollout() int {
	if f.RolloutPercentage == nil {
		return 100
	}
	return *f.RolloutPercentage
}

// FlagSet is an immutable snapshot of features. It is replaced wholesale on
// refresh and never mutated in place.
type FlagSet struct {
	features []Feature
	index    map[string]int

	// FieldTypes is the context-field type registry shipped with the snapshot.
	FieldTypes FieldTypes

	UpdatedAt time.Time
}

// NewFlagSet indexes the features by key. When a key appears twice the first
// occurrence wins; the schema parser rejects such documents before they get here.
func NewFlagSet(features []Feature, fieldTypes FieldTypes, updatedAt time.Time) *FlagSet {
	set := &FlagSet{
		features:   make([]Feature, len(features)),
		index:      make(map[string]int, len(features)),
		FieldTypes: fieldTypes,
		UpdatedAt:  updatedAt,
	}
	copy(set.features, features)

	for i := range set.features {
		if _, exists := set.index[set.features[i].Key]; !exists {
			set.index[set.features[i].Key] = i
		}
	}
	return set
}

// Feature looks up a feature by key. It is safe to call on a nil FlagSet.
func (s *FlagSet) Feature(key string) (*Feature, bool) {
	if s == nil {
		return nil, false
	}
	i, ok := s.index[key]
	if !ok {
		return nil, false
	}
	return &s.features[i], true
}

// Keys returns the feature keys in document order.
func (s *FlagSet) Keys() []string {
	if s == nil {
		return nil
	}
	keys := make([]string, 0, len(s.features))
	for _, f := range s.features {
		keys = append(keys, f.Key)
	}
	return keys
}

// Len returns the number of features.
func (s *FlagSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.features)
}
