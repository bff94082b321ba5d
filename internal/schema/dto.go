package schema

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rafaeljc/heimdall-go/internal/ruleengine"
)

// documentDTO mirrors the wire format. Values stay raw until the declared
// types are known.
type documentDTO struct {
	UpdatedAt         *time.Time        `json:"updatedAt"`
	ContextFieldTypes map[string]string `json:"contextFieldTypes"`
	Features          []featureDTO      `json:"features"`
}

type featureDTO struct {
	Key               string          `json:"key"`
	Enabled           bool            `json:"enabled"`
	RolloutPercentage *int            `json:"rolloutPercentage"`
	Type              string          `json:"type"`
	UpdatedAt         *time.Time      `json:"updatedAt"`
	Rules             []ruleDTO       `json:"rules"`
	DefaultRule       *defaultRuleDTO `json:"defaultRule"`
	Variants          []variantDTO    `json:"variants"`
}

type ruleDTO struct {
	Name        string          `json:"name"`
	Constraints []constraintDTO `json:"constraints"`
	Allocations []allocationDTO `json:"allocations"`
}

type defaultRuleDTO struct {
	Name        string          `json:"name"`
	Allocations []allocationDTO `json:"allocations"`
}

type constraintDTO struct {
	ContextField string          `json:"contextField"`
	Operator     string          `json:"operator"`
	Type         string          `json:"type"`
	Value        json.RawMessage `json:"value"`
}

type allocationDTO struct {
	Variant    string `json:"variant"`
	Percentage int    `json:"percentage"`
}

type variantDTO struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

func (d *documentDTO) toDocument() (*Document, error) {
	fieldTypes, err := parseFieldTypes(d.ContextFieldTypes)
	if err != nil {
		return nil, err
	}

	features := make([]ruleengine.Feature, 0, len(d.Features))
	seen := make(map[string]struct{}, len(d.Features))
	for i := range d.Features {
		f := &d.Features[i]
		if _, dup := seen[f.Key]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateFeature, f.Key)
		}
		seen[f.Key] = struct{}{}

		feature, err := f.toFeature(fieldTypes)
		if err != nil {
			return nil, fmt.Errorf("feature %q: %w", f.Key, err)
		}
		features = append(features, feature)
	}

	var updatedAt time.Time
	if d.UpdatedAt != nil {
		updatedAt = d.UpdatedAt.UTC()
	}

	return &Document{
		FlagSet:    ruleengine.NewFlagSet(features, fieldTypes, updatedAt),
		FieldTypes: fieldTypes,
		UpdatedAt:  updatedAt,
	}, nil
}

func parseFieldTypes(in map[string]string) (ruleengine.FieldTypes, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make(ruleengine.FieldTypes, len(in))
	for field, name := range in {
		kind, err := ruleengine.ParseKind(name)
		if err != nil {
			return nil, fmt.Errorf("context field %q: %w", field, err)
		}
		out[field] = kind
	}
	return out, nil
}

func (f *featureDTO) toFeature(fieldTypes ruleengine.FieldTypes) (ruleengine.Feature, error) {
	var declared ruleengine.Kind
	if f.Type != "" {
		k, err := ruleengine.ParseKind(f.Type)
		if err != nil {
			return ruleengine.Feature{}, err
		}
		declared = k
	}

	out := ruleengine.Feature{
		Key:               f.Key,
		Enabled:           f.Enabled,
		RolloutPercentage: f.RolloutPercentage,
		Type:              declared,
		Rules:             make([]ruleengine.Rule, 0, len(f.Rules)),
		Variants:          make([]ruleengine.Variant, 0, len(f.Variants)),
	}
	if f.UpdatedAt != nil {
		out.UpdatedAt = f.UpdatedAt.UTC()
	}

	for _, v := range f.Variants {
		value, err := decodeValue(v.Value, declared)
		if err != nil {
			return ruleengine.Feature{}, fmt.Errorf("variant %q: %w", v.Key, err)
		}
		out.Variants = append(out.Variants, ruleengine.Variant{Key: v.Key, Value: value})
	}

	for _, r := range f.Rules {
		rule := ruleengine.Rule{
			Name:        r.Name,
			Constraints: make([]ruleengine.Constraint, 0, len(r.Constraints)),
			Allocations: toAllocations(r.Allocations),
		}
		for _, c := range r.Constraints {
			constraint, err := c.toConstraint(fieldTypes)
			if err != nil {
				return ruleengine.Feature{}, fmt.Errorf("rule %q: %w", r.Name, err)
			}
			rule.Constraints = append(rule.Constraints, constraint)
		}
		out.Rules = append(out.Rules, rule)
	}

	if f.DefaultRule != nil {
		out.DefaultRule = &ruleengine.DefaultRule{
			Name:        f.DefaultRule.Name,
			Allocations: toAllocations(f.DefaultRule.Allocations),
		}
	}

	return out, nil
}

// toConstraint types the constraint value. The explicit "type" wins over the
// context-field registry.
func (c *constraintDTO) toConstraint(fieldTypes ruleengine.FieldTypes) (ruleengine.Constraint, error) {
	declared := fieldTypes.Lookup(c.ContextField)
	if c.Type != "" {
		k, err := ruleengine.ParseKind(c.Type)
		if err != nil {
			return ruleengine.Constraint{}, err
		}
		declared = k
	}

	value, err := decodeValue(c.Value, declared)
	if err != nil {
		return ruleengine.Constraint{}, fmt.Errorf("constraint on %q: %w", c.ContextField, err)
	}

	return ruleengine.Constraint{
		ContextField: c.ContextField,
		Operator:     ruleengine.Operator(c.Operator),
		Value:        value,
	}, nil
}

func toAllocations(in []allocationDTO) []ruleengine.Allocation {
	out := make([]ruleengine.Allocation, len(in))
	for i, a := range in {
		out[i] = ruleengine.Allocation{Variant: a.Variant, Percentage: a.Percentage}
	}
	return out
}
