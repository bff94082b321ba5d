package ruleengine

import (
	"errors"
	"fmt"
	"log/slog"
)

// CachedResult is what the evaluation cache memoizes for a flag key.
type CachedResult struct {
	Value   Value
	Variant string
}

// ResultCache memoizes evaluation results per flag key.
//
// Entries are stamped with the cache generation observed when the evaluation
// started; InvalidateAll bumps the generation so results computed against a
// replaced snapshot or context are dropped instead of being published.
type ResultCache interface {
	Get(flagKey string) (CachedResult, bool)
	Put(flagKey string, generation uint64, result CachedResult)
	Generation() uint64
	InvalidateAll()
}

// Engine is the orchestrator for feature flag evaluation.
type Engine struct {
	logger     *slog.Logger // Dedicated logger instance (DI)
	cache      ResultCache
	fieldTypes FieldTypes
}

// Option configures an Engine.
type Option func(*Engine)

// WithCache memoizes results in c. Without it every call is recomputed.
func WithCache(c ResultCache) Option {
	return func(e *Engine) { e.cache = c }
}

// WithFieldTypes sets a static context-field registry. Entries here take
// precedence over the registry shipped with each FlagSet.
func WithFieldTypes(types FieldTypes) Option {
	return func(e *Engine) { e.fieldTypes = types }
}

// New creates a new Engine.
// If logger is nil, it defaults to slog.Default().
func New(logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// InvalidateCache drops every memoized result. It is a no-op without a cache.
func (e *Engine) InvalidateCache() {
	if e.cache != nil {
		e.cache.InvalidateAll()
	}
}

// CacheGeneration returns the current cache generation (0 without a cache).
// Callers that load the snapshot and context themselves read it first and
// pass it to EvaluateAt.
func (e *Engine) CacheGeneration() uint64 {
	if e.cache == nil {
		return 0
	}
	return e.cache.Generation()
}

// Evaluate resolves flagKey for ctx against set. The kind of def selects the
// requested result type. It never panics: every failure yields def plus a Reason.
func (e *Engine) Evaluate(flagKey string, def Value, set *FlagSet, ctx Context) Result {
	return e.EvaluateAt(e.CacheGeneration(), flagKey, def, set, ctx)
}

// EvaluateAt is Evaluate with an explicit cache generation. Results are only
// memoized if the cache is still at that generation.
func (e *Engine) EvaluateAt(generation uint64, flagKey string, def Value, set *FlagSet, ctx Context) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("flag evaluation panicked",
				slog.String("flag_key", flagKey),
				slog.Any("panic", r),
			)
			res = fallback(def, ReasonError, fmt.Sprintf("internal error: %v", r))
		}
	}()

	want := def.Kind()
	if !want.Valid() {
		return fallback(def, ReasonUnknown, ErrUnknownKind.Error())
	}

	// 1. Cache
	if e.cache != nil {
		if cached, ok := e.cache.Get(flagKey); ok && cached.Value.Kind() == want {
			e.logger.Debug("evaluation cache hit", slog.String("flag_key", flagKey))
			return Result{Value: cached.Value, Variant: cached.Variant, Reason: ReasonCached}
		}
	}

	res = e.resolve(flagKey, def, want, set, ctx)

	if e.cache != nil && res.Reason.cacheable() {
		e.cache.Put(flagKey, generation, CachedResult{Value: res.Value, Variant: res.Variant})
	}
	return res
}

// resolve runs the evaluation state machine, minus the cache.
func (e *Engine) resolve(flagKey string, def Value, want Kind, set *FlagSet, ctx Context) Result {
	// 2. Missing data
	feature, ok := set.Feature(flagKey)
	if !ok || ctx.TargetingKey == "" {
		return fallback(def, ReasonDefault, "")
	}

	// 3. Kill switch
	if !feature.Enabled {
		return fallback(def, ReasonDisabled, "")
	}

	// 4. Rollout gate
	gate, err := Select(Bucket(flagKey, ctx.TargetingKey), rolloutAllocation(feature.Rollout()))
	if err != nil {
		e.logger.Warn("invalid rollout percentage",
			slog.String("flag_key", flagKey),
			slog.Int("rollout", feature.Rollout()),
		)
		return fallback(def, ReasonDefault, err.Error())
	}
	if gate == rolloutOff {
		return fallback(def, ReasonSplit, "")
	}

	types := set.FieldTypes
	if len(e.fieldTypes) > 0 {
		types = types.Merge(e.fieldTypes)
	}

	// 5. Rules, first match wins
	for i := range feature.Rules {
		rule := &feature.Rules[i]
		if !MatchRule(rule, ctx, types) {
			continue
		}

		res := e.allocate(feature, rule.Name, rule.Allocations, def, want, ctx, ReasonTargetingMatch)
		setMeta(&res, MetaRule, rule.Name)
		return res
	}

	// 6. Default rule
	if feature.DefaultRule != nil {
		return e.allocate(feature, feature.DefaultRule.Name, feature.DefaultRule.Allocations, def, want, ctx, ReasonDefaultTargetingMatch)
	}

	// 7. Nothing applies
	return fallback(def, ReasonDefault, "")
}

// allocate buckets the targeting key within a rule and resolves the variant.
// An unusable allocation list does not fall through to later rules.
func (e *Engine) allocate(feature *Feature, ruleName string, allocations []Allocation, def Value, want Kind, ctx Context, success Reason) Result {
	variantKey, err := Select(Bucket(feature.Key, ruleName, ctx.TargetingKey), allocations)
	if err != nil {
		e.logger.Warn("rule allocation rejected",
			slog.String("flag_key", feature.Key),
			slog.String("rule", ruleName),
			slog.String("error", err.Error()),
		)
		return fallback(def, ReasonDefault, err.Error())
	}

	value, err := ResolveVariant(feature.Variants, variantKey, want)
	if err != nil {
		if !errors.Is(err, ErrTypeMismatch) {
			return fallback(def, ReasonUnknown, err.Error())
		}
		e.logger.Warn("variant type mismatch",
			slog.String("flag_key", feature.Key),
			slog.String("variant", variantKey),
			slog.String("error", err.Error()),
		)
		return fallback(def, ReasonError, err.Error())
	}

	return Result{Value: value, Variant: variantKey, Reason: success}
}

func fallback(def Value, reason Reason, detail string) Result {
	res := Result{Value: def, Reason: reason}
	if detail != "" {
		res.Metadata = map[string]string{MetaError: detail}
	}
	return res
}

func setMeta(res *Result, key, value string) {
	if res.Metadata == nil {
		res.Metadata = make(map[string]string, 1)
	}
	res.Metadata[key] = value
}
