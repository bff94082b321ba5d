package ruleengine

// Reason explains how an evaluation result was produced.
type Reason string

const (
	ReasonStatic                Reason = "STATIC"
	ReasonDefault               Reason = "DEFAULT"
	ReasonTargetingMatch        Reason = "TARGETING_MATCH"
	ReasonDefaultTargetingMatch Reason = "DEFAULT_TARGETING_MATCH"
	ReasonSplit                 Reason = "SPLIT"
	ReasonCached                Reason = "CACHED"
	ReasonDisabled              Reason = "DISABLED"
	ReasonUnknown               Reason = "UNKNOWN"
	ReasonStale                 Reason = "STALE"
	ReasonError                 Reason = "ERROR"
)

// Reasons lists every reason code, in declaration order.
var Reasons = []Reason{
	ReasonStatic,
	ReasonDefault,
	ReasonTargetingMatch,
	ReasonDefaultTargetingMatch,
	ReasonSplit,
	ReasonCached,
	ReasonDisabled,
	ReasonUnknown,
	ReasonStale,
	ReasonError,
}

// cacheable reports whether a result with this reason may be memoized.
// Errors are recomputed so a fixed snapshot can recover without invalidation.
func (r Reason) cacheable() bool {
	switch r {
	case ReasonError, ReasonUnknown, ReasonCached:
		return false
	default:
		return true
	}
}

// Metadata keys attached to results.
const (
	MetaError          = "error"
	MetaRule           = "rule"
	MetaResolvedReason = "resolved_reason"
)

// Result is the untyped outcome of an evaluation.
type Result struct {
	Value    Value
	Variant  string
	Reason   Reason
	Metadata map[string]string
}

// EvaluationResult is the typed outcome handed to the host application.
type EvaluationResult[T any] struct {
	Value    T
	Variant  string
	Reason   Reason
	Metadata map[string]string
}
