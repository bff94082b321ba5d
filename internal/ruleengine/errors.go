package ruleengine

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidAllocation is the configuration error raised when an allocation
	// list is empty, has negative shares, or does not sum to 100.
	ErrInvalidAllocation = errors.New("invalid allocation")

	// ErrTypeMismatch signals that a variant is missing or its shape does not
	// match the requested kind.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrUnknownKind is returned for unsupported kind names or requests.
	ErrUnknownKind = errors.New("unknown kind")

	// ErrHeterogeneousArray is returned when array elements differ in kind.
	ErrHeterogeneousArray = errors.New("array elements must share one scalar kind")
)

// TypeMismatchError describes why a variant could not be resolved.
type TypeMismatchError struct {
	Variant string
	Want    Kind
	Got     Kind
	Missing bool
	Cause   error
}

func (e *TypeMismatchError) Error() string {
	if e.Missing {
		return fmt.Sprintf("variant %q not found", e.Variant)
	}
	msg := fmt.Sprintf("variant %q holds %s, requested %s", e.Variant, e.Got, e.Want)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Is makes errors.Is(err, ErrTypeMismatch) hold for every TypeMismatchError.
func (e *TypeMismatchError) Is(target error) bool {
	return target == ErrTypeMismatch
}

func (e *TypeMismatchError) Unwrap() error {
	return e.Cause
}
