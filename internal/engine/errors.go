package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/lemma/internal/compiler"
	"github.com/roach88/lemma/internal/ir"
)

// ErrShutdown is returned for work submitted to, or still queued in, a
// reasoner that is shutting down.
var ErrShutdown = errors.New("reasoner is shut down")

// RuntimeError represents an error detected while reasoning.
//
// Runtime errors include:
//   - Storage failures: a lookup, insert or delete against the store failed
//   - Unsafe rules: a head variable is not bound by the body
//   - Cycles: justification resolution revisited a fact on its own path
//   - Round limit: chaining did not reach a fixpoint within MaxRounds
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Fact is the affected fact, if any, in N-Quads form.
	Fact string

	// Rule is the affected rule name, if any.
	Rule string

	// Details contains additional context.
	Details map[string]string

	// Err is the underlying cause.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeStorage indicates the store failed during reasoning.
	ErrCodeStorage RuntimeErrorCode = "STORAGE_ERROR"

	// ErrCodeUnsafeRule indicates a rule whose head is not bound by its body.
	ErrCodeUnsafeRule RuntimeErrorCode = "UNSAFE_RULE"

	// ErrCodeCycleDetected indicates justification resolution found a cycle
	// and no well-founded alternative.
	ErrCodeCycleDetected RuntimeErrorCode = "CYCLE_DETECTED"

	// ErrCodeRoundsExceeded indicates chaining exceeded the round limit.
	ErrCodeRoundsExceeded RuntimeErrorCode = "ROUNDS_EXCEEDED"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Rule != "" {
		msg += fmt.Sprintf(" (rule=%s)", e.Rule)
	}
	if e.Fact != "" {
		msg += fmt.Sprintf(" (fact=%s)", e.Fact)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

func hasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsStorageError returns true if the error is a storage failure.
// Uses errors.As to handle wrapped errors.
func IsStorageError(err error) bool {
	return hasCode(err, ErrCodeStorage)
}

// IsCycleError returns true if the error is a cycle detection error.
// Uses errors.As to handle wrapped errors.
func IsCycleError(err error) bool {
	return hasCode(err, ErrCodeCycleDetected)
}

// IsUnsafeRuleError returns true if the error rejects an unsafe rule.
func IsUnsafeRuleError(err error) bool {
	return hasCode(err, ErrCodeUnsafeRule)
}

// IsRoundsExceededError returns true if chaining hit the round limit.
// Matches both RuntimeError with ErrCodeRoundsExceeded and RoundsExceededError.
func IsRoundsExceededError(err error) bool {
	if hasCode(err, ErrCodeRoundsExceeded) {
		return true
	}
	var re *RoundsExceededError
	return errors.As(err, &re)
}

// NewStorageError wraps a store failure.
func NewStorageError(op string, err error) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeStorage,
		Message: op + " failed",
		Err:     err,
	}
}

// NewCycleError creates a RuntimeError for a resolution cycle through fact.
func NewCycleError(fact ir.FactKey) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeCycleDetected,
		Message: "justification resolution revisited a fact on its own path",
		Fact:    fact.String(),
	}
}

// NewUnsafeRuleError wraps a safety violation found by compiler.CheckRule.
func NewUnsafeRuleError(err *compiler.UnsafeRuleError) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeUnsafeRule,
		Message: "head variables not bound by body",
		Rule:    err.Rule,
		Err:     err,
	}
}

// storageErr wraps err as a storage error unless it already is a
// RuntimeError.
func storageErr(op string, err error) error {
	var re *RuntimeError
	if errors.As(err, &re) {
		return err
	}
	return NewStorageError(op, err)
}
