package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for envboot operations.
var (
	// ErrDuplicateID indicates a rule id is already registered.
	ErrDuplicateID = errors.New("duplicate rule id")

	// ErrRegistrySealed indicates registration after the registry was sealed.
	ErrRegistrySealed = errors.New("registry is sealed")

	// ErrInvalidRule indicates a rule definition failed validation.
	ErrInvalidRule = errors.New("invalid rule")

	// ErrHostUnavailable indicates a bounded readiness poll gave up.
	ErrHostUnavailable = errors.New("host unavailable")

	// ErrUnknownTarget indicates a visibility target the host cannot resolve.
	ErrUnknownTarget = errors.New("unknown visibility target")

	// ErrInvalidTransition indicates a lifecycle transition that is not allowed.
	ErrInvalidTransition = errors.New("invalid lifecycle transition")

	// ErrCapabilityMissing indicates the host does not provide a capability an action needs.
	ErrCapabilityMissing = errors.New("host capability missing")
)

// PredicateError wraps a predicate failure. The rule is skipped, the pass continues.
type PredicateError struct {
	RuleID RuleID
	Err    error
}

func (e *PredicateError) Error() string {
	return fmt.Sprintf("predicate %s: %v", e.RuleID, e.Err)
}

func (e *PredicateError) Unwrap() error { return e.Err }

// ActionError wraps an action failure after retries were exhausted.
type ActionError struct {
	RuleID RuleID
	Action string
	Err    error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("action %s (%s): %v", e.RuleID, e.Action, e.Err)
}

func (e *ActionError) Unwrap() error { return e.Err }

// IsPredicateError reports whether err wraps a *PredicateError.
func IsPredicateError(err error) bool {
	var pe *PredicateError
	return errors.As(err, &pe)
}

// IsActionError reports whether err wraps an *ActionError.
func IsActionError(err error) bool {
	var ae *ActionError
	return errors.As(err, &ae)
}
