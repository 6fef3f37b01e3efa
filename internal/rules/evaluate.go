// internal/rules/evaluate.go
package rules

import (
	"fmt"

	"github.com/solatis/envboot/internal/types"
)

/*
 * Rule evaluation.
 *
 * Evaluate never panics and never aborts a pass. A predicate that errors or
 * panics yields (false, *PredicateError); the dispatcher records the rule
 * Skipped with that error and moves on to the next rule.
 *
 * Ordering and same-pass visibility are not handled here: callers iterate
 * Registry.ForPhase and dispatch each matched rule before evaluating the
 * next, so the session view already reflects earlier rules.
 */

// Evaluate runs rule's predicate against env and view.
func Evaluate(rule *Rule, env types.Environment, view SessionView) (matched bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			matched = false
			err = &types.PredicateError{RuleID: rule.ID, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	if rule.Predicate == nil {
		return false, &types.PredicateError{RuleID: rule.ID, Err: fmt.Errorf("no predicate")}
	}
	ok, perr := rule.Predicate.Match(env, view)
	if perr != nil {
		return false, &types.PredicateError{RuleID: rule.ID, Err: perr}
	}
	return ok, nil
}
