// internal/rules/compile.go
package rules

import (
	"fmt"
	"slices"

	"github.com/solatis/envboot/internal/types"
)

/*
 * Rule compilation and validation.
 *
 * Compiles types.RuleSpec to Rule with a ready-to-run predicate and a
 * validated action descriptor.
 *
 * Compilation workflow:
 *   1. Validate id, phases, scope
 *   2. Compile the predicate (CEL `when`, structured `match`, or Always)
 *   3. Validate the action
 *
 * Why compile-time validation: a rule file with a typo must fail at
 * bootstrap, not silently skip its rule on every pass.
 *
 * Scope without appliesOnce is rejected: an installation-scoped mark on a
 * rule that fires every pass would be written and never read.
 */

// Rule is a compiled, immutable rule.
type Rule struct {
	ID          types.RuleID
	Name        string
	Priority    int
	Phases      []types.Phase // empty means every phase
	AppliesOnce bool
	Scope       types.Scope
	Predicate   Predicate
	Action      Action
}

// InPhase reports whether the rule participates in phase.
func (r *Rule) InPhase(phase types.Phase) bool {
	return len(r.Phases) == 0 || slices.Contains(r.Phases, phase)
}

// Compile validates spec and builds a Rule. cc may be nil when spec has no
// `when` expression.
func Compile(spec types.RuleSpec, cc *CELCompiler) (*Rule, error) {
	id, err := types.ParseRuleID(spec.ID)
	if err != nil {
		return nil, err
	}

	phases, err := compilePhases(spec.Phases)
	if err != nil {
		return nil, fmt.Errorf("%w: rule %s: %v", types.ErrInvalidRule, id, err)
	}

	scope := spec.Scope
	switch scope {
	case "":
		scope = types.ScopeSession
	case types.ScopeSession:
	case types.ScopeInstallation:
		if !spec.AppliesOnce {
			return nil, fmt.Errorf("%w: rule %s: scope installation requires applies_once", types.ErrInvalidRule, id)
		}
	default:
		return nil, fmt.Errorf("%w: rule %s: unknown scope %q", types.ErrInvalidRule, id, spec.Scope)
	}

	pred, err := compilePredicate(spec, cc)
	if err != nil {
		return nil, fmt.Errorf("%w: rule %s: %v", types.ErrInvalidRule, id, err)
	}

	action, err := actionFromSpec(spec.Action)
	if err != nil {
		return nil, fmt.Errorf("%w: rule %s: %v", types.ErrInvalidRule, id, err)
	}

	name := spec.Name
	if name == "" {
		name = string(id)
	}

	return &Rule{
		ID:          id,
		Name:        name,
		Priority:    spec.Priority,
		Phases:      phases,
		AppliesOnce: spec.AppliesOnce,
		Scope:       scope,
		Predicate:   pred,
		Action:      action,
	}, nil
}

func compilePhases(in []types.Phase) ([]types.Phase, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make([]types.Phase, 0, len(in))
	for _, p := range in {
		if _, err := types.ParsePhase(string(p)); err != nil {
			return nil, fmt.Errorf("unknown phase %q", p)
		}
		if !slices.Contains(out, p) {
			out = append(out, p)
		}
	}
	return out, nil
}

func compilePredicate(spec types.RuleSpec, cc *CELCompiler) (Predicate, error) {
	var preds []Predicate
	if spec.When != "" {
		if cc == nil {
			return nil, fmt.Errorf("when expression given without a CEL compiler")
		}
		p, err := cc.Compile(spec.When)
		if err != nil {
			return nil, fmt.Errorf("when: %w", err)
		}
		preds = append(preds, p)
	}
	if spec.Match != nil {
		m, err := compileMatch(spec.Match)
		if err != nil {
			return nil, err
		}
		preds = append(preds, m)
	}
	switch len(preds) {
	case 0:
		return Always, nil
	case 1:
		return preds[0], nil
	default:
		return allOf(preds), nil
	}
}
