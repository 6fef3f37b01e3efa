// internal/rules/condition.go
package rules

import (
	"fmt"
	"strings"

	"github.com/solatis/envboot/internal/types"
)

/*
 * Structured match conditions.
 *
 * A condition names a fact by dotted path and compares it with a literal:
 *
 *   accountTier             env field
 *   attributes.region       env attribute
 *   session.prefs.quality   preference written earlier in the session
 *   session.flags           flags enabled earlier in the session
 *   session.applied         rule ids applied earlier in the session
 *
 * Paths are resolved against the same activation map the CEL evaluator
 * sees, so a match block and a `when` expression can never disagree about
 * what a fact is. A missing fact resolves to nil.
 */

// Condition is a compiled structured condition.
type Condition struct {
	Path     []string
	Operator Operator
	Value    any
}

// MatchPredicate combines conditions: all of All and, when Any is
// non-empty, at least one of Any.
type MatchPredicate struct {
	All []Condition
	Any []Condition
}

var knownRoots = map[string]bool{
	"accountTier":  true,
	"locale":       true,
	"featureFlags": true,
	"sessionId":    true,
	"installId":    true,
	"platform":     true,
	"accountEmail": true,
	"attributes":   true,
	"session":      true,
}

// CompileCondition validates a condition spec.
func CompileCondition(spec types.ConditionSpec) (Condition, error) {
	fact := strings.TrimSpace(spec.Fact)
	if fact == "" {
		return Condition{}, fmt.Errorf("condition: empty fact")
	}
	path := strings.Split(fact, ".")
	if !knownRoots[path[0]] {
		return Condition{}, fmt.Errorf("condition: unknown fact %q", fact)
	}
	for _, seg := range path {
		if seg == "" {
			return Condition{}, fmt.Errorf("condition: malformed fact %q", fact)
		}
	}

	op, err := ParseOperator(spec.Operator)
	if err != nil {
		return Condition{}, fmt.Errorf("condition %s: %w", fact, err)
	}

	value := normalizeValue(spec.Value)
	switch op {
	case OpExists:
		if value != nil {
			return Condition{}, fmt.Errorf("condition %s: exists takes no value", fact)
		}
	case OpIn, OpNotIn:
		if _, ok := value.([]any); !ok {
			return Condition{}, fmt.Errorf("condition %s: %s requires a list value", fact, op)
		}
	case OpLt, OpLte, OpGt, OpGte:
		if _, ok := toFloat64(value); !ok {
			return Condition{}, fmt.Errorf("condition %s: %s requires a numeric value", fact, op)
		}
	case OpPrefix, OpSuffix:
		if _, ok := value.(string); !ok {
			return Condition{}, fmt.Errorf("condition %s: %s requires a string value", fact, op)
		}
	case OpEq, OpNeq:
		if isSetFact(path) {
			return Condition{}, fmt.Errorf("condition %s: use contains on set facts", fact)
		}
		if value == nil {
			return Condition{}, fmt.Errorf("condition %s: %s requires a value", fact, op)
		}
	case OpContains:
		if value == nil {
			return Condition{}, fmt.Errorf("condition %s: contains requires a value", fact)
		}
	}
	return Condition{Path: path, Operator: op, Value: value}, nil
}

func isSetFact(path []string) bool {
	if len(path) == 1 && path[0] == "featureFlags" {
		return true
	}
	return len(path) == 2 && path[0] == "session" && (path[1] == "flags" || path[1] == "applied")
}

// normalizeValue turns YAML list shapes into []any and ints into float64.
func normalizeValue(v any) any {
	switch x := v.(type) {
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = normalizeValue(e)
		}
		return out
	case int:
		return float64(x)
	case int64:
		return float64(x)
	default:
		return v
	}
}

// Resolve walks path through the activation map.
func Resolve(path []string, activation map[string]any) (any, bool) {
	var current any = activation
	for _, seg := range path {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// Matches resolves the fact and applies the operator.
func (c Condition) Matches(activation map[string]any) bool {
	value, _ := Resolve(c.Path, activation)
	return Compare(c.Operator, value, c.Value)
}

func (c Condition) String() string {
	return fmt.Sprintf("%s %s %v", strings.Join(c.Path, "."), c.Operator, c.Value)
}

// Match implements Predicate.
func (m MatchPredicate) Match(env types.Environment, view SessionView) (bool, error) {
	activation := Activation(env, view)
	for _, c := range m.All {
		if !c.Matches(activation) {
			return false, nil
		}
	}
	if len(m.Any) == 0 {
		return true, nil
	}
	for _, c := range m.Any {
		if c.Matches(activation) {
			return true, nil
		}
	}
	return false, nil
}

func compileMatch(spec *types.MatchSpec) (MatchPredicate, error) {
	var mp MatchPredicate
	if len(spec.All) == 0 && len(spec.Any) == 0 {
		return mp, fmt.Errorf("match: no conditions")
	}
	for _, cs := range spec.All {
		c, err := CompileCondition(cs)
		if err != nil {
			return mp, err
		}
		mp.All = append(mp.All, c)
	}
	for _, cs := range spec.Any {
		c, err := CompileCondition(cs)
		if err != nil {
			return mp, err
		}
		mp.Any = append(mp.Any, c)
	}
	return mp, nil
}
