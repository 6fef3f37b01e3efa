// internal/rules/operators.go
package rules

import (
	"fmt"
	"strconv"
	"strings"
)

/*
 * Operator comparison logic for structured match conditions.
 *
 * Facts come from the Environment map and the session view: strings,
 * []any for sets (featureFlags, session.flags, session.applied) and
 * map[string]any for attributes/preferences. Condition values come from
 * YAML and may be strings, numbers, bools, or lists.
 *
 * Numeric comparison: numeric strings coerce to float64 so that a stored
 * preference "3" compares equal to a YAML literal 3.
 * Set facts: contains tests membership; eq/neq on a set compare against
 * the whole set and are rejected at compile time.
 */

// Operator enumerates condition operators.
type Operator int

const (
	OpUnspecified Operator = iota
	OpEq
	OpNeq
	OpLt
	OpLte
	OpGt
	OpGte
	OpPrefix
	OpSuffix
	OpIn
	OpNotIn
	OpContains
	OpExists
)

var operatorNames = map[string]Operator{
	"eq":       OpEq,
	"neq":      OpNeq,
	"lt":       OpLt,
	"lte":      OpLte,
	"gt":       OpGt,
	"gte":      OpGte,
	"prefix":   OpPrefix,
	"suffix":   OpSuffix,
	"in":       OpIn,
	"not_in":   OpNotIn,
	"contains": OpContains,
	"exists":   OpExists,
}

// ParseOperator maps a rule-file operator name to an Operator.
func ParseOperator(s string) (Operator, error) {
	op, ok := operatorNames[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return OpUnspecified, fmt.Errorf("unknown operator %q", s)
	}
	return op, nil
}

func (op Operator) String() string {
	for name, o := range operatorNames {
		if o == op {
			return name
		}
	}
	return "unspecified"
}

// Compare applies the operator to compare value against target.
// A nil value only satisfies OpNeq and OpNotIn.
func Compare(op Operator, value, target any) bool {
	switch op {
	case OpExists:
		return value != nil
	case OpEq:
		return compareEqual(value, target)
	case OpNeq:
		return !compareEqual(value, target)
	case OpLt:
		c, ok := compareNumeric(value, target)
		return ok && c < 0
	case OpLte:
		c, ok := compareNumeric(value, target)
		return ok && c <= 0
	case OpGt:
		c, ok := compareNumeric(value, target)
		return ok && c > 0
	case OpGte:
		c, ok := compareNumeric(value, target)
		return ok && c >= 0
	case OpPrefix:
		return comparePrefix(value, target)
	case OpSuffix:
		return compareSuffix(value, target)
	case OpIn:
		return value != nil && compareIn(value, target)
	case OpNotIn:
		return !compareIn(value, target)
	case OpContains:
		return compareContains(value, target)
	default:
		return false
	}
}

// compareEqual performs equality comparison with numeric coercion.
func compareEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if na, nb, ok := asNumbers(a, b); ok {
		return na == nb
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// compareNumeric performs three-way numeric comparison (-1/0/1).
// ok is false for incomparable types.
func compareNumeric(a, b any) (int, bool) {
	na, nb, ok := asNumbers(a, b)
	if !ok {
		return 0, false
	}
	switch {
	case na < nb:
		return -1, true
	case na > nb:
		return 1, true
	default:
		return 0, true
	}
}

func asNumbers(a, b any) (float64, float64, bool) {
	na, oka := toFloat64(a)
	nb, okb := toFloat64(b)
	return na, nb, oka && okb
}

// toFloat64 converts numeric types and numeric strings to float64.
// Whitespace-only strings are not numbers.
func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func comparePrefix(value, prefix any) bool {
	vs, ok1 := value.(string)
	ps, ok2 := prefix.(string)
	if !ok1 || !ok2 {
		return false
	}
	return strings.HasPrefix(vs, ps)
}

func compareSuffix(value, suffix any) bool {
	vs, ok1 := value.(string)
	ss, ok2 := suffix.(string)
	if !ok1 || !ok2 {
		return false
	}
	return strings.HasSuffix(vs, ss)
}

// compareIn checks if value is a member of set using equality semantics.
func compareIn(value, set any) bool {
	arr, ok := set.([]any)
	if !ok {
		return false
	}
	for _, elem := range arr {
		if compareEqual(value, elem) {
			return true
		}
	}
	return false
}

// compareContains checks set membership for list facts, key presence for
// map facts, and substring containment for string facts.
func compareContains(value, elem any) bool {
	switch v := value.(type) {
	case []any:
		return compareIn(elem, v)
	case []string:
		for _, s := range v {
			if compareEqual(s, elem) {
				return true
			}
		}
		return false
	case map[string]any:
		k, ok := elem.(string)
		if !ok {
			return false
		}
		_, found := v[k]
		return found
	case string:
		s, ok := elem.(string)
		return ok && strings.Contains(v, s)
	default:
		return false
	}
}
