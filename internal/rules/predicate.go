// internal/rules/predicate.go
package rules

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/solatis/envboot/internal/types"
)

/*
 * Rule predicates.
 *
 * A predicate is a pure function of the Environment snapshot and the
 * session view. Three forms exist:
 *
 *   - CELPredicate: a `when` expression compiled once at load time against
 *     variables `env` and `session`, with a runtime cost limit so a rule
 *     file cannot stall a pass.
 *   - MatchPredicate: structured conditions (condition.go).
 *   - PredicateFunc: Go closures for programmatically registered rules.
 *
 * The session view is read-only here; only the dispatcher mutates it.
 */

// DefaultCELCostLimit bounds the runtime cost of one predicate evaluation.
const DefaultCELCostLimit = 10000

// SessionView is the dispatcher-owned state predicates may observe.
type SessionView interface {
	Applied(id types.RuleID) bool
	AppliedIDs() []types.RuleID
	Preference(key string) (string, bool)
	Preferences() map[string]string
	Flags() []string
}

// Predicate decides whether a rule fires.
type Predicate interface {
	Match(env types.Environment, view SessionView) (bool, error)
}

// PredicateFunc adapts a function to Predicate.
type PredicateFunc func(env types.Environment, view SessionView) (bool, error)

func (f PredicateFunc) Match(env types.Environment, view SessionView) (bool, error) {
	return f(env, view)
}

// Always matches every environment.
var Always Predicate = PredicateFunc(func(types.Environment, SessionView) (bool, error) {
	return true, nil
})

// Activation builds the variable map shared by CEL and structured
// conditions: env fields at the root plus a "session" subtree.
func Activation(env types.Environment, view SessionView) map[string]any {
	m := env.Map()
	m["session"] = sessionMap(view)
	return m
}

func sessionMap(view SessionView) map[string]any {
	applied := []any{}
	prefs := map[string]any{}
	flags := []any{}
	if view != nil {
		ids := view.AppliedIDs()
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids {
			applied = append(applied, string(id))
		}
		for k, v := range view.Preferences() {
			prefs[k] = v
		}
		fs := view.Flags()
		sort.Strings(fs)
		for _, f := range fs {
			flags = append(flags, f)
		}
	}
	return map[string]any{
		"applied": applied,
		"prefs":   prefs,
		"flags":   flags,
	}
}

// CELCompiler compiles `when` expressions. Safe for concurrent use once built.
type CELCompiler struct {
	env       *cel.Env
	costLimit uint64
}

// NewCELCompiler creates a compiler; costLimit 0 uses DefaultCELCostLimit.
func NewCELCompiler(costLimit uint64) (*CELCompiler, error) {
	if costLimit == 0 {
		costLimit = DefaultCELCostLimit
	}
	env, err := cel.NewEnv(
		cel.Variable("env", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("session", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL env: %w", err)
	}
	return &CELCompiler{env: env, costLimit: costLimit}, nil
}

// CELPredicate is a compiled `when` expression.
type CELPredicate struct {
	Expr    string
	program cel.Program
}

// Compile parses and type-checks expr. The result type must be bool (or
// dyn, checked again at evaluation).
func (c *CELCompiler) Compile(expr string) (*CELPredicate, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("empty expression")
	}
	ast, issues := c.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL compile error: %w", issues.Err())
	}
	switch ast.OutputType().String() {
	case "bool", "dyn":
	default:
		return nil, fmt.Errorf("expression must evaluate to bool, got %s", ast.OutputType())
	}
	prg, err := c.env.Program(ast, cel.CostLimit(c.costLimit))
	if err != nil {
		return nil, fmt.Errorf("CEL program error: %w", err)
	}
	return &CELPredicate{Expr: expr, program: prg}, nil
}

// Match implements Predicate.
func (p *CELPredicate) Match(env types.Environment, view SessionView) (bool, error) {
	activation := Activation(env, view)
	session := activation["session"]
	delete(activation, "session")

	out, _, err := p.program.Eval(map[string]any{
		"env":     activation,
		"session": session,
	})
	if err != nil {
		return false, fmt.Errorf("CEL eval error: %w", err)
	}
	matched, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("result not boolean")
	}
	return matched, nil
}

// allOf is the conjunction used when a rule has both `when` and `match`.
type allOf []Predicate

func (a allOf) Match(env types.Environment, view SessionView) (bool, error) {
	for _, p := range a {
		ok, err := p.Match(env, view)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}
