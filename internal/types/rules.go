// internal/types/rules.go
package types

/*
 * Declarative rule definitions.
 *
 * RuleSpec and ActionSpec are the format-agnostic input to rules.Compile.
 * The YAML loader and programmatic callers both produce these; compilation
 * validates them and builds predicates.
 *
 * Exactly one predicate form may be set (When or Match; neither means
 * "always"), and exactly one ActionSpec field must be set.
 */

// RuleSpec is an uncompiled rule definition.
type RuleSpec struct {
	ID          string
	Name        string
	Priority    int
	Phases      []Phase
	AppliesOnce bool
	Scope       Scope
	When        string     // CEL expression over env and session
	Match       *MatchSpec // structured conditions
	Action      ActionSpec
}

// MatchSpec holds structured conditions: every All condition and, when Any is
// non-empty, at least one Any condition must hold.
type MatchSpec struct {
	All []ConditionSpec
	Any []ConditionSpec
}

// ConditionSpec compares the value at Fact (a dotted path such as
// "accountTier" or "session.prefs.source") against Value.
type ConditionSpec struct {
	Fact     string
	Operator string
	Value    any
}

// ActionSpec selects one action.
type ActionSpec struct {
	SetPreference    *SetPreferenceSpec
	LoadResource     *LoadResourceSpec
	ToggleVisibility *ToggleVisibilitySpec
	EnableFlag       *EnableFlagSpec
	InstallPlugin    *Plugin
}

type SetPreferenceSpec struct {
	Key   string
	Value string
}

type LoadResourceSpec struct {
	URLs      []string
	Ordering  Ordering
	CacheBust bool
}

type ToggleVisibilitySpec struct {
	Target  VisibilityTarget
	Visible bool
}

type EnableFlagSpec struct {
	Flag string
}
