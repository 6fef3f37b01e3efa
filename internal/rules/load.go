// internal/rules/load.go
package rules

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/solatis/envboot/internal/types"
)

/*
 * YAML rule file loader.
 *
 * File shape:
 *
 *   rules:
 *     - id: vip-quality
 *       priority: 10
 *       phases: [load]
 *       applies_once: true
 *       when: 'env.accountTier == "vip"'
 *       action:
 *         set_preference: {key: quality, value: 4k}
 *
 * Unknown keys are rejected (KnownFields) so a misspelled field fails the
 * bootstrap instead of silently dropping a constraint.
 */

type fileDoc struct {
	Rules []fileRule `yaml:"rules"`
}

type fileRule struct {
	ID          string        `yaml:"id"`
	Name        string        `yaml:"name"`
	Priority    int           `yaml:"priority"`
	Phases      []types.Phase `yaml:"phases"`
	AppliesOnce bool          `yaml:"applies_once"`
	Scope       types.Scope   `yaml:"scope"`
	When        string        `yaml:"when"`
	Match       *fileMatch    `yaml:"match"`
	Action      fileAction    `yaml:"action"`
}

type fileMatch struct {
	All []fileCondition `yaml:"all"`
	Any []fileCondition `yaml:"any"`
}

type fileCondition struct {
	Fact  string `yaml:"fact"`
	Op    string `yaml:"op"`
	Value any    `yaml:"value"`
}

type fileAction struct {
	SetPreference *struct {
		Key   string `yaml:"key"`
		Value string `yaml:"value"`
	} `yaml:"set_preference"`
	LoadResource *struct {
		URLs      []string       `yaml:"urls"`
		Ordering  types.Ordering `yaml:"ordering"`
		CacheBust bool           `yaml:"cache_bust"`
	} `yaml:"load_resource"`
	ToggleVisibility *struct {
		Target  types.VisibilityTarget `yaml:"target"`
		Visible bool                   `yaml:"visible"`
	} `yaml:"toggle_visibility"`
	EnableFlag *struct {
		Flag string `yaml:"flag"`
	} `yaml:"enable_flag"`
	InstallPlugin *struct {
		URL         string `yaml:"url"`
		Name        string `yaml:"name"`
		Description string `yaml:"description"`
		Status      int    `yaml:"status"`
	} `yaml:"install_plugin"`
}

// Parse decodes a rule document into specs.
func Parse(r io.Reader) ([]types.RuleSpec, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc fileDoc
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidRule, err)
	}

	specs := make([]types.RuleSpec, 0, len(doc.Rules))
	for _, fr := range doc.Rules {
		specs = append(specs, fr.spec())
	}
	return specs, nil
}

// ParseFile reads and decodes path.
func ParseFile(path string) ([]types.RuleSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	return Parse(bytes.NewReader(data))
}

// Build compiles specs, registers them in order and seals the registry.
// Any error aborts the whole build.
func Build(specs []types.RuleSpec, cc *CELCompiler) (*Registry, error) {
	reg := NewRegistry()
	for _, spec := range specs {
		r, err := Compile(spec, cc)
		if err != nil {
			return nil, err
		}
		if err := reg.Register(r); err != nil {
			return nil, err
		}
	}
	reg.Seal()
	return reg, nil
}

// LoadFile parses, compiles and seals the rules in path.
func LoadFile(path string, cc *CELCompiler) (*Registry, error) {
	specs, err := ParseFile(path)
	if err != nil {
		return nil, err
	}
	return Build(specs, cc)
}

func (fr fileRule) spec() types.RuleSpec {
	spec := types.RuleSpec{
		ID:          fr.ID,
		Name:        fr.Name,
		Priority:    fr.Priority,
		Phases:      fr.Phases,
		AppliesOnce: fr.AppliesOnce,
		Scope:       fr.Scope,
		When:        fr.When,
	}
	if fr.Match != nil {
		spec.Match = &types.MatchSpec{
			All: conditionSpecs(fr.Match.All),
			Any: conditionSpecs(fr.Match.Any),
		}
	}

	a := fr.Action
	if s := a.SetPreference; s != nil {
		spec.Action.SetPreference = &types.SetPreferenceSpec{Key: s.Key, Value: s.Value}
	}
	if s := a.LoadResource; s != nil {
		spec.Action.LoadResource = &types.LoadResourceSpec{URLs: s.URLs, Ordering: s.Ordering, CacheBust: s.CacheBust}
	}
	if s := a.ToggleVisibility; s != nil {
		spec.Action.ToggleVisibility = &types.ToggleVisibilitySpec{Target: s.Target, Visible: s.Visible}
	}
	if s := a.EnableFlag; s != nil {
		spec.Action.EnableFlag = &types.EnableFlagSpec{Flag: s.Flag}
	}
	if s := a.InstallPlugin; s != nil {
		spec.Action.InstallPlugin = &types.Plugin{URL: s.URL, Name: s.Name, Description: s.Description, Status: s.Status}
	}
	return spec
}

func conditionSpecs(in []fileCondition) []types.ConditionSpec {
	out := make([]types.ConditionSpec, 0, len(in))
	for _, c := range in {
		out = append(out, types.ConditionSpec{Fact: c.Fact, Operator: c.Op, Value: c.Value})
	}
	return out
}
