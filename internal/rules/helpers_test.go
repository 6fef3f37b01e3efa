// internal/rules/helpers_test.go
package rules

import (
	"github.com/solatis/envboot/internal/types"
)

// fakeView is a static SessionView.
type fakeView struct {
	applied map[types.RuleID]bool
	prefs   map[string]string
	flags   []string
}

func (v *fakeView) Applied(id types.RuleID) bool { return v.applied[id] }

func (v *fakeView) AppliedIDs() []types.RuleID {
	ids := make([]types.RuleID, 0, len(v.applied))
	for id := range v.applied {
		ids = append(ids, id)
	}
	return ids
}

func (v *fakeView) Preference(key string) (string, bool) {
	val, ok := v.prefs[key]
	return val, ok
}

func (v *fakeView) Preferences() map[string]string {
	out := make(map[string]string, len(v.prefs))
	for k, val := range v.prefs {
		out[k] = val
	}
	return out
}

func (v *fakeView) Flags() []string { return append([]string(nil), v.flags...) }

func testEnv(tier string) types.Environment {
	return types.NewEnvironment(types.EnvironmentInput{
		AccountTier:  tier,
		Locale:       "ru_RU",
		FeatureFlags: []string{"beta"},
		SessionID:    "sess-1",
		Platform:     "webos",
		Attributes:   map[string]string{"region": "eu"},
	})
}

func mustRule(id string, priority int) *Rule {
	return &Rule{
		ID:        types.RuleID(id),
		Name:      id,
		Priority:  priority,
		Scope:     types.ScopeSession,
		Predicate: Always,
		Action:    SetPreference("k", id),
	}
}
