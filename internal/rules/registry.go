// internal/rules/registry.go
package rules

import (
	"fmt"
	"sort"
	"sync"

	"github.com/solatis/envboot/internal/types"
)

/*
 * Rule registry.
 *
 * Holds compiled rules in registration order and serves them sorted by
 * priority ascending. Ties keep registration order: sort.SliceStable over
 * the registration slice is the whole ordering contract.
 *
 * Lifecycle: populated at bootstrap, sealed before the first pass. A sealed
 * registry is read-only and safe for concurrent readers; the sorted view is
 * computed once at Seal.
 */

// Registry is an ordered, sealable rule set.
type Registry struct {
	mu     sync.RWMutex
	rules  []*Rule
	byID   map[types.RuleID]*Rule
	sorted []*Rule
	sealed bool
}

// NewRegistry returns an empty, unsealed registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[types.RuleID]*Rule)}
}

// Register adds r. Fails with ErrDuplicateID or ErrRegistrySealed.
func (reg *Registry) Register(r *Rule) error {
	if r == nil {
		return fmt.Errorf("%w: nil rule", types.ErrInvalidRule)
	}
	if r.Predicate == nil {
		return fmt.Errorf("%w: rule %s has no predicate", types.ErrInvalidRule, r.ID)
	}
	if err := r.Action.Validate(); err != nil {
		return fmt.Errorf("%w: rule %s: %v", types.ErrInvalidRule, r.ID, err)
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	if reg.sealed {
		return types.ErrRegistrySealed
	}
	if _, ok := reg.byID[r.ID]; ok {
		return fmt.Errorf("%w: %s", types.ErrDuplicateID, r.ID)
	}
	if len(reg.rules) >= types.MaxRules {
		return fmt.Errorf("%w: more than %d rules", types.ErrInvalidRule, types.MaxRules)
	}
	reg.rules = append(reg.rules, r)
	reg.byID[r.ID] = r
	reg.sorted = nil
	return nil
}

// Seal freezes the registry. Sealing twice is a no-op.
func (reg *Registry) Seal() {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if reg.sealed {
		return
	}
	reg.sorted = reg.sortedLocked()
	reg.sealed = true
}

// Sealed reports whether Seal was called.
func (reg *Registry) Sealed() bool {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return reg.sealed
}

// All returns rules by priority ascending, ties by registration order.
// The returned slice is a copy.
func (reg *Registry) All() []*Rule {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	if reg.sorted != nil {
		return append([]*Rule(nil), reg.sorted...)
	}
	return reg.sortedLocked()
}

// ForPhase returns the All() order filtered to rules participating in phase.
func (reg *Registry) ForPhase(phase types.Phase) []*Rule {
	all := reg.All()
	out := all[:0]
	for _, r := range all {
		if r.InPhase(phase) {
			out = append(out, r)
		}
	}
	return out
}

// Get returns the rule with id.
func (reg *Registry) Get(id types.RuleID) (*Rule, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	r, ok := reg.byID[id]
	return r, ok
}

// Len returns the number of registered rules.
func (reg *Registry) Len() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.rules)
}

func (reg *Registry) sortedLocked() []*Rule {
	out := append([]*Rule(nil), reg.rules...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority < out[j].Priority
	})
	return out
}
