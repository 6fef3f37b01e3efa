// internal/rules/registry_test.go
package rules

import (
	"errors"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/solatis/envboot/internal/types"
)

func TestRegistry_DuplicateID(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(mustRule("a", 0)); err != nil {
		t.Fatalf("Register() error = %v, want nil", err)
	}
	err := reg.Register(mustRule("a", 5))
	if !errors.Is(err, types.ErrDuplicateID) {
		t.Errorf("Register() error = %v, want ErrDuplicateID", err)
	}
	if reg.Len() != 1 {
		t.Errorf("Len() = %d, want 1", reg.Len())
	}
}

func TestRegistry_SealRejectsRegistration(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(mustRule("a", 0)); err != nil {
		t.Fatalf("Register() error = %v, want nil", err)
	}
	reg.Seal()
	reg.Seal()

	if !reg.Sealed() {
		t.Fatal("Sealed() = false, want true")
	}
	err := reg.Register(mustRule("b", 0))
	if !errors.Is(err, types.ErrRegistrySealed) {
		t.Errorf("Register() error = %v, want ErrRegistrySealed", err)
	}
	if _, ok := reg.Get("b"); ok {
		t.Error("Get(b) found rule registered after seal")
	}
}

func TestRegistry_RejectsInvalidAction(t *testing.T) {
	reg := NewRegistry()
	r := mustRule("a", 0)
	r.Action = LoadResource(types.OrderingParallel)
	if err := reg.Register(r); !errors.Is(err, types.ErrInvalidRule) {
		t.Errorf("Register() error = %v, want ErrInvalidRule", err)
	}
}

func TestRegistry_ForPhase(t *testing.T) {
	reg := NewRegistry()
	load := mustRule("load-only", 1)
	load.Phases = []types.Phase{types.PhaseLoad}
	every := mustRule("every", 2)
	ready := mustRule("ready-only", 0)
	ready.Phases = []types.Phase{types.PhaseReady}
	for _, r := range []*Rule{load, every, ready} {
		if err := reg.Register(r); err != nil {
			t.Fatalf("Register() error = %v, want nil", err)
		}
	}
	reg.Seal()

	got := ids(reg.ForPhase(types.PhaseLoad))
	want := []types.RuleID{"load-only", "every"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("ForPhase(load) = %v, want %v", got, want)
	}

	got = ids(reg.ForPhase(types.PhaseReady))
	want = []types.RuleID{"ready-only", "every"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("ForPhase(ready) = %v, want %v", got, want)
	}

	// ForPhase must not disturb the sealed order.
	got = ids(reg.All())
	want = []types.RuleID{"ready-only", "load-only", "every"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("All() = %v, want %v", got, want)
	}
}

func ids(rules []*Rule) []types.RuleID {
	out := make([]types.RuleID, len(rules))
	for i, r := range rules {
		out[i] = r.ID
	}
	return out
}

func TestRegistry_StableOrderProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("All() sorts by priority, ties by registration order", prop.ForAll(
		func(priorities []int) bool {
			reg := NewRegistry()
			for i, p := range priorities {
				if err := reg.Register(mustRule(fmt.Sprintf("r%03d", i), p)); err != nil {
					return false
				}
			}
			reg.Seal()

			all := reg.All()
			if len(all) != len(priorities) {
				return false
			}
			for i := 1; i < len(all); i++ {
				prev, cur := all[i-1], all[i]
				if prev.Priority > cur.Priority {
					return false
				}
				if prev.Priority == cur.Priority && prev.ID >= cur.ID {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(-3, 3)),
	))

	properties.Property("order is identical before and after Seal", prop.ForAll(
		func(priorities []int) bool {
			reg := NewRegistry()
			for i, p := range priorities {
				_ = reg.Register(mustRule(fmt.Sprintf("r%03d", i), p))
			}
			before := fmt.Sprint(ids(reg.All()))
			reg.Seal()
			return before == fmt.Sprint(ids(reg.All()))
		},
		gen.SliceOf(gen.IntRange(0, 2)),
	))

	properties.TestingRun(t)
}
