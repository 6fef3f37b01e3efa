package unlock

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestFeed_Completes(t *testing.T) {
	s := NewSequence(nil)
	for i, code := range DefaultCodes {
		done := s.Feed(code)
		if want := i == len(DefaultCodes)-1; done != want {
			t.Fatalf("Feed(%d) at %d = %v, want %v", code, i, done, want)
		}
	}
	if s.Progress() != 0 {
		t.Errorf("Progress() = %d after completion, want 0", s.Progress())
	}
}

func TestFeed_MismatchResets(t *testing.T) {
	s := NewSequence([]int{1, 2, 3})
	s.Feed(1)
	s.Feed(2)
	if s.Progress() != 2 {
		t.Fatalf("Progress() = %d, want 2", s.Progress())
	}

	// 1 mismatches position 2 and is not re-tested as a first key.
	if s.Feed(1) {
		t.Fatal("Feed(1) completed, want false")
	}
	if s.Progress() != 0 {
		t.Errorf("Progress() = %d after mismatch, want 0", s.Progress())
	}
	for _, c := range []int{1, 2} {
		s.Feed(c)
	}
	if !s.Feed(3) {
		t.Error("Feed(3) = false, want completion")
	}
}

func TestFeed_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("full sequence after a reset always completes", prop.ForAll(
		func(noise []int) bool {
			s := NewSequence(nil)
			for _, c := range noise {
				s.Feed(c)
			}
			// Any non-matching key forces position 0.
			s.Feed(-1)
			done := false
			for _, c := range DefaultCodes {
				done = s.Feed(c)
			}
			return done
		},
		gen.SliceOf(gen.IntRange(36, 41)),
	))

	properties.Property("keys outside the code set never complete", prop.ForAll(
		func(keys []int) bool {
			s := NewSequence(nil)
			for _, k := range keys {
				if s.Feed(k) {
					return false
				}
			}
			return s.Progress() == 0
		},
		gen.SliceOf(gen.IntRange(0, 30)),
	))

	properties.TestingRun(t)
}
