package lifecycle

import (
	"fmt"

	"github.com/solatis/envboot/internal/types"
)

// State is the gate's position in the host lifecycle.
type State int

const (
	Uninitialized State = iota
	Loaded
	Ready
	FirstRunDone
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Loaded:
		return "loaded"
	case Ready:
		return "ready"
	case FirstRunDone:
		return "first_run_done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// IsTerminal reports whether no further transition is possible.
func IsTerminal(s State) bool {
	return s == FirstRunDone
}

// AtLeast reports whether s has reached target.
func (s State) AtLeast(target State) bool {
	return s >= target
}

// Transition validates from -> to. The lifecycle is strictly linear and
// FirstRunDone is sticky.
func Transition(from, to State) error {
	if !isAllowedTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", types.ErrInvalidTransition, from, to)
	}
	return nil
}

func isAllowedTransition(from, to State) bool {
	switch from {
	case Uninitialized:
		return to == Loaded
	case Loaded:
		return to == Ready
	case Ready:
		return to == FirstRunDone
	default:
		return false
	}
}
