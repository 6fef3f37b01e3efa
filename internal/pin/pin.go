// Package pin checks the parental-control PIN that reveals the adult
// section of the host.
package pin

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/solatis/envboot/internal/host"
)

// Store keys read by Check.
const (
	KeyPIN     = "parental_control_pin"
	KeyProfile = "lampac_profile_id"
)

// DefaultRehideDelay is how long the section stays visible after a granted PIN.
const DefaultRehideDelay = 10 * time.Minute

// DefaultDeniedProfiles are child profiles that stay locked even with the
// correct PIN.
var DefaultDeniedProfiles = []string{"_id3", "_id4"}

// Result is the outcome of a PIN check. The zero value means no check ran.
type Result int

const (
	Unchecked Result = iota
	Granted
	NotSet
	NotEntered
	Mismatch
	Denied
)

func (r Result) String() string {
	switch r {
	case Unchecked:
		return "unchecked"
	case Granted:
		return "granted"
	case NotSet:
		return "not set"
	case NotEntered:
		return "not entered"
	case Mismatch:
		return "wrong code"
	case Denied:
		return "profile denied"
	default:
		return fmt.Sprintf("Result(%d)", int(r))
	}
}

// Lock holds the PIN policy.
type Lock struct {
	denied []string
	rehide time.Duration
}

// Option configures a Lock.
type Option func(*Lock)

// WithDeniedProfiles replaces the profiles refused after a correct PIN.
func WithDeniedProfiles(ids ...string) Option {
	return func(l *Lock) { l.denied = slices.Clone(ids) }
}

// WithRehideDelay sets the re-hide delay; 0 keeps the section visible.
func WithRehideDelay(d time.Duration) Option {
	return func(l *Lock) { l.rehide = d }
}

// New returns a Lock with the default policy.
func New(opts ...Option) *Lock {
	l := &Lock{
		denied: slices.Clone(DefaultDeniedProfiles),
		rehide: DefaultRehideDelay,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// RehideDelay returns how long a grant lasts; 0 means until the session ends.
func (l *Lock) RehideDelay() time.Duration {
	return l.rehide
}

// Check compares entered with the stored PIN. The profile is only consulted
// once the PIN matched.
func (l *Lock) Check(ctx context.Context, store host.Store, entered string) (Result, error) {
	stored, err := store.Get(ctx, KeyPIN, "")
	if err != nil {
		return Unchecked, fmt.Errorf("read %s: %w", KeyPIN, err)
	}
	stored = strings.TrimSpace(stored)
	entered = strings.TrimSpace(entered)
	switch {
	case stored == "":
		return NotSet, nil
	case entered == "":
		return NotEntered, nil
	case entered != stored:
		return Mismatch, nil
	}

	profile, err := store.Get(ctx, KeyProfile, "")
	if err != nil {
		return Unchecked, fmt.Errorf("read %s: %w", KeyProfile, err)
	}
	if slices.Contains(l.denied, profile) {
		return Denied, nil
	}
	return Granted, nil
}

// Check runs entered against a default Lock.
func Check(ctx context.Context, store host.Store, entered string) (Result, error) {
	return New().Check(ctx, store, entered)
}
