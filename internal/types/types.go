// Package types provides domain models shared across envboot components.
//
// Host-agnostic design: nothing here knows how a host app stores values,
// loads scripts, or renders elements. Adapters in internal/host translate
// these types into host calls; the rule engine only sees the types below.
package types

import "fmt"

// RuleID identifies a rule within a registry.
// Chosen by the rule author; uniqueness is enforced by the registry.
type RuleID string

// SessionID identifies one engine process lifetime (UUIDv7).
type SessionID string

// Phase names the dispatch pass triggered by a lifecycle transition or host event.
type Phase string

const (
	PhaseLoad     Phase = "load"
	PhaseReady    Phase = "ready"
	PhaseFirstRun Phase = "first_run"
	PhaseSettings Phase = "settings"
	PhaseUnlock   Phase = "unlock"

	// PhaseParental runs after a correct parental-control PIN and
	// PhaseParentalExpired once the re-hide delay elapses.
	PhaseParental        Phase = "parental"
	PhaseParentalExpired Phase = "parental_expired"
)

// Phases lists every known phase in lifecycle order.
var Phases = []Phase{PhaseLoad, PhaseReady, PhaseFirstRun, PhaseSettings, PhaseUnlock, PhaseParental, PhaseParentalExpired}

// ParsePhase validates a phase name.
func ParsePhase(s string) (Phase, error) {
	for _, p := range Phases {
		if string(p) == s {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: unknown phase %q", ErrInvalidRule, s)
}

// Outcome is the result of one rule within one pass.
type Outcome int

const (
	OutcomeSkipped Outcome = iota
	OutcomeApplied
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeFailed:
		return "failed"
	default:
		return "skipped"
	}
}

// MarshalText renders the outcome name in JSON session logs.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Ordering controls how a resource action hands its URLs to the loader.
type Ordering string

const (
	// OrderingParallel passes every URL to the loader in one call.
	OrderingParallel Ordering = "parallel"
	// OrderingSequential loads URLs one at a time, in declaration order.
	OrderingSequential Ordering = "sequential"
)

// Scope bounds how long an appliesOnce mark lives.
type Scope string

const (
	// ScopeSession marks are kept in memory for the engine lifetime.
	ScopeSession Scope = "session"
	// ScopeInstallation marks are persisted in the host store.
	ScopeInstallation Scope = "installation"
)

// VisibilityTarget names a host-rendered element group, e.g. "settings.account".
// Host adapters resolve targets to their own selectors.
type VisibilityTarget string

// Plugin describes an entry in the host's plugin list.
type Plugin struct {
	URL         string `json:"url"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Status      int    `json:"status"`
}

// Account tiers reported by the account probe.
const (
	TierRegular = "regular"
	TierPromo   = "promo"
	TierTest    = "test"
	TierVIP     = "vip"
)

// Limits enforced when rules are compiled.
const (
	// MaxRuleIDLength keeps ids usable as store keys ("applied:<id>").
	MaxRuleIDLength = 128

	// MaxURLsPerAction bounds a single load action's fan-out.
	MaxURLsPerAction = 32

	// MaxRules caps registry size; rule files are hand-written configuration.
	MaxRules = 1024

	// InstallIDLength matches the 8-char uid the host scripts generate.
	InstallIDLength = 8
)

// Well-known store keys shared with the host app's own storage layout.
const (
	KeyInstallID     = "lampac_unic_id"
	KeyFirstRun      = "lampac_initiale"
	KeyAccountEmail  = "account_email"
	KeyAppliedPrefix = "applied:"
)
